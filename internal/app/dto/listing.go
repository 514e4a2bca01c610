package dto

import (
	"time"

	"campusmarket/internal/app/services/listings"
	domainlisting "campusmarket/internal/domain/listing"
)

// Listing is the public catalog representation of an item for sale.
type Listing struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	SellerName  string    `json:"seller_name,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	ImageURL    string    `json:"image_url,omitempty"`
	Saved       bool      `json:"saved"`
	PostedAt    time.Time `json:"posted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListingList is a collection response.
type ListingList struct {
	Items []Listing `json:"items"`
}

// SaveState reports the bookmark state after a toggle.
type SaveState struct {
	ListingID string `json:"listing_id"`
	Saved     bool   `json:"saved"`
}

func MapListing(item *domainlisting.Listing) Listing {
	if item == nil {
		return Listing{}
	}
	return Listing{
		ID:          string(item.ID),
		SellerID:    string(item.SellerID),
		Name:        item.Name,
		Description: item.Description,
		PriceCents:  item.PriceCents,
		ImageURL:    item.ImageURL,
		PostedAt:    item.PostedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func MapListingView(view *listings.ListingView) Listing {
	if view == nil {
		return Listing{}
	}
	out := MapListing(&view.Listing)
	out.SellerName = view.SellerName
	out.Saved = view.Saved
	return out
}

func MapListingList(views []listings.ListingView) ListingList {
	items := make([]Listing, 0, len(views))
	for i := range views {
		items = append(items, MapListingView(&views[i]))
	}
	return ListingList{Items: items}
}
