package listing

import (
	"context"
	"errors"
	"strings"
	"time"

	"campusmarket/internal/domain/user"
)

var (
	ErrIDRequired     = errors.New("listing: id is required")
	ErrSellerRequired = errors.New("listing: seller is required")
	ErrNameRequired   = errors.New("listing: name is required")
	ErrInvalidPrice   = errors.New("listing: price must not be negative")
	ErrNotFound       = errors.New("listing: not found")
	ErrNotSeller      = errors.New("listing: only the seller may modify a listing")
)

type ID string

// Listing is an item offered for sale. SellerID is one endpoint of every
// conversation about the listing.
type Listing struct {
	ID          ID
	SellerID    user.ID
	Name        string
	Description string
	PriceCents  int64
	ImageURL    string
	PostedAt    time.Time
	UpdatedAt   time.Time
}

type CreateParams struct {
	ID          ID
	SellerID    user.ID
	Name        string
	Description string
	PriceCents  int64
	ImageURL    string
	Now         time.Time
}

func New(params CreateParams) (*Listing, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	seller := strings.TrimSpace(string(params.SellerID))
	if seller == "" {
		return nil, ErrSellerRequired
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if params.PriceCents < 0 {
		return nil, ErrInvalidPrice
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Listing{
		ID:          ID(id),
		SellerID:    user.ID(seller),
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		PriceCents:  params.PriceCents,
		ImageURL:    strings.TrimSpace(params.ImageURL),
		PostedAt:    now,
		UpdatedAt:   now,
	}, nil
}

func (l *Listing) Update(name, description string, priceCents int64, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if priceCents < 0 {
		return ErrInvalidPrice
	}
	l.Name = name
	l.Description = strings.TrimSpace(description)
	l.PriceCents = priceCents
	if now.IsZero() {
		now = time.Now()
	}
	l.UpdatedAt = now.UTC()
	return nil
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Listing, error)
	BySeller(ctx context.Context, sellerID user.ID) ([]Listing, error)
	// Latest returns the browse feed, newest first.
	Latest(ctx context.Context, limit int) ([]Listing, error)
	SearchByName(ctx context.Context, query string, limit int) ([]Listing, error)
	Save(ctx context.Context, listing *Listing) error
	Delete(ctx context.Context, id ID) error
}

// SavedListing is a bookmark a user placed on a listing.
type SavedListing struct {
	ListingID ID
	UserID    user.ID
	SavedAt   time.Time
}

type SaveStore interface {
	Add(ctx context.Context, userID user.ID, listingID ID, at time.Time) error
	Remove(ctx context.Context, userID user.ID, listingID ID) error
	IsSaved(ctx context.Context, userID user.ID, listingID ID) (bool, error)
	// ByUser returns the user's bookmarks, most recently saved first.
	ByUser(ctx context.Context, userID user.ID) ([]SavedListing, error)
	RemoveByListing(ctx context.Context, listingID ID) error
}
