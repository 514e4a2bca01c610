package listings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
	"campusmarket/internal/infra/storage/s3"
)

// EventRecorder appends a domain event to the outbox.
type EventRecorder interface {
	Record(ctx context.Context, name, aggregateID string, payload any) error
}

// ThreadRemover cleans up the conversations attached to a listing when
// the listing is permanently removed.
type ThreadRemover interface {
	RemoveListingThreads(ctx context.Context, listingID domainlisting.ID) error
}

// Service owns the listing catalog: posting, editing, browsing, search,
// bookmarks and image upload.
type Service struct {
	Listings domainlisting.Repository
	Saves    domainlisting.SaveStore
	Users    domainuser.Repository
	Images   s3.Uploader
	Threads  ThreadRemover
	Events   EventRecorder
	Logger   *slog.Logger
}

const defaultBrowseLimit = 100

type CreateParams struct {
	SellerID    domainuser.ID
	Name        string
	Description string
	PriceCents  int64
	Image       io.Reader
	ImageName   string
	ImageType   string
}

type UpdateParams struct {
	Name        string
	Description string
	PriceCents  int64
	Image       io.Reader
	ImageName   string
	ImageType   string
}

// ListingView pairs a listing with the viewer's bookmark state and the
// seller's display name.
type ListingView struct {
	Listing    domainlisting.Listing
	SellerName string
	Saved      bool
}

// Create posts a new listing, uploading the image first when one is
// attached so a storage failure never leaves a listing without its
// advertised picture.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domainlisting.Listing, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	id := domainlisting.ID(uuid.NewString())
	imageURL, err := s.uploadImage(ctx, id, params.Image, params.ImageName, params.ImageType)
	if err != nil {
		return nil, err
	}
	item, err := domainlisting.New(domainlisting.CreateParams{
		ID:          id,
		SellerID:    params.SellerID,
		Name:        params.Name,
		Description: params.Description,
		PriceCents:  params.PriceCents,
		ImageURL:    imageURL,
		Now:         time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Listings.Save(ctx, item); err != nil {
		return nil, err
	}
	s.record(ctx, "listing.created", string(item.ID), map[string]any{
		"listing_id":  item.ID,
		"seller_id":   item.SellerID,
		"name":        item.Name,
		"price_cents": item.PriceCents,
	})
	if s.Logger != nil {
		s.Logger.Info("listing created", "listing_id", item.ID, "seller_id", item.SellerID)
	}
	return item, nil
}

// Update edits a listing. Only the seller may change it.
func (s *Service) Update(ctx context.Context, id domainlisting.ID, actor domainuser.ID, params UpdateParams) (*domainlisting.Listing, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	item, err := s.Listings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.SellerID != actor {
		return nil, domainlisting.ErrNotSeller
	}
	if err := item.Update(params.Name, params.Description, params.PriceCents, time.Now()); err != nil {
		return nil, err
	}
	if params.Image != nil {
		url, err := s.uploadImage(ctx, item.ID, params.Image, params.ImageName, params.ImageType)
		if err != nil {
			return nil, err
		}
		item.ImageURL = url
	}
	if err := s.Listings.Save(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Delete permanently removes a listing together with its bookmarks and
// conversation threads. Only the seller may delete it.
func (s *Service) Delete(ctx context.Context, id domainlisting.ID, actor domainuser.ID) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	item, err := s.Listings.ByID(ctx, id)
	if err != nil {
		return err
	}
	if item.SellerID != actor {
		return domainlisting.ErrNotSeller
	}
	if s.Threads != nil {
		if err := s.Threads.RemoveListingThreads(ctx, item.ID); err != nil {
			return err
		}
	}
	if err := s.Saves.RemoveByListing(ctx, item.ID); err != nil {
		return err
	}
	if err := s.Listings.Delete(ctx, item.ID); err != nil {
		return err
	}
	s.record(ctx, "listing.deleted", string(item.ID), map[string]any{
		"listing_id": item.ID,
		"seller_id":  item.SellerID,
	})
	if s.Logger != nil {
		s.Logger.Info("listing deleted", "listing_id", item.ID)
	}
	return nil
}

// Browse returns the newest listings, optionally filtered by a
// case-insensitive name search.
func (s *Service) Browse(ctx context.Context, viewer domainuser.ID, query string, limit int) ([]ListingView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultBrowseLimit
	}
	var (
		items []domainlisting.Listing
		err   error
	)
	if query = strings.TrimSpace(query); query != "" {
		items, err = s.Listings.SearchByName(ctx, query, limit)
	} else {
		items, err = s.Listings.Latest(ctx, limit)
	}
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, viewer, items)
}

// Get returns one listing with viewer context.
func (s *Service) Get(ctx context.Context, id domainlisting.ID, viewer domainuser.ID) (*ListingView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	item, err := s.Listings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.decorate(ctx, viewer, []domainlisting.Listing{*item})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// BySeller returns every listing a user has posted, newest first.
func (s *Service) BySeller(ctx context.Context, sellerID domainuser.ID, viewer domainuser.ID) ([]ListingView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	items, err := s.Listings.BySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, viewer, items)
}

// ToggleSave flips the viewer's bookmark on a listing and reports the
// resulting state.
func (s *Service) ToggleSave(ctx context.Context, id domainlisting.ID, viewer domainuser.ID) (saved bool, err error) {
	if err := s.ensureDependencies(); err != nil {
		return false, err
	}
	if _, err := s.Listings.ByID(ctx, id); err != nil {
		return false, err
	}
	already, err := s.Saves.IsSaved(ctx, viewer, id)
	if err != nil {
		return false, err
	}
	if already {
		if err := s.Saves.Remove(ctx, viewer, id); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := s.Saves.Add(ctx, viewer, id, time.Now()); err != nil {
		return false, err
	}
	return true, nil
}

// Saved returns the viewer's bookmarked listings, most recently saved
// first. Bookmarks whose listing has since disappeared are skipped.
func (s *Service) Saved(ctx context.Context, viewer domainuser.ID) ([]ListingView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	saves, err := s.Saves.ByUser(ctx, viewer)
	if err != nil {
		return nil, err
	}
	items := make([]domainlisting.Listing, 0, len(saves))
	for _, save := range saves {
		item, err := s.Listings.ByID(ctx, save.ListingID)
		if err != nil {
			if errors.Is(err, domainlisting.ErrNotFound) {
				continue
			}
			return nil, err
		}
		items = append(items, *item)
	}
	return s.decorate(ctx, viewer, items)
}

func (s *Service) decorate(ctx context.Context, viewer domainuser.ID, items []domainlisting.Listing) ([]ListingView, error) {
	views := make([]ListingView, 0, len(items))
	for _, item := range items {
		view := ListingView{Listing: item}
		if seller, err := s.Users.ByID(ctx, item.SellerID); err == nil {
			view.SellerName = seller.Name
		} else if s.Logger != nil {
			s.Logger.Warn("listing seller lookup failed", "seller_id", item.SellerID, "error", err)
		}
		if viewer != "" {
			saved, err := s.Saves.IsSaved(ctx, viewer, item.ID)
			if err != nil {
				return nil, err
			}
			view.Saved = saved
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) uploadImage(ctx context.Context, id domainlisting.ID, reader io.Reader, name, contentType string) (string, error) {
	if reader == nil {
		return "", nil
	}
	if s.Images == nil {
		return "", errors.New("listings: image uploader required")
	}
	ext := strings.ToLower(path.Ext(name))
	key := fmt.Sprintf("listings/%s/%s%s", id, uuid.NewString(), ext)
	url, err := s.Images.Upload(ctx, key, reader, contentType)
	if err != nil {
		return "", fmt.Errorf("listings: image upload: %w", err)
	}
	return url, nil
}

func (s *Service) record(ctx context.Context, name, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Record(ctx, name, aggregateID, payload); err != nil && s.Logger != nil {
		s.Logger.Warn("event record failed", "event", name, "aggregate_id", aggregateID, "error", err)
	}
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Listings == nil:
		return errors.New("listings: repository required")
	case s.Saves == nil:
		return errors.New("listings: save store required")
	case s.Users == nil:
		return errors.New("listings: user repository required")
	default:
		return nil
	}
}
