package listings

import (
	"context"
	"errors"
	"strings"
	"testing"

	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
	"campusmarket/internal/infra/storage/memory"
)

type threadRemover struct {
	removed []domainlisting.ID
}

func (r *threadRemover) RemoveListingThreads(ctx context.Context, listingID domainlisting.ID) error {
	r.removed = append(r.removed, listingID)
	return nil
}

func newService(t *testing.T) (*Service, *threadRemover) {
	t.Helper()
	users := memory.NewUserRepository()
	seller, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           "seller",
		Email:        "seller@ku.edu",
		Name:         "Sam Seller",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("new seller: %v", err)
	}
	if err := users.Save(context.Background(), seller); err != nil {
		t.Fatalf("save seller: %v", err)
	}
	remover := &threadRemover{}
	return &Service{
		Listings: memory.NewListingRepository(),
		Saves:    memory.NewSaveStore(),
		Users:    users,
		Threads:  remover,
	}, remover
}

func TestCreateAndBrowse(t *testing.T) {
	t.Parallel()
	service, _ := newService(t)
	ctx := context.Background()

	bike, err := service.Create(ctx, CreateParams{
		SellerID:   "seller",
		Name:       "Road bike",
		PriceCents: 12000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := service.Create(ctx, CreateParams{SellerID: "seller", Name: "Desk lamp", PriceCents: 1500}); err != nil {
		t.Fatalf("Create lamp: %v", err)
	}

	views, err := service.Browse(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(views))
	}
	for _, view := range views {
		if view.SellerName != "Sam Seller" {
			t.Errorf("expected seller name enrichment, got %q", view.SellerName)
		}
	}

	// Name search is case-insensitive.
	views, err = service.Browse(ctx, "", "BIKE", 0)
	if err != nil {
		t.Fatalf("search Browse: %v", err)
	}
	if len(views) != 1 || views[0].Listing.ID != bike.ID {
		t.Fatalf("expected only the bike, got %+v", views)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	service, _ := newService(t)
	ctx := context.Background()

	if _, err := service.Create(ctx, CreateParams{SellerID: "seller", Name: "  ", PriceCents: 100}); !errors.Is(err, domainlisting.ErrNameRequired) {
		t.Errorf("expected ErrNameRequired, got %v", err)
	}
	if _, err := service.Create(ctx, CreateParams{SellerID: "seller", Name: "Bike", PriceCents: -1}); !errors.Is(err, domainlisting.ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestUpdateIsSellerOnly(t *testing.T) {
	t.Parallel()
	service, _ := newService(t)
	ctx := context.Background()

	bike, err := service.Create(ctx, CreateParams{SellerID: "seller", Name: "Road bike", PriceCents: 12000})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := service.Update(ctx, bike.ID, "intruder", UpdateParams{Name: "Stolen bike", PriceCents: 1}); !errors.Is(err, domainlisting.ErrNotSeller) {
		t.Errorf("expected ErrNotSeller, got %v", err)
	}

	updated, err := service.Update(ctx, bike.ID, "seller", UpdateParams{Name: "Road bike (tuned)", Description: "fresh tires", PriceCents: 11000})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Road bike (tuned)" || updated.PriceCents != 11000 {
		t.Errorf("update not applied: %+v", updated)
	}
	if !updated.UpdatedAt.After(bike.UpdatedAt) && !updated.UpdatedAt.Equal(bike.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards: %v -> %v", bike.UpdatedAt, updated.UpdatedAt)
	}
}

func TestDeleteCascades(t *testing.T) {
	t.Parallel()
	service, remover := newService(t)
	ctx := context.Background()

	bike, err := service.Create(ctx, CreateParams{SellerID: "seller", Name: "Road bike", PriceCents: 12000})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := service.ToggleSave(ctx, bike.ID, "fan"); err != nil {
		t.Fatalf("ToggleSave: %v", err)
	}

	if err := service.Delete(ctx, bike.ID, "intruder"); !errors.Is(err, domainlisting.ErrNotSeller) {
		t.Errorf("expected ErrNotSeller, got %v", err)
	}
	if err := service.Delete(ctx, bike.ID, "seller"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Conversations and bookmarks go with the listing.
	if len(remover.removed) != 1 || remover.removed[0] != bike.ID {
		t.Errorf("expected thread cleanup for %s, got %v", bike.ID, remover.removed)
	}
	if _, err := service.Get(ctx, bike.ID, ""); !errors.Is(err, domainlisting.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	saved, err := service.Saved(ctx, "fan")
	if err != nil {
		t.Fatalf("Saved: %v", err)
	}
	if len(saved) != 0 {
		t.Errorf("expected no surviving bookmarks, got %d", len(saved))
	}
}

func TestToggleSaveRoundTrip(t *testing.T) {
	t.Parallel()
	service, _ := newService(t)
	ctx := context.Background()

	bike, err := service.Create(ctx, CreateParams{SellerID: "seller", Name: "Road bike", PriceCents: 12000})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	saved, err := service.ToggleSave(ctx, bike.ID, "fan")
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !saved {
		t.Error("expected first toggle to save")
	}
	views, err := service.Saved(ctx, "fan")
	if err != nil {
		t.Fatalf("Saved: %v", err)
	}
	if len(views) != 1 || !views[0].Saved {
		t.Fatalf("expected one saved listing, got %+v", views)
	}

	saved, err = service.ToggleSave(ctx, bike.ID, "fan")
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if saved {
		t.Error("expected second toggle to unsave")
	}

	if _, err := service.ToggleSave(ctx, "ghost", "fan"); !errors.Is(err, domainlisting.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown listing, got %v", err)
	}
}

func TestBySellerReturnsOwnListings(t *testing.T) {
	t.Parallel()
	service, _ := newService(t)
	ctx := context.Background()

	if _, err := service.Create(ctx, CreateParams{SellerID: "seller", Name: "Road bike", PriceCents: 12000}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	views, err := service.BySeller(ctx, "seller", "")
	if err != nil {
		t.Fatalf("BySeller: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(views))
	}
	views, err = service.BySeller(ctx, "someone-else", "")
	if err != nil {
		t.Fatalf("BySeller empty: %v", err)
	}
	if len(views) != 0 {
		t.Errorf("expected no listings for stranger, got %d", len(views))
	}
}

func TestCreateWithImageRequiresUploader(t *testing.T) {
	t.Parallel()
	service, _ := newService(t)

	_, err := service.Create(context.Background(), CreateParams{
		SellerID:   "seller",
		Name:       "Road bike",
		PriceCents: 12000,
		Image:      strings.NewReader("fake-bytes"),
		ImageName:  "bike.jpg",
		ImageType:  "image/jpeg",
	})
	if err == nil {
		t.Fatal("expected an error when no uploader is configured")
	}
}
