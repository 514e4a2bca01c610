package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
)

// ListingRepository stores listings in memory. Not suitable for
// production.
type ListingRepository struct {
	mu   sync.RWMutex
	byID map[domainlisting.ID]*domainlisting.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{byID: make(map[domainlisting.ID]*domainlisting.Listing)}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlisting.ID) (*domainlisting.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if item, ok := r.byID[id]; ok {
		return cloneListing(item), nil
	}
	return nil, domainlisting.ErrNotFound
}

func (r *ListingRepository) BySeller(ctx context.Context, sellerID domainuser.ID) ([]domainlisting.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domainlisting.Listing, 0)
	for _, item := range r.byID {
		if item.SellerID == sellerID {
			out = append(out, *cloneListing(item))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *ListingRepository) Latest(ctx context.Context, limit int) ([]domainlisting.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domainlisting.Listing, 0, len(r.byID))
	for _, item := range r.byID {
		out = append(out, *cloneListing(item))
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ListingRepository) SearchByName(ctx context.Context, query string, limit int) ([]domainlisting.Listing, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domainlisting.Listing, 0)
	for _, item := range r.byID {
		if needle == "" || strings.Contains(strings.ToLower(item.Name), needle) {
			out = append(out, *cloneListing(item))
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ListingRepository) Save(ctx context.Context, item *domainlisting.Listing) error {
	if item == nil || strings.TrimSpace(string(item.ID)) == "" {
		return domainlisting.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[item.ID] = cloneListing(item)
	return nil
}

func (r *ListingRepository) Delete(ctx context.Context, id domainlisting.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domainlisting.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func sortNewestFirst(items []domainlisting.Listing) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PostedAt.After(items[j].PostedAt)
	})
}

func cloneListing(l *domainlisting.Listing) *domainlisting.Listing {
	if l == nil {
		return nil
	}
	copied := *l
	return &copied
}

type saveKey struct {
	userID    domainuser.ID
	listingID domainlisting.ID
}

// SaveStore keeps listing bookmarks in memory.
type SaveStore struct {
	mu    sync.RWMutex
	saves map[saveKey]time.Time
}

func NewSaveStore() *SaveStore {
	return &SaveStore{saves: make(map[saveKey]time.Time)}
}

func (s *SaveStore) Add(ctx context.Context, userID domainuser.ID, listingID domainlisting.ID, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := saveKey{userID: userID, listingID: listingID}
	if _, ok := s.saves[key]; !ok {
		s.saves[key] = at.UTC()
	}
	return nil
}

func (s *SaveStore) Remove(ctx context.Context, userID domainuser.ID, listingID domainlisting.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saves, saveKey{userID: userID, listingID: listingID})
	return nil
}

func (s *SaveStore) IsSaved(ctx context.Context, userID domainuser.ID, listingID domainlisting.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.saves[saveKey{userID: userID, listingID: listingID}]
	return ok, nil
}

func (s *SaveStore) ByUser(ctx context.Context, userID domainuser.ID) ([]domainlisting.SavedListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domainlisting.SavedListing, 0)
	for key, at := range s.saves {
		if key.userID == userID {
			out = append(out, domainlisting.SavedListing{
				ListingID: key.listingID,
				UserID:    key.userID,
				SavedAt:   at,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}

func (s *SaveStore) RemoveByListing(ctx context.Context, listingID domainlisting.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.saves {
		if key.listingID == listingID {
			delete(s.saves, key)
		}
	}
	return nil
}

var _ domainlisting.Repository = (*ListingRepository)(nil)
var _ domainlisting.SaveStore = (*SaveStore)(nil)
