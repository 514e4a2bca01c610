package mongo

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
)

type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection("listings")}
}

func (r *ListingRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "seller_id", Value: 1}}},
		{Keys: bson.D{{Key: "posted_at", Value: -1}}},
		{Keys: bson.D{{Key: "name", Value: 1}}},
	})
	return err
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlisting.ID) (*domainlisting.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlisting.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ListingRepository) BySeller(ctx context.Context, sellerID domainuser.ID) ([]domainlisting.Listing, error) {
	return r.find(ctx, bson.M{"seller_id": string(sellerID)}, 0)
}

func (r *ListingRepository) Latest(ctx context.Context, limit int) ([]domainlisting.Listing, error) {
	return r.find(ctx, bson.M{}, limit)
}

// SearchByName mirrors the feed's LIKE-style substring match,
// case-insensitive.
func (r *ListingRepository) SearchByName(ctx context.Context, query string, limit int) ([]domainlisting.Listing, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return r.Latest(ctx, limit)
	}
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return r.find(ctx, bson.M{"name": bson.M{"$regex": pattern}}, limit)
}

func (r *ListingRepository) Save(ctx context.Context, item *domainlisting.Listing) error {
	if item == nil {
		return domainlisting.ErrIDRequired
	}
	doc := newListingDocument(item)
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	return err
}

func (r *ListingRepository) Delete(ctx context.Context, id domainlisting.ID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainlisting.ErrNotFound
	}
	return nil
}

func (r *ListingRepository) find(ctx context.Context, filter bson.M, limit int) ([]domainlisting.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "posted_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := make([]domainlisting.Listing, 0)
	for cursor.Next(ctx) {
		var doc listingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toAggregate())
	}
	return out, cursor.Err()
}

type listingDocument struct {
	ID          string `bson:"_id"`
	SellerID    string `bson:"seller_id"`
	Name        string `bson:"name"`
	Description string `bson:"description"`
	PriceCents  int64  `bson:"price_cents"`
	ImageURL    string `bson:"image_url"`
	PostedAt    int64  `bson:"posted_at"`
	UpdatedAt   int64  `bson:"updated_at"`
}

func newListingDocument(l *domainlisting.Listing) listingDocument {
	return listingDocument{
		ID:          string(l.ID),
		SellerID:    string(l.SellerID),
		Name:        l.Name,
		Description: l.Description,
		PriceCents:  l.PriceCents,
		ImageURL:    l.ImageURL,
		PostedAt:    l.PostedAt.UnixMilli(),
		UpdatedAt:   l.UpdatedAt.UnixMilli(),
	}
}

func (d listingDocument) toAggregate() *domainlisting.Listing {
	return &domainlisting.Listing{
		ID:          domainlisting.ID(d.ID),
		SellerID:    domainuser.ID(d.SellerID),
		Name:        d.Name,
		Description: d.Description,
		PriceCents:  d.PriceCents,
		ImageURL:    d.ImageURL,
		PostedAt:    timestampToTime(d.PostedAt),
		UpdatedAt:   timestampToTime(d.UpdatedAt),
	}
}

// SaveStore keeps listing bookmarks, one document per (user, listing).
type SaveStore struct {
	col *mongo.Collection
}

func NewSaveStore(db *mongo.Database) *SaveStore {
	return &SaveStore{col: db.Collection("saves")}
}

func (s *SaveStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "listing_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "listing_id", Value: 1}}},
	})
	return err
}

func (s *SaveStore) Add(ctx context.Context, userID domainuser.ID, listingID domainlisting.ID, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.col.UpdateOne(ctx,
		bson.M{"user_id": string(userID), "listing_id": string(listingID)},
		bson.M{"$setOnInsert": bson.M{"saved_at": at.UTC().UnixMilli()}},
		opts,
	)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (s *SaveStore) Remove(ctx context.Context, userID domainuser.ID, listingID domainlisting.ID) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"user_id": string(userID), "listing_id": string(listingID)})
	return err
}

func (s *SaveStore) IsSaved(ctx context.Context, userID domainuser.ID, listingID domainlisting.ID) (bool, error) {
	count, err := s.col.CountDocuments(ctx, bson.M{"user_id": string(userID), "listing_id": string(listingID)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SaveStore) ByUser(ctx context.Context, userID domainuser.ID) ([]domainlisting.SavedListing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "saved_at", Value: -1}})
	cursor, err := s.col.Find(ctx, bson.M{"user_id": string(userID)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := make([]domainlisting.SavedListing, 0)
	for cursor.Next(ctx) {
		var doc saveDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, domainlisting.SavedListing{
			ListingID: domainlisting.ID(doc.ListingID),
			UserID:    domainuser.ID(doc.UserID),
			SavedAt:   timestampToTime(doc.SavedAt),
		})
	}
	return out, cursor.Err()
}

func (s *SaveStore) RemoveByListing(ctx context.Context, listingID domainlisting.ID) error {
	_, err := s.col.DeleteMany(ctx, bson.M{"listing_id": string(listingID)})
	return err
}

type saveDocument struct {
	UserID    string `bson:"user_id"`
	ListingID string `bson:"listing_id"`
	SavedAt   int64  `bson:"saved_at"`
}

var _ domainlisting.Repository = (*ListingRepository)(nil)
var _ domainlisting.SaveStore = (*SaveStore)(nil)
