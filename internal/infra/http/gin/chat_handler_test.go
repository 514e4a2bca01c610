package ginserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authsvc "campusmarket/internal/app/services/auth"
	chatsvc "campusmarket/internal/app/services/chat"
	listingsvc "campusmarket/internal/app/services/listings"
	"campusmarket/internal/infra/config"
	"campusmarket/internal/infra/obs"
	"campusmarket/internal/infra/security"
	"campusmarket/internal/infra/storage/memory"
)

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	users := memory.NewUserRepository()
	sessions := memory.NewSessionStore()
	items := memory.NewListingRepository()
	saves := memory.NewSaveStore()
	chatStore := memory.NewChatStore()

	authService := &authsvc.Service{
		Users:       users,
		Sessions:    sessions,
		Passwords:   security.BcryptHasher{Cost: 4},
		Tokens:      security.RandomTokenGenerator{},
		SessionTTL:  time.Hour,
		EmailDomain: "ku.edu",
	}
	chatService := &chatsvc.Service{Store: chatStore, Listings: items, Users: users}
	listingService := &listingsvc.Service{Listings: items, Saves: saves, Users: users, Threads: chatService}

	server := NewServer(config.Config{Env: "test", HTTPAddr: ":0"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Auth:           AuthHandler{Service: authService},
		Listing:        ListingHandler{Service: listingService},
		Chat:           ChatHandler{Service: chatService},
		AuthMiddleware: AuthMiddleware{Service: authService}.Handle,
	})
	return &testServer{handler: server.Handler}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, email, name string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"name":     name,
		"password": "sunflower42",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.Token
}

func (s *testServer) createListing(t *testing.T, token, name string, priceCents int64) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/listings", token, map[string]any{
		"name":        name,
		"price_cents": priceCents,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create listing: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode listing response: %v", err)
	}
	return resp.ID
}

func TestContactFlowOverHTTP(t *testing.T) {
	t.Parallel()
	server := newTestServer(t)

	sellerToken := server.register(t, "seller@ku.edu", "Sam Seller")
	buyerToken := server.register(t, "buyer@ku.edu", "Bella Buyer")
	listingID := server.createListing(t, sellerToken, "Road bike", 12000)

	// Buyer opens the thread with a first message.
	rec := server.do(t, http.MethodPost, "/api/v1/listings/"+listingID+"/contact", buyerToken, map[string]string{
		"body": "is this still available?",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("contact: status %d body %s", rec.Code, rec.Body.String())
	}
	var contact struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
		Message struct {
			Body string `json:"body"`
			Read bool   `json:"read"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &contact); err != nil {
		t.Fatalf("decode contact: %v", err)
	}
	if contact.Message.Read {
		t.Error("first message must start unread")
	}
	conversationID := contact.Conversation.ID

	// A second contact resolves to the same conversation.
	rec = server.do(t, http.MethodPost, "/api/v1/listings/"+listingID+"/contact", buyerToken, map[string]string{})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat contact: status %d body %s", rec.Code, rec.Body.String())
	}
	var repeat struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &repeat); err != nil {
		t.Fatalf("decode repeat contact: %v", err)
	}
	if repeat.ID != conversationID {
		t.Errorf("expected same conversation %s, got %s", conversationID, repeat.ID)
	}

	// Seller's badge shows the unread message.
	rec = server.do(t, http.MethodGet, "/api/v1/me/unread-badge", sellerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("badge: status %d", rec.Code)
	}
	var badge struct {
		Unread int64 `json:"unread"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &badge); err != nil {
		t.Fatalf("decode badge: %v", err)
	}
	if badge.Unread != 1 {
		t.Errorf("expected badge 1, got %d", badge.Unread)
	}

	// Opening the conversation marks it read.
	rec = server.do(t, http.MethodGet, "/api/v1/conversations/"+conversationID, sellerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("view: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = server.do(t, http.MethodGet, "/api/v1/me/unread-badge", sellerToken, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &badge); err != nil {
		t.Fatalf("decode badge: %v", err)
	}
	if badge.Unread != 0 {
		t.Errorf("expected badge 0 after view, got %d", badge.Unread)
	}

	// Seller replies; buyer's inbox shows one row with the reply on top.
	rec = server.do(t, http.MethodPost, "/api/v1/conversations/"+conversationID+"/messages", sellerToken, map[string]string{
		"body": "yes, meet at the union?",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reply: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = server.do(t, http.MethodGet, "/api/v1/me/inbox", buyerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("inbox: status %d", rec.Code)
	}
	var inbox struct {
		Items []struct {
			ConversationID  string `json:"conversation_id"`
			LastMessageBody string `json:"last_message_body"`
			Unread          int64  `json:"unread"`
			ListingName     string `json:"listing_name"`
			OtherName       string `json:"other_name"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &inbox); err != nil {
		t.Fatalf("decode inbox: %v", err)
	}
	if len(inbox.Items) != 1 {
		t.Fatalf("expected 1 inbox row, got %d", len(inbox.Items))
	}
	row := inbox.Items[0]
	if row.ConversationID != conversationID || row.LastMessageBody != "yes, meet at the union?" || row.Unread != 1 {
		t.Errorf("unexpected inbox row: %+v", row)
	}
	if row.ListingName != "Road bike" || row.OtherName != "Sam Seller" {
		t.Errorf("inbox row not enriched: %+v", row)
	}

	// Standalone mark-read clears it and is idempotent.
	rec = server.do(t, http.MethodPost, "/api/v1/conversations/"+conversationID+"/read", buyerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: status %d body %s", rec.Code, rec.Body.String())
	}
	var receipt struct {
		Marked int64 `json:"marked"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.Marked != 1 {
		t.Errorf("expected 1 marked, got %d", receipt.Marked)
	}
	rec = server.do(t, http.MethodPost, "/api/v1/conversations/"+conversationID+"/read", buyerToken, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("decode second receipt: %v", err)
	}
	if receipt.Marked != 0 {
		t.Errorf("expected 0 marked on repeat, got %d", receipt.Marked)
	}
}

func TestChatAccessControlOverHTTP(t *testing.T) {
	t.Parallel()
	server := newTestServer(t)

	sellerToken := server.register(t, "seller@ku.edu", "Sam Seller")
	buyerToken := server.register(t, "buyer@ku.edu", "Bella Buyer")
	strangerToken := server.register(t, "stranger@ku.edu", "Strange R")
	listingID := server.createListing(t, sellerToken, "Road bike", 12000)

	rec := server.do(t, http.MethodPost, "/api/v1/listings/"+listingID+"/contact", buyerToken, map[string]string{"body": "hi"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("contact: status %d", rec.Code)
	}
	var contact struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &contact); err != nil {
		t.Fatalf("decode contact: %v", err)
	}
	conversationID := contact.Conversation.ID

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"anonymous contact", http.MethodPost, "/api/v1/listings/" + listingID + "/contact", "", map[string]string{"body": "hi"}, http.StatusUnauthorized},
		{"seller self contact", http.MethodPost, "/api/v1/listings/" + listingID + "/contact", sellerToken, map[string]string{"body": "hi"}, http.StatusBadRequest},
		{"stranger view", http.MethodGet, "/api/v1/conversations/" + conversationID, strangerToken, nil, http.StatusForbidden},
		{"stranger message", http.MethodPost, "/api/v1/conversations/" + conversationID + "/messages", strangerToken, map[string]string{"body": "hi"}, http.StatusForbidden},
		{"stranger mark read", http.MethodPost, "/api/v1/conversations/" + conversationID + "/read", strangerToken, nil, http.StatusForbidden},
		{"missing conversation", http.MethodGet, "/api/v1/conversations/nope", buyerToken, nil, http.StatusNotFound},
		{"empty body message", http.MethodPost, "/api/v1/conversations/" + conversationID + "/messages", buyerToken, map[string]string{"body": "  "}, http.StatusBadRequest},
		{"unknown listing contact", http.MethodPost, "/api/v1/listings/ghost/contact", buyerToken, map[string]string{"body": "hi"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := server.do(t, tc.method, tc.path, tc.token, tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s: expected status %d, got %d (body %s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestListingEndpointsOverHTTP(t *testing.T) {
	t.Parallel()
	server := newTestServer(t)

	sellerToken := server.register(t, "seller@ku.edu", "Sam Seller")
	fanToken := server.register(t, "fan@ku.edu", "Fan Person")
	listingID := server.createListing(t, sellerToken, "Road bike", 12000)

	// Anonymous browsing works.
	rec := server.do(t, http.MethodGet, "/api/v1/listings?q=bike", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("browse: status %d", rec.Code)
	}
	var list struct {
		Items []struct {
			ID         string `json:"id"`
			SellerName string `json:"seller_name"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode browse: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != listingID {
		t.Fatalf("expected the bike, got %+v", list.Items)
	}

	// Save toggle round-trips.
	rec = server.do(t, http.MethodPost, "/api/v1/listings/"+listingID+"/save", fanToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("save: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = server.do(t, http.MethodGet, "/api/v1/me/saved-listings", fanToken, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode saved: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 saved listing, got %d", len(list.Items))
	}

	// Non-sellers cannot edit or delete.
	rec = server.do(t, http.MethodPut, "/api/v1/listings/"+listingID, fanToken, map[string]any{"name": "Mine now", "price_cents": 1})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 on foreign update, got %d", rec.Code)
	}
	rec = server.do(t, http.MethodDelete, "/api/v1/listings/"+listingID, fanToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 on foreign delete, got %d", rec.Code)
	}

	// Seller deletes; the listing and its bookmark disappear.
	rec = server.do(t, http.MethodDelete, "/api/v1/listings/"+listingID, sellerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = server.do(t, http.MethodGet, fmt.Sprintf("/api/v1/listings/%s", listingID), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
	rec = server.do(t, http.MethodGet, "/api/v1/me/saved-listings", fanToken, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode saved after delete: %v", err)
	}
	if len(list.Items) != 0 {
		t.Errorf("expected no saved listings after delete, got %d", len(list.Items))
	}
}

func TestAuthEndpointsOverHTTP(t *testing.T) {
	t.Parallel()
	server := newTestServer(t)

	rec := server.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "outsider@gmail.com",
		"name":     "Out Sider",
		"password": "sunflower42",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for foreign email domain, got %d", rec.Code)
	}

	token := server.register(t, "jay@ku.edu", "Jay Hawk")

	rec = server.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d", rec.Code)
	}
	var profile struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Email != "jay@ku.edu" {
		t.Errorf("expected jay@ku.edu, got %q", profile.Email)
	}

	rec = server.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", rec.Code)
	}
	rec = server.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}
}
