package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tdvo/mailscreen/internal/mailbox"
)

// memTokenStore keeps tokens in memory for tests.
type memTokenStore struct {
	tokens *Tokens
	saves  int
}

func (m *memTokenStore) Load() (*Tokens, error) { return m.tokens, nil }
func (m *memTokenStore) Save(t *Tokens) error {
	m.tokens = t
	m.saves++
	return nil
}

func validTokens() *Tokens {
	return &Tokens{
		AccessToken:  "live-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

// newTestClient points a client with the given tokens at a test server.
func newTestClient(store *memTokenStore, srv *httptest.Server) *Client {
	c := NewClient("client-id", store, nil)
	c.baseURL = srv.URL
	c.tokenURL = srv.URL + "/token"
	return c
}

func TestTokenSkipsRefreshWhileValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	store := &memTokenStore{tokens: validTokens()}
	c := newTestClient(store, srv)

	token, err := c.token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "live-token" {
		t.Errorf("token = %q", token)
	}
}

func TestTokenRefreshesWhenExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh-1" {
			t.Errorf("form = %v", r.Form)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh-token",
			"refresh_token": "refresh-2",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	store := &memTokenStore{tokens: &Tokens{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}}
	c := newTestClient(store, srv)

	token, err := c.token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("token = %q", token)
	}
	// The rotated refresh token is persisted.
	if store.saves != 1 || store.tokens.RefreshToken != "refresh-2" {
		t.Errorf("store = saves %d, refresh %q", store.saves, store.tokens.RefreshToken)
	}
	if !store.tokens.valid(time.Now()) {
		t.Error("refreshed tokens not marked valid")
	}
}

func TestTokenNoStoredTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newTestClient(&memTokenStore{}, srv)

	_, err := c.token(context.Background())
	if !mailbox.IsAuthError(err) {
		t.Errorf("error = %v, want AuthError", err)
	}
}

func TestTokenRefreshRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	store := &memTokenStore{tokens: &Tokens{
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}}
	c := newTestClient(store, srv)

	_, err := c.token(context.Background())
	if !mailbox.IsAuthError(err) {
		t.Errorf("error = %v, want AuthError", err)
	}
}

func TestGetErrorTaxonomy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/unauthorized":
			w.WriteHeader(http.StatusUnauthorized)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
		}
	}))
	defer srv.Close()

	c := newTestClient(&memTokenStore{tokens: validTokens()}, srv)
	ctx := context.Background()

	if err := c.get(ctx, "/unauthorized", nil); !mailbox.IsAuthError(err) {
		t.Errorf("401 = %v, want AuthError", err)
	}
	if err := c.get(ctx, "/missing", nil); !mailbox.IsNotFound(err) {
		t.Errorf("404 = %v, want NotFoundError", err)
	}
	if err := c.get(ctx, "/broken", nil); err == nil {
		t.Error("500 produced no error")
	}

	var out map[string]string
	if err := c.get(ctx, "/fine", &out); err != nil || out["ok"] != "yes" {
		t.Errorf("get = (%v, %v)", out, err)
	}
}

func TestGetSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer live-token" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := newTestClient(&memTokenStore{tokens: validTokens()}, srv)
	if err := c.get(context.Background(), "/me", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
}
