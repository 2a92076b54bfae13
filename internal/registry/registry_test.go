package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAngleForMapsFLAndFR(t *testing.T) {
	left, err := AngleFor("FL")
	if err != nil || left != AngleLeft {
		t.Fatalf("AngleFor(FL) = %v, %v, want LEFT, nil", left, err)
	}
	right, err := AngleFor("FR")
	if err != nil || right != AngleRight {
		t.Fatalf("AngleFor(FR) = %v, %v, want RIGHT, nil", right, err)
	}
}

func TestAngleForRejectsNearAngles(t *testing.T) {
	if _, err := AngleFor("NL"); err == nil {
		t.Fatal("expected error for non-registrable angle NL")
	}
	if _, err := AngleFor("NR"); err == nil {
		t.Fatal("expected error for non-registrable angle NR")
	}
}

func TestValidTokenAuthenticatesOnceAndReusesToken(t *testing.T) {
	authCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			authCalls++
			json.NewEncoder(w).Encode(map[string]any{"token": "tok-1", "expires_in": 3600})
		case "/api/v1/teams":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				t.Fatalf("missing bearer token on authed request")
			}
			json.NewEncoder(w).Encode([]Team{})
		}
	}))
	defer srv.Close()

	a := New(srv.URL, "ops@example.com", "secret")
	a.client = srv.Client()

	if _, err := a.ListTeams(context.Background()); err != nil {
		t.Fatalf("ListTeams() error = %v", err)
	}
	if _, err := a.ListTeams(context.Background()); err != nil {
		t.Fatalf("ListTeams() error = %v", err)
	}
	if authCalls != 1 {
		t.Fatalf("authCalls = %d, want 1 (token should be reused)", authCalls)
	}
}

func TestValidTokenRefreshesNearExpiry(t *testing.T) {
	a := &Adapter{client: http.DefaultClient}
	a.tok = &token{value: "stale", expiry: time.Now().Add(10 * time.Second)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": "fresh", "expires_in": 3600})
	}))
	defer srv.Close()
	a.baseURL = srv.URL
	a.client = srv.Client()

	tok, err := a.validToken(context.Background())
	if err != nil {
		t.Fatalf("validToken() error = %v", err)
	}
	if tok != "fresh" {
		t.Fatalf("validToken() = %q, want a refreshed token", tok)
	}
}

func TestGetGameByCatalogIDReturnsNilOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			json.NewEncoder(w).Encode(map[string]any{"token": "tok", "expires_in": 3600})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := New(srv.URL, "a@b.com", "pw")
	a.client = srv.Client()

	game, err := a.GetGameByCatalogID(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("GetGameByCatalogID() error = %v", err)
	}
	if game != nil {
		t.Fatalf("GetGameByCatalogID() = %+v, want nil", game)
	}
}
