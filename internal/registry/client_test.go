package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/forgefleet/archforge/pkg/logger"
)

// fakeRegistry is an in-memory stand-in for the registry HTTP API.
type fakeRegistry struct {
	mu       sync.Mutex
	username string
	password string
	token    string
	tags     map[string]bool
	attempts []string
}

func makeJWT(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "builder",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test JWT: %v", err)
	}
	return signed
}

func newFakeRegistry(t *testing.T, token string) (*fakeRegistry, *httptest.Server) {
	t.Helper()
	f := &fakeRegistry{
		username: "builder",
		password: "hunter2",
		token:    token,
		tags:     make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Post("/v2/users/login", f.handleLogin)
	r.Delete("/v2/repositories/{owner}/{repo}/tags/{tag}", f.handleDelete)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeRegistry) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, `{"detail": "malformed request"}`, http.StatusBadRequest)
		return
	}
	if creds.Username != f.username || creds.Password != f.password {
		http.Error(w, `{"detail": "incorrect authentication credentials"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": f.token})
}

func (f *fakeRegistry) handleDelete(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo") + ":" + chi.URLParam(r, "tag")

	f.mu.Lock()
	f.attempts = append(f.attempts, ref)
	exists := f.tags[ref]
	if exists {
		delete(f.tags, ref)
	}
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+f.token {
		http.Error(w, `{"detail": "not authorized"}`, http.StatusUnauthorized)
		return
	}
	if !exists {
		http.Error(w, `{"detail": "tag not found"}`, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeRegistry) attemptLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempts...)
}

func TestLoginAndDeleteTag(t *testing.T) {
	fake, server := newFakeRegistry(t, makeJWT(t, time.Now().Add(time.Hour)))
	fake.tags["acme/app:v1-amd64"] = true

	client := NewClient(server.URL, logger.Discard())
	ctx := context.Background()

	if err := client.Login(ctx, "builder", "hunter2"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := client.DeleteTag(ctx, "acme/app", "v1-amd64"); err != nil {
		t.Fatalf("DeleteTag failed: %v", err)
	}

	if fake.tags["acme/app:v1-amd64"] {
		t.Error("tag should be gone after DeleteTag")
	}
}

func TestLoginRejectedCredentials(t *testing.T) {
	_, server := newFakeRegistry(t, makeJWT(t, time.Now().Add(time.Hour)))

	client := NewClient(server.URL, logger.Discard())
	err := client.Login(context.Background(), "builder", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Login = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if apiErr.Op != "login" {
		t.Errorf("Op = %q, want login", apiErr.Op)
	}
}

func TestLoginRejectsExpiredToken(t *testing.T) {
	_, server := newFakeRegistry(t, makeJWT(t, time.Now().Add(-time.Hour)))

	client := NewClient(server.URL, logger.Discard())
	err := client.Login(context.Background(), "builder", "hunter2")
	if err == nil {
		t.Fatal("Login should reject an expired session token")
	}
}

func TestLoginAcceptsOpaqueToken(t *testing.T) {
	_, server := newFakeRegistry(t, "opaque-session-token")

	client := NewClient(server.URL, logger.Discard())
	if err := client.Login(context.Background(), "builder", "hunter2"); err != nil {
		t.Fatalf("opaque tokens carry no expiry to check: %v", err)
	}
}

func TestDeleteTagNotFound(t *testing.T) {
	_, server := newFakeRegistry(t, makeJWT(t, time.Now().Add(time.Hour)))

	client := NewClient(server.URL, logger.Discard())
	ctx := context.Background()
	if err := client.Login(ctx, "builder", "hunter2"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	err := client.DeleteTag(ctx, "acme/app", "no-such-tag")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("DeleteTag = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func TestPruneTagsDeletesInOrder(t *testing.T) {
	fake, server := newFakeRegistry(t, makeJWT(t, time.Now().Add(time.Hour)))
	fake.tags["acme/app:v1-amd64"] = true
	fake.tags["acme/app:v1-arm64v8"] = true

	client := NewClient(server.URL, logger.Discard())
	ctx := context.Background()
	if err := client.Login(ctx, "builder", "hunter2"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	deleted, err := client.PruneTags(ctx, "acme/app", []string{"v1-amd64", "v1-arm64v8"})
	if err != nil {
		t.Fatalf("PruneTags failed: %v", err)
	}
	if len(deleted) != 2 || deleted[0] != "v1-amd64" || deleted[1] != "v1-arm64v8" {
		t.Errorf("deleted = %v", deleted)
	}

	attempts := fake.attemptLog()
	if len(attempts) != 2 || attempts[0] != "acme/app:v1-amd64" || attempts[1] != "acme/app:v1-arm64v8" {
		t.Errorf("attempts = %v", attempts)
	}
}

func TestPruneTagsAbortsOnFirstFailure(t *testing.T) {
	fake, server := newFakeRegistry(t, makeJWT(t, time.Now().Add(time.Hour)))
	fake.tags["acme/app:v1-amd64"] = true
	// v1-arm64v8 missing, v1-armv7 present but must never be attempted.
	fake.tags["acme/app:v1-armv7"] = true

	client := NewClient(server.URL, logger.Discard())
	ctx := context.Background()
	if err := client.Login(ctx, "builder", "hunter2"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	deleted, err := client.PruneTags(ctx, "acme/app", []string{"v1-amd64", "v1-arm64v8", "v1-armv7"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("PruneTags = %v, want APIError", err)
	}
	if len(deleted) != 1 || deleted[0] != "v1-amd64" {
		t.Errorf("deleted = %v, want [v1-amd64]", deleted)
	}

	attempts := fake.attemptLog()
	if len(attempts) != 2 {
		t.Fatalf("attempts = %v, the third tag must never be attempted", attempts)
	}
	if fake.tags["acme/app:v1-armv7"] != true {
		t.Error("tag after the failure should remain")
	}
}
