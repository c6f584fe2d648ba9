package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newSessionServer fakes the platform's session endpoints plus one
// protected resource that requires the session cookie.
func newSessionServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()

	logoutCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var creds loginRequest
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if creds.Username != "admin" || creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":["invalid credentials"]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-abc"})
	})
	mux.HandleFunc("/api/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		logoutCalls++
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value != "tok-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &logoutCalls
}

func TestLogin_IssuesSession(t *testing.T) {
	server, _ := newSessionServer(t)

	c, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	session, err := c.Login(context.Background(), "admin", "secret")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if session.Token() != "tok-abc" {
		t.Errorf("Token = %q, want tok-abc", session.Token())
	}

	// The session's requests must carry the cookie.
	resp, err := session.Do(context.Background(), &Request{Path: "/api/v1/users"})
	if err != nil {
		t.Fatalf("Session Do() failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	server, _ := newSessionServer(t)

	c, _ := New(Config{BaseURL: server.URL})
	_, err := c.Login(context.Background(), "admin", "wrong")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
}

func TestLogin_EmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":""}`))
	}))
	defer server.Close()

	c, _ := New(Config{BaseURL: server.URL})
	if _, err := c.Login(context.Background(), "admin", "secret"); err == nil {
		t.Error("Expected an error when the login response carries no token")
	}
}

func TestLogout_ClosesSession(t *testing.T) {
	server, logoutCalls := newSessionServer(t)

	c, _ := New(Config{BaseURL: server.URL})
	session, err := c.Login(context.Background(), "admin", "secret")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	if *logoutCalls != 1 {
		t.Errorf("Logout calls = %d, want 1", *logoutCalls)
	}

	// Further use fails locally, without a network call.
	if _, err := session.Do(context.Background(), &Request{Path: "/api/v1/users"}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}

	// Logout is idempotent once closed.
	if err := session.Logout(context.Background()); err != nil {
		t.Errorf("Second Logout() = %v, want nil", err)
	}
	if *logoutCalls != 1 {
		t.Errorf("Logout calls after repeat = %d, want 1", *logoutCalls)
	}
}

func TestWithToken(t *testing.T) {
	server, _ := newSessionServer(t)

	c, _ := New(Config{BaseURL: server.URL})
	session := c.WithToken("tok-abc")

	resp, err := session.Do(context.Background(), &Request{Path: "/api/v1/users"})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
}
