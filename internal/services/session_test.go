package services

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/desertthunder/studyctl/internal/shared"
)

func TestSession(t *testing.T) {
	t.Run("Invalid BaseURL", func(t *testing.T) {
		for _, base := range []string{"localhost:8010", "ftp://example.com", "http://"} {
			if _, err := NewSession(SessionOptions{BaseURL: base}, nil); err == nil {
				t.Errorf("expected error for base url %q", base)
			}
		}
	})

	t.Run("URL", func(t *testing.T) {
		s, err := NewSession(SessionOptions{BaseURL: "http://localhost:8010/"}, shared.NewLogger(io.Discard))
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		if got := s.URL("api/me/"); got != "http://localhost:8010/api/me/" {
			t.Errorf("URL() = %s", got)
		}
		if s.Authenticated() {
			t.Error("new session without token or cookies should not be authenticated")
		}
	})

	t.Run("Persisted Cookies", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), CookieFile)
		base := "http://127.0.0.1:8010"

		first, err := NewSession(SessionOptions{BaseURL: base, CookiePath: path}, shared.NewLogger(io.Discard))
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		u, _ := url.Parse(base)
		first.SetCookies(u, []*http.Cookie{{Name: "access_token", Value: "abc", Path: "/"}})
		if err := first.Save(); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		second, err := NewSession(SessionOptions{BaseURL: base, CookiePath: path}, shared.NewLogger(io.Discard))
		if err != nil {
			t.Fatalf("failed to create second session: %v", err)
		}

		cookies := second.Cookies(u)
		if len(cookies) != 1 || cookies[0].Value != "abc" {
			t.Fatalf("expected restored cookie, got %v", cookies)
		}

		if err := second.Clear(); err != nil {
			t.Fatalf("failed to clear session: %v", err)
		}
		if second.Authenticated() {
			t.Error("expected cleared session to be unauthenticated")
		}
	})

	t.Run("Bearer Token", func(t *testing.T) {
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
		}))
		defer server.Close()

		s, err := NewSession(SessionOptions{BaseURL: server.URL, Token: "t0k"}, shared.NewLogger(io.Discard))
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		resp, err := s.HTTPClient().Get(s.URL("/api/me/"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if auth != "Bearer t0k" {
			t.Errorf("expected bearer token header, got %q", auth)
		}
		if !s.Authenticated() {
			t.Error("expected token session to be authenticated")
		}
	})
}
