package services

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/studyctl/internal/shared"
)

// CookieFile is the name of the persisted cookie file inside the state directory.
const CookieFile = "cookies.json"

// Session holds the connection state shared by the REST and streaming clients.
type Session struct {
	baseURL    *url.URL
	header     http.Header
	httpClient *http.Client
	cookiePath string
	hasToken   bool
	logger     *log.Logger

	mu  sync.Mutex
	jar *cookiejar.Jar
}

// SessionOptions configures [NewSession].
type SessionOptions struct {
	BaseURL string
	// Token, when set, is sent as a bearer token on every request.
	Token string
	// CookiePath is where cookies are persisted. Empty disables persistence.
	CookiePath string
	// Transport overrides the base round tripper, mainly for tests.
	Transport http.RoundTripper
	Header    http.Header
}

// NewSession creates a [Session] and restores any persisted cookies.
func NewSession(opts SessionOptions, logger *log.Logger) (*Session, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", shared.ErrInvalidConfig, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url must be http or https, got %q", shared.ErrInvalidConfig, opts.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("%w: base url must have a host, got %q", shared.ErrInvalidConfig, opts.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
			Base:   transport,
		}
	}

	header := opts.Header
	if header == nil {
		header = http.Header{}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	s := &Session{
		baseURL:    base,
		header:     header,
		cookiePath: opts.CookiePath,
		hasToken:   opts.Token != "",
		logger:     logger,
		jar:        jar,
	}
	s.httpClient = &http.Client{Transport: transport, Jar: s}

	if s.cookiePath != "" {
		cookies, err := shared.LoadCookies(s.cookiePath)
		if err != nil {
			logger.Warn("ignoring unreadable cookie file", "path", s.cookiePath, "error", err)
		} else if len(cookies) > 0 {
			jar.SetCookies(base, cookies)
			logger.Debug("restored session cookies", "count", len(cookies))
		}
	}

	return s, nil
}

// SetCookies implements [http.CookieJar] over the current jar.
func (s *Session) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.Lock()
	jar := s.jar
	s.mu.Unlock()
	jar.SetCookies(u, cookies)
}

// Cookies implements [http.CookieJar] over the current jar.
func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	s.mu.Lock()
	jar := s.jar
	s.mu.Unlock()
	return jar.Cookies(u)
}

// HTTPClient returns the client shared by REST and streaming requests.
func (s *Session) HTTPClient() *http.Client {
	return s.httpClient
}

// Header returns the default headers added to every request.
func (s *Session) Header() http.Header {
	return s.header
}

// BaseURL returns the backend base URL without a trailing slash.
func (s *Session) BaseURL() string {
	return s.baseURL.String()
}

// URL joins path onto the base URL.
func (s *Session) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.BaseURL() + path
}

// Authenticated reports whether the session carries credentials: an API token or session cookies.
func (s *Session) Authenticated() bool {
	return s.hasToken || len(s.Cookies(s.baseURL)) > 0
}

// Save persists the session cookies.
func (s *Session) Save() error {
	if s.cookiePath == "" {
		return nil
	}

	cookies := s.Cookies(s.baseURL)
	for _, c := range cookies {
		c.Path = "/"
	}
	return shared.SaveCookies(s.cookiePath, cookies)
}

// Clear drops all cookies from memory and disk.
func (s *Session) Clear() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}

	s.mu.Lock()
	s.jar = jar
	s.mu.Unlock()

	if s.cookiePath == "" {
		return nil
	}
	return shared.ClearCookies(s.cookiePath)
}
