package store

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/layer-3/mercuria/core"
	"golang.org/x/net/publicsuffix"
)

// CookieOptions controls the attributes written with every cookie.
type CookieOptions struct {
	// HTTPOnly hides the cookie from page scripts when the jar is mirrored into a
	// browser context.
	HTTPOnly bool

	// OnWrite observes every Set-Cookie equivalent the store performs.
	OnWrite func(c *http.Cookie)
}

// CookieStore keeps credentials in an HTTP cookie jar scoped to the
// application origin: Path=/, Secure, SameSite=Strict.
type CookieStore struct {
	jar    http.CookieJar
	origin *url.URL
	opts   CookieOptions
}

// NewCookieJar creates a jar that honours public suffix boundaries.
func NewCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// NewCookieStore creates a store writing into jar for origin. The origin must
// be https, otherwise the jar never returns Secure cookies.
func NewCookieStore(jar http.CookieJar, origin string, opts CookieOptions) (*CookieStore, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie origin: %w", err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("cookie origin %q must use https", origin)
	}
	u.Path = "/"

	return &CookieStore{jar: jar, origin: u, opts: opts}, nil
}

// Set writes a persistent cookie expiring after ttl
func (s *CookieStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c := s.cookie(key, url.QueryEscape(value))
	c.Expires = time.Now().Add(ttl).UTC()
	c.MaxAge = int(ttl / time.Second)
	s.write(c)
	return nil
}

// Get reads the cookie back from the jar
func (s *CookieStore) Get(ctx context.Context, key string) (string, error) {
	for _, c := range s.jar.Cookies(s.origin) {
		if c.Name != key {
			continue
		}
		value, err := url.QueryUnescape(c.Value)
		if err != nil {
			return "", fmt.Errorf("failed to decode cookie %s: %w", key, err)
		}
		return value, nil
	}
	return "", core.ErrCredentialNotFound
}

// Delete expires the cookie immediately
func (s *CookieStore) Delete(ctx context.Context, key string) error {
	c := s.cookie(key, "")
	c.Expires = time.Unix(0, 0).UTC()
	c.MaxAge = -1
	s.write(c)
	return nil
}

func (s *CookieStore) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   true,
		HttpOnly: s.opts.HTTPOnly,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *CookieStore) write(c *http.Cookie) {
	s.jar.SetCookies(s.origin, []*http.Cookie{c})
	if s.opts.OnWrite != nil {
		s.opts.OnWrite(c)
	}
}
