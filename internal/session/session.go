// Package session loads a persisted browser authentication state so that
// page drivers can reach content behind a login wall.
package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookie mirrors one entry of a storage-state file as written by common
// browser automation tools.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// Expiry returns the cookie expiry, or the zero time for session cookies.
func (c Cookie) Expiry() time.Time {
	if c.Expires <= 0 {
		return time.Time{}
	}
	sec := int64(c.Expires)
	return time.Unix(sec, 0).UTC()
}

type storageState struct {
	Cookies []Cookie          `json:"cookies"`
	Origins []json.RawMessage `json:"origins"`
}

// Session is an opaque authentication handle. The zero value is an anonymous
// session with access to public content only.
type Session struct {
	Path    string
	Cookies []Cookie
}

// Anonymous returns a session without credentials.
func Anonymous() *Session { return &Session{} }

// Load reads a storage-state JSON file. An empty path yields an anonymous
// session.
func Load(path string) (*Session, error) {
	if strings.TrimSpace(path) == "" {
		return Anonymous(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage state: %w", err)
	}
	var st storageState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("parse storage state %s: %w", path, err)
	}
	now := time.Now()
	live := make([]Cookie, 0, len(st.Cookies))
	for _, c := range st.Cookies {
		if c.Name == "" {
			continue
		}
		if exp := c.Expiry(); !exp.IsZero() && exp.Before(now) {
			continue
		}
		live = append(live, c)
	}
	return &Session{Path: path, Cookies: live}, nil
}

// Authenticated reports whether the session carries any credentials.
func (s *Session) Authenticated() bool {
	return s != nil && len(s.Cookies) > 0
}

// Jar builds an HTTP cookie jar preloaded with the session cookies.
func (s *Session) Jar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if s == nil {
		return jar, nil
	}
	byHost := map[string][]*http.Cookie{}
	for _, c := range s.Cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if exp := c.Expiry(); !exp.IsZero() {
			hc.Expires = exp
		}
		byHost[host] = append(byHost[host], hc)
	}
	for host, cookies := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, cookies)
	}
	return jar, nil
}
