// Package media downloads article images into a content-addressed directory.
// Each source URL is fetched at most once per run, however many articles or
// workers ask for it.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Getter downloads a URL. fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

// Asset is one staged media file.
type Asset struct {
	SourceURL   string `json:"source_url"`
	LocalPath   string `json:"local_path"`
	ContentHash string `json:"content_hash"`
	MIME        string `json:"mime"`
	Size        int    `json:"size"`
}

// FetchError reports a single asset that could not be staged. It never fails
// the article the asset belongs to.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("media %s: %v", e.URL, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

type result struct {
	asset Asset
	err   error
}

// Stager owns the source URL to asset mapping for one run.
type Stager struct {
	client Getter
	store  *Store

	group   singleflight.Group
	mu      sync.Mutex
	results map[string]result
	fetches atomic.Int64
}

// NewStager stores files under dir. A relative dir is resolved against the
// working directory so that asset paths stay valid from any other directory,
// such as the one a LaTeX source is compiled in.
func NewStager(client Getter, dir string) *Stager {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Stager{
		client:  client,
		store:   &Store{Dir: dir},
		results: make(map[string]result),
	}
}

// Stage resolves every URL. The returned map is keyed by the URL as given and
// holds only staged assets; failed ones are joined into the error as
// *FetchError values.
func (s *Stager) Stage(ctx context.Context, urls []string) (map[string]Asset, error) {
	out := make(map[string]Asset, len(urls))
	var errs []error
	for _, u := range urls {
		if _, done := out[u]; done {
			continue
		}
		a, err := s.StageOne(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[u] = a
	}
	return out, errors.Join(errs...)
}

// StageOne resolves a single URL. Concurrent calls for the same normalised
// URL share one download, and later calls reuse its outcome.
func (s *Stager) StageOne(ctx context.Context, raw string) (Asset, error) {
	key := Normalize(raw)
	if r, ok := s.lookup(key); ok {
		return r.asset, r.err
	}
	v, _, _ := s.group.Do(key, func() (any, error) {
		if r, ok := s.lookup(key); ok {
			return r, nil
		}
		r := s.download(ctx, key)
		s.mu.Lock()
		s.results[key] = r
		s.mu.Unlock()
		return r, nil
	})
	r := v.(result)
	return r.asset, r.err
}

// Fetches returns how many downloads were attempted.
func (s *Stager) Fetches() int64 { return s.fetches.Load() }

// Assets returns a snapshot of every staged asset keyed by normalised URL.
func (s *Stager) Assets() map[string]Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Asset, len(s.results))
	for k, r := range s.results {
		if r.err == nil {
			out[k] = r.asset
		}
	}
	return out
}

func (s *Stager) lookup(key string) (result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[key]
	return r, ok
}

func (s *Stager) download(ctx context.Context, src string) result {
	s.fetches.Add(1)
	body, _, err := s.client.Get(ctx, src)
	if err != nil {
		log.Warn().Str("url", src).Err(err).Msg("media fetch failed")
		return result{err: &FetchError{URL: src, Err: err}}
	}
	if len(body) == 0 {
		return result{err: &FetchError{URL: src, Err: errors.New("empty body")}}
	}
	p, hash, mime, err := s.store.Put(body)
	if err != nil {
		return result{err: &FetchError{URL: src, Err: err}}
	}
	log.Debug().Str("url", src).Str("path", p).Str("size", humanize.Bytes(uint64(len(body)))).Msg("media staged")
	return result{asset: Asset{SourceURL: src, LocalPath: p, ContentHash: hash, MIME: mime, Size: len(body)}}
}

// Normalize rewrites a media URL to request the original-quality variant:
// the query becomes format=<ext>&name=orig, with the format taken from the
// existing query, else the path extension, else jpg.
func Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	format := u.Query().Get("format")
	if format == "" {
		format = strings.TrimPrefix(path.Ext(u.Path), ".")
	}
	if format == "" {
		format = "jpg"
	}
	q := url.Values{}
	q.Set("format", format)
	q.Set("name", "orig")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// FailedURLs lists the URLs of every *FetchError joined into err.
func FailedURLs(err error) []string {
	if err == nil {
		return nil
	}
	var out []string
	var walk func(error)
	walk = func(e error) {
		if fe, ok := e.(*FetchError); ok {
			out = append(out, fe.URL)
			return
		}
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range j.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}
