// SPDX-License-Identifier: MIT

// Package playlist implements C7, the playlist resolver: page-0 vs
// continuation-token paging over Innertube's browse endpoint, cached and
// parsed into the Invidious playlist shape.
package playlist

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmadilemanteater/yaytapi-go/internal/cache"
	"github.com/marmadilemanteater/yaytapi-go/internal/config"
)

// FetchPlaylistError enumerates the failure classes spec.md §7 describes
// for playlist resolution.
type FetchPlaylistError struct {
	Kind    FetchPlaylistErrorKind
	Message string
	Wrapped error
}

type FetchPlaylistErrorKind int

const (
	ErrKindFailedToFetchPlaylist FetchPlaylistErrorKind = iota
	ErrKindFailedToParsePlaylist
	ErrKindFailedToGenerateContinuation
	ErrKindFailedToFetchContinuation
	ErrKindFailedToParseContinuationResponse
)

func (e *FetchPlaylistError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Wrapped != nil {
		return e.Wrapped.Error()
	}
	return "playlist resolution failed"
}

func (e *FetchPlaylistError) Unwrap() error { return e.Wrapped }

func newErr(kind FetchPlaylistErrorKind, msg string, wrapped error) *FetchPlaylistError {
	return &FetchPlaylistError{Kind: kind, Message: msg, Wrapped: wrapped}
}

// Upstream is the slice of C2 the playlist resolver needs.
type Upstream interface {
	FetchBrowse(ctx context.Context, continuation string, lang string) (json.RawMessage, error)
}

// CacheObserver receives cache hit/miss counts for Prometheus instrumentation.
// Optional: Resolver works without one, metrics simply go unrecorded.
type CacheObserver interface {
	ObserveCacheHit(collection string)
	ObserveCacheMiss(collection string)
}

// Resolver orchestrates C1/C2 to produce paged Invidious playlist JSON.
type Resolver struct {
	store    cache.Store
	upstream Upstream
	metrics  CacheObserver
}

// New creates a playlist Resolver.
func New(store cache.Store, upstream Upstream) *Resolver {
	return &Resolver{store: store, upstream: upstream}
}

// SetMetrics wires a CacheObserver into the Resolver post-construction, so
// existing New(...) call sites don't need a metrics parameter threaded in.
func (r *Resolver) SetMetrics(m CacheObserver) {
	r.metrics = m
}

func (r *Resolver) observeCache(collection string, hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.ObserveCacheHit(collection)
		return
	}
	r.metrics.ObserveCacheMiss(collection)
}

// continuationTokenPrefix marks tokens this gateway minted itself, so
// ParsePlaylistContinuation can recognise and decode them; upstream-minted
// continuation tokens (opaque to us) pass through fetchBrowse unchanged.
const continuationTokenPrefix = "yaytapi:"

// GeneratePlaylistContinuation produces an opaque continuation token for
// playlistID's given page (page >= 1). The inverse, ParsePlaylistContinuation,
// recovers (playlistID, page) from a token this function produced.
func GeneratePlaylistContinuation(playlistID string, page int) string {
	payload := fmt.Sprintf("%s:%d", playlistID, page)
	return continuationTokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParsePlaylistContinuation inverts GeneratePlaylistContinuation.
func ParsePlaylistContinuation(token string) (playlistID string, page int, ok bool) {
	if !strings.HasPrefix(token, continuationTokenPrefix) {
		return "", 0, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, continuationTokenPrefix))
	if err != nil {
		return "", 0, false
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	page, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}
	return parts[0], page, true
}

type browseAlert struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type browseDoc struct {
	Alerts []struct {
		AlertRenderer struct {
			Type string `json:"type"`
			Text struct {
				SimpleText string `json:"simpleText"`
			} `json:"text"`
		} `json:"alertRenderer"`
	} `json:"alerts"`
}

func firstAlert(raw json.RawMessage) (browseAlert, bool) {
	var doc browseDoc
	if err := json.Unmarshal(raw, &doc); err != nil || len(doc.Alerts) == 0 {
		return browseAlert{}, false
	}
	a := doc.Alerts[0].AlertRenderer
	return browseAlert{Type: a.Type, Text: a.Text.SimpleText}, true
}

// Resolve implements spec.md §4.7. page == 0 means "absent" (no ?page=
// query parameter); page < 0 is a caller error the HTTP surface is
// responsible for rejecting before calling Resolve.
func (r *Resolver) Resolve(ctx context.Context, playlistID, lang string, page int, settings config.AppSettings) (json.RawMessage, error) {
	var cacheKey, continuation string
	if page <= 0 {
		cacheKey = playlistID + "-" + lang
		continuation = playlistID
	} else {
		continuation = GeneratePlaylistContinuation(playlistID, page)
		cacheKey = continuation + "-" + lang
	}

	cached, ok := cache.GetFresh(ctx, r.store, cache.CollectionPlaylist, cacheKey, settings)
	r.observeCache(cache.CollectionPlaylist, ok)
	if ok {
		return cached, nil
	}

	raw, err := r.upstream.FetchBrowse(ctx, continuation, lang)
	if err != nil {
		return nil, newErr(ErrKindFailedToFetchContinuation, "", err)
	}

	if alert, ok := firstAlert(raw); ok {
		return nil, newErr(ErrKindFailedToParsePlaylist, alert.Text, errors.New(alert.Type))
	}

	stamped, err := cache.Stamp(raw)
	if err != nil {
		return nil, newErr(ErrKindFailedToParseContinuationResponse, "", err)
	}
	if settings.CacheRequests {
		r.store.Put(ctx, cache.CollectionPlaylist, cacheKey, stamped)
	}
	return stamped, nil
}
