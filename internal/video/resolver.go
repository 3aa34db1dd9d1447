// SPDX-License-Identifier: MIT

// Package video implements C5, the video resolver: it orchestrates the KV
// cache, upstream client, player-script manager, and cipher engine to
// produce a decipher-clean player payload (and its matching next payload)
// for a given (video id, language, local) tuple.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/marmadilemanteater/yaytapi-go/internal/cache"
	"github.com/marmadilemanteater/yaytapi-go/internal/cipher"
	"github.com/marmadilemanteater/yaytapi-go/internal/config"
	"github.com/marmadilemanteater/yaytapi-go/internal/innertube"
	"github.com/marmadilemanteater/yaytapi-go/internal/log"
	"github.com/marmadilemanteater/yaytapi-go/internal/playerscript"
	"golang.org/x/sync/singleflight"
)

// FetchPlayerError is the enum-like taxonomy spec.md §7 describes for
// player-resolution failures, implemented as a comparable sentinel plus a
// wrapped-detail type so callers can both errors.Is against a class and
// recover parse details where present.
type FetchPlayerError struct {
	Kind    FetchPlayerErrorKind
	Detail  string
	Wrapped error
}

// FetchPlayerErrorKind enumerates the distinct failure classes the HTTP
// surface maps to distinct status codes.
type FetchPlayerErrorKind int

const (
	ErrKindTransport FetchPlayerErrorKind = iota
	ErrKindPlayerJSIDNotFound
	ErrKindSignatureTimestampNotFound
	ErrKindFailedToSerializePlayer
	ErrKindResponseUnplayable
	ErrKindLoginRequired
	ErrKindFailedToDecipher
)

func (e *FetchPlayerError) Error() string {
	switch e.Kind {
	case ErrKindLoginRequired:
		return "Login required"
	case ErrKindResponseUnplayable:
		return "Response is unplayable"
	case ErrKindPlayerJSIDNotFound:
		return "Could not locate player.js id"
	case ErrKindSignatureTimestampNotFound:
		return "Could not locate signature timestamp: " + e.Detail
	case ErrKindFailedToSerializePlayer:
		return "Failed to parse player response as json"
	case ErrKindFailedToDecipher:
		return "Failed to decipher stream: " + e.Detail
	default:
		if e.Wrapped != nil {
			return e.Wrapped.Error()
		}
		return "transport error"
	}
}

func (e *FetchPlayerError) Unwrap() error { return e.Wrapped }

func newFetchPlayerError(kind FetchPlayerErrorKind, detail string, wrapped error) *FetchPlayerError {
	return &FetchPlayerError{Kind: kind, Detail: detail, Wrapped: wrapped}
}

// Upstream is the slice of C2 the resolver needs, declared as an
// interface so tests can substitute a fake without hitting the network.
type Upstream interface {
	FetchPlayer(ctx context.Context, videoID string, sigTimestamp int, lang string) (json.RawMessage, error)
	FetchNext(ctx context.Context, videoID string, lang string) (json.RawMessage, error)
}

// Scripts is the slice of C3 the resolver needs.
type Scripts interface {
	Current(ctx context.Context) (scriptSource string, sigTimestamp int, scriptID string, err error)
}

// CacheObserver is the slice of internal/metrics the resolver reports
// cache hits/misses to. Satisfied by *metrics.Metrics.
type CacheObserver interface {
	ObserveCacheHit(collection string)
	ObserveCacheMiss(collection string)
}

// Resolver orchestrates C1-C4 to produce player/next payloads.
type Resolver struct {
	store    cache.Store
	upstream Upstream
	scripts  Scripts
	group    singleflight.Group
	metrics  CacheObserver
}

// New creates a Resolver. upstream should be configured for whichever
// client context settings.UseAndroidEndpoint selects.
func New(store cache.Store, upstream Upstream, scripts Scripts) *Resolver {
	return &Resolver{store: store, upstream: upstream, scripts: scripts}
}

// SetMetrics attaches a cache-hit/miss observer. Optional: a Resolver with
// no observer attached simply skips reporting.
func (r *Resolver) SetMetrics(m CacheObserver) {
	r.metrics = m
}

func (r *Resolver) observeCache(collection string, hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.ObserveCacheHit(collection)
	} else {
		r.metrics.ObserveCacheMiss(collection)
	}
}

func playerCacheKey(videoID, lang string, local bool) string {
	return fmt.Sprintf("%s-%s-%t", videoID, lang, local)
}

// InvalidatePlayer evicts the cached player/{vid}-{lang}-{local} entry.
// Used by /decipher_stream when a deciphered URL probes as a 403, per
// spec.md §7: the stale entry is removed so the next request deciphers
// fresh instead of replaying a dead signatureCipher.
func (r *Resolver) InvalidatePlayer(ctx context.Context, videoID, lang string, local bool) {
	r.store.Delete(ctx, cache.CollectionPlayer, playerCacheKey(videoID, lang, local))
}

func nextCacheKey(videoID, lang string) string {
	return videoID + "-" + lang
}

type playabilityStatus struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
	} `json:"playabilityStatus"`
}

type streamFormat struct {
	URL             string `json:"url,omitempty"`
	SignatureCipher string `json:"signatureCipher,omitempty"`
	Cipher          string `json:"cipher,omitempty"`
}

type streamingData struct {
	StreamingData struct {
		Formats         []streamFormat `json:"formats"`
		AdaptiveFormats []streamFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
}

// ResolvePlayer implements the 8-step state machine in spec.md §4.5.
func (r *Resolver) ResolvePlayer(ctx context.Context, videoID, lang string, local bool, publicBaseURL string, settings config.AppSettings) (json.RawMessage, error) {
	key := playerCacheKey(videoID, lang, local)

	cached, ok := cache.GetFresh(ctx, r.store, cache.CollectionPlayer, key, settings)
	r.observeCache(cache.CollectionPlayer, ok)
	if ok {
		return cached, nil
	}

	v, err, _ := r.group.Do("player:"+key, func() (any, error) {
		return r.resolvePlayerUncached(ctx, videoID, lang, local, publicBaseURL, settings)
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func (r *Resolver) resolvePlayerUncached(ctx context.Context, videoID, lang string, local bool, publicBaseURL string, settings config.AppSettings) (json.RawMessage, error) {
	l := log.WithComponent("video")

	scriptSource, sigTimestamp, scriptID, err := r.scripts.Current(ctx)
	if err != nil {
		switch {
		case errors.Is(err, playerscript.ErrPlayerJSIDNotFound):
			return nil, newFetchPlayerError(ErrKindPlayerJSIDNotFound, "", err)
		case errors.Is(err, playerscript.ErrSignatureTimestampNotFound):
			return nil, newFetchPlayerError(ErrKindSignatureTimestampNotFound, err.Error(), err)
		default:
			return nil, newFetchPlayerError(ErrKindTransport, "", err)
		}
	}

	raw, err := r.upstream.FetchPlayer(ctx, videoID, sigTimestamp, lang)
	if err != nil {
		if errors.Is(err, innertube.ErrFailedToSerialize) {
			return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
		}
		return nil, newFetchPlayerError(ErrKindTransport, "", err)
	}

	var status playabilityStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
	}
	switch status.PlayabilityStatus.Status {
	case "LOGIN_REQUIRED":
		return nil, newFetchPlayerError(ErrKindLoginRequired, "", nil)
	case "ERROR":
		return nil, newFetchPlayerError(ErrKindResponseUnplayable, "", nil)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
	}

	var sd streamingData
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
	}

	needDecipher := firstEntryNeedsDecipher(sd.StreamingData.Formats, sd.StreamingData.AdaptiveFormats)

	allowLocal := local && settings.EnableLocalStreaming

	if needDecipher {
		if settings.DecipherOnVideoEndpoint {
			if err := decipherInPlace(&sd.StreamingData.Formats, scriptSource); err != nil {
				l.Warn().Err(err).Str("video_id", videoID).Msg("failed to decipher formats")
				return nil, newFetchPlayerError(ErrKindFailedToDecipher, err.Error(), err)
			}
			if err := decipherInPlace(&sd.StreamingData.AdaptiveFormats, scriptSource); err != nil {
				l.Warn().Err(err).Str("video_id", videoID).Msg("failed to decipher adaptive formats")
				return nil, newFetchPlayerError(ErrKindFailedToDecipher, err.Error(), err)
			}
		} else {
			rewriteToDecipherLinks(sd.StreamingData.Formats, publicBaseURL, scriptID, videoID, allowLocal)
			rewriteToDecipherLinks(sd.StreamingData.AdaptiveFormats, publicBaseURL, scriptID, videoID, allowLocal)
		}
	} else {
		rewriteDirectLinks(sd.StreamingData.Formats, publicBaseURL, allowLocal)
		rewriteDirectLinks(sd.StreamingData.AdaptiveFormats, publicBaseURL, allowLocal)
	}

	var streamingDataFields map[string]json.RawMessage
	if err := json.Unmarshal(doc["streamingData"], &streamingDataFields); err != nil {
		streamingDataFields = map[string]json.RawMessage{}
	}
	formatsJSON, err := json.Marshal(sd.StreamingData.Formats)
	if err != nil {
		return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
	}
	adaptiveJSON, err := json.Marshal(sd.StreamingData.AdaptiveFormats)
	if err != nil {
		return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
	}
	streamingDataFields["formats"] = formatsJSON
	streamingDataFields["adaptiveFormats"] = adaptiveJSON
	streamingDataJSON, err := json.Marshal(streamingDataFields)
	if err != nil {
		return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
	}
	doc["streamingData"] = streamingDataJSON

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
	}

	stamped, err := cache.Stamp(merged)
	if err != nil {
		return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
	}
	if settings.CacheRequests {
		r.store.Put(ctx, cache.CollectionPlayer, playerCacheKey(videoID, lang, local), stamped)
	}
	return stamped, nil
}

// ResolveNext implements the cache-read/evict/refetch pattern for the
// `next` endpoint, with no post-processing beyond timestamping.
func (r *Resolver) ResolveNext(ctx context.Context, videoID, lang string, settings config.AppSettings) (json.RawMessage, error) {
	key := nextCacheKey(videoID, lang)
	cached, ok := cache.GetFresh(ctx, r.store, cache.CollectionNext, key, settings)
	r.observeCache(cache.CollectionNext, ok)
	if ok {
		return cached, nil
	}

	v, err, _ := r.group.Do("next:"+key, func() (any, error) {
		raw, err := r.upstream.FetchNext(ctx, videoID, lang)
		if err != nil {
			if errors.Is(err, innertube.ErrFailedToSerialize) {
				return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
			}
			return nil, newFetchPlayerError(ErrKindTransport, "", err)
		}
		stamped, err := cache.Stamp(raw)
		if err != nil {
			return nil, newFetchPlayerError(ErrKindFailedToSerializePlayer, "", err)
		}
		if settings.CacheRequests {
			r.store.Put(ctx, cache.CollectionNext, key, stamped)
		}
		return json.RawMessage(stamped), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func firstEntryNeedsDecipher(formats, adaptive []streamFormat) bool {
	if len(formats) > 0 {
		return formats[0].URL == ""
	}
	if len(adaptive) > 0 {
		return adaptive[0].URL == ""
	}
	return false
}

func decipherInPlace(formats *[]streamFormat, scriptSource string) error {
	ciphers := make([]string, len(*formats))
	for i, f := range *formats {
		ciphers[i] = f.SignatureCipher
		if ciphers[i] == "" {
			ciphers[i] = f.Cipher
		}
	}
	urls, err := cipher.DecipherStreams(ciphers, scriptSource)
	if err != nil {
		return err
	}
	for i := range *formats {
		if (*formats)[i].URL != "" || i >= len(urls) || urls[i] == "" {
			continue
		}
		(*formats)[i].URL = urls[i]
		(*formats)[i].SignatureCipher = ""
		(*formats)[i].Cipher = ""
	}
	return nil
}

func rewriteToDecipherLinks(formats []streamFormat, publicBaseURL, scriptID, videoID string, allowLocal bool) {
	for i := range formats {
		if formats[i].URL != "" {
			continue
		}
		sigCipher := formats[i].SignatureCipher
		if sigCipher == "" {
			sigCipher = formats[i].Cipher
		}
		q := url.Values{}
		q.Set("signature_cipher", sigCipher)
		q.Set("player_js_id", scriptID)
		q.Set("video_id", videoID)
		q.Set("local", fmt.Sprintf("%t", allowLocal))
		formats[i].URL = strings.TrimRight(publicBaseURL, "/") + "/decipher_stream?" + q.Encode()
		formats[i].SignatureCipher = ""
		formats[i].Cipher = ""
	}
}

func rewriteDirectLinks(formats []streamFormat, publicBaseURL string, allowLocal bool) {
	for i := range formats {
		origin, pathAndQuery, ok := splitGooglevideoURL(formats[i].URL)
		if !ok {
			continue
		}
		sep := "?"
		if strings.Contains(pathAndQuery, "?") {
			sep = "&"
		}
		formats[i].URL = fmt.Sprintf("%s%s%shost=%s&local=%t",
			strings.TrimRight(publicBaseURL, "/"), pathAndQuery, sep, url.QueryEscape(origin), allowLocal)
	}
}

// splitGooglevideoURL recovers {originHost, pathAndQuery} by splitting the
// origin URL at the literal "googlevideo.com" marker, per spec.md §4.5
// step 7.
func splitGooglevideoURL(raw string) (origin, pathAndQuery string, ok bool) {
	const marker = "googlevideo.com"
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return "", "", false
	}
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		return "", "", false
	}
	hostStart := schemeEnd + 3
	rest := raw[idx+len(marker):]
	origin = raw[hostStart : idx+len(marker)]
	return origin, rest, true
}
