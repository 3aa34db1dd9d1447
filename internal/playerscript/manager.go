// SPDX-License-Identifier: MIT

// Package playerscript implements C3, the player-script manager: it keeps
// the gateway's view of YouTube's currently published player.js (and the
// signature timestamp the cipher routine embedded in it expects) in sync
// with upstream, storing the generation atomically in the KV cache.
package playerscript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/marmadilemanteater/yaytapi-go/internal/cache"
	"github.com/marmadilemanteater/yaytapi-go/internal/innertube"
	"github.com/marmadilemanteater/yaytapi-go/internal/log"
)

// Errors surfaced by Current, mirroring spec.md §4.3's failure modes.
var (
	ErrPlayerJSIDNotFound         = errors.New("playerscript: player.js id not found")
	ErrSignatureTimestampNotFound = errors.New("playerscript: signature timestamp not found in player.js")
)

const (
	idKey        = "player.js-id"
	stsKey       = "signature_timestamp"
	scriptPrefix = "player.js-"
)

// signatureTimestampPattern extracts the integer YouTube's player.js embeds
// as `signatureTimestamp:NNNNN` (or the legacy `sts:NNNNN` key used by older
// generations), the same kind of single-purpose regex scan
// ytget-ytdlp/youtube/cipher/regex.go applies against raw player.js text.
var signatureTimestampPattern = regexp.MustCompile(`(?:signatureTimestamp|sts)\s*[:=]\s*(\d+)`)

// Upstream is the slice of the C2 Innertube client that C3 needs. Declared
// as an interface here (rather than depending on *innertube.Client
// directly) so tests can substitute a fake without hitting the network.
type Upstream interface {
	FetchPlayerJS(ctx context.Context) (id string, source []byte, err error)
}

// Manager owns the current player.js generation for the gateway instance.
type Manager struct {
	upstream Upstream
	store    cache.Store
}

// New creates a Manager backed by the given upstream client and cache store.
func New(upstream Upstream, store cache.Store) *Manager {
	return &Manager{upstream: upstream, store: store}
}

// Current implements the protocol in spec.md §4.3 steps 1-4: ask upstream
// for the live player.js id, compare against the cached generation, and
// refresh all three cache entries together if it has rotated.
func (m *Manager) Current(ctx context.Context) (scriptSource string, sigTimestamp int, scriptID string, err error) {
	l := log.WithComponent("playerscript")

	upstreamID, source, err := m.upstream.FetchPlayerJS(ctx)
	if err != nil {
		if errors.Is(err, innertube.ErrPlayerJSIDNotFound) {
			return "", 0, "", ErrPlayerJSIDNotFound
		}
		return "", 0, "", fmt.Errorf("playerscript: fetching player.js: %w", err)
	}

	cachedID, hit := m.store.Get(ctx, cache.CollectionPlayer, idKey)
	dirty := !hit || string(cachedID) != strconv.Quote(upstreamID)

	if !dirty {
		return m.loadCached(ctx, upstreamID)
	}

	l.Info().Str("id", upstreamID).Msg("player.js generation rotated, refreshing")

	sts, err := extractSignatureTimestamp(source)
	if err != nil {
		return "", 0, "", err
	}

	m.writeGeneration(ctx, upstreamID, source, sts)
	return string(source), sts, upstreamID, nil
}

// Pinned returns the script source and signature timestamp for an explicit
// scriptId, without mutating the canonical current-generation cache
// entries. /decipher_stream uses this to pin the exact generation that
// produced an already-issued stream URL.
func (m *Manager) Pinned(ctx context.Context, scriptID string) (scriptSource string, sigTimestamp int, err error) {
	raw, hit := m.store.Get(ctx, cache.CollectionPlayer, scriptPrefix+scriptID)
	if !hit {
		return "", 0, ErrPlayerJSIDNotFound
	}
	var source string
	if err := json.Unmarshal(raw, &source); err != nil {
		return "", 0, ErrPlayerJSIDNotFound
	}

	stsRaw, hit := m.store.Get(ctx, cache.CollectionPlayer, stsKey)
	if !hit {
		return "", 0, ErrSignatureTimestampNotFound
	}
	var sts int
	if err := json.Unmarshal(stsRaw, &sts); err != nil {
		return "", 0, ErrSignatureTimestampNotFound
	}
	return source, sts, nil
}

func (m *Manager) loadCached(ctx context.Context, scriptID string) (string, int, string, error) {
	srcRaw, hit := m.store.Get(ctx, cache.CollectionPlayer, scriptPrefix+scriptID)
	if !hit {
		return "", 0, "", ErrPlayerJSIDNotFound
	}
	var source string
	if err := json.Unmarshal(srcRaw, &source); err != nil {
		return "", 0, "", ErrPlayerJSIDNotFound
	}

	stsRaw, hit := m.store.Get(ctx, cache.CollectionPlayer, stsKey)
	if !hit {
		return "", 0, "", ErrSignatureTimestampNotFound
	}
	var sts int
	if err := json.Unmarshal(stsRaw, &sts); err != nil {
		return "", 0, "", ErrSignatureTimestampNotFound
	}

	return source, sts, scriptID, nil
}

// writeGeneration deletes then rewrites the three singleton cache entries
// together, per spec.md §4.3's "one logical write" invariant.
func (m *Manager) writeGeneration(ctx context.Context, scriptID string, source []byte, sts int) {
	m.store.Delete(ctx, cache.CollectionPlayer, idKey)
	m.store.Delete(ctx, cache.CollectionPlayer, scriptPrefix+scriptID)
	m.store.Delete(ctx, cache.CollectionPlayer, stsKey)

	idJSON, _ := json.Marshal(scriptID)
	sourceJSON, _ := json.Marshal(string(source))
	stsJSON, _ := json.Marshal(sts)

	m.store.Put(ctx, cache.CollectionPlayer, idKey, idJSON)
	m.store.Put(ctx, cache.CollectionPlayer, scriptPrefix+scriptID, sourceJSON)
	m.store.Put(ctx, cache.CollectionPlayer, stsKey, stsJSON)
}

func extractSignatureTimestamp(source []byte) (int, error) {
	m := signatureTimestampPattern.FindSubmatch(source)
	if m == nil {
		return 0, ErrSignatureTimestampNotFound
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSignatureTimestampNotFound, err)
	}
	return n, nil
}
