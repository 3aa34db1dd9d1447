// SPDX-License-Identifier: MIT

// Package cache provides the gateway's opaque JSON key/value store (C1 in
// SPEC_FULL.md). Two backends are available — an embedded badger DB and a
// remote Redis store — selected by config.CacheBackend. Every method is
// resilient to I/O errors: failures are logged and degrade to a miss,
// never propagated, so a caching malfunction falls back to pass-through.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/marmadilemanteater/yaytapi-go/internal/config"
)

// Collection namespaces used by the resolvers. Keys within a collection
// encode their own disambiguators (see SPEC_FULL.md §3).
const (
	CollectionPlayer        = "player"
	CollectionNext          = "next"
	CollectionPlaylist      = "playlist"
	CollectionLocalPlaylist = "local-playlist"
)

// Store is the KV cache contract shared by both backends.
type Store interface {
	// Get returns the stored document for (collection, key), or false if
	// absent, malformed, or the backend failed.
	Get(ctx context.Context, collection, key string) (json.RawMessage, bool)
	// Put stores value under (collection, key). I/O errors are logged and
	// swallowed.
	Put(ctx context.Context, collection, key string, value json.RawMessage)
	// Delete removes (collection, key), if present. I/O errors are logged
	// and swallowed.
	Delete(ctx context.Context, collection, key string)
	// Close releases backend resources.
	Close() error
}

// New constructs the Store selected by settings.CacheBackend.
func New(settings config.AppSettings) (Store, error) {
	switch settings.CacheBackend {
	case config.CacheBackendRemoteDocumentStore:
		return NewRedisStore(RedisConfig{Addr: settings.DBConnString})
	case config.CacheBackendLocalEmbedded:
		return NewBadgerStore(settings.DBName)
	default:
		return NewNoOpStore(), nil
	}
}

// GetFresh implements the spec's cache-read wrapper: if
// settings.CacheRequests is false it returns a miss unconditionally;
// otherwise it reads the document and, if its top-level "timestamp" is
// present and stale relative to settings.CacheTimeoutSeconds, evicts it
// and returns a miss.
func GetFresh(ctx context.Context, store Store, collection, key string, settings config.AppSettings) (json.RawMessage, bool) {
	if !settings.CacheRequests {
		return nil, false
	}
	doc, ok := store.Get(ctx, collection, key)
	if !ok {
		return nil, false
	}

	var withTimestamp struct {
		Timestamp *int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(doc, &withTimestamp); err != nil || withTimestamp.Timestamp == nil {
		return doc, true
	}

	age := time.Now().Unix() - *withTimestamp.Timestamp
	if age > settings.CacheTimeoutSeconds {
		store.Delete(ctx, collection, key)
		return nil, false
	}
	return doc, true
}

// Stamp sets the top-level "timestamp" field on an arbitrary JSON document
// to the current Unix time, returning the re-marshaled document. Resolvers
// call this immediately before storing a freshly-fetched payload.
func Stamp(doc json.RawMessage) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	ts, err := json.Marshal(time.Now().Unix())
	if err != nil {
		return nil, err
	}
	m["timestamp"] = ts
	return json.Marshal(m)
}
