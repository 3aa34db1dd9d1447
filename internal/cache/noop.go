// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
)

// noOpStore is used when config.CacheBackend is CacheBackendNone or the
// CLI's --no-cache flag is set via AppSettings.CacheRequests=false at the
// GetFresh layer; it never stores anything.
type noOpStore struct{}

// NewNoOpStore creates a cache that never stores or returns anything.
func NewNoOpStore() Store {
	return &noOpStore{}
}

func (noOpStore) Get(ctx context.Context, collection, key string) (json.RawMessage, bool) {
	return nil, false
}
func (noOpStore) Put(ctx context.Context, collection, key string, value json.RawMessage) {}
func (noOpStore) Delete(ctx context.Context, collection, key string)                     {}
func (noOpStore) Close() error                                                           { return nil }
