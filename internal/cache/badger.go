// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"
	"github.com/marmadilemanteater/yaytapi-go/internal/log"
)

// BadgerStore is the LocalEmbedded backend: an on-disk badger DB. Keys are
// encoded as "{collection}-{key}" exactly as SPEC_FULL.md §4.1 describes,
// grounded on the teacher's internal/v3/store.BadgerStore wrapper.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (creating if absent) a badger DB at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func encodeKey(collection, key string) []byte {
	return []byte(collection + "-" + key)
}

func (s *BadgerStore) Get(ctx context.Context, collection, key string) (json.RawMessage, bool) {
	l := log.WithComponent("cache.badger")
	var out json.RawMessage
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(collection, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append(json.RawMessage(nil), val...)
			return nil
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			l.Warn().Err(err).Str("collection", collection).Str("key", key).Msg("badger get failed")
		}
		return nil, false
	}
	if !json.Valid(out) {
		l.Warn().Str("collection", collection).Str("key", key).Msg("badger value is not valid json")
		return nil, false
	}
	return out, true
}

func (s *BadgerStore) Put(ctx context.Context, collection, key string, value json.RawMessage) {
	l := log.WithComponent("cache.badger")
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(collection, key), value)
	})
	if err != nil {
		l.Warn().Err(err).Str("collection", collection).Str("key", key).Msg("badger put failed")
	}
}

func (s *BadgerStore) Delete(ctx context.Context, collection, key string) {
	l := log.WithComponent("cache.badger")
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(encodeKey(collection, key))
	})
	if err != nil && err != badger.ErrKeyNotFound {
		l.Warn().Err(err).Str("collection", collection).Str("key", key).Msg("badger delete failed")
	}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
