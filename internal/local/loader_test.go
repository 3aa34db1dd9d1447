// SPDX-License-Identifier: MIT

package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmadilemanteater/yaytapi-go/internal/cache"
	"github.com/marmadilemanteater/yaytapi-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoIDFromReferenceRoundTrip(t *testing.T) {
	cases := []string{
		"https://youtube.com/watch?v=PxeFyxrUWt0",
		"https://youtu.be/PxeFyxrUWt0",
		"PxeFyxrUWt0",
	}
	for _, c := range cases {
		assert.Equal(t, "PxeFyxrUWt0", VideoIDFromReference(c), "input: %s", c)
	}
}

type fakeResolver struct {
	calls int
}

func (f *fakeResolver) ResolvePlayer(ctx context.Context, videoID, lang string, local bool, publicBaseURL string, settings config.AppSettings) (json.RawMessage, error) {
	f.calls++
	doc := map[string]any{
		"videoDetails": map[string]any{
			"title":         "Title for " + videoID,
			"author":        "Some Author",
			"channelId":     "UCxxx",
			"lengthSeconds": "212",
		},
	}
	return json.Marshal(doc)
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLoadAllImportsArrayShapedPlaylist(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "favorites.json"), []byte(`["PxeFyxrUWt0","https://youtu.be/dQw4w9WgXcQ"]`), 0o644))

	store := newTestStore(t)
	resolver := &fakeResolver{}
	settings := config.AppSettings{PlaylistsPath: dir, IPAddress: "127.0.0.1", Port: 8080}

	require.NoError(t, LoadAll(context.Background(), store, resolver, settings))
	assert.Equal(t, 2, resolver.calls)

	raw, ok := store.Get(context.Background(), cache.CollectionLocalPlaylist, "favorites.json")
	require.True(t, ok)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "yaytapi", doc["author"])
	assert.Equal(t, false, doc["isListed"])
	assert.Equal(t, float64(2), doc["videoCount"])
}

func TestLoadAllImportsObjectShapedPlaylist(t *testing.T) {
	dir := t.TempDir()
	body := `{"title":"My Mix","description":"curated","videos":["PxeFyxrUWt0"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mix.json"), []byte(body), 0o644))

	store := newTestStore(t)
	resolver := &fakeResolver{}
	settings := config.AppSettings{PlaylistsPath: dir}

	require.NoError(t, LoadAll(context.Background(), store, resolver, settings))

	raw, ok := store.Get(context.Background(), cache.CollectionLocalPlaylist, "mix.json")
	require.True(t, ok)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "My Mix", doc["title"])
	assert.Equal(t, "curated", doc["description"])
}

func TestLoadAllSkipsAlreadyLoadedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "favorites.json"), []byte(`["PxeFyxrUWt0"]`), 0o644))

	store := newTestStore(t)
	resolver := &fakeResolver{}
	settings := config.AppSettings{PlaylistsPath: dir}

	require.NoError(t, LoadAll(context.Background(), store, resolver, settings))
	require.NoError(t, LoadAll(context.Background(), store, resolver, settings))
	assert.Equal(t, 1, resolver.calls, "second LoadAll must skip the already-imported file")
}

func TestLoadAllNoOpWhenPlaylistsPathEmpty(t *testing.T) {
	store := newTestStore(t)
	resolver := &fakeResolver{}
	require.NoError(t, LoadAll(context.Background(), store, resolver, config.AppSettings{}))
	assert.Equal(t, 0, resolver.calls)
}
