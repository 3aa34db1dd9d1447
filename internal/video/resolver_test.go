// SPDX-License-Identifier: MIT

package video

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/marmadilemanteater/yaytapi-go/internal/cache"
	"github.com/marmadilemanteater/yaytapi-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlayerJS = `
var Zx = {
  aa: function(a) { a.reverse(); },
  bb: function(a,b) { var c=a[0]; a[0]=a[b%a.length]; a[b%a.length]=c; }
};
function xyz(s) {
  s = s.split("");
  Zx.bb(s,3);
  Zx.aa(s);
  return s.join("");
}
`

type fakeUpstream struct {
	playerCalls int
	nextCalls   int
	playerJSON  string
	nextJSON    string
}

func (f *fakeUpstream) FetchPlayer(ctx context.Context, videoID string, sigTimestamp int, lang string) (json.RawMessage, error) {
	f.playerCalls++
	return json.RawMessage(f.playerJSON), nil
}

func (f *fakeUpstream) FetchNext(ctx context.Context, videoID string, lang string) (json.RawMessage, error) {
	f.nextCalls++
	return json.RawMessage(f.nextJSON), nil
}

type fakeScripts struct {
	source string
	sts    int
	id     string
}

func (f *fakeScripts) Current(ctx context.Context) (string, int, string, error) {
	return f.source, f.sts, f.id, nil
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func settingsWith(overrides func(*config.AppSettings)) config.AppSettings {
	s := config.AppSettings{
		CacheRequests:           true,
		CacheTimeoutSeconds:     60,
		EnableLocalStreaming:    true,
		DecipherOnVideoEndpoint: false,
	}
	if overrides != nil {
		overrides(&s)
	}
	return s
}

func TestResolvePlayerRewritesToDecipherLinksByDefault(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{playerJSON: `{"playabilityStatus":{"status":"OK"},"streamingData":{"formats":[{"signatureCipher":"s=abcdefgh&sp=sig&url=https%3A%2F%2Fr1.googlevideo.com%2Fvideoplayback%3Fitag%3D18"}],"adaptiveFormats":[]}}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 19876, id: "player123"}
	r := New(store, up, scripts)

	out, err := r.ResolvePlayer(context.Background(), "dQw4w9WgXcQ", "en", false, "https://gateway.example", settingsWith(nil))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	sd := doc["streamingData"].(map[string]any)
	formats := sd["formats"].([]any)
	require.Len(t, formats, 1)
	u := formats[0].(map[string]any)["url"].(string)
	assert.Contains(t, u, "https://gateway.example/decipher_stream?")
	assert.Contains(t, u, "video_id=dQw4w9WgXcQ")
	assert.Contains(t, u, "player_js_id=player123")
}

func TestResolvePlayerDeciphersInPlaceWhenConfigured(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{playerJSON: `{"playabilityStatus":{"status":"OK"},"streamingData":{"formats":[{"signatureCipher":"s=abcdefgh&sp=sig&url=https%3A%2F%2Fr1.googlevideo.com%2Fvideoplayback%3Fitag%3D18"}],"adaptiveFormats":[]}}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 19876, id: "player123"}
	r := New(store, up, scripts)

	out, err := r.ResolvePlayer(context.Background(), "dQw4w9WgXcQ", "en", false, "https://gateway.example",
		settingsWith(func(s *config.AppSettings) { s.DecipherOnVideoEndpoint = true }))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	sd := doc["streamingData"].(map[string]any)
	formats := sd["formats"].([]any)
	u := formats[0].(map[string]any)["url"].(string)
	assert.Contains(t, u, "googlevideo.com")
	assert.NotContains(t, u, "/decipher_stream")
}

func TestResolvePlayerNoDecipherNeededRewritesToLocalHost(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{playerJSON: `{"playabilityStatus":{"status":"OK"},"streamingData":{"formats":[{"url":"https://r1.googlevideo.com/videoplayback?itag=18"}],"adaptiveFormats":[]}}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 1, id: "p1"}
	r := New(store, up, scripts)

	out, err := r.ResolvePlayer(context.Background(), "vid1", "en", true, "https://gateway.example", settingsWith(nil))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	sd := doc["streamingData"].(map[string]any)
	formats := sd["formats"].([]any)
	u := formats[0].(map[string]any)["url"].(string)
	assert.True(t, len(u) > 0)
	assert.Contains(t, u, "https://gateway.example/videoplayback")
	assert.Contains(t, u, "local=true")
	assert.Contains(t, u, "host=")
}

func TestResolvePlayerCachesAndSkipsUpstreamOnSecondCall(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{playerJSON: `{"playabilityStatus":{"status":"OK"},"streamingData":{"formats":[],"adaptiveFormats":[]}}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 1, id: "p1"}
	r := New(store, up, scripts)
	settings := settingsWith(nil)

	out1, err := r.ResolvePlayer(context.Background(), "vid1", "en", false, "https://gateway.example", settings)
	require.NoError(t, err)
	require.Equal(t, 1, up.playerCalls)

	out2, err := r.ResolvePlayer(context.Background(), "vid1", "en", false, "https://gateway.example", settings)
	require.NoError(t, err)
	assert.Equal(t, 1, up.playerCalls, "second call within cacheTimeout must not hit upstream")
	assert.JSONEq(t, string(out1), string(out2))
}

type fakeCacheObserver struct {
	hits   map[string]int
	misses map[string]int
}

func newFakeCacheObserver() *fakeCacheObserver {
	return &fakeCacheObserver{hits: map[string]int{}, misses: map[string]int{}}
}

func (f *fakeCacheObserver) ObserveCacheHit(collection string)  { f.hits[collection]++ }
func (f *fakeCacheObserver) ObserveCacheMiss(collection string) { f.misses[collection]++ }

func TestResolvePlayerReportsCacheHitAndMiss(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{playerJSON: `{"playabilityStatus":{"status":"OK"},"streamingData":{"formats":[],"adaptiveFormats":[]}}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 1, id: "p1"}
	r := New(store, up, scripts)
	obs := newFakeCacheObserver()
	r.SetMetrics(obs)
	settings := settingsWith(nil)

	_, err := r.ResolvePlayer(context.Background(), "vid1", "en", false, "https://gateway.example", settings)
	require.NoError(t, err)
	assert.Equal(t, 1, obs.misses[cache.CollectionPlayer])
	assert.Equal(t, 0, obs.hits[cache.CollectionPlayer])

	_, err = r.ResolvePlayer(context.Background(), "vid1", "en", false, "https://gateway.example", settings)
	require.NoError(t, err)
	assert.Equal(t, 1, obs.misses[cache.CollectionPlayer])
	assert.Equal(t, 1, obs.hits[cache.CollectionPlayer])
}

func TestDecipherInPlaceSkipsEntriesThatFailToDecipher(t *testing.T) {
	formats := []streamFormat{
		{SignatureCipher: "s=abcdefgh&sp=sig&url=https%3A%2F%2Fr1.googlevideo.com%2Fvideoplayback%3Fitag%3D18"},
		{SignatureCipher: "s=abcdefgh&sp=sig"}, // missing url, fails to decipher
	}
	err := decipherInPlace(&formats, samplePlayerJS)
	require.NoError(t, err)

	assert.Contains(t, formats[0].URL, "googlevideo.com")
	assert.Empty(t, formats[0].SignatureCipher)

	assert.Empty(t, formats[1].URL)
	assert.Equal(t, "s=abcdefgh&sp=sig", formats[1].SignatureCipher)
}

func TestResolvePlayerLocalTrueAndFalseDoNotCollide(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{playerJSON: `{"playabilityStatus":{"status":"OK"},"streamingData":{"formats":[{"url":"https://r1.googlevideo.com/videoplayback?itag=18"}],"adaptiveFormats":[]}}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 1, id: "p1"}
	r := New(store, up, scripts)
	settings := settingsWith(nil)

	outLocal, err := r.ResolvePlayer(context.Background(), "vidX", "en", true, "https://gateway.example", settings)
	require.NoError(t, err)
	outRemote, err := r.ResolvePlayer(context.Background(), "vidX", "en", false, "https://gateway.example", settings)
	require.NoError(t, err)
	assert.Equal(t, 2, up.playerCalls, "local and non-local must be separate cache entries")
	assert.NotEqual(t, string(outLocal), string(outRemote))
}

func TestResolvePlayerLoginRequired(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{playerJSON: `{"playabilityStatus":{"status":"LOGIN_REQUIRED"}}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 1, id: "p1"}
	r := New(store, up, scripts)

	_, err := r.ResolvePlayer(context.Background(), "vid1", "en", false, "https://gateway.example", settingsWith(nil))
	require.Error(t, err)
	var fpe *FetchPlayerError
	require.ErrorAs(t, err, &fpe)
	assert.Equal(t, ErrKindLoginRequired, fpe.Kind)
}

func TestResolvePlayerResponseUnplayable(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{playerJSON: `{"playabilityStatus":{"status":"ERROR"}}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 1, id: "p1"}
	r := New(store, up, scripts)

	_, err := r.ResolvePlayer(context.Background(), "vid1", "en", false, "https://gateway.example", settingsWith(nil))
	require.Error(t, err)
	var fpe *FetchPlayerError
	require.ErrorAs(t, err, &fpe)
	assert.Equal(t, ErrKindResponseUnplayable, fpe.Kind)
}

func TestResolveNextCachesResult(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{nextJSON: `{"contents":"x"}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 1, id: "p1"}
	r := New(store, up, scripts)
	settings := settingsWith(nil)

	_, err := r.ResolveNext(context.Background(), "vid1", "en", settings)
	require.NoError(t, err)
	_, err = r.ResolveNext(context.Background(), "vid1", "en", settings)
	require.NoError(t, err)
	assert.Equal(t, 1, up.nextCalls)
}

func TestEmptyFormatsAndAdaptiveFormatsIsNotAnError(t *testing.T) {
	store := newTestStore(t)
	up := &fakeUpstream{playerJSON: `{"playabilityStatus":{"status":"OK"},"streamingData":{"formats":[],"adaptiveFormats":[]}}`}
	scripts := &fakeScripts{source: samplePlayerJS, sts: 1, id: "p1"}
	r := New(store, up, scripts)

	_, err := r.ResolvePlayer(context.Background(), "vid1", "en", false, "https://gateway.example", settingsWith(nil))
	require.NoError(t, err)
}

func TestSplitGooglevideoURL(t *testing.T) {
	origin, pathAndQuery, ok := splitGooglevideoURL("https://r1---sn-abc.googlevideo.com/videoplayback?itag=18&foo=bar")
	require.True(t, ok)
	assert.Equal(t, "r1---sn-abc.googlevideo.com", origin)
	assert.Equal(t, "/videoplayback?itag=18&foo=bar", pathAndQuery)
}
