// SPDX-License-Identifier: MIT

package invidious

import (
	"encoding/json"
	"testing"

	"github.com/marmadilemanteater/yaytapi-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlayer = `{
  "videoDetails": {
    "videoId": "dQw4w9WgXcQ",
    "title": "Never Gonna Give You Up",
    "lengthSeconds": "212",
    "keywords": ["rick", "astley"],
    "channelId": "UCuAXFkgsw1L7xaCfnd5JJOw",
    "author": "Rick Astley",
    "shortDescription": "The official video",
    "viewCount": "1000000000"
  },
  "microformat": {
    "playerMicroformatRenderer": {
      "category": "Music",
      "publishDate": "2009-10-25",
      "isFamilySafe": true
    }
  },
  "streamingData": {
    "formats": [{"url":"https://r1.googlevideo.com/x","itag":18,"size":"640x360"}],
    "adaptiveFormats": [{"url":"https://r1.googlevideo.com/y","itag":137,"size":"1920x1080"}],
    "hlsManifestUrl": "https://example.com/manifest.m3u8"
  }
}`

func TestProjectVideoDefaultMaskHasAllKeys(t *testing.T) {
	settings := config.AppSettings{SortToInvSchema: true, RetainNullKeys: true}
	out, err := ProjectVideo([]byte(samplePlayer), nil, DefaultMask, settings)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	for _, key := range DefaultMask {
		if key == "hlsUrl" {
			continue
		}
		_, ok := doc[key]
		assert.True(t, ok, "expected key %q in projected output", key)
	}
	assert.NotContains(t, doc, "hlsUrl")
}

func TestProjectVideoHideNullFieldsOmitsMissingKeys(t *testing.T) {
	mask := []string{"title", "videoId", "storyboards", "premiereTimestamp"}
	settings := config.AppSettings{RetainNullKeys: false}
	out, err := ProjectVideo([]byte(samplePlayer), nil, mask, settings)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	_, hasPremiere := doc["premiereTimestamp"]
	assert.False(t, hasPremiere)
}

func TestProjectVideoRetainNullKeysInsertsNull(t *testing.T) {
	mask := []string{"title", "videoId", "premiereTimestamp"}
	settings := config.AppSettings{RetainNullKeys: true}
	out, err := ProjectVideo([]byte(samplePlayer), nil, mask, settings)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	v, ok := doc["premiereTimestamp"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestProjectVideoFieldsQuerySelectsExactKeys(t *testing.T) {
	mask := []string{"title", "videoId", "author"}
	settings := config.AppSettings{}
	out, err := ProjectVideo([]byte(samplePlayer), nil, mask, settings)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))

	synthesized := []string{"comments", "captions", "videoThumbnails", "keywords", "rating", "dislikeCount"}
	expected := append(append([]string{}, mask...), synthesized...)
	assert.Len(t, doc, len(expected))
	for _, k := range expected {
		assert.Contains(t, doc, k)
	}
}

func TestProjectVideoSortToInvSchemaOrdersKeys(t *testing.T) {
	mask := []string{"videoId", "title", "author"}
	settings := config.AppSettings{SortToInvSchema: true}
	out, err := ProjectVideo([]byte(samplePlayer), nil, mask, settings)
	require.NoError(t, err)

	idxVideoID := indexOfSubstring(string(out), `"videoId"`)
	idxTitle := indexOfSubstring(string(out), `"title"`)
	idxAuthor := indexOfSubstring(string(out), `"author"`)
	require.True(t, idxVideoID >= 0 && idxTitle >= 0 && idxAuthor >= 0)
	assert.True(t, idxVideoID < idxTitle)
	assert.True(t, idxTitle < idxAuthor)
}

func indexOfSubstring(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestMaxStreamWidthParsesSize(t *testing.T) {
	formats := []streamEntry{{Size: "640x360"}}
	adaptive := []streamEntry{{Size: "1920x1080"}}
	assert.Equal(t, 1920, maxStreamWidth(formats, adaptive))
}

func TestMaxStreamWidthFallsBackTo680(t *testing.T) {
	assert.Equal(t, 680, maxStreamWidth(nil, nil))
}

func TestOrderedFieldsReorderKeepsUnmaskedTrailing(t *testing.T) {
	f := NewOrderedFields()
	_ = f.Set("b", 1)
	_ = f.Set("a", 2)
	_ = f.Set("extra", 3)
	f.Reorder([]string{"a", "b"})
	assert.Equal(t, []string{"a", "b", "extra"}, f.Keys())
}

func TestOrderedFieldsDeleteRemovesFromOrderAndValues(t *testing.T) {
	f := NewOrderedFields()
	_ = f.Set("a", 1)
	_ = f.Set("b", 2)
	f.Delete("a")
	assert.False(t, f.Has("a"))
	assert.Equal(t, []string{"b"}, f.Keys())
}
