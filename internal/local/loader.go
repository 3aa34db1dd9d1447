// SPDX-License-Identifier: MIT

// Package local implements C8: boot-time import of user-authored JSON
// playlist files into the KV cache as Invidious-shaped playlists.
//
// Grounded on original_source/src/local.rs's local_playlist_to_iv and
// array_item_into_video: same author/thumbnail placeholder values, same
// cacheTimeout override (effectively infinite here, u64::MAX in the
// original) so importing never refetches player data once cached, and the
// same two accepted JSON shapes (a bare array of references, or an object
// carrying a `videos` array plus optional title/description).
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marmadilemanteater/yaytapi-go/internal/cache"
	"github.com/marmadilemanteater/yaytapi-go/internal/config"
	"github.com/marmadilemanteater/yaytapi-go/internal/log"
)

// Resolver is the slice of C5 the loader needs to populate each imported
// video's title/author/length from a (long-TTL-overridden) player fetch.
type Resolver interface {
	ResolvePlayer(ctx context.Context, videoID, lang string, local bool, publicBaseURL string, settings config.AppSettings) (json.RawMessage, error)
}

// VideoIDFromReference extracts a bare video id from a reference string
// that may be a full watch URL, a youtu.be short link, or already a bare
// id.
func VideoIDFromReference(ref string) string {
	if idx := strings.Index(ref, "/watch?v="); idx >= 0 {
		rest := ref[idx+len("/watch?v="):]
		if amp := strings.IndexByte(rest, '&'); amp >= 0 {
			rest = rest[:amp]
		}
		return rest
	}
	if idx := strings.Index(ref, "youtu.be/"); idx >= 0 {
		rest := ref[idx+len("youtu.be/"):]
		if q := strings.IndexByte(rest, '?'); q >= 0 {
			rest = rest[:q]
		}
		return rest
	}
	return ref
}

type fileShape struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Videos      []json.RawMessage `json:"videos"`
}

type playerSummary struct {
	VideoDetails struct {
		Title         string `json:"title"`
		Author        string `json:"author"`
		ChannelID     string `json:"channelId"`
		LengthSeconds string `json:"lengthSeconds"`
	} `json:"videoDetails"`
}

type playlistVideo struct {
	Title           string `json:"title"`
	VideoID         string `json:"videoId"`
	Author          string `json:"author"`
	AuthorID        string `json:"authorId"`
	VideoThumbnails []any  `json:"videoThumbnails"`
	Index           int    `json:"index"`
	LengthSeconds   int64  `json:"lengthSeconds"`
}

// LoadAll imports every *.json file under settings.PlaylistsPath into the
// local-playlist collection. Already-loaded files are skipped.
func LoadAll(ctx context.Context, store cache.Store, resolver Resolver, settings config.AppSettings) error {
	if settings.PlaylistsPath == "" {
		return nil
	}
	l := log.WithComponent("local")

	matches, err := filepath.Glob(filepath.Join(settings.PlaylistsPath, "*.json"))
	if err != nil {
		return fmt.Errorf("local: listing playlist files: %w", err)
	}

	for _, path := range matches {
		name := filepath.Base(path)
		if _, ok := store.Get(ctx, cache.CollectionLocalPlaylist, name); ok {
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			l.Warn().Err(err).Str("file", name).Msg("failed to read local playlist file")
			continue
		}

		playlist, err := buildPlaylist(ctx, name, raw, resolver, settings)
		if err != nil {
			l.Warn().Err(err).Str("file", name).Msg("failed to import local playlist")
			continue
		}
		if playlist == nil {
			continue
		}

		doc, err := cache.Stamp(playlist)
		if err != nil {
			l.Warn().Err(err).Str("file", name).Msg("failed to stamp imported playlist")
			continue
		}
		store.Put(ctx, cache.CollectionLocalPlaylist, name, doc)
		l.Info().Str("file", name).Msg("imported local playlist")
	}
	return nil
}

func buildPlaylist(ctx context.Context, name string, raw []byte, resolver Resolver, settings config.AppSettings) (json.RawMessage, error) {
	var refs []string
	var title, description string

	var asArray []string
	if err := json.Unmarshal(raw, &asArray); err == nil {
		refs = asArray
		title = strings.TrimSuffix(name, filepath.Ext(name))
	} else {
		var shape fileShape
		if err := json.Unmarshal(raw, &shape); err != nil {
			return nil, fmt.Errorf("unrecognised playlist file shape: %w", err)
		}
		for _, v := range shape.Videos {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				refs = append(refs, s)
			}
		}
		title = shape.Title
		if title == "" {
			title = strings.TrimSuffix(name, filepath.Ext(name))
		}
		description = shape.Description
	}

	if len(refs) == 0 {
		return nil, nil
	}

	longTTL := settings
	longTTL.CacheTimeoutSeconds = 1<<63 - 1 // effectively infinite, see local.rs's u64::MAX override

	videos := make([]playlistVideo, 0, len(refs))
	for i, ref := range refs {
		videoID := VideoIDFromReference(ref)
		raw, err := resolver.ResolvePlayer(ctx, videoID, "en", false, publicBaseURL(settings), longTTL)
		if err != nil {
			continue
		}
		var summary playerSummary
		if err := json.Unmarshal(raw, &summary); err != nil {
			continue
		}
		lengthSeconds, _ := strconv.ParseInt(summary.VideoDetails.LengthSeconds, 10, 64)
		videos = append(videos, playlistVideo{
			Title:           summary.VideoDetails.Title,
			VideoID:         videoID,
			Author:          summary.VideoDetails.Author,
			AuthorID:        summary.VideoDetails.ChannelID,
			VideoThumbnails: thumbnailsFor(videoID),
			Index:           i,
			LengthSeconds:   lengthSeconds,
		})
	}

	base := publicBaseURL(settings)
	authorThumb := map[string]any{"url": base + "/static/icon.png", "width": 400, "height": 400}

	playlist := map[string]any{
		"title":              title,
		"playlistId":         name,
		"videos":             videos,
		"playlistThumbnails": nil,
		"author":             "yaytapi",
		"authorId":           "::yaytapi_local::",
		"authorUrl":          nil,
		"authorThumbnails":   []any{authorThumb, authorThumb, authorThumb},
		"description":        description,
		"descriptionHtml":    "",
		"videoCount":         len(videos),
		"viewCount":          0,
		"updated":            time.Now().Unix(),
		"isListed":           false,
	}
	return json.Marshal(playlist)
}

func thumbnailsFor(videoID string) []any {
	return []any{
		map[string]any{"url": fmt.Sprintf("/vi/%s/maxresdefault.jpg", videoID), "width": 320, "height": 180},
	}
}

func publicBaseURL(settings config.AppSettings) string {
	if settings.PublicBaseURL != "" {
		return settings.PublicBaseURL
	}
	return fmt.Sprintf("http://%s:%d", settings.IPAddress, settings.Port)
}
