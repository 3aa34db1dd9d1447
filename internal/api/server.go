// SPDX-License-Identifier: MIT

// Package api implements C10, the HTTP surface: route handlers, query
// parsing, and Invidious-shaped error rendering over C5-C9.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/marmadilemanteater/yaytapi-go/internal/cache"
	"github.com/marmadilemanteater/yaytapi-go/internal/cipher"
	"github.com/marmadilemanteater/yaytapi-go/internal/config"
	"github.com/marmadilemanteater/yaytapi-go/internal/invidious"
	"github.com/marmadilemanteater/yaytapi-go/internal/log"
	"github.com/marmadilemanteater/yaytapi-go/internal/metrics"
	"github.com/marmadilemanteater/yaytapi-go/internal/playlist"
	"github.com/marmadilemanteater/yaytapi-go/internal/proxy"
	"github.com/marmadilemanteater/yaytapi-go/internal/version"
	"github.com/marmadilemanteater/yaytapi-go/internal/video"
)

// VideoResolver is the slice of C5 the HTTP surface needs.
type VideoResolver interface {
	ResolvePlayer(ctx context.Context, videoID, lang string, local bool, publicBaseURL string, settings config.AppSettings) (json.RawMessage, error)
	ResolveNext(ctx context.Context, videoID, lang string, settings config.AppSettings) (json.RawMessage, error)
	InvalidatePlayer(ctx context.Context, videoID, lang string, local bool)
}

// PlaylistResolver is the slice of C7 the HTTP surface needs.
type PlaylistResolver interface {
	Resolve(ctx context.Context, playlistID, lang string, page int, settings config.AppSettings) (json.RawMessage, error)
}

// ScriptSource is the slice of C3 the /decipher_stream handler needs to
// pin an explicit player.js generation.
type ScriptSource interface {
	Pinned(ctx context.Context, scriptID string) (scriptSource string, sigTimestamp int, err error)
}

// Server holds the wiring the HTTP surface routes against.
type Server struct {
	Settings  config.AppSettings
	Videos    VideoResolver
	Playlists PlaylistResolver
	Scripts   ScriptSource
	Store     cache.Store
	Proxy     *proxy.Handler
	Metrics   *metrics.Metrics
}

// Router builds the chi router for all routes named in spec.md §6.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.Settings.EnableAccessLog {
		r.Use(log.Middleware())
	}
	if s.Settings.EnableCORS {
		r.Use(corsMiddleware)
	}
	if s.Settings.NumWorkers > 0 {
		r.Use(workerPool(s.Settings.NumWorkers))
	}
	if s.Metrics != nil {
		r.Use(s.metricsMiddleware)
		r.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/api/v1/videos/{id}", s.handleVideo)
	r.Get("/api/v1/playlists/{id}", s.handlePlaylist)
	r.Get("/latest_version", s.handleLatestVersion)
	r.Get("/videoplayback", s.handleVideoPlayback)
	r.Head("/videoplayback", s.handleVideoPlayback)
	if s.Settings.DecipherStreamsEnabled {
		r.Get("/decipher_stream", s.handleDecipherStream)
	}
	r.Get("/vi/{id}/{file}", s.handleThumbnail)
	r.Get("/ggpht/*", s.handleGgpht)
	r.Get("/static/*", s.handleStatic)
	r.Get("/", s.handleIndex)
	r.Get("/watch", s.handleIndex)
	r.Get("/playlist", s.handleIndex)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, http.StatusNotFound, "Not found", "")
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		next.ServeHTTP(w, r)
	})
}

func prettyFlag(r *http.Request) bool {
	return r.URL.Query().Get("pretty") == "1"
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"version": version.Version,
		"software": map[string]any{
			"name": "yaytapi",
			"version": map[string]string{
				"git-commit": version.Commit,
				"branch":     version.Branch,
			},
		},
	}
	if s.Settings.PublishSettingsInsideStats {
		resp["yaytapi_settings"] = map[string]any{
			"cors_enabled":             s.Settings.EnableCORS,
			"decipher_streams_enabled": s.Settings.DecipherStreamsEnabled,
			"pre_decipher_streams":     s.Settings.DecipherOnVideoEndpoint,
			"use_android_endpoint":     s.Settings.UseAndroidEndpoint,
			"enable_local_streaming":   s.Settings.EnableLocalStreaming,
			"cache_backend":            s.Settings.CacheBackend.String(),
		}
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "failed to render stats", "")
		return
	}
	writeJSONPretty(w, http.StatusOK, raw, prettyFlag(r))
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	lang := q.Get("hl")
	if lang == "" {
		lang = "en"
	}
	local := q.Get("local") == "true"
	pretty := prettyFlag(r)

	playerRaw, err := s.Videos.ResolvePlayer(r.Context(), id, lang, local, s.publicBaseURL(r), s.Settings)
	if err != nil {
		s.respondFetchPlayerError(w, err)
		return
	}

	var nextRaw json.RawMessage
	if n, nerr := s.Videos.ResolveNext(r.Context(), id, lang, s.Settings); nerr == nil {
		nextRaw = n
	}

	mask := invidious.DefaultMask
	if fieldsParam := q.Get("fields"); fieldsParam != "" {
		mask = strings.Split(fieldsParam, ",")
	}

	out, err := invidious.ProjectVideo(playerRaw, nextRaw, mask, s.Settings)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "Failed to project video fields", err.Error())
		return
	}
	writeJSONPretty(w, http.StatusOK, out, pretty)
}

func (s *Server) respondFetchPlayerError(w http.ResponseWriter, err error) {
	var fpe *video.FetchPlayerError
	if errors.As(err, &fpe) {
		switch fpe.Kind {
		case video.ErrKindLoginRequired:
			RespondError(w, http.StatusForbidden, "Failed to fetch `player` endpoint", fpe.Error())
			return
		case video.ErrKindResponseUnplayable:
			RespondError(w, http.StatusNotFound, "Failed to fetch `player` endpoint", fpe.Error())
			return
		default:
			RespondError(w, http.StatusInternalServerError, "Failed to fetch `player` endpoint", fpe.Error())
			return
		}
	}
	RespondError(w, http.StatusInternalServerError, "Failed to fetch `player` endpoint", err.Error())
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	lang := q.Get("hl")
	if lang == "" {
		lang = "en"
	}

	page := 0
	if pageParam := q.Get("page"); pageParam != "" {
		p, err := strconv.Atoi(pageParam)
		if err != nil {
			RespondError(w, http.StatusBadRequest, "Given page is not a number: "+pageParam, "")
			return
		}
		if p <= 0 {
			RespondError(w, http.StatusBadRequest, "Page must be greater than zero", "")
			return
		}
		page = p
	}

	out, err := s.Playlists.Resolve(r.Context(), id, lang, page, s.Settings)
	if err != nil {
		var fpe *playlist.FetchPlaylistError
		if errors.As(err, &fpe) {
			RespondError(w, http.StatusNotFound, fpe.Error(), "")
			return
		}
		RespondError(w, http.StatusInternalServerError, "Failed to fetch playlist", err.Error())
		return
	}
	writeJSONPretty(w, http.StatusOK, out, prettyFlag(r))
}

func (s *Server) handleLatestVersion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	itagParam := q.Get("itag")
	lang := q.Get("hl")
	if lang == "" {
		lang = "en"
	}
	local := q.Get("local") == "true"

	playerRaw, err := s.Videos.ResolvePlayer(r.Context(), id, lang, local, s.publicBaseURL(r), s.Settings)
	if err != nil {
		s.respondFetchPlayerError(w, err)
		return
	}

	var doc struct {
		StreamingData struct {
			Formats         []formatEntry `json:"formats"`
			AdaptiveFormats []formatEntry `json:"adaptiveFormats"`
		} `json:"streamingData"`
	}
	if err := json.Unmarshal(playerRaw, &doc); err != nil {
		RespondError(w, http.StatusInternalServerError, "Failed to parse player response", err.Error())
		return
	}

	wantItag, _ := strconv.Atoi(itagParam)
	all := append(append([]formatEntry{}, doc.StreamingData.Formats...), doc.StreamingData.AdaptiveFormats...)
	for _, f := range all {
		if f.Itag == wantItag {
			w.Header().Set("Location", f.URL)
			w.WriteHeader(http.StatusFound)
			return
		}
	}

	available := make([]int, 0, len(all))
	for _, f := range all {
		available = append(available, f.Itag)
	}
	RespondErrorWithData(w, http.StatusNotFound, "No streams found matching the given itag: "+itagParam, available)
}

type formatEntry struct {
	URL  string `json:"url"`
	Itag int    `json:"itag"`
}

func (s *Server) handleVideoPlayback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	host, err := url.QueryUnescape(q.Get("host"))
	if err != nil {
		host = q.Get("host")
	}
	local := q.Get("local") == "true"
	s.Proxy.ServeVideoPlayback(w, r, host, local, r.URL.RequestURI())
}

func (s *Server) handleDecipherStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signatureCipher := q.Get("signature_cipher")
	scriptID := q.Get("player_js_id")
	videoID := q.Get("video_id")
	local := q.Get("local") == "true"
	lang := q.Get("hl")
	if lang == "" {
		lang = "en"
	}

	if looksMalicious(signatureCipher) {
		RespondError(w, http.StatusBadRequest, "Refusing to execute potentially malicious payload", "")
		return
	}

	scriptSource, _, err := s.Scripts.Pinned(r.Context(), scriptID)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "Failed to locate player.js generation", err.Error())
		return
	}

	streamURL, err := cipher.DecipherStream(signatureCipher, scriptSource)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "Failed to decipher stream", err.Error())
		return
	}

	if videoID != "" {
		if probeIs403(r.Context(), streamURL) {
			s.Videos.InvalidatePlayer(r.Context(), videoID, lang, local)
		}
	}

	w.Header().Set("Location", streamURL)
	w.WriteHeader(http.StatusFound)
}

// probeIs403 performs the HEAD suspension point spec.md §5/§7 names: a
// deciphered URL that the origin now rejects with 403 means the
// signatureCipher was produced against a stale player.js generation, so
// the caller should invalidate the cached player entry that handed it
// out. Any other outcome (success, timeout, non-403 error) is not treated
// as an invalidation signal.
func probeIs403(ctx context.Context, streamURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, streamURL, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusForbidden
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	file := chi.URLParam(r, "file")
	target := "https://i.ytimg.com/vi/" + id + "/" + file
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusFound)
}

func (s *Server) handleGgpht(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/ggpht/")
	w.Header().Set("Location", "https://yt3.ggpht.com/"+path)
	w.WriteHeader(http.StatusFound)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!doctype html><title>yaytapi</title>"))
}

func (s *Server) publicBaseURL(r *http.Request) string {
	if s.Settings.PublicBaseURL != "" {
		return s.Settings.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
