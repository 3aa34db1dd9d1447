// SPDX-License-Identifier: MIT

// Package config parses command-line flags into an immutable AppSettings
// snapshot. Settings are read by every resolver on every call; nothing
// mutates them after ParseArgs returns.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

// CacheBackend selects which KV backend internal/cache dispatches to.
type CacheBackend int

const (
	// CacheBackendNone disables caching entirely.
	CacheBackendNone CacheBackend = iota
	// CacheBackendLocalEmbedded stores cache entries in an on-disk badger DB.
	CacheBackendLocalEmbedded
	// CacheBackendRemoteDocumentStore stores cache entries in Redis, one hash
	// per collection, named "yayti.{collection}".
	CacheBackendRemoteDocumentStore
)

func (b CacheBackend) String() string {
	switch b {
	case CacheBackendLocalEmbedded:
		return "local_embedded"
	case CacheBackendRemoteDocumentStore:
		return "remote_document_store"
	default:
		return "none"
	}
}

func (b CacheBackend) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// AppSettings is the gateway's complete runtime configuration. It is built
// once from CLI flags by ParseArgs and never mutated afterward; resolvers
// read it on every call.
type AppSettings struct {
	IPAddress string `json:"ip_address"`
	Port      string `json:"port"`
	NumWorkers int    `json:"num_workers"`

	PublicBaseURL string `json:"public_base_url,omitempty"`

	CacheBackend   CacheBackend `json:"cache_backend"`
	DBConnString   string       `json:"-"`
	DBName         string       `json:"db_name"`
	CacheRequests  bool         `json:"cache_requests"`
	CacheTimeoutSeconds int64   `json:"cache_timeout_seconds"`

	PlaylistsPath string `json:"playlists_path,omitempty"`

	DecipherStreamsEnabled bool `json:"decipher_streams_enabled"`
	DecipherOnVideoEndpoint bool `json:"decipher_on_video_endpoint"`
	UseAndroidEndpoint      bool `json:"use_android_endpoint_for_streams"`
	EnableLocalStreaming    bool `json:"enable_local_streaming"`
	EnableCORS              bool `json:"cors_enabled"`

	SortToInvSchema  bool `json:"sort_to_inv_schema"`
	RetainNullKeys   bool `json:"retain_null_keys"`
	ReturnInnertube  bool `json:"return_innertube_response"`

	EnableAccessLog bool `json:"enable_access_log"`
	PrintConfig     bool `json:"-"`
	PublishSettingsInsideStats bool `json:"-"`
}

// defaultCacheTimeoutSeconds is the spec's default TTL: 60 seconds.
const defaultCacheTimeoutSeconds = 60

// ParseArgs parses the CLI flags described in SPEC_FULL.md §6 into an
// AppSettings value. Unlike the original Rust implementation (which joins
// argv and regex-matches each flag), this uses Go's standard flag package,
// grounded on cmd/daemon's flag.Bool/flag.String usage in the teacher repo.
func ParseArgs(args []string) (AppSettings, error) {
	fs := flag.NewFlagSet("yaytapi", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	ip := fs.String("ip", "127.0.0.1", "bind IP address")
	port := fs.String("port", "8080", "bind port")
	workers := fs.Int("workers", 1, "number of request-handler workers")
	publicURL := fs.String("public-url", "", "self URL baked into generated stream links")
	mongoDB := fs.String("mongo-db", "", "remote document store connection string; selects RemoteDocumentStore backend")
	dbName := fs.String("db-name", "", "database/file name (defaults differ by backend)")
	playlistsPath := fs.String("playlists-path", "", "directory of local playlist JSON files to import at startup")
	decipherStreams := fs.Bool("decipher-streams", false, "enable the /decipher_stream endpoint")
	preDecipherStreams := fs.Bool("pre-decipher-streams", false, "decipher streams on the video endpoint instead of lazily")
	useAndroidEndpoint := fs.Bool("use-android-endpoint", false, "use the android client context to skip deciphering")
	enableLocalStreaming := fs.Bool("enable-local-streaming", false, "enable the /videoplayback proxy mode")
	enableCORS := fs.Bool("enable-cors", false, "send permissive CORS headers")
	noCache := fs.Bool("no-cache", false, "disable KV cache reads and writes")
	noSort := fs.Bool("no-sort", false, "don't reorder response keys to the Invidious schema")
	hideNullFields := fs.Bool("hide-null-fields", false, "omit masked fields missing from the upstream response")
	returnInnertube := fs.Bool("return-innertube", false, "include the raw upstream payloads under \"innertube\"")
	noLogs := fs.Bool("no-logs", false, "disable the access logger")
	printConfig := fs.Bool("print-config", false, "print the effective configuration and continue")
	publishSettings := fs.Bool("publish-settings", false, "include a settings snapshot in /api/v1/stats")

	if err := fs.Parse(args); err != nil {
		return AppSettings{}, fmt.Errorf("parse flags: %w", err)
	}

	backend := CacheBackendLocalEmbedded
	name := *dbName
	if *mongoDB != "" {
		backend = CacheBackendRemoteDocumentStore
		if name == "" {
			name = "local"
		}
	} else if name == "" {
		name = "yaytapi.db"
	}

	return AppSettings{
		IPAddress:  *ip,
		Port:       *port,
		NumWorkers: *workers,

		PublicBaseURL: *publicURL,

		CacheBackend:        backend,
		DBConnString:        *mongoDB,
		DBName:              name,
		CacheRequests:       !*noCache,
		CacheTimeoutSeconds: defaultCacheTimeoutSeconds,

		PlaylistsPath: *playlistsPath,

		DecipherStreamsEnabled:  *decipherStreams,
		DecipherOnVideoEndpoint: *preDecipherStreams,
		UseAndroidEndpoint:      *useAndroidEndpoint,
		EnableLocalStreaming:    *enableLocalStreaming,
		EnableCORS:              *enableCORS,

		SortToInvSchema: !*noSort,
		RetainNullKeys:  !*hideNullFields,
		ReturnInnertube: *returnInnertube,

		EnableAccessLog:            !*noLogs,
		PrintConfig:                *printConfig,
		PublishSettingsInsideStats: *publishSettings,
	}, nil
}

// WithCacheTimeout returns a copy of s with the cache timeout overridden.
// Used by internal/local to fetch videos with an effectively-infinite TTL
// during the boot-time playlist import.
func (s AppSettings) WithCacheTimeout(seconds int64) AppSettings {
	s.CacheTimeoutSeconds = seconds
	return s
}

// String renders the settings as pretty-printed JSON for --print-config.
func (s AppSettings) String() string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Sprintf("<config marshal error: %v>", err)
	}
	return string(b)
}
