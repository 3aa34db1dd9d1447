// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmadilemanteater/yaytapi-go/internal/api"
	"github.com/marmadilemanteater/yaytapi-go/internal/cache"
	"github.com/marmadilemanteater/yaytapi-go/internal/config"
	"github.com/marmadilemanteater/yaytapi-go/internal/innertube"
	xlog "github.com/marmadilemanteater/yaytapi-go/internal/log"
	"github.com/marmadilemanteater/yaytapi-go/internal/local"
	"github.com/marmadilemanteater/yaytapi-go/internal/metrics"
	"github.com/marmadilemanteater/yaytapi-go/internal/playerscript"
	"github.com/marmadilemanteater/yaytapi-go/internal/playlist"
	"github.com/marmadilemanteater/yaytapi-go/internal/proxy"
	"github.com/marmadilemanteater/yaytapi-go/internal/version"
	"github.com/marmadilemanteater/yaytapi-go/internal/video"
)

func main() {
	settings, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	xlog.Configure(xlog.Config{
		Service: "yaytapi",
		Version: version.Version,
		Enabled: settings.EnableAccessLog,
	})
	logger := xlog.WithComponent("main")

	if settings.PrintConfig {
		fmt.Println(settings.String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cache.New(settings)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open cache store")
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("error closing cache store")
		}
	}()

	clientCtx := innertube.ClientWeb
	if settings.UseAndroidEndpoint {
		clientCtx = innertube.ClientAndroid
	}
	upstream := innertube.New(clientCtx)

	scripts := playerscript.New(upstream, store)
	videos := video.New(store, upstream, scripts)
	playlists := playlist.New(store, upstream)
	streamProxy := proxy.New(settings.EnableLocalStreaming)
	m := metrics.New()
	videos.SetMetrics(m)
	playlists.SetMetrics(m)

	if settings.PlaylistsPath != "" {
		logger.Info().Str("path", settings.PlaylistsPath).Msg("importing local playlists")
		if err := local.LoadAll(ctx, store, videos, settings); err != nil {
			logger.Error().Err(err).Msg("local playlist import failed")
		}
	}

	srv := &api.Server{
		Settings:  settings,
		Videos:    videos,
		Playlists: playlists,
		Scripts:   scripts,
		Store:     store,
		Proxy:     streamProxy,
		Metrics:   m,
	}

	addr := settings.IPAddress + ":" + settings.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("error during graceful shutdown")
		}
	}()

	logger.Info().Str("addr", addr).Str("version", version.Version).Msg("starting yaytapi")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server exiting")
}
