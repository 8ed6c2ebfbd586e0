package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/cart"
	"github.com/hanko-field/storefront/internal/catalog"
	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/localstore"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/session"
	"github.com/hanko-field/storefront/internal/urlstate"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	defaults, err := catalog.LoadDefaults(cfg.Catalog.DefaultsFile)
	if err != nil {
		logger.Fatal("failed to load catalog defaults", zap.Error(err))
	}
	codec := urlstate.NewCodec(defaults.CodecDefaults())

	history := urlstate.NewMemoryHistory(urlstate.Entry{
		Path:  cfg.Catalog.InitialPath,
		Query: cfg.Catalog.InitialQuery,
	})
	bridge := urlstate.NewBridge(codec, history, logger.Named("urlstate"))
	defer bridge.Close()

	catalogStore, err := catalog.NewStore(catalog.StoreDeps{
		Bridge:   bridge,
		Codec:    codec,
		Defaults: defaults,
		Logger:   logger.Named("catalog"),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog store", zap.Error(err))
	}
	defer catalogStore.Close()

	if cfg.Remote.BaseURL != "" {
		source, err := catalog.NewClient(cfg.Remote.BaseURL, codec)
		if err != nil {
			logger.Fatal("failed to initialise catalog client", zap.Error(err))
		}
		fetcher, err := catalog.NewFetcher(source, catalogStore, logger.Named("catalog.fetch"))
		if err != nil {
			logger.Fatal("failed to initialise catalog fetcher", zap.Error(err))
		}
		unbind := fetcher.Bind(ctx)
		defer func() {
			unbind()
			fetcher.Stop()
		}()
	}

	local, err := localstore.New(cfg.State.Dir, logger.Named("localstore"))
	if err != nil {
		logger.Fatal("failed to initialise local state store", zap.Error(err))
	}

	var sessionManager *session.Manager
	if cfg.Session.Secret != "" {
		verifier, err := session.NewVerifier(cfg.Session.Secret, logger.Named("session"))
		if err != nil {
			logger.Fatal("failed to initialise session verifier", zap.Error(err))
		}
		sessionManager, err = session.NewManager(verifier)
		if err != nil {
			logger.Fatal("failed to initialise session manager", zap.Error(err))
		}
	} else {
		logger.Info("session secret not configured; running anonymous only")
	}

	var cartRemote cart.Remote
	if cfg.Remote.BaseURL != "" {
		remoteClient, err := cart.NewRemoteClient(cfg.Remote.BaseURL)
		if err != nil {
			logger.Fatal("failed to initialise cart remote client", zap.Error(err))
		}
		cartRemote = remoteClient
	}

	cartDeps := cart.StoreDeps{
		Local:      local,
		Remote:     cartRemote,
		Logger:     logger.Named("cart"),
		StorageKey: cfg.State.CartKey,
	}
	if sessionManager != nil {
		cartDeps.Session = sessionManager
	}
	cartStore, err := cart.NewStore(cartDeps)
	if err != nil {
		logger.Fatal("failed to initialise cart store", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if cfg.State.WatchBlobs {
		stopWatch, err := local.Watch(watchCtx, cfg.State.CartKey, cartStore.ReseedFromLocal)
		if err != nil {
			logger.Warn("cart state watcher unavailable", zap.Error(err))
		} else {
			defer stopWatch()
		}
	}

	deps := handlers.Deps{
		Catalog: handlers.NewCatalogHandlers(catalogStore, codec, history, logger.Named("handlers.catalog")),
		Cart:    handlers.NewCartHandlers(cartStore, logger.Named("handlers.cart")),
		Health:  handlers.NewHealthHandlers(),
	}
	if sessionManager != nil {
		deps.Session = handlers.NewSessionHandlers(sessionManager, cartStore, logger.Named("handlers.session"))
	}

	router := handlers.NewRouter(deps)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront state service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	cartStore.Flush()
}
