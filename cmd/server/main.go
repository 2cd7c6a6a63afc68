package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kerim/docsync/internal/api"
	"github.com/kerim/docsync/internal/config"
	"github.com/kerim/docsync/internal/fragmenter"
	"github.com/kerim/docsync/internal/managed"
	"github.com/kerim/docsync/internal/session"
	"github.com/kerim/docsync/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(cfg)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}

	mgr := session.NewManager(session.Config{
		Granularity:       fragmenter.Granularity(cfg.Granularity),
		ProximityWindow:   cfg.ProximityWindow,
		Debounce:          cfg.Debounce,
		GeneratorDebounce: cfg.GeneratorDebounce,
		IdleTTL:           cfg.SessionTTL,
		Managed: managed.Config{
			BibliographyTitle: cfg.BibliographyTitle,
			NotesTitle:        cfg.NotesTitle,
		},
	}, st, log)
	mgr.Start(ctx)

	srv := api.NewServer(mgr, st, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: flush open documents before the store goes away.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		mgr.Stop()
		st.Close()
	}()

	log.Info("starting docsync", "port", cfg.Port, "store", cfg.StoreBackend, "granularity", cfg.Granularity)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.StoreBackend == "remote" {
		return store.NewRemote(cfg.RemoteURL, cfg.RemoteAPIKey), nil
	}
	return store.OpenBolt(cfg.BoltPath)
}
