// Entry point for the tagsyringed sync daemon: builds the message bus, the
// persistent store, the dataset store and the updater in one composition
// root (no ambient registries) and exposes the bus channels over a small
// chi HTTP API for host integrations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/lixinlkmn2004/tagsyringe/bus"
	"github.com/lixinlkmn2004/tagsyringe/dataset"
	"github.com/lixinlkmn2004/tagsyringe/kvstore"
	"github.com/lixinlkmn2004/tagsyringe/sqldb"
	"github.com/lixinlkmn2004/tagsyringe/updater"
)

func main() {
	cfgPath := flag.String("config", "tagsyringed.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := sqldb.Open(cfg.StoreDB, sqldb.WithMkdirAll())
	if err != nil {
		slog.Error("store db", "error", err)
		os.Exit(1)
	}
	kv, err := kvstore.NewSQLite(db, kvstore.WithLogger(logger))
	if err != nil {
		slog.Error("kv store", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	b := bus.New(bus.WithLogger(logger))

	ds, err := dataset.New(ctx, kv, dataset.WithLogger(logger))
	if err != nil {
		slog.Error("dataset store", "error", err)
		os.Exit(1)
	}
	ds.AttachBus(b)

	up := updater.New(ctx, b, kv, updater.Config{
		OriginURL: cfg.Origin,
		Mirrors:   cfg.Mirrors,
		Cooldown:  cfg.Cooldown,
		UserAgent: "tagsyringed/1.0",
	}, updater.WithLogger(logger))
	up.AttachBus()

	// Last progress record for the HTTP surface.
	var (
		progMu   sync.Mutex
		progress updater.Progress
	)
	b.On(bus.ChanUpdatingDatabase, func(_ context.Context, payload any) (any, error) {
		if p, ok := payload.(updater.Progress); ok {
			progMu.Lock()
			progress = p
			progMu.Unlock()
		}
		return nil, nil
	})

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: router(b, func() updater.Progress { progMu.Lock(); defer progMu.Unlock(); return progress }),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("tagsyringed listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		updateLoop(ctx, b, ds, cfg.Cooldown)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("tagsyringed", "error", err)
		os.Exit(1)
	}
}

// updateLoop triggers a forced update immediately when the dataset store
// started without a usable snapshot (migration or first run), then checks
// periodically at the cooldown interval.
func updateLoop(ctx context.Context, b *bus.Bus, ds *dataset.Store, interval time.Duration) {
	run := func(force bool) {
		if _, err := b.Emit(ctx, bus.ChanUpdateDatabase, updater.UpdateRequest{Force: force}); err != nil {
			slog.Warn("update failed", "error", err)
		}
	}

	if ds.NeedsRefresh() {
		run(true)
	} else {
		run(false)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(false)
		}
	}
}

// router exposes the bus channels over HTTP for host integrations.
func router(b *bus.Bus, lastProgress func() updater.Progress) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/api/sha", func(w http.ResponseWriter, req *http.Request) {
		reply, err := b.Emit(req.Context(), bus.ChanGetTagSHA, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"sha": reply})
	})

	r.Get("/api/tag/{fullKey}", func(w http.ResponseWriter, req *http.Request) {
		reply, err := b.Emit(req.Context(), bus.ChanGetTag, chi.URLParam(req, "fullKey"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if reply == nil {
			http.Error(w, "unknown tag", http.StatusNotFound)
			return
		}
		writeJSON(w, reply)
	})

	r.Post("/api/check", func(w http.ResponseWriter, req *http.Request) {
		force := req.URL.Query().Get("force") == "1"
		reply, err := b.Emit(req.Context(), bus.ChanCheckDatabase, updater.CheckRequest{Force: force})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, reply)
	})

	r.Post("/api/update", func(w http.ResponseWriter, req *http.Request) {
		force := req.URL.Query().Get("force") == "1"
		reply, err := b.Emit(req.Context(), bus.ChanUpdateDatabase, updater.UpdateRequest{Force: force})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if reply == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, reply)
	})

	r.Get("/api/progress", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, lastProgress())
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}
