package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/islandways/placesync/internal/monitoring"
	"github.com/islandways/placesync/internal/progress"
	"github.com/islandways/placesync/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run progress and the knowledge store over HTTP",
	Long:  "Exposes the run checkpoint, derived statistics and the place records as a read-only JSON API for the ops dashboard, and runs the alert checker when a webhook is configured.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.State, env.Store, cfg.Pricing)

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		router := buildRouter(env.State, env.Store, collector)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the read-only ops API over the checkpoint store and
// the knowledge store.
func buildRouter(state *progress.Store, kb store.Store, collector *monitoring.Collector) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/progress", func(w http.ResponseWriter, _ *http.Request) {
			st, err := state.Load()
			if err != nil {
				zap.L().Error("load checkpoint failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "load checkpoint failed")
				return
			}
			if st == nil {
				writeError(w, http.StatusNotFound, "no run checkpoint")
				return
			}
			writeJSON(w, http.StatusOK, st)
		})

		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			snap, err := collector.Collect(req.Context())
			if err != nil {
				zap.L().Error("collect snapshot failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "collect snapshot failed")
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Get("/records", func(w http.ResponseWriter, req *http.Request) {
			filter := store.ListFilter{
				Category:   req.URL.Query().Get("category"),
				Region:     req.URL.Query().Get("region"),
				Unenriched: req.URL.Query().Get("unenriched") == "true",
				Limit:      queryInt(req, "limit", 100),
				Offset:     queryInt(req, "offset", 0),
			}
			records, err := kb.ListPlaces(req.Context(), filter)
			if err != nil {
				zap.L().Error("list places failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "list places failed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"count":   len(records),
				"records": records,
			})
		})

		r.Get("/records/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			rec, err := kb.GetPlace(req.Context(), id)
			if err != nil {
				zap.L().Error("get place failed", zap.String("id", id), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "get place failed")
				return
			}
			if rec == nil {
				writeError(w, http.StatusNotFound, "place not found")
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt parses a non-negative integer query parameter, falling back
// to def when absent or malformed.
func queryInt(req *http.Request, key string, def int) int {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
