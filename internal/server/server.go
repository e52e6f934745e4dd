package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"reelsaver/server/internal/config"
	"reelsaver/server/internal/metrics"
	"reelsaver/server/internal/models"
	"reelsaver/server/internal/server/api"
	"reelsaver/server/internal/server/storage"
)

const (
	shutdownTimeout = 30 * time.Second
	healthTimeout   = 5 * time.Second
)

// Options configures the HTTP surface.
type Options struct {
	Addr         string
	Password     string
	RequireAuth  bool
	CORSOrigins  []string
	WriteTimeout time.Duration
	MediaRoot    string // served under /media/ when set
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Storage  string `json:"storage,omitempty"`
}

// NewHandler builds the routed handler with the logging, CORS and metrics
// middleware applied. store may be nil, in which case only the database is
// health checked.
func NewHandler(opts Options, reels *api.ReelHandler, repo storage.ReelRepository, store HealthChecker, logger zerolog.Logger) http.Handler {
	gate := teamPasswordMiddleware(opts.Password, opts.RequireAuth)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", reels.Root)
	mux.HandleFunc("POST /login", reels.Login)
	mux.Handle("POST /add_reel", gate(http.HandlerFunc(reels.AddReel)))
	mux.Handle("GET /library", gate(http.HandlerFunc(reels.Library)))
	mux.Handle("POST /delete_reel", gate(http.HandlerFunc(reels.DeleteReel)))
	mux.Handle("GET /stats", gate(http.HandlerFunc(reels.Stats)))
	mux.Handle("GET /export", gate(exportReelsHandler(repo)))
	mux.HandleFunc("GET /health", healthCheckHandler(repo, store))
	mux.Handle("GET /metrics", promhttp.Handler())
	if opts.MediaRoot != "" {
		files := http.StripPrefix(config.LocalMediaRoute, http.FileServer(http.Dir(opts.MediaRoot)))
		mux.Handle("GET "+config.LocalMediaRoute, noDirListing(files))
	}

	// Handlers run outside in: the logger is placed in the context first,
	// then the request fields are added, and the access line is written last.
	h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("HTTP Request")

		metrics.RecordRequest(r.Method, routeLabel(mux, r), strconv.Itoa(status), duration.Seconds())
	})(mux)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.UserAgentHandler("user_agent")(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.URLHandler("url")(h)
	h = hlog.MethodHandler("method")(h)
	h = hlog.NewHandler(logger)(h)
	h = corsMiddleware(opts.CORSOrigins)(h)

	if opts.RequireAuth {
		logger.Info().Msg("Team password required on library endpoints")
	} else {
		logger.Info().Msg("Team password gate disabled")
	}
	return h
}

// routeLabel keeps the metrics path label bounded to registered patterns.
func routeLabel(mux *http.ServeMux, r *http.Request) string {
	if _, pattern := mux.Handler(r); pattern != "" {
		return pattern
	}
	return "unmatched"
}

// RunServer starts the HTTP server with graceful shutdown support.
// It blocks until SIGINT or SIGTERM and then drains open requests.
func RunServer(handler http.Handler, opts Options, logger zerolog.Logger) error {
	// Add service identifier to the logger
	logger = logger.With().Str("service", "reel-saver-api").Logger()

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Minute
	}

	// Ingests hold the request open for the whole download and upload.
	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("address", opts.Addr).Msg("API Server starting")
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErr:
		return err

	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
			if err := httpServer.Close(); err != nil {
				logger.Error().Err(err).Msg("HTTP server force close error")
			}
		} else {
			logger.Info().Msg("HTTP server shutdown complete.")
		}
		if err := <-serverErr; err != nil {
			logger.Error().Err(err).Msg("ListenAndServe error during shutdown")
		}
	}

	logger.Info().Msg("Server exiting.")
	return nil
}

// healthCheckHandler pings the database and, when given, the object store.
// Any failure answers 503.
func healthCheckHandler(repo storage.ReelRepository, store HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)
		log.Debug().Msg("Health check request received")

		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := HealthResponse{Status: "ok", Database: "ok"}
		status := http.StatusOK

		if err := repo.Ping(ctx); err != nil {
			log.Error().Err(err).Msg("Database health check failed")
			resp.Status, resp.Database = "unavailable", "unreachable"
			status = http.StatusServiceUnavailable
		}
		if store != nil {
			resp.Storage = "ok"
			if err := store.Health(ctx); err != nil {
				log.Error().Err(err).Msg("Object store health check failed")
				resp.Status, resp.Storage = "unavailable", "unreachable"
				status = http.StatusServiceUnavailable
			}
		}

		body, err := json.Marshal(resp)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if _, err := w.Write(body); err != nil {
			log.Error().Err(err).Msg("Error writing health check response")
		}
	}
}

// ExportHeader is the first row of the library export. The import command
// reads the same columns back.
var ExportHeader = []string{"url", "username", "language", "title", "video_url"}

// exportReelsHandler returns a handler function that exports the whole
// library as a CSV file, oldest reel first.
func exportReelsHandler(repo storage.ReelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)
		log.Debug().Msg("Export reels request received")

		reels, err := repo.List(r.Context(), models.ListOptions{Sort: models.SortOldest})
		if err != nil {
			log.Error().Err(err).Msg("Failed to query reels")
			api.WriteError(w, r, http.StatusInternalServerError, "Failed to load library")
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=reels.csv")

		csvWriter := csv.NewWriter(w)
		if err := csvWriter.Write(ExportHeader); err != nil {
			log.Error().Err(err).Msg("Failed to write CSV header")
			return
		}

		for _, reel := range reels {
			record := []string{
				reel.URL,
				reel.AddedBy,
				reel.Language,
				reel.Title,
				stringValue(reel.VideoURL),
			}
			if err := csvWriter.Write(record); err != nil {
				log.Error().Err(err).Msg("Failed to write CSV record")
				return
			}
		}

		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Error().Err(err).Msg("Error flushing CSV data")
			return
		}

		log.Info().Int("reel_count", len(reels)).Msg("Exported reels as CSV")
	}
}

// stringValue returns the pointed-to string or an empty string for nil.
func stringValue(s *string) string {
	if s != nil {
		return *s
	}
	return ""
}
