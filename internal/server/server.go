// Package server exposes the drive through a small JSON API plus the
// embedded browser front end: folder listings, item metadata, thumbnail
// and download redirects, and an optional byte-streaming proxy for
// clients that must not see the signed upstream URLs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Chikage0o0/onelist/internal/files"
	"github.com/Chikage0o0/onelist/internal/graph"
	"github.com/Chikage0o0/onelist/internal/session"
)

// shutdownTimeout is how long graceful shutdown waits for in-flight
// requests, including partially streamed proxy responses.
const shutdownTimeout = 10 * time.Second

// DriveClient is the upstream surface the handlers consume. *graph.Client
// implements it; tests substitute a fake.
type DriveClient interface {
	GetItemByPath(ctx context.Context, drivePath string, thumbnails bool) (*graph.Item, error)
	GetItemByID(ctx context.Context, itemID string) (*graph.Item, error)
	ListChildren(ctx context.Context, drivePath string) ([]graph.Item, error)
	GetDownloadURL(ctx context.Context, itemID string) (string, error)
}

// Options configures a Server.
type Options struct {
	Listen   string
	RootDir  string
	SiteName string
	UseProxy bool
}

// Server wires the handlers to the upstream client and the cache tiers.
type Server struct {
	opts   Options
	client DriveClient
	caches *files.Caches
	logger *slog.Logger

	// proxyClient relays thumbnail and download bytes. No overall
	// timeout: large downloads legitimately outlive any fixed bound.
	proxyClient *http.Client
}

// New creates a Server. The caches are shared with whoever else populates
// them; the Server never invalidates entries.
func New(opts Options, client DriveClient, caches *files.Caches, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		opts:        opts,
		client:      client,
		caches:      caches,
		logger:      logger,
		proxyClient: &http.Client{},
	}
}

// Handler assembles the route table and middleware stack.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/list", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/list/{path:.*}", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/info/{path:.*}", s.handleInfo).Methods(http.MethodGet)
	api.HandleFunc("/thumb/{size}/{id}", s.handleThumb).Methods(http.MethodGet)
	api.HandleFunc("/download/raw/{id}", s.handleDownload).Methods(http.MethodGet)
	api.HandleFunc("/download/proxy/{id}", s.handleProxyDownload).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(s.staticHandler())

	var h http.Handler = r
	h = handlers.CompressHandler(h)
	h = s.accessLog(h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)

	return h
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("web server listening", slog.String("addr", s.opts.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("web server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return ctx.Err()
}

// respondJSON writes v as a JSON response body.
func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// respondError maps an error to its HTTP status. "Not ready yet" is kept
// distinct from "upstream broken" so clients can tell retry-shortly apart
// from genuine failure; upstream errors are never cached.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway

	switch {
	case errors.Is(err, session.ErrNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, graph.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, files.ErrMissingID), errors.Is(err, files.ErrThumbnailParse):
		status = http.StatusBadGateway
	}

	s.logger.Warn("request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

// drivePath resolves the request's path variable against the exposed root.
func (s *Server) drivePath(r *http.Request) string {
	p := mux.Vars(r)["path"]
	if p == "" {
		return s.opts.RootDir
	}

	return s.opts.RootDir + "/" + p
}
