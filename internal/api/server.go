// Package api serves the webmail JSON API over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/store"
	"github.com/nhle/webmail/internal/sync"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Syncer runs on-demand syncs and reports sync status.
type Syncer interface {
	RunOnce(ctx context.Context, opts sync.SyncOptions) (*sync.SyncResult, error)
	Statuses() []sync.SyncStatus
}

// Deleter removes messages from the server and the store.
type Deleter interface {
	DeleteMessage(ctx context.Context, userID, localID string, identity model.Identity) (sync.DeleteResult, error)
	DeleteBatch(ctx context.Context, userID string, ids []string, identity model.Identity) sync.BatchDeleteResult
}

// Config holds the dependencies of a Server.
type Config struct {
	Store       store.Store
	Syncer      Syncer
	Deleter     Deleter
	Credentials sync.Credentials
	User        model.User
	FrontendURL string
	Log         logrus.FieldLogger
}

// Server handles API requests for a single account.
type Server struct {
	store       store.Store
	syncer      Syncer
	deleter     Deleter
	creds       sync.Credentials
	user        model.User
	frontendURL string
	log         logrus.FieldLogger
}

// New creates a Server from cfg.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		store:       cfg.Store,
		syncer:      cfg.Syncer,
		deleter:     cfg.Deleter,
		creds:       cfg.Credentials,
		user:        cfg.User,
		frontendURL: cfg.FrontendURL,
		log:         log.WithField("component", "api"),
	}
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/emails/sync", s.handleSync)
	mux.HandleFunc("GET /api/emails/sync/status", s.handleSyncStatus)
	mux.HandleFunc("GET /api/emails", s.handleList)
	mux.HandleFunc("GET /api/emails/search", s.handleSearch)
	mux.HandleFunc("GET /api/emails/stats", s.handleStats)
	mux.HandleFunc("GET /api/emails/{id}", s.handleGet)
	mux.HandleFunc("PATCH /api/emails/{id}/read", s.handleRead)
	mux.HandleFunc("PATCH /api/emails/{id}/star", s.handleStar)
	mux.HandleFunc("DELETE /api/emails/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/emails/delete", s.handleDeleteBatch)
	mux.HandleFunc("GET /api/me", s.handleMe)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("/", s.handleNotFound)

	return s.logRequests(s.cors(mux))
}

// ListenAndServe serves the API on addr until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
