// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/pagecomposer/internal/activity"
	"github.com/matthewbaird/pagecomposer/internal/eventbus"
	"github.com/matthewbaird/pagecomposer/internal/hst"
	"github.com/matthewbaird/pagecomposer/internal/session"
)

// Config holds server configuration.
type Config struct {
	Port  int
	Store hst.Store
	// Origins are the host patterns allowed to open a channel.
	Origins []string
	// HSTURL, when set, is the REST endpoint containers are persisted to.
	// Otherwise sessions write to Store directly.
	HSTURL      string
	User        string
	CallTimeout time.Duration
	Sessions    *session.Manager
	Bus         *eventbus.Bus
	// Activity, when set, is served under /activity.
	Activity activity.Store
	Debug    bool
}

// NewRouter returns the HTTP handler serving every route.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Preview host: container REST endpoint, pages and rendered previews.
	hst.NewHandler(cfg.Store).RegisterRoutes(r)

	if cfg.Activity != nil {
		activity.NewHandler(cfg.Activity).RegisterRoutes(r)
	}

	// Editor channel
	r.Get("/ws/channel", newChannelHandler(cfg).ServeHTTP)

	return r
}

// Run starts the HTTP server and blocks until ctx is done.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewManager(24*time.Hour, 30*time.Minute)
	}
	go cfg.Sessions.Run(ctx, time.Minute)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("starting server on %s", addr)

	server := &http.Server{
		Addr:    addr,
		Handler: NewRouter(cfg),
		// Channel handlers block for the life of the socket; tie them to
		// ctx so shutdown ends them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
