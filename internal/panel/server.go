// Package panel serves the kiosk's local status display as JSON.
package panel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/andresmejia3/rollcall/internal/attendance"
	"github.com/andresmejia3/rollcall/internal/enroll"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Views selects what the panel exposes. Either workflow may be nil.
type Views struct {
	Loop     *attendance.Loop
	Pipeline *enroll.Pipeline
	Status   *enroll.Recorder
}

// Server is the status panel HTTP server.
type Server struct {
	views      Views
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer builds the panel for addr.
func NewServer(addr string, views Views) *Server {
	r := chi.NewRouter()
	s := &Server{views: views, router: r}

	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and serves until Shutdown. The
// bound address is returned once the listener is up.
func (s *Server) Start() (string, <-chan error, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to start panel: %w", err)
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("status panel listening")
	return ln.Addr().String(), errc, nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("panel request")
	})
}
