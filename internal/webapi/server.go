// Package webapi implements the node's read-only HTTP snapshot
// surface: GET /api/state, GET /api/updates, GET /healthz, and
// /metrics, grounded on original_source/webapi/http_api.py's
// RequestHandler/WebAPIServer (do_GET dispatch over
// ThreadingHTTPServer), translated into net/http and an
// http.ServeMux.
package webapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/state"
)

// StateProvider and UpdatesProvider mirror the original's
// state_provider callback, bound to the node's Engine in
// cmd/sensor-mesh.
type StateProvider func() state.Snapshot
type UpdatesProvider func() state.Snapshot

// Server is the node's read-only HTTP surface.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	log        logging.Logger
}

// NewServer builds a Server bound to addr, ready for Start. /metrics is
// always served by promhttp.Handler(), which reads the default
// prometheus registry.
func NewServer(addr string, getState StateProvider, getUpdates UpdatesProvider, log logging.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", corsJSON(log, func() (interface{}, error) {
		return getState(), nil
	}))
	mux.HandleFunc("/api/updates", corsJSON(log, func() (interface{}, error) {
		return getUpdates(), nil
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		log:        log,
	}
}

// Start binds the listening socket and serves in its own goroutine.
// Per original_source's do_GET try/except, a handler panic is
// recovered by net/http itself (it already logs and closes the
// connection); the two snapshot handlers additionally answer 500 when
// their response cannot be encoded as JSON.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		s.log.Info("webapi server started")
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("webapi server crashed: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listener's address, useful when the
// configured port was 0 (ephemeral, as in tests).
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop gracefully shuts the server down, bounded to 5 seconds.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warnf("error while stopping webapi: %v", err)
		return
	}
	s.log.Info("webapi server stopped")
}

func corsJSON(log logging.Logger, produce func() (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")

		payload, err := produce()
		if err != nil {
			log.Errorf("failed to produce state for %s: %v", r.URL.Path, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		body, err := json.Marshal(payload)
		if err != nil {
			log.Errorf("failed to encode response for %s: %v", r.URL.Path, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}
