// Package server exposes a live session to remote viewers over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/internal/daemon/engine"
	"github.com/grovetools/pgpulse/pkg/daemon"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Server streams Bus deliveries to remote viewers and answers status queries.
type Server struct {
	logger   *logrus.Entry
	bus      *bus.Bus
	engine   *engine.Engine
	upgrader websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
}

// New creates a Server reading from b.
func New(logger *logrus.Entry, b *bus.Bus) *Server {
	return &Server{
		logger: logger,
		bus:    b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// SetEngine attaches the live session whose status is reported.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/stream", s.handleStream)

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe listens on addr ("unix:/path.sock" or "host:port") and
// blocks until the server stops or fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{Handler: s.Handler()}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	network, address := daemon.ParseAddr(addr)
	if network == "unix" {
		if _, err := os.Stat(address); err == nil {
			if err := os.Remove(address); err != nil {
				return fmt.Errorf("failed to remove stale socket: %w", err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(address), 0755); err != nil {
			return fmt.Errorf("failed to create socket directory: %w", err)
		}
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if network == "unix" {
		if err := os.Chmod(address, 0600); err != nil {
			_ = listener.Close()
			return fmt.Errorf("failed to set socket permissions: %w", err)
		}
	}

	s.logger.WithField("addr", addr).Info("Viewer endpoint listening")
	err = srv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("Shutting down viewer endpoint")
	return srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.engine.Status())
}

// handleSnapshot returns the Bus's current Snapshot, or 204 before the first tick.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.bus.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, snap)
}

// handleStream upgrades to a websocket and forwards every delivery of a fresh
// Bus subscription. Viewers that fall behind lose the oldest deliveries, as
// any other subscriber would.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe("ws:" + r.RemoteAddr)
	defer s.bus.Unsubscribe(sub)
	logger := s.logger.WithField("viewer", r.RemoteAddr)
	logger.Debug("Viewer connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("Viewer disconnected")
			return
		case <-r.Context().Done():
			return
		case d, ok := <-sub.C():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"))
				return
			}
			data, err := json.Marshal(d)
			if err != nil {
				logger.WithError(err).Error("Failed to marshal delivery")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.WithError(err).Debug("Viewer write failed")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
