package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/internal/config"
)

// Server assembles the HTTP listener, the upgrade endpoint, and the hub.
type Server struct {
	cfg      config.Config
	hub      *Hub
	log      *slog.Logger
	upgrader websocket.Upgrader
	origins  *originPolicy
	http     *http.Server
}

// New builds a server from the given configuration. Nothing runs until
// ListenAndServe.
func New(cfg config.Config, log *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     NewHub(cfg.Chat.QueueSize, log),
		log:     log,
		origins: newOriginPolicy(cfg.Server.AllowedOrigins, log),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Hub exposes the broadcast hub, e.g. for the dashboard tap.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP routes; split out so tests can mount them on an
// httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// StartHub launches the hub loop. ListenAndServe calls it; tests mounting
// Handler directly call it themselves.
func (s *Server) StartHub() {
	go s.hub.Run()
}

// ListenAndServe starts the hub and blocks serving HTTP until Shutdown or
// a listener error. A bind failure is returned as-is.
func (s *Server) ListenAndServe() error {
	s.StartHub()
	s.log.Info("server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, then tears down the hub and all
// clients within timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpErr := s.http.Shutdown(ctx)
	hubErr := s.hub.Shutdown(timeout)
	return errors.Join(httpErr, hubErr)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": stats.Clients,
	}); err != nil {
		s.log.Warn("failed to write health response", "err", err)
	}
}
