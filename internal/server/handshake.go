package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/internal/protocol"
)

// helloTimeout bounds how long a fresh connection may take to introduce
// itself before the server hangs up.
const helloTimeout = 10 * time.Second

// handleUpgrade accepts a websocket upgrade, performs the hello handshake,
// registers the connection, and hands it to the hub. Until Register
// succeeds no server state exists for the connection, so every failure
// before that point simply closes the socket.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "websocket endpoint only accepts GET", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	name, err := awaitHello(conn, s.cfg.Chat.MaxMessageSize)
	if err != nil {
		s.log.Warn("handshake failed", "remote", r.RemoteAddr, "err", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "hello frame required"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	id := uuid.New()
	if name == "" {
		name = "guest-" + id.String()[:8]
	}

	limiter := newRateLimiter(s.cfg.Chat.RateLimit.Burst, s.cfg.Chat.RateLimit.RefillInterval())
	client := newClient(id, name, conn, s.hub, s.cfg.Chat.MaxMessageSize, limiter, s.log)

	if err := s.hub.registry.Register(client); err != nil {
		// Unreachable with fresh random ids, but never assumed away.
		s.log.Error("registration collision, rejecting connection",
			"client_id", id, "name", name, "err", err)
		_ = conn.Close()
		return
	}

	client.log.Info("client connected", "remote", r.RemoteAddr, "total", s.hub.registry.Len())
	s.hub.Admit(client)
}

// awaitHello reads the first frame, which must be a hello carrying the
// requested display name.
func awaitHello(conn *websocket.Conn, limit int64) (string, error) {
	conn.SetReadLimit(limit)
	if err := conn.SetReadDeadline(time.Now().Add(helloTimeout)); err != nil {
		return "", fmt.Errorf("set handshake deadline: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read hello frame: %w", err)
	}
	frame, err := protocol.DecodeClientFrame(raw)
	if err != nil {
		return "", err
	}
	if frame.Type != protocol.FrameHello {
		return "", fmt.Errorf("expected hello frame, got %q", frame.Type)
	}
	return protocol.CleanName(frame.Name), nil
}
