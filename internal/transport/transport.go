// Package transport exposes the single WebSocket endpoint participants and
// presenters connect to. It owns the connection lifecycle (accept, auth
// handshake, read loop, disconnect cleanup) and hands every validated frame
// to a [Router], which is implemented by the orchestrator. Transport never
// interprets frame semantics beyond join and auth — everything else is
// somebody else's problem.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/simbridge/medsim/internal/config"
	"github.com/simbridge/medsim/internal/gatewayerr"
	"github.com/simbridge/medsim/internal/session"
	"github.com/simbridge/medsim/internal/validate"
)

// writeTimeout bounds how long a single outbound frame write may take before
// the connection is considered dead.
const writeTimeout = 10 * time.Second

// errAuthRejected signals that awaitJoin closed the socket itself after an
// auth failure; the caller only needs to know not to proceed, the client
// already received the error frame and close code.
var errAuthRejected = errors.New("transport: auth rejected")

// IdentityVerifier verifies a join auth token and returns the subject it was
// issued for. Used only when the configured auth mode is "secure".
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (uid string, err error)
}

// Router receives validated inbound frames and disconnect notifications for
// a joined connection. The orchestrator implements this.
type Router interface {
	HandleFrame(ctx context.Context, sessionID, userID string, role session.Role, frame any)
	HandleDisconnect(sessionID, userID string, role session.Role)
}

// Server accepts WebSocket connections at a single fixed path and wires them
// into the session [session.Manager] and a [Router].
type Server struct {
	manager  *session.Manager
	router   Router
	verifier IdentityVerifier
	authMode config.AuthMode
}

// Config bundles Server's dependencies.
type Config struct {
	Manager  *session.Manager
	Router   Router
	Verifier IdentityVerifier
	AuthMode config.AuthMode
}

// New creates a [Server]. AuthMode defaults to secure if unset; callers must
// supply a Verifier when operating in secure mode.
func New(cfg Config) *Server {
	mode := cfg.AuthMode
	if mode == "" {
		mode = config.AuthModeSecure
	}
	return &Server{
		manager:  cfg.Manager,
		router:   cfg.Router,
		verifier: cfg.Verifier,
		authMode: mode,
	}
}

// clientContext tracks per-connection join state.
type clientContext struct {
	joined    bool
	sessionID string
	role      session.Role
	userID    string
}

// ServeHTTP upgrades the request to a WebSocket and runs the connection's
// read loop until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("transport: websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	c := &wsConn{conn: conn}
	ctx := r.Context()

	cc, err := s.awaitJoin(ctx, c)
	if err != nil {
		return
	}

	s.manager.AddClient(cc.sessionID, cc.role, c)
	s.sendJoined(ctx, c, cc)

	defer func() {
		s.manager.RemoveClient(cc.sessionID, cc.role, c)
		s.router.HandleDisconnect(cc.sessionID, cc.userID, cc.role)
	}()

	s.readLoop(ctx, c, cc)
	conn.Close(websocket.StatusNormalClosure, "closed")
}

// awaitJoin reads frames until a valid join arrives. Any other frame type
// (or a malformed frame) is answered with an error and discarded; the
// connection stays open for another attempt. A token that fails auth
// verification closes the socket immediately, since the client cannot
// meaningfully retry without a new token. Returns a non-nil error only when
// the connection itself is gone (read failure) or the socket was closed for
// auth.
func (s *Server) awaitJoin(ctx context.Context, c *wsConn) (*clientContext, error) {
	for {
		raw, err := c.readRaw(ctx)
		if err != nil {
			return nil, err
		}

		frame, err := validate.ParseInbound(raw)
		if err != nil {
			s.sendError(ctx, c, err)
			continue
		}

		join, ok := frame.(validate.JoinFrame)
		if !ok {
			s.sendError(ctx, c, gatewayerr.NewProtocol("transport", "first frame must be join"))
			continue
		}

		if s.authMode == config.AuthModeSecure {
			if s.verifier == nil {
				s.sendError(ctx, c, gatewayerr.NewAuth("transport", "secure auth mode configured without a verifier"))
				c.conn.Close(websocket.StatusPolicyViolation, "auth unavailable")
				return nil, errAuthRejected
			}
			uid, verr := s.verifier.Verify(ctx, join.AuthToken)
			if verr != nil || uid != join.UserID {
				s.sendError(ctx, c, gatewayerr.NewAuth("transport", "auth token invalid or subject mismatch"))
				c.conn.Close(websocket.StatusPolicyViolation, "auth failed")
				return nil, errAuthRejected
			}
		}

		return &clientContext{
			joined:    true,
			sessionID: join.SessionID,
			role:      session.Role(join.Role),
			userID:    join.UserID,
		}, nil
	}
}

// readLoop reads and routes frames until the connection closes or the
// context is cancelled.
func (s *Server) readLoop(ctx context.Context, c *wsConn, cc *clientContext) {
	for {
		raw, err := c.readRaw(ctx)
		if err != nil {
			return
		}

		frame, err := validate.ParseInbound(raw)
		if err != nil {
			s.sendError(ctx, c, err)
			continue
		}

		if _, isJoin := frame.(validate.JoinFrame); isJoin {
			s.sendError(ctx, c, gatewayerr.NewProtocol("transport", "already joined"))
			continue
		}

		s.router.HandleFrame(ctx, cc.sessionID, cc.userID, cc.role, frame)
	}
}

type joinedMsg struct {
	Type         string `json:"type"`
	SessionID    string `json:"sessionId"`
	Role         string `json:"role"`
	InsecureMode bool   `json:"insecureMode,omitempty"`
}

func (s *Server) sendJoined(ctx context.Context, c *wsConn, cc *clientContext) {
	_ = c.send(ctx, joinedMsg{
		Type:         "joined",
		SessionID:    cc.sessionID,
		Role:         string(cc.role),
		InsecureMode: s.authMode == config.AuthModeInsecure,
	})
}

type errorMsg struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) sendError(ctx context.Context, c *wsConn, err error) {
	kind, ok := gatewayerr.KindOf(err)
	if !ok {
		kind = gatewayerr.KindProtocol
	}
	_ = c.send(ctx, errorMsg{Type: "error", Kind: string(kind), Message: err.Error()})
}

// wsConn adapts a [*websocket.Conn] to [session.Conn] and provides the raw
// JSON read helper the read loop needs.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) readRaw(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

var _ session.Conn = (*wsConn)(nil)
