package signal

import (
	"context"
	"net/http"
	"strings"
	"time"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"
	apperrors "twintalk/pkg/errors"
	rlog "twintalk/pkg/logger"
	"twintalk/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// IdentityResolver turns a bearer token into display attributes.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (domain.DisplayAttrs, error)
}

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string

	// RequireAuth rejects upgrades that carry no valid token.
	RequireAuth bool

	// Per-connection inbound message rate; zero disables limiting.
	MessagesPerSecond float64
	Burst             int
	MaxConnections    int
}

func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBuffer:     256,
		MaxMessageSize: 4 << 20,
	}
}

type WebSocketServer struct {
	hub        *Hub
	presence   ports.PresenceService
	dispatcher ports.MessageDispatcher
	identity   IdentityResolver

	upgrader websocket.Upgrader
	opts     Options
	logger   *zap.SugaredLogger
}

func NewWebSocketServer(
	hub *Hub,
	presence ports.PresenceService,
	dispatcher ports.MessageDispatcher,
	identity IdentityResolver,
	opts Options,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	s := &WebSocketServer{
		hub:        hub,
		presence:   presence,
		dispatcher: dispatcher,
		identity:   identity,
		opts:       opts,
		logger:     logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return lo.Contains(s.opts.AllowedOrigins, "*") || lo.Contains(s.opts.AllowedOrigins, origin)
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxConnections > 0 && s.hub.Count() >= s.opts.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	attrs, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	id := domain.ConnectionID(utils.GenerateConnectionID())
	c := newClient(id, conn, s.opts.SendBuffer)
	s.hub.attach(c)

	ctx, cancel := context.WithCancel(rlog.WithValue(context.Background(), rlog.ConnectionIDKey, string(id)))
	defer cancel()

	s.presence.Connect(ctx, id, attrs)
	s.logger.Infow("connection opened",
		"connection_id", id,
		"remote_addr", r.RemoteAddr,
		"user_id", attrs.UserID,
	)
	s.hub.Send(ctx, id, domain.ConnectedEvent{PeerID: id})

	go s.writePump(c)
	s.readPump(ctx, c)

	// Membership goes first so peers are told before the socket disappears.
	s.presence.Disconnect(context.Background(), id)
	s.hub.detach(c)
	c.close()
}

func (s *WebSocketServer) authenticate(w http.ResponseWriter, r *http.Request) (domain.DisplayAttrs, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}

	if token == "" || s.identity == nil {
		if s.opts.RequireAuth {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return domain.DisplayAttrs{}, false
		}
		return domain.DisplayAttrs{}, true
	}

	attrs, err := s.identity.ResolveIdentity(r.Context(), token)
	if err != nil {
		s.logger.Warnw("rejected websocket token", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return domain.DisplayAttrs{}, false
	}
	return attrs, true
}

// readPump handles frames strictly in arrival order until the socket fails.
func (s *WebSocketServer) readPump(ctx context.Context, c *client) {
	if s.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), lo.Max([]int{s.opts.Burst, 1}))
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Infow("error reading message from connection", "connection_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if limiter != nil && !limiter.Allow() {
			s.dispatcher.Reject(ctx, c.id, "", apperrors.NewRateLimitError())
			continue
		}

		msg, event, err := DecodeMessage(data)
		if err != nil {
			s.dispatcher.Reject(ctx, c.id, event, err)
			continue
		}
		s.dispatcher.Dispatch(ctx, c.id, msg)
	}
}

func (s *WebSocketServer) writePump(c *client) {
	pingTicker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debugw("write failed", "connection_id", c.id, "error", err)
				c.close()
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debugw("error sending ping", "connection_id", c.id, "error", err)
				c.close()
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.opts.WriteTimeout))
			return
		}
	}
}

// Shutdown closes every connection; each one still runs its disconnect path.
func (s *WebSocketServer) Shutdown() {
	s.hub.CloseAll()
}

func (s *WebSocketServer) ConnectionCount() int {
	return s.hub.Count()
}
