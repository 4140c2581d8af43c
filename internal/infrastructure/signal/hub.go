package signal

import (
	"context"
	"fmt"
	"sync"

	"twintalk/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// client is one upgraded socket. Writes go through send; only the write pump
// touches the socket for writing.
type client struct {
	id        domain.ConnectionID
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id domain.ConnectionID, conn *websocket.Conn, buffer int) *client {
	if buffer <= 0 {
		buffer = 256
	}
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Hub maps connection ids to live sockets and implements ports.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConnectionID]*client
	logger  *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[domain.ConnectionID]*client),
		logger:  logger,
	}
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
}

// Send queues event for the connection without blocking. A missing or
// saturated connection is reported as unreachable.
func (h *Hub) Send(ctx context.Context, to domain.ConnectionID, event domain.OutboundEvent) error {
	data, err := EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrInternal, event.EventName(), err)
	}

	h.mu.RLock()
	c, ok := h.clients[to]
	h.mu.RUnlock()
	if !ok {
		return domain.ErrPeerUnreachable
	}

	select {
	case <-c.done:
		return domain.ErrPeerUnreachable
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		h.logger.Warnw("send buffer full, dropping event",
			"connection_id", to,
			"event", event.EventName(),
		)
		return domain.ErrPeerUnreachable
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll asks every connection to shut down. Each connection still runs its
// own cleanup.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.close()
	}
}
