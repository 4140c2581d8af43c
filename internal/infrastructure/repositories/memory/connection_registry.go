package memory

import (
	"context"
	"sync"
	"time"

	"twintalk/internal/core/domain"
)

// ConnectionRegistry maps live connection ids to their current meeting and
// display attributes. All lookups are keyed; nothing is ordered.
type ConnectionRegistry struct {
	connections map[domain.ConnectionID]*domain.Connection
	mu          sync.RWMutex
	now         func() time.Time
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[domain.ConnectionID]*domain.Connection),
		now:         time.Now,
	}
}

func (r *ConnectionRegistry) Register(ctx context.Context, id domain.ConnectionID, attrs domain.DisplayAttrs) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[id] = &domain.Connection{
		ID:          id,
		UserID:      attrs.UserID,
		DisplayName: attrs.DisplayName,
		Avatar:      attrs.Avatar,
		ConnectedAt: r.now(),
	}
}

// SetRoom binds the connection to code, replacing any previous binding.
func (r *ConnectionRegistry) SetRoom(ctx context.Context, id domain.ConnectionID, code domain.MeetingCode, attrs domain.DisplayAttrs) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists {
		return domain.ErrConnectionNotFound
	}

	conn.MeetingCode = code
	conn.DisplayName = attrs.DisplayName
	conn.Avatar = attrs.Avatar
	if attrs.UserID != "" {
		conn.UserID = attrs.UserID
	}
	return nil
}

func (r *ConnectionRegistry) SetAvatar(ctx context.Context, id domain.ConnectionID, avatar domain.AvatarState) (domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists {
		return domain.Connection{}, domain.ErrConnectionNotFound
	}

	conn.Avatar = avatar
	return *conn, nil
}

// ClearRoom removes the room binding and returns the room the connection was in.
func (r *ConnectionRegistry) ClearRoom(ctx context.Context, id domain.ConnectionID) (domain.MeetingCode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists || conn.MeetingCode == "" {
		return "", false
	}

	code := conn.MeetingCode
	conn.MeetingCode = ""
	conn.Avatar = domain.AvatarState{}
	return code, true
}

// ClearRoomIf clears the binding only while it still points at code, so a
// stale cleanup cannot undo a newer join.
func (r *ConnectionRegistry) ClearRoomIf(ctx context.Context, id domain.ConnectionID, code domain.MeetingCode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists || conn.MeetingCode != code {
		return false
	}

	conn.MeetingCode = ""
	conn.Avatar = domain.AvatarState{}
	return true
}

func (r *ConnectionRegistry) Get(ctx context.Context, id domain.ConnectionID) (domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	if !exists {
		return domain.Connection{}, domain.ErrConnectionNotFound
	}
	return *conn, nil
}

// Remove destroys the record. Only the first call for an id reports true.
func (r *ConnectionRegistry) Remove(ctx context.Context, id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists {
		return domain.Connection{}, false
	}

	delete(r.connections, id)
	return *conn, true
}

func (r *ConnectionRegistry) Count(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
