package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"
	"twintalk/internal/infrastructure/monitoring"
	"twintalk/internal/infrastructure/repositories/memory"
	"twintalk/internal/infrastructure/storage"
	apperrors "twintalk/pkg/errors"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// inbox records every event delivered to each connection.
type inbox struct {
	mu     sync.Mutex
	events map[domain.ConnectionID][]domain.OutboundEvent
	down   map[domain.ConnectionID]bool
}

func newInbox() *inbox {
	return &inbox{
		events: make(map[domain.ConnectionID][]domain.OutboundEvent),
		down:   make(map[domain.ConnectionID]bool),
	}
}

func (b *inbox) Send(ctx context.Context, to domain.ConnectionID, event domain.OutboundEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down[to] {
		return domain.ErrPeerUnreachable
	}
	b.events[to] = append(b.events[to], event)
	return nil
}

func (b *inbox) of(id domain.ConnectionID) []domain.OutboundEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.OutboundEvent(nil), b.events[id]...)
}

func (b *inbox) named(id domain.ConnectionID, name domain.EventName) []domain.OutboundEvent {
	return lo.Filter(b.of(id), func(e domain.OutboundEvent, _ int) bool {
		return e.EventName() == name
	})
}

func (b *inbox) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[domain.ConnectionID][]domain.OutboundEvent)
}

type fixture struct {
	conns      *memory.ConnectionRegistry
	meetings   *memory.MeetingRegistry
	recordings *RecordingService
	presence   *PresenceService
	router     *MessageRouter
	meetingSvc *MeetingService
	inbox      *inbox
}

func newFixture(t *testing.T, policy domain.JoinPolicy) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	metrics := monitoring.NopMetrics{}

	f := &fixture{
		conns:    memory.NewConnectionRegistry(),
		meetings: memory.NewMeetingRegistry(memory.MeetingRegistryConfig{JoinPolicy: policy}),
		inbox:    newInbox(),
	}
	f.recordings = NewRecordingService(f.meetings, storage.NewMemoryStore(), metrics, logger, RecordingConfig{})
	f.presence = NewPresenceService(f.conns, f.meetings, f.recordings, f.inbox, metrics, logger, PresenceConfig{})
	f.router = NewMessageRouter(f.conns, f.meetings, f.recordings, f.presence, f.inbox, metrics, logger, RouterConfig{})
	f.meetingSvc = NewMeetingService(f.meetings, metrics, logger, "Guest")
	return f
}

func (f *fixture) connect(ids ...domain.ConnectionID) {
	for _, id := range ids {
		f.presence.Connect(context.Background(), id, domain.DisplayAttrs{})
	}
}

func (f *fixture) dispatch(t *testing.T, from domain.ConnectionID, msg domain.InboundMessage) error {
	t.Helper()
	return f.router.Dispatch(context.Background(), from, msg)
}

func (f *fixture) join(t *testing.T, id domain.ConnectionID, code domain.MeetingCode, name string) {
	t.Helper()
	require.NoError(t, f.dispatch(t, id, domain.JoinMessage{MeetingCode: code, DisplayName: name}))
}

func lastParticipants(t *testing.T, b *inbox, id domain.ConnectionID) []domain.ParticipantView {
	t.Helper()
	updates := b.named(id, domain.EventParticipantsUpdated)
	require.NotEmpty(t, updates, "no participants-updated for %s", id)
	return updates[len(updates)-1].(domain.ParticipantsUpdatedEvent).Participants
}

func TestMessageRouter_TwoPeerCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyStrict)

	info, err := f.meetingSvc.CreateMeeting(ctx, "Standup", "Alice")
	require.NoError(t, err)
	code := info.Code

	f.connect("c1", "c2")

	f.join(t, "c1", code, "Alice")
	existing := f.inbox.named("c1", domain.EventExistingPeers)
	require.Len(t, existing, 1)
	assert.Empty(t, existing[0].(domain.ExistingPeersEvent).Peers)
	assert.True(t, existing[0].(domain.ExistingPeersEvent).IsHost)

	f.join(t, "c2", code, "Bob")
	existing = f.inbox.named("c2", domain.EventExistingPeers)
	require.Len(t, existing, 1)
	peers := existing[0].(domain.ExistingPeersEvent).Peers
	require.Len(t, peers, 1)
	assert.Equal(t, domain.ConnectionID("c1"), peers[0].PeerID)
	assert.True(t, peers[0].IsHost)

	joined := f.inbox.named("c1", domain.EventPeerJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "Bob", joined[0].(domain.PeerJoinedEvent).Name)
	assert.Empty(t, f.inbox.named("c2", domain.EventPeerJoined))

	for _, id := range []domain.ConnectionID{"c1", "c2"} {
		names := lo.Map(lastParticipants(t, f.inbox, id), func(p domain.ParticipantView, _ int) string { return p.Name })
		assert.Equal(t, []string{"Alice", "Bob"}, names)
	}

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, f.dispatch(t, "c2", domain.RelayMessage{Kind: domain.SignalOffer, TargetID: "c1", Payload: offer}))
	relayed := f.inbox.named("c1", domain.EventWebRTCOffer)
	require.Len(t, relayed, 1)
	assert.Equal(t, domain.ConnectionID("c2"), relayed[0].(domain.SignalEvent).FromID)
	assert.JSONEq(t, string(offer), string(relayed[0].(domain.SignalEvent).Payload))

	f.inbox.reset()
	assert.True(t, f.presence.Disconnect(ctx, "c2"))
	assert.False(t, f.presence.Disconnect(ctx, "c2"))

	left := f.inbox.named("c1", domain.EventPeerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.PeerLeftEvent{PeerID: "c2", Name: "Bob"}, left[0])
	assert.Len(t, lastParticipants(t, f.inbox, "c1"), 1)
}

func TestMessageRouter_RelayToUnknownTarget(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM1", "Bob")
	f.inbox.reset()

	err := f.dispatch(t, "c1", domain.RelayMessage{Kind: domain.SignalICECandidate, TargetID: "ghost", Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, domain.ErrPeerUnreachable)

	notices := f.inbox.of("c1")
	require.Len(t, notices, 1)
	assert.Equal(t, domain.PeerDisconnectedEvent{PeerID: "ghost"}, notices[0])
	assert.Empty(t, f.inbox.of("c2"))
}

func TestMessageRouter_RelayAcrossMeetingsIsUnreachable(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM2", "Bob")
	f.inbox.reset()

	err := f.dispatch(t, "c1", domain.RelayMessage{Kind: domain.SignalOffer, TargetID: "c2"})
	assert.ErrorIs(t, err, domain.ErrPeerUnreachable)
	assert.Empty(t, f.inbox.of("c2"))
}

func TestMessageRouter_ChatExcludesSender(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2", "c3")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM1", "Bob")
	f.join(t, "c3", "OTHER", "Carol")
	f.inbox.reset()

	require.NoError(t, f.dispatch(t, "c1", domain.ChatMessage{Message: "  hello  "}))

	assert.Empty(t, f.inbox.of("c1"))
	assert.Empty(t, f.inbox.of("c3"))
	chats := f.inbox.named("c2", domain.EventChatMessage)
	require.Len(t, chats, 1)
	chat := chats[0].(domain.ChatEvent)
	assert.Equal(t, "hello", chat.Message)
	assert.Equal(t, "Alice", chat.Name)
	assert.NotZero(t, chat.ServerTimestamp)
}

func TestMessageRouter_ChatOutsideMeeting(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1")

	err := f.dispatch(t, "c1", domain.ChatMessage{Message: "anyone?"})
	assert.ErrorIs(t, err, domain.ErrNotMember)

	notices := f.inbox.named("c1", domain.EventError)
	require.Len(t, notices, 1)
	assert.Equal(t, string(apperrors.ErrCodeNotFound), notices[0].(domain.ErrorEvent).Code)
}

func TestMessageRouter_StrictJoinUnknownMeeting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyStrict)
	f.connect("c1")

	err := f.dispatch(t, "c1", domain.JoinMessage{MeetingCode: "NOPE1234", DisplayName: "Alice"})
	assert.ErrorIs(t, err, domain.ErrMeetingNotFound)

	notices := f.inbox.of("c1")
	require.Len(t, notices, 1)
	assert.Equal(t, domain.EventJoinError, notices[0].EventName())
	assert.Equal(t, string(apperrors.ErrCodeNotFound), notices[0].(domain.JoinErrorEvent).Code)

	conn, err := f.conns.Get(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, conn.InMeeting())
	assert.False(t, f.meetings.Exists(ctx, "NOPE1234"))
}

func TestMessageRouter_JoinValidation(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1")

	err := f.dispatch(t, "c1", domain.JoinMessage{MeetingCode: "bad code!"})
	assert.ErrorIs(t, err, domain.ErrMalformed)
	assert.Len(t, f.inbox.named("c1", domain.EventJoinError), 1)
}

func TestMessageRouter_DefaultDisplayName(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1")
	f.join(t, "c1", "ROOM1", "   ")

	assert.Equal(t, "Guest", lastParticipants(t, f.inbox, "c1")[0].Name)
}

func TestMessageRouter_RejoinDoesNotAnnounceAgain(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM1", "Bob")
	f.inbox.reset()

	f.join(t, "c2", "ROOM1", "Robert")

	assert.Empty(t, f.inbox.named("c1", domain.EventPeerJoined))
	names := lo.Map(lastParticipants(t, f.inbox, "c1"), func(p domain.ParticipantView, _ int) string { return p.Name })
	assert.Equal(t, []string{"Alice", "Robert"}, names)
}

func TestMessageRouter_JoinAnotherMeetingLeavesFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM1", "Bob")
	f.inbox.reset()

	f.join(t, "c2", "ROOM2", "Bob")

	left := f.inbox.named("c1", domain.EventPeerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.ConnectionID("c2"), left[0].(domain.PeerLeftEvent).PeerID)

	members, err := f.meetings.Members(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
	conn, err := f.conns.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingCode("ROOM2"), conn.MeetingCode)
}

func TestMessageRouter_RejectedJoinKeepsCurrentMeeting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyStrict)
	current, err := f.meetingSvc.CreateMeeting(ctx, "Standup", "Alice")
	require.NoError(t, err)
	ending, err := f.meetingSvc.CreateMeeting(ctx, "Retro", "Carol")
	require.NoError(t, err)

	f.connect("c1", "c2", "c3")
	f.join(t, "c1", current.Code, "Alice")
	f.join(t, "c2", current.Code, "Bob")
	f.join(t, "c3", ending.Code, "Carol")
	require.NoError(t, f.dispatch(t, "c1", domain.StartRecordingMessage{RoomID: current.Code, RecordingID: "rec-1"}))
	_, err = f.meetings.BeginEnd(ctx, ending.Code, "c3")
	require.NoError(t, err)

	tests := []struct {
		name string
		code domain.MeetingCode
		err  error
	}{
		{"unknown meeting", "NOPE2345", domain.ErrMeetingNotFound},
		{"meeting being ended", ending.Code, domain.ErrMeetingClosing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.inbox.reset()

			err := f.dispatch(t, "c1", domain.JoinMessage{MeetingCode: tt.code, DisplayName: "Alice"})
			assert.ErrorIs(t, err, tt.err)
			assert.Len(t, f.inbox.named("c1", domain.EventJoinError), 1)
			assert.Empty(t, f.inbox.of("c2"))

			members, err := f.meetings.Members(ctx, current.Code)
			require.NoError(t, err)
			require.Len(t, members, 2)
			assert.Equal(t, domain.ConnectionID("c1"), members[0].ID)
			assert.True(t, members[0].IsHost)

			conn, err := f.conns.Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, current.Code, conn.MeetingCode)

			session, err := f.recordings.Get(ctx, "rec-1")
			require.NoError(t, err)
			assert.True(t, session.Active())
		})
	}
}

func TestMessageRouter_JoinIgnoresCodeCase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyStrict)
	info, err := f.meetingSvc.CreateMeeting(ctx, "Standup", "Alice")
	require.NoError(t, err)

	f.connect("c1", "c2")
	f.join(t, "c1", info.Code, "Alice")
	f.join(t, "c2", domain.MeetingCode(" "+strings.ToLower(string(info.Code))+" "), "Bob")

	conn, err := f.conns.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, info.Code, conn.MeetingCode)

	members, err := f.meetings.Members(ctx, info.Code)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	lower := domain.MeetingCode(strings.ToLower(string(info.Code)))
	require.NoError(t, f.dispatch(t, "c2", domain.ChatMessage{RoomID: lower, Message: "hi"}))
	assert.Len(t, f.inbox.named("c1", domain.EventChatMessage), 1)
}

func TestMessageRouter_HostLeavesPromotesNext(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2", "c3")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM1", "Bob")
	f.join(t, "c3", "ROOM1", "Carol")
	f.inbox.reset()

	require.NoError(t, f.dispatch(t, "c1", domain.LeaveMessage{}))

	participants := lastParticipants(t, f.inbox, "c3")
	require.Len(t, participants, 2)
	assert.Equal(t, domain.ConnectionID("c2"), participants[0].ID)
	assert.True(t, participants[0].IsHost)
	assert.False(t, participants[1].IsHost)
	assert.Empty(t, f.inbox.of("c1"))
}

func TestMessageRouter_AvatarToggle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM1", "Bob")
	f.inbox.reset()

	require.NoError(t, f.dispatch(t, "c1", domain.SetAvatarMessage{Avatar: "https://cdn.example.com/a.glb"}))
	set := f.inbox.named("c2", domain.EventSetAvatar)
	require.Len(t, set, 1)
	assert.Equal(t, "https://cdn.example.com/a.glb", set[0].(domain.AvatarEvent).Avatar)
	assert.Empty(t, f.inbox.of("c1"))

	conn, err := f.conns.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, conn.Avatar.Enabled)

	require.NoError(t, f.dispatch(t, "c1", domain.AvatarOffMessage{}))
	assert.Len(t, f.inbox.named("c2", domain.EventAvatarOff), 1)

	conn, err = f.conns.Get(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, conn.Avatar.Enabled)
}

func TestMessageRouter_EndMeeting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM1", "Bob")
	require.NoError(t, f.dispatch(t, "c1", domain.StartRecordingMessage{RoomID: "ROOM1", RecordingID: "rec-1"}))
	f.inbox.reset()

	err := f.dispatch(t, "c2", domain.EndMeetingMessage{})
	assert.ErrorIs(t, err, domain.ErrNotHost)
	assert.Equal(t, string(apperrors.ErrCodeForbidden), f.inbox.named("c2", domain.EventError)[0].(domain.ErrorEvent).Code)
	f.inbox.reset()

	require.NoError(t, f.dispatch(t, "c1", domain.EndMeetingMessage{RoomID: "ROOM1"}))

	for _, id := range []domain.ConnectionID{"c1", "c2"} {
		events := f.inbox.of(id)
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventRecordingStopped, events[0].EventName())
		assert.Equal(t, domain.MeetingEndedEvent{RoomID: "ROOM1"}, events[1])

		conn, err := f.conns.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, conn.InMeeting())
	}
	assert.False(t, f.meetings.Exists(ctx, "ROOM1"))

	session, err := f.recordings.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.False(t, session.Active())
}

func TestMessageRouter_RecordingFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM1", "Bob")
	f.inbox.reset()

	require.NoError(t, f.dispatch(t, "c1", domain.StartRecordingMessage{RoomID: "ROOM1", RecordingID: "rec-1"}))
	for _, id := range []domain.ConnectionID{"c1", "c2"} {
		started := f.inbox.named(id, domain.EventRecordingStarted)
		require.Len(t, started, 1)
		assert.Equal(t, domain.ConnectionID("c1"), started[0].(domain.RecordingStartedEvent).OwnerID)
	}

	err := f.dispatch(t, "c2", domain.StartRecordingMessage{RoomID: "ROOM1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyRecording)

	require.NoError(t, f.dispatch(t, "c1", domain.RecordingChunkMessage{RecordingID: "rec-1", ChunkBytes: []byte("ABC")}))
	require.NoError(t, f.dispatch(t, "c1", domain.RecordingChunkMessage{RecordingID: "rec-1", ChunkBytes: []byte("DEF"), IsLast: true}))

	stopped := f.inbox.named("c2", domain.EventRecordingStopped)
	require.Len(t, stopped, 1)
	assert.Equal(t, int64(6), stopped[0].(domain.RecordingStoppedEvent).Size)
	assert.Equal(t, 2, stopped[0].(domain.RecordingStoppedEvent).ChunkCount)

	data, _, err := f.recordings.Artifact(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", string(data))

	err = f.dispatch(t, "c1", domain.StopRecordingMessage{})
	assert.ErrorIs(t, err, domain.ErrRecordingNotFound)
}

func TestMessageRouter_StopRecordingOfOtherMeeting(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1", "c2")
	f.join(t, "c1", "ROOM1", "Alice")
	f.join(t, "c2", "ROOM2", "Bob")
	require.NoError(t, f.dispatch(t, "c1", domain.StartRecordingMessage{RoomID: "ROOM1", RecordingID: "rec-1"}))

	err := f.dispatch(t, "c2", domain.StopRecordingMessage{RecordingID: "rec-1"})
	assert.ErrorIs(t, err, domain.ErrRecordingNotFound)

	err = f.dispatch(t, "c2", domain.RecordingChunkMessage{RecordingID: "rec-1", ChunkBytes: []byte("x")})
	assert.ErrorIs(t, err, domain.ErrNotMember)
}

func TestMessageRouter_LastLeaveFinalizesRecording(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1")
	f.join(t, "c1", "ROOM1", "Alice")
	require.NoError(t, f.dispatch(t, "c1", domain.StartRecordingMessage{RoomID: "ROOM1", RecordingID: "rec-1"}))
	require.NoError(t, f.dispatch(t, "c1", domain.RecordingChunkMessage{RecordingID: "rec-1", ChunkBytes: []byte("partial")}))

	f.presence.Disconnect(ctx, "c1")

	session, err := f.recordings.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingStatusCompleted, session.Status)
	assert.False(t, f.meetings.Exists(ctx, "ROOM1"))

	data, _, err := f.recordings.Artifact(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))
}

func TestMessageRouter_RejectSendsOneNotice(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	f.connect("c1")

	f.router.Reject(context.Background(), "c1", domain.EventChatMessage, fmt.Errorf("%w: message is required", domain.ErrMalformed))

	notices := f.inbox.of("c1")
	require.Len(t, notices, 1)
	notice := notices[0].(domain.ErrorEvent)
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), notice.Code)
	assert.Equal(t, domain.EventChatMessage, notice.Event)
}

// brokenRegistry panics on every call.
type brokenRegistry struct {
	ports.MeetingRegistry
}

func TestMessageRouter_RecoversFromPanics(t *testing.T) {
	f := newFixture(t, domain.JoinPolicyPermissive)
	logger := zaptest.NewLogger(t).Sugar()
	router := NewMessageRouter(f.conns, brokenRegistry{}, f.recordings, f.presence, f.inbox, monitoring.NopMetrics{}, logger, RouterConfig{})
	f.connect("c1")

	err := router.Dispatch(context.Background(), "c1", domain.JoinMessage{MeetingCode: "ROOM1"})
	assert.ErrorIs(t, err, domain.ErrInternal)

	notices := f.inbox.named("c1", domain.EventJoinError)
	require.Len(t, notices, 1)
	assert.Equal(t, string(apperrors.ErrCodeInternal), notices[0].(domain.JoinErrorEvent).Code)
}

func TestMessageRouter_ConcurrentJoinLeave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyPermissive)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := domain.ConnectionID(fmt.Sprintf("c%d", i))
		f.connect(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.router.Dispatch(ctx, id, domain.JoinMessage{MeetingCode: "ROOM1", DisplayName: string(id)})
			if id[len(id)-1]%2 == 0 {
				f.presence.Disconnect(ctx, id)
			}
		}()
	}
	wg.Wait()

	members, err := f.meetings.Members(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Len(t, members, 10)
	assert.Equal(t, 1, lo.CountBy(members, func(p domain.Participant) bool { return p.IsHost }))
	for _, m := range members {
		conn, err := f.conns.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.MeetingCode("ROOM1"), conn.MeetingCode)
	}
}
