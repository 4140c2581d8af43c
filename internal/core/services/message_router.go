package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"
	"twintalk/pkg/tracing"
	"twintalk/pkg/utils"
	"twintalk/pkg/validation"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const maxDisplayName = 64

type RouterConfig struct {
	DefaultName string
	Now         func() time.Time
}

// MessageRouter handles one inbound message at a time per connection. Every
// failure ends in at most one notice to the sender; nothing escapes Dispatch
// that could tear down the transport.
type MessageRouter struct {
	conns      ports.ConnectionRegistry
	meetings   ports.MeetingRegistry
	recordings ports.RecordingService
	presence   ports.PresenceService
	metrics    ports.MetricsRecorder
	out        *fanout
	logger     *zap.SugaredLogger
	cfg        RouterConfig
}

func NewMessageRouter(
	conns ports.ConnectionRegistry,
	meetings ports.MeetingRegistry,
	recordings ports.RecordingService,
	presence ports.PresenceService,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
	cfg RouterConfig,
) *MessageRouter {
	if cfg.DefaultName == "" {
		cfg.DefaultName = "Guest"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MessageRouter{
		conns:      conns,
		meetings:   meetings,
		recordings: recordings,
		presence:   presence,
		metrics:    metrics,
		out:        &fanout{conns: conns, notifier: notifier, logger: logger},
		logger:     logger,
		cfg:        cfg,
	}
}

func (r *MessageRouter) Dispatch(ctx context.Context, from domain.ConnectionID, msg domain.InboundMessage) (err error) {
	event := msg.EventName()
	ctx, span := tracing.TraceWebSocketMessage(ctx, string(event), string(from))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorw("panic while handling message",
				"event", event,
				"connection_id", from,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: panic handling %s", domain.ErrInternal, event)
		}
		r.settle(ctx, from, event, err)
	}()

	switch m := msg.(type) {
	case domain.JoinMessage:
		return r.handleJoin(ctx, from, m)
	case domain.LeaveMessage:
		_, err := r.presence.Leave(ctx, from)
		return err
	case domain.RelayMessage:
		return r.handleRelay(ctx, from, m)
	case domain.ChatMessage:
		return r.handleChat(ctx, from, m)
	case domain.SetAvatarMessage:
		return r.handleAvatar(ctx, from, m.RoomID, domain.AvatarState{Enabled: true, URL: m.Avatar})
	case domain.AvatarOffMessage:
		return r.handleAvatar(ctx, from, m.RoomID, domain.AvatarState{})
	case domain.StartRecordingMessage:
		return r.handleStartRecording(ctx, from, m)
	case domain.RecordingChunkMessage:
		return r.handleChunk(ctx, from, m)
	case domain.StopRecordingMessage:
		return r.handleStopRecording(ctx, from, m)
	case domain.EndMeetingMessage:
		return r.handleEndMeeting(ctx, from, m)
	default:
		return fmt.Errorf("%w: unsupported event %q", domain.ErrMalformed, event)
	}
}

// Reject reports a message that never made it to Dispatch, such as one that
// failed to decode.
func (r *MessageRouter) Reject(ctx context.Context, from domain.ConnectionID, event domain.EventName, err error) {
	r.settle(ctx, from, event, err)
}

// IngestChunk appends a chunk outside the signaling channel and announces
// the stop when the chunk completes the session.
func (r *MessageRouter) IngestChunk(ctx context.Context, id domain.RecordingID, data []byte, isLast bool) (*domain.RecordingSession, error) {
	session, err := r.recordings.AppendChunk(ctx, id, data, isLast)
	if err != nil {
		return nil, err
	}
	if !session.Active() {
		r.announceStopped(ctx, session)
	}
	return session, nil
}

func (r *MessageRouter) settle(ctx context.Context, from domain.ConnectionID, event domain.EventName, err error) {
	if err == nil {
		r.metrics.MessageHandled(event, "ok")
		return
	}

	appErr := domain.ToAppError(err)
	r.metrics.MessageHandled(event, string(appErr.Code))
	tracing.RecordError(ctx, err)

	if appErr.Soft() {
		r.logger.Debugw("message rejected",
			"connection_id", from,
			"event", event,
			"code", appErr.Code,
			"error", err,
		)
	} else {
		r.logger.Errorw("message dropped",
			"connection_id", from,
			"event", event,
			"error", err,
		)
	}

	var unreachable *domain.PeerUnreachableError
	switch {
	case event == domain.EventJoin:
		r.out.send(ctx, from, domain.JoinErrorEvent{Code: string(appErr.Code), Reason: appErr.Message})
	case errors.As(err, &unreachable):
		r.out.send(ctx, from, domain.PeerDisconnectedEvent{PeerID: unreachable.Target})
	default:
		r.out.send(ctx, from, domain.ErrorEvent{Code: string(appErr.Code), Message: appErr.Message, Event: event})
	}
}

func (r *MessageRouter) handleJoin(ctx context.Context, from domain.ConnectionID, m domain.JoinMessage) error {
	code := domain.NormalizeMeetingCode(string(m.MeetingCode))
	if err := validation.ValidateMeetingCode(string(code)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}

	conn, err := r.conns.Get(ctx, from)
	if err != nil {
		return err
	}

	fallback := r.cfg.DefaultName
	if conn.DisplayName != "" {
		fallback = conn.DisplayName
	}
	attrs := domain.DisplayAttrs{
		UserID:      lo.Ternary(m.UserID != "", m.UserID, conn.UserID),
		DisplayName: utils.DisplayNameOr(m.DisplayName, fallback, maxDisplayName),
		Avatar:      domain.AvatarState{Enabled: m.IsAvatar || m.Avatar != "", URL: m.Avatar},
	}

	// Join the target first so a rejected join leaves the current meeting intact.
	res, err := r.meetings.Join(ctx, code, domain.Member{ConnectionID: from, DisplayName: attrs.DisplayName})
	if err != nil {
		return err
	}
	if res.Created {
		r.metrics.MeetingCreated()
	}

	if err := r.conns.SetRoom(ctx, from, code, attrs); err != nil {
		r.presence.LeaveMeeting(ctx, code, from)
		r.logger.Debugw("join abandoned by departed connection", "connection_id", from, "meeting_code", code)
		return nil
	}

	if conn.InMeeting() && conn.MeetingCode != code {
		if _, err := r.presence.LeaveMeeting(ctx, conn.MeetingCode, from); err != nil && !errors.Is(err, domain.ErrNotMember) {
			r.logger.Warnw("failed to leave previous meeting",
				"connection_id", from,
				"meeting_code", conn.MeetingCode,
				"error", err,
			)
		}
	}

	// A disconnect racing this join may have already removed the connection.
	if current, err := r.conns.Get(ctx, from); err != nil || current.MeetingCode != code {
		r.presence.LeaveMeeting(ctx, code, from)
		r.logger.Debugw("join abandoned by departed connection", "connection_id", from, "meeting_code", code)
		return nil
	}

	r.out.send(ctx, from, domain.ExistingPeersEvent{
		SelfID:      from,
		MeetingCode: code,
		IsHost:      res.IsHost,
		Peers:       r.out.peerViews(ctx, res.Others),
	})

	if !res.Rejoined {
		r.out.broadcast(ctx, res.Others, from, domain.PeerJoinedEvent{
			PeerID:   from,
			Name:     attrs.DisplayName,
			IsHost:   res.IsHost,
			Avatar:   attrs.Avatar.URL,
			IsAvatar: attrs.Avatar.Enabled,
		})
	}

	if members, err := r.meetings.Members(ctx, code); err == nil {
		r.out.publishParticipants(ctx, code, members)
	}

	r.logger.Infow("connection joined meeting",
		"connection_id", from,
		"meeting_code", code,
		"name", attrs.DisplayName,
		"host", res.IsHost,
		"rejoined", res.Rejoined,
		"peers", len(res.Others),
	)
	return nil
}

func (r *MessageRouter) handleRelay(ctx context.Context, from domain.ConnectionID, m domain.RelayMessage) error {
	sender, err := r.conns.Get(ctx, from)
	if err != nil {
		return err
	}
	if !sender.InMeeting() {
		return domain.ErrNotMember
	}
	if m.TargetID == from {
		return fmt.Errorf("%w: cannot signal yourself", domain.ErrMalformed)
	}

	target, err := r.conns.Get(ctx, m.TargetID)
	if err != nil || target.MeetingCode != sender.MeetingCode {
		r.metrics.RelayUnreachable()
		return &domain.PeerUnreachableError{Target: m.TargetID}
	}

	if !r.out.send(ctx, m.TargetID, domain.SignalEvent{Kind: m.Kind, FromID: from, Payload: m.Payload}) {
		r.metrics.RelayUnreachable()
		return &domain.PeerUnreachableError{Target: m.TargetID}
	}
	return nil
}

func (r *MessageRouter) handleChat(ctx context.Context, from domain.ConnectionID, m domain.ChatMessage) error {
	conn, members, err := r.requireMember(ctx, from, m.RoomID)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(m.Message)
	if text == "" {
		return fmt.Errorf("%w: message is empty", domain.ErrMalformed)
	}

	r.out.broadcast(ctx, members, from, domain.ChatEvent{
		PeerID:          from,
		Name:            conn.DisplayName,
		Message:         text,
		ServerTimestamp: r.cfg.Now().UnixMilli(),
	})
	return nil
}

func (r *MessageRouter) handleAvatar(ctx context.Context, from domain.ConnectionID, roomID domain.MeetingCode, avatar domain.AvatarState) error {
	conn, members, err := r.requireMember(ctx, from, roomID)
	if err != nil {
		return err
	}
	if _, err := r.conns.SetAvatar(ctx, from, avatar); err != nil {
		return err
	}

	r.out.broadcast(ctx, members, from, domain.AvatarEvent{
		PeerID: from,
		Name:   conn.DisplayName,
		Avatar: avatar.URL,
	})
	return nil
}

func (r *MessageRouter) handleStartRecording(ctx context.Context, from domain.ConnectionID, m domain.StartRecordingMessage) error {
	conn, members, err := r.requireMember(ctx, from, m.RoomID)
	if err != nil {
		return err
	}

	session, err := r.recordings.Start(ctx, conn.MeetingCode, from, m.RecordingID)
	if err != nil {
		return err
	}

	r.out.broadcast(ctx, members, "", domain.RecordingStartedEvent{
		RoomID:      session.MeetingCode,
		RecordingID: session.ID,
		OwnerID:     session.OwnerID,
		StartedAt:   session.StartedAt,
	})
	return nil
}

func (r *MessageRouter) handleChunk(ctx context.Context, from domain.ConnectionID, m domain.RecordingChunkMessage) error {
	session, err := r.recordings.Get(ctx, m.RecordingID)
	if err != nil {
		return err
	}
	if _, _, err := r.requireMember(ctx, from, session.MeetingCode); err != nil {
		return err
	}

	_, err = r.IngestChunk(ctx, m.RecordingID, m.ChunkBytes, m.IsLast)
	return err
}

func (r *MessageRouter) handleStopRecording(ctx context.Context, from domain.ConnectionID, m domain.StopRecordingMessage) error {
	conn, _, err := r.requireMember(ctx, from, m.RoomID)
	if err != nil {
		return err
	}

	var session *domain.RecordingSession
	if m.RecordingID != "" {
		existing, err := r.recordings.Get(ctx, m.RecordingID)
		if err != nil {
			return err
		}
		if existing.MeetingCode != conn.MeetingCode {
			return domain.ErrRecordingNotFound
		}
		session, err = r.recordings.Stop(ctx, m.RecordingID)
		if err != nil {
			return err
		}
	} else {
		session, err = r.recordings.StopRoom(ctx, conn.MeetingCode)
		if err != nil {
			return err
		}
	}

	r.announceStopped(ctx, session)
	return nil
}

// handleEndMeeting notifies every member before the meeting is removed.
func (r *MessageRouter) handleEndMeeting(ctx context.Context, from domain.ConnectionID, m domain.EndMeetingMessage) error {
	conn, err := r.conns.Get(ctx, from)
	if err != nil {
		return err
	}
	if !conn.InMeeting() || !conn.MeetingCode.Matches(m.RoomID) {
		return domain.ErrNotMember
	}
	code := conn.MeetingCode

	participants, err := r.meetings.BeginEnd(ctx, code, from)
	if err != nil {
		return err
	}

	if session, err := r.recordings.StopRoom(ctx, code); err == nil {
		r.out.broadcast(ctx, participants, "", stoppedEvent(session))
	}
	r.out.broadcast(ctx, participants, "", domain.MeetingEndedEvent{RoomID: code})

	drained, err := r.meetings.Drain(ctx, code)
	if err != nil && !errors.Is(err, domain.ErrMeetingNotFound) {
		return err
	}
	for _, member := range drained {
		r.conns.ClearRoomIf(ctx, member.ConnectionID, code)
	}
	if err == nil {
		r.metrics.MeetingRemoved("ended")
	}

	r.logger.Infow("meeting ended",
		"meeting_code", code,
		"host", from,
		"members", len(participants),
	)
	return nil
}

// requireMember resolves the sender and the member list of its meeting. A
// non-empty roomID must name the sender's current meeting.
func (r *MessageRouter) requireMember(ctx context.Context, from domain.ConnectionID, roomID domain.MeetingCode) (domain.Connection, []domain.Participant, error) {
	conn, err := r.conns.Get(ctx, from)
	if err != nil {
		return domain.Connection{}, nil, err
	}
	if !conn.InMeeting() || !conn.MeetingCode.Matches(roomID) {
		return domain.Connection{}, nil, domain.ErrNotMember
	}

	members, err := r.meetings.Members(ctx, conn.MeetingCode)
	if err != nil {
		return domain.Connection{}, nil, err
	}
	if !lo.ContainsBy(members, func(p domain.Participant) bool { return p.ID == from }) {
		return domain.Connection{}, nil, domain.ErrNotMember
	}
	return conn, members, nil
}

func (r *MessageRouter) announceStopped(ctx context.Context, session *domain.RecordingSession) {
	members, err := r.meetings.Members(ctx, session.MeetingCode)
	if err != nil {
		return
	}
	r.out.broadcast(ctx, members, "", stoppedEvent(session))
}

func stoppedEvent(session *domain.RecordingSession) domain.RecordingStoppedEvent {
	return domain.RecordingStoppedEvent{
		RoomID:      session.MeetingCode,
		RecordingID: session.ID,
		Size:        session.Size,
		ChunkCount:  session.ChunkCount,
		Artifact:    session.ArtifactName,
	}
}
