package services

import (
	"context"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// fanout delivers events to meeting members. Delivery is best effort: a
// failed send is logged and never retried or surfaced to the sender.
type fanout struct {
	conns    ports.ConnectionRegistry
	notifier ports.Notifier
	logger   *zap.SugaredLogger
}

func (f *fanout) send(ctx context.Context, to domain.ConnectionID, event domain.OutboundEvent) bool {
	if err := f.notifier.Send(ctx, to, event); err != nil {
		f.logger.Debugw("event not delivered",
			"connection_id", to,
			"event", event.EventName(),
			"error", err,
		)
		return false
	}
	return true
}

// broadcast sends event to every recipient except skip and returns how many
// deliveries succeeded.
func (f *fanout) broadcast(ctx context.Context, recipients []domain.Participant, skip domain.ConnectionID, event domain.OutboundEvent) int {
	delivered := 0
	for _, p := range recipients {
		if p.ID == skip {
			continue
		}
		if f.send(ctx, p.ID, event) {
			delivered++
		}
	}
	if failed := len(recipients) - delivered; failed > 0 && skip == "" {
		f.logger.Debugw("partial broadcast", "event", event.EventName(), "failed", failed)
	}
	return delivered
}

func (f *fanout) avatarOf(ctx context.Context, id domain.ConnectionID) domain.AvatarState {
	conn, err := f.conns.Get(ctx, id)
	if err != nil {
		return domain.AvatarState{}
	}
	return conn.Avatar
}

func (f *fanout) peerViews(ctx context.Context, ps []domain.Participant) []domain.PeerView {
	return lo.Map(ps, func(p domain.Participant, _ int) domain.PeerView {
		avatar := f.avatarOf(ctx, p.ID)
		return domain.PeerView{
			PeerID:   p.ID,
			Name:     p.Name,
			IsHost:   p.IsHost,
			Avatar:   avatar.URL,
			IsAvatar: avatar.Enabled,
		}
	})
}

func (f *fanout) participantViews(ctx context.Context, ps []domain.Participant) []domain.ParticipantView {
	return lo.Map(ps, func(p domain.Participant, _ int) domain.ParticipantView {
		avatar := f.avatarOf(ctx, p.ID)
		return domain.ParticipantView{
			ID:       p.ID,
			Name:     p.Name,
			IsHost:   p.IsHost,
			Avatar:   avatar.URL,
			IsAvatar: avatar.Enabled,
		}
	})
}

// publishParticipants sends the full member list to every member.
func (f *fanout) publishParticipants(ctx context.Context, code domain.MeetingCode, members []domain.Participant) {
	if len(members) == 0 {
		return
	}
	f.broadcast(ctx, members, "", domain.ParticipantsUpdatedEvent{
		RoomID:       code,
		Participants: f.participantViews(ctx, members),
	})
}
