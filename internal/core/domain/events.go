package domain

import (
	"encoding/json"
	"time"
)

// EventName identifies a message on the signaling channel.
type EventName string

// Inbound events.
const (
	EventJoin           EventName = "join"
	EventLeave          EventName = "leave-room"
	EventOffer          EventName = "offer"
	EventAnswer         EventName = "answer"
	EventICECandidate   EventName = "ice-candidate"
	EventSetAvatar      EventName = "set-avatar"
	EventAvatarOff      EventName = "avatar-off"
	EventChatMessage    EventName = "chat-message"
	EventStartRecording EventName = "start-recording"
	EventRecordingChunk EventName = "recording-chunk"
	EventStopRecording  EventName = "stop-recording"
	EventEndMeeting     EventName = "end-meeting"
)

// Outbound events.
const (
	EventConnected           EventName = "connected"
	EventExistingPeers       EventName = "existing-peers"
	EventPeerJoined          EventName = "peer-joined"
	EventPeerLeft            EventName = "peer-left"
	EventJoinError           EventName = "join-error"
	EventWebRTCOffer         EventName = "webrtc-offer"
	EventWebRTCAnswer        EventName = "webrtc-answer"
	EventWebRTCICECandidate  EventName = "webrtc-ice-candidate"
	EventPeerDisconnected    EventName = "peer-disconnected"
	EventParticipantsUpdated EventName = "participants-updated"
	EventRecordingStarted    EventName = "recording-started"
	EventRecordingStopped    EventName = "recording-stopped"
	EventMeetingEnded        EventName = "meeting-ended"
	EventError               EventName = "error"
)

// InboundAliases maps the alternative names older clients send to the
// canonical inbound event.
var InboundAliases = map[EventName]EventName{
	"join-room":            EventJoin,
	"webrtc-offer":         EventOffer,
	"webrtc-answer":        EventAnswer,
	"webrtc-ice-candidate": EventICECandidate,
}

type InboundMessage interface {
	EventName() EventName
}

type OutboundEvent interface {
	EventName() EventName
}

// SignalKind is the negotiation step carried by a directed relay.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// Inbound messages

type JoinMessage struct {
	MeetingCode MeetingCode `json:"meetingCode" validate:"required,max=64"`
	DisplayName string      `json:"displayName" validate:"max=64"`
	UserID      UserID      `json:"userId,omitempty"`
	Avatar      string      `json:"avatar,omitempty" validate:"omitempty,max=2048"`
	IsAvatar    bool        `json:"isAvatar,omitempty"`
}

func (JoinMessage) EventName() EventName { return EventJoin }

type LeaveMessage struct {
	RoomID MeetingCode `json:"roomId,omitempty"`
}

func (LeaveMessage) EventName() EventName { return EventLeave }

// RelayMessage is an offer, answer or ICE candidate addressed to one peer.
// Payload is opaque to the router.
type RelayMessage struct {
	Kind     SignalKind      `json:"-"`
	TargetID ConnectionID    `json:"targetId" validate:"required"`
	Payload  json.RawMessage `json:"payload"`
}

func (m RelayMessage) EventName() EventName { return EventName(m.Kind) }

type ChatMessage struct {
	RoomID  MeetingCode `json:"roomId,omitempty"`
	Message string      `json:"message" validate:"required,max=4096"`
}

func (ChatMessage) EventName() EventName { return EventChatMessage }

type SetAvatarMessage struct {
	RoomID MeetingCode `json:"roomId,omitempty"`
	Avatar string      `json:"avatar" validate:"required,max=2048"`
}

func (SetAvatarMessage) EventName() EventName { return EventSetAvatar }

type AvatarOffMessage struct {
	RoomID MeetingCode `json:"roomId,omitempty"`
}

func (AvatarOffMessage) EventName() EventName { return EventAvatarOff }

type StartRecordingMessage struct {
	RoomID      MeetingCode `json:"roomId" validate:"required"`
	RecordingID RecordingID `json:"recordingId,omitempty" validate:"omitempty,max=128"`
}

func (StartRecordingMessage) EventName() EventName { return EventStartRecording }

// RecordingChunkMessage carries chunk bytes; encoding/json decodes them from base64.
type RecordingChunkMessage struct {
	RecordingID RecordingID `json:"recordingId" validate:"required"`
	ChunkBytes  []byte      `json:"chunkBytes"`
	IsLast      bool        `json:"isLast"`
}

func (RecordingChunkMessage) EventName() EventName { return EventRecordingChunk }

type StopRecordingMessage struct {
	RoomID      MeetingCode `json:"roomId,omitempty"`
	RecordingID RecordingID `json:"recordingId,omitempty"`
}

func (StopRecordingMessage) EventName() EventName { return EventStopRecording }

type EndMeetingMessage struct {
	RoomID MeetingCode `json:"roomId,omitempty"`
}

func (EndMeetingMessage) EventName() EventName { return EventEndMeeting }

// Outbound events

type PeerView struct {
	PeerID   ConnectionID `json:"peerId"`
	Name     string       `json:"name"`
	IsHost   bool         `json:"isHost"`
	Avatar   string       `json:"avatar,omitempty"`
	IsAvatar bool         `json:"isAvatar"`
}

type ParticipantView struct {
	ID       ConnectionID `json:"id"`
	Name     string       `json:"name"`
	IsHost   bool         `json:"isHost"`
	Avatar   string       `json:"avatar,omitempty"`
	IsAvatar bool         `json:"isAvatar"`
}

type ConnectedEvent struct {
	PeerID ConnectionID `json:"peerId"`
}

func (ConnectedEvent) EventName() EventName { return EventConnected }

type ExistingPeersEvent struct {
	SelfID      ConnectionID `json:"selfId"`
	MeetingCode MeetingCode  `json:"meetingCode"`
	IsHost      bool         `json:"isHost"`
	Peers       []PeerView   `json:"peers"`
}

func (ExistingPeersEvent) EventName() EventName { return EventExistingPeers }

type PeerJoinedEvent PeerView

func (PeerJoinedEvent) EventName() EventName { return EventPeerJoined }

type PeerLeftEvent struct {
	PeerID ConnectionID `json:"peerId"`
	Name   string       `json:"name"`
}

func (PeerLeftEvent) EventName() EventName { return EventPeerLeft }

type JoinErrorEvent struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (JoinErrorEvent) EventName() EventName { return EventJoinError }

// SignalEvent is a relayed negotiation message as seen by its target.
type SignalEvent struct {
	Kind    SignalKind      `json:"-"`
	FromID  ConnectionID    `json:"fromId"`
	Payload json.RawMessage `json:"payload"`
}

func (e SignalEvent) EventName() EventName {
	switch e.Kind {
	case SignalAnswer:
		return EventWebRTCAnswer
	case SignalICECandidate:
		return EventWebRTCICECandidate
	default:
		return EventWebRTCOffer
	}
}

type PeerDisconnectedEvent struct {
	PeerID ConnectionID `json:"peerId"`
}

func (PeerDisconnectedEvent) EventName() EventName { return EventPeerDisconnected }

type ChatEvent struct {
	PeerID  ConnectionID `json:"peerId"`
	Name    string       `json:"name"`
	Message string       `json:"message"`
	// ServerTimestamp is milliseconds since the Unix epoch, assigned at relay.
	ServerTimestamp int64 `json:"serverTimestamp"`
}

func (ChatEvent) EventName() EventName { return EventChatMessage }

type AvatarEvent struct {
	PeerID ConnectionID `json:"peerId"`
	Name   string       `json:"name"`
	Avatar string       `json:"avatar,omitempty"`
}

func (e AvatarEvent) EventName() EventName {
	if e.Avatar == "" {
		return EventAvatarOff
	}
	return EventSetAvatar
}

type ParticipantsUpdatedEvent struct {
	RoomID       MeetingCode       `json:"roomId"`
	Participants []ParticipantView `json:"participants"`
}

func (ParticipantsUpdatedEvent) EventName() EventName { return EventParticipantsUpdated }

type RecordingStartedEvent struct {
	RoomID      MeetingCode  `json:"roomId"`
	RecordingID RecordingID  `json:"recordingId"`
	OwnerID     ConnectionID `json:"ownerId"`
	StartedAt   time.Time    `json:"startedAt"`
}

func (RecordingStartedEvent) EventName() EventName { return EventRecordingStarted }

type RecordingStoppedEvent struct {
	RoomID      MeetingCode `json:"roomId"`
	RecordingID RecordingID `json:"recordingId"`
	Size        int64       `json:"size"`
	ChunkCount  int         `json:"chunkCount"`
	Artifact    string      `json:"artifact,omitempty"`
}

func (RecordingStoppedEvent) EventName() EventName { return EventRecordingStopped }

type MeetingEndedEvent struct {
	RoomID MeetingCode `json:"roomId"`
}

func (MeetingEndedEvent) EventName() EventName { return EventMeetingEnded }

// ErrorEvent is the soft rejection notice sent to the originating connection.
type ErrorEvent struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Event   EventName `json:"event,omitempty"`
}

func (ErrorEvent) EventName() EventName { return EventError }
