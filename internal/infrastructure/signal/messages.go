package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"twintalk/internal/core/domain"

	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v3"
	"github.com/samber/lo"
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Type    domain.EventName `json:"type"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// relayWire accepts both the current field names and the older to/sdp/candidate form.
type relayWire struct {
	TargetID  domain.ConnectionID `json:"targetId"`
	To        domain.ConnectionID `json:"to"`
	Payload   json.RawMessage     `json:"payload"`
	SDP       json.RawMessage     `json:"sdp"`
	Candidate json.RawMessage     `json:"candidate"`
}

// DecodeMessage parses one inbound frame. The returned event name is set
// whenever the type could be read, so rejections can name the event.
func DecodeMessage(data []byte) (domain.InboundMessage, domain.EventName, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("%w: invalid json", domain.ErrMalformed)
	}

	event := env.Type
	if canonical, ok := domain.InboundAliases[event]; ok {
		event = canonical
	}
	if event == "" {
		return nil, "", fmt.Errorf("%w: type is required", domain.ErrMalformed)
	}

	var (
		msg domain.InboundMessage
		err error
	)
	switch event {
	case domain.EventJoin:
		msg, err = decodeInto[domain.JoinMessage](env.Payload)
	case domain.EventLeave:
		msg, err = decodeInto[domain.LeaveMessage](env.Payload)
	case domain.EventOffer, domain.EventAnswer, domain.EventICECandidate:
		msg, err = decodeRelay(domain.SignalKind(event), env.Payload)
	case domain.EventChatMessage:
		msg, err = decodeInto[domain.ChatMessage](env.Payload)
	case domain.EventSetAvatar:
		msg, err = decodeInto[domain.SetAvatarMessage](env.Payload)
	case domain.EventAvatarOff:
		msg, err = decodeInto[domain.AvatarOffMessage](env.Payload)
	case domain.EventStartRecording:
		msg, err = decodeInto[domain.StartRecordingMessage](env.Payload)
	case domain.EventRecordingChunk:
		msg, err = decodeInto[domain.RecordingChunkMessage](env.Payload)
	case domain.EventStopRecording:
		msg, err = decodeInto[domain.StopRecordingMessage](env.Payload)
	case domain.EventEndMeeting:
		msg, err = decodeInto[domain.EndMeetingMessage](env.Payload)
	default:
		return nil, event, fmt.Errorf("%w: unknown event %q", domain.ErrMalformed, event)
	}
	if err != nil {
		return nil, event, err
	}
	return msg, event, nil
}

// EncodeEvent frames an outbound event.
func EncodeEvent(event domain.OutboundEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event.EventName(), Payload: payload})
}

func decodeInto[T domain.InboundMessage](payload json.RawMessage) (T, error) {
	var msg T
	if !isEmpty(payload) {
		if err := json.Unmarshal(payload, &msg); err != nil {
			return msg, fmt.Errorf("%w: invalid payload", domain.ErrMalformed)
		}
	}
	if err := validate.Struct(msg); err != nil {
		return msg, validationError(err)
	}
	return msg, nil
}

func decodeRelay(kind domain.SignalKind, payload json.RawMessage) (domain.RelayMessage, error) {
	var wire relayWire
	if isEmpty(payload) {
		return domain.RelayMessage{}, fmt.Errorf("%w: payload is required", domain.ErrMalformed)
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.RelayMessage{}, fmt.Errorf("%w: invalid payload", domain.ErrMalformed)
	}

	msg := domain.RelayMessage{
		Kind:     kind,
		TargetID: lo.Ternary(wire.TargetID != "", wire.TargetID, wire.To),
		Payload:  firstPresent(wire.Payload, wire.SDP, wire.Candidate),
	}
	if err := validate.Struct(msg); err != nil {
		return msg, validationError(err)
	}
	if err := checkSignalPayload(kind, msg.Payload); err != nil {
		return msg, err
	}
	return msg, nil
}

// checkSignalPayload makes sure the opaque payload at least has the shape of
// a session description or ICE candidate. Its content is never interpreted.
func checkSignalPayload(kind domain.SignalKind, payload json.RawMessage) error {
	if isEmpty(payload) {
		return fmt.Errorf("%w: payload is required", domain.ErrMalformed)
	}

	switch kind {
	case domain.SignalICECandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(payload, &candidate); err != nil {
			return fmt.Errorf("%w: payload is not an ICE candidate", domain.ErrMalformed)
		}
	default:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(payload, &desc); err != nil {
			return fmt.Errorf("%w: payload is not a session description", domain.ErrMalformed)
		}
		if strings.TrimSpace(desc.SDP) == "" {
			return fmt.Errorf("%w: sdp is required", domain.ErrMalformed)
		}
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		if fe.Param() != "" {
			return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s is %s", fe.Field(), fe.Tag())
	})
	return fmt.Errorf("%w: %s", domain.ErrMalformed, strings.Join(fields, ", "))
}

func firstPresent(raws ...json.RawMessage) json.RawMessage {
	for _, raw := range raws {
		if !isEmpty(raw) {
			return raw
		}
	}
	return nil
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
