package domain

import (
	"errors"
	"fmt"
	"testing"

	apperrors "twintalk/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestToAppError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
		soft bool
	}{
		{"meeting not found", ErrMeetingNotFound, apperrors.ErrCodeNotFound, true},
		{"wrapped not found", fmt.Errorf("join AB12CD34: %w", ErrMeetingNotFound), apperrors.ErrCodeNotFound, true},
		{"closing reads as not found", ErrMeetingClosing, apperrors.ErrCodeNotFound, true},
		{"unknown session", ErrRecordingNotFound, apperrors.ErrCodeNotFound, true},
		{"already recording", ErrAlreadyRecording, apperrors.ErrCodeAlreadyRecording, true},
		{"recording id taken", ErrRecordingExists, apperrors.ErrCodeConflict, true},
		{"code exhausted", fmt.Errorf("%w after 10 attempts", ErrCodeExhausted), apperrors.ErrCodeCodeExhausted, true},
		{"unreachable", &PeerUnreachableError{Target: "c2"}, apperrors.ErrCodeUnreachable, true},
		{"malformed", fmt.Errorf("%w: meetingCode is required", ErrMalformed), apperrors.ErrCodeInvalidInput, true},
		{"not host", ErrNotHost, apperrors.ErrCodeForbidden, true},
		{"storage down", ErrStorageUnavailable, apperrors.ErrCodeServiceUnavailable, false},
		{"internal", ErrInternal, apperrors.ErrCodeInternal, false},
		{"anything else", errors.New("boom"), apperrors.ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToAppError(tt.err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.soft, appErr.Soft())
			assert.ErrorIs(t, appErr, tt.err)
		})
	}
}

func TestToAppError_PassesThroughAppErrors(t *testing.T) {
	original := apperrors.NewForbiddenError("nope")
	assert.Same(t, original, ToAppError(fmt.Errorf("wrapped: %w", original)))
	assert.Nil(t, ToAppError(nil))
}

func TestToAppError_MalformedKeepsDetail(t *testing.T) {
	appErr := ToAppError(fmt.Errorf("%w: message is required", ErrMalformed))
	assert.Contains(t, appErr.Message, "message is required")
}

func TestPeerUnreachableError(t *testing.T) {
	err := fmt.Errorf("relay: %w", &PeerUnreachableError{Target: "c9"})

	var target *PeerUnreachableError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, ConnectionID("c9"), target.Target)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}
