package domain

import (
	"errors"

	apperrors "twintalk/pkg/errors"
)

var (
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrMeetingClosing     = errors.New("meeting is ending")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrRecordingNotFound  = errors.New("no active recording session")
	ErrRecordingExists    = errors.New("recording id already in use")
	ErrAlreadyRecording   = errors.New("meeting is already being recorded")
	ErrRecordingTooLarge  = errors.New("recording exceeds size limit")
	ErrArtifactNotFound   = errors.New("recording artifact not found")
	ErrStorageUnavailable = errors.New("artifact storage unavailable")
	ErrCodeExhausted      = errors.New("could not generate a unique meeting code")
	ErrPeerUnreachable    = errors.New("peer unreachable")
	ErrNotMember          = errors.New("not a member of this meeting")
	ErrNotHost            = errors.New("only the host can do this")
	ErrMalformed          = errors.New("malformed message")
	ErrInternal           = errors.New("internal error")
)

// ToAppError classifies err into exactly one application error. Anything that
// is not a known domain outcome is Internal.
func ToAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, ErrMeetingNotFound), errors.Is(err, ErrMeetingClosing):
		return apperrors.NewNotFoundError("meeting").WithCause(err)
	case errors.Is(err, ErrConnectionNotFound):
		return apperrors.NewNotFoundError("connection").WithCause(err)
	case errors.Is(err, ErrRecordingNotFound):
		return apperrors.NewNotFoundError("recording session").WithCause(err)
	case errors.Is(err, ErrArtifactNotFound):
		return apperrors.NewNotFoundError("recording artifact").WithCause(err)
	case errors.Is(err, ErrNotMember):
		return apperrors.WrapError(err, apperrors.ErrCodeNotFound, "you are not in this meeting", 404)
	case errors.Is(err, ErrRecordingExists):
		return apperrors.NewConflictError("recording id already in use").WithCause(err)
	case errors.Is(err, ErrAlreadyRecording):
		return apperrors.WrapError(err, apperrors.ErrCodeAlreadyRecording, "meeting is already being recorded", 409)
	case errors.Is(err, ErrCodeExhausted):
		return apperrors.WrapError(err, apperrors.ErrCodeCodeExhausted, "could not allocate a meeting code", 503)
	case errors.Is(err, ErrPeerUnreachable):
		return apperrors.NewUnreachableError("peer unreachable").WithCause(err)
	case errors.Is(err, ErrNotHost):
		return apperrors.NewForbiddenError("only the host can do this").WithCause(err)
	case errors.Is(err, ErrMalformed):
		return apperrors.NewInvalidInputError(err.Error()).WithCause(err)
	case errors.Is(err, ErrStorageUnavailable):
		return apperrors.NewServiceUnavailableError("recording storage is unavailable").WithCause(err)
	case errors.Is(err, ErrRecordingTooLarge):
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "recording exceeds size limit", 413)
	default:
		return apperrors.NewInternalError("internal error").WithCause(err)
	}
}

// PeerUnreachableError names the relay target that could not be reached.
type PeerUnreachableError struct {
	Target ConnectionID
}

func (e *PeerUnreachableError) Error() string {
	return "peer unreachable: " + string(e.Target)
}

func (e *PeerUnreachableError) Unwrap() error {
	return ErrPeerUnreachable
}
