package services

import (
	"context"
	"strings"
	"testing"

	"twintalk/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeetingService_CreateAndValidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyStrict)

	info, err := f.meetingSvc.CreateMeeting(ctx, "  Weekly sync ", "")
	require.NoError(t, err)
	assert.Equal(t, "Weekly sync", info.Title)
	assert.Equal(t, "Guest", info.CreatorName)
	assert.Zero(t, info.ParticipantCount)

	got, err := f.meetingSvc.ValidateMeeting(ctx, info.Code)
	require.NoError(t, err)
	assert.Equal(t, info.Code, got.Code)

	got, err = f.meetingSvc.ValidateMeeting(ctx, domain.MeetingCode(strings.ToLower(string(info.Code))))
	require.NoError(t, err)
	assert.Equal(t, info.Code, got.Code)
}

func TestMeetingService_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.JoinPolicyStrict)

	_, err := f.meetingSvc.CreateMeeting(ctx, strings.Repeat("x", 201), "Alice")
	assert.ErrorIs(t, err, domain.ErrMalformed)

	_, err = f.meetingSvc.ValidateMeeting(ctx, "no spaces allowed")
	assert.ErrorIs(t, err, domain.ErrMalformed)

	_, err = f.meetingSvc.ValidateMeeting(ctx, "UNKNOWN1")
	assert.ErrorIs(t, err, domain.ErrMeetingNotFound)
}
