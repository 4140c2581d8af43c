package domain

import "time"

type RecordingID string

type RecordingStatus string

const (
	RecordingStatusRecording RecordingStatus = "recording"
	RecordingStatusCompleted RecordingStatus = "completed"
)

// RecordingSession belongs to a meeting by code only.
type RecordingSession struct {
	ID           RecordingID     `json:"id"`
	MeetingCode  MeetingCode     `json:"roomId"`
	OwnerID      ConnectionID    `json:"ownerId"`
	StartedAt    time.Time       `json:"startedAt"`
	EndedAt      *time.Time      `json:"endedAt,omitempty"`
	Status       RecordingStatus `json:"status"`
	ChunkCount   int             `json:"chunkCount"`
	Size         int64           `json:"size"`
	ContentType  string          `json:"contentType,omitempty"`
	ArtifactName string          `json:"artifactName,omitempty"`
	ArtifactPath string          `json:"artifactPath,omitempty"`
}

func (s *RecordingSession) Active() bool {
	return s.Status == RecordingStatusRecording
}
