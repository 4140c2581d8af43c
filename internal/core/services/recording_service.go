package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"
	"twintalk/pkg/tracing"
	"twintalk/pkg/utils"
	"twintalk/pkg/validation"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type RecordingConfig struct {
	// MaxBytes caps a single session; zero means unlimited.
	MaxBytes        int64
	FinalizeTimeout time.Duration
	Now             func() time.Time
}

type recordingEntry struct {
	mu      sync.Mutex
	session domain.RecordingSession
	chunks  [][]byte
	// done is closed once the artifact write has finished, successfully or not.
	done chan struct{}
}

func (e *recordingEntry) snapshot() *domain.RecordingSession {
	s := e.session
	return &s
}

// RecordingService assembles chunk streams into one artifact per session.
// Lock order is entry before service; the service lock is never held while
// taking an entry lock.
type RecordingService struct {
	mu       sync.RWMutex
	sessions map[domain.RecordingID]*recordingEntry
	active   map[domain.MeetingCode]domain.RecordingID

	meetings ports.MeetingRegistry
	store    ports.ArtifactStore
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger
	cfg      RecordingConfig
}

func NewRecordingService(
	meetings ports.MeetingRegistry,
	store ports.ArtifactStore,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
	cfg RecordingConfig,
) *RecordingService {
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RecordingService{
		sessions: make(map[domain.RecordingID]*recordingEntry),
		active:   make(map[domain.MeetingCode]domain.RecordingID),
		meetings: meetings,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

func (s *RecordingService) Start(ctx context.Context, code domain.MeetingCode, owner domain.ConnectionID, id domain.RecordingID) (*domain.RecordingSession, error) {
	if id == "" {
		id = domain.RecordingID(utils.GenerateRecordingID())
	} else if err := validation.ValidateRecordingID(string(id)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	if !s.meetings.Exists(ctx, code) {
		return nil, domain.ErrMeetingNotFound
	}

	entry := &recordingEntry{
		session: domain.RecordingSession{
			ID:          id,
			MeetingCode: code,
			OwnerID:     owner,
			StartedAt:   s.cfg.Now(),
			Status:      domain.RecordingStatusRecording,
		},
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if _, busy := s.active[code]; busy {
		s.mu.Unlock()
		return nil, domain.ErrAlreadyRecording
	}
	if _, taken := s.sessions[id]; taken {
		s.mu.Unlock()
		return nil, domain.ErrRecordingExists
	}
	s.sessions[id] = entry
	s.active[code] = id
	s.mu.Unlock()

	// The meeting may have emptied between the check and the insert.
	if !s.meetings.Exists(ctx, code) {
		s.discard(code, id)
		return nil, domain.ErrMeetingNotFound
	}

	s.metrics.RecordingStarted()
	s.logger.Infow("recording started",
		"recording_id", id,
		"meeting_code", code,
		"owner", owner,
	)
	return entry.snapshot(), nil
}

// AppendChunk adds a chunk in arrival order. A chunk marked last seals the
// session and finalizes it.
func (s *RecordingService) AppendChunk(ctx context.Context, id domain.RecordingID, data []byte, isLast bool) (*domain.RecordingSession, error) {
	entry := s.lookup(id)
	if entry == nil {
		return nil, domain.ErrRecordingNotFound
	}

	entry.mu.Lock()
	if !entry.session.Active() {
		entry.mu.Unlock()
		return nil, domain.ErrRecordingNotFound
	}
	if s.cfg.MaxBytes > 0 && entry.session.Size+int64(len(data)) > s.cfg.MaxBytes {
		entry.mu.Unlock()
		return nil, domain.ErrRecordingTooLarge
	}

	if len(data) > 0 {
		chunk := make([]byte, len(data))
		copy(chunk, data)
		entry.chunks = append(entry.chunks, chunk)
	}
	entry.session.ChunkCount++
	entry.session.Size += int64(len(data))
	s.metrics.ChunkReceived(len(data))

	if !isLast {
		snap := entry.snapshot()
		entry.mu.Unlock()
		return snap, nil
	}

	artifact := s.seal(entry)
	entry.mu.Unlock()

	s.persist(ctx, entry, artifact)
	return s.snapshotOf(entry), nil
}

// Finalize is idempotent. A second call waits for the first call's artifact
// and returns the same session.
func (s *RecordingService) Finalize(ctx context.Context, id domain.RecordingID) (*domain.RecordingSession, error) {
	return s.finalize(ctx, id, false)
}

// Stop finalizes an active session. Unlike Finalize it reports
// ErrRecordingNotFound when the session was already finalized, so exactly one
// caller observes the stop.
func (s *RecordingService) Stop(ctx context.Context, id domain.RecordingID) (*domain.RecordingSession, error) {
	return s.finalize(ctx, id, true)
}

func (s *RecordingService) StopRoom(ctx context.Context, code domain.MeetingCode) (*domain.RecordingSession, error) {
	s.mu.RLock()
	id, ok := s.active[code]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRecordingNotFound
	}
	return s.Stop(ctx, id)
}

func (s *RecordingService) Get(ctx context.Context, id domain.RecordingID) (*domain.RecordingSession, error) {
	entry := s.lookup(id)
	if entry == nil {
		return nil, domain.ErrRecordingNotFound
	}
	return s.snapshotOf(entry), nil
}

func (s *RecordingService) Artifact(ctx context.Context, id domain.RecordingID) ([]byte, *domain.RecordingSession, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if session.Active() || session.ArtifactName == "" {
		return nil, session, domain.ErrArtifactNotFound
	}

	data, err := s.store.Load(ctx, session.ArtifactName)
	if err != nil {
		return nil, session, err
	}
	return data, session, nil
}

func (s *RecordingService) finalize(ctx context.Context, id domain.RecordingID, requireActive bool) (*domain.RecordingSession, error) {
	entry := s.lookup(id)
	if entry == nil {
		return nil, domain.ErrRecordingNotFound
	}

	entry.mu.Lock()
	if !entry.session.Active() {
		entry.mu.Unlock()
		if requireActive {
			return nil, domain.ErrRecordingNotFound
		}
		select {
		case <-entry.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return s.snapshotOf(entry), nil
	}

	artifact := s.seal(entry)
	entry.mu.Unlock()

	s.persist(ctx, entry, artifact)
	return s.snapshotOf(entry), nil
}

// seal marks the session completed and hands back the concatenated chunks.
// Caller holds entry.mu.
func (s *RecordingService) seal(entry *recordingEntry) []byte {
	endedAt := s.cfg.Now()
	entry.session.Status = domain.RecordingStatusCompleted
	entry.session.EndedAt = &endedAt

	artifact := bytes.Join(entry.chunks, nil)
	entry.chunks = nil

	s.mu.Lock()
	if s.active[entry.session.MeetingCode] == entry.session.ID {
		delete(s.active, entry.session.MeetingCode)
	}
	s.mu.Unlock()

	return artifact
}

// persist writes the artifact outside any lock. The write is bounded by the
// finalize timeout and survives cancellation of the requesting connection.
func (s *RecordingService) persist(ctx context.Context, entry *recordingEntry, artifact []byte) {
	defer close(entry.done)

	entry.mu.Lock()
	session := entry.session
	entry.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
	defer cancel()

	ctx, span := tracing.TraceRecording(ctx, "finalize", string(session.ID))
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), "persist")

	mtype := mimetype.Detect(artifact)
	name := ulid.Make().String() + mtype.Extension()
	if mtype.Extension() == "" {
		name += ".bin"
	}

	path, err := s.store.Save(ctx, name, artifact)
	tracing.AddSpanAttributes(ctx,
		tracing.MeetingCodeKey.String(string(session.MeetingCode)),
		tracing.SizeKey.Int64(int64(len(artifact))),
	)

	duration := session.EndedAt.Sub(session.StartedAt).Seconds()
	s.metrics.RecordingFinalized(int64(len(artifact)), duration)

	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Errorw("failed to persist recording",
			"recording_id", session.ID,
			"meeting_code", session.MeetingCode,
			"size", len(artifact),
			"error", err,
		)
		return
	}

	entry.mu.Lock()
	entry.session.ContentType = mtype.String()
	entry.session.ArtifactName = name
	entry.session.ArtifactPath = path
	entry.mu.Unlock()

	s.logger.Infow("recording finalized",
		"recording_id", session.ID,
		"meeting_code", session.MeetingCode,
		"chunks", session.ChunkCount,
		"size", len(artifact),
		"artifact", path,
		"content_type", mtype.String(),
	)
}

func (s *RecordingService) discard(code domain.MeetingCode, id domain.RecordingID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	if s.active[code] == id {
		delete(s.active, code)
	}
}

func (s *RecordingService) lookup(id domain.RecordingID) *recordingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *RecordingService) snapshotOf(entry *recordingEntry) *domain.RecordingSession {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.snapshot()
}
