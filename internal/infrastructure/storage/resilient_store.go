package storage

import (
	"context"
	"errors"
	"fmt"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"
	"twintalk/pkg/circuitbreaker"
	"twintalk/pkg/retry"
	"twintalk/pkg/tracing"

	"go.uber.org/zap"
)

// ResilientStore retries saves with backoff and stops calling a backend that
// keeps failing. Missing artifacts are an answer, not a failure.
type ResilientStore struct {
	next    ports.ArtifactStore
	backend string
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
}

func NewResilientStore(next ports.ArtifactStore, backend string, retryCfg retry.Config, breakerCfg circuitbreaker.Config, logger *zap.SugaredLogger) *ResilientStore {
	breaker := circuitbreaker.New(breakerCfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("artifact storage circuit changed",
			"backend", backend,
			"from", from.String(),
			"to", to.String(),
		)
	})

	retryCfg.Retryable = func(err error) bool {
		return !errors.Is(err, circuitbreaker.ErrOpen)
	}

	return &ResilientStore{
		next:    next,
		backend: backend,
		retry:   retryCfg,
		breaker: breaker,
	}
}

func (s *ResilientStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	ctx, span := tracing.TraceStorageOperation(ctx, "save", s.backend)
	defer span.End()

	path, err := retry.DoValue(ctx, s.retry, func(ctx context.Context) (string, error) {
		return circuitbreaker.Do(ctx, s.breaker, func() (string, error) {
			return s.next.Save(ctx, name, data)
		})
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", s.classify(err)
	}
	return path, nil
}

func (s *ResilientStore) Load(ctx context.Context, name string) ([]byte, error) {
	ctx, span := tracing.TraceStorageOperation(ctx, "load", s.backend)
	defer span.End()

	missing := false
	data, err := circuitbreaker.Do(ctx, s.breaker, func() ([]byte, error) {
		data, err := s.next.Load(ctx, name)
		if errors.Is(err, domain.ErrArtifactNotFound) {
			missing = true
			return nil, nil
		}
		return data, err
	})
	if missing {
		return nil, domain.ErrArtifactNotFound
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, s.classify(err)
	}
	return data, nil
}

func (s *ResilientStore) HealthCheck(ctx context.Context) error {
	if s.breaker.State() == circuitbreaker.StateOpen {
		return fmt.Errorf("%s storage: %w", s.backend, circuitbreaker.ErrOpen)
	}
	return s.next.HealthCheck(ctx)
}

func (s *ResilientStore) Close() error {
	return s.next.Close()
}

func (s *ResilientStore) classify(err error) error {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: %s backend: %v", domain.ErrStorageUnavailable, s.backend, err)
	}
	return err
}
