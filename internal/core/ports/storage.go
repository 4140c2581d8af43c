package ports

import "context"

// ArtifactStore persists finalized recordings. Save returns a retrieval path.
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Load(ctx context.Context, name string) ([]byte, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
