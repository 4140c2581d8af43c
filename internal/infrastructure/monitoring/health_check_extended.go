package monitoring

import (
	"context"
	"time"

	"twintalk/internal/core/ports"
)

// AddStorageCheck verifies the recording artifact store
func (h *HealthChecker) AddStorageCheck(store ports.ArtifactStore, timeout time.Duration) {
	h.AddCheck("artifact_storage", func(ctx context.Context) (bool, error) {
		if err := store.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == "healthy"
}
