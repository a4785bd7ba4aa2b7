package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// IntegrityStore groups the queries the integrity scan needs.
type IntegrityStore interface {
	CountDanglingRoleRefs(ctx context.Context) (int64, error)
	RepairDanglingRoleRefs(ctx context.Context, fallback uuid.UUID) (int64, error)
}

// FallbackResolver supplies the id of the fallback User role.
type FallbackResolver interface {
	UserRoleID() (uuid.UUID, error)
}

// RoleIntegrityJob scans the principal directory for dangling role
// references and repairs them onto the fallback role. Deletion normally
// reassigns in the same transaction, so hits here indicate out-of-band
// writes against the directory.
type RoleIntegrityJob struct {
	store    IntegrityStore
	fallback FallbackResolver
	logger   *slog.Logger
}

// NewRoleIntegrityJob constructs the job.
func NewRoleIntegrityJob(store IntegrityStore, fallback FallbackResolver, logger *slog.Logger) *RoleIntegrityJob {
	return &RoleIntegrityJob{store: store, fallback: fallback, logger: logger}
}

// Handle processes TaskRoleIntegrityScan tasks.
func (j *RoleIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RoleIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return j.Run(ctx, payload.DryRun)
}

// Run executes one scan.
func (j *RoleIntegrityJob) Run(ctx context.Context, dryRun bool) error {
	dangling, err := j.store.CountDanglingRoleRefs(ctx)
	if err != nil {
		return fmt.Errorf("jobs: count dangling refs: %w", err)
	}
	if dangling == 0 {
		return nil
	}
	if dryRun {
		if j.logger != nil {
			j.logger.Warn("dangling role references found",
				slog.Int64("count", dangling),
				slog.Bool("dry_run", true))
		}
		return nil
	}
	fallback, err := j.fallback.UserRoleID()
	if err != nil {
		return fmt.Errorf("jobs: resolve fallback role: %w", err)
	}
	repaired, err := j.store.RepairDanglingRoleRefs(ctx, fallback)
	if err != nil {
		return fmt.Errorf("jobs: repair dangling refs: %w", err)
	}
	if j.logger != nil {
		j.logger.Info("dangling role references repaired",
			slog.Int64("found", dangling),
			slog.Int64("repaired", repaired))
	}
	return nil
}
