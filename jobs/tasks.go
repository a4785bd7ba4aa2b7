package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRoleIntegrityScan repairs principals whose role reference no
	// longer resolves to an existing role.
	TaskRoleIntegrityScan = "rbac:role_integrity_scan"
)

// RoleIntegrityPayload configures a role integrity scan run.
type RoleIntegrityPayload struct {
	DryRun bool `json:"dryRun"`
}

// NewRoleIntegrityTask constructs an Asynq task.
func NewRoleIntegrityTask(payload RoleIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleIntegrityScan, data), nil
}
