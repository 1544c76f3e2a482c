package execution

import (
	"time"

	"github.com/kbukum/planengine/database"
	"github.com/kbukum/planengine/status"
)

// PlanExecution is one run of a Plan. It is created in QUEUED, mutated
// only through the conditional status update path, and deleted together
// with its metadata once terminal and past retention.
type PlanExecution struct {
	ID     string `gorm:"primaryKey;size:64"`
	PlanID string `gorm:"index;size:64;not null"`

	// Scoping identifiers carried into observer notifications.
	AccountID  string `gorm:"index;size:64"`
	OrgID      string `gorm:"size:64"`
	ProjectID  string `gorm:"size:64"`
	PipelineID string `gorm:"index;size:64"`

	Status status.Status `gorm:"index;size:32"`

	// Metadata is the execution context blob; opaque to the engine.
	Metadata database.JSONMap `gorm:"type:text"`
	// GovernanceMetadata is consumed by callers, never by the engine.
	GovernanceMetadata database.JSONMap `gorm:"type:text"`
	// SetupAbstractions carries setup-scoping identifiers for observers.
	SetupAbstractions database.JSONMap `gorm:"type:text"`

	CreatedAt     time.Time  `gorm:"index;autoCreateTime"`
	LastUpdatedAt time.Time  `gorm:"autoUpdateTime"`
	StartTS       *time.Time `gorm:"column:start_ts"`
	EndTS         *time.Time `gorm:"column:end_ts"`

	// ValidUntil is the TTL expiry for stores supporting auto-expiry.
	ValidUntil *time.Time `gorm:"index"`
}

// TableName sets the plan execution table name.
func (PlanExecution) TableName() string { return "plan_executions" }

// Metadata is the side record holding large optional run inputs, keyed
// 1:1 by plan execution id and deleted together with it.
type Metadata struct {
	PlanExecutionID string    `gorm:"primaryKey;size:64"`
	InputPayload    string    `gorm:"type:text"`
	Notes           string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// TableName sets the metadata table name.
func (Metadata) TableName() string { return "plan_execution_metadata" }
