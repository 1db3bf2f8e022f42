package database

import "time"

// Submission is one recover, cleanup or delete request sent to the backup
// server, with the job id it returned.
type Submission struct {
	ID           string     `gorm:"primaryKey;column:id;size:36" db:"id" json:"id"`
	Operation    string     `gorm:"column:operation;size:32;not null;index" db:"operation" json:"operation"`
	GroupName    string     `gorm:"column:group_name;size:255;not null;index" db:"group_name" json:"group_name"`
	GroupID      int64      `gorm:"column:group_id;not null" db:"group_id" json:"group_id"`
	EntityCount  int        `gorm:"column:entity_count;default:0" db:"entity_count" json:"entity_count"`
	Status       string     `gorm:"column:status;size:16;default:running" db:"status" json:"status"`
	BackendJobID *int64     `gorm:"column:backend_job_id" db:"backend_job_id" json:"backend_job_id,omitempty"`
	Metadata     *string    `gorm:"column:metadata;type:json" db:"metadata" json:"metadata,omitempty"`
	ErrorMessage *string    `gorm:"column:error_message;type:text" db:"error_message" json:"error_message,omitempty"`
	Owner        *string    `gorm:"column:owner;size:255" db:"owner" json:"owner,omitempty"`
	StartedAt    time.Time  `gorm:"column:started_at" db:"started_at" json:"started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at" db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime" db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime" db:"updated_at" json:"updated_at"`
}

func (Submission) TableName() string { return "cleanroom_submissions" }

// SubmissionEvent is a log line attached to a submission.
type SubmissionEvent struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" db:"id" json:"id"`
	SubmissionID string    `gorm:"column:submission_id;size:36;not null;index" db:"submission_id" json:"submission_id"`
	Level        string    `gorm:"column:level;size:8;not null" db:"level" json:"level"`
	Message      string    `gorm:"column:message;type:text;not null" db:"message" json:"message"`
	Attrs        *string   `gorm:"column:attrs;type:json" db:"attrs" json:"attrs,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" db:"created_at" json:"created_at"`
}

func (SubmissionEvent) TableName() string { return "cleanroom_submission_events" }
