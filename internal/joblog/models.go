// Package joblog records the requests this tool submits to the backup server
// (recover, cleanup, delete) together with the job id the server returned.
package joblog

import (
	"context"
	"fmt"
)

// Status represents the lifecycle of a submission
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if the status represents a terminal state
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

// Operations recorded in the ledger.
const (
	OperationRecover = "recover"
	OperationCleanup = "cleanup"
	OperationDelete  = "delete"
)

// SubmissionStart contains the parameters for recording a new submission
type SubmissionStart struct {
	Operation   string  `json:"operation"`
	GroupName   string  `json:"group_name"`
	GroupID     int64   `json:"group_id"`
	EntityCount int     `json:"entity_count"`
	Owner       *string `json:"owner,omitempty"`

	// Metadata contains arbitrary request data, stored as JSON
	Metadata any `json:"metadata,omitempty"`
}

// Validate ensures the SubmissionStart has required fields
func (s *SubmissionStart) Validate() error {
	if s.Operation == "" {
		return ErrInvalidOperation
	}
	if s.GroupName == "" {
		return ErrInvalidGroup
	}
	return nil
}

// Filter narrows List results.
type Filter struct {
	GroupName string
	Operation string
	Limit     int
}

// Common errors
var (
	ErrInvalidOperation = fmt.Errorf("operation cannot be empty")
	ErrInvalidGroup     = fmt.Errorf("group name cannot be empty")
)

type contextKey string

const submissionIDKey contextKey = "joblog_submission_id"

// WithSubmissionID adds a submission ID to the context
func WithSubmissionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, submissionIDKey, id)
}

// SubmissionIDFromCtx extracts the submission ID from the context
func SubmissionIDFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(submissionIDKey).(string)
	return id, ok
}
