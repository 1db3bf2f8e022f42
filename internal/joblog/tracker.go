package joblog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/database"
)

const defaultListLimit = 50

// Tracker writes submissions to the ledger tables and logs their lifecycle
type Tracker struct {
	db      *sqlx.DB
	logger  *slog.Logger
	handler slog.Handler
	mu      sync.RWMutex
}

// New creates a tracker over db. Without handlers, records are forwarded to logrus.
func New(db *sqlx.DB, handlers ...slog.Handler) *Tracker {
	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = NewLogrusHandler(log.StandardLogger())
	case 1:
		handler = handlers[0]
	default:
		handler = NewFanoutHandler(handlers...)
	}

	return &Tracker{
		db:      db,
		logger:  slog.New(handler),
		handler: handler,
	}
}

// StartSubmission inserts a running submission and returns a context carrying its id
func (t *Tracker) StartSubmission(ctx context.Context, input SubmissionStart) (context.Context, string, error) {
	if err := input.Validate(); err != nil {
		return ctx, "", fmt.Errorf("invalid submission input: %w", err)
	}

	id := uuid.New().String()
	now := time.Now()

	var metadataJSON *string
	if input.Metadata != nil {
		if jsonBytes, err := json.Marshal(input.Metadata); err == nil {
			jsonStr := string(jsonBytes)
			metadataJSON = &jsonStr
		}
	}

	query := `
		INSERT INTO cleanroom_submissions (
			id, operation, group_name, group_id, entity_count, status,
			metadata, owner, started_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	t.mu.Lock()
	_, err := t.db.ExecContext(ctx, query,
		id,
		input.Operation,
		input.GroupName,
		input.GroupID,
		input.EntityCount,
		StatusRunning,
		metadataJSON,
		input.Owner,
		now,
		now,
		now,
	)
	t.mu.Unlock()
	if err != nil {
		return ctx, "", fmt.Errorf("failed to create submission record: %w", err)
	}

	ctx = WithSubmissionID(ctx, id)
	t.Logger(ctx).Info("Submission started",
		slog.String("operation", input.Operation),
		slog.String("group_name", input.GroupName),
		slog.Int64("group_id", input.GroupID),
		slog.Int("entity_count", input.EntityCount),
	)

	return ctx, id, nil
}

// EndSubmission stores the outcome of a submission
func (t *Tracker) EndSubmission(ctx context.Context, id string, status Status, backendJobID *int64, err error) error {
	now := time.Now()

	var errorMessage *string
	if err != nil {
		errStr := err.Error()
		errorMessage = &errStr
	}

	var completedAt *time.Time
	if status.IsTerminal() {
		completedAt = &now
	}

	query := `
		UPDATE cleanroom_submissions
		SET status = ?, backend_job_id = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	t.mu.Lock()
	result, execErr := t.db.ExecContext(ctx, query,
		status,
		backendJobID,
		errorMessage,
		completedAt,
		now,
		id,
	)
	t.mu.Unlock()
	if execErr != nil {
		return fmt.Errorf("failed to update submission status: %w", execErr)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("submission not found: %s", id)
	}

	level := slog.LevelInfo
	message := "Submission completed"
	if status == StatusFailed {
		level = slog.LevelError
		message = "Submission failed"
	}

	attrs := []any{slog.String("status", status.String())}
	if backendJobID != nil {
		attrs = append(attrs, slog.Int64("backend_job_id", *backendJobID))
	}
	if errorMessage != nil {
		attrs = append(attrs, slog.String("error", *errorMessage))
	}
	t.Logger(WithSubmissionID(ctx, id)).Log(ctx, level, message, attrs...)

	return nil
}

// Track records fn as one submission. fn returns the backend job id; its error
// is stored and returned unchanged. A nil tracker only runs fn.
func (t *Tracker) Track(ctx context.Context, input SubmissionStart, fn func(ctx context.Context) (int64, error)) (jobID int64, err error) {
	if t == nil {
		return fn(ctx)
	}

	subCtx, id, err := t.StartSubmission(ctx, input)
	if err != nil {
		return 0, err
	}

	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = fmt.Errorf("panic in %s submission: %w", input.Operation, v)
			default:
				err = fmt.Errorf("panic in %s submission: %v", input.Operation, v)
			}
			t.Logger(subCtx).Error("Panic recovered in submission", slog.String("panic", fmt.Sprintf("%v", r)))
		}

		status := StatusCompleted
		var stored *int64
		if err != nil {
			status = StatusFailed
		} else if jobID != 0 {
			stored = &jobID
		}

		if endErr := t.EndSubmission(subCtx, id, status, stored, err); endErr != nil {
			t.Logger(subCtx).Error("Failed to end submission", slog.String("error", endErr.Error()))
		}
	}()

	return fn(subCtx)
}

// Logger returns a logger carrying the submission id from ctx
func (t *Tracker) Logger(ctx context.Context) *slog.Logger {
	logger := t.logger
	if id, ok := SubmissionIDFromCtx(ctx); ok && id != "" {
		logger = logger.With(slog.String("submission_id", id))
	}
	return logger
}

const submissionColumns = `id, operation, group_name, group_id, entity_count, status,
		backend_job_id, metadata, error_message, owner,
		started_at, completed_at, created_at, updated_at`

// Get retrieves a submission by id
func (t *Tracker) Get(ctx context.Context, id string) (*database.Submission, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sub database.Submission
	err := t.db.GetContext(ctx, &sub, `SELECT `+submissionColumns+` FROM cleanroom_submissions WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &sub, nil
}

// List returns the most recent submissions matching filter
func (t *Tracker) List(ctx context.Context, filter Filter) ([]database.Submission, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var where []string
	var args []any
	if filter.GroupName != "" {
		where = append(where, "group_name = ?")
		args = append(args, filter.GroupName)
	}
	if filter.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, filter.Operation)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + submissionColumns + ` FROM cleanroom_submissions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	var subs []database.Submission
	if err := t.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

// Close shuts down any event handlers owned by the tracker
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.handler.(*EventHandler); ok {
		return h.Close()
	}
	if f, ok := t.handler.(*FanoutHandler); ok {
		for _, h := range f.handlers {
			if eh, ok := h.(*EventHandler); ok {
				eh.Close()
			}
		}
	}
	return nil
}
