package joblog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// EventHandler implements slog.Handler and stores records that belong to a
// submission in cleanroom_submission_events. Records without a submission id
// are dropped.
type EventHandler struct {
	db    *sqlx.DB
	level slog.Level
	attrs []slog.Attr
	state *handlerState
}

type handlerState struct {
	mu      sync.RWMutex
	stopped bool
}

func NewEventHandler(db *sqlx.DB, level slog.Level) *EventHandler {
	return &EventHandler{db: db, level: level, state: &handlerState{}}
}

func (h *EventHandler) Enabled(_ context.Context, level slog.Level) bool {
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	return level >= h.level && !h.state.stopped
}

func (h *EventHandler) Handle(ctx context.Context, record slog.Record) error {
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	if h.state.stopped {
		return nil
	}

	submissionID, _ := SubmissionIDFromCtx(ctx)
	attrs := make(map[string]any)
	collect := func(a slog.Attr) bool {
		if a.Key == "submission_id" {
			submissionID = a.Value.String()
			return true
		}
		attrs[a.Key] = a.Value.Any()
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	record.Attrs(collect)

	if submissionID == "" {
		return nil
	}

	var attrsJSON *string
	if len(attrs) > 0 {
		if jsonBytes, err := json.Marshal(attrs); err == nil {
			jsonStr := string(jsonBytes)
			attrsJSON = &jsonStr
		}
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO cleanroom_submission_events (submission_id, level, message, attrs, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, submissionID, levelToString(record.Level), record.Message, attrsJSON, record.Time)
	if err != nil {
		return fmt.Errorf("failed to insert submission event: %w", err)
	}
	return nil
}

func (h *EventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)
	return &EventHandler{db: h.db, level: h.level, attrs: newAttrs, state: h.state}
}

// WithGroup is a no-op; event attributes are stored flat.
func (h *EventHandler) WithGroup(string) slog.Handler {
	return h
}

// Close stops the handler. Later records are dropped.
func (h *EventHandler) Close() error {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.stopped = true
	return nil
}

func levelToString(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// LogrusHandler forwards slog records to a logrus logger as fields.
type LogrusHandler struct {
	logger *log.Logger
	attrs  []slog.Attr
}

func NewLogrusHandler(logger *log.Logger) *LogrusHandler {
	return &LogrusHandler{logger: logger}
}

func (h *LogrusHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.IsLevelEnabled(logrusLevel(level))
}

func (h *LogrusHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make(log.Fields, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	h.logger.WithFields(fields).Log(logrusLevel(record.Level), record.Message)
	return nil
}

func (h *LogrusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)
	return &LogrusHandler{logger: h.logger, attrs: newAttrs}
}

func (h *LogrusHandler) WithGroup(string) slog.Handler {
	return h
}

func logrusLevel(level slog.Level) log.Level {
	switch {
	case level < slog.LevelInfo:
		return log.DebugLevel
	case level < slog.LevelWarn:
		return log.InfoLevel
	case level < slog.LevelError:
		return log.WarnLevel
	default:
		return log.ErrorLevel
	}
}

// FanoutHandler combines multiple handlers into one
type FanoutHandler struct {
	handlers []slog.Handler
}

// NewFanoutHandler creates a handler that sends records to multiple handlers
func NewFanoutHandler(handlers ...slog.Handler) *FanoutHandler {
	return &FanoutHandler{handlers: handlers}
}

// Enabled reports whether any of the handlers handle records at the given level
func (f *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle sends the record to all handlers and returns the first error
func (f *FanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: newHandlers}
}

func (f *FanoutHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &FanoutHandler{handlers: newHandlers}
}
