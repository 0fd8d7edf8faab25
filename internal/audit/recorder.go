package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/store"
)

// ErrInvalidEntry is returned when an entry is missing its action, actor,
// or target.
var ErrInvalidEntry = errors.New("invalid audit entry")

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 100

// Recorder appends entries to the audit log.
type Recorder struct {
	store  store.AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder on s.
func NewRecorder(s store.AuditStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  s,
		logger: logger.With(slog.String("component", "audit")),
		now:    time.Now,
	}
}

// Record appends one entry. details is encoded as JSON; nil records an
// empty object.
func (r *Recorder) Record(ctx context.Context, action, actor, target string, details any) (*domain.AuditEntry, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	entry, err := r.build(action, actor, target, details)
	if err != nil {
		log.Error("rejected audit entry",
			slog.String("action", action),
			slog.String("target", target),
			slog.String("error", err.Error()))
		return nil, err
	}

	if err := r.store.Append(ctx, entry); err != nil {
		log.Error("failed to record audit entry",
			slog.String("action", action),
			slog.String("actor", actor),
			slog.String("target", target),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("record %s on %s: %w", action, target, err)
	}

	log.Info("audit entry recorded",
		slog.String("audit_id", entry.ID.String()),
		slog.String("action", action),
		slog.String("actor", actor),
		slog.String("target", target))
	return entry, nil
}

func (r *Recorder) build(action, actor, target string, details any) (*domain.AuditEntry, error) {
	var missing []string
	if strings.TrimSpace(action) == "" {
		missing = append(missing, "action")
	}
	if strings.TrimSpace(actor) == "" {
		missing = append(missing, "actor")
	}
	if strings.TrimSpace(target) == "" {
		missing = append(missing, "target")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidEntry, strings.Join(missing, ", "))
	}

	raw := json.RawMessage(`{}`)
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("%w: details: %v", ErrInvalidEntry, err)
		}
		raw = data
	}

	return &domain.AuditEntry{
		ID:        uuid.New(),
		Action:    action,
		Actor:     actor,
		Target:    target,
		Details:   raw,
		CreatedAt: r.now().UTC(),
	}, nil
}

// List returns the entries for target, newest first. An empty target lists
// the most recent entries across all targets.
func (r *Recorder) List(ctx context.Context, target string, limit int) ([]*domain.AuditEntry, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	if target == "" {
		return r.store.ListRecent(ctx, limit)
	}
	return r.store.ListByTarget(ctx, target, limit)
}
