package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"timetracker/internal/model"
	"timetracker/internal/repository"
	"timetracker/internal/security"
	"timetracker/pkg/apperror"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Actor is the authenticated caller with its authoritative role.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// Owns reports whether the actor owns the entry.
func (a Actor) Owns(e *model.TimeEntry) bool { return e.UserID == a.ID }

// EntryEvent is published after an entry changes status or is deleted.
type EntryEvent struct {
	Type    string    `json:"type"`
	EntryID string    `json:"entry_id"`
	UserID  string    `json:"user_id"`
	Status  string    `json:"status,omitempty"`
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
}

// EventPublisher delivers entry events to connected clients.
type EventPublisher interface {
	PublishEntryEvent(event EntryEvent)
}

// RoleListener is told after a user's role has been changed.
type RoleListener interface {
	RoleChanged(userID, role string)
}

type noopPublisher struct{}

func (noopPublisher) PublishEntryEvent(EntryEvent) {}

// BatchFailure is one entry a batch operation could not process.
type BatchFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult reports a continue-on-error batch.
type BatchResult struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Failures  []BatchFailure `json:"failures"`
}

func (r *BatchResult) fail(id uuid.UUID, err error) {
	r.Failed++
	r.Failures = append(r.Failures, BatchFailure{ID: id.String(), Reason: string(apperror.KindOf(err))})
}

// actorResolver loads the caller's role from the user store.
type actorResolver struct {
	users repository.UserRepository
}

func (r actorResolver) resolve(ctx context.Context, userID string) (Actor, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Actor{}, apperror.PermissionDenied("invalid user id")
	}
	role, err := r.users.GetRole(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return Actor{}, apperror.PermissionDenied("unknown user")
		}
		return Actor{}, apperror.Upstream(err, "failed to load user role")
	}
	return Actor{ID: id, Role: role}, nil
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid " + field)
	}
	return id, nil
}

// storeErr converts a repository error into the error taxonomy.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case repository.IsNotFound(err):
		return apperror.NotFound(what + " not found")
	case errors.Is(err, repository.ErrStaleVersion):
		return apperror.InvalidState(what + " was changed by someone else, reload and try again")
	default:
		return apperror.Upstream(err, "failed to access "+what)
	}
}

// denied records a permission failure in the security log.
func denied(sec security.Logger, actor Actor, action string, entryID uuid.UUID) error {
	sec.LogEvent(security.Event{
		Type:    security.EventPermissionDenied,
		UserID:  actor.ID.String(),
		Details: map[string]any{"action": action, "entry_id": entryID.String()},
	})
	return apperror.PermissionDenied(action + " not allowed")
}

func auditEntry(ctx context.Context, audit repository.AuditRepository, actorID uuid.UUID, action string, entry *model.TimeEntry, extra map[string]interface{}) error {
	details := map[string]interface{}{
		"status":  entry.Status,
		"user_id": entry.UserID.String(),
		"date":    entry.Date.Format("2006-01-02"),
		"hours":   entry.Hours.String(),
		"version": entry.Version,
	}
	for k, v := range extra {
		details[k] = v
	}
	payload, _ := json.Marshal(details)
	return audit.Log(ctx, &model.AuditLog{
		UserID:     &actorID,
		Action:     action,
		EntityID:   entry.ID.String(),
		EntityName: "time_entry",
		Details:    string(payload),
	})
}

func logUpstream(logger *slog.Logger, err error, msg string) {
	if apperror.Is(err, apperror.KindUpstream) || apperror.Is(err, apperror.KindInternal) {
		logger.Error(msg, "error", err)
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
