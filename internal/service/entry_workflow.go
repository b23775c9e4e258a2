package service

import (
	"context"
	"log/slog"
	"time"

	"timetracker/internal/model"
	"timetracker/internal/repository"
	"timetracker/internal/security"
)

// entryWorkflow holds what every status-changing operation needs: the guard,
// the conditional write with its audit record in one transaction, and the
// event broadcast afterwards.
type entryWorkflow struct {
	entries  repository.TimeEntryRepository
	audit    repository.AuditRepository
	tx       repository.TransactionManager
	security security.Logger
	events   EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

func newEntryWorkflow(
	entries repository.TimeEntryRepository,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	sec security.Logger,
	events EventPublisher,
	logger *slog.Logger,
) *entryWorkflow {
	if events == nil {
		events = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &entryWorkflow{
		entries:  entries,
		audit:    audit,
		tx:       tx,
		security: sec,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// load fetches an entry, translating store errors.
func (w *entryWorkflow) load(ctx context.Context, id string) (*model.TimeEntry, error) {
	entryID, err := parseID(id, "entry id")
	if err != nil {
		return nil, err
	}
	entry, err := w.entries.FindByID(ctx, entryID)
	if err != nil {
		return nil, w.storeErr(err)
	}
	return entry, nil
}

// mutate runs the guard for op, applies change, and persists the entry
// conditionally on the version that was read. expectedVersion, when set,
// must match what was read.
func (w *entryWorkflow) mutate(
	ctx context.Context,
	actor Actor,
	entry *model.TimeEntry,
	op string,
	expectedVersion *int,
	action string,
	extra map[string]interface{},
	change func(e *model.TimeEntry) error,
) error {
	g := checkOperation(actor, entry, op)
	if g.deny {
		return denied(w.security, actor, op, entry.ID)
	}
	if g.err != nil {
		return g.err
	}

	readVersion := entry.Version
	previous := entry.Status
	if expectedVersion != nil && *expectedVersion != readVersion {
		return w.storeErr(repository.ErrStaleVersion)
	}

	if err := change(entry); err != nil {
		return err
	}

	eventType := "entry_updated"
	if entry.Status != previous {
		eventType = "entry_" + string(entry.Status)
	}

	err := w.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := w.entries.Update(txCtx, entry, readVersion); err != nil {
			return err
		}
		if err := auditEntry(txCtx, w.audit, actor.ID, action, entry, extra); err != nil {
			return err
		}
		// Subscribers only hear about changes that were committed.
		snapshot := *entry
		repository.AfterCommit(txCtx, func() { w.publish(eventType, &snapshot, actor) })
		return nil
	})
	if err != nil {
		return w.storeErr(err)
	}
	return nil
}

func (w *entryWorkflow) remove(ctx context.Context, actor Actor, entry *model.TimeEntry) error {
	g := checkOperation(actor, entry, opDelete)
	if g.deny {
		return denied(w.security, actor, opDelete, entry.ID)
	}
	if g.err != nil {
		return g.err
	}

	err := w.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := w.entries.Delete(txCtx, entry.ID); err != nil {
			return err
		}
		if err := auditEntry(txCtx, w.audit, actor.ID, model.ActionDeleteEntry, entry, nil); err != nil {
			return err
		}
		repository.AfterCommit(txCtx, func() { w.publish("entry_deleted", entry, actor) })
		return nil
	})
	if err != nil {
		return w.storeErr(err)
	}
	return nil
}

func (w *entryWorkflow) publish(eventType string, entry *model.TimeEntry, actor Actor) {
	w.events.PublishEntryEvent(EntryEvent{
		Type:    eventType,
		EntryID: entry.ID.String(),
		UserID:  entry.UserID.String(),
		Status:  string(entry.Status),
		ActorID: actor.ID.String(),
		At:      w.now(),
	})
}

func (w *entryWorkflow) storeErr(err error) error {
	err = storeErr(err, "time entry")
	logUpstream(w.logger, err, "time entry store failure")
	return err
}
