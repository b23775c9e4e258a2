package service

import (
	"context"
	"log/slog"

	"timetracker/internal/model"
	"timetracker/internal/repository"
	"timetracker/internal/security"
	"timetracker/pkg/apperror"
)

// --- DTOs ---

type ReturnEntryRequest struct {
	Comment string `json:"comment"`
	Version *int   `json:"version"`
}

type ApproveRangeRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

type BulkApproveRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// ApprovalObserver is told how each approval attempt ended.
type ApprovalObserver interface {
	ObserveApproval(outcome string)
}

type noopObserver struct{}

func (noopObserver) ObserveApproval(string) {}

// --- Interface ---

type ApprovalService interface {
	ApproveEntry(ctx context.Context, approverID, entryID string, version *int) (*TimeEntryResponse, error)
	ReturnEntry(ctx context.Context, approverID, entryID string, req ReturnEntryRequest) (*TimeEntryResponse, error)
	ApproveAllForUser(ctx context.Context, approverID, userID string) (*BatchResult, error)
	ApproveAllPendingInRange(ctx context.Context, approverID string, req ApproveRangeRequest) (*BatchResult, error)
	BulkApproveDrafts(ctx context.Context, approverID string, req BulkApproveRequest) (*BatchResult, error)
	ListPending(ctx context.Context, approverID string, req ListTimeEntriesRequest) ([]TimeEntryResponse, int64, error)
}

type approvalService struct {
	*entryWorkflow
	actors   actorResolver
	observer ApprovalObserver
}

func NewApprovalService(
	entries repository.TimeEntryRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	sec security.Logger,
	events EventPublisher,
	observer ApprovalObserver,
	logger *slog.Logger,
) ApprovalService {
	if observer == nil {
		observer = noopObserver{}
	}
	return &approvalService{
		entryWorkflow: newEntryWorkflow(entries, audit, tx, sec, events, logger),
		actors:        actorResolver{users: users},
		observer:      observer,
	}
}

func (s *approvalService) ApproveEntry(ctx context.Context, approverID, entryID string, version *int) (*TimeEntryResponse, error) {
	actor, err := s.actors.resolve(ctx, approverID)
	if err != nil {
		return nil, err
	}
	entry, err := s.load(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := s.approve(ctx, actor, entry, opApprove, version, model.ActionApproveEntry); err != nil {
		return nil, err
	}
	res := toTimeEntryResponse(entry)
	return &res, nil
}

// ReturnEntry sends a pending or approved entry back to draft so its owner
// can fix it. The comment is optional and validated like a description.
func (s *approvalService) ReturnEntry(ctx context.Context, approverID, entryID string, req ReturnEntryRequest) (*TimeEntryResponse, error) {
	actor, err := s.actors.resolve(ctx, approverID)
	if err != nil {
		return nil, err
	}
	entry, err := s.load(ctx, entryID)
	if err != nil {
		return nil, err
	}

	err = s.mutate(ctx, actor, entry, opReturn, req.Version, model.ActionReturnEntry, nil, func(e *model.TimeEntry) error {
		comment, err := cleanDescription(req.Comment)
		if err != nil {
			return err
		}
		e.Status = model.StatusDraft
		e.ApprovedBy = nil
		e.ApprovedAt = nil
		e.ReturnComment = comment
		return nil
	})
	if err != nil {
		return nil, err
	}
	res := toTimeEntryResponse(entry)
	return &res, nil
}

// ApproveAllForUser approves every pending entry of one user. Only pending
// entries are selected, so running it twice approves nothing new.
func (s *approvalService) ApproveAllForUser(ctx context.Context, approverID, userID string) (*BatchResult, error) {
	actor, err := s.requireAdmin(ctx, approverID, "approve all for user")
	if err != nil {
		return nil, err
	}
	target, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}

	return s.approveMatching(ctx, actor, repository.TimeEntryFilter{
		UserID:   &target,
		Statuses: []model.EntryStatus{model.StatusPending},
	})
}

func (s *approvalService) ApproveAllPendingInRange(ctx context.Context, approverID string, req ApproveRangeRequest) (*BatchResult, error) {
	actor, err := s.requireAdmin(ctx, approverID, "approve range")
	if err != nil {
		return nil, err
	}
	from, err := parseDate(req.From)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(req.To)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, apperror.Validation("from must not be after to")
	}

	return s.approveMatching(ctx, actor, repository.TimeEntryFilter{
		Statuses: []model.EntryStatus{model.StatusPending},
		DateFrom: &from,
		DateTo:   &to,
	})
}

// BulkApproveDrafts is the admin override that approves entries straight
// from draft. Entries already approved are left alone and not counted.
func (s *approvalService) BulkApproveDrafts(ctx context.Context, approverID string, req BulkApproveRequest) (*BatchResult, error) {
	actor, err := s.requireAdmin(ctx, approverID, "bulk approve")
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Failures: []BatchFailure{}}
	for _, raw := range req.IDs {
		entryID, err := parseID(raw, "entry id")
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, BatchFailure{ID: raw, Reason: string(apperror.KindValidation)})
			continue
		}
		entry, err := s.entries.FindByID(ctx, entryID)
		if err != nil {
			result.fail(entryID, s.storeErr(err))
			continue
		}
		if entry.Status == model.StatusApproved {
			continue
		}
		if entry.Status == model.StatusDraft {
			// The override moves the entry through pending without a
			// separate write so the lifecycle guard still applies.
			entry.Status = model.StatusPending
		}
		if err := s.approve(ctx, actor, entry, opApprove, nil, model.ActionBulkApprove); err != nil {
			result.fail(entryID, err)
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

func (s *approvalService) ListPending(ctx context.Context, approverID string, req ListTimeEntriesRequest) ([]TimeEntryResponse, int64, error) {
	if _, err := s.requireAdmin(ctx, approverID, "list pending"); err != nil {
		return nil, 0, err
	}
	filter, err := buildFilter(req)
	if err != nil {
		return nil, 0, err
	}
	filter.Statuses = []model.EntryStatus{model.StatusPending}

	entries, total, err := s.entries.List(ctx, filter)
	if err != nil {
		return nil, 0, s.storeErr(err)
	}
	res := make([]TimeEntryResponse, 0, len(entries))
	for i := range entries {
		res = append(res, toTimeEntryResponse(&entries[i]))
	}
	return res, total, nil
}

// approveMatching approves each entry independently; one failure does not
// stop the rest.
func (s *approvalService) approveMatching(ctx context.Context, actor Actor, filter repository.TimeEntryFilter) (*BatchResult, error) {
	entries, _, err := s.entries.List(ctx, filter)
	if err != nil {
		return nil, s.storeErr(err)
	}

	result := &BatchResult{Failures: []BatchFailure{}}
	for i := range entries {
		if err := s.approve(ctx, actor, &entries[i], opApprove, nil, model.ActionApproveEntry); err != nil {
			result.fail(entries[i].ID, err)
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

func (s *approvalService) approve(ctx context.Context, actor Actor, entry *model.TimeEntry, op string, version *int, action string) error {
	err := s.mutate(ctx, actor, entry, op, version, action, nil, func(e *model.TimeEntry) error {
		now := s.now().UTC()
		approver := actor.ID
		e.Status = model.StatusApproved
		e.ApprovedBy = &approver
		e.ApprovedAt = &now
		e.ReturnComment = ""
		return nil
	})
	if err != nil {
		s.observer.ObserveApproval(string(apperror.KindOf(err)))
		return err
	}
	s.observer.ObserveApproval("approved")
	return nil
}

func (s *approvalService) requireAdmin(ctx context.Context, userID, action string) (Actor, error) {
	actor, err := s.actors.resolve(ctx, userID)
	if err != nil {
		return Actor{}, err
	}
	if !actor.IsAdmin() {
		s.security.LogEvent(security.Event{
			Type:    security.EventPermissionDenied,
			UserID:  actor.ID.String(),
			Details: map[string]any{"action": action},
		})
		return Actor{}, apperror.PermissionDenied(action + " not allowed")
	}
	return actor, nil
}
