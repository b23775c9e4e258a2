package service

import (
	"context"
	"log/slog"

	"timetracker/internal/model"
	"timetracker/internal/repository"
	"timetracker/pkg/apperror"
	"timetracker/pkg/pagination"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditQuery narrows the admin audit listing. Empty fields match everything.
type AuditQuery struct {
	EntityID string
	Action   string
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, actorID string, query AuditQuery, page, limit int) ([]AuditLogResponse, int64, error)
	EntryHistory(ctx context.Context, actorID, entryID string) ([]AuditLogResponse, error)
}

type auditService struct {
	repo    repository.AuditRepository
	entries repository.TimeEntryRepository
	actors  actorResolver
	logger  *slog.Logger
}

func NewAuditService(repo repository.AuditRepository, entries repository.TimeEntryRepository, users repository.UserRepository, logger *slog.Logger) AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &auditService{repo: repo, entries: entries, actors: actorResolver{users: users}, logger: logger}
}

// GetAuditLogs pages through the transition history, newest first. Admin only.
func (s *auditService) GetAuditLogs(ctx context.Context, actorID string, query AuditQuery, page, limit int) ([]AuditLogResponse, int64, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, 0, err
	}
	if !actor.IsAdmin() {
		return nil, 0, apperror.PermissionDenied("audit log is admin only")
	}

	filter := repository.AuditFilter{EntityID: query.EntityID, Action: query.Action}
	logs, total, err := s.repo.List(ctx, filter, pagination.New(page, limit))
	if err != nil {
		err = storeErr(err, "audit log")
		logUpstream(s.logger, err, "audit query failed")
		return nil, 0, err
	}
	return toAuditLogResponses(logs), total, nil
}

// EntryHistory returns every recorded transition of one entry, oldest first.
// Owners see their own entries; an entry the actor cannot read is not found.
func (s *auditService) EntryHistory(ctx context.Context, actorID, entryID string) ([]AuditLogResponse, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	id, err := parseID(entryID, "entry id")
	if err != nil {
		return nil, err
	}
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "time entry")
	}
	if !actor.IsAdmin() && !actor.Owns(entry) {
		return nil, apperror.NotFound("time entry not found")
	}

	filter := repository.AuditFilter{EntityID: entry.ID.String(), OldestFirst: true}
	logs, _, err := s.repo.List(ctx, filter, pagination.Params{})
	if err != nil {
		err = storeErr(err, "audit log")
		logUpstream(s.logger, err, "entry history query failed")
		return nil, err
	}
	return toAuditLogResponses(logs), nil
}

func toAuditLogResponses(logs []model.AuditLog) []AuditLogResponse {
	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		name := "System"
		userID := ""
		if l.User != nil {
			name = l.User.FullName
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			UserName:   name,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return res
}
