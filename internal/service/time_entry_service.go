package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"timetracker/internal/model"
	"timetracker/internal/report"
	"timetracker/internal/repository"
	"timetracker/internal/security"
	"timetracker/internal/validation"
	"timetracker/pkg/apperror"
	"timetracker/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// copyLookback is how far back CopyPreviousDay searches for a day with entries.
const copyLookback = 7

var maxDailyHours = decimal.NewFromInt(24)

// DTOs
type CreateTimeEntryRequest struct {
	Date        string          `json:"date" binding:"required"`
	Hours       decimal.Decimal `json:"hours"`
	ProjectID   string          `json:"project_id" binding:"required"`
	Description string          `json:"description"`
}

// UpdateTimeEntryRequest changes only the fields that are set. Version, when
// sent, must match the stored version.
type UpdateTimeEntryRequest struct {
	Date        *string          `json:"date"`
	Hours       *decimal.Decimal `json:"hours"`
	ProjectID   *string          `json:"project_id"`
	Description *string          `json:"description"`
	Version     *int             `json:"version"`
}

type ListTimeEntriesRequest struct {
	UserID    string `form:"user_id"`
	ProjectID string `form:"project_id"`
	ClientID  string `form:"client_id"`
	Status    string `form:"status"`
	From      string `form:"from"`
	To        string `form:"to"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
}

type TimeEntryResponse struct {
	ID            string  `json:"id"`
	Date          string  `json:"date"`
	Hours         string  `json:"hours"`
	Description   string  `json:"description"`
	ProjectID     string  `json:"project_id"`
	ProjectName   string  `json:"project_name"`
	ClientID      string  `json:"client_id"`
	ClientName    string  `json:"client_name"`
	UserID        string  `json:"user_id"`
	UserName      string  `json:"user_name,omitempty"`
	Status        string  `json:"status"`
	ApprovedBy    *string `json:"approved_by"`
	ApprovedAt    *string `json:"approved_at"`
	ReturnComment string  `json:"return_comment,omitempty"`
	Version       int     `json:"version"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type CopyResult struct {
	SourceDate string              `json:"source_date,omitempty"`
	Created    []TimeEntryResponse `json:"created"`
}

type TimeEntryService interface {
	Create(ctx context.Context, actorID string, req CreateTimeEntryRequest) (*TimeEntryResponse, error)
	Get(ctx context.Context, actorID, id string) (*TimeEntryResponse, error)
	List(ctx context.Context, actorID string, req ListTimeEntriesRequest) ([]TimeEntryResponse, int64, error)
	Update(ctx context.Context, actorID, id string, req UpdateTimeEntryRequest) (*TimeEntryResponse, error)
	Submit(ctx context.Context, actorID, id string, version *int) (*TimeEntryResponse, error)
	SubmitWeek(ctx context.Context, actorID string, date time.Time) (*BatchResult, error)
	Delete(ctx context.Context, actorID, id string) error
	CopyPreviousDay(ctx context.Context, actorID string, today time.Time) (*CopyResult, error)
}

type timeEntryService struct {
	*entryWorkflow
	projects  repository.ProjectRepository
	actors    actorResolver
	weekStart time.Weekday
}

func NewTimeEntryService(
	entries repository.TimeEntryRepository,
	projects repository.ProjectRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	sec security.Logger,
	events EventPublisher,
	logger *slog.Logger,
) TimeEntryService {
	return &timeEntryService{
		entryWorkflow: newEntryWorkflow(entries, audit, tx, sec, events, logger),
		projects:      projects,
		actors:        actorResolver{users: users},
		weekStart:     time.Monday,
	}
}

func (s *timeEntryService) Create(ctx context.Context, actorID string, req CreateTimeEntryRequest) (*TimeEntryResponse, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if err := validateHours(req.Hours); err != nil {
		return nil, err
	}
	description, err := cleanDescription(req.Description)
	if err != nil {
		return nil, err
	}
	project, err := s.findProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	entry := &model.TimeEntry{
		Date:        date,
		Hours:       req.Hours,
		Description: description,
		ProjectID:   project.ID,
		UserID:      actor.ID,
		Status:      model.StatusDraft,
		Version:     1,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.entries.Create(txCtx, entry); err != nil {
			return err
		}
		return auditEntry(txCtx, s.audit, actor.ID, model.ActionCreateEntry, entry, nil)
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	entry.Project = project
	res := toTimeEntryResponse(entry)
	return &res, nil
}

// Get hides entries the actor may not read behind not_found.
func (s *timeEntryService) Get(ctx context.Context, actorID, id string) (*TimeEntryResponse, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Owns(entry) {
		return nil, apperror.NotFound("time entry not found")
	}
	res := toTimeEntryResponse(entry)
	return &res, nil
}

func (s *timeEntryService) List(ctx context.Context, actorID string, req ListTimeEntriesRequest) ([]TimeEntryResponse, int64, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, 0, err
	}

	filter, err := buildFilter(req)
	if err != nil {
		return nil, 0, err
	}
	if !actor.IsAdmin() {
		filter.UserID = &actor.ID
	}

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

func (s *timeEntryService) Update(ctx context.Context, actorID, id string, req UpdateTimeEntryRequest) (*TimeEntryResponse, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Field validation happens inside change, after the guard, so callers
	// without rights learn nothing about the entry.
	var project *model.Project
	err = s.mutate(ctx, actor, entry, opEdit, req.Version, model.ActionUpdateEntry, nil, func(e *model.TimeEntry) error {
		if req.Date != nil {
			date, err := parseDate(*req.Date)
			if err != nil {
				return err
			}
			e.Date = date
		}
		if req.Hours != nil {
			if err := validateHours(*req.Hours); err != nil {
				return err
			}
			e.Hours = *req.Hours
		}
		if req.Description != nil {
			description, err := cleanDescription(*req.Description)
			if err != nil {
				return err
			}
			e.Description = description
		}
		if req.ProjectID != nil && *req.ProjectID != e.ProjectID.String() {
			if e.Status == model.StatusApproved {
				return apperror.Validation("project cannot be changed on an approved entry")
			}
			p, err := s.findProject(ctx, *req.ProjectID)
			if err != nil {
				return err
			}
			project = p
			e.ProjectID = p.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if project != nil {
		entry.Project = project
	}
	res := toTimeEntryResponse(entry)
	return &res, nil
}

func (s *timeEntryService) Submit(ctx context.Context, actorID, id string, version *int) (*TimeEntryResponse, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.submit(ctx, actor, entry, version); err != nil {
		return nil, err
	}
	res := toTimeEntryResponse(entry)
	return &res, nil
}

func (s *timeEntryService) submit(ctx context.Context, actor Actor, entry *model.TimeEntry, version *int) error {
	return s.mutate(ctx, actor, entry, opSubmit, version, model.ActionSubmitEntry, nil, func(e *model.TimeEntry) error {
		e.Status = model.StatusPending
		e.ReturnComment = ""
		return nil
	})
}

// SubmitWeek submits every draft the actor owns in the week containing date.
func (s *timeEntryService) SubmitWeek(ctx context.Context, actorID string, date time.Time) (*BatchResult, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}

	week := report.WeekOf(date, s.weekStart)
	entries, _, err := s.entries.List(ctx, repository.TimeEntryFilter{
		UserID:   &actor.ID,
		Statuses: []model.EntryStatus{model.StatusDraft},
		DateFrom: &week.Start,
		DateTo:   &week.End,
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	result := &BatchResult{Failures: []BatchFailure{}}
	for i := range entries {
		if err := s.submit(ctx, actor, &entries[i], nil); err != nil {
			result.fail(entries[i].ID, err)
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

func (s *timeEntryService) Delete(ctx context.Context, actorID, id string) error {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return err
	}
	entry, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, actor, entry)
}

// CopyPreviousDay copies the most recent earlier day with entries (looking
// back a week) onto today as drafts. Entries already present today for the
// same project and description are not duplicated.
func (s *timeEntryService) CopyPreviousDay(ctx context.Context, actorID string, today time.Time) (*CopyResult, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}

	today = dateOnly(today)
	from := today.AddDate(0, 0, -copyLookback)
	before := today.AddDate(0, 0, -1)

	previous, _, err := s.entries.List(ctx, repository.TimeEntryFilter{
		UserID:   &actor.ID,
		DateFrom: &from,
		DateTo:   &before,
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	result := &CopyResult{Created: []TimeEntryResponse{}}
	if len(previous) == 0 {
		return result, nil
	}

	// List is ordered by date ascending; the last day is the source.
	source := dateOnly(previous[len(previous)-1].Date)
	result.SourceDate = source.Format(dateLayout)

	existing, _, err := s.entries.List(ctx, repository.TimeEntryFilter{
		UserID:   &actor.ID,
		DateFrom: &today,
		DateTo:   &today,
	})
	if err != nil {
		return nil, s.storeErr(err)
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[copyKey(&e)] = true
	}

	var created []*model.TimeEntry
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for i := range previous {
			src := &previous[i]
			if !dateOnly(src.Date).Equal(source) || seen[copyKey(src)] {
				continue
			}
			entry := &model.TimeEntry{
				Date:        today,
				Hours:       src.Hours,
				Description: src.Description,
				ProjectID:   src.ProjectID,
				UserID:      actor.ID,
				Status:      model.StatusDraft,
				Version:     1,
			}
			if err := s.entries.Create(txCtx, entry); err != nil {
				return err
			}
			extra := map[string]interface{}{"copied_from": src.ID.String()}
			if err := auditEntry(txCtx, s.audit, actor.ID, model.ActionCreateEntry, entry, extra); err != nil {
				return err
			}
			entry.Project = src.Project
			created = append(created, entry)
		}
		return nil
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	for _, e := range created {
		result.Created = append(result.Created, toTimeEntryResponse(e))
	}
	return result, nil
}

func (s *timeEntryService) findProject(ctx context.Context, rawID string) (*model.Project, error) {
	id, err := parseID(rawID, "project id")
	if err != nil {
		return nil, err
	}
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperror.Validation("project does not exist")
		}
		return nil, s.storeErr(err)
	}
	return project, nil
}

func copyKey(e *model.TimeEntry) string {
	return e.ProjectID.String() + "|" + e.Description
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperror.Validation("date must be in YYYY-MM-DD format")
	}
	return t, nil
}

func validateHours(hours decimal.Decimal) error {
	if !hours.IsPositive() {
		return apperror.Validation("hours must be greater than 0")
	}
	if hours.GreaterThan(maxDailyHours) {
		return apperror.Validation("hours cannot exceed 24")
	}
	if !hours.Mod(model.HoursStep).IsZero() {
		return apperror.Validation("hours must be in quarter-hour steps")
	}
	return nil
}

// cleanDescription allows an empty description; anything else must pass the
// validator. The trimmed text is stored as typed so it fits the column and
// survives being read and sent back; clients escape it when rendering.
func cleanDescription(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	if res := validation.ValidateDescription(trimmed); !res.Valid {
		return "", apperror.Validation(res.Error)
	}
	return trimmed, nil
}

func buildFilter(req ListTimeEntriesRequest) (repository.TimeEntryFilter, error) {
	var filter repository.TimeEntryFilter
	if req.Limit > 0 {
		filter.Page = pagination.New(req.Page, req.Limit)
	}

	optionalID := func(raw, field string) (*uuid.UUID, error) {
		if raw == "" {
			return nil, nil
		}
		id, err := parseID(raw, field)
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	optionalDate := func(raw string) (*time.Time, error) {
		if raw == "" {
			return nil, nil
		}
		t, err := parseDate(raw)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	var err error
	if filter.UserID, err = optionalID(req.UserID, "user id"); err != nil {
		return filter, err
	}
	if filter.ProjectID, err = optionalID(req.ProjectID, "project id"); err != nil {
		return filter, err
	}
	if filter.ClientID, err = optionalID(req.ClientID, "client id"); err != nil {
		return filter, err
	}
	if filter.DateFrom, err = optionalDate(req.From); err != nil {
		return filter, err
	}
	if filter.DateTo, err = optionalDate(req.To); err != nil {
		return filter, err
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return filter, apperror.Validation("from must not be after to")
	}
	if req.Status != "" {
		for _, raw := range strings.Split(req.Status, ",") {
			status := model.EntryStatus(strings.TrimSpace(raw))
			if !status.Valid() {
				return filter, apperror.Validation("unknown status " + string(status))
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	return filter, nil
}

func toTimeEntryResponse(e *model.TimeEntry) TimeEntryResponse {
	res := TimeEntryResponse{
		ID:            e.ID.String(),
		Date:          e.Date.Format(dateLayout),
		Hours:         e.Hours.StringFixed(2),
		Description:   e.Description,
		ProjectID:     e.ProjectID.String(),
		UserID:        e.UserID.String(),
		Status:        string(e.Status),
		ReturnComment: e.ReturnComment,
		Version:       e.Version,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     e.UpdatedAt.Format(time.RFC3339),
	}
	if e.Project != nil {
		res.ProjectName = e.Project.Name
		res.ClientID = e.Project.ClientID.String()
		if e.Project.Client != nil {
			res.ClientName = e.Project.Client.Name
		}
	}
	if e.User != nil {
		res.UserName = e.User.FullName
	}
	if e.ApprovedBy != nil {
		by := e.ApprovedBy.String()
		res.ApprovedBy = &by
	}
	if e.ApprovedAt != nil {
		at := e.ApprovedAt.Format(time.RFC3339)
		res.ApprovedAt = &at
	}
	return res
}

// toReportEntry flattens a joined entry for aggregation.
func toReportEntry(e *model.TimeEntry) report.Entry {
	out := report.Entry{
		ID:          e.ID.String(),
		Date:        e.Date,
		Hours:       e.Hours,
		Description: e.Description,
		ProjectID:   e.ProjectID.String(),
		UserID:      e.UserID.String(),
		Status:      string(e.Status),
	}
	if e.Project != nil {
		out.ProjectName = e.Project.Name
		out.ClientID = e.Project.ClientID.String()
		if e.Project.Client != nil {
			out.ClientName = e.Project.Client.Name
		}
	}
	if e.User != nil {
		out.UserName = e.User.FullName
	}
	return out
}
