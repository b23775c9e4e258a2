package repository

import (
	"context"
	"time"

	"timetracker/internal/model"
	"timetracker/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TimeEntryFilter narrows List. Zero values mean "no constraint".
type TimeEntryFilter struct {
	UserID    *uuid.UUID
	ProjectID *uuid.UUID
	ClientID  *uuid.UUID
	Statuses  []model.EntryStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      pagination.Params
}

type TimeEntryRepository interface {
	Create(ctx context.Context, entry *model.TimeEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.TimeEntry, error)
	List(ctx context.Context, filter TimeEntryFilter) ([]model.TimeEntry, int64, error)
	// Update writes entry only if the stored version equals expectedVersion,
	// then bumps entry.Version.
	Update(ctx context.Context, entry *model.TimeEntry, expectedVersion int) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error)
}

type timeEntryRepository struct {
	db *gorm.DB
}

func NewTimeEntryRepository(db *gorm.DB) TimeEntryRepository {
	return &timeEntryRepository{db: db}
}

func (r *timeEntryRepository) Create(ctx context.Context, entry *model.TimeEntry) error {
	if entry.Version == 0 {
		entry.Version = 1
	}
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *timeEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	if err := GetDB(ctx, r.db).Preload("Project.Client").First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *timeEntryRepository) List(ctx context.Context, filter TimeEntryFilter) ([]model.TimeEntry, int64, error) {
	var entries []model.TimeEntry
	var total int64

	db := GetDB(ctx, r.db)
	query := applyEntryFilter(db.Model(&model.TimeEntry{}), filter)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetch := applyEntryFilter(db.Preload("Project.Client").Preload("User"), filter).
		Order("time_entries.date ASC").
		Order("time_entries.created_at ASC").
		Scopes(filter.Page.Scope)
	if err := fetch.Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func applyEntryFilter(q *gorm.DB, f TimeEntryFilter) *gorm.DB {
	if f.UserID != nil {
		q = q.Where("time_entries.user_id = ?", *f.UserID)
	}
	if f.ProjectID != nil {
		q = q.Where("time_entries.project_id = ?", *f.ProjectID)
	}
	if f.ClientID != nil {
		q = q.Where("time_entries.project_id IN (SELECT id FROM projects WHERE client_id = ?)", *f.ClientID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("time_entries.status IN ?", f.Statuses)
	}
	if f.DateFrom != nil {
		q = q.Where("time_entries.date >= ?", f.DateFrom.Format("2006-01-02"))
	}
	if f.DateTo != nil {
		q = q.Where("time_entries.date <= ?", f.DateTo.Format("2006-01-02"))
	}
	return q
}

func (r *timeEntryRepository) Update(ctx context.Context, entry *model.TimeEntry, expectedVersion int) error {
	res := GetDB(ctx, r.db).Model(&model.TimeEntry{}).
		Where("id = ? AND version = ?", entry.ID, expectedVersion).
		Updates(map[string]interface{}{
			"date":           entry.Date,
			"hours":          entry.Hours,
			"description":    entry.Description,
			"project_id":     entry.ProjectID,
			"status":         entry.Status,
			"approved_by":    entry.ApprovedBy,
			"approved_at":    entry.ApprovedAt,
			"return_comment": entry.ReturnComment,
			"version":        expectedVersion + 1,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	entry.Version = expectedVersion + 1
	return nil
}

func (r *timeEntryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.TimeEntry{}).Error
}

func (r *timeEntryRepository) CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.TimeEntry{}).Where("project_id = ?", projectID).Count(&count).Error
	return count, err
}
