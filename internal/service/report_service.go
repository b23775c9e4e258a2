package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"timetracker/internal/report"
	"timetracker/internal/repository"
	"timetracker/pkg/apperror"

	"github.com/rickar/cal/v2"
	"github.com/shopspring/decimal"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

type ReportRequest struct {
	ListTimeEntriesRequest
	GroupBy string `form:"group_by"`
	Format  string `form:"format"`
}

// ReportConfig controls week boundaries and expected hours.
type ReportConfig struct {
	WeekStart    time.Weekday
	Calendar     *cal.BusinessCalendar
	WorkdayHours decimal.Decimal
}

// ExportFile describes a rendered export.
type ExportFile struct {
	ContentType string
	Filename    string
}

type ReportService interface {
	Build(ctx context.Context, actorID string, req ReportRequest) (*report.Result, error)
	Export(ctx context.Context, actorID string, req ReportRequest, w io.Writer) (*ExportFile, error)
	WeekSummary(ctx context.Context, actorID, userID string, date time.Time) (*report.WeekSummary, error)
}

type reportService struct {
	entries repository.TimeEntryRepository
	actors  actorResolver
	cfg     ReportConfig
	logger  *slog.Logger
}

func NewReportService(entries repository.TimeEntryRepository, users repository.UserRepository, cfg ReportConfig, logger *slog.Logger) ReportService {
	if cfg.Calendar == nil {
		cfg.Calendar = report.NewBusinessCalendar("")
	}
	if cfg.WorkdayHours.IsZero() {
		cfg.WorkdayHours = decimal.NewFromFloat(7.5)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &reportService{
		entries: entries,
		actors:  actorResolver{users: users},
		cfg:     cfg,
		logger:  logger,
	}
}

func (s *reportService) Build(ctx context.Context, actorID string, req ReportRequest) (*report.Result, error) {
	by := report.GroupBy(req.GroupBy)
	if by == "" {
		by = report.ByProject
	}
	if !by.Valid() {
		return nil, apperror.Validation("group_by must be one of day, week, project, client")
	}

	entries, err := s.load(ctx, actorID, req.ListTimeEntriesRequest)
	if err != nil {
		return nil, err
	}
	return report.Aggregate(entries, by, report.WithWeekStart(s.cfg.WeekStart))
}

func (s *reportService) Export(ctx context.Context, actorID string, req ReportRequest, w io.Writer) (*ExportFile, error) {
	format := req.Format
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		return nil, apperror.Validation("format must be csv or xlsx")
	}

	entries, err := s.load(ctx, actorID, req.ListTimeEntriesRequest)
	if err != nil {
		return nil, err
	}
	rows := report.ExportRows(entries)

	name := "hours-" + time.Now().Format("20060102")
	if format == FormatXLSX {
		if err := report.WriteXLSX(w, rows); err != nil {
			return nil, apperror.Wrap(err, apperror.KindInternal, "failed to write xlsx")
		}
		return &ExportFile{
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Filename:    name + ".xlsx",
		}, nil
	}
	if err := report.WriteCSV(w, rows); err != nil {
		return nil, apperror.Wrap(err, apperror.KindInternal, "failed to write csv")
	}
	return &ExportFile{ContentType: "text/csv; charset=utf-8", Filename: name + ".csv"}, nil
}

// WeekSummary summarizes the week containing date for userID. An empty
// userID means the actor.
func (s *reportService) WeekSummary(ctx context.Context, actorID, userID string, date time.Time) (*report.WeekSummary, error) {
	if userID == "" {
		userID = actorID
	}
	week := report.WeekOf(date, s.cfg.WeekStart)
	entries, err := s.load(ctx, actorID, ListTimeEntriesRequest{
		UserID: userID,
		From:   week.Start.Format(dateLayout),
		To:     week.End.Format(dateLayout),
	})
	if err != nil {
		return nil, err
	}
	return report.SummarizeWeek(entries, date, s.cfg.WeekStart, s.cfg.Calendar, s.cfg.WorkdayHours), nil
}

// load fetches every matching entry. Non-admins only ever see their own.
func (s *reportService) load(ctx context.Context, actorID string, req ListTimeEntriesRequest) ([]report.Entry, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	req.Page, req.Limit = 0, 0
	filter, err := buildFilter(req)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		filter.UserID = &actor.ID
	}

	entries, _, err := s.entries.List(ctx, filter)
	if err != nil {
		err = storeErr(err, "time entries")
		logUpstream(s.logger, err, "report query failed")
		return nil, err
	}

	out := make([]report.Entry, 0, len(entries))
	for i := range entries {
		out = append(out, toReportEntry(&entries[i]))
	}
	return out, nil
}
