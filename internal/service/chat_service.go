package service

import (
	"context"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"timetracker/internal/intent"
	"timetracker/internal/llm"
	"timetracker/internal/ratelimit"
	"timetracker/internal/report"
	"timetracker/internal/security"
	"timetracker/internal/validation"
	"timetracker/pkg/apperror"

	"github.com/cockroachdb/errors"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const assistantPrompt = "You are a time tracking assistant. Answer briefly in the user's language. " +
	"You may change the page footer color with changeFooterColor(color) or the banner with changeBannerText(text)."

type ChatRequest struct {
	Messages []llm.Message `json:"messages" binding:"required,min=1"`
}

type RateLimitInfo struct {
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

// HoursData is attached to hours questions so the client can render the
// exact numbers next to the reply.
type HoursData struct {
	Week         *report.WeekSummary `json:"week"`
	PreviousWeek *report.WeekSummary `json:"previous_week"`
}

type ChatResponse struct {
	Reply     string          `json:"reply"`
	Intent    intent.Kind     `json:"intent"`
	Language  intent.Language `json:"language"`
	Actions   []intent.Intent `json:"actions"`
	Data      interface{}     `json:"data,omitempty"`
	RateLimit RateLimitInfo   `json:"rate_limit"`
}

type ChatService interface {
	Send(ctx context.Context, actorID string, req ChatRequest) (*ChatResponse, error)
}

type chatService struct {
	entries    TimeEntryService
	reports    ReportService
	classifier *intent.Classifier
	completer  llm.Completer
	limiter    *ratelimit.Limiter
	security   security.Logger
	policy     *bluemonday.Policy
	logger     *slog.Logger
	now        func() time.Time
}

// NewChatService wires the assistant. completer may be nil, in which case
// unrecognized messages get the canned fallback reply.
func NewChatService(
	entries TimeEntryService,
	reports ReportService,
	classifier *intent.Classifier,
	completer llm.Completer,
	limiter *ratelimit.Limiter,
	sec security.Logger,
	logger *slog.Logger,
) ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &chatService{
		entries:    entries,
		reports:    reports,
		classifier: classifier,
		completer:  completer,
		limiter:    limiter,
		security:   sec,
		policy:     bluemonday.StrictPolicy(),
		logger:     logger,
		now:        time.Now,
	}
}

func (s *chatService) Send(ctx context.Context, actorID string, req ChatRequest) (*ChatResponse, error) {
	// Malformed requests are rejected before they count against the quota.
	history, question, err := s.prepare(actorID, req.Messages)
	if err != nil {
		return nil, err
	}

	limit, err := s.limiter.CheckLimit(ctx, actorID)
	if err != nil {
		s.logger.Error("chat rate limiter failed", "error", err)
		return nil, apperror.Upstream(err, "rate limiter unavailable")
	}
	if !limit.Allowed {
		s.security.LogEvent(security.Event{
			Type:    security.EventRateLimitExceeded,
			UserID:  actorID,
			Details: map[string]any{"limiter": s.limiter.Name(), "reset_time": limit.ResetTimeMillis()},
		})
		return nil, apperror.RateLimited(limit.ResetTime)
	}

	in := s.classifier.Classify(question)
	lang := in.Language
	if lang == "" {
		lang = s.classifier.DetectLanguage(question)
	}

	res := &ChatResponse{
		Intent:    in.Kind,
		Language:  lang,
		Actions:   []intent.Intent{},
		RateLimit: RateLimitInfo{Remaining: limit.Remaining, ResetTime: limit.ResetTimeMillis()},
	}

	reply, err := s.dispatch(ctx, actorID, in.Kind, lang, history, res)
	if err != nil {
		return nil, err
	}

	res.Reply = reply
	if res.Reply == "" && len(res.Actions) == 0 {
		res.Reply = intent.Message(lang, intent.MsgFallback)
	}
	return res, nil
}

// prepare validates and escapes user messages, keeps the newest
// llm.MaxMessages and returns the text of the final user message for
// classification. Assistant turns are earlier model replies echoed back by
// the client: they are reduced to plain text and cut to
// llm.MaxMessageLength rather than rejected, and empty ones are dropped.
func (s *chatService) prepare(actorID string, messages []llm.Message) ([]llm.Message, string, error) {
	if len(messages) == 0 {
		return nil, "", apperror.Validation("Message cannot be empty")
	}
	if len(messages) > llm.MaxMessages {
		messages = messages[len(messages)-llm.MaxMessages:]
	}

	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			return nil, "", apperror.Validation("message role must be user or assistant")
		}
		if m.Role == llm.RoleAssistant {
			if text := truncateRunes(s.plainText(m.Content), llm.MaxMessageLength); text != "" {
				history = append(history, llm.Message{Role: m.Role, Content: text})
			}
			continue
		}
		check := validation.ValidateChatMessage(m.Content)
		if !check.Valid {
			s.security.LogEvent(security.Event{
				Type:    security.EventInvalidInput,
				UserID:  actorID,
				Details: map[string]any{"field": "chat_message", "reason": check.Error},
			})
			return nil, "", apperror.Validation(check.Error)
		}
		history = append(history, llm.Message{Role: m.Role, Content: check.Sanitized})
	}

	last := messages[len(messages)-1]
	if last.Role != llm.RoleUser {
		return nil, "", apperror.Validation("last message must come from the user")
	}
	return history, strings.TrimSpace(last.Content), nil
}

func (s *chatService) dispatch(ctx context.Context, actorID string, kind intent.Kind, lang intent.Language, history []llm.Message, res *ChatResponse) (string, error) {
	today := dateOnly(s.now())

	switch kind {
	case intent.CopyPreviousDay:
		copied, err := s.entries.CopyPreviousDay(ctx, actorID, today)
		if err != nil {
			return "", err
		}
		res.Data = copied
		if len(copied.Created) == 0 {
			return intent.Message(lang, intent.MsgNothingToCopy), nil
		}
		return intent.Message(lang, intent.MsgCopied, len(copied.Created), copied.SourceDate), nil

	case intent.ShowToday:
		return s.showDay(ctx, actorID, lang, today, res)

	case intent.ShowYesterday:
		return s.showDay(ctx, actorID, lang, today.AddDate(0, 0, -1), res)

	case intent.Help:
		return intent.Message(lang, intent.MsgHelp), nil

	case intent.HoursQuery:
		return s.hours(ctx, actorID, lang, today, history, res)
	}

	return s.complete(ctx, actorID, lang, history, "", res)
}

func (s *chatService) showDay(ctx context.Context, actorID string, lang intent.Language, day time.Time, res *ChatResponse) (string, error) {
	date := day.Format(dateLayout)
	entries, _, err := s.entries.List(ctx, actorID, ListTimeEntriesRequest{From: date, To: date})
	if err != nil {
		return "", err
	}
	res.Data = entries
	if len(entries) == 0 {
		return intent.Message(lang, intent.MsgNoEntries, date), nil
	}

	total := decimal.Zero
	for _, e := range entries {
		hours, err := decimal.NewFromString(e.Hours)
		if err != nil {
			return "", apperror.Wrap(err, apperror.KindInternal, "bad hours value")
		}
		total = total.Add(hours)
	}
	return intent.Message(lang, intent.MsgDayEntries, len(entries), total.StringFixed(2), date), nil
}

// hours fetches this week's and last week's summaries in parallel, attaches
// them, and lets the model phrase the answer. Without a model the numbers
// are phrased from a template.
func (s *chatService) hours(ctx context.Context, actorID string, lang intent.Language, today time.Time, history []llm.Message, res *ChatResponse) (string, error) {
	data := &HoursData{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		week, err := s.reports.WeekSummary(gctx, actorID, "", today)
		data.Week = week
		return err
	})
	g.Go(func() error {
		week, err := s.reports.WeekSummary(gctx, actorID, "", today.AddDate(0, 0, -7))
		data.PreviousWeek = week
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	res.Data = data

	fallback := intent.Message(lang, intent.MsgWeekHours,
		data.Week.TotalHours.StringFixed(2), data.Week.ExpectedHours.StringFixed(2))
	if s.completer == nil {
		return fallback, nil
	}

	facts := "Week " + data.Week.Week.Key() + ": logged " + data.Week.TotalHours.StringFixed(2) +
		" of " + data.Week.ExpectedHours.StringFixed(2) + " expected hours across " +
		strconv.Itoa(data.Week.EntryCount) + " entries. Previous week: " +
		data.PreviousWeek.TotalHours.StringFixed(2) + " hours."
	reply, err := s.complete(ctx, actorID, lang, history, facts, res)
	if err != nil {
		// The numbers are already attached; a template reply is still useful.
		return fallback, nil
	}
	return reply, nil
}

// complete asks the model for a reply. Action markers are moved from the
// reply into res.Actions and the remaining text is stripped of markup.
func (s *chatService) complete(ctx context.Context, actorID string, lang intent.Language, history []llm.Message, extra string, res *ChatResponse) (string, error) {
	if s.completer == nil {
		return intent.Message(lang, intent.MsgFallback), nil
	}

	prompt := assistantPrompt
	if extra != "" {
		prompt += "\n" + extra
	}
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prompt})
	messages = append(messages, history...)

	reply, err := s.completer.Complete(ctx, messages)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return intent.Message(lang, intent.MsgFallback), nil
		}
		s.logger.Error("llm completion failed", "error", err, "user_id", actorID)
		s.security.LogEvent(security.Event{
			Type:    security.EventUpstreamFailure,
			UserID:  actorID,
			Details: map[string]any{"upstream": "llm"},
		})
		return "", apperror.Upstream(err, intent.Message(lang, intent.MsgTryLater))
	}
	cleaned, actions := intent.ExtractActions(reply)
	for _, a := range actions {
		a.Argument = s.plainText(a.Argument)
		res.Actions = append(res.Actions, a)
	}
	return s.plainText(cleaned), nil
}

// plainText strips markup and returns unescaped text. The strict policy
// entity-encodes what it keeps, and decoding can surface new tags, so passes
// repeat until the text is stable. Text that never settles stays encoded.
func (s *chatService) plainText(text string) string {
	for i := 0; i < 4; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			return strings.TrimSpace(text)
		}
		text = next
	}
	return strings.TrimSpace(s.policy.Sanitize(text))
}

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:limit]))
}
