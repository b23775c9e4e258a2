package validation

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	MaxChatMessageLength = 2000
	MaxDescriptionLength = 500
)

// Result is the outcome of validating one piece of free text.
type Result struct {
	Valid     bool   `json:"is_valid"`
	Error     string `json:"error,omitempty"`
	Sanitized string `json:"sanitized,omitempty"`
}

// Deny-list scan, not a parser.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
	regexp.MustCompile(`(?i)<script\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
}

// ValidateChatMessage checks a chat message before it is forwarded anywhere.
func ValidateChatMessage(text string) Result {
	return validate(text, MaxChatMessageLength, "Message")
}

// ValidateDescription checks a time entry description or review comment.
func ValidateDescription(text string) Result {
	return validate(text, MaxDescriptionLength, "Description")
}

func validate(text string, maxLen int, field string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Error: field + " cannot be empty"}
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return Result{Error: field + " is too long (max " + strconv.Itoa(maxLen) + " characters)"}
	}
	if ContainsInjection(trimmed) {
		return Result{Error: field + " contains disallowed content"}
	}
	return Result{Valid: true, Sanitized: Escape(trimmed)}
}

// ContainsInjection reports whether text matches a known injection signature.
func ContainsInjection(text string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Escape HTML-escapes < > " ' & in text.
func Escape(text string) string {
	return html.EscapeString(text)
}
