package intent

import (
	_ "embed"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Kind tags an Intent.
type Kind string

const (
	CopyPreviousDay   Kind = "copy_previous_day"
	ShowToday         Kind = "show_today"
	ShowYesterday     Kind = "show_yesterday"
	ChangeFooterColor Kind = "change_footer_color"
	ChangeBannerText  Kind = "change_banner_text"
	HoursQuery        Kind = "hours_query"
	Help              Kind = "help"
	Unknown           Kind = "unknown"
)

// Language of the keyword set that matched.
type Language string

const (
	English Language = "en"
	Finnish Language = "fi"
	Swedish Language = "sv"
)

var languages = []Language{English, Finnish, Swedish}

// Priority is the fixed evaluation order. The first intent whose keywords
// match wins.
var Priority = []Kind{CopyPreviousDay, ShowToday, ShowYesterday, Help, HoursQuery}

// Intent is the classified purpose of a message. Argument is set only for
// ChangeFooterColor and ChangeBannerText.
type Intent struct {
	Kind     Kind     `json:"kind"`
	Language Language `json:"language,omitempty"`
	Argument string   `json:"argument,omitempty"`
}

// KeywordTable maps intent -> language -> keyword groups.
type KeywordTable map[Kind]map[Language][][]string

//go:embed keywords.yaml
var defaultKeywords []byte

// LoadKeywordTable parses a YAML keyword table and checks that every
// prioritized intent has keywords for every language.
func LoadKeywordTable(data []byte) (KeywordTable, error) {
	var table KeywordTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, errors.Wrap(err, "parse keyword table")
	}
	for _, kind := range Priority {
		byLang, ok := table[kind]
		if !ok {
			return nil, errors.Newf("keyword table: missing intent %q", kind)
		}
		for _, lang := range languages {
			if len(byLang[lang]) == 0 {
				return nil, errors.Newf("keyword table: intent %q has no %q keywords", kind, lang)
			}
		}
	}
	return table, nil
}

type rule struct {
	kind   Kind
	lang   Language
	groups [][]string
}

// Classifier matches free text against prioritized keyword rules.
type Classifier struct {
	rules []rule
}

// NewClassifier builds the rule list in Priority order, languages in
// en, fi, sv order within each intent.
func NewClassifier(table KeywordTable) *Classifier {
	c := &Classifier{}
	for _, kind := range Priority {
		for _, lang := range languages {
			groups := table[kind][lang]
			if len(groups) == 0 {
				continue
			}
			folded := make([][]string, 0, len(groups))
			for _, g := range groups {
				fg := make([]string, 0, len(g))
				for _, kw := range g {
					fg = append(fg, c.normalize(kw))
				}
				folded = append(folded, fg)
			}
			c.rules = append(c.rules, rule{kind: kind, lang: lang, groups: folded})
		}
	}
	return c
}

// NewDefaultClassifier uses the embedded keyword table.
func NewDefaultClassifier() (*Classifier, error) {
	table, err := LoadKeywordTable(defaultKeywords)
	if err != nil {
		return nil, err
	}
	return NewClassifier(table), nil
}

// Classify never fails; unmatched text yields Unknown.
func (c *Classifier) Classify(text string) Intent {
	normalized := c.normalize(text)
	if normalized == "" {
		return Intent{Kind: Unknown}
	}
	for _, r := range c.rules {
		if r.matches(normalized) {
			return Intent{Kind: r.kind, Language: r.lang}
		}
	}
	return Intent{Kind: Unknown}
}

// DetectLanguage returns the language of the first rule with any keyword hit,
// defaulting to English.
func (c *Classifier) DetectLanguage(text string) Language {
	normalized := c.normalize(text)
	for _, r := range c.rules {
		if r.lang == English {
			continue
		}
		for _, g := range r.groups {
			if containsAny(normalized, g) {
				return r.lang
			}
		}
	}
	return English
}

func (r rule) matches(text string) bool {
	for _, g := range r.groups {
		if !containsAny(text, g) {
			return false
		}
	}
	return true
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && hasWordPrefix(text, kw) {
			return true
		}
	}
	return false
}

// hasWordPrefix reports whether kw occurs in text starting at a word
// boundary, so "dagens" does not match inside "gårdagens". The keyword may
// still be followed by more letters ("today's", "eilisen").
func hasWordPrefix(text, kw string) bool {
	for offset := 0; offset <= len(text)-len(kw); {
		i := strings.Index(text[offset:], kw)
		if i < 0 {
			return false
		}
		i += offset
		prev, _ := utf8.DecodeLastRuneInString(text[:i])
		if i == 0 || !(unicode.IsLetter(prev) || unicode.IsDigit(prev)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		offset = i + size
	}
	return false
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

func (c *Classifier) normalize(s string) string {
	s = apostrophes.Replace(strings.TrimSpace(s))
	// Casers carry state, so each call gets its own.
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}
