package intent

import (
	"regexp"
	"strings"
)

// Assistant replies may embed UI actions as changeFooterColor(token) or
// changeBannerText(text), optionally quoted.
var actionPattern = regexp.MustCompile(`(?i)\b(changeFooterColor|changeBannerText)\(\s*(?:"([^"]*)"|'([^']*)'|([^)]*))\s*\)`)

var colorToken = regexp.MustCompile(`^(#[0-9a-fA-F]{3}|#[0-9a-fA-F]{6}|[a-zA-Z]{3,20})$`)

const maxBannerLength = 200

// ExtractActions pulls action markers out of an assistant reply. It returns
// the reply with the markers removed and the recognized actions in order of
// appearance. Markers with invalid arguments are removed but not returned.
func ExtractActions(reply string) (string, []Intent) {
	var actions []Intent
	cleaned := actionPattern.ReplaceAllStringFunc(reply, func(m string) string {
		sub := actionPattern.FindStringSubmatch(m)
		arg := strings.TrimSpace(firstNonEmpty(sub[2], sub[3], sub[4]))
		switch strings.ToLower(sub[1]) {
		case "changefootercolor":
			if colorToken.MatchString(arg) {
				actions = append(actions, Intent{Kind: ChangeFooterColor, Argument: strings.ToLower(arg)})
			}
		case "changebannertext":
			if arg != "" && len([]rune(arg)) <= maxBannerLength {
				actions = append(actions, Intent{Kind: ChangeBannerText, Argument: arg})
			}
		}
		return ""
	})
	return tidy(cleaned), actions
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var blankRun = regexp.MustCompile(`[ \t]{2,}`)
var blankLines = regexp.MustCompile(`\n{3,}`)

func tidy(s string) string {
	s = blankRun.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
