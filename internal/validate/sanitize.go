package validate

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/stihelp/orchestrator/internal/stage"
)

// LinkPlaceholder replaces hyperlinks pointing outside the allow-list.
const LinkPlaceholder = "[link removed]"

var (
	fencedBlockRe = regexp.MustCompile("(?s)```.*?```")
	jsonFragRe    = regexp.MustCompile(`\{[^{}]*"[^{}]*"[^{}]*\}`)
	buttonTokenRe = regexp.MustCompile(`BTN_[A-Z0-9_]+`)
	linkRe        = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	multiSpaceRe  = regexp.MustCompile(`[ \t]{2,}`)
	multiNLRe     = regexp.MustCompile(`\n{3,}`)
)

// Patterns of leaked prompting machinery, removed wholesale; the surrounding
// sentence stays. Role prefixes are anchored to a word boundary so ordinary
// words ("ecosystem:") are left alone.
var instructionFragmentRes = compileFragments([]string{
	`ignore previous instructions`,
	`ignore all previous instructions`,
	`as an ai language model`,
	`as a language model`,
	`you are a helpful assistant`,
	`\[inst\]`,
	`\[/inst\]`,
	`<\|im_start\|>`,
	`<\|im_end\|>`,
	`\bsystem:`,
	`\bassistant:`,
})

func compileFragments(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// stageTokenRe strips leaked stage identifiers. Only underscored names are
// unambiguous machinery; stage names that double as plain vocabulary
// ("feedback", "closed", "diagnostic") must survive in normal prose.
var stageTokenRe = compileStageTokens()

func compileStageTokens() *regexp.Regexp {
	var ids []string
	for _, name := range stage.Names() {
		if strings.Contains(name, "_") {
			ids = append(ids, regexp.QuoteMeta(name))
		}
	}
	sort.Strings(ids)
	return regexp.MustCompile(`\b(?:` + strings.Join(ids, "|") + `)\b`)
}

// scrub makes model text safe to store and display, except for truncation,
// which the caller applies after destructive-intent detection has run on
// the full text.
func (v *Validator) scrub(s string) string {
	s = stripControl(s)
	s = fencedBlockRe.ReplaceAllString(s, " ")
	s = jsonFragRe.ReplaceAllString(s, " ")
	s = buttonTokenRe.ReplaceAllString(s, "")
	s = stageTokenRe.ReplaceAllString(s, "")

	for _, re := range instructionFragmentRes {
		s = re.ReplaceAllString(s, "")
	}

	s = linkRe.ReplaceAllStringFunc(s, func(link string) string {
		if v.linkAllowed(link) {
			return link
		}
		return LinkPlaceholder
	})

	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = multiNLRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncate cuts at a rune boundary at most MaxReplyLen runes in.
func (v *Validator) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= v.cfg.MaxReplyLen {
		return s
	}
	return strings.TrimSpace(string(runes[:v.cfg.MaxReplyLen])) + "…"
}

func (v *Validator) linkAllowed(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range v.cfg.AllowedLinkDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// stripControl removes control characters, keeping newlines and tabs.
func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
