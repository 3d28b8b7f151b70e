package addressee

import "regexp"

// nameClass matches one word: Unicode letters, combining marks, digits and
// underscore.
const nameClass = `([\p{L}\p{M}\p{N}_]+)`

// sep is one or more whitespace runes of any script. Go's \s alone is ASCII
// only, which misses the no-break spaces transcribers emit.
const sep = `[\s\v\x{1c}-\x{1f}\x{85}\p{Z}]+`

// defaultTemplates are the direct-address idioms, in priority order. Keywords
// are plain substring searches, so "They said" reads as "hey said".
var defaultTemplates = []*regexp.Regexp{
	regexp.MustCompile(`(?i)hey` + sep + nameClass),
	regexp.MustCompile(`(?i)hi` + sep + nameClass),
	regexp.MustCompile(`(?i)hello` + sep + nameClass),
	regexp.MustCompile(`(?i)` + nameClass + `,` + sep + `this is for you`),
	regexp.MustCompile(`(?i)this is for` + sep + nameClass),
	regexp.MustCompile(`(?i)for` + sep + nameClass),
	regexp.MustCompile(`(?i)` + nameClass + `,` + sep + `listen`),
	regexp.MustCompile(`(?i)` + nameClass + `,` + sep + `please`),
	regexp.MustCompile(`(?i)` + nameClass + `,` + sep + `can you`),
	regexp.MustCompile(`(?i)` + nameClass + `,` + sep + `I need`),
	regexp.MustCompile(`(?i)` + nameClass + `,` + sep + `I want`),
	regexp.MustCompile(`(?i)listen` + sep + nameClass),
}

// PatternMatcher finds an addressee through direct-address idioms.
//
// Templates are tried one at a time in list order, each as a search over the
// whole text. The first template that matches anywhere wins, even when a later
// template would match further left. PatternMatcher is immutable and safe for
// concurrent use.
type PatternMatcher struct {
	templates []*regexp.Regexp
}

// NewPatternMatcher returns a matcher over the built-in direct-address
// templates.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{templates: defaultTemplates}
}

// NewPatternMatcherWith returns a matcher over custom templates. Each template
// must have exactly one capture group holding the name.
func NewPatternMatcherWith(templates ...*regexp.Regexp) *PatternMatcher {
	return &PatternMatcher{templates: templates}
}

// Match returns the captured name of the first satisfied template, verbatim.
func (m *PatternMatcher) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, re := range m.templates {
		if sub := re.FindStringSubmatch(text); len(sub) > 1 {
			return sub[1], true
		}
	}
	return "", false
}
