package handlers

import (
	"regexp"
	"strings"
)

// Decorative platform markup, e.g. [emj:park]/[rol:42] style segments. These
// are stripped before matching so a keyword is never matched inside one.
var markupPattern = regexp.MustCompile(`\[[A-Za-z]+:[^\]]*\]`)

type Match struct {
	Term   string
	Offset int
}

// KeywordFilter is a stateless scanner over a fixed keyword set. Matching is
// case-insensitive and substring-based; the leftmost match wins.
type KeywordFilter struct {
	re *regexp.Regexp
}

func NewKeywordFilter(keywords []string) *KeywordFilter {
	if len(keywords) == 0 {
		return &KeywordFilter{}
	}
	quoted := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		quoted = append(quoted, regexp.QuoteMeta(keyword))
	}
	return &KeywordFilter{
		re: regexp.MustCompile(`(?i)` + strings.Join(quoted, "|")),
	}
}

func StripMarkup(text string) string {
	return markupPattern.ReplaceAllString(text, "")
}

// Scan reports the first keyword occurrence in the markup-stripped text, or
// nil. The offset refers to the stripped text.
func (f *KeywordFilter) Scan(text string) *Match {
	if f.re == nil {
		return nil
	}
	stripped := StripMarkup(text)
	loc := f.re.FindStringIndex(stripped)
	if loc == nil {
		return nil
	}
	return &Match{
		Term:   stripped[loc[0]:loc[1]],
		Offset: loc[0],
	}
}
