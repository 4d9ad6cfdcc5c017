package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultCommentLimit bounds free-text reasons and comments kept in order history.
const DefaultCommentLimit = 500

// PlainTextSanitizer strips markup from user supplied text, collapses whitespace and
// truncates the result to limit runes.
func PlainTextSanitizer(limit int) func(string) string {
	if limit <= 0 {
		limit = DefaultCommentLimit
	}
	policy := bluemonday.StrictPolicy()
	return func(value string) string {
		cleaned := html.UnescapeString(policy.Sanitize(value))
		cleaned = strings.Join(strings.Fields(cleaned), " ")
		if utf8.RuneCountInString(cleaned) > limit {
			runes := []rune(cleaned)
			cleaned = string(runes[:limit])
		}
		return cleaned
	}
}
