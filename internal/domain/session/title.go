package session

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	defaultTitle  = "New Tab"
	maxTitleRunes = 512
)

var titlePolicy = bluemonday.StrictPolicy()

// cleanTitle strips markup from a page title and falls back to a
// placeholder for empty titles.
func cleanTitle(raw string) string {
	title := html.UnescapeString(titlePolicy.Sanitize(raw))
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	return title
}
