package ui

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textPolicy  = bluemonday.StrictPolicy()
	blockBreaks = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|h[1-6]|li|blockquote|pre)>`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// PlainText reduces post HTML to plain text, keeping paragraph breaks.
func PlainText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	marked := blockBreaks.ReplaceAllString(content, "$0\n\n")
	text := html.UnescapeString(textPolicy.Sanitize(marked))

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n"))
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
