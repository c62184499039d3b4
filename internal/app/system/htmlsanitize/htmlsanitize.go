// Package htmlsanitize cleans user supplied text before it is stored.
package htmlsanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()
)

// Sanitize keeps basic formatting markup and strips anything executable.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(ugc.Sanitize(s))
}

// PlainText strips all markup.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(strict.Sanitize(s))
}
