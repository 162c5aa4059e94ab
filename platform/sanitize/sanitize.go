// Package sanitize cleans free text typed by agents before it is sent to the
// system of record.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
	spaceRegex   = regexp.MustCompile(`[ \t]+`)

	entities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", "\"", "&#39;", "'")
)

// Text strips HTML tags and collapses runs of blanks. Line breaks are kept so
// call notes keep their shape.
func Text(s string) string {
	out := htmlTagRegex.ReplaceAllString(s, "")
	out = entities.Replace(out)
	// Entities may have spelled out a tag.
	out = htmlTagRegex.ReplaceAllString(out, "")
	out = spaceRegex.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// TextPtr applies Text to an optional field.
func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	out := Text(*s)
	return &out
}

// Line is Text for single-line fields such as names: line breaks become spaces.
func Line(s string) string {
	return Text(strings.Join(strings.Fields(s), " "))
}
