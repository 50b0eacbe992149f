package output

import (
	"regexp"
	"strings"
)

const (
	fence      = "```"
	whitespace = " \t\r\n"
)

// openingFence matches a leading fence with an optional language tag.
var openingFence = regexp.MustCompile("^```[A-Za-z0-9_+.-]*")

// StripFences removes a markdown code fence wrapped around model output.
// An opening fence (with optional language tag) is dropped together with the
// whitespace after it, and a closing fence together with the whitespace
// before it. Text without fences is returned unchanged.
func StripFences(s string) string {
	if loc := openingFence.FindStringIndex(s); loc != nil {
		s = strings.TrimLeft(s[loc[1]:], whitespace)
	}
	if t := strings.TrimRight(s, whitespace); strings.HasSuffix(t, fence) {
		s = strings.TrimRight(strings.TrimSuffix(t, fence), whitespace)
	}
	return s
}
