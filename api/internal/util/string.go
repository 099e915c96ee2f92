package util

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)^```(?:json|JSON)?[ \t]*\r?\n?(.*?)\r?\n?```$")

// StripCodeFences removes a ```json ... ``` (or bare ```) wrapper around s.
// Text without a complete fence is returned trimmed and otherwise untouched.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
