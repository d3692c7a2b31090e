// Package codeblock pulls runnable code out of a model reply.
package codeblock

import (
	"regexp"
	"strings"
)

// fence matches an opening marker with an optional language tag, then the
// shortest body up to the next closing marker. A newline directly before the
// closing marker is not part of the body.
var fence = regexp.MustCompile("(?s)```(?:python3|python|py|starlark|star)?[ \\t]*\\r?\\n(.*?)\\r?\\n?```")

// Extract returns the interior of the first fenced block in raw. Without a
// complete fenced block it returns raw with surrounding whitespace removed.
// Later blocks are ignored and the result is not validated.
func Extract(raw string) string {
	if m := fence.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return strings.TrimSpace(raw)
}

// Fenced reports whether raw contains at least one complete fenced block.
func Fenced(raw string) bool { return fence.MatchString(raw) }
