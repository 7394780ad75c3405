// Package textproc turns free-form model output into display data: plain
// descriptions, keyword sets and question lists.
package textproc

import (
	"regexp"
	"strings"
)

var (
	blankLinesRe  = regexp.MustCompile(`\n{2,}`)
	listBulletRe  = regexp.MustCompile(`(?m)^[ \t]*[-+•][ \t]+`)
	markerRemover = strings.NewReplacer("#", "", "_", "", "~", "", ">", "")
)

// sanitizeSteps run in this order. Removing "```" must happen before "`" and
// "**" before "*", otherwise the longer markers would be left half removed.
var sanitizeSteps = []func(string) string{
	strings.TrimSpace,
	func(s string) string { return blankLinesRe.ReplaceAllString(s, "\n") },
	func(s string) string { return strings.ReplaceAll(s, "```", "") },
	func(s string) string { return strings.ReplaceAll(s, "`", "") },
	func(s string) string { return strings.ReplaceAll(s, "**", "") },
	func(s string) string { return strings.ReplaceAll(s, "*", "") },
	func(s string) string { return listBulletRe.ReplaceAllString(s, "") },
	markerRemover.Replace,
}

// Sanitize strips markdown-like decoration from raw model text.
//
// The steps are repeated until the text stops changing. Every step only
// deletes characters, so this terminates, and it keeps Sanitize idempotent
// when a removal exposes a new blank line or bullet.
func Sanitize(raw string) string {
	out := raw
	for {
		prev := out
		for _, step := range sanitizeSteps {
			out = step(out)
		}
		if out == prev {
			return out
		}
	}
}
