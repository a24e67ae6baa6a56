package config

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	lineComment   = regexp.MustCompile(`//.*`)
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingComma = regexp.MustCompile(`,(\s*[\]}])`)
)

// Normalize strips // line comments, /* */ block comments and trailing commas before
// a closing bracket or brace.
//
// The transform is textual and does not know about string literals: anything after a
// "//" is dropped, including the rest of a URL such as "http://host". Existing params
// files depend on exactly this behavior, so keep it.
func Normalize(text string) string {
	text = lineComment.ReplaceAllString(text, "")
	text = blockComment.ReplaceAllString(text, "")
	return trailingComma.ReplaceAllString(text, "$1")
}

// escapeControlChars rewrites raw control characters that appear inside string literals
// as JSON escapes, so that a value spanning several lines still parses.
func escapeControlChars(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString, escaped := false, false
	for _, r := range text {
		switch {
		case !inString:
			if r == '"' {
				inString = true
			}
			b.WriteRune(r)
		case escaped:
			escaped = false
			b.WriteRune(r)
		case r == '\\':
			escaped = true
			b.WriteRune(r)
		case r == '"':
			inString = false
			b.WriteRune(r)
		case r < 0x20:
			b.WriteString(controlEscape(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func controlEscape(r rune) string {
	switch r {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	case '\b':
		return `\b`
	case '\f':
		return `\f`
	default:
		return fmt.Sprintf(`\u%04x`, r)
	}
}
