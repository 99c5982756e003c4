package matcher

import (
	"strings"
	"unicode/utf8"
)

func isSegmentBreak(r rune) bool {
	switch r {
	case '\n', '\r', '.', '!', '?', ';', '。', '！', '？', '；':
		return true
	}
	return false
}

func isRunDelimiter(r rune) bool {
	switch r {
	case ',', '|', '，', '、', '｜':
		return true
	}
	return false
}

// ExtractPhrases splits a description into the candidate phrases matched
// independently. Text is cut at line breaks and sentence terminators. A
// segment holding commas or pipes is an inline tag run such as
// "Tags: A, B | C": a leading "label:" becomes its own candidate and each
// delimited item is a separate candidate, so no phrase spans two items.
func ExtractPhrases(description string) []string {
	var out []string
	for _, seg := range strings.FieldsFunc(description, isSegmentBreak) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if !strings.ContainsFunc(seg, isRunDelimiter) {
			out = append(out, seg)
			continue
		}
		if label, rest, ok := cutLabel(seg); ok {
			out = append(out, label)
			seg = rest
		}
		for _, item := range strings.FieldsFunc(seg, isRunDelimiter) {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// cutLabel splits "Label: rest" when the colon comes before the first
// delimiter of the run.
func cutLabel(seg string) (label, rest string, ok bool) {
	colon := strings.IndexAny(seg, ":：")
	if colon < 0 {
		return "", seg, false
	}
	if d := strings.IndexFunc(seg, isRunDelimiter); d >= 0 && d < colon {
		return "", seg, false
	}
	label = strings.TrimSpace(seg[:colon])
	_, size := utf8.DecodeRuneInString(seg[colon:])
	rest = seg[colon+size:]
	if label == "" {
		return "", rest, false
	}
	return label, rest, true
}
