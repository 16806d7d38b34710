package patcher

import (
	"regexp"
	"strings"
)

// PatternRule is one ordered pattern→replacement rule.
type PatternRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// TextRules is a static translation table for generic (non-tag) text: an
// exact-match string table plus ordered pattern rules applied in sequence.
// It is plain data, independent of the versioned tag dataset.
type TextRules struct {
	Exact    map[string]string
	Patterns []PatternRule
}

// Apply translates s. An exact hit (on the trimmed text) replaces the whole
// string; pattern rules then run in order on the result.
func (r *TextRules) Apply(s string) string {
	if r == nil {
		return s
	}
	if v, ok := r.Exact[strings.TrimSpace(s)]; ok {
		s = v
	}
	for _, p := range r.Patterns {
		s = p.Pattern.ReplaceAllString(s, p.Replacement)
	}
	return s
}

// Table maps a document path to its rules. "*" is the fallback entry.
type Table map[string]*TextRules

// ForPath returns the rules for a document path, falling back to the "*"
// entry. Nil when neither exists; TextRules.Apply tolerates nil.
func (t Table) ForPath(path string) *TextRules {
	if r, ok := t[path]; ok {
		return r
	}
	return t["*"]
}
