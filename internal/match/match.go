// Package match implements the keyword filter applied to fetched posts.
package match

import "strings"

// Matcher checks post text against a fixed keyword set. Matching is
// case-insensitive substring containment, which covers inflected forms
// well enough for monitoring ("спорт" hits "спортивный").
type Matcher struct {
	keywords []string // as configured, reported back on match
	lowered  []string
}

// New builds a matcher from the configured keywords. Blank entries are
// dropped; an empty set matches nothing.
func New(keywords []string) *Matcher {
	m := &Matcher{}
	for _, kw := range keywords {
		trimmed := strings.TrimSpace(kw)
		if trimmed == "" {
			continue
		}
		m.keywords = append(m.keywords, trimmed)
		m.lowered = append(m.lowered, strings.ToLower(trimmed))
	}
	return m
}

// Empty reports whether the matcher can ever match anything.
func (m *Matcher) Empty() bool { return len(m.keywords) == 0 }

// Match returns the keywords found in text, in configured order.
func (m *Matcher) Match(text string) []string {
	if text == "" || len(m.keywords) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var found []string
	for i, kw := range m.lowered {
		if strings.Contains(lower, kw) {
			found = append(found, m.keywords[i])
		}
	}
	return found
}
