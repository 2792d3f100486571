package trade

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// ItemStack is a kind of item and a quantity of it.
type ItemStack struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

func (s ItemStack) String() string {
	return fmt.Sprintf("%dx %s", s.Count, s.Kind)
}

// CountOf sums the quantity of kind held across stacks.
func CountOf(stacks []ItemStack, kind string) int {
	total := 0
	for _, s := range stacks {
		if s.Kind == kind {
			total += s.Count
		}
	}
	return total
}

// DefaultKeywords is used when no trade keywords are configured.
var DefaultKeywords = []string{"glass", "experience_bottle"}

// fold returns the case-folded form of s. A Caser holds state, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Matcher selects item kinds by case-insensitive substring containment.
type Matcher struct {
	keywords []string
	folded   []string
}

// NewMatcher builds a matcher from keywords. Blank keywords are dropped and an
// empty list falls back to DefaultKeywords.
func NewMatcher(keywords []string) Matcher {
	var m Matcher
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		m.keywords = append(m.keywords, k)
		m.folded = append(m.folded, fold(k))
	}
	if len(m.keywords) == 0 {
		return NewMatcher(DefaultKeywords)
	}
	return m
}

// Match reports whether kind contains any of the keywords.
func (m Matcher) Match(kind string) bool {
	if len(m.folded) == 0 {
		return NewMatcher(nil).Match(kind)
	}
	k := fold(kind)
	for _, f := range m.folded {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

// Keywords returns the effective keyword list.
func (m Matcher) Keywords() []string {
	if len(m.keywords) == 0 {
		return append([]string(nil), DefaultKeywords...)
	}
	return append([]string(nil), m.keywords...)
}
