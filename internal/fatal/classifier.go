// Package fatal detects unrecoverable environment failures in engine output.
//
// The chain must tell "still working, needs more context" (hand over and
// continue) apart from "environment is broken" (abort; no further session can
// help). The pattern set is deliberately conservative: every pattern requires
// an error or failure context word next to the lock/permission word, so a
// benign mention of "lock" never matches.
package fatal

import (
	"fmt"
	"regexp"
	"strings"
)

// Classifier decides whether a piece of engine output signals an
// unrecoverable environment failure. Implementations must be stateless so a
// classifier can be shared across sessions and swapped in tests.
type Classifier interface {
	// Classify returns the matched pattern and true if the text contains a
	// fatal signature, or "" and false otherwise.
	Classify(text string) (pattern string, ok bool)
}

// RegexClassifier matches lowercased text against an ordered pattern list.
// The first matching pattern wins.
type RegexClassifier struct {
	patterns []*regexp.Regexp
}

// NewRegexClassifier compiles the given patterns. Patterns are matched against
// lowercased text, so they should be written in lowercase.
func NewRegexClassifier(patterns []string) (*RegexClassifier, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid fatal pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &RegexClassifier{patterns: compiled}, nil
}

// Classify implements Classifier.
func (c *RegexClassifier) Classify(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, re := range c.patterns {
		if re.MatchString(lowered) {
			return re.String(), true
		}
	}
	return "", false
}
