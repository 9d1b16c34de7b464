// Package match filters directory listings by key glob and by file metadata.
package match

import (
	"errors"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/zonestore/pkg/provider"
)

// Matcher evaluates glob patterns against listed keys.
//
// Patterns without a slash are matched against the file name, patterns with
// a slash against the whole key (a leading slash is implied). Doublestar
// syntax applies, so "/img/**/*.png" matches at any depth.
//
// A Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes      []string
	excludes      []string
	excludeHidden bool
}

// Config configures a Matcher.
type Config struct {
	// Includes are patterns a key must match (at least one). Empty matches
	// every key.
	Includes []string

	// Excludes are patterns a key must not match.
	Excludes []string

	// ExcludeHidden drops keys with a path segment starting with '.'.
	ExcludeHidden bool
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New validates the patterns in cfg and returns a Matcher.
func New(cfg Config) (*Matcher, error) {
	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	return &Matcher{includes: includes, excludes: excludes, excludeHidden: cfg.ExcludeHidden}, nil
}

func compile(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			p = provider.NormalizeKey(p)
		}
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether key passes the include, exclude and hidden rules.
func (m *Matcher) Match(key string) bool {
	if m.excludeHidden && IsHidden(key) {
		return false
	}
	if len(m.includes) > 0 && !anyMatch(m.includes, key) {
		return false
	}
	return !anyMatch(m.excludes, key)
}

// IsZero reports whether the Matcher accepts every key.
func (m *Matcher) IsZero() bool {
	return len(m.includes) == 0 && len(m.excludes) == 0 && !m.excludeHidden
}

func anyMatch(patterns []string, key string) bool {
	for _, p := range patterns {
		if matchPattern(p, key) {
			return true
		}
	}
	return false
}

// matchPattern matches key against a compiled pattern.
func matchPattern(pattern, key string) bool {
	subject := path.Base(key)
	if strings.HasPrefix(pattern, "/") {
		subject = provider.NormalizeKey(key)
	}
	ok, err := doublestar.Match(pattern, subject)
	return err == nil && ok
}

// IsHidden returns true if any path segment starts with a dot.
func IsHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
