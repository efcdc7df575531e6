package policy

import (
	"regexp"
	"strings"
)

// matcher tests one string against a compiled pattern.
type matcher func(value string) bool

// compilePattern turns a glob-style pattern into a matcher.
// A pattern containing `*` becomes an anchored, case-insensitive regex where
// `*` matches any (possibly empty) run of characters and everything else is
// literal. A pattern without `*` requires an exact case-insensitive match.
// Empty pattern means "matches anything".
func compilePattern(pattern string) (matcher, error) {
	if pattern == "" {
		return func(string) bool { return true }, nil
	}

	if !strings.Contains(pattern, "*") {
		return func(value string) bool {
			return strings.EqualFold(value, pattern)
		}, nil
	}

	// Escape metacharacters, then restore * as .*
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")

	re, err := regexp.Compile("(?i)^" + escaped + "$")
	if err != nil {
		return nil, err
	}
	return re.MatchString, nil
}
