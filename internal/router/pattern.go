package router

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a compiled route path pattern. Pattern segments are literal
// text or "*", where "*" matches a single path segment. A pattern matches a
// request path either exactly or as a strict path prefix: the boundary after
// the pattern must be end-of-string or "/", so "/test" never matches
// "/testing".
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// CompilePattern compiles a glob path pattern into its matcher.
func CompilePattern(raw string) (*Pattern, error) {
	if !strings.HasPrefix(raw, "/") {
		return nil, fmt.Errorf("path pattern must start with '/': %q", raw)
	}

	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		// Root pattern matches every path.
		return &Pattern{raw: raw, re: regexp.MustCompile(`^/.*$`)}, nil
	}

	segments := strings.Split(trimmed, "/")
	parts := make([]string, 0, len(segments))
	for i, segment := range segments {
		switch {
		case segment == "*" && i == len(segments)-1:
			// A trailing wildcard also matches the bare prefix with a
			// trailing slash, e.g. "/test/*" matches "/test/".
			parts = append(parts, `[^/]*`)
		case segment == "*":
			parts = append(parts, `[^/]+`)
		case segment == "":
			return nil, fmt.Errorf("path pattern has empty segment: %q", raw)
		default:
			parts = append(parts, regexp.QuoteMeta(segment))
		}
	}

	expr := "^/" + strings.Join(parts, "/") + "(/.*)?$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile path pattern %q: %w", raw, err)
	}
	return &Pattern{raw: raw, re: re}, nil
}

// Match reports whether the request path matches the pattern.
func (p *Pattern) Match(path string) bool {
	return p.re.MatchString(path)
}

// String returns the original pattern text.
func (p *Pattern) String() string {
	return p.raw
}
