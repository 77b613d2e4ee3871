package router

import "testing"

func TestCompilePatternErrors(t *testing.T) {
	tests := []string{
		"test",
		"",
		"/a//b",
	}
	for _, raw := range tests {
		if _, err := CompilePattern(raw); err == nil {
			t.Errorf("CompilePattern(%q) succeeded, want error", raw)
		}
	}
}

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		// Exact and prefix-boundary matching.
		{"/test", "/test", true},
		{"/test", "/test/sub", true},
		{"/test", "/test/sub/deep", true},
		{"/test", "/testing", false},
		{"/test", "/tes", false},
		{"/test", "/other", false},

		// Trailing wildcard matches the empty tail too.
		{"/test/*", "/test/anything", true},
		{"/test/*", "/test/", true},
		{"/test/*", "/test/a/b", true},
		{"/test/*", "/test", false},
		{"/test/*", "/testing/a", false},

		// Interior wildcard needs a non-empty segment.
		{"/a/*/c", "/a/b/c", true},
		{"/a/*/c", "/a/b/c/d", true},
		{"/a/*/c", "/a//c", false},
		{"/a/*/c", "/a/c", false},
		{"/a/*/c", "/a/b/x", false},

		// Root matches everything.
		{"/", "/", true},
		{"/", "/anything/at/all", true},

		// Literal segments with regex metacharacters stay literal.
		{"/v1.0/users", "/v1.0/users", true},
		{"/v1.0/users", "/v1x0/users", false},
	}
	for _, tt := range tests {
		p, err := CompilePattern(tt.pattern)
		if err != nil {
			t.Fatalf("CompilePattern(%q): %v", tt.pattern, err)
		}
		if got := p.Match(tt.path); got != tt.want {
			t.Errorf("pattern %q match %q = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestPatternString(t *testing.T) {
	p, err := CompilePattern("/users/*")
	if err != nil {
		t.Fatal(err)
	}
	if p.String() != "/users/*" {
		t.Errorf("String() = %q", p.String())
	}
}
