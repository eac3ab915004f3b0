package urlvalidate

import "testing"

func TestValidateBlocksSSRFTargets(t *testing.T) {
	v := New(DefaultConfig())

	cases := []string{
		"http://localhost/",
		"http://127.0.0.1/admin",
		"http://169.254.169.254/latest/meta-data",
		"http://10.0.0.5:80/",
		"http://example.com:3306/",
		"ftp://[::1]/",
	}
	for _, raw := range cases {
		if _, err := v.Validate(raw); err == nil {
			t.Errorf("Validate(%q) = nil error, want blocked", raw)
		}
	}
}

func TestValidateAllowsOrdinaryURLs(t *testing.T) {
	v := New(DefaultConfig())
	for _, raw := range []string{
		"https://example.test/path?a=1",
		"http://api.example.test:8081/data",
	} {
		if _, err := v.Validate(raw); err != nil {
			t.Errorf("Validate(%q) error: %v", raw, err)
		}
	}
}

func TestValidateRejectsPathTraversal(t *testing.T) {
	v := New(DefaultConfig())
	if _, err := v.Validate("https://example.test/../../etc/passwd"); err == nil {
		t.Error("expected path traversal to be rejected")
	}
}

func TestValidateRejectsBlockedScheme(t *testing.T) {
	v := New(DefaultConfig())
	if _, err := v.Validate("file:///etc/passwd"); err == nil {
		t.Error("expected file scheme to be rejected")
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	v := New(DefaultConfig())
	raw := "HTTP://Example.TEST/a/./b/../c/"
	once, err := v.Normalize(raw, nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	twice, err := v.Normalize(once, nil)
	if err != nil {
		t.Fatalf("Normalize twice: %v", err)
	}
	if once != twice {
		t.Errorf("normalize not idempotent: %q != %q", once, twice)
	}
}

func TestAnalyze(t *testing.T) {
	v := New(DefaultConfig())
	a, err := v.Analyze("https://example.test:8443/a/b?x=1#frag")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Scheme != "https" || a.Host != "example.test" || a.Port != 8443 {
		t.Errorf("unexpected analysis: %+v", a)
	}
	if !a.IsSecure {
		t.Error("expected IsSecure")
	}
	if len(a.Segments) != 2 || a.Segments[0] != "a" || a.Segments[1] != "b" {
		t.Errorf("unexpected segments: %v", a.Segments)
	}
}
