package probe

import "testing"

func TestSanitizeURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"example.com", "http://example.com"},
		{"example.com/path?q=1", "http://example.com/path?q=1"},
		{"example.com:443", "https://example.com:443"},
		{"example.com:8443/x", "http://example.com:8443/x"},
		{"https://example.com", "https://example.com"},
		{"http://example.com:443", "http://example.com:443"},
		{"  example.com  ", "http://example.com"},
	}
	for _, c := range cases {
		u, err := SanitizeURL(c.in)
		if err != nil {
			t.Fatalf("SanitizeURL(%q): %v", c.in, err)
		}
		if got := u.String(); got != c.want {
			t.Fatalf("SanitizeURL(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeURL_RejectsEmptyHost(t *testing.T) {
	for _, in := range []string{"", "https://", "http:///path"} {
		if _, err := SanitizeURL(in); err == nil {
			t.Fatalf("SanitizeURL(%q): expected error", in)
		}
	}
}

func TestHost(t *testing.T) {
	if got := Host("Example.com:8080/a"); got != "Example.com" {
		t.Fatalf("Host=%q", got)
	}
	if got := Host("https://[::1]:443/"); got != "::1" {
		t.Fatalf("Host=%q", got)
	}
}
