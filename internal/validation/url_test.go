package validation

import (
	"net/netip"
	"strings"
	"testing"
)

func TestNewFeedURLValidator(t *testing.T) {
	v := NewFeedURLValidator()

	if v.AllowLocalhost {
		t.Error("Expected AllowLocalhost to be false")
	}
	if v.AllowPrivateIPs {
		t.Error("Expected AllowPrivateIPs to be false")
	}
	if v.MaxLength != 2048 {
		t.Errorf("Expected MaxLength to be 2048, got %d", v.MaxLength)
	}
}

func TestNewPermissiveFeedURLValidator(t *testing.T) {
	v := NewPermissiveFeedURLValidator()

	if !v.AllowLocalhost {
		t.Error("Expected AllowLocalhost to be true for permissive mode")
	}
	if !v.AllowPrivateIPs {
		t.Error("Expected AllowPrivateIPs to be true for permissive mode")
	}
}

func TestValidateAndNormalize(t *testing.T) {
	v := NewFeedURLValidator()

	tests := []struct {
		name        string
		input       string
		expected    string
		shouldError bool
		errorMsg    string
	}{
		{name: "empty URL", input: "", shouldError: true, errorMsg: "URL cannot be empty"},
		{name: "whitespace-only URL", input: "   ", shouldError: true, errorMsg: "URL cannot be empty"},
		{name: "valid https", input: "https://autoguruclub.ru/featured/index.rss", expected: "https://autoguruclub.ru/featured/index.rss"},
		{name: "adds https", input: "blog.example.org/feed", expected: "https://blog.example.org/feed"},
		{name: "trims whitespace", input: "  http://news.example.org/rss  ", expected: "http://news.example.org/rss"},
		{name: "keeps port", input: "https://feeds.example.org:8443/a.xml", expected: "https://feeds.example.org:8443/a.xml"},
		{name: "ftp scheme", input: "ftp://example.org/feed", shouldError: true, errorMsg: "http or https"},
		{name: "invalid characters", input: "https://example.org/<script>", shouldError: true, errorMsg: "invalid characters"},
		{name: "localhost", input: "http://localhost:8080/feed", shouldError: true, errorMsg: "localhost"},
		{name: "loopback ip", input: "http://127.0.0.1/feed", shouldError: true, errorMsg: "localhost"},
		{name: "private ip", input: "http://192.168.1.10/feed", shouldError: true, errorMsg: "private"},
		{name: "unspecified", input: "http://0.0.0.0/feed", shouldError: true, errorMsg: "unspecified"},
		{name: "traversal", input: "https://example.org/a/../b", shouldError: true, errorMsg: "traversal"},
		{name: "too long", input: "https://example.org/" + strings.Repeat("a", 2100), shouldError: true, errorMsg: "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ValidateAndNormalize(tt.input)
			if tt.shouldError {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValidateAndNormalizePermissive(t *testing.T) {
	v := NewPermissiveFeedURLValidator()

	for _, input := range []string{
		"http://localhost:8080/feed.rss",
		"http://127.0.0.1:8080/feed.rss",
		"http://10.0.0.5/feed",
		"http://[::1]:9000/feed",
	} {
		if _, err := v.ValidateAndNormalize(input); err != nil {
			t.Errorf("permissive validator rejected %s: %v", input, err)
		}
	}
}

func TestIsLocalhost(t *testing.T) {
	tests := map[string]bool{
		"localhost":     true,
		"LOCALHOST":     true,
		"app.localhost": true,
		"127.0.0.1":     true,
		"::1":           true,
		"example.org":   false,
		"10.0.0.1":      false,
	}
	for host, want := range tests {
		if got := isLocalhost(host); got != want {
			t.Errorf("isLocalhost(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestIsPrivateAddr(t *testing.T) {
	tests := map[string]bool{
		"10.1.2.3":        true,
		"172.16.0.1":      true,
		"192.168.0.1":     true,
		"169.254.1.1":     true,
		"fd00::1":         true,
		"fe80::1":         true,
		"8.8.8.8":         false,
		"2001:4860::8888": false,
	}
	for s, want := range tests {
		if got := isPrivateAddr(netip.MustParseAddr(s)); got != want {
			t.Errorf("isPrivateAddr(%s) = %v, want %v", s, got, want)
		}
	}
}
