package dataflows

import (
	"testing"
	"time"
)

func TestCleanGoogleNewsURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"./articles/abc123", "https://news.google.com/articles/abc123"},
		{"/articles/abc123", "https://news.google.com/articles/abc123"},
		{"https://example.com/story", "https://example.com/story"},
		{"https://news.google.com/rss?url=https%3A%2F%2Fexample.com%2Fstory", "https://example.com/story"},
	}
	for _, tc := range cases {
		if got := cleanGoogleNewsURL(tc.in); got != tc.want {
			t.Errorf("cleanGoogleNewsURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseNewsTime(t *testing.T) {
	got := parseNewsTime("2026-08-20T10:00:00Z", "")
	want := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected datetime attribute to win, got %v", got)
	}

	rel := parseNewsTime("", "3 hours ago")
	age := time.Since(rel)
	if age < 2*time.Hour+55*time.Minute || age > 3*time.Hour+5*time.Minute {
		t.Errorf("expected roughly 3h old, got %v", age)
	}

	if parseNewsTime("", "garbage").IsZero() {
		t.Errorf("unparseable time must fall back to now, not zero")
	}
}
