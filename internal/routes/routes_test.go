package routes

import "testing"

func TestURLs(t *testing.T) {
	testCases := []struct {
		name     string
		got      string
		expected string
	}{
		{"scratchpad", ScratchpadURL("http://localhost:12600", "main"), "http://localhost:12600/api/scratchpads/main"},
		{"scratchpad trailing slash", ScratchpadURL("http://localhost:12600/", "notes.v2"), "http://localhost:12600/api/scratchpads/notes.v2"},
		{"sse", SSEURL("http://localhost:12600", "main"), "http://localhost:12600/sse?doc=main"},
		{"sse trailing slash", SSEURL("http://h/", "a_b-c"), "http://h/sse?doc=a_b-c"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, tc.got)
			}
		})
	}
}
