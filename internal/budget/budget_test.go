package budget

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
		// Runes, not bytes: 8 three-byte runes are 2 tokens.
		{strings.Repeat("日", 8), 2},
	}
	for _, tt := range tests {
		if got := Estimate(tt.in); got != tt.want {
			t.Errorf("Estimate(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFitSnippets(t *testing.T) {
	t.Parallel()

	page := strings.Repeat("x", 400) // 100 tokens
	three := []string{page, page, page}

	tests := []struct {
		name     string
		fixed    int
		snippets []string
		max      int
		want     int
	}{
		{"no snippets", 0, nil, 100, 0},
		{"roomy", 10, three, 1000, 3},
		{"trailing dropped", 10, three, 215, 2},
		{"separator counted", 0, three, 100 + 102 + 101, 2},
		{"exact fit", 0, three, 100 + 102 + 102, 3},
		{"framing alone too big", 5000, three, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FitSnippets(tt.fixed, tt.snippets, tt.max); got != tt.want {
				t.Errorf("FitSnippets = %d, want %d", got, tt.want)
			}
		})
	}
}
