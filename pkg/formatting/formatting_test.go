package formatting_test

import (
	"errors"
	"testing"

	"github.com/JaimeStill/taxdraft/pkg/formatting"
)

type suggestion struct {
	SuggestedValue float64 `json:"suggested_value"`
	Reasoning      string  `json:"reasoning"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  suggestion
	}{
		{"direct", `{"suggested_value": 10, "reasoning": "ok"}`, suggestion{10, "ok"}},
		{"padded", "  \n{\"suggested_value\": 1}\n ", suggestion{SuggestedValue: 1}},
		{"json fence", "```json\n{\"suggested_value\": 7, \"reasoning\": \"fenced\"}\n```", suggestion{7, "fenced"}},
		{"bare fence", "```\n{\"suggested_value\": 3}\n```", suggestion{SuggestedValue: 3}},
		{"fence inside prose", "Result:\n```json\n{\"suggested_value\": 5}\n```\nDone.", suggestion{SuggestedValue: 5}},
		{"object inside prose", `Here you go: {"suggested_value": 9, "reasoning": "x"} hope it helps`, suggestion{9, "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.Parse[suggestion](tt.input)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseFailure(t *testing.T) {
	for _, input := range []string{"not json at all", "```json\n{broken\n```", ""} {
		_, err := formatting.Parse[suggestion](input)
		if !errors.Is(err, formatting.ErrParseFailed) {
			t.Errorf("Parse(%q) error = %v, want ErrParseFailed", input, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abcdef", 3, "abc"},
		{"abc", 10, "abc"},
		{"héllo", 2, "hé"},
		{"abc", -1, ""},
	}

	for _, tt := range tests {
		if got := formatting.Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"32MB", 32 << 20, false},
		{"10mb", 10 << 20, false},
		{"100 KB", 100 << 10, false},
		{"  2GB ", 2 << 30, false},
		{"", 0, true},
		{"50XX", 0, true},
		{"-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := formatting.ParseBytes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512.0 B"},
		{32 << 20, "32.0 MB"},
		{1536, "1.5 KB"},
	}

	for _, tt := range tests {
		if got := formatting.FormatBytes(tt.n, 1); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
