package formatting_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/JaimeStill/aura/pkg/formatting"
)

type finding struct {
	Density string `json:"breast_density"`
	Score   int    `json:"birads_score"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    finding
	}{
		{"direct", `{"breast_density":"c","birads_score":2}`, finding{"c", 2}},
		{"padded", "  \n{\"breast_density\":\"a\",\"birads_score\":1}\n ", finding{"a", 1}},
		{"json fence", "```json\n{\"breast_density\":\"b\",\"birads_score\":3}\n```", finding{"b", 3}},
		{"bare fence", "```\n{\"breast_density\":\"d\",\"birads_score\":4}\n```", finding{"d", 4}},
		{
			"fence with prose",
			"Extracted fields:\n```json\n{\"breast_density\":\"c\",\"birads_score\":0}\n```\nLet me know if you need more.",
			finding{"c", 0},
		},
		{
			"object in prose",
			`Sure, here it is: {"breast_density":"b","birads_score":5} hope that helps`,
			finding{"b", 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.Parse[finding](tt.content)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMapAndSlice(t *testing.T) {
	m, err := formatting.Parse[map[string]string](`{"laterality":"left"}`)
	if err != nil {
		t.Fatalf("Parse map: %v", err)
	}
	if m["laterality"] != "left" {
		t.Errorf("laterality = %q, want left", m["laterality"])
	}

	s, err := formatting.Parse[[]int]("```json\n[1, 2, 3]\n```")
	if err != nil {
		t.Fatalf("Parse slice: %v", err)
	}
	if len(s) != 3 || s[2] != 3 {
		t.Errorf("slice = %v, want [1 2 3]", s)
	}
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"plain text", "the report could not be read"},
		{"empty", ""},
		{"broken fence", "```json\n{broken\n```"},
		{"reversed braces", "} nothing {"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := formatting.Parse[finding](tt.content)
			if !errors.Is(err, formatting.ErrParseFailed) {
				t.Errorf("error = %v, want ErrParseFailed", err)
			}
		})
	}
}

func TestParseFailureTruncatesContent(t *testing.T) {
	content := strings.Repeat("x", 500)

	_, err := formatting.Parse[finding](content)
	if !errors.Is(err, formatting.ErrParseFailed) {
		t.Fatalf("error = %v, want ErrParseFailed", err)
	}
	if strings.Contains(err.Error(), content) {
		t.Error("error message carries the full content")
	}
	if !strings.HasSuffix(err.Error(), "...") {
		t.Errorf("error = %q, want truncated suffix", err.Error())
	}
}
