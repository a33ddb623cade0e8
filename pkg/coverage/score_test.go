package coverage

import (
	"strings"
	"testing"
)

func TestScoreRelevance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   ScoreInput
		want int
	}{
		{
			name: "base score only",
			in:   ScoreInput{Title: "Some industry news"},
			want: 60,
		},
		{
			name: "game name match",
			in: ScoreInput{
				Title:    "Hollow Depths review: a stunning descent",
				GameName: "Hollow Depths",
			},
			want: 85,
		},
		{
			name: "game name match is case insensitive",
			in: ScoreInput{
				Title:    "HOLLOW DEPTHS gets a patch",
				GameName: "hollow depths",
			},
			want: 85,
		},
		{
			name: "game name plus strong engine relevance",
			in: ScoreInput{
				Title:           "Hollow Depths review",
				GameName:        "Hollow Depths",
				FromSearch:      true,
				EngineRelevance: 0.9,
			},
			want: 95,
		},
		{
			name: "engine relevance at threshold earns no bonus",
			in: ScoreInput{
				Title:           "Hollow Depths review",
				GameName:        "Hollow Depths",
				FromSearch:      true,
				EngineRelevance: 0.7,
			},
			want: 85,
		},
		{
			name: "engine relevance ignored outside search sources",
			in: ScoreInput{
				Title:           "Hollow Depths review",
				GameName:        "Hollow Depths",
				EngineRelevance: 0.9,
			},
			want: 85,
		},
		{
			name: "whitelist miss penalty",
			in: ScoreInput{
				Title:        "Unrelated roundup",
				HasWhitelist: true,
			},
			want: 50,
		},
		{
			name: "whitelist match avoids penalty",
			in: ScoreInput{
				Title:          "Pressworks roundup",
				HasWhitelist:   true,
				WhitelistMatch: true,
			},
			want: 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reasoning := ScoreRelevance(tt.in)
			if got != tt.want {
				t.Fatalf("score = %d, want %d (reasoning: %s)", got, tt.want, reasoning)
			}
			if got < 0 || got > 100 {
				t.Fatalf("score %d out of range", got)
			}
			if reasoning == "" {
				t.Fatal("expected non-empty reasoning")
			}
		})
	}
}

func TestScoreReasoningNamesAdjustments(t *testing.T) {
	t.Parallel()

	_, reasoning := ScoreRelevance(ScoreInput{
		Title:           "Hollow Depths review",
		GameName:        "Hollow Depths",
		FromSearch:      true,
		EngineRelevance: 0.9,
		Query:           "hollow depths review",
	})

	for _, want := range []string{"base 60", "Hollow Depths", "engine relevance", "query"} {
		if !strings.Contains(reasoning, want) {
			t.Errorf("reasoning %q missing %q", reasoning, want)
		}
	}
}
