package coverage

import (
	"fmt"
	"strings"
)

// Scoring is a fixed heuristic, not a model: every adjustment is named in the
// reasoning string that gets persisted next to the score.
const (
	baseScore                = 60
	gameNameBonus            = 25
	engineRelevanceBonus     = 10
	engineRelevanceThreshold = 0.7
	whitelistMissPenalty     = 10
)

// ScoreInput carries the signals available when scoring one candidate.
type ScoreInput struct {
	Title           string
	GameName        string  // empty when the source has no game binding
	EngineRelevance float64 // search-engine hint, 0 when the connector has none
	FromSearch      bool
	Query           string // originating query, recorded in the reasoning
	HasWhitelist    bool
	WhitelistMatch  bool
}

// ScoreRelevance computes the 0-100 relevance score for a candidate and a
// human-readable reasoning string explaining each adjustment.
func ScoreRelevance(in ScoreInput) (int, string) {
	score := baseScore
	reasons := []string{fmt.Sprintf("base %d", baseScore)}

	if in.GameName != "" && strings.Contains(strings.ToLower(in.Title), strings.ToLower(in.GameName)) {
		score += gameNameBonus
		reasons = append(reasons, fmt.Sprintf("title mentions %q (+%d)", in.GameName, gameNameBonus))
	}

	if in.FromSearch && in.EngineRelevance > engineRelevanceThreshold {
		score += engineRelevanceBonus
		reasons = append(reasons, fmt.Sprintf("engine relevance %.2f (+%d)", in.EngineRelevance, engineRelevanceBonus))
	}

	if in.HasWhitelist && !in.WhitelistMatch {
		score -= whitelistMissPenalty
		reasons = append(reasons, fmt.Sprintf("no whitelist keyword matched (-%d)", whitelistMissPenalty))
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	if in.Query != "" {
		reasons = append(reasons, fmt.Sprintf("query %q", in.Query))
	}
	return score, strings.Join(reasons, "; ")
}
