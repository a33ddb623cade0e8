package coverage

import "strings"

// KeywordFilter screens candidate text against the global blacklist and an
// advisory per-client/game whitelist. Blacklist terms reject a candidate
// outright regardless of which client owns it; whitelist terms only feed the
// relevance score.
type KeywordFilter struct {
	blacklist []string
	whitelist []string
}

// NewKeywordFilter lowercases both lists for case-insensitive matching.
func NewKeywordFilter(whitelist, blacklist []string) *KeywordFilter {
	return &KeywordFilter{
		whitelist: lowerAll(whitelist),
		blacklist: lowerAll(blacklist),
	}
}

// Blacklisted reports whether any blacklist term appears in text.
func (f *KeywordFilter) Blacklisted(text string) bool {
	return MatchesAny(text, f.blacklist)
}

// WhitelistMatch reports whether any whitelist term appears in text. A miss
// never rejects a candidate; it only lowers its score.
func (f *KeywordFilter) WhitelistMatch(text string) bool {
	return MatchesAny(text, f.whitelist)
}

// HasWhitelist reports whether any whitelist terms are configured at all.
func (f *KeywordFilter) HasWhitelist() bool {
	return len(f.whitelist) > 0
}

// MatchesAny reports whether text contains any of the given terms,
// case-insensitively. Terms are expected lowercased already when called
// through KeywordFilter; raw callers get lowercasing here.
func MatchesAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(strings.ToLower(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
