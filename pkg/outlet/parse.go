package outlet

import (
	"regexp"
	"strconv"
	"strings"
)

// visitorPatterns is the ordered cascade of phrasings the traffic-estimation
// service uses for monthly visitor counts. Evaluated in sequence, first
// match wins.
var visitorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([\d.,]+[kmb]?)\s*monthly unique visitors`),
	regexp.MustCompile(`(?i)monthly unique visitors[:\s]+([\d.,]+[kmb]?)`),
	regexp.MustCompile(`(?i)([\d.,]+[kmb]?)\s*unique visitors per month`),
	regexp.MustCompile(`(?i)([\d.,]+[kmb]?)\s*unique (?:monthly )?visitors`),
	regexp.MustCompile(`(?i)unique visitors[:\s]+([\d.,]+[kmb]?)`),
	regexp.MustCompile(`(?i)([\d.,]+[kmb]?)\s*monthly visit(?:or)?s`),
	regexp.MustCompile(`(?i)monthly visits[:\s]+([\d.,]+[kmb]?)`),
	regexp.MustCompile(`(?i)receives (?:about|approximately)\s+([\d.,]+[kmb]?)\s*(?:unique\s*)?visitors`),
	regexp.MustCompile(`(?i)estimated\s+([\d.,]+[kmb]?)\s*visitors`),
}

// visitFallback finds a 4+ digit number in text near the word "visit" when
// none of the cascade patterns hit.
var (
	visitWord      = regexp.MustCompile(`(?i)visit`)
	fallbackNumber = regexp.MustCompile(`\d[\d,]{3,}`)
)

// ParseVisitorCount extracts a monthly visitor count from free text. It is a
// pure function so each cascade pattern can be exercised against fixture
// HTML text independently. A miss is "no data found", not an error; the
// caller falls through to the next fallback stage.
func ParseVisitorCount(text string) (int, bool) {
	for _, re := range visitorPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if n, ok := parseHumanNumber(m[1]); ok && n > 0 {
			return n, true
		}
	}

	// Last resort: scan the neighborhood of every "visit" occurrence for a
	// 4+ digit number.
	for _, loc := range visitWord.FindAllStringIndex(text, -1) {
		start := loc[0] - 80
		if start < 0 {
			start = 0
		}
		end := loc[1] + 80
		if end > len(text) {
			end = len(text)
		}
		if m := fallbackNumber.FindString(text[start:end]); m != "" {
			if n, ok := parseHumanNumber(m); ok && n > 0 {
				return n, true
			}
		}
	}

	return 0, false
}

// parseHumanNumber handles "1,234,567", "1.2M", "980K" and similar.
func parseHumanNumber(s string) (int, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}

	multiplier := 1.0
	switch s[len(s)-1] {
	case 'k':
		multiplier = 1_000
		s = s[:len(s)-1]
	case 'm':
		multiplier = 1_000_000
		s = s[:len(s)-1]
	case 'b':
		multiplier = 1_000_000_000
		s = s[:len(s)-1]
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f * multiplier), true
}
