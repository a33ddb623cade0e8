package source

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Type identifies what kind of external source a configured feed is.
type Type string

const (
	TypeFeed         Type = "feed"
	TypeWebSearch    Type = "websearch"
	TypeYouTubeActor Type = "youtube_actor"
	TypeTwitchActor  Type = "twitch_actor"
	TypeRedditActor  Type = "reddit_actor"
)

// AllTypes returns all known source types.
func AllTypes() []Type {
	return []Type{TypeFeed, TypeWebSearch, TypeYouTubeActor, TypeTwitchActor, TypeRedditActor}
}

// Valid reports whether t is a known source type.
func (t Type) Valid() bool {
	switch t {
	case TypeFeed, TypeWebSearch, TypeYouTubeActor, TypeTwitchActor, TypeRedditActor:
		return true
	}
	return false
}

// Family maps a source type to the connector that handles it.
func (t Type) Family() string {
	switch t {
	case TypeFeed:
		return "feed"
	case TypeWebSearch:
		return "websearch"
	case TypeYouTubeActor, TypeTwitchActor, TypeRedditActor:
		return "actor"
	}
	return ""
}

// Platform returns the social platform behind an actor source type.
func (t Type) Platform() string {
	switch t {
	case TypeYouTubeActor:
		return "youtube"
	case TypeTwitchActor:
		return "twitch"
	case TypeRedditActor:
		return "reddit"
	}
	return ""
}

// Candidate is a raw, unvalidated mention produced by a connector before
// filtering, scoring and dedup.
type Candidate struct {
	URL             string
	Title           string
	Snippet         string
	PublishedAt     time.Time
	EngineRelevance float64 // search-engine hint, 0 when absent
	Query           string  // originating query, if any
}

// Credentials is the read-only per-run credential snapshot, keyed by service
// name (tavily, apify, youtube, twitch, reddit). Resolved once at the start
// of a run and passed into each connector invocation.
type Credentials map[string]string

// Get returns the credential for a service.
func (c Credentials) Get(service string) (string, bool) {
	v, ok := c[service]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ErrMissingCredential marks a fetch that could not start because the
// required service credential is absent. The orchestrator records the source
// as skipped, not failed.
var ErrMissingCredential = errors.New("missing credential")

// Request is everything a connector needs for one fetch: the source's typed
// config and the run's credential snapshot.
type Request struct {
	SourceType  Type
	Config      *Config
	Credentials Credentials
}

// FetchResult is the outcome of one connector fetch. Queries counts the
// sub-queries attempted, including a trailing one that failed after earlier
// queries already produced candidates.
type FetchResult struct {
	Candidates []Candidate
	Queries    int
	Cost       decimal.Decimal
}

// Connector produces raw candidates from one configured source. A fetch
// error is source-local: it is recorded against the source's run history and
// never aborts sibling sources.
type Connector interface {
	Family() string
	Fetch(ctx context.Context, req Request) (*FetchResult, error)
}

// truncate caps s at maxLen bytes including the ellipsis, cutting on a rune
// boundary so a multibyte character is never split.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
