package source

import (
	"encoding/json"
	"fmt"
)

// Config is the typed, per-source-type configuration. Exactly one variant is
// set, matching the source's type; anything else fails validation before a
// connector ever sees it.
type Config struct {
	Feed   *FeedConfig   `json:"feed,omitempty"`
	Search *SearchConfig `json:"search,omitempty"`
	Actor  *ActorConfig  `json:"actor,omitempty"`
}

// FeedConfig configures a feed-poll source.
type FeedConfig struct {
	URL string `json:"url"`
}

// SearchConfig configures a web-search source: a bound domain and/or a
// keyword list that the connector turns into up to three queries.
type SearchConfig struct {
	Domain   string   `json:"domain,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// ActorConfig configures a social-actor source.
type ActorConfig struct {
	ActorID      string   `json:"actor_id,omitempty"` // override of the platform default
	Keywords     []string `json:"keywords,omitempty"`
	Hashtags     []string `json:"hashtags,omitempty"`
	MinFollowers int      `json:"min_followers,omitempty"`
	MaxResults   int      `json:"max_results,omitempty"`
}

// ParseConfig decodes a source's stored config JSON and validates that the
// populated variant matches the source type.
func ParseConfig(t Type, raw string) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}
	if err := cfg.Validate(t); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that exactly the variant required by t is present and
// well-formed.
func (c *Config) Validate(t Type) error {
	if !t.Valid() {
		return fmt.Errorf("unknown source type %q", t)
	}

	switch t.Family() {
	case "feed":
		if c.Feed == nil {
			return fmt.Errorf("source type %q requires a feed config", t)
		}
		if c.Feed.URL == "" {
			return fmt.Errorf("feed config missing url")
		}
	case "websearch":
		if c.Search == nil {
			return fmt.Errorf("source type %q requires a search config", t)
		}
		if c.Search.Domain == "" && len(c.Search.Keywords) == 0 {
			return fmt.Errorf("search config needs a domain or keywords")
		}
	case "actor":
		if c.Actor == nil {
			return fmt.Errorf("source type %q requires an actor config", t)
		}
		if len(c.Actor.Keywords) == 0 && len(c.Actor.Hashtags) == 0 {
			return fmt.Errorf("actor config needs keywords or hashtags")
		}
	}
	return nil
}
