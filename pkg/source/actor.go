package source

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pressworks/covscan/pkg/actor"
)

// defaultActors maps a social platform to the scraper actor used when the
// source config does not name one.
var defaultActors = map[string]string{
	"youtube": "streamers~youtube-scraper",
	"twitch":  "streamers~twitch-scraper",
	"reddit":  "trudax~reddit-scraper",
}

// Actor runs a hosted scraper job for a social platform and turns each
// returned post into a candidate.
type Actor struct {
	apify      *actor.Client
	actors     map[string]string
	costPerRun decimal.Decimal
	logger     *zap.Logger
}

// NewActor creates the social-actor connector. actors overrides the default
// platform-to-actor mapping per entry.
func NewActor(client *actor.Client, actors map[string]string, costPerRun decimal.Decimal, logger *zap.Logger) *Actor {
	merged := make(map[string]string, len(defaultActors))
	for platform, id := range defaultActors {
		merged[platform] = id
	}
	for platform, id := range actors {
		merged[platform] = id
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Actor{apify: client, actors: merged, costPerRun: costPerRun, logger: logger}
}

func (a *Actor) Family() string { return "actor" }

func (a *Actor) Fetch(ctx context.Context, r Request) (*FetchResult, error) {
	token, ok := r.Credentials.Get("apify")
	if !ok {
		return nil, fmt.Errorf("apify: %w", ErrMissingCredential)
	}

	platform := r.SourceType.Platform()
	if platform == "" {
		return nil, fmt.Errorf("source type %q is not an actor type", r.SourceType)
	}

	cfg := r.Config.Actor
	actorID := cfg.ActorID
	if actorID == "" {
		actorID = a.actors[platform]
	}
	if actorID == "" {
		return nil, fmt.Errorf("no actor configured for platform %q", platform)
	}

	input := map[string]any{
		"keywords":     cfg.Keywords,
		"hashtags":     cfg.Hashtags,
		"minFollowers": cfg.MinFollowers,
	}
	if cfg.MaxResults > 0 {
		input["maxResults"] = cfg.MaxResults
	}
	// Platform credentials, when present, ride along in the actor input.
	if key, ok := r.Credentials.Get(platform); ok {
		input["apiKey"] = key
	}

	posts, err := a.apify.RunSync(ctx, token, actorID, input)
	if err != nil {
		return nil, err
	}

	result := &FetchResult{Queries: 1, Cost: a.costPerRun}
	for _, post := range posts {
		cand, ok := candidateFromPost(post)
		if !ok {
			continue
		}
		result.Candidates = append(result.Candidates, cand)
	}

	a.logger.Debug("actor run complete",
		zap.String("platform", platform),
		zap.String("actor", actorID),
		zap.Int("posts", len(posts)),
		zap.Int("candidates", len(result.Candidates)))
	return result, nil
}

// candidateFromPost maps the loosely-typed dataset item shape shared by the
// scraper actors onto a candidate. Posts without a URL are unusable.
func candidateFromPost(post map[string]any) (Candidate, bool) {
	url := stringField(post, "url", "link", "postUrl")
	if url == "" {
		return Candidate{}, false
	}

	title := stringField(post, "title", "text", "caption")
	cand := Candidate{
		URL:     url,
		Title:   truncate(title, 280),
		Snippet: truncate(stringField(post, "description", "text"), 500),
	}

	if ts := stringField(post, "publishedAt", "createdAt", "date"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			cand.PublishedAt = t.UTC()
		}
	}
	return cand, true
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
