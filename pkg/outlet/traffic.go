package outlet

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pressworks/covscan/pkg/search"
	"github.com/pressworks/covscan/pkg/source"
)

// Stages of the traffic fallback chain, in order of attempt.
const (
	MethodHypestatHTML  = "hypestat_html"
	MethodTavilyExtract = "tavily_extract"
	MethodTavilySearch  = "tavily_search"
	MethodNone          = "none"
)

const defaultProfileBase = "https://hypestat.com/info/"

// Report is the outcome of one traffic refresh.
type Report struct {
	Domain                string    `json:"domain"`
	MonthlyUniqueVisitors int       `json:"monthly_unique_visitors"`
	SuggestedTier         string    `json:"suggested_tier"`
	Method                string    `json:"method"`
	Error                 string    `json:"error,omitempty"`
	CheckedAt             time.Time `json:"checked_at"`
}

// Classifier refreshes an outlet's monthly visitor estimate via a
// three-stage fallback chain: direct fetch of the traffic service's profile
// page, content extraction of the same page, then a domain-restricted search
// over the traffic service. The first stage to yield a positive integer wins.
type Classifier struct {
	client      *http.Client
	search      *search.Client
	profileBase string
	logger      *zap.Logger
}

// NewClassifier creates a traffic classifier. An empty profileBase selects
// the hypestat profile URL prefix.
func NewClassifier(searchClient *search.Client, profileBase string, logger *zap.Logger) *Classifier {
	if profileBase == "" {
		profileBase = defaultProfileBase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		client:      &http.Client{Timeout: 30 * time.Second},
		search:      searchClient,
		profileBase: profileBase,
		logger:      logger,
	}
}

// Refresh resolves the monthly visitor count for a domain. It never returns
// an error: a chain that exhausts all stages reports method "none" with the
// last stage's error attached.
func (c *Classifier) Refresh(ctx context.Context, domain string, creds source.Credentials) *Report {
	report := &Report{Domain: domain, Method: MethodNone, CheckedAt: time.Now().UTC()}
	profileURL := c.profileBase + domain

	var lastErr error

	if visitors, err := c.fromProfilePage(ctx, profileURL); err == nil {
		c.finish(report, visitors, MethodHypestatHTML)
		return report
	} else {
		lastErr = err
		c.logger.Debug("traffic stage 1 failed", zap.String("domain", domain), zap.Error(err))
	}

	apiKey, hasKey := creds.Get("tavily")
	if hasKey {
		if visitors, err := c.fromExtract(ctx, apiKey, profileURL); err == nil {
			c.finish(report, visitors, MethodTavilyExtract)
			return report
		} else {
			lastErr = err
			c.logger.Debug("traffic stage 2 failed", zap.String("domain", domain), zap.Error(err))
		}

		if visitors, err := c.fromSearch(ctx, apiKey, domain); err == nil {
			c.finish(report, visitors, MethodTavilySearch)
			return report
		} else {
			lastErr = err
			c.logger.Debug("traffic stage 3 failed", zap.String("domain", domain), zap.Error(err))
		}
	}

	if lastErr != nil {
		report.Error = lastErr.Error()
	}
	return report
}

func (c *Classifier) finish(report *Report, visitors int, method string) {
	report.MonthlyUniqueVisitors = visitors
	report.SuggestedTier = TierFor(visitors)
	report.Method = method
}

// fromProfilePage fetches the traffic service's profile page directly and
// parses visitor counts out of its text.
func (c *Classifier) fromProfilePage(ctx context.Context, profileURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("User-Agent", "covscan/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch profile page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("profile page status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("parse profile html: %w", err)
	}

	visitors, ok := ParseVisitorCount(doc.Text())
	if !ok {
		return 0, fmt.Errorf("no visitor count on profile page")
	}
	return visitors, nil
}

// fromExtract runs the extraction service against the same profile URL and
// applies the same parser.
func (c *Classifier) fromExtract(ctx context.Context, apiKey, profileURL string) (int, error) {
	content, err := c.search.Extract(ctx, apiKey, profileURL)
	if err != nil {
		return 0, err
	}
	visitors, ok := ParseVisitorCount(content)
	if !ok {
		return 0, fmt.Errorf("no visitor count in extracted content")
	}
	return visitors, nil
}

// fromSearch issues a targeted query restricted to the traffic service's
// domain and parses each result's combined title and content.
func (c *Classifier) fromSearch(ctx context.Context, apiKey, domain string) (int, error) {
	query := fmt.Sprintf("%s monthly unique visitors", domain)
	results, err := c.search.Search(ctx, apiKey, query, search.SearchOptions{
		MaxResults:     5,
		IncludeDomains: []string{c.profileHost()},
	})
	if err != nil {
		return 0, err
	}

	for _, res := range results {
		if visitors, ok := ParseVisitorCount(res.Title + " " + res.Content); ok {
			return visitors, nil
		}
	}
	return 0, fmt.Errorf("no visitor count in search results")
}

// profileHost derives the traffic service's host from the profile base URL.
func (c *Classifier) profileHost() string {
	host := strings.TrimPrefix(c.profileBase, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	return host
}
