package coverage

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ClusterItem is the slice of a coverage item the syndication clusterer needs.
type ClusterItem struct {
	ID          string
	Title       string
	OutletID    int64 // 0 when the item has no outlet binding
	PublishedAt time.Time
}

// SyndicationGroup is a cluster of republications of the same story. Exactly
// one member is the original (the earliest-published); the group's
// syndication count is attached to every member for display.
type SyndicationGroup struct {
	GroupID          string
	OriginalID       string
	MemberIDs        []string
	SyndicationCount int
}

// Clusterer groups near-identical stories published close together across
// different outlets.
type Clusterer struct {
	similarity float64
	window     time.Duration
}

// NewClusterer creates a clusterer. similarity is the minimum title Jaccard
// index and window the maximum publish-date distance for two items to be
// considered the same story.
func NewClusterer(similarity float64, window time.Duration) *Clusterer {
	if similarity <= 0 {
		similarity = 0.6
	}
	if window <= 0 {
		window = 72 * time.Hour
	}
	return &Clusterer{similarity: similarity, window: window}
}

// Cluster partitions items into syndication groups. Only groups with at
// least two members are returned; singletons stay ungrouped.
func (c *Clusterer) Cluster(items []ClusterItem) []SyndicationGroup {
	n := len(items)
	if n < 2 {
		return nil
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(x, y int) {
		px, py := find(x), find(y)
		if px != py {
			parent[px] = py
		}
	}

	tokens := make([][]string, n)
	for i, item := range items {
		tokens[i] = significantTokens(item.Title)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !c.sameStory(items[i], items[j], tokens[i], tokens[j]) {
				continue
			}
			union(i, j)
		}
	}

	byRoot := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		byRoot[root] = append(byRoot[root], i)
	}

	var groups []SyndicationGroup
	for _, indices := range byRoot {
		if len(indices) < 2 {
			continue
		}

		// Earliest-published member is the original.
		sort.Slice(indices, func(a, b int) bool {
			return items[indices[a]].PublishedAt.Before(items[indices[b]].PublishedAt)
		})

		group := SyndicationGroup{
			GroupID:          uuid.NewString(),
			OriginalID:       items[indices[0]].ID,
			SyndicationCount: len(indices),
		}
		for _, idx := range indices {
			group.MemberIDs = append(group.MemberIDs, items[idx].ID)
		}
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].OriginalID < groups[j].OriginalID
	})
	return groups
}

func (c *Clusterer) sameStory(a, b ClusterItem, tokensA, tokensB []string) bool {
	// Republications live on different outlets; two items from the same
	// known outlet are edits, not syndication.
	if a.OutletID != 0 && a.OutletID == b.OutletID {
		return false
	}

	gap := a.PublishedAt.Sub(b.PublishedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > c.window {
		return false
	}

	return jaccardSimilarity(tokensA, tokensB) >= c.similarity
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"it": true, "its": true, "this": true, "that": true, "as": true,
	"how": true, "what": true, "when": true, "why": true, "not": true,
	"new": true, "all": true, "more": true, "also": true, "than": true,
}

// significantTokens extracts meaningful lowercase words from a title.
func significantTokens(title string) []string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var tokens []string
	for _, w := range words {
		if len(w) >= 2 && !stopwords[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// jaccardSimilarity returns the Jaccard index of two token sets.
func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}

	unionSize := len(setA) + len(setB) - intersection
	if unionSize == 0 {
		return 0
	}
	return float64(intersection) / float64(unionSize)
}
