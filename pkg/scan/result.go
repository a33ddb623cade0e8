package scan

import "github.com/shopspring/decimal"

// Per-source run statuses. Skipped covers both budget exhaustion and a
// missing credential; neither counts as a failure.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// SourceResult is the outcome of one source within a scan invocation.
type SourceResult struct {
	Source       string          `json:"source"`
	SourceID     int64           `json:"source_id"`
	Status       string          `json:"status"`
	Queries      int             `json:"queries"`
	Found        int             `json:"found"`
	Inserted     int             `json:"inserted"`
	CostEstimate decimal.Decimal `json:"cost_estimate"`
	Error        string          `json:"error,omitempty"`
}

// Report is the response of one scan invocation.
type Report struct {
	Results    []SourceResult `json:"results"`
	DurationMS int64          `json:"duration_ms"`
}

// TotalFound sums candidates found across sources.
func (r *Report) TotalFound() int {
	total := 0
	for _, res := range r.Results {
		total += res.Found
	}
	return total
}

// TotalInserted sums new items inserted across sources.
func (r *Report) TotalInserted() int {
	total := 0
	for _, res := range r.Results {
		total += res.Inserted
	}
	return total
}

// TotalCost sums cost estimates across sources.
func (r *Report) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, res := range r.Results {
		total = total.Add(res.CostEstimate)
	}
	return total
}
