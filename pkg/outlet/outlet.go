// Package outlet maps coverage to media outlets and maintains their traffic
// tiers via an external traffic-estimation service.
package outlet

// Traffic tiers by monthly unique visitors.
const (
	TierA = "A" // >= 10M
	TierB = "B" // >= 1M
	TierC = "C" // >= 100K
	TierD = "D"
)

// TierFor derives the outlet tier from monthly unique visitors.
func TierFor(monthlyUniqueVisitors int) string {
	switch {
	case monthlyUniqueVisitors >= 10_000_000:
		return TierA
	case monthlyUniqueVisitors >= 1_000_000:
		return TierB
	case monthlyUniqueVisitors >= 100_000:
		return TierC
	default:
		return TierD
	}
}
