package retrieval

const (
	perHitBonus = 0.1
	maxHitBonus = 0.3
)

// Aggregate turns ranked hits into a single confidence in [0,1]: the mean
// score plus a bonus of 0.1 per hit, saturating at 0.3.
func Aggregate(hits []Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		sum += h.Score
	}
	mean := sum / float64(len(hits))
	bonus := perHitBonus * float64(len(hits))
	if bonus > maxHitBonus {
		bonus = maxHitBonus
	}
	return clamp01(mean + bonus)
}
