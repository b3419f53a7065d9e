package domain

import "math"

// Risk scoring weights and caps. Each CME adds 2 points up to 10, each flare
// 1.5 points up to 8, and the summed contribution is normalized from the
// 18-point maximum onto a 0-100 scale.
const (
	cmeWeight    = 2.0
	cmeCap       = 10.0
	flareWeight  = 1.5
	flareCap     = 8.0
	maxRawPoints = cmeCap + flareCap
)

// ComputeRiskIndex derives the composite risk index from the event counts of
// one observation window. The computation is deterministic: identical counts
// always yield an identical index.
func ComputeRiskIndex(cmeCount, flareCount int) RiskIndex {
	cme := math.Min(float64(cmeCount)*cmeWeight, cmeCap)
	flare := math.Min(float64(flareCount)*flareWeight, flareCap)
	score := roundScore((cme + flare) / maxRawPoints * 100)

	level, color := levelForScore(score)
	return RiskIndex{
		Score: score,
		Level: level,
		Color: color,
		Components: RiskComponents{
			CMEContribution:   cme,
			FlareContribution: flare,
		},
	}
}

// levelForScore maps a 0-100 score to its risk band and dashboard color:
//   - >=80 extreme (red)
//   - >=60 high (orange)
//   - >=40 moderate (amber)
//   - >=20 low (yellow)
//   - otherwise minimal (green)
func levelForScore(score float64) (RiskLevel, string) {
	switch {
	case score >= 80:
		return LevelExtreme, "red"
	case score >= 60:
		return LevelHigh, "orange"
	case score >= 40:
		return LevelModerate, "amber"
	case score >= 20:
		return LevelLow, "yellow"
	default:
		return LevelMinimal, "green"
	}
}

// roundScore rounds half away from zero to one decimal place.
func roundScore(score float64) float64 {
	return math.Round(score*10) / 10
}
