package registry

import "github.com/iris-network/iris/internal/domain"

// ─── Hardware Tiering ───────────────────────────────────────────────────────
// A node's tier is a pure function of its declared hardware, scored on a
// 100-point scale: model size dominates (65), then VRAM (25) and measured
// throughput (25 overlaps into the cap).

const (
	premiumCutoff  = 61
	standardCutoff = 21
)

// HardwareScore rates a worker's declared capabilities.
func HardwareScore(vramGB, modelParamsB, tokensPerSecond float64) int {
	score := 0

	switch {
	case vramGB >= 24:
		score += 25
	case vramGB >= 16:
		score += 20
	case vramGB >= 12:
		score += 15
	case vramGB >= 8:
		score += 10
	}

	switch {
	case modelParamsB >= 100:
		score += 65
	case modelParamsB >= 70:
		score += 50
	case modelParamsB >= 30:
		score += 40
	case modelParamsB >= 13:
		score += 25
	case modelParamsB >= 7:
		score += 15
	case modelParamsB >= 3:
		score += 5
	}

	switch {
	case tokensPerSecond >= 50:
		score += 25
	case tokensPerSecond >= 20:
		score += 15
	case tokensPerSecond >= 10:
		score += 10
	}

	return score
}

// TierFor maps a hardware score to a service tier.
func TierFor(vramGB, modelParamsB, tokensPerSecond float64) domain.Tier {
	score := HardwareScore(vramGB, modelParamsB, tokensPerSecond)
	switch {
	case score >= premiumCutoff:
		return domain.TierPremium
	case score >= standardCutoff:
		return domain.TierStandard
	default:
		return domain.TierBasic
	}
}
