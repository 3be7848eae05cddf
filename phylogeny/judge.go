package phylogeny

import (
	"fmt"
	"math"
	"sort"
)

// JudgeRule selects the pluggable policy used to decide, once a species'
// representative set is full, whether an incoming genome should bump one of
// the current representatives (spec §4.4). The numbering matches the
// original `debug_env_crit` configuration values 0-3.
type JudgeRule int

const (
	// RuleMaxAverageGain is the default rule: replace the representative
	// whose removal-then-reinsertion most increases the set's average
	// pairwise distance.
	RuleMaxAverageGain JudgeRule = 0
	// RuleMaxMinDistance replaces the representative with the smallest
	// "nearest neighbour" distance, if the incoming genome would improve it.
	RuleMaxMinDistance JudgeRule = 1
	// RuleMaxMeanMinStdDev trades off mean distance against dispersion.
	RuleMaxMeanMinStdDev JudgeRule = 2
	// RuleWeightedDistanceToMean ranks distances and weights rank positions
	// by a Gaussian falloff around the set's mean distance.
	RuleWeightedDistanceToMean JudgeRule = 3
)

func (r JudgeRule) String() string {
	switch r {
	case RuleMaxAverageGain:
		return "max-average-gain"
	case RuleMaxMinDistance:
		return "max-min-distance"
	case RuleMaxMeanMinStdDev:
		return "max-mean-min-stddev"
	case RuleWeightedDistanceToMean:
		return "weighted-distance-to-mean"
	default:
		return fmt.Sprintf("JudgeRule(%d)", int(r))
	}
}

// enveloppeContribution is the verdict of the contribution judge: whether an
// incoming genome should replace a representative, which one, and at what
// confidence (spec §4.4).
type enveloppeContribution struct {
	better bool
	than   int
	value  float64
}

// computeContribution dispatches to the enveloppe-contribution rule selected
// by the tree's configuration. edist is the species' current distance map
// (k representatives, k(k-1)/2 entries); gdist[j] is the incoming genome's
// distance to representative j. Ties are broken in favour of the lowest
// index (spec §4.4).
func computeContribution(rule JudgeRule, edist map[pairKey]float64, gdist []float64, k int) (enveloppeContribution, error) {
	switch rule {
	case RuleMaxAverageGain:
		return maxAverageGain(edist, gdist, k), nil
	case RuleMaxMinDistance:
		return maxMinDistance(edist, gdist, k), nil
	case RuleMaxMeanMinStdDev:
		return maxMeanMinStdDev(edist, gdist, k), nil
	case RuleWeightedDistanceToMean:
		return weightedDistanceToMean(edist, gdist, k), nil
	default:
		return enveloppeContribution{}, fmt.Errorf("%w: debug_env_crit=%d", ErrUnknownJudgeRule, int(rule))
	}
}

// maxAverageGain implements rule 1 (§4.4): for each candidate index i,
// c_i = sum_{j!=i} (-edist[{i,j}] + gdist[j]); pick the maximizing i.
func maxAverageGain(edist map[pairKey]float64, gdist []float64, k int) enveloppeContribution {
	best := enveloppeContribution{value: math.Inf(-1), than: -1}
	for i := 0; i < k; i++ {
		c := 0.0
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			c += -edist[orderedPair(i, j)] + gdist[j]
		}
		if best.value < c {
			best.value = c
			best.than = i
		}
	}
	best.better = best.value > 0
	return best
}

// maxMinDistance implements rule 2 (§4.4): compare the nearest-neighbour
// distance within the current set to the nearest-neighbour distance the
// incoming genome would have, per candidate index.
func maxMinDistance(edist map[pairKey]float64, gdist []float64, k int) enveloppeContribution {
	best := enveloppeContribution{value: math.Inf(-1), than: -1}
	for i := 0; i < k; i++ {
		minBase, minNew := math.Inf(1), math.Inf(1)
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			if d := edist[orderedPair(i, j)]; d < minBase {
				minBase = d
			}
			if d := gdist[j]; d < minNew {
				minNew = d
			}
		}
		c := -minBase + minNew
		if best.value < c {
			best.value = c
			best.than = i
		}
	}
	best.better = best.value > 0
	return best
}

// maxMeanMinStdDev implements rule 3 (§4.4): prefer the replacement that
// increases the overall mean pairwise distance while decreasing its
// dispersion.
func maxMeanMinStdDev(edist map[pairKey]float64, gdist []float64, k int) enveloppeContribution {
	baseAvg, baseStdDev := distanceMapStats(edist)

	best := enveloppeContribution{value: math.Inf(-1), than: -1}
	for i := 0; i < k; i++ {
		hypothetical := make(map[pairKey]float64, len(edist))
		for key, v := range edist {
			hypothetical[key] = v
		}
		for j := 0; j < k; j++ {
			if i != j {
				hypothetical[orderedPair(i, j)] = gdist[j]
			}
		}
		newAvg, newStdDev := distanceMapStats(hypothetical)
		c := (newAvg - baseAvg) + (baseStdDev - newStdDev)
		if best.value < c {
			best.value = c
			best.than = i
		}
	}
	best.better = best.value > 0
	return best
}

func distanceMapStats(m map[pairKey]float64) (avg, stdDev float64) {
	if len(m) == 0 {
		return 0, 0
	}
	values := make([]float64, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return mean(values), populationStdDev(values)
}

// weightedDistanceToMean implements rule 4 (§4.4): rank both the baseline
// and replacement distance vectors and weight each rank position by a
// Gaussian falloff centred on the distance map's global mean.
func weightedDistanceToMean(edist map[pairKey]float64, gdist []float64, k int) enveloppeContribution {
	values := make([]float64, 0, len(edist))
	for _, v := range edist {
		values = append(values, v)
	}
	globalMean := mean(values)

	weight := func(d float64) float64 {
		denom := 2.0 * globalMean * globalMean / 16.0
		if denom == 0 {
			return 1
		}
		return 1 - math.Exp(-(d-globalMean)*(d-globalMean)/denom)
	}

	best := enveloppeContribution{value: math.Inf(-1), than: -1}
	for i := 0; i < k; i++ {
		dBase := make([]float64, 0, k-1)
		dNew := make([]float64, 0, k-1)
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			dBase = append(dBase, edist[orderedPair(i, j)])
			dNew = append(dNew, gdist[j])
		}

		orderBase := descendingOrder(dBase)
		orderNew := descendingOrder(dNew)

		c := 0.0
		for r := 0; r < len(dBase); r++ {
			nc := -dBase[orderBase[r]]
			pc := dNew[orderNew[r]]
			c += weight(pc) * (nc + pc)
		}
		if best.value < c {
			best.value = c
			best.than = i
		}
	}
	best.better = best.value > 0
	return best
}

// descendingOrder returns the indices of values sorted by decreasing value.
func descendingOrder(values []float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return values[idx[a]] > values[idx[b]]
	})
	return idx
}
