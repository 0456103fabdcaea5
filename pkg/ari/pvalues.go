package ari

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"aricluster/internal/models"
)

// DerivePValues converts a statistical volume to p-values. Maps that already
// contain p-values pass through unchanged; z-scores and t-values are
// converted through the standard normal and Student's t distributions. A
// t-map with zero degrees of freedom falls back to the normal approximation.
//
// Out-of-mask voxels are neutralized before conversion: a p-map voxel is set
// to 1 and a z- or t-map voxel to 0. All outputs are clipped to [0,1].
func DerivePValues(sm *models.StatMap, inMask []bool, twoSided bool) ([]float64, error) {
	n := sm.Len()
	if len(sm.Data) != n {
		return nil, fmt.Errorf("ari: map %q has %d values, dimensions require %d",
			sm.Name, len(sm.Data), n)
	}
	if len(inMask) != n {
		return nil, fmt.Errorf("ari: mask has %d voxels, map %q requires %d",
			len(inMask), sm.Name, n)
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	cdf := normal.CDF
	if sm.Kind == models.KindT && sm.DegreesOfFreedom > 0 {
		cdf = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: sm.DegreesOfFreedom}.CDF
	}

	p := make([]float64, n)
	for i, v := range sm.Data {
		if !inMask[i] {
			if sm.Kind == models.KindP {
				v = 1
			} else {
				v = 0
			}
		}
		switch sm.Kind {
		case models.KindP:
			p[i] = v
		case models.KindZ, models.KindT:
			if twoSided {
				p[i] = 2 * cdf(-math.Abs(v))
			} else {
				p[i] = 1 - cdf(v)
			}
		default:
			return nil, fmt.Errorf("ari: map %q has unknown kind %d", sm.Name, sm.Kind)
		}
		p[i] = math.Min(1, math.Max(0, p[i]))
	}
	return p, nil
}

// ZBounds holds the z-score display range of an analysis: Min is the lower
// of the z-scores at p=0.001 and at the concentration threshold, Max follows
// the map extremes.
type ZBounds struct {
	Min float64
	Max float64
}

// zBounds derives the display range from the full-volume p-values, the raw
// map and the concentration p-value threshold. Values are rounded to two
// decimals.
func zBounds(sm *models.StatMap, inMask []bool, p []float64, concThreshold float64) ZBounds {
	normal := distuv.Normal{Mu: 0, Sigma: 1}

	z001 := round2(-normal.Quantile(0.001))
	zconc := round2(-normal.Quantile(concThreshold))

	var zmax float64
	if sm.Kind == models.KindP {
		pmin := 1.0
		for i, in := range inMask {
			if in && p[i] < pmin {
				pmin = p[i]
			}
		}
		zmax = round2(-normal.Quantile(pmin))
	} else {
		smax := math.Inf(-1)
		for i, in := range inMask {
			if in && sm.Data[i] > smax {
				smax = sm.Data[i]
			}
		}
		zmax = round2(smax)
	}

	return ZBounds{Min: math.Min(z001, zconc), Max: zmax}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
