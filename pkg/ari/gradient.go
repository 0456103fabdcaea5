package ari

import (
	"math"

	"aricluster/pkg/adjacency"
	"aricluster/pkg/query"
)

// gammaGrid returns the TDP thresholds 0, step, 2*step, ... up to and
// including 1.
func gammaGrid(step float64) []float64 {
	n := int(math.Round(1/step)) + 1
	gammas := make([]float64, n)
	for i := 1; i < n-1; i++ {
		gammas[i] = float64(i) * step
	}
	gammas[n-1] = 1
	return gammas
}

// gradientMap projects a batch of threshold answers onto the volume: each
// voxel receives the largest gamma at which it is still part of some
// cluster. Voxels never covered stay at zero. The result is a flat volume in
// the mask's scan order.
func gradientMap(answers [][]query.Cluster, gammas []float64, mask *adjacency.Mask) []float64 {
	grad := make([]float64, mask.Dims().Len())
	for i, clusters := range answers {
		g := gammas[i]
		for _, c := range clusters {
			for _, v := range c.Nodes {
				idx := mask.VoxelIndex(v)
				if g > grad[idx] {
					grad[idx] = g
				}
			}
		}
	}
	return grad
}
