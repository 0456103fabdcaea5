// Package tdp assigns every cluster of the forest its true discovery
// proportion lower bound at a fixed significance level.
//
// Computing the bound for each subtree independently would cost O(m^2) in
// the worst case. Instead the forest is decomposed into heavy paths: the
// post-order descendant enumeration of a path start puts the descendants of
// every node on the path in a prefix, so one cumulative discovery scan per
// heavy path serves all its nodes.
package tdp

import (
	"fmt"

	"aricluster/pkg/forest"
	"aricluster/pkg/hommel"
)

// ForestTDP returns the TDP lower bound of the cluster rooted at every node
// of the forest, at significance level alpha. Nodes whose p-value equals
// that of their parent do not represent a distinct supra-threshold cluster
// and get the sentinel value -1.
func ForestTDP(f *forest.Forest, h *hommel.Hommel, alpha float64) ([]float64, error) {
	if f.NumNodes() != h.M() {
		return nil, fmt.Errorf("tdp: forest has %d nodes, procedure has %d hypotheses",
			f.NumNodes(), h.M())
	}

	tdps := make([]float64, f.NumNodes())

	// Every heavy path starts at a forest root or at a non-heavy child.
	for _, r := range f.Roots {
		if err := heavyPathTDP(r, -1, f, h, alpha, tdps); err != nil {
			return nil, err
		}
	}
	for v := 0; v < f.NumNodes(); v++ {
		chd := f.Child[v]
		for j := 1; j < len(chd); j++ {
			if err := heavyPathTDP(chd[j], v, f, h, alpha, tdps); err != nil {
				return nil, err
			}
		}
	}

	return tdps, nil
}

// heavyPathTDP computes the TDP bounds of all nodes on the heavy path that
// starts at v, whose parent is par (-1 for a root). The descendants of v
// list the subtree of every path node as a prefix, so the cumulative
// discovery counts over that ordering give each node its bound directly.
func heavyPathTDP(v, par int, f *forest.Forest, h *hommel.Hommel, alpha float64, tdps []float64) error {
	hp := f.Descendants(v)
	num, err := h.DiscoveriesIncremental(hp, alpha)
	if err != nil {
		return err
	}

	p := h.PValues()
	for {
		if par == -1 || p[v] != p[par] {
			tdps[v] = float64(num[f.Size[v]]) / float64(f.Size[v])
		} else {
			// Same p-value as the parent: v forms no distinct
			// cluster.
			tdps[v] = -1
		}

		if f.Size[v] == 1 {
			return nil
		}
		par = v
		v = f.Child[v][0]
	}
}
