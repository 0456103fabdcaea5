// Package hommel implements Hommel's closed-testing procedure over a vector
// of p-values, following the method of "Hommel's procedure in linear time"
// by Meijer, Krebs & Goeman and the all-resolutions inference framework of
// Rosenblatt et al.
//
// A Hommel value is computed once per loaded map and is immutable afterwards.
// It exposes the guaranteed number of true discoveries for arbitrary
// hypothesis subsets at any significance level alpha, the concentration
// threshold, and closed-testing adjusted p-values.
package hommel

import (
	"fmt"
	"math"
	"sort"
)

// Hommel holds the precomputed state of the closed-testing procedure:
// stably sorted p-values, the concave-majorant jump points of h(alpha),
// and the Simes denominator array.
type Hommel struct {
	// p holds the input p-values in their original order
	p []float64

	// sortedP holds the p-values in ascending order, ties kept in
	// original-index order (stable sort, required for reproducibility)
	sortedP []float64

	// sorter[i] is the original index of the i-th smallest p-value;
	// rank is its inverse permutation
	sorter []int
	rank   []int

	// simesFactors is the denominator array of the local test, indexed
	// 0..m with simesFactors[0] = 0
	simesFactors []float64

	// jumpAlpha[i] is the alpha value at which h(alpha) jumps from i to
	// i+1 hypotheses, non-increasing in i
	jumpAlpha []float64

	// adjusted holds closed-testing adjusted p-values for the elementary
	// hypotheses, in original order
	adjusted []float64

	simes bool
	m     int
}

// New validates p and precomputes the Hommel state. The simes flag selects
// the Simes local test; false selects the robust variant valid under
// arbitrary dependence.
func New(p []float64, simes bool) (*Hommel, error) {
	m := len(p)
	if m == 0 {
		return nil, fmt.Errorf("hommel: empty p-value vector")
	}
	for i, v := range p {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("hommel: p[%d] is NaN", i)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("hommel: p[%d] = %g outside [0,1]", i, v)
		}
	}

	h := &Hommel{
		p:     p,
		simes: simes,
		m:     m,
	}

	// Stable ascending sort: sorter maps sorted position to original
	// index, rank is the inverse.
	h.sorter = make([]int, m)
	for i := range h.sorter {
		h.sorter[i] = i
	}
	sort.SliceStable(h.sorter, func(a, b int) bool {
		return p[h.sorter[a]] < p[h.sorter[b]]
	})
	h.sortedP = make([]float64, m)
	h.rank = make([]int, m)
	for i, orig := range h.sorter {
		h.sortedP[i] = p[orig]
		h.rank[orig] = i
	}

	h.simesFactors = findSimesFactors(simes, m)
	h.jumpAlpha = findAlpha(h.sortedP, m, h.simesFactors, simes)

	adjSorted := adjustedElementary(h.sortedP, h.jumpAlpha, m, h.simesFactors)
	h.adjusted = make([]float64, m)
	for i, orig := range h.sorter {
		h.adjusted[orig] = adjSorted[i]
	}

	return h, nil
}

// M returns the number of hypotheses.
func (h *Hommel) M() int { return h.m }

// Sorter returns the stable ascending sort permutation: Sorter()[i] is the
// original index of the i-th smallest p-value. The slice is shared and must
// not be modified.
func (h *Hommel) Sorter() []int { return h.sorter }

// Rank returns the inverse of Sorter. The slice is shared and must not be
// modified.
func (h *Hommel) Rank() []int { return h.rank }

// PValues returns the input p-values in original order. The slice is shared
// and must not be modified.
func (h *Hommel) PValues() []float64 { return h.p }

// AdjustedElementary returns the closed-testing adjusted p-values of the
// elementary hypotheses, in original order.
func (h *Hommel) AdjustedElementary() []float64 { return h.adjusted }

// HAlpha returns h(alpha): the number of jump points strictly above alpha,
// in [0, m].
func (h *Hommel) HAlpha(alpha float64) int {
	lower, upper := 0, h.m+1
	for lower+1 < upper {
		mid := (lower + upper + 1) / 2
		if h.jumpAlpha[mid-1] > alpha {
			lower = mid
		} else {
			upper = mid
		}
	}
	return lower
}

// SimesFactor returns the local-test denominator at index i, 0 <= i <= m.
func (h *Hommel) SimesFactor(i int) float64 { return h.simesFactors[i] }

// Discoveries returns the guaranteed number of true discoveries among the
// hypotheses with the given original indices, at level alpha.
func (h *Hommel) Discoveries(ids []int, alpha float64) (int, error) {
	disc, err := h.DiscoveriesIncremental(ids, alpha)
	if err != nil {
		return 0, err
	}
	return disc[len(disc)-1], nil
}

// DiscoveriesIncremental returns the cumulative guaranteed discovery counts
// for every prefix of ids: the result has length len(ids)+1 and entry s is
// the count for the first s hypotheses. This is the form consumed by the
// bottom-up TDP computation over the cluster forest.
func (h *Hommel) DiscoveriesIncremental(ids []int, alpha float64) ([]int, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("hommel: empty selection")
	}
	ranks := make([]int, len(ids))
	for i, id := range ids {
		if id < 0 || id >= h.m {
			return nil, fmt.Errorf("hommel: hypothesis index %d out of range [0,%d)", id, h.m)
		}
		ranks[i] = h.rank[id]
	}
	halpha := h.HAlpha(alpha)
	simesh := h.simesFactors[halpha]
	return h.findDiscoveries(ranks, halpha, simesh, alpha), nil
}

// TDP returns the whole-set true discovery proportion lower bound at level
// alpha: guaranteed discoveries over all m hypotheses divided by m.
func (h *Hommel) TDP(alpha float64) float64 {
	d, _ := h.Discoveries(h.sorter, alpha)
	return float64(d) / float64(h.m)
}

// Concentration returns the concentration threshold at level alpha: the
// smallest p-value cutoff whose supra-threshold set is guaranteed to contain
// at least one true discovery.
func (h *Hommel) Concentration(alpha float64) float64 {
	halpha := h.HAlpha(alpha)
	simesh := h.simesFactors[halpha]
	z := h.concentrationIndex(halpha, simesh, alpha)
	if z <= 0 {
		return h.sortedP[0]
	}
	return h.sortedP[z-1]
}

// AdjustedIntersection returns the closed-testing adjusted p-value of an
// intersection hypothesis whose local-test p-value is pI.
func (h *Hommel) AdjustedIntersection(pI float64) float64 {
	// jumpAlpha extended by a trailing zero: beyond the last jump point
	// the local threshold is exhausted.
	jump := func(i int) float64 {
		if i >= h.m {
			return 0
		}
		return h.jumpAlpha[i]
	}

	lower, upper := 0, h.m+1
	for lower < upper-1 {
		mid := (lower + upper) / 2
		if h.simesFactors[mid]*pI <= jump(mid) {
			lower = mid
		} else {
			upper = mid
		}
	}
	if lower == h.m {
		return 0
	}
	return math.Min(h.simesFactors[lower+1]*pI, jump(lower))
}

// concentrationIndex returns the 1-based size z of the concentration set at
// a fixed alpha, with h = h(alpha) and simesh the Simes factor at h.
func (h *Hommel) concentrationIndex(halpha int, simesh, alpha float64) int {
	z := h.m - halpha
	if z > 0 {
		for z < h.m && simesh*h.sortedP[z-1] > float64(z-h.m+halpha+1)*alpha {
			z++
		}
	}
	return z
}

// category returns the 1-based category of a p-value: the smallest subset
// cardinality at which the local test rejects a set containing it.
func category(p, simesh, alpha float64, m int) int {
	switch {
	case p == 0 || simesh == 0:
		return 1
	case alpha == 0:
		return m + 1
	default:
		return int(math.Ceil(simesh * p / alpha))
	}
}

// findDiscoveries computes cumulative guaranteed discovery counts for the
// hypothesis subset given by ranks (0-based positions in the sorted p-value
// vector), processed in the given order. The disjoint-set structure over
// categories follows Meijer, Krebs & Goeman: a category set whose lowest
// reachable category is 1 yields a discovery; otherwise it is merged with
// the next lower category set.
func (h *Hommel) findDiscoveries(ranks []int, halpha int, simesh, alpha float64) []int {
	k := len(ranks)
	cats := make([]int, k)
	for i, r := range ranks {
		cats[i] = category(h.sortedP[r], simesh, alpha, h.m)
	}

	// Cap the largest category that can still contribute a discovery.
	z := h.concentrationIndex(halpha, simesh, alpha)
	maxcat := z - h.m + halpha + 1
	if k < maxcat {
		maxcat = k
	}
	maxcatSeen := 0
	for i := k - 1; i >= 0; i-- {
		if cats[i] > maxcatSeen {
			maxcatSeen = cats[i]
			if maxcatSeen >= maxcat {
				break
			}
		}
	}
	if maxcatSeen < maxcat {
		maxcat = maxcatSeen
	}

	parent := make([]int, maxcat+1)
	lowest := make([]int, maxcat+1)
	rnk := make([]int, maxcat+1)
	for i := range parent {
		parent[i] = i
		lowest[i] = i
	}

	disc := make([]int, k+1)
	for i := 0; i < k; i++ {
		if cats[i] > maxcat {
			disc[i+1] = disc[i]
			continue
		}
		low := lowest[find(cats[i], parent)]
		if low == 1 {
			disc[i+1] = disc[i] + 1
		} else {
			disc[i+1] = disc[i]
			union(low-1, find(cats[i], parent), parent, lowest, rnk)
		}
	}
	return disc
}

// find returns the root of x with path halving.
func find(x int, parent []int) int {
	for parent[x] != x {
		parent[x] = parent[parent[x]]
		x = parent[x]
	}
	return x
}

// union merges the sets of x and y by rank, keeping track of the lowest
// category reachable from the merged set.
func union(x, y int, parent, lowest, rnk []int) {
	xr, yr := find(x, parent), find(y, parent)
	if xr == yr {
		return
	}
	switch {
	case rnk[xr] < rnk[yr]:
		parent[xr] = yr
		lowest[yr] = min(lowest[xr], lowest[yr])
	case rnk[xr] > rnk[yr]:
		parent[yr] = xr
		lowest[xr] = min(lowest[xr], lowest[yr])
	default:
		parent[yr] = xr
		rnk[xr]++
		lowest[xr] = min(lowest[xr], lowest[yr])
	}
}

// findSimesFactors returns the denominator array of the local test, indexed
// 0..m: i under the Simes variant, i*sum_{j<=i}(1/j) under the robust one.
func findSimesFactors(simes bool, m int) []float64 {
	factors := make([]float64, m+1)
	if simes {
		for i := 1; i <= m; i++ {
			factors[i] = float64(i)
		}
		return factors
	}
	multiplier := 0.0
	for i := 1; i <= m; i++ {
		multiplier += 1.0 / float64(i)
		factors[i] = float64(i) * multiplier
	}
	return factors
}

// findHull computes the lower convex hull of the points (i+1, p[i]) over the
// sorted p-values, after Fortune (1989). Indices returned are 0-based
// positions in the sorted vector; the hull geometry itself uses the 1-based
// cardinalities of the classical recursion.
func findHull(m int, p []float64) []int {
	hull := []int{0}
	for i := 1; i < m; i++ {
		if i != m-1 && float64(m-1)*(p[i]-p[0]) >= float64(i)*(p[m-1]-p[0]) {
			continue
		}
		for {
			r := len(hull) - 1
			var notConvex bool
			if r > 0 {
				notConvex = float64(i-hull[r-1])*(p[hull[r]]-p[hull[r-1]]) >=
					float64(hull[r]-hull[r-1])*(p[i]-p[hull[r-1]])
			} else {
				notConvex = float64(i+1)*p[hull[0]] >= float64(hull[0]+1)*p[i]
			}
			if !notConvex {
				break
			}
			hull = hull[:r]
			if r == 0 {
				break
			}
		}
		hull = append(hull, i)
	}
	return hull
}

// findAlpha computes the jump points of h(alpha): the alpha values at which
// the guaranteed discovery count changes, walking the hull breakpoints. The
// denominators use the 1-based cardinality hull[k]+1 of each hull point.
func findAlpha(p []float64, m int, simesFactors []float64, simes bool) []float64 {
	alpha := make([]float64, m)
	hull := findHull(m, p)
	k := len(hull) - 1

	i := 0
	for i < m {
		if k > 0 {
			dk := p[hull[k-1]]*float64(hull[k]+1-m+i+1) - p[hull[k]]*float64(hull[k-1]+1-m+i+1)
			if dk < 0 {
				k--
				continue
			}
		}
		alpha[i] = simesFactors[i+1] * p[hull[k]] / float64(hull[k]+1-m+i+1)
		i++
	}

	if !simes {
		// The robust variant bounds alpha by 1 and enforces the
		// cumulative maximum from the right.
		for i := m - 1; i >= 0; i-- {
			if alpha[i] > 1 {
				alpha[i] = 1
			}
		}
		for i := m - 2; i >= 0; i-- {
			if alpha[i] < alpha[i+1] {
				alpha[i] = alpha[i+1]
			}
		}
	}
	return alpha
}

// adjustedElementary computes closed-testing adjusted p-values for all
// elementary hypotheses over the sorted p-values.
func adjustedElementary(p []float64, jumpAlpha []float64, m int, simesFactors []float64) []float64 {
	adjusted := make([]float64, m)
	i, j := 0, m
	for i < m {
		if simesFactors[j-1]*p[i] <= jumpAlpha[j-1] {
			adjusted[i] = math.Min(simesFactors[j]*p[i], jumpAlpha[j-1])
			i++
		} else {
			j--
		}
	}
	return adjusted
}
