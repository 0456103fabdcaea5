package query

import (
	"sort"
)

// FindRep returns the index of the cluster in clusters that contains voxel
// v, or -1 if none does.
func FindRep(v int, clusters []Cluster) int {
	for i, c := range clusters {
		if c.Contains(v) {
			return i
		}
	}
	return -1
}

// FindIndex returns the position of the cluster representative rep in the
// admissible list, or -1 if rep is not admissible. The admissible list is
// totally ordered by (TDP, node id), so an exact binary search applies.
func (e *Engine) FindIndex(rep int) int {
	t := e.tdps[rep]
	i := sort.Search(len(e.admstc), func(i int) bool {
		ti := e.tdps[e.admstc[i]]
		if ti != t {
			return ti > t
		}
		return e.admstc[i] >= rep
	})
	if i < len(e.admstc) && e.admstc[i] == rep {
		return i
	}
	return -1
}

// CheckTDPChange validates a cluster change request without executing it.
// It returns nil when ChangeQuery would accept the request, or the
// QueryError it would fail with.
func (e *Engine) CheckTDPChange(v int, tdpchg float64, clusters []Cluster) error {
	_, _, err := e.checkChange(v, tdpchg, clusters)
	return err
}

// checkChange runs the shared validation of a change request and locates
// the affected cluster: its position iclus in the answer and the position
// idxv of its representative in the admissible list.
func (e *Engine) checkChange(v int, tdpchg float64, clusters []Cluster) (iclus, idxv int, err error) {
	if v < 0 {
		return 0, 0, errNegativeNode()
	}

	iclus = FindRep(v, clusters)
	if iclus < 0 {
		return 0, 0, errNoCluster(v)
	}
	rep := clusters[iclus].Rep()

	idxv = e.FindIndex(rep)
	if idxv < 0 {
		return 0, 0, errNotAdmissible(rep)
	}

	if tdpchg <= -1 || tdpchg == 0 || tdpchg >= 1 {
		return 0, 0, errBadTDPChange(tdpchg)
	}

	maxtdp := e.tdps[e.admstc[len(e.admstc)-1]]
	mintdp := e.tdps[e.admstc[0]]
	curtdp := e.tdps[rep]

	if (tdpchg < 0 && mintdp == curtdp) || (tdpchg > 0 && maxtdp == curtdp) {
		return 0, 0, errAtExtremum(curtdp)
	}
	if tdpchg < 0 && mintdp-curtdp > tdpchg {
		return 0, 0, errReductionUnreachable(tdpchg, mintdp, curtdp)
	}
	if tdpchg > 0 && maxtdp-curtdp < tdpchg {
		return 0, 0, errAugmentationUnreachable(tdpchg, maxtdp, curtdp)
	}
	return iclus, idxv, nil
}

// ChangeQuery grows or shrinks the cluster containing voxel v by the
// requested TDP change and returns the updated cluster list. A negative
// tdpchg lowers the cluster's TDP bound and enlarges it; a positive tdpchg
// raises the bound and replaces the cluster by smaller subclusters. The
// input cluster list is left untouched.
func (e *Engine) ChangeQuery(v int, tdpchg float64, clusters []Cluster) ([]Cluster, error) {
	iclus, idxv, err := e.checkChange(v, tdpchg, clusters)
	if err != nil {
		return nil, err
	}

	if tdpchg < 0 {
		return e.growCluster(v, iclus, idxv, tdpchg, clusters)
	}
	return e.shrinkCluster(v, iclus, idxv, tdpchg, clusters)
}

// growCluster scans the admissible list downwards from the cluster's
// position for the nearest larger cluster whose TDP bound has dropped by at
// least the requested amount and whose subtree covers the chosen cluster.
// Other clusters swallowed by the enlarged one are removed from the answer.
func (e *Engine) growCluster(v, iclus, idxv int, tdpchg float64, clusters []Cluster) ([]Cluster, error) {
	clus := clusters[iclus]
	curtdp := e.tdps[e.admstc[idxv]]
	cursize := e.f.Size[e.admstc[idxv]]

	for i := idxv - 1; i >= 0; i-- {
		cand := e.admstc[i]
		if e.tdps[cand] < 0 || e.tdps[cand]-curtdp > tdpchg || e.f.Size[cand] <= cursize {
			continue
		}

		c := e.newCluster(cand)
		if !c.Contains(clus.Rep()) {
			// Subtrees are nested or disjoint, so a candidate not
			// covering the representative lies elsewhere in the
			// forest.
			continue
		}

		out := make([]Cluster, 0, len(clusters))
		out = append(out, c)
		for j, other := range clusters {
			if j == iclus || c.contains(other) {
				continue
			}
			out = append(out, other)
		}
		return out, nil
	}

	return nil, errNodeOutsideResult(v)
}

// shrinkCluster scans the admissible list upwards from the cluster's
// position and collects the subclusters inside it whose TDP bound has risen
// by at least the requested amount. The chosen voxel must remain covered by
// one of the replacements.
func (e *Engine) shrinkCluster(v, iclus, idxv int, tdpchg float64, clusters []Cluster) ([]Cluster, error) {
	clus := clusters[iclus]
	curtdp := e.tdps[clus.Rep()]

	e.mu.Lock()
	defer e.mu.Unlock()
	scope := markScope{mark: e.mark}
	defer scope.release()
	for _, n := range clus.Nodes {
		scope.set(n, 1)
	}

	var repl []Cluster
	for i := idxv + 1; i < len(e.admstc); i++ {
		cand := e.admstc[i]
		// mark 1 restricts candidates to members of the chosen
		// cluster not yet covered by an earlier replacement.
		if e.tdps[cand] < 0 || e.tdps[cand]-curtdp < tdpchg || scope.get(cand) != 1 {
			continue
		}
		c := e.newCluster(cand)
		repl = append(repl, c)
		for _, n := range c.Nodes {
			scope.set(n, 2)
		}
	}

	if scope.get(v) != 2 {
		return nil, errNodeOutsideResult(v)
	}

	out := make([]Cluster, 0, len(repl)+len(clusters)-1)
	out = append(out, repl...)
	for j, other := range clusters {
		if j != iclus {
			out = append(out, other)
		}
	}
	return out, nil
}
