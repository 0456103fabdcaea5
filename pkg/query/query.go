// Package query answers interactive cluster queries over a TDP-annotated
// cluster forest: given a TDP threshold gamma it returns all maximal
// clusters whose bound meets the threshold, and it can grow or shrink an
// individual cluster by a requested TDP change.
//
// The engine is built once per significance level and is safe for
// concurrent use; query results are plain values that do not alias engine
// state.
package query

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"aricluster/pkg/forest"
)

// Cluster is one maximal supra-threshold cluster of a query answer.
type Cluster struct {
	// Nodes lists the member voxels in subtree post-order, with the
	// representative node last
	Nodes []int

	// TDP is the true discovery proportion lower bound of the cluster
	TDP float64

	voxels *roaring.Bitmap
}

// Rep returns the representative node of the cluster: the member at which
// the cluster formed, carrying its TDP bound.
func (c Cluster) Rep() int { return c.Nodes[len(c.Nodes)-1] }

// Size returns the number of member voxels.
func (c Cluster) Size() int { return len(c.Nodes) }

// Contains reports whether voxel v is a member of the cluster.
func (c Cluster) Contains(v int) bool {
	return v >= 0 && c.voxels.Contains(uint32(v))
}

// Clone returns a deep copy of the cluster that shares no storage with the
// original.
func (c Cluster) Clone() Cluster {
	nodes := make([]int, len(c.Nodes))
	copy(nodes, c.Nodes)
	return Cluster{Nodes: nodes, TDP: c.TDP, voxels: c.voxels.Clone()}
}

// contains reports whether the whole cluster o lies inside c. Subtree
// clusters are either nested or disjoint, so membership of o's
// representative decides containment.
func (c Cluster) contains(o Cluster) bool {
	return c.voxels.Contains(uint32(o.Rep()))
}

// Engine holds the admissible clusters of a forest at a fixed significance
// level and answers TDP threshold queries against them.
type Engine struct {
	f    *forest.Forest
	tdps []float64

	// admstc lists the representatives of all admissible clusters in
	// ascending TDP order, ties broken by node id
	admstc []int

	mu   sync.Mutex
	mark []int
}

// NewEngine prepares the query engine: it walks the forest once to collect
// the admissible clusters, those whose TDP bound exceeds the bound of every
// ancestor. Along any root-to-leaf path the admissible representatives have
// strictly increasing TDP, so the maximal clusters for any threshold form
// an antichain within admstc.
func NewEngine(f *forest.Forest, tdps []float64) (*Engine, error) {
	if f.NumNodes() != len(tdps) {
		return nil, fmt.Errorf("query: forest has %d nodes but %d TDP bounds given",
			f.NumNodes(), len(tdps))
	}

	e := &Engine{
		f:    f,
		tdps: tdps,
		mark: make([]int, f.NumNodes()),
	}

	type frame struct {
		v      int
		maxTDP float64
	}
	stack := make([]frame, 0, 64)
	for _, r := range f.Roots {
		// maxTDP is the largest bound seen on the path above v;
		// roots have no ancestors.
		stack = append(stack, frame{r, -1})
		for len(stack) > 0 {
			fr := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			// Invalid clusters carry the sentinel -1 and never
			// exceed maxTDP.
			if tdps[fr.v] > fr.maxTDP {
				e.admstc = append(e.admstc, fr.v)
			}

			q := fr.maxTDP
			if tdps[fr.v] > q {
				q = tdps[fr.v]
			}
			for _, c := range f.Child[fr.v] {
				stack = append(stack, frame{c, q})
			}
		}
	}

	// Ascending TDP with node id as tie break keeps the order fully
	// deterministic regardless of traversal order.
	sort.Slice(e.admstc, func(a, b int) bool {
		ta, tb := tdps[e.admstc[a]], tdps[e.admstc[b]]
		if ta != tb {
			return ta < tb
		}
		return e.admstc[a] < e.admstc[b]
	})

	return e, nil
}

// NumAdmissible returns the number of admissible clusters.
func (e *Engine) NumAdmissible() int { return len(e.admstc) }

// Admissible returns the representatives of all admissible clusters in
// ascending TDP order. The slice is shared and must not be modified.
func (e *Engine) Admissible() []int { return e.admstc }

// TDP returns the TDP lower bound of the cluster rooted at node v.
func (e *Engine) TDP(v int) float64 { return e.tdps[v] }

// MaxTDP returns the largest attainable TDP bound, or 0 for an empty
// admissible set.
func (e *Engine) MaxTDP() float64 {
	if len(e.admstc) == 0 {
		return 0
	}
	return e.tdps[e.admstc[len(e.admstc)-1]]
}

// FindLeft returns the smallest index i with TDP[admstc[i]] >= gamma, or
// len(admstc) if none exists. A binary search and a linear scan from the
// right run in lockstep, so clusters near the top of the TDP range are
// found in few steps while the worst case stays logarithmic.
func (e *Engine) FindLeft(gamma float64) int {
	right := len(e.admstc)
	low, high := 0, right
	for low < high {
		mid := (low + high) / 2
		if e.tdps[e.admstc[mid]] >= gamma {
			high = mid
		} else {
			low = mid + 1
		}

		right--
		if e.tdps[e.admstc[right]] < gamma {
			return right + 1
		}
	}
	return low
}

// AnswerQuery returns all maximal clusters whose TDP bound is at least
// gamma, in ascending TDP order. Negative thresholds are clamped to zero,
// which also excludes invalid clusters carrying the -1 sentinel.
func (e *Engine) AnswerQuery(gamma float64) []Cluster {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.answerQuery(gamma, e.mark)
}

// markScope owns a mark scratch for the duration of one query. Every write
// goes through set, which records first-touched nodes, and the deferred
// release zeroes exactly those nodes on every exit path. The scratch must be
// all zero when a scope is opened on it.
type markScope struct {
	mark    []int
	touched []int
}

func (s *markScope) get(n int) int { return s.mark[n] }

func (s *markScope) set(n, value int) {
	if s.mark[n] == 0 {
		s.touched = append(s.touched, n)
	}
	s.mark[n] = value
}

func (s *markScope) release() {
	for _, n := range s.touched {
		s.mark[n] = 0
	}
	s.touched = s.touched[:0]
}

// answerQuery is the scratch-parameterised form of AnswerQuery. The mark
// buffer must be all zero on entry and is restored to zero before return.
func (e *Engine) answerQuery(gamma float64, mark []int) []Cluster {
	if gamma < 0 {
		gamma = 0
	}

	scope := markScope{mark: mark}
	defer scope.release()

	var ans []Cluster
	left := e.FindLeft(gamma)
	for i := left; i < len(e.admstc); i++ {
		if scope.get(e.admstc[i]) != 0 {
			continue
		}
		// admstc[i] is not inside any already taken cluster, so its
		// subtree is a new maximal cluster.
		c := e.newCluster(e.admstc[i])
		ans = append(ans, c)
		for _, n := range c.Nodes {
			scope.set(n, 1)
		}
	}
	return ans
}

// AnswerQueryBatch answers one query per threshold in gammas, distributing
// the thresholds over parallel workers. Results are returned in input
// order. workers <= 0 selects one worker per CPU.
func (e *Engine) AnswerQueryBatch(ctx context.Context, gammas []float64, workers int) ([][]Cluster, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(gammas) {
		workers = len(gammas)
	}
	if workers <= 1 {
		res := make([][]Cluster, len(gammas))
		mark := make([]int, e.f.NumNodes())
		for i, g := range gammas {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res[i] = e.answerQuery(g, mark)
		}
		return res, nil
	}

	res := make([][]Cluster, len(gammas))
	next := make(chan int)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(next)
		for i := range gammas {
			select {
			case next <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			// Each worker owns its scratch buffer, so queries never
			// contend on the engine mark array.
			mark := make([]int, e.f.NumNodes())
			for i := range next {
				res[i] = e.answerQuery(gammas[i], mark)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// newCluster materialises the cluster rooted at rep: its post-order node
// list and membership bitmap.
func (e *Engine) newCluster(rep int) Cluster {
	nodes := e.f.Descendants(rep)
	voxels := roaring.New()
	for _, n := range nodes {
		voxels.Add(uint32(n))
	}
	return Cluster{
		Nodes:  nodes,
		TDP:    e.tdps[rep],
		voxels: voxels,
	}
}

// SortBySize returns the positions of clusters in descending size order,
// computed with a counting sort over the cluster sizes.
func SortBySize(clusters []Cluster) []int {
	if len(clusters) == 0 {
		return nil
	}
	sizes := make([]int, len(clusters))
	max := 0
	for i, c := range clusters {
		sizes[i] = c.Size()
		if sizes[i] > max {
			max = sizes[i]
		}
	}
	return forest.CountingSortDesc(sizes, max)
}
