package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aricluster/pkg/forest"
)

// newTestEngine builds an engine over a 7-node forest shaped
// 6 -> 0 -> 2 -> {4, 1}, 4 -> {3, 5} with hand-picked TDP bounds that give
// two separate admissible branches. Node 5 carries the -1 sentinel of a
// cluster tied with its parent.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	adj := [][]int{{1}, {0, 2}, {1, 3}, {2, 4}, {3, 5}, {4, 6}, {5}}
	ord := []int{3, 5, 1, 4, 2, 0, 6}
	rank := []int{5, 2, 4, 0, 3, 1, 6}
	f, err := forest.Build(adj, ord, rank)
	require.NoError(t, err)

	tdps := []float64{0.2, 0.6, 0.3, 0.9, 0.5, -1, 0.1}
	e, err := NewEngine(f, tdps)
	require.NoError(t, err)
	return e
}

// TestAdmissibleOrder verifies the admissible list: every node whose bound
// exceeds all its ancestors, in ascending TDP order
func TestAdmissibleOrder(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, []int{6, 0, 2, 4, 1, 3}, e.Admissible())

	// Rebuilding must reproduce the identical order.
	e2 := newTestEngine(t)
	assert.Equal(t, e.Admissible(), e2.Admissible())
}

// TestEngineSizeMismatch verifies the forest/TDP consistency check
func TestEngineSizeMismatch(t *testing.T) {
	e := newTestEngine(t)
	_, err := NewEngine(e.f, []float64{0.5})
	assert.Error(t, err)
}

// TestFindLeft verifies the threshold search over the admissible list
func TestFindLeft(t *testing.T) {
	e := newTestEngine(t)

	// Admissible TDPs are [0.1, 0.2, 0.3, 0.5, 0.6, 0.9].
	cases := []struct {
		gamma float64
		want  int
	}{
		{0, 0},
		{0.1, 0},
		{0.15, 1},
		{0.5, 3},
		{0.55, 4},
		{0.9, 5},
		{0.95, 6},
		{2, 6},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, e.FindLeft(tc.gamma), "gamma=%g", tc.gamma)
	}
}

// TestAnswerQuery verifies maximal cluster extraction at several thresholds
func TestAnswerQuery(t *testing.T) {
	e := newTestEngine(t)

	// gamma=0 keeps one cluster per forest root covering everything.
	ans := e.AnswerQuery(0)
	require.Len(t, ans, 1)
	assert.Equal(t, 6, ans[0].Rep())
	assert.Equal(t, 7, ans[0].Size())
	assert.InDelta(t, 0.1, ans[0].TDP, 1e-12)

	// gamma=0.5 keeps two disjoint maximal clusters.
	ans = e.AnswerQuery(0.5)
	require.Len(t, ans, 2)
	assert.Equal(t, 4, ans[0].Rep())
	assert.Equal(t, []int{3, 5, 4}, ans[0].Nodes)
	assert.Equal(t, 1, ans[1].Rep())
	assert.Equal(t, []int{1}, ans[1].Nodes)

	// Membership goes through the cluster bitmap.
	assert.True(t, ans[0].Contains(5))
	assert.False(t, ans[0].Contains(1))
	assert.False(t, ans[0].Contains(-1))

	// A threshold above the maximum bound yields no clusters.
	assert.Empty(t, e.AnswerQuery(2))

	// Negative thresholds clamp to zero and never emit sentinel nodes
	// as clusters of their own.
	ans = e.AnswerQuery(-1)
	require.Len(t, ans, 1)
	assert.Equal(t, 6, ans[0].Rep())
}

// TestAnswerQueryScratchReuse verifies that repeated queries leave the
// engine scratch clean and reproduce identical answers
func TestAnswerQueryScratchReuse(t *testing.T) {
	e := newTestEngine(t)

	first := e.AnswerQuery(0.5)
	for i := 0; i < 10; i++ {
		again := e.AnswerQuery(0.5)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].Nodes, again[j].Nodes)
		}
	}
	for v, m := range e.mark {
		assert.Zero(t, m, "mark[%d] left dirty", v)
	}
}

// TestMarkScopeRelease verifies that the scratch guard zeroes exactly the
// touched nodes, including when a write path exits early
func TestMarkScopeRelease(t *testing.T) {
	mark := make([]int, 7)
	scope := markScope{mark: mark}

	scope.set(2, 1)
	scope.set(4, 1)
	scope.set(2, 2) // overwrite, recorded once
	assert.Equal(t, 2, scope.get(2))
	assert.Equal(t, []int{2, 4}, scope.touched)

	scope.release()
	for v, m := range mark {
		assert.Zero(t, m, "mark[%d] left dirty", v)
	}
	assert.Empty(t, scope.touched)

	// A released scope can be reused on the same scratch.
	scope.set(1, 1)
	scope.release()
	assert.Zero(t, mark[1])
}

// TestScratchCleanAfterFailedChange verifies that a change request rejected
// midway leaves no marks behind
func TestScratchCleanAfterFailedChange(t *testing.T) {
	e := newTestEngine(t)
	ans := e.AnswerQuery(0.5)

	// The only qualifying replacement {3} does not cover voxel 5, so the
	// shrink is rejected after marking.
	_, err := e.ChangeQuery(5, 0.3, ans)
	var qe QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, CodeNodeOutsideResult, qe.Code)

	for v, m := range e.mark {
		assert.Zero(t, m, "mark[%d] left dirty", v)
	}

	// Later queries are unaffected.
	again := e.AnswerQuery(0.5)
	require.Len(t, again, len(ans))
	for j := range ans {
		assert.Equal(t, ans[j].Nodes, again[j].Nodes)
	}
}

// TestAnswerQueryBatch verifies batch answers against sequential ones
func TestAnswerQueryBatch(t *testing.T) {
	e := newTestEngine(t)

	gammas := []float64{0, 0.15, 0.5, 0.55, 0.9, 2}
	res, err := e.AnswerQueryBatch(context.Background(), gammas, 3)
	require.NoError(t, err)
	require.Len(t, res, len(gammas))

	for i, g := range gammas {
		want := e.AnswerQuery(g)
		require.Len(t, res[i], len(want), "gamma=%g", g)
		for j := range want {
			assert.Equal(t, want[j].Nodes, res[i][j].Nodes, "gamma=%g", g)
		}
	}
}

// TestAnswerQueryBatchCancel verifies context cancellation
func TestAnswerQueryBatchCancel(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gammas := make([]float64, 1000)
	_, err := e.AnswerQueryBatch(ctx, gammas, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestFindRepAndIndex verifies cluster lookup by voxel and by
// representative
func TestFindRepAndIndex(t *testing.T) {
	e := newTestEngine(t)
	ans := e.AnswerQuery(0.5)

	assert.Equal(t, 0, FindRep(3, ans))
	assert.Equal(t, 0, FindRep(5, ans))
	assert.Equal(t, 1, FindRep(1, ans))
	assert.Equal(t, -1, FindRep(6, ans))
	assert.Equal(t, -1, FindRep(-2, ans))

	assert.Equal(t, 0, e.FindIndex(6))
	assert.Equal(t, 3, e.FindIndex(4))
	assert.Equal(t, 5, e.FindIndex(3))
	assert.Equal(t, -1, e.FindIndex(5))
}

// TestChangeQueryGrow verifies cluster enlargement and the absorption of
// other clusters swallowed by the enlarged one
func TestChangeQueryGrow(t *testing.T) {
	e := newTestEngine(t)
	ans := e.AnswerQuery(0.5)
	require.Len(t, ans, 2)

	// Growing the cluster around voxel 5 by a TDP drop of 0.15 reaches
	// node 2, whose subtree swallows the second cluster {1}.
	out, err := e.ChangeQuery(5, -0.15, ans)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Rep())
	assert.Equal(t, []int{3, 5, 4, 1, 2}, out[0].Nodes)

	// The input answer is untouched.
	assert.Len(t, ans, 2)
	assert.Equal(t, []int{3, 5, 4}, ans[0].Nodes)

	// Growing the singleton {1} skips the disjoint subtree of node 4
	// and also lands on node 2.
	out, err = e.ChangeQuery(1, -0.25, ans)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Rep())
}

// TestChangeQueryShrink verifies cluster reduction to subclusters with a
// higher TDP bound
func TestChangeQueryShrink(t *testing.T) {
	e := newTestEngine(t)
	ans := e.AnswerQuery(0.5)

	// Shrinking the cluster around voxel 3 by +0.3 keeps only the
	// singleton {3} with TDP 0.9.
	out, err := e.ChangeQuery(3, 0.3, ans)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []int{3}, out[0].Nodes)
	assert.InDelta(t, 0.9, out[0].TDP, 1e-12)
	// The untouched cluster {1} stays in the answer.
	assert.Equal(t, []int{1}, out[1].Nodes)

	// The scratch is clean afterwards.
	for v, m := range e.mark {
		assert.Zero(t, m, "mark[%d] left dirty", v)
	}
}

// TestChangeQueryErrors verifies every rejection code of the change request
// validation
func TestChangeQueryErrors(t *testing.T) {
	e := newTestEngine(t)
	ans := e.AnswerQuery(0.5)

	wantCode := func(err error, code int) {
		t.Helper()
		var qe QueryError
		require.True(t, errors.As(err, &qe), "expected QueryError, got %v", err)
		assert.Equal(t, code, qe.Code)
	}

	// 1: negative voxel id.
	_, err := e.ChangeQuery(-1, 0.1, ans)
	wantCode(err, CodeNegativeNode)

	// 2: voxel outside every cluster.
	_, err = e.ChangeQuery(6, 0.1, ans)
	wantCode(err, CodeNoCluster)

	// 3: cluster whose representative is not admissible.
	bogus := []Cluster{e.newCluster(5)}
	_, err = e.ChangeQuery(5, 0.1, bogus)
	wantCode(err, CodeNotAdmissible)

	// 4: invalid TDP change values.
	for _, chg := range []float64{0, 1, -1, 1.5, -2} {
		_, err = e.ChangeQuery(3, chg, ans)
		wantCode(err, CodeBadTDPChange)
	}

	// 5: already at the maximum bound.
	top := e.AnswerQuery(0.9)
	require.Len(t, top, 1)
	_, err = e.ChangeQuery(3, 0.1, top)
	wantCode(err, CodeAtExtremum)

	// 5: already at the minimum bound.
	whole := e.AnswerQuery(0)
	_, err = e.ChangeQuery(0, -0.05, whole)
	wantCode(err, CodeAtExtremum)

	// 6: requested reduction beyond the minimum.
	mid := e.AnswerQuery(0.15)
	require.Len(t, mid, 1)
	require.Equal(t, 0, mid[0].Rep())
	_, err = e.ChangeQuery(0, -0.15, mid)
	wantCode(err, CodeReductionUnreachable)

	// 7: requested augmentation beyond the maximum.
	_, err = e.ChangeQuery(3, 0.7, ans)
	wantCode(err, CodeAugmentationUnreachable)

	// 8: no replacement cluster covers the chosen voxel.
	_, err = e.ChangeQuery(5, 0.3, ans)
	wantCode(err, CodeNodeOutsideResult)
}

// TestCheckTDPChange verifies that the pure validation agrees with
// ChangeQuery and mutates nothing
func TestCheckTDPChange(t *testing.T) {
	e := newTestEngine(t)
	ans := e.AnswerQuery(0.5)

	assert.NoError(t, e.CheckTDPChange(3, 0.3, ans))
	assert.NoError(t, e.CheckTDPChange(5, -0.15, ans))

	cases := []struct {
		v      int
		tdpchg float64
		code   int
	}{
		{-1, 0.1, CodeNegativeNode},
		{6, 0.1, CodeNoCluster},
		{3, 0, CodeBadTDPChange},
		{3, 0.7, CodeAugmentationUnreachable},
	}
	for _, tc := range cases {
		err := e.CheckTDPChange(tc.v, tc.tdpchg, ans)
		var qe QueryError
		require.True(t, errors.As(err, &qe))
		assert.Equal(t, tc.code, qe.Code)
	}

	// Validation never touches the answer or the scratch.
	assert.Equal(t, []int{3, 5, 4}, ans[0].Nodes)
	for v, m := range e.mark {
		assert.Zero(t, m, "mark[%d] left dirty", v)
	}
}

// TestSortBySize verifies descending size ordering of an answer
func TestSortBySize(t *testing.T) {
	e := newTestEngine(t)
	ans := e.AnswerQuery(0.5)

	order := SortBySize(ans)
	require.Len(t, order, 2)
	assert.Equal(t, 0, order[0]) // size 3 before size 1
	assert.Equal(t, 1, order[1])

	assert.Nil(t, SortBySize(nil))
}

// TestMaxTDP verifies the attainable bound accessor
func TestMaxTDP(t *testing.T) {
	e := newTestEngine(t)
	assert.InDelta(t, 0.9, e.MaxTDP(), 1e-12)
}
