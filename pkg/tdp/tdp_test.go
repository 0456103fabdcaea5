package tdp

import (
	"math"
	"testing"

	"aricluster/pkg/forest"
	"aricluster/pkg/hommel"
)

// buildChain constructs the forest and Hommel state of a 7-voxel line with
// p-values [0.3, 0.05, 0.2, 0.01, 0.1, 0.02, 0.4]. The forest is a single
// tree rooted at node 6: 6 -> 0 -> 2 -> {4, 1}, 4 -> {3, 5}.
func buildChain(t *testing.T) (*forest.Forest, *hommel.Hommel) {
	t.Helper()

	p := []float64{0.3, 0.05, 0.2, 0.01, 0.1, 0.02, 0.4}
	h, err := hommel.New(p, true)
	if err != nil {
		t.Fatalf("hommel.New failed: %v", err)
	}

	adj := [][]int{{1}, {0, 2}, {1, 3}, {2, 4}, {3, 5}, {4, 6}, {5}}
	f, err := forest.Build(adj, h.Sorter(), h.Rank())
	if err != nil {
		t.Fatalf("forest.Build failed: %v", err)
	}
	return f, h
}

// TestForestTDPChain verifies the per-node TDP bounds on the line example.
// At alpha=0.1 only the voxel with p=0.01 is a guaranteed discovery, so
// every cluster bound is 1 over its size along the path containing it.
func TestForestTDPChain(t *testing.T) {
	f, h := buildChain(t)

	tdps, err := ForestTDP(f, h, 0.1)
	if err != nil {
		t.Fatalf("ForestTDP failed: %v", err)
	}

	expected := []float64{1.0 / 6, 0, 1.0 / 5, 1, 1.0 / 3, 0, 1.0 / 7}
	for v, want := range expected {
		if math.Abs(tdps[v]-want) > 1e-12 {
			t.Errorf("tdps[%d]: expected %g, got %g", v, want, tdps[v])
		}
	}
}

// TestRootMatchesWholeMap verifies that the bound of a root covering the
// whole mask equals the whole-map TDP of the procedure
func TestRootMatchesWholeMap(t *testing.T) {
	f, h := buildChain(t)

	for _, alpha := range []float64{0.01, 0.05, 0.1, 0.3, 0.5} {
		tdps, err := ForestTDP(f, h, alpha)
		if err != nil {
			t.Fatalf("ForestTDP failed at alpha=%g: %v", alpha, err)
		}
		root := f.Roots[0]
		if math.Abs(tdps[root]-h.TDP(alpha)) > 1e-12 {
			t.Errorf("Root bound %g differs from whole-map TDP %g at alpha=%g",
				tdps[root], h.TDP(alpha), alpha)
		}
	}
}

// TestTiedPValues verifies the -1 sentinel for nodes whose p-value equals
// that of their parent, which form no distinct cluster
func TestTiedPValues(t *testing.T) {
	p := []float64{0.01, 0.02, 0.02}
	h, err := hommel.New(p, true)
	if err != nil {
		t.Fatalf("hommel.New failed: %v", err)
	}

	adj := [][]int{{1}, {0, 2}, {1}}
	f, err := forest.Build(adj, h.Sorter(), h.Rank())
	if err != nil {
		t.Fatalf("forest.Build failed: %v", err)
	}

	// The chain merges into 2 -> 1 -> 0, with p[1] == p[2].
	tdps, err := ForestTDP(f, h, 0.05)
	if err != nil {
		t.Fatalf("ForestTDP failed: %v", err)
	}

	if tdps[1] != -1 {
		t.Errorf("tdps[1]: expected sentinel -1 for a tied node, got %g", tdps[1])
	}
	// At alpha=0.05 all three p-values are guaranteed discoveries.
	if tdps[2] != 1 {
		t.Errorf("tdps[2]: expected 1, got %g", tdps[2])
	}
	if tdps[0] != 1 {
		t.Errorf("tdps[0]: expected 1, got %g", tdps[0])
	}
}

// TestSizeMismatch verifies the consistency check between forest and
// procedure
func TestSizeMismatch(t *testing.T) {
	f, _ := buildChain(t)
	h, err := hommel.New([]float64{0.01, 0.02}, true)
	if err != nil {
		t.Fatalf("hommel.New failed: %v", err)
	}
	if _, err := ForestTDP(f, h, 0.05); err == nil {
		t.Error("Expected error for node/hypothesis count mismatch")
	}
}
