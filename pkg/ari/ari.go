// Package ari runs the all-resolutions inference pipeline end to end and
// manages interactive analysis sessions on top of it: closed testing over
// the in-mask p-values, cluster forest construction, per-node TDP bounds and
// the query engine, plus the derived artifacts a host application displays
// (gradient map, local minima, z-score display bounds).
package ari

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"aricluster/internal/models"
	"aricluster/pkg/adjacency"
	"aricluster/pkg/forest"
	"aricluster/pkg/hommel"
	"aricluster/pkg/query"
	"aricluster/pkg/tdp"
)

// ErrNoActivation is returned by Run when the whole-map TDP bound is zero,
// meaning no signal can be detected anywhere at the requested alpha.
var ErrNoActivation = errors.New("ari: no significant activation detected")

// Params control a pipeline run.
type Params struct {
	// Alpha is the significance level of the closed testing procedure
	Alpha float64

	// Simes selects the Simes local test; false selects the robust
	// Hommel variant
	Simes bool

	// Connectivity defines voxel neighbourhoods for cluster formation
	Connectivity adjacency.Connectivity

	// TwoSided selects two-sided p-value derivation for z- and t-maps
	TwoSided bool

	// GammaStep is the spacing of the threshold sweep grid; zero means 0.01
	GammaStep float64

	// Workers bounds the parallelism of the threshold sweep; zero means
	// one worker per CPU
	Workers int
}

// Validate checks the parameters for a run.
func (p Params) Validate() error {
	if p.Alpha <= 0 || p.Alpha >= 1 {
		return fmt.Errorf("ari: alpha %v outside (0,1)", p.Alpha)
	}
	if err := p.Connectivity.Validate(); err != nil {
		return err
	}
	if p.GammaStep < 0 || p.GammaStep > 1 {
		return fmt.Errorf("ari: gamma step %v outside [0,1]", p.GammaStep)
	}
	return nil
}

// LocalMinimum is a leaf of the cluster forest: a voxel whose p-value is a
// local minimum within the mask. Leaves serve as stable cluster labels.
type LocalMinimum struct {
	// Node is the 0-based in-mask id of the voxel
	Node int

	// Voxel is the linear index into the full volume
	Voxel int

	// X, Y, Z are the voxel coordinates
	X, Y, Z int
}

// Result bundles everything a single pipeline run produces.
type Result struct {
	// Mask maps between in-mask ids and volume coordinates
	Mask *adjacency.Mask

	// Hommel is the fitted closed testing procedure over the in-mask
	// p-values
	Hommel *hommel.Hommel

	// Forest is the cluster forest in ascending p-value order
	Forest *forest.Forest

	// TDPs holds one TDP lower bound per forest node, -1 where the bound
	// is inherited from the parent
	TDPs []float64

	// Engine answers interactive threshold and change queries
	Engine *query.Engine

	// PValues are the derived full-volume p-values
	PValues []float64

	// MinTDP is the whole-map TDP lower bound, the floor of any
	// threshold query
	MinTDP float64

	// ConcThreshold is the concentration p-value cutoff
	ConcThreshold float64

	// ZBounds is the z-score display range for the host's slider
	ZBounds ZBounds

	// GradientMap assigns each voxel the largest gamma at which it is
	// still covered by a cluster, as a flat volume
	GradientMap []float64

	// LocalMinima lists the forest leaves with their coordinates
	LocalMinima []LocalMinimum
}

// Run executes the full pipeline on a statistical map restricted to the
// given mask. The returned result is immutable and safe for concurrent
// queries through its Engine.
func Run(ctx context.Context, sm *models.StatMap, inMask []bool, params Params, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.GammaStep == 0 {
		params.GammaStep = 0.01
	}

	dims := adjacency.Dims{sm.Width, sm.Height, sm.Depth}
	mask, err := adjacency.NewMask(inMask, dims)
	if err != nil {
		return nil, err
	}

	p, err := DerivePValues(sm, inMask, params.TwoSided)
	if err != nil {
		return nil, err
	}

	// Restrict to in-mask voxels in ascending scan order; forest node v
	// corresponds to mask id v throughout.
	pm := make([]float64, mask.NumVoxels())
	for v := range pm {
		pm[v] = p[mask.VoxelIndex(v)]
	}
	logger.Info("derived p-values",
		zap.String("map", sm.Name),
		zap.Stringer("kind", sm.Kind),
		zap.Int("voxels", mask.NumVoxels()))

	h, err := hommel.New(pm, params.Simes)
	if err != nil {
		return nil, err
	}
	minTDP := h.TDP(params.Alpha)
	if minTDP == 0 {
		return nil, fmt.Errorf("%w at alpha %v", ErrNoActivation, params.Alpha)
	}
	conc := h.Concentration(params.Alpha)
	logger.Info("closed testing done",
		zap.Float64("alpha", params.Alpha),
		zap.Float64("min_tdp", minTDP),
		zap.Float64("concentration", conc))

	adj, err := mask.BuildAdjList(params.Connectivity)
	if err != nil {
		return nil, err
	}
	f, err := forest.Build(adj, h.Sorter(), h.Rank())
	if err != nil {
		return nil, err
	}
	tdps, err := tdp.ForestTDP(f, h, params.Alpha)
	if err != nil {
		return nil, err
	}
	eng, err := query.NewEngine(f, tdps)
	if err != nil {
		return nil, err
	}
	logger.Info("cluster forest built",
		zap.Int("nodes", f.NumNodes()),
		zap.Int("roots", len(f.Roots)),
		zap.Int("admissible", eng.NumAdmissible()))

	gammas := gammaGrid(params.GammaStep)
	answers, err := eng.AnswerQueryBatch(ctx, gammas, params.Workers)
	if err != nil {
		return nil, err
	}
	grad := gradientMap(answers, gammas, mask)

	leaves := f.LocalMinima()
	lms := make([]LocalMinimum, len(leaves))
	for i, v := range leaves {
		idx := mask.VoxelIndex(v)
		x, y, z := adjacency.IndexToXYZ(idx, dims)
		lms[i] = LocalMinimum{Node: v, Voxel: idx, X: x, Y: y, Z: z}
	}

	return &Result{
		Mask:          mask,
		Hommel:        h,
		Forest:        f,
		TDPs:          tdps,
		Engine:        eng,
		PValues:       p,
		MinTDP:        minTDP,
		ConcThreshold: conc,
		ZBounds:       zBounds(sm, inMask, p, conc),
		GradientMap:   grad,
		LocalMinima:   lms,
	}, nil
}
