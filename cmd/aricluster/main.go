package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"aricluster/internal/models"
	"aricluster/pkg/adjacency"
	"aricluster/pkg/ari"
	"aricluster/pkg/config"
	"aricluster/pkg/query"
	"aricluster/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	alpha := flag.Float64("alpha", 0, "Significance level (overrides config)")
	conn := flag.Int("conn", 0, "Voxel connectivity: 6, 18 or 26 (overrides config)")
	gamma := flag.Float64("gamma", 0.7, "TDP threshold for the cluster report")
	workers := flag.Int("workers", 0, "Workers for the threshold sweep (overrides config)")
	extractSlices := flag.Bool("extract-slices", false, "Extract and save gradient map slices along all axes")
	slicesDir := flag.String("slices-dir", "gradient_slices", "Directory to save extracted slices")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *alpha != 0 {
		cfg.Inference.Alpha = *alpha
	}
	if *conn != 0 {
		cfg.Clustering.Connectivity = *conn
	}
	if *workers != 0 {
		cfg.Processing.Workers = *workers
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Output.Verbose)
	defer logger.Sync()

	fmt.Println("================================")
	fmt.Println("ALL-RESOLUTIONS INFERENCE: SIMULTANEOUS TDP BOUNDS FOR ALL SPATIAL CLUSTERS")
	fmt.Println("Closed testing over a demonstration z-map")
	fmt.Println("================================")

	sm, inMask := demoVolume()
	params := ari.Params{
		Alpha:        cfg.Inference.Alpha,
		Simes:        cfg.Inference.Simes,
		TwoSided:     cfg.Inference.TwoSided,
		Connectivity: adjacency.Connectivity(cfg.Clustering.Connectivity),
		GammaStep:    cfg.Clustering.GammaStep,
		Workers:      cfg.Processing.Workers,
	}

	fmt.Println("Starting all-resolutions inference...")
	startTime := time.Now()
	res, err := ari.Run(context.Background(), sm, inMask, params, logger)
	if err != nil {
		logger.Fatal("analysis failed", zap.Error(err))
	}
	elapsed := time.Since(startTime)

	fmt.Printf("\nAnalysis completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("In-mask voxels: %d\n", res.Mask.NumVoxels())
	fmt.Printf("Whole-map TDP bound: %.4f\n", res.MinTDP)
	fmt.Printf("Concentration p-value threshold: %.4g\n", res.ConcThreshold)
	fmt.Printf("Z display range: [%.2f, %.2f]\n", res.ZBounds.Min, res.ZBounds.Max)
	fmt.Printf("Local minima (cluster seeds): %d\n", len(res.LocalMinima))

	clusters := res.Engine.AnswerQuery(*gamma)
	fmt.Printf("\nClusters with TDP >= %.2f:\n", *gamma)
	fmt.Println("=======================================")
	fmt.Printf("%-8s %-8s %-8s %s\n", "Cluster", "Size", "TDP", "Seed (x,y,z)")
	for i, ci := range query.SortBySize(clusters) {
		c := clusters[ci]
		x, y, z := adjacency.IndexToXYZ(res.Mask.VoxelIndex(c.Rep()), res.Mask.Dims())
		fmt.Printf("%-8d %-8d %-8.4f (%d,%d,%d)\n", i+1, c.Size(), c.TDP, x, y, z)
	}
	if len(clusters) == 0 {
		fmt.Println("(none)")
	}

	// Export the gradient map as image slices if requested
	if *extractSlices {
		fmt.Println("\nExtracting gradient map slices along all axes...")

		viewer, err := visualization.NewViewer(res.GradientMap, res.Mask.Dims())
		if err != nil {
			logger.Fatal("viewer setup failed", zap.Error(err))
		}
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(*slicesDir, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)

			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				logger.Warn("slice export failed",
					zap.String("axis", axis), zap.Error(err))
			}
		}
		fmt.Println("Slice extraction completed!")
	}
}

// newLogger builds the process logger: production JSON output by default,
// development console output in verbose mode.
func newLogger(verbose bool) *zap.Logger {
	var logCfg zap.Config
	if verbose {
		logCfg = zap.NewDevelopmentConfig()
	} else {
		logCfg = zap.NewProductionConfig()
	}
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// demoVolume builds a synthetic 24x24x12 z-map with two gaussian activation
// blobs of different strength inside an ellipsoid mask.
func demoVolume() (*models.StatMap, []bool) {
	const w, h, d = 24, 24, 12
	dims := adjacency.Dims{w, h, d}

	data := make([]float64, dims.Len())
	inMask := make([]bool, dims.Len())

	blob := func(x, y, z int, cx, cy, cz, peak, sigma float64) float64 {
		dx, dy, dz := float64(x)-cx, float64(y)-cy, float64(z)-cz
		return peak * math.Exp(-(dx*dx+dy*dy+dz*dz)/(2*sigma*sigma))
	}

	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := adjacency.XYZToIndex(x, y, z, dims)

				ex := (float64(x) - 11.5) / 11.5
				ey := (float64(y) - 11.5) / 11.5
				ez := (float64(z) - 5.5) / 5.5
				inMask[i] = ex*ex+ey*ey+ez*ez <= 1

				data[i] = blob(x, y, z, 7, 7, 6, 7.5, 2.5) +
					blob(x, y, z, 17, 16, 5, 5.5, 2.0)
			}
		}
	}

	return &models.StatMap{
		Data:  data,
		Width: w, Height: h, Depth: d,
		Kind: models.KindZ,
		Name: "demo",
	}, inMask
}
