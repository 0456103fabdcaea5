// Package visualization renders slices of an analysis volume, such as the
// gradient map, to grayscale images for inspection outside the host
// application.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"aricluster/pkg/adjacency"
)

// Viewer extracts 2D slices from a flat volume of values in [0,1], laid out
// x-fastest like the analysis volumes.
type Viewer struct {
	data []float64
	dims adjacency.Dims
}

// NewViewer creates a viewer over a flat volume.
func NewViewer(data []float64, dims adjacency.Dims) (*Viewer, error) {
	if len(data) != dims.Len() {
		return nil, fmt.Errorf("visualization: volume has %d values, dimensions %v require %d",
			len(data), dims, dims.Len())
	}
	return &Viewer{data: data, dims: dims}, nil
}

// ExtractSlice extracts a 2D grayscale slice along the specified axis.
// Values are clamped to [0,1] and scaled to the full 16-bit range.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("visualization: position must be non-negative")
	}
	w, h, d := v.dims[0], v.dims[1], v.dims[2]

	var img *image.Gray16

	switch axis {
	case "x", "X":
		// Slice along the YZ plane
		if position >= w {
			return nil, fmt.Errorf("visualization: position %d exceeds width %d", position, w)
		}
		img = image.NewGray16(image.Rect(0, 0, d, h))
		for y := 0; y < h; y++ {
			for z := 0; z < d; z++ {
				img.SetGray16(z, y, v.gray(position, y, z))
			}
		}

	case "y", "Y":
		// Slice along the XZ plane
		if position >= h {
			return nil, fmt.Errorf("visualization: position %d exceeds height %d", position, h)
		}
		img = image.NewGray16(image.Rect(0, 0, w, d))
		for z := 0; z < d; z++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, z, v.gray(x, position, z))
			}
		}

	case "z", "Z":
		// Slice along the XY plane
		if position >= d {
			return nil, fmt.Errorf("visualization: position %d exceeds depth %d", position, d)
		}
		img = image.NewGray16(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, y, v.gray(x, y, position))
			}
		}

	default:
		return nil, fmt.Errorf("visualization: invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

func (v *Viewer) gray(x, y, z int) color.Gray16 {
	val := v.data[adjacency.XYZToIndex(x, y, z, v.dims)]
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, val*65535)))}
}

// SaveSlice saves an extracted slice as a JPEG image.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.dims[0]
	case "y", "Y":
		maxPos = v.dims[1]
	case "z", "Z":
		maxPos = v.dims[2]
	default:
		return fmt.Errorf("visualization: invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
