package models

// MapKind identifies the statistic stored in a StatMap.
type MapKind int

const (
	// KindP means the map already contains p-values.
	KindP MapKind = iota

	// KindZ means the map contains z-scores.
	KindZ

	// KindT means the map contains t-values; the degrees of freedom must
	// accompany the map for the conversion to p-values.
	KindT
)

// String returns the short statistic label used in logs and reports.
func (k MapKind) String() string {
	switch k {
	case KindP:
		return "p"
	case KindZ:
		return "z"
	case KindT:
		return "t"
	default:
		return "unknown"
	}
}

// StatMap represents a 3D statistical volume with metadata
type StatMap struct {
	// Data is the 3D volume data as a 1D array, x-fastest (x + y*Dx + z*Dx*Dy)
	Data []float64

	// Width, Height and Depth are the volume dimensions in voxels (Dx, Dy, Dz)
	Width, Height, Depth int

	// Kind indicates how Data should be interpreted (p-values, z-scores
	// or t-values)
	Kind MapKind

	// DegreesOfFreedom applies to KindT maps; zero means "use the normal
	// approximation"
	DegreesOfFreedom float64

	// Name is an optional label for the map, used in logs and reports
	Name string
}

// Len returns the total number of voxels in the volume.
func (s *StatMap) Len() int {
	return s.Width * s.Height * s.Depth
}
