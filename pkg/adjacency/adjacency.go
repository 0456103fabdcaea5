// Package adjacency converts a 3D voxel mask into a per-voxel neighbour list.
//
// The mask assigns every in-mask voxel a 1-based id in scan order (0 marks a
// voxel outside the mask), and neighbours are reported as 0-based in-mask ids
// under a 6-, 18- or 26-connectivity criterion. The offset table is ordered
// face/edge/corner so that any prefix of it is itself a valid connectivity.
package adjacency

import (
	"fmt"
)

// Dims holds the volume dimensions (Dx, Dy, Dz).
type Dims [3]int

// Len returns the total number of voxels in the volume.
func (d Dims) Len() int {
	return d[0] * d[1] * d[2]
}

// XYZToIndex maps (x,y,z) coordinates to a linear voxel index under the
// fixed x-fastest convention: index = z*Dx*Dy + y*Dx + x.
func XYZToIndex(x, y, z int, d Dims) int {
	return z*d[1]*d[0] + y*d[0] + x
}

// IndexToXYZ is the inverse of XYZToIndex for all in-bounds indices.
func IndexToXYZ(index int, d Dims) (x, y, z int) {
	x = index % d[0]
	y = (index / d[0]) % d[1]
	z = index / (d[0] * d[1])
	return x, y, z
}

// IndicesToXYZ converts several linear voxel indices to an n×3 coordinate
// matrix.
func IndicesToXYZ(ids []int, d Dims) [][3]int {
	xyzs := make([][3]int, len(ids))
	for i, id := range ids {
		x, y, z := IndexToXYZ(id, d)
		xyzs[i] = [3]int{x, y, z}
	}
	return xyzs
}

// Connectivity is the neighbourhood criterion for voxel adjacency:
// 6 (faces), 18 (faces+edges) or 26 (faces+edges+corners).
type Connectivity int

const (
	Conn6  Connectivity = 6
	Conn18 Connectivity = 18
	Conn26 Connectivity = 26
)

// Validate reports an error for any value other than 6, 18 or 26.
func (c Connectivity) Validate() error {
	switch c {
	case Conn6, Conn18, Conn26:
		return nil
	default:
		return fmt.Errorf("adjacency: invalid connectivity %d (must be 6, 18 or 26)", int(c))
	}
}

// offsets lists the 26 neighbour displacements grouped face (6), edge (12),
// corner (8), so offsets[:conn] yields the requested neighbourhood.
var offsets = [26][3]int{
	{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1},
	{1, 1, 0}, {-1, 1, 0}, {1, -1, 0}, {-1, -1, 0}, {1, 0, 1}, {-1, 0, 1},
	{1, 0, -1}, {-1, 0, -1}, {0, 1, 1}, {0, -1, 1}, {0, 1, -1}, {0, -1, -1},
	{1, 1, 1}, {-1, 1, 1}, {1, -1, 1}, {-1, -1, 1}, {1, 1, -1}, {-1, 1, -1},
	{1, -1, -1}, {-1, -1, -1},
}

// Mask is a 3D voxel mask with a per-voxel 1-based id assigned in scan order.
// The zero id is the sentinel for voxels outside the mask.
type Mask struct {
	dims Dims

	// ids holds, for every voxel of the volume, its 1-based in-mask id,
	// or 0 if the voxel is outside the mask
	ids []int32

	// index maps a 0-based in-mask id back to its linear voxel index,
	// ascending by construction
	index []int
}

// NewMask builds a Mask from a flat boolean grid laid out x-fastest.
// In-mask voxels receive ids 1..m in ascending scan order.
func NewMask(inMask []bool, dims Dims) (*Mask, error) {
	if len(inMask) != dims.Len() {
		return nil, fmt.Errorf("adjacency: mask has %d voxels, dimensions %v require %d",
			len(inMask), dims, dims.Len())
	}

	m := &Mask{
		dims: dims,
		ids:  make([]int32, len(inMask)),
	}
	for i, in := range inMask {
		if in {
			m.index = append(m.index, i)
			m.ids[i] = int32(len(m.index)) // 1-based
		}
	}
	if len(m.index) == 0 {
		return nil, fmt.Errorf("adjacency: mask is empty")
	}
	return m, nil
}

// Dims returns the volume dimensions.
func (m *Mask) Dims() Dims { return m.dims }

// NumVoxels returns the number of in-mask voxels.
func (m *Mask) NumVoxels() int { return len(m.index) }

// VoxelIndex returns the linear voxel index of the in-mask voxel with
// 0-based id v.
func (m *Mask) VoxelIndex(v int) int { return m.index[v] }

// VoxelIndices returns the linear voxel indices of all in-mask voxels, in
// ascending id order. The returned slice is shared and must not be modified.
func (m *Mask) VoxelIndices() []int { return m.index }

// Contains reports whether (x,y,z) is in-bounds and inside the mask.
func (m *Mask) Contains(x, y, z int) bool {
	if x < 0 || x >= m.dims[0] || y < 0 || y >= m.dims[1] || z < 0 || z >= m.dims[2] {
		return false
	}
	return m.ids[XYZToIndex(x, y, z, m.dims)] != 0
}

// NodeAt returns the 0-based in-mask id of the voxel at (x,y,z), or -1 if
// the coordinate is out of bounds or outside the mask.
func (m *Mask) NodeAt(x, y, z int) int {
	if !m.Contains(x, y, z) {
		return -1
	}
	return int(m.ids[XYZToIndex(x, y, z, m.dims)]) - 1
}

// FindNeighbours returns the 0-based in-mask ids of all valid neighbours of
// the in-mask voxel v under the given connectivity. Neighbours outside the
// volume bounds or outside the mask are dropped. An invalid connectivity
// yields no neighbours.
func (m *Mask) FindNeighbours(v int, conn Connectivity) []int {
	if conn.Validate() != nil {
		return nil
	}
	x, y, z := IndexToXYZ(m.index[v], m.dims)

	ids := make([]int, 0, int(conn))
	for _, off := range offsets[:conn] {
		nx, ny, nz := x+off[0], y+off[1], z+off[2]
		if !m.Contains(nx, ny, nz) {
			continue
		}
		ids = append(ids, int(m.ids[XYZToIndex(nx, ny, nz, m.dims)])-1)
	}
	return ids
}

// BuildAdjList computes the adjacency list for all in-mask voxels: entry v
// holds the 0-based ids of v's in-mask neighbours. Cost is O(m*conn).
func (m *Mask) BuildAdjList(conn Connectivity) ([][]int, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}

	adj := make([][]int, m.NumVoxels())
	for v := range adj {
		adj[v] = m.FindNeighbours(v, conn)
	}
	return adj, nil
}
