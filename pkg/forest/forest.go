// Package forest builds the cluster forest of a masked statistical map: the
// nested family of supra-threshold clusters obtained by merging voxels in
// ascending p-value order along the adjacency structure.
//
// Every node of the forest is identified with the in-mask voxel at which its
// cluster first forms, so node ids coincide with 0-based in-mask voxel ids.
// Child lists keep the heaviest child (largest subtree) in front, which
// decomposes the forest into heavy paths and lets per-node quantities be
// computed in O(m log m) overall.
package forest

import (
	"fmt"
)

// Forest is the cluster forest over m in-mask voxels.
type Forest struct {
	// Size[v] is the number of nodes in the subtree rooted at v
	Size []int

	// Child[v] lists the children of v with the heaviest child first
	Child [][]int

	// Roots lists the forest roots in ascending node order
	Roots []int
}

// Build constructs the cluster forest from the voxel adjacency list and the
// ascending p-value order. ord[i] is the node with the i-th smallest p-value
// and rank is its inverse permutation. Nodes are merged with the disjoint-set
// union-by-size technique, augmented to track the forest root of every
// component.
func Build(adj [][]int, ord, rank []int) (*Forest, error) {
	m := len(adj)
	if m == 0 {
		return nil, fmt.Errorf("forest: empty adjacency list")
	}
	if len(ord) != m || len(rank) != m {
		return nil, fmt.Errorf("forest: order has %d entries and rank %d, adjacency requires %d",
			len(ord), len(rank), m)
	}

	f := &Forest{
		Size:  make([]int, m),
		Child: make([][]int, m),
	}
	parent := make([]int, m)
	forestRoot := make([]int, m)
	for i := 0; i < m; i++ {
		f.Size[i] = 1
		parent[i] = i
		forestRoot[i] = i
	}

	// Child list of the node currently being absorbed, heaviest in front.
	var chd []int

	for i := 0; i < m; i++ {
		v := ord[i]

		for _, w := range adj[v] {
			// Only neighbours with a smaller p-value rank have been
			// merged already.
			if rank[w] >= i {
				continue
			}
			wrep := find(w, parent)
			wroot := forestRoot[wrep]
			if v == wroot {
				continue
			}

			unionBySize(v, wrep, parent, forestRoot, f.Size)

			if len(chd) == 0 || f.Size[chd[0]] >= f.Size[wroot] {
				chd = append(chd, wroot)
			} else {
				chd = append(chd, 0)
				copy(chd[1:], chd)
				chd[0] = wroot
			}
		}

		if len(chd) > 0 {
			f.Child[v] = make([]int, len(chd))
			copy(f.Child[v], chd)
			chd = chd[:0]
		}
	}

	for i := 0; i < m; i++ {
		if parent[i] == i {
			f.Roots = append(f.Roots, forestRoot[i])
		}
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// validate checks the structural invariants of the forest: subtree sizes are
// consistent with the child lists and the root subtrees partition all nodes.
func (f *Forest) validate() error {
	m := len(f.Size)
	for v := 0; v < m; v++ {
		sum := 1
		for _, c := range f.Child[v] {
			sum += f.Size[c]
		}
		if sum != f.Size[v] {
			return fmt.Errorf("forest: node %d has subtree size %d but children sum to %d",
				v, f.Size[v], sum)
		}
		if len(f.Child[v]) > 1 && f.Size[f.Child[v][0]] < f.Size[f.Child[v][1]] {
			return fmt.Errorf("forest: node %d does not keep its heaviest child in front", v)
		}
	}

	total := 0
	for _, r := range f.Roots {
		total += f.Size[r]
	}
	if total != m {
		return fmt.Errorf("forest: root subtrees cover %d of %d nodes", total, m)
	}
	return nil
}

// NumNodes returns the number of nodes in the forest.
func (f *Forest) NumNodes() int { return len(f.Size) }

// descFrame is one entry of the Descendants traversal stack. A node is
// pushed pending, re-pushed expanded once its children are on the stack, and
// emitted when its expanded frame is popped.
type descFrame struct {
	node     int
	expanded bool
}

// Descendants returns the nodes of the subtree rooted at v in post-order,
// ending with v itself. The traversal is iterative over a stack of
// explicitly tagged frames.
func (f *Forest) Descendants(v int) []int {
	desc := make([]int, 0, f.Size[v])
	stack := make([]descFrame, 0, f.Size[v])
	stack = append(stack, descFrame{node: v})

	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if fr.expanded {
			// All children of the node are emitted, so emit it.
			desc = append(desc, fr.node)
			continue
		}

		stack = append(stack, descFrame{node: fr.node, expanded: true})
		chd := f.Child[fr.node]
		for j := len(chd) - 1; j >= 0; j-- {
			stack = append(stack, descFrame{node: chd[j]})
		}
	}

	return desc
}

// HeavyChild returns the child of v with the largest subtree, or -1 when v
// is a leaf.
func (f *Forest) HeavyChild(v int) int {
	if len(f.Child[v]) == 0 {
		return -1
	}
	return f.Child[v][0]
}

// LocalMinima returns all leaves of the forest in ascending node order.
// A leaf is a voxel whose p-value is a local minimum of the map: no
// neighbour has a smaller p-value rank.
func (f *Forest) LocalMinima() []int {
	var lms []int
	for v := range f.Child {
		if len(f.Child[v]) == 0 {
			lms = append(lms, v)
		}
	}
	return lms
}

// find returns the representative of i with path halving.
func find(i int, parent []int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}

// unionBySize merges the component of node i with the component whose
// representative is jrep, keeping the forest root of i's component as the
// root of the union. Sizes are accumulated on the forest roots.
func unionBySize(i, jrep int, parent, forestRoot, size []int) {
	irep := find(i, parent)
	if irep == jrep {
		return
	}

	iroot := forestRoot[irep]
	jroot := forestRoot[jrep]
	if size[iroot] < size[jroot] {
		parent[irep] = jrep
		forestRoot[jrep] = iroot
	} else {
		parent[jrep] = irep
	}
	size[iroot] += size[jroot]
}

// CountingSortDesc sorts the indices 0..n-1 in descending order of their
// sizes in O(n + max). Ties appear in descending index order, so the result
// is deterministic.
func CountingSortDesc(sizes []int, max int) []int {
	n := len(sizes)
	sorted := make([]int, n)
	count := make([]int, max+1)

	for _, s := range sizes {
		count[s]++
	}
	for i := max; i > 0; i-- {
		count[i-1] += count[i]
	}
	for i := 0; i < n; i++ {
		sorted[count[sizes[i]]-1] = i
		count[sizes[i]]--
	}
	return sorted
}
