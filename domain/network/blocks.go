package network

import (
	"fmt"
)

// BlockType distinguishes within-network from between-network blocks
type BlockType string

const (
	Intra BlockType = "intra"
	Inter BlockType = "inter"
)

// ParseBlockType accepts "intra" or "inter"
func ParseBlockType(s string) (BlockType, error) {
	switch BlockType(s) {
	case Intra, Inter:
		return BlockType(s), nil
	}
	return "", fmt.Errorf("unknown block type %q", s)
}

// Block is one aggregation unit. For intra blocks A == B and the edges are all
// unordered pairs inside A; for inter blocks the edges are A x B.
type Block struct {
	Type  BlockType
	Name  string
	NetA  string
	NetB  string
	ROIsA []int
	ROIsB []int
}

// Pair is one edge of a block as 0-based ROI indices
type Pair struct {
	I, J int
}

// Pairs enumerates the block's edges. Intra pairs follow upper-triangle
// order of the member list; inter pairs are row-major over A x B.
func (b Block) Pairs() []Pair {
	if b.Type == Intra {
		n := len(b.ROIsA)
		out := make([]Pair, 0, n*(n-1)/2)
		for x := 0; x < n; x++ {
			for y := x + 1; y < n; y++ {
				out = append(out, Pair{I: b.ROIsA[x], J: b.ROIsA[y]})
			}
		}
		return out
	}
	out := make([]Pair, 0, len(b.ROIsA)*len(b.ROIsB))
	for _, i := range b.ROIsA {
		for _, j := range b.ROIsB {
			out = append(out, Pair{I: i, J: j})
		}
	}
	return out
}

// EdgeCount is len(Pairs()) without allocating
func (b Block) EdgeCount() int {
	if b.Type == Intra {
		n := len(b.ROIsA)
		return n * (n - 1) / 2
	}
	return len(b.ROIsA) * len(b.ROIsB)
}

// BuildBlocks derives every block from the mapping: one intra block per
// network with at least two ROIs, then one inter block per unordered pair of
// distinct networks, both in sorted network order.
func BuildBlocks(m *Mapping) []Block {
	nets := m.Networks()
	members := m.Members()

	var blocks []Block
	for _, net := range nets {
		if len(members[net]) < 2 {
			continue
		}
		blocks = append(blocks, Block{
			Type:  Intra,
			Name:  Short(net),
			NetA:  net,
			NetB:  net,
			ROIsA: members[net],
			ROIsB: members[net],
		})
	}
	for i, a := range nets {
		for _, b := range nets[i+1:] {
			blocks = append(blocks, Block{
				Type:  Inter,
				Name:  Short(a) + "-" + Short(b),
				NetA:  a,
				NetB:  b,
				ROIsA: members[a],
				ROIsB: members[b],
			})
		}
	}
	return blocks
}

// Split separates blocks by type, preserving order
func Split(blocks []Block) (intra, inter []Block) {
	for _, b := range blocks {
		if b.Type == Intra {
			intra = append(intra, b)
		} else {
			inter = append(inter, b)
		}
	}
	return intra, inter
}
