// Package covgraph builds and represents the coverage graph: a DAG of
// sequence nodes with per-base coverage slots, derived from a single
// left-to-right pass over a prg.String. It also builds the four indexes
// mapping are used by read mapping and genotyping: the bubble map, the
// parental map, the random-access array, and the target map.
package covgraph

import (
	"github.com/martinghunt/gramtools/prg"
)

// AlleleID identifies which allele of a site a node belongs to.
type AlleleID = uint32

// AlleleUnknown is the sentinel AlleleID for nodes outside any site
// (boundary nodes and plain sequence nodes).
const AlleleUnknown AlleleID = ^uint32(0)

// NodeID is a stable index into a Graph's node arena. Every back-reference
// in the bubble map, parental map, random-access array, and target map is
// expressed as a NodeID rather than a pointer, so the graph can be built
// once in an arena and serialized without pointer-chasing.
type NodeID int32

// noNode is the sentinel NodeID meaning "no node".
const noNode NodeID = -1

// Node is one vertex of the coverage graph: a (possibly empty) run of
// sequence, the site/allele it belongs to (or AlleleUnknown), its original
// position in the PRG string, a per-base coverage counter vector, and its
// outgoing edges.
type Node struct {
	Sequence []prg.Base
	Site     prg.Marker
	Allele   AlleleID

	// Pos is the position of the node's first base in the original PRG
	// string. Boundary nodes (empty sequence) carry the position of the
	// marker that created them.
	Pos int

	// Coverage holds one counter per base in Sequence. Incremented by
	// quasimap during mapping; all other fields are immutable after
	// construction.
	Coverage []uint64

	IsBoundary bool
	Next       []NodeID
}

// HasSequence reports whether the node carries any bases.
func (n *Node) HasSequence() bool { return len(n.Sequence) != 0 }

// IsInBubble reports whether the node belongs to a site (as opposed to
// being a boundary node or unattached plain sequence).
func (n *Node) IsInBubble() bool { return n.Allele != AlleleUnknown && n.Site != 0 }

// IsBubbleStart reports whether the node is the start of a bubble: no
// sequence, and more than one successor.
func (n *Node) IsBubbleStart() bool { return len(n.Sequence) == 0 && len(n.Next) > 1 }

// IsBubbleEnd reports whether the node is the end of a bubble: no
// sequence, exactly one successor.
func (n *Node) IsBubbleEnd() bool { return len(n.Sequence) == 0 && len(n.Next) == 1 }
