package covgraph

import (
	"sync/atomic"

	"github.com/martinghunt/gramtools/prg"
)

// BubbleEntry maps a bubble's start node to its end node.
type BubbleEntry struct {
	Start NodeID
	End   NodeID
}

// NodeAccess is one entry of the random-access array: the node containing a
// given PRG-string position, the offset of that position within the node,
// and (if the preceding PRG element was a marker) the variant locus it
// identified.
type NodeAccess struct {
	Node      NodeID
	Offset    int
	HasTarget bool
	Target    prg.VariantLocus
}

// TransitionKind classifies what crossing into a TargetedMarker means for a
// search path: whether the target marker opens a site, separates two
// alleles, or closes a site.
type TransitionKind int

const (
	TransitionSiteEntry TransitionKind = iota
	TransitionAlleleEnd
	TransitionSiteExit
)

// TargetedMarker is one entry of the target map: a marker reachable from
// another marker during backward search, the (site, allele) locus implied
// by crossing into it, its transition kind, and an optional direct-deletion
// allele hint.
type TargetedMarker struct {
	ID                   prg.Marker
	Kind                 TransitionKind
	Locus                prg.VariantLocus
	DirectDeletionAllele AlleleID // AlleleUnknown unless this is a direct deletion.
}

// Graph is the coverage graph: a DAG of Nodes plus the four indexes used by
// mapping and genotyping. It is built once by Build and is immutable
// thereafter except for per-node Coverage counters.
type Graph struct {
	nodes []Node
	Root  NodeID

	// BubbleMap maps each bubble's start node to its end node. Ordered so
	// that innermost/rightmost bubbles come first: recursion-free
	// serialization and bottom-up genotyping both depend on this order.
	BubbleMap []BubbleEntry

	// ParentalMap maps a (nested) site marker to the variant locus of its
	// immediate containing site. Only populated for nested sites.
	ParentalMap map[prg.Marker]prg.VariantLocus

	// RandomAccess has one entry per PRG-string position.
	RandomAccess []NodeAccess

	// TargetMap maps a marker to the markers reachable from it, used by the
	// search engine to fork states at variant boundaries.
	TargetMap map[prg.Marker][]TargetedMarker

	IsNested bool
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) *Node { return &g.nodes[id] }

// NumNodes returns the number of nodes in the graph's arena.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// IncrementCoverage atomically adds 1 to node id's per-base coverage
// counter at offset, safe to call concurrently from many mapping
// goroutines against the same Graph.
func (g *Graph) IncrementCoverage(id NodeID, offset int) {
	atomic.AddUint64(&g.nodes[id].Coverage[offset], 1)
}

// Equal reports whether g and other are structurally identical: same node
// sequences, site/allele identities, and successor structure by sequence
// rather than by NodeID/pointer identity. Only the nested flag, the node
// count and the node structure reachable from Root are compared; the bubble
// map, parental map, random-access array and target map are not.
func (g *Graph) Equal(other *Graph) bool {
	if g.IsNested != other.IsNested {
		return false
	}
	if len(g.nodes) != len(other.nodes) {
		return false
	}
	return nodesEqual(g, g.Root, other, other.Root, map[[2]NodeID]bool{})
}

func nodesEqual(g *Graph, a NodeID, other *Graph, b NodeID, seen map[[2]NodeID]bool) bool {
	key := [2]NodeID{a, b}
	if seen[key] {
		return true
	}
	seen[key] = true

	na, nb := g.Node(a), other.Node(b)
	if na.Site != nb.Site || na.Allele != nb.Allele || na.IsBoundary != nb.IsBoundary {
		return false
	}
	if len(na.Sequence) != len(nb.Sequence) {
		return false
	}
	for i := range na.Sequence {
		if na.Sequence[i] != nb.Sequence[i] {
			return false
		}
	}
	if len(na.Next) != len(nb.Next) {
		return false
	}
	for i := range na.Next {
		if !nodesEqual(g, na.Next[i], other, nb.Next[i], seen) {
			return false
		}
	}
	return true
}
