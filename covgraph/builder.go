package covgraph

import (
	"github.com/biogo/store/llrb"
	"github.com/pkg/errors"

	"github.com/martinghunt/gramtools/prg"
)

const unsetPos = -1

// builder is the single-pass construction state described in spec 4.C:
// curNode tracks the node currently being filled, bubbleStarts/
// bubbleEnds wire up each site's boundary nodes, and openSites/alleleOrd
// track where in the nesting tree the pass currently is.
type builder struct {
	nodes []Node

	curNode NodeID

	bubbleStarts map[prg.Marker]NodeID
	bubbleEnds   map[prg.Marker]NodeID
	alleleOrd    map[prg.Marker]uint32

	openSites []prg.Marker // stack; top is the innermost currently-open site
	parentMap map[prg.Marker]prg.VariantLocus

	randomAccess []NodeAccess

	pendingTarget   prg.VariantLocus
	hasPendingTarget bool
}

func (b *builder) newNode(site prg.Marker, allele AlleleID, boundary bool) NodeID {
	b.nodes = append(b.nodes, Node{
		Site:       site,
		Allele:     allele,
		Pos:        unsetPos,
		IsBoundary: boundary,
	})
	return NodeID(len(b.nodes) - 1)
}

func (b *builder) node(id NodeID) *Node { return &b.nodes[id] }

// currentLocus returns the innermost open site's locus, or (0, AlleleUnknown)
// if nothing is open.
func (b *builder) currentLocus() prg.VariantLocus {
	if len(b.openSites) == 0 {
		return prg.VariantLocus{Site: 0, Allele: AlleleUnknown}
	}
	site := b.openSites[len(b.openSites)-1]
	return prg.VariantLocus{Site: site, Allele: b.alleleOrd[site]}
}

// Build constructs a Graph from ps by a single left-to-right pass, followed
// by a second pass building the target map.
func Build(ps *prg.String) (*Graph, error) {
	if ps.Len() == 0 {
		return nil, errors.New("cannot build coverage graph over empty prg")
	}

	b := &builder{
		bubbleStarts: map[prg.Marker]NodeID{},
		bubbleEnds:   map[prg.Marker]NodeID{},
		alleleOrd:    map[prg.Marker]uint32{},
		parentMap:    map[prg.Marker]prg.VariantLocus{},
		randomAccess: make([]NodeAccess, ps.Len()),
	}
	root := b.newNode(0, AlleleUnknown, false)
	b.curNode = root

	isNested := false
	open := map[prg.Marker]bool{}

	for pos, e := range ps.Elements() {
		target, hasTarget := b.pendingTarget, b.hasPendingTarget
		b.hasPendingTarget = false

		switch {
		case prg.IsBase(e):
			n := b.node(b.curNode)
			if n.Pos == unsetPos {
				n.Pos = pos
			}
			n.Sequence = append(n.Sequence, e)
			n.Coverage = append(n.Coverage, 0)
			b.randomAccess[pos] = NodeAccess{Node: b.curNode, Offset: len(n.Sequence) - 1, HasTarget: hasTarget, Target: target}

		case prg.IsAlleleMarker(e):
			site := prg.SiteMarkerOf(e)
			if !open[site] {
				return nil, &prg.ParseError{Pos: pos, Reason: "allele marker for a site that is not open"}
			}
			// Close the current allele.
			end := b.bubbleEnds[site]
			b.node(b.curNode).Next = append(b.node(b.curNode).Next, end)

			// Start the next allele.
			b.alleleOrd[site]++
			next := b.newNode(site, b.alleleOrd[site], false)
			start := b.bubbleStarts[site]
			b.node(start).Next = append(b.node(start).Next, next)
			b.curNode = next

			b.randomAccess[pos] = NodeAccess{Node: next, HasTarget: hasTarget, Target: target}
			b.pendingTarget = prg.VariantLocus{Site: site, Allele: b.alleleOrd[site]}
			b.hasPendingTarget = true

		default: // site marker: entry or exit
			site := e
			if !open[site] {
				// Site entry.
				open[site] = true
				b.openSites = append(b.openSites, site)
				if len(b.openSites) > 1 {
					isNested = true
					parent := b.openSites[len(b.openSites)-2]
					b.parentMap[site] = prg.VariantLocus{Site: parent, Allele: b.alleleOrd[parent]}
				}

				start := b.newNode(0, AlleleUnknown, true)
				end := b.newNode(0, AlleleUnknown, true)
				b.node(start).Pos = pos
				b.bubbleStarts[site] = start
				b.bubbleEnds[site] = end
				b.node(b.curNode).Next = append(b.node(b.curNode).Next, start)

				b.alleleOrd[site] = 1
				first := b.newNode(site, 1, false)
				b.node(start).Next = append(b.node(start).Next, first)
				b.curNode = first

				b.randomAccess[pos] = NodeAccess{Node: first, HasTarget: hasTarget, Target: target}
				b.pendingTarget = prg.VariantLocus{Site: site, Allele: 1}
				b.hasPendingTarget = true
			} else {
				// Site exit: close the final allele to the bubble end.
				open[site] = false
				b.openSites = b.openSites[:len(b.openSites)-1]
				end := b.bubbleEnds[site]
				b.node(end).Pos = pos
				b.node(b.curNode).Next = append(b.node(b.curNode).Next, end)

				next := b.newNode(0, AlleleUnknown, false)
				b.node(end).Next = append(b.node(end).Next, next)
				b.curNode = next

				b.randomAccess[pos] = NodeAccess{Node: next, HasTarget: hasTarget, Target: target}
				// No new locus is entered by exiting; whatever follows belongs
				// to the (possibly absent) parent context.
			}
		}
	}
	if len(b.openSites) != 0 {
		return nil, &prg.ParseError{Pos: ps.Len(), Reason: "site never closed while building coverage graph"}
	}

	targetMap, err := buildTargetMap(ps)
	if err != nil {
		return nil, err
	}

	// Bubble map ordered rightmost/innermost first: a nested site always
	// opens (its site-entry marker appears) after its containing site does,
	// so descending order of each bubble's start-node position puts every
	// child ahead of its parent, and every bubble ahead of the bubbles that
	// open further left.
	bubbleMap := make([]BubbleEntry, 0, len(b.bubbleStarts))
	for site, start := range b.bubbleStarts {
		bubbleMap = append(bubbleMap, BubbleEntry{Start: start, End: b.bubbleEnds[site]})
	}
	bubbleMap = sortBubblesChildrenFirst(bubbleMap, b)

	return &Graph{
		nodes:        b.nodes,
		Root:         root,
		BubbleMap:    bubbleMap,
		ParentalMap:  b.parentMap,
		RandomAccess: b.randomAccess,
		TargetMap:    targetMap,
		IsNested:     isNested,
	}, nil
}

// bubbleKey orders BubbleEntry values by their start node's PRG position,
// largest first, breaking ties by NodeID so no two distinct bubbles ever
// compare equal (required for llrb.Tree, which treats equal keys as the
// same node).
type bubbleKey struct {
	startPos int
	entry    BubbleEntry
}

func (k bubbleKey) Compare(other llrb.Comparable) int {
	o := other.(bubbleKey)
	if diff := o.startPos - k.startPos; diff != 0 {
		return diff
	}
	return int(k.entry.Start) - int(o.entry.Start)
}

// sortBubblesChildrenFirst orders entries descending by start-node PRG
// position via an llrb.Tree, an in-order traversal of which yields
// rightmost bubbles first and children before parents (see BubbleMap's doc
// comment).
func sortBubblesChildrenFirst(entries []BubbleEntry, b *builder) []BubbleEntry {
	var tree llrb.Tree
	for _, e := range entries {
		tree.Insert(bubbleKey{startPos: b.node(e.Start).Pos, entry: e})
	}
	out := make([]BubbleEntry, 0, len(entries))
	tree.Do(func(c llrb.Comparable) (done bool) {
		out = append(out, c.(bubbleKey).entry)
		return false
	})
	return out
}
