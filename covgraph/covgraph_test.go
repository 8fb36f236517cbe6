package covgraph_test

import (
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/martinghunt/gramtools/covgraph"
	"github.com/martinghunt/gramtools/prg"
)

func build(t *testing.T, text string) *covgraph.Graph {
	t.Helper()
	ps, err := prg.FromText(text)
	assert.NoError(t, err)
	g, err := covgraph.Build(ps)
	assert.NoError(t, err)
	return g
}

func TestSimpleBubble(t *testing.T) {
	g := build(t, "A[C,G]T")
	assert.EQ(t, len(g.BubbleMap), 1)
	start := g.Node(g.BubbleMap[0].Start)
	end := g.Node(g.BubbleMap[0].End)
	assert.True(t, start.IsBubbleStart())
	assert.True(t, end.IsBubbleEnd())
	assert.EQ(t, len(start.Next), 2)
}

func TestNestedChildrenBeforeParents(t *testing.T) {
	g := build(t, "AATAA[CCC[A,G],T]AA")
	assert.EQ(t, len(g.BubbleMap), 2)
	assert.True(t, g.IsNested)

	// The inner bubble's end node must come before the outer's in bubble-map
	// order (spec testable property: children before parents).
	innerEnd := g.Node(g.BubbleMap[0].End)
	outerEnd := g.Node(g.BubbleMap[1].End)
	assert.True(t, innerEnd.Pos < outerEnd.Pos)
}

func TestParentalMapPopulatedForNestedSiteOnly(t *testing.T) {
	g := build(t, "AATAA[CCC[A,G],T]AA")
	assert.EQ(t, len(g.ParentalMap), 1)
}

func TestDirectDeletion(t *testing.T) {
	g := build(t, "GGGGG[CCC,]GG")
	assert.EQ(t, len(g.BubbleMap), 1)
	start := g.Node(g.BubbleMap[0].Start)
	assert.EQ(t, len(start.Next), 2)
	var emptyAlleleSeen bool
	for _, nid := range start.Next {
		if !g.Node(nid).HasSequence() {
			emptyAlleleSeen = true
		}
	}
	assert.True(t, emptyAlleleSeen)
}

func TestGraphEqualReflexive(t *testing.T) {
	g1 := build(t, "AATAA[CCC[A,G],T]AA")
	g2 := build(t, "AATAA[CCC[A,G],T]AA")
	assert.True(t, g1.Equal(g1))
	assert.True(t, g1.Equal(g2))
}

func TestSerializeRoundTrip(t *testing.T) {
	g := build(t, "AATAA[CCC[A,G],T]AA")
	data, err := covgraph.Serialize(g)
	assert.NoError(t, err)
	g2, err := covgraph.Deserialize(data)
	assert.NoError(t, err)
	assert.True(t, g.Equal(g2))
}

func TestTargetMapHasDirectDeletionHint(t *testing.T) {
	ps, err := prg.FromText("GGGGG[CCC,]GG")
	assert.NoError(t, err)
	g, err := covgraph.Build(ps)
	assert.NoError(t, err)
	found := false
	for _, targets := range g.TargetMap {
		for _, tm := range targets {
			if tm.DirectDeletionAllele != covgraph.AlleleUnknown {
				found = true
			}
		}
	}
	assert.True(t, found)
}
