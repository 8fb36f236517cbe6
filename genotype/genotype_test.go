package genotype_test

import (
	"testing"

	"github.com/grailbio/testutil/assert"

	"github.com/martinghunt/gramtools/covgraph"
	"github.com/martinghunt/gramtools/genotype"
	"github.com/martinghunt/gramtools/prg"
	"github.com/martinghunt/gramtools/readstats"
)

func TestCallSiteHaploidObviousWinner(t *testing.T) {
	stats := genotype.NewStats(okStats(), 1)
	counts := []genotype.AlleleGroupCount{
		{Alleles: []uint32{1}, Count: 30},
		{Alleles: []uint32{2}, Count: 1},
	}
	profiles := []genotype.AlleleCoverageProfile{
		{Length: 20, CredibleBases: 20}, // allele 1: fully credible
		{Length: 20, CredibleBases: 0},  // allele 2: no credible coverage
	}
	call := genotype.CallSite(5, 2, counts, profiles, stats, 1)
	assert.False(t, call.Null)
	assert.EQ(t, len(call.Genotype), 1)
	assert.EQ(t, call.Genotype[0], uint32(1))
	assert.True(t, call.Confidence > 0)
}

func TestCallSiteZeroCoverageIsNull(t *testing.T) {
	stats := genotype.NewStats(okStats(), 1)
	call := genotype.CallSite(5, 2, nil, nil, stats, 1)
	assert.True(t, call.Null)
}

func TestCallSiteHeterozygousWithSingletons(t *testing.T) {
	stats := genotype.NewStats(okStats(), 1)
	counts := []genotype.AlleleGroupCount{
		{Alleles: []uint32{1}, Count: 15},
		{Alleles: []uint32{2}, Count: 15},
	}
	profiles := []genotype.AlleleCoverageProfile{
		{Length: 10, CredibleBases: 10},
		{Length: 10, CredibleBases: 10},
	}
	call := genotype.CallSite(5, 2, counts, profiles, stats, 2)
	assert.False(t, call.Null)
	assert.EQ(t, len(call.Genotype), 2)
}

func TestBuildCoverageProfilesCountsCredibleBases(t *testing.T) {
	ps, err := prg.FromText("AAAA[CC,GG]TTTT")
	assert.NoError(t, err)
	g, err := covgraph.Build(ps)
	assert.NoError(t, err)

	var entry covgraph.BubbleEntry
	for _, e := range g.BubbleMap {
		entry = e
	}
	start := g.Node(entry.Start)
	// allele 1 ("CC") gets credible coverage on both bases; allele 2 ("GG")
	// gets none.
	allele1 := g.Node(start.Next[0])
	for offset := range allele1.Coverage {
		g.IncrementCoverage(start.Next[0], offset)
	}

	profiles := genotype.BuildCoverageProfiles(g, entry, 1)
	assert.EQ(t, len(profiles), 2)
	assert.EQ(t, profiles[0].Length, 2)
	assert.EQ(t, profiles[0].CredibleBases, 2)
	assert.EQ(t, profiles[1].Length, 2)
	assert.EQ(t, profiles[1].CredibleBases, 0)
}

func TestInvalidateNestedCallsUnderUncalledParentAllele(t *testing.T) {
	ps, err := prg.FromText("AATAA[CCC[A,G],T]AA")
	assert.NoError(t, err)
	g, err := covgraph.Build(ps)
	assert.NoError(t, err)

	var parentSite, childSite prg.Marker
	for site, parent := range g.ParentalMap {
		childSite = site
		parentSite = parent.Site
	}

	calls := map[prg.Marker]*genotype.Call{
		parentSite: {Site: parentSite, Genotype: []uint32{2}}, // called allele 2 (T), not the nested allele 1
		childSite:  {Site: childSite, Genotype: []uint32{1}},
	}
	genotype.InvalidateNestedCalls(calls, g)
	assert.True(t, calls[childSite].Null)
}

func okStats() readstats.Stats {
	return readstats.Stats{MeanDepth: 30, MeanBaseError: 0.01}
}
