package quasimap_test

import (
	"testing"

	"github.com/grailbio/testutil/assert"

	"github.com/martinghunt/gramtools/covgraph"
	"github.com/martinghunt/gramtools/fmindex"
	"github.com/martinghunt/gramtools/kmerindex"
	"github.com/martinghunt/gramtools/prg"
	"github.com/martinghunt/gramtools/quasimap"
)

func bases(s string) []prg.Base {
	m := map[byte]prg.Base{'A': prg.BaseA, 'C': prg.BaseC, 'G': prg.BaseG, 'T': prg.BaseT}
	out := make([]prg.Base, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = m[s[i]]
	}
	return out
}

func build(t *testing.T, text string) (*fmindex.Index, *covgraph.Graph) {
	t.Helper()
	ps, err := prg.FromText(text)
	assert.NoError(t, err)
	idx, err := fmindex.Build(ps)
	assert.NoError(t, err)
	g, err := covgraph.Build(ps)
	assert.NoError(t, err)
	return idx, g
}

func TestMapReadIncrementsGroupedAlleleCount(t *testing.T) {
	idx, g := build(t, "AAAA[C,G]TTTT")
	m := quasimap.NewMapper(idx, g, quasimap.Options{})

	for i := 0; i < 5; i++ {
		assert.True(t, m.MapRead(bases("AAAC")))
	}

	var site prg.Marker
	for _, s := range m.Sites() {
		site = s
	}
	counts := m.GroupedAlleleCounts(site)
	assert.True(t, len(counts) > 0)
	var total uint64
	for _, c := range counts {
		total += c.Count
	}
	assert.EQ(t, total, uint64(5))
}

func TestMapReadUnmappedDoesNotPanic(t *testing.T) {
	idx, g := build(t, "AAAA[C,G]TTTT")
	m := quasimap.NewMapper(idx, g, quasimap.Options{})
	assert.False(t, m.MapRead(bases("GGGGGGGG")))
}

func TestMapReadWithSeedFilterWiredToSameK(t *testing.T) {
	text := "AAAA[C,G]TTTT"
	idx, g := build(t, text)
	ps, err := prg.FromText(text)
	assert.NoError(t, err)
	filter, err := kmerindex.Build(ps, 4)
	assert.NoError(t, err)
	defer filter.Close()

	// SeedLen must match the filter's own k, exactly as the CLI derives it
	// from the built index rather than a separately chosen flag value.
	m := quasimap.NewMapper(idx, g, quasimap.Options{SeedLen: filter.K(), Filter: filter})
	// First 4 bases ("AAAA") are a kmer of the linear PRG sequence, so the
	// seed filter passes this read through to a full search.
	assert.True(t, m.MapRead(bases("AAAAC")))
	// First 4 bases ("GGGG") never occur in the linear PRG sequence, so the
	// seed filter rejects this read before a full search ever runs.
	assert.False(t, m.MapRead(bases("GGGGGGGG")))
}

func TestMapAllConcurrent(t *testing.T) {
	idx, g := build(t, "AAAA[C,G]TTTT")
	m := quasimap.NewMapper(idx, g, quasimap.Options{})
	reads := make([][]prg.Base, 0, 20)
	for i := 0; i < 20; i++ {
		reads = append(reads, bases("AAAC"))
	}
	assert.NoError(t, m.MapAll(reads, 4))
	stats := m.ReadStats()
	assert.EQ(t, stats.TotalReads, uint64(20))
	assert.EQ(t, stats.MappedReads, uint64(20))
}
