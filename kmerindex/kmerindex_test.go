package kmerindex_test

import (
	"testing"

	"github.com/grailbio/testutil/assert"

	"github.com/martinghunt/gramtools/kmerindex"
	"github.com/martinghunt/gramtools/prg"
)

func bases(s string) []prg.Base {
	m := map[byte]prg.Base{'A': prg.BaseA, 'C': prg.BaseC, 'G': prg.BaseG, 'T': prg.BaseT}
	out := make([]prg.Base, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = m[s[i]]
	}
	return out
}

func TestMayContainPresentKmer(t *testing.T) {
	ps, err := prg.FromText("AATAACCGGTT")
	assert.NoError(t, err)
	idx, err := kmerindex.Build(ps, 4)
	assert.NoError(t, err)
	defer idx.Close()

	assert.True(t, idx.MayContain(bases("AATA")))
	assert.True(t, idx.MayContain(bases("CCGG")))
}

func TestMayContainAbsentKmer(t *testing.T) {
	ps, err := prg.FromText("AATAACCGGTT")
	assert.NoError(t, err)
	idx, err := kmerindex.Build(ps, 4)
	assert.NoError(t, err)
	defer idx.Close()

	assert.False(t, idx.MayContain(bases("TTTT")))
}

func TestKmerNeverStraddlesMarker(t *testing.T) {
	ps, err := prg.FromText("AAA[C,G]AAA")
	assert.NoError(t, err)
	idx, err := kmerindex.Build(ps, 3)
	assert.NoError(t, err)
	defer idx.Close()

	assert.True(t, idx.MayContain(bases("AAA")))
	assert.False(t, idx.MayContain(bases("AAC")))
}

func TestMayContainWrongLengthSeedDoesNotPrune(t *testing.T) {
	ps, err := prg.FromText("AATAACCGGTT")
	assert.NoError(t, err)
	idx, err := kmerindex.Build(ps, 4)
	assert.NoError(t, err)
	defer idx.Close()

	assert.EQ(t, idx.K(), 4)
	// A seed of a different length than K can't be looked up in the k=4
	// table; MayContain must not claim it's absent.
	assert.True(t, idx.MayContain(bases("TTTTT")))
}
