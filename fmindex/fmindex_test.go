package fmindex_test

import (
	"sort"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/martinghunt/gramtools/fmindex"
	"github.com/martinghunt/gramtools/prg"
)

func TestBackwardSearchNoMarkers(t *testing.T) {
	// With no markers, backward search over the fm-index must find exactly
	// the substring occurrences (spec testable property #1).
	ps, err := prg.FromText("AATAACAACAA")
	assert.NoError(t, err)
	idx, err := fmindex.Build(ps)
	assert.NoError(t, err)

	pattern := []uint32{prg.BaseA, prg.BaseA, prg.BaseC}
	l, r := 0, idx.Len()
	for i := len(pattern) - 1; i >= 0; i-- {
		l, r = idx.BackwardStep(l, r, pattern[i])
	}
	assert.True(t, r > l)

	var occs []int
	for i := l; i < r; i++ {
		occs = append(occs, idx.SA(i))
	}
	want := []int{}
	text := "AATAACAACAA"
	pat := "AAC"
	for i := 0; i+len(pat) <= len(text); i++ {
		if text[i:i+len(pat)] == pat {
			want = append(want, i)
		}
	}
	assert.EQ(t, len(occs), len(want))
	sort.Ints(occs)
	assert.EQ(t, occs, want)
}

func TestChecksumStable(t *testing.T) {
	ps, err := prg.FromText("AATAA[CCC[A,G],T]AA")
	assert.NoError(t, err)
	idx1, err := fmindex.Build(ps)
	assert.NoError(t, err)
	idx2, err := fmindex.Build(ps)
	assert.NoError(t, err)
	assert.EQ(t, idx1.Checksum(), idx2.Checksum())
}

func TestMarkersIn(t *testing.T) {
	ps, err := prg.FromText("A[C,G]T")
	assert.NoError(t, err)
	idx, err := fmindex.Build(ps)
	assert.NoError(t, err)
	markers := idx.MarkersIn(0, idx.Len())
	assert.True(t, len(markers) > 0)
}
