package prg_test

import (
	"bytes"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/martinghunt/gramtools/prg"
)

func TestFromTextSimple(t *testing.T) {
	p, err := prg.FromText("AATAA[CCC[A,G],T]AA")
	assert.NoError(t, err)
	assert.EQ(t, p.String(), "AATAA[CCC[A,G],T]AA")
}

func TestFromTextMarkerParity(t *testing.T) {
	p, err := prg.FromText("A[C,G]T")
	assert.NoError(t, err)
	elems := p.Elements()
	// site marker 5 (odd), allele marker 6 (even), site marker 5 again.
	assert.EQ(t, elems, []uint32{prg.BaseA, 5, prg.BaseC, 6, prg.BaseG, 5, prg.BaseT})
	assert.True(t, prg.IsSiteMarker(5))
	assert.True(t, prg.IsAlleleMarker(6))
	assert.EQ(t, prg.SiteMarkerOf(6), uint32(5))
}

func TestFromTextNested(t *testing.T) {
	p, err := prg.FromText("ATCGGC[TC[A,G]TC,GG[T,G]GG]AT")
	assert.NoError(t, err)
	ends := p.EndPositions()
	assert.EQ(t, len(ends), 3)
}

func TestFromTextUnbalanced(t *testing.T) {
	_, err := prg.FromText("A[C,G")
	assert.NotNil(t, err)
	_, err = prg.FromText("A]C")
	assert.NotNil(t, err)
}

func TestFromIntegersAlleleOutsideSite(t *testing.T) {
	_, err := prg.FromIntegers([]uint32{prg.BaseA, 6, prg.BaseC})
	assert.NotNil(t, err)
}

func TestBinaryRoundTrip(t *testing.T) {
	p, err := prg.FromText("GGGGG[CCC,]GG")
	assert.NoError(t, err)

	for _, order := range []prg.Endianness{prg.LittleEndian, prg.BigEndian} {
		var buf bytes.Buffer
		assert.NoError(t, p.WriteBinary(&buf, order))
		got, err := prg.ReadBinary(&buf)
		assert.NoError(t, err)
		assert.EQ(t, got.Elements(), p.Elements())
	}
}

func TestDirectDeletionAllele(t *testing.T) {
	p, err := prg.FromText("GGGGG[CCC,]GG")
	assert.NoError(t, err)
	// The empty allele between ',' and ']' carries no base elements.
	elems := p.Elements()
	foundEmptyAllele := false
	for i := 1; i < len(elems); i++ {
		if prg.IsAlleleMarker(elems[i-1]) && prg.IsSiteMarker(elems[i]) {
			foundEmptyAllele = true
		}
	}
	assert.True(t, foundEmptyAllele)
}
