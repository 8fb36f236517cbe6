package vcfwrite_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"

	"github.com/martinghunt/gramtools/covgraph"
	"github.com/martinghunt/gramtools/genotype"
	"github.com/martinghunt/gramtools/prg"
	"github.com/martinghunt/gramtools/vcfwrite"
)

func TestWriteVCFRecordHomozygousCall(t *testing.T) {
	rec := vcfwrite.SiteRecord{
		Pos:        10,
		Site:       5,
		Alleles:    []string{"C", "G"},
		Call:       genotype.Call{Genotype: []uint32{1, 1}},
		AlleleCovs: []uint64{30, 0},
		TotalCov:   30,
	}
	var buf bytes.Buffer
	assert.NoError(t, vcfwrite.WriteVCFRecord(&buf, rec))
	line := buf.String()
	assert.True(t, strings.Contains(line, "C\tG"))
	assert.True(t, strings.Contains(line, "0/0"))
}

func TestWriteVCFRecordNullCall(t *testing.T) {
	rec := vcfwrite.SiteRecord{
		Pos:     10,
		Site:    5,
		Alleles: []string{"C", "G"},
		Call:    genotype.Call{Null: true},
	}
	var buf bytes.Buffer
	assert.NoError(t, vcfwrite.WriteVCFRecord(&buf, rec))
	assert.True(t, strings.Contains(buf.String(), "\t.\t"))
}

func TestBuildPRGSummaryFlat(t *testing.T) {
	ps, err := prg.FromText("A[C,G]T")
	assert.NoError(t, err)
	g, err := covgraph.Build(ps)
	assert.NoError(t, err)
	summary := vcfwrite.BuildPRGSummary(g, []prg.Marker{5})
	assert.EQ(t, len(summary.Lvl1Sites), 1)
	assert.EQ(t, summary.Lvl1Sites[0], "all")
}

func TestBuildPRGSummaryNested(t *testing.T) {
	ps, err := prg.FromText("AATAA[CCC[A,G],T]AA")
	assert.NoError(t, err)
	g, err := covgraph.Build(ps)
	assert.NoError(t, err)

	var child, parent prg.Marker
	for c, p := range g.ParentalMap {
		child, parent = c, p.Site
	}
	summary := vcfwrite.BuildPRGSummary(g, []prg.Marker{parent, child})
	assert.EQ(t, len(summary.Lvl1Sites), 1)
	assert.True(t, len(summary.ChildMap) > 0)
}

func TestWriteJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	rec := vcfwrite.SiteRecord{
		Site:       5,
		Alleles:    []string{"C", "G"},
		Call:       genotype.Call{Genotype: []uint32{1}},
		AlleleCovs: []uint64{30, 0},
		TotalCov:   30,
	}
	summary := vcfwrite.PRGSummary{Lvl1Sites: []interface{}{"all"}, ChildMap: map[string]map[string][]prg.Marker{}}
	assert.NoError(t, vcfwrite.WriteJSON(&buf, []vcfwrite.SiteRecord{rec}, summary))
	assert.True(t, strings.Contains(buf.String(), "\"ALS\""))
}
