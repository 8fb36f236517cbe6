package readstats_test

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/assert"

	"github.com/martinghunt/gramtools/readstats"
)

func TestMeanDepthFromCoverage(t *testing.T) {
	var a readstats.Accumulator
	a.AddBaseCoverage(10)
	a.AddBaseCoverage(20)
	a.AddBaseCoverage(30)
	s := a.Finish()
	assert.EQ(t, s.MeanDepth, 20.0)
}

func TestMeanErrorFromQuality(t *testing.T) {
	var a readstats.Accumulator
	a.AddQualityScores([]float64{0.01, 0.02, 0.03})
	s := a.Finish()
	assert.True(t, math.Abs(s.MeanBaseError-0.02) < 1e-9)
}

func TestDefaultErrorPriorWithNoQualityScores(t *testing.T) {
	var a readstats.Accumulator
	a.AddBaseCoverage(5)
	s := a.Finish()
	assert.True(t, s.MeanBaseError > 0)
}

func TestReadCounters(t *testing.T) {
	var a readstats.Accumulator
	a.ReadProcessed(true, false)
	a.ReadProcessed(false, false)
	a.ReadProcessed(false, true)
	s := a.Finish()
	assert.EQ(t, s.TotalReads, uint64(3))
	assert.EQ(t, s.MappedReads, uint64(1))
	assert.EQ(t, s.SkippedReads, uint64(1))
}

func TestLogNoZero(t *testing.T) {
	assert.EQ(t, readstats.LogNoZero(0), readstats.NegInf)
	assert.True(t, readstats.LogNoZero(1) == 0)
	assert.True(t, readstats.LogNoZeroHalf(2) == 0)
}
