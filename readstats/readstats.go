// Package readstats estimates the per-sample statistics the genotyping
// model is calibrated against: mean per-base coverage depth and the
// per-base sequencing error rate, plus the two safe log transforms of
// depth the model's Poisson likelihoods are built from.
package readstats

import "math"

// Stats holds the read-level statistics computed once per sample and
// reused across every site genotyped for that sample.
type Stats struct {
	MeanDepth     float64
	MeanBaseError float64

	TotalReads   uint64
	MappedReads  uint64
	SkippedReads uint64
}

// Accumulator collects the raw counts Stats is derived from: total bases of
// coverage seen across non-variant sequence (as a proxy for depth) and the
// quality-score-derived error estimate.
type Accumulator struct {
	totalBases    uint64
	totalCoverage uint64

	totalQualBases uint64
	errorSum       float64

	totalReads   uint64
	mappedReads  uint64
	skippedReads uint64
}

// AddBaseCoverage records one base position of the invariant part of the
// coverage graph together with its coverage count, used to estimate mean
// depth.
func (a *Accumulator) AddBaseCoverage(coverage uint64) {
	a.totalBases++
	a.totalCoverage += coverage
}

// AddQualityScores records a read's Phred quality scores (as
// probability-of-error values already converted from the ASCII encoding)
// into the running per-base error estimate.
func (a *Accumulator) AddQualityScores(errorProbs []float64) {
	for _, p := range errorProbs {
		a.errorSum += p
		a.totalQualBases++
	}
}

// ReadProcessed records the outcome of processing one read: mapped or
// skipped (empty/overlong, spec error-kind 3) or neither (unmapped, which
// is counted but is not an error).
func (a *Accumulator) ReadProcessed(mapped, skipped bool) {
	a.totalReads++
	if skipped {
		a.skippedReads++
		return
	}
	if mapped {
		a.mappedReads++
	}
}

// defaultBaseError is the fixed prior used when no quality scores were
// ever recorded (e.g. a FASTA-only run).
const defaultBaseError = 0.001

// Finish computes the final Stats from everything accumulated so far.
func (a *Accumulator) Finish() Stats {
	s := Stats{
		TotalReads:   a.totalReads,
		MappedReads:  a.mappedReads,
		SkippedReads: a.skippedReads,
	}
	if a.totalBases > 0 {
		s.MeanDepth = float64(a.totalCoverage) / float64(a.totalBases)
	}
	if a.totalQualBases > 0 {
		s.MeanBaseError = a.errorSum / float64(a.totalQualBases)
	} else {
		s.MeanBaseError = defaultBaseError
	}
	return s
}

// NegInf is the sentinel used in place of -Inf for log-likelihoods that
// would otherwise underflow, so downstream comparisons never produce NaN.
const NegInf = -1e300

// LogNoZero returns log(lambda), or NegInf if lambda is zero or negative,
// never -Inf or NaN.
func LogNoZero(lambda float64) float64 {
	if lambda <= 0 {
		return NegInf
	}
	return math.Log(lambda)
}

// LogNoZeroHalf returns log(lambda/2), or NegInf if lambda is zero or
// negative.
func LogNoZeroHalf(lambda float64) float64 {
	return LogNoZero(lambda / 2)
}
