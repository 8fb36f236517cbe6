// Package genotype implements the level genotyping model described in spec
// section 4.F: turning per-allele coverage at a site into a called
// genotype, using Poisson log-likelihoods calibrated from read statistics.
package genotype

import (
	"math"
	"sort"

	"github.com/martinghunt/gramtools/covgraph"
	"github.com/martinghunt/gramtools/prg"
	"github.com/martinghunt/gramtools/readstats"
)

// AlleleID identifies an allele within a site by its 1-based ordinal,
// matching prg.VariantLocus.Allele.
type AlleleID = uint32

// AlleleGroupCount is one entry of a site's grouped allele coverage: the
// count of reads whose mapping was compatible with exactly this set of
// alleles (a singleton set if the read was unambiguous, larger if it
// mapped equally well to several).
type AlleleGroupCount struct {
	Alleles []AlleleID
	Count   uint64
}

// Stats is the subset of readstats.Stats a genotyper call needs, plus the
// credible-coverage threshold and precomputed log transforms of depth.
type Stats struct {
	MeanDepth       float64
	MeanBaseError   float64
	CredibleCovMin  uint64
	LogMeanDepth    float64
	LogHalfMeanDepth float64
}

// NewStats derives genotyping Stats from sample-wide readstats.Stats.
func NewStats(s readstats.Stats, credibleCovMin uint64) Stats {
	return Stats{
		MeanDepth:        s.MeanDepth,
		MeanBaseError:    s.MeanBaseError,
		CredibleCovMin:   credibleCovMin,
		LogMeanDepth:     readstats.LogNoZero(s.MeanDepth),
		LogHalfMeanDepth: readstats.LogNoZeroHalf(s.MeanDepth),
	}
}

// Call is the outcome of genotyping one site: the chosen allele(s) (one for
// a haploid call, the same allele twice for a diploid homozygous call, two
// distinct alleles for heterozygous), a confidence score, and
// whether the site was null-called (no confident call possible).
type Call struct {
	Site       prg.Marker
	Genotype   []AlleleID
	Confidence float64
	Null       bool
}

// poissonLogPMF returns log P(k; lambda) for the Poisson distribution,
// using math.Lgamma for k! since no library in the dependency set provides
// this (see DESIGN.md).
func poissonLogPMF(k uint64, lambda float64) float64 {
	if lambda <= 0 {
		if k == 0 {
			return 0
		}
		return readstats.NegInf
	}
	lgammaKPlus1, _ := math.Lgamma(float64(k) + 1)
	return float64(k)*math.Log(lambda) - lambda - lgammaKPlus1
}

// haploidCoverages sums, for every allele, the coverage of every group that
// includes it, and separately tracks which alleles have coverage unique to
// themselves (a singleton group).
func haploidCoverages(counts []AlleleGroupCount, numAlleles int) (haploid []uint64, singleton map[AlleleID]bool, total uint64) {
	haploid = make([]uint64, numAlleles+1) // 1-indexed
	singleton = map[AlleleID]bool{}
	for _, g := range counts {
		total += g.Count
		for _, a := range g.Alleles {
			if int(a) < len(haploid) {
				haploid[a] += g.Count
			}
		}
		if len(g.Alleles) == 1 && g.Count > 0 {
			singleton[g.Alleles[0]] = true
		}
	}
	return haploid, singleton, total
}

// AlleleCoverageProfile is an allele's own per-base coverage evidence, used
// by the homozygous credible-coverage likelihood term: how many of its
// positions reached credible coverage, out of how many total.
type AlleleCoverageProfile struct {
	Length        int
	CredibleBases int
}

// BuildCoverageProfiles walks every allele branch of a bubble and tallies
// its length and credible-coverage base count, stopping at the first
// nested bubble boundary (matching the allele-sequence reconstruction that
// callers use alongside this to build VCF allele strings).
func BuildCoverageProfiles(graph *covgraph.Graph, entry covgraph.BubbleEntry, credibleCovMin uint64) []AlleleCoverageProfile {
	start := graph.Node(entry.Start)
	profiles := make([]AlleleCoverageProfile, 0, len(start.Next))
	for _, firstNode := range start.Next {
		var p AlleleCoverageProfile
		id := firstNode
		for {
			n := graph.Node(id)
			if n.IsBoundary {
				break
			}
			p.Length += len(n.Sequence)
			p.CredibleBases += CountCrediblePositions(n, credibleCovMin)
			if len(n.Next) == 0 {
				break
			}
			id = n.Next[0]
		}
		profiles = append(profiles, p)
	}
	return profiles
}

// candidate is one genotype hypothesis under consideration.
type candidate struct {
	genotype []AlleleID
	ll       float64
}

// CallSite genotypes a single site given its grouped allele coverage, the
// per-base coverage profile of each of its alleles, and the number of
// alleles it offers. ploidy is 1 (haploid call only) or 2 (homozygous and
// heterozygous candidates both considered).
func CallSite(site prg.Marker, numAlleles int, counts []AlleleGroupCount, profiles []AlleleCoverageProfile, stats Stats, ploidy int) Call {
	haploid, singleton, total := haploidCoverages(counts, numAlleles)

	if total == 0 {
		return Call{Site: site, Null: true}
	}

	var candidates []candidate

	// Homozygous / haploid: credible-cov positions on the called allele
	// should look like full depth, its uncovered positions fall back to a
	// log-no-zero-guarded half-depth term, and coverage landing on other
	// alleles is scored as background error.
	for a := 1; a <= numAlleles; a++ {
		correct := haploid[a]
		incorrect := total - correct
		profile := profileFor(profiles, a)
		uncovered := profile.Length - profile.CredibleBases
		if uncovered < 0 {
			uncovered = 0
		}
		ll := float64(profile.CredibleBases)*stats.LogMeanDepth -
			float64(uncovered)*stats.LogHalfMeanDepth +
			poissonLogPMF(incorrect, stats.MeanDepth*stats.MeanBaseError)
		gt := []AlleleID{uint32(a)}
		if ploidy >= 2 {
			gt = append(gt, uint32(a))
		}
		candidates = append(candidates, candidate{genotype: gt, ll: ll})
	}

	if ploidy >= 2 {
		// Heterozygous: restrict to pairs where each allele has at least one
		// unit of coverage unique to it, exactly as the singleton-coverage
		// restriction in the model this is grounded on.
		for a := 1; a <= numAlleles; a++ {
			if !singleton[uint32(a)] {
				continue
			}
			for b := a + 1; b <= numAlleles; b++ {
				if !singleton[uint32(b)] {
					continue
				}
				covA, covB := diploidCoverage(counts, uint32(a), uint32(b))
				incorrect := total - covA - covB
				ll := poissonLogPMF(covA, stats.MeanDepth/2) +
					poissonLogPMF(covB, stats.MeanDepth/2) +
					poissonLogPMF(incorrect, stats.MeanDepth*stats.MeanBaseError)
				candidates = append(candidates, candidate{genotype: []AlleleID{uint32(a), uint32(b)}, ll: ll})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ll > candidates[j].ll })

	best := candidates[0]
	confidence := math.Inf(1)
	if len(candidates) > 1 {
		confidence = best.ll - candidates[1].ll
	}

	return Call{
		Site:       site,
		Genotype:   best.genotype,
		Confidence: confidence,
	}
}

// diploidCoverage splits coverage between alleles a and b: a group
// containing only a (or only b) contributes fully to that allele; a group
// containing both (the two alleles share a haplogroup, e.g. due to
// nesting) contributes half its count to each.
func diploidCoverage(counts []AlleleGroupCount, a, b AlleleID) (covA, covB uint64) {
	for _, g := range counts {
		hasA, hasB := containsAllele(g.Alleles, a), containsAllele(g.Alleles, b)
		switch {
		case hasA && hasB:
			covA += g.Count / 2
			covB += g.Count / 2
		case hasA:
			covA += g.Count
		case hasB:
			covB += g.Count
		}
	}
	return covA, covB
}

// profileFor returns the coverage profile for 1-based allele a, or the zero
// value if profiles doesn't cover it.
func profileFor(profiles []AlleleCoverageProfile, a int) AlleleCoverageProfile {
	if a-1 < 0 || a-1 >= len(profiles) {
		return AlleleCoverageProfile{}
	}
	return profiles[a-1]
}

func containsAllele(alleles []AlleleID, a AlleleID) bool {
	for _, x := range alleles {
		if x == a {
			return true
		}
	}
	return false
}

// CountCrediblePositions returns the number of per-base coverage counters
// in node that meet the credible-coverage threshold.
func CountCrediblePositions(node *covgraph.Node, credibleCovMin uint64) int {
	n := 0
	for _, c := range node.Coverage {
		if c >= credibleCovMin {
			n++
		}
	}
	return n
}

// InvalidateNestedCalls walks a graph's bubble map from outermost to
// innermost (the reverse of its stored children-before-parents order) and
// null-calls any site whose parent locus was not itself part of the
// parent's called genotype -- a child site nested inside an allele that
// was not called cannot itself be credibly genotyped. Processing outermost
// first means a grandparent's invalidation is already applied by the time
// its grandchild is considered.
func InvalidateNestedCalls(calls map[prg.Marker]*Call, graph *covgraph.Graph) {
	for i := len(graph.BubbleMap) - 1; i >= 0; i-- {
		entry := graph.BubbleMap[i]
		start := graph.Node(entry.Start)
		if len(start.Next) == 0 {
			continue
		}
		site := graph.Node(start.Next[0]).Site

		parentLocus, isChild := graph.ParentalMap[site]
		if !isChild {
			continue
		}
		parentCall, ok := calls[parentLocus.Site]
		if !ok {
			continue
		}
		if parentCall.Null || !containsAllele(parentCall.Genotype, parentLocus.Allele) {
			if childCall, ok := calls[site]; ok {
				childCall.Null = true
			}
		}
	}
}
