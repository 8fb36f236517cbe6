// Package quasimap drives read mapping against an FM-index and coverage
// graph: per read (and its reverse complement), it runs the variant-aware
// backward search, and on survival translates each surviving SA interval
// back into PRG positions to increment per-base and grouped-allele-class
// coverage (spec section 4.E).
package quasimap

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/martinghunt/gramtools/covgraph"
	"github.com/martinghunt/gramtools/fmindex"
	"github.com/martinghunt/gramtools/genotype"
	"github.com/martinghunt/gramtools/prg"
	"github.com/martinghunt/gramtools/readstats"
	"github.com/martinghunt/gramtools/search"
)

// SeedFilter is consulted before running a full backward search, to skip
// reads whose leading seed it reports absent (spec's out-of-scope-but-interfaced
// "kmer-index precomputation"). kmerindex.Index implements this; it indexes
// only kmers inside one marker-free run, so a read whose leading seed spans
// a site boundary is skipped as well.
type SeedFilter interface {
	MayContain(seed []prg.Base) bool
}

// Options configures a Mapper.
type Options struct {
	MaxStates int // per-read search state cap; <=0 means unbounded.
	SeedLen   int // length of the seed checked against Filter; 0 disables.
	Filter    SeedFilter
}

// Mapper maps reads against a single (Index, Graph) pair, accumulating
// coverage and read statistics across many concurrent calls to MapRead.
type Mapper struct {
	idx   *fmindex.Index
	graph *covgraph.Graph
	opts  Options

	coverage *siteCoverage
	stats    readstats.Accumulator
	statsMu  chan struct{} // 1-buffered mutex-via-channel, cheap and avoids a sync import collision with atomic usage elsewhere
}

// NewMapper constructs a Mapper over idx and graph.
func NewMapper(idx *fmindex.Index, graph *covgraph.Graph, opts Options) *Mapper {
	m := &Mapper{
		idx:      idx,
		graph:    graph,
		opts:     opts,
		coverage: newSiteCoverage(),
		statsMu:  make(chan struct{}, 1),
	}
	m.statsMu <- struct{}{}
	return m
}

func (m *Mapper) withStats(fn func(*readstats.Accumulator)) {
	<-m.statsMu
	defer func() { m.statsMu <- struct{}{} }()
	fn(&m.stats)
}

// complementBase returns the Watson-Crick complement of a base.
func complementBase(b prg.Base) prg.Base {
	switch b {
	case prg.BaseA:
		return prg.BaseT
	case prg.BaseT:
		return prg.BaseA
	case prg.BaseC:
		return prg.BaseG
	default:
		return prg.BaseC
	}
}

func reverseComplement(read []prg.Base) []prg.Base {
	out := make([]prg.Base, len(read))
	for i, b := range read {
		out[len(read)-1-i] = complementBase(b)
	}
	return out
}

func (m *Mapper) passesSeedFilter(read []prg.Base) bool {
	if m.opts.Filter == nil || m.opts.SeedLen <= 0 || len(read) < m.opts.SeedLen {
		return true
	}
	return m.opts.Filter.MayContain(read[:m.opts.SeedLen])
}

// MapRead maps a single read, trying both orientations, and increments
// coverage for whichever orientation (if either) produces a non-empty,
// non-overflowing search frontier. It returns whether the read mapped.
func (m *Mapper) MapRead(read []prg.Base) bool {
	if len(read) == 0 || len(read) > m.idx.Len()-1 {
		m.withStats(func(a *readstats.Accumulator) { a.ReadProcessed(false, true) })
		return false
	}

	mapped := m.tryOrientation(read) || m.tryOrientation(reverseComplement(read))
	m.withStats(func(a *readstats.Accumulator) { a.ReadProcessed(mapped, false) })
	return mapped
}

func (m *Mapper) tryOrientation(read []prg.Base) bool {
	if !m.passesSeedFilter(read) {
		return false
	}
	states, overflow := search.SearchRead(read, m.idx, m.graph, m.opts.MaxStates)
	if overflow {
		log.Debug.Printf("quasimap: read dropped, search state cap exceeded (len=%d)", len(read))
		return false
	}
	if len(states) == 0 {
		return false
	}

	perSite := map[prg.Marker]map[genotype.AlleleID]bool{}
	for _, s := range states {
		for _, locus := range s.Path {
			if locus.Allele == covgraph.AlleleUnknown {
				continue
			}
			set, ok := perSite[locus.Site]
			if !ok {
				set = map[genotype.AlleleID]bool{}
				perSite[locus.Site] = set
			}
			set[locus.Allele] = true
		}
	}
	for site, set := range perSite {
		alleles := make([]genotype.AlleleID, 0, len(set))
		for a := range set {
			alleles = append(alleles, a)
		}
		m.coverage.Add(site, alleles)
	}

	m.incrementBaseCoverage(states, read)
	return true
}

// incrementBaseCoverage walks every surviving state's SA range back to its
// originating PRG text positions via the suffix array, then the
// random-access array to find the node/offset each base of the read
// landed on.
func (m *Mapper) incrementBaseCoverage(states []search.State, read []prg.Base) {
	for _, s := range states {
		for i := s.L; i < s.R; i++ {
			startPos := m.idx.SA(i)
			for offset := 0; offset < len(read); offset++ {
				pos := startPos + offset
				if pos < 0 || pos >= len(m.graph.RandomAccess) {
					continue
				}
				access := m.graph.RandomAccess[pos]
				m.graph.IncrementCoverage(access.Node, access.Offset)
			}
		}
	}
}

// MapAll maps every read in reads, sharded across parallelism concurrent
// jobs (each handling a contiguous slice of reads), following the
// teacher's traverse.Each sharding convention.
func (m *Mapper) MapAll(reads [][]prg.Base, parallelism int) error {
	if parallelism <= 0 {
		parallelism = 1
	}
	if parallelism > len(reads) {
		parallelism = len(reads)
	}
	if parallelism == 0 {
		return nil
	}
	n := len(reads)
	return traverse.Each(parallelism, func(jobIdx int) error {
		start := (jobIdx * n) / parallelism
		end := ((jobIdx + 1) * n) / parallelism
		for _, read := range reads[start:end] {
			m.MapRead(read)
		}
		return nil
	})
}

// GroupedAlleleCounts returns the grouped allele coverage accumulated for
// site so far.
func (m *Mapper) GroupedAlleleCounts(site prg.Marker) []genotype.AlleleGroupCount {
	return m.coverage.Snapshot(site)
}

// Sites returns every site with at least one mapped read so far.
func (m *Mapper) Sites() []prg.Marker {
	return m.coverage.Sites()
}

// ReadStats finalizes and returns the accumulated read statistics.
func (m *Mapper) ReadStats() readstats.Stats {
	var s readstats.Stats
	m.withStats(func(a *readstats.Accumulator) { s = a.Finish() })
	return s
}
