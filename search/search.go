// Package search implements the variant-aware backward search described in
// spec section 4.D: extending an FM-index backward search one read base at a
// time, forking the search state at every marker reachable through the
// coverage graph's target map.
package search

import (
	"encoding/binary"

	farm "github.com/dgryski/go-farm"

	"github.com/martinghunt/gramtools/covgraph"
	"github.com/martinghunt/gramtools/fmindex"
	"github.com/martinghunt/gramtools/prg"
)

// Classification records what a State's most recent transition means in
// forward-PRG terms: still outside every site, inside a site traversing an
// allele, or just exited a site whose boundary it crossed.
type Classification int

const (
	OutsideAnySite Classification = iota
	InsideSite
	JustExitedSite
)

// State is one element of the search frontier: an FM-index SA interval, the
// chain of variant loci traversed to reach it (most recent first), and
// whether the base that produced this state was already consumed implicitly
// by crossing a marker.
type State struct {
	L, R int

	// Path is ordered most-recent-first: Path[0] is the most recently
	// traversed (site, allele) locus.
	Path []prg.VariantLocus

	CachedLastBase bool
	Class          Classification
}

// Empty reports whether the SA interval is empty (the state is dead).
func (s State) Empty() bool { return s.R <= s.L }

// Fingerprint returns a FarmHash64 fingerprint of (L, R, Path), used to
// dedupe equivalent states within a frontier (spec 4.D).
func (s State) Fingerprint() uint64 {
	buf := make([]byte, 8+8+16*len(s.Path))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(s.L))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(s.R))
	for i, locus := range s.Path {
		off := 16 + i*16
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(locus.Site))
		binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(locus.Allele))
	}
	return farm.Hash64(buf)
}

// NewState returns the initial, path-less frontier state spanning the whole
// index.
func NewState(idx *fmindex.Index) State {
	return State{L: 0, R: idx.Len(), Path: nil}
}

// appendLocus returns a new path with locus prepended, without mutating s.
func appendLocus(path []prg.VariantLocus, locus prg.VariantLocus) []prg.VariantLocus {
	out := make([]prg.VariantLocus, len(path)+1)
	out[0] = locus
	copy(out[1:], path)
	return out
}

func classificationFor(kind covgraph.TransitionKind) Classification {
	switch kind {
	case covgraph.TransitionSiteEntry:
		// Crossing a site-entry marker while searching backward (right to
		// left) is, in forward-PRG terms, walking off the left end of the
		// site: the read has just exited it.
		return JustExitedSite
	default: // TransitionAlleleEnd, TransitionSiteExit
		return InsideSite
	}
}

// SearchBaseBackwards advances every state in states by one read base,
// producing the next frontier: a direct backward step (1a) plus, for every
// marker found in each state's current SA range, a fork onto every marker
// reachable from it via the coverage graph's target map (1b). Dead (empty)
// results are dropped. Equivalent states -- same Fingerprint -- are merged,
// keeping the first one seen.
func SearchBaseBackwards(base prg.Base, states []State, idx *fmindex.Index, graph *covgraph.Graph) []State {
	seen := map[uint64]bool{}
	var next []State

	add := func(s State) {
		if s.Empty() {
			return
		}
		fp := s.Fingerprint()
		if seen[fp] {
			return
		}
		seen[fp] = true
		next = append(next, s)
	}

	for _, s := range states {
		// 1a: direct base step. A state produced by a fork in the previous
		// round already consumed this base implicitly when it crossed the
		// marker, so it passes through unchanged instead of stepping again.
		if s.CachedLastBase {
			add(State{L: s.L, R: s.R, Path: s.Path, Class: s.Class})
		} else {
			l2, r2 := idx.BackwardStep(s.L, s.R, uint32(base))
			add(State{L: l2, R: r2, Path: s.Path, Class: s.Class})
		}

		// 1b: marker forking, scanned over the state's current (pre-step)
		// interval.
		seenMarker := map[uint32]bool{}
		for _, mp := range idx.MarkersIn(s.L, s.R) {
			if seenMarker[mp.Marker] {
				continue
			}
			seenMarker[mp.Marker] = true

			for _, target := range graph.TargetMap[prg.Marker(mp.Marker)] {
				l2, r2 := idx.BackwardStep(s.L, s.R, uint32(target.ID))
				if r2 <= l2 {
					continue
				}
				add(State{
					L:              l2,
					R:              r2,
					Path:           appendLocus(s.Path, target.Locus),
					CachedLastBase: true,
					Class:          classificationFor(target.Kind),
				})
			}
		}
	}
	return next
}

// SearchRead runs a full backward search of read (given 5' to 3', base 0
// first in text order so that searching proceeds from the last base) over
// idx and graph, returning the surviving frontier. maxStates caps the
// frontier size: once exceeded, SearchRead stops early and reports
// overflow=true so the caller can fall back to treating the read as
// unmapped rather than pay for an unbounded state blow-up.
func SearchRead(read []prg.Base, idx *fmindex.Index, graph *covgraph.Graph, maxStates int) (states []State, overflow bool) {
	states = []State{NewState(idx)}
	for i := len(read) - 1; i >= 0; i-- {
		states = SearchBaseBackwards(read[i], states, idx, graph)
		if len(states) == 0 {
			return nil, false
		}
		if maxStates > 0 && len(states) > maxStates {
			return nil, true
		}
	}
	return states, false
}
