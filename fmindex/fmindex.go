// Package fmindex implements an FM-index over a prg.String: a suffix array,
// its Burrows-Wheeler transform, a C-array, and rank support sufficient for
// backward search and lex-count queries. Markers (site/allele boundaries)
// are treated as ordinary alphabet symbols, sorted numerically above all DNA
// bases, exactly as libgramtools's wavelet tree over the BWT does.
package fmindex

import (
	"encoding/binary"
	"sort"

	"github.com/minio/highwayhash"
	"github.com/pkg/errors"

	"github.com/martinghunt/gramtools/prg"
)

// sentinel terminates the PRG string for suffix array construction. It
// sorts before every base and marker.
const sentinel uint32 = 0

// highwayhashKey is a fixed key; the checksum is a structural fingerprint for
// load-time validation, not a cryptographic digest, so a constant key is
// fine.
var highwayhashKey = make([]byte, 32)

// Index is an immutable FM-index built over a PRG string. All fields are
// read-only after Build returns and are safe for concurrent access by
// multiple searching goroutines.
type Index struct {
	text []uint32 // original elements + sentinel
	sa   []int    // suffix array: sa[i] is the start of the i'th smallest suffix
	bwt  []uint32 // BWT string, same length as text

	alphabet []uint32       // sorted distinct symbols appearing in bwt
	cArray   map[uint32]int // C[c] = count of symbols < c in bwt

	// rank[c][i] = number of occurrences of symbol c in bwt[0:i]. Built only
	// for symbols that actually occur; this stands in for libgramtools's
	// wavelet-tree rank support.
	rank map[uint32][]int

	// markerMask[i] is true iff bwt[i] is a site/allele marker.
	markerMask []bool
}

// Len returns the length of the indexed text (including the sentinel).
func (idx *Index) Len() int { return len(idx.text) }

// SA returns the suffix array value at position i: the starting offset in
// the original PRG string of the i'th lexicographically smallest suffix.
func (idx *Index) SA(i int) int { return idx.sa[i] }

// BWT returns the Burrows-Wheeler transform character at position i.
func (idx *Index) BWT(i int) uint32 { return idx.bwt[i] }

// C returns the number of symbols strictly less than c across the whole
// text -- the standard FM-index C-array.
func (idx *Index) C(c uint32) int { return idx.cArray[c] }

// IsMarkerAt reports whether bwt[i] is a site/allele marker.
func (idx *Index) IsMarkerAt(i int) bool { return idx.markerMask[i] }

// rankOf returns the number of occurrences of symbol c in bwt[0:i].
func (idx *Index) rankOf(c uint32, i int) int {
	table, ok := idx.rank[c]
	if !ok {
		return 0
	}
	return table[i]
}

// Build constructs an FM-index from ps. Suffix array construction uses a
// straightforward comparison sort: the example pack carries no suffix-array
// or wavelet-tree library, so this one concern is implemented on the
// standard library (see DESIGN.md).
func Build(ps *prg.String) (*Index, error) {
	elements := ps.Elements()
	if len(elements) == 0 {
		return nil, errors.New("cannot build fm-index over empty prg")
	}
	text := make([]uint32, len(elements)+1)
	copy(text, elements)
	text[len(elements)] = sentinel

	n := len(text)
	sa := make([]int, n)
	for i := range sa {
		sa[i] = i
	}
	sort.Slice(sa, func(a, b int) bool {
		return lessSuffix(text, sa[a], sa[b])
	})

	bwt := make([]uint32, n)
	for i, suffixStart := range sa {
		if suffixStart == 0 {
			bwt[i] = sentinel
		} else {
			bwt[i] = text[suffixStart-1]
		}
	}

	alphabetSet := map[uint32]bool{}
	for _, c := range bwt {
		alphabetSet[c] = true
	}
	alphabet := make([]uint32, 0, len(alphabetSet))
	for c := range alphabetSet {
		alphabet = append(alphabet, c)
	}
	sort.Slice(alphabet, func(a, b int) bool { return alphabet[a] < alphabet[b] })

	cArray := make(map[uint32]int, len(alphabet))
	running := 0
	for _, c := range alphabet {
		cArray[c] = running
		running += countOf(bwt, c)
	}

	rank := make(map[uint32][]int, len(alphabet))
	for _, c := range alphabet {
		rank[c] = make([]int, n+1)
	}
	markerMask := make([]bool, n)
	for i, c := range bwt {
		for _, sym := range alphabet {
			rank[sym][i+1] = rank[sym][i]
		}
		rank[c][i+1]++
		markerMask[i] = c != sentinel && !prg.IsBase(c)
	}

	return &Index{
		text:       text,
		sa:         sa,
		bwt:        bwt,
		alphabet:   alphabet,
		cArray:     cArray,
		rank:       rank,
		markerMask: markerMask,
	}, nil
}

func countOf(bwt []uint32, c uint32) int {
	n := 0
	for _, x := range bwt {
		if x == c {
			n++
		}
	}
	return n
}

func lessSuffix(text []uint32, a, b int) bool {
	for a < len(text) && b < len(text) {
		if text[a] != text[b] {
			return text[a] < text[b]
		}
		a++
		b++
	}
	return a == len(text) && b < len(text)
}

// BackwardStep extends the SA interval [l, r) backward by prepending
// character c, returning the updated interval (possibly empty, l==r).
func (idx *Index) BackwardStep(l, r int, c uint32) (int, int) {
	base := idx.C(c)
	return base + idx.rankOf(c, l), base + idx.rankOf(c, r)
}

// LexCount returns, for bwt[l:r), the count of characters lexicographically
// less than c, equal to c, and greater than c.
func (idx *Index) LexCount(l, r int, c uint32) (lt, eq, gt int) {
	for _, sym := range idx.alphabet {
		cnt := idx.rankOf(sym, r) - idx.rankOf(sym, l)
		switch {
		case sym < c:
			lt += cnt
		case sym == c:
			eq += cnt
		default:
			gt += cnt
		}
	}
	return
}

// MarkerPosition is one marker occurrence found while scanning a BWT range.
type MarkerPosition struct {
	SAPos  int // position within the SA/BWT arrays
	Marker uint32
}

// MarkersIn scans bwt[l:r) and returns every marker occurrence found there,
// used by the search engine to detect fork points (spec 4.D step 1b).
func (idx *Index) MarkersIn(l, r int) []MarkerPosition {
	var out []MarkerPosition
	for i := l; i < r; i++ {
		if idx.markerMask[i] {
			out = append(out, MarkerPosition{SAPos: i, Marker: idx.bwt[i]})
		}
	}
	return out
}

// Checksum returns a structural fingerprint of the index's BWT, used at
// load time to detect an FM-index/coverage-graph mismatch (spec error
// kind 2).
func (idx *Index) Checksum() uint64 {
	buf := make([]byte, 4*len(idx.bwt))
	for i, c := range idx.bwt {
		buf[i*4] = byte(c)
		buf[i*4+1] = byte(c >> 8)
		buf[i*4+2] = byte(c >> 16)
		buf[i*4+3] = byte(c >> 24)
	}
	sum := highwayhash.Sum(buf, highwayhashKey)
	return binary.LittleEndian.Uint64(sum[:8])
}
