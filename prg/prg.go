// Package prg implements the population reference graph (PRG) string: a flat
// sequence of DNA bases and variant markers, parsed from either a nested
// bracket/comma textual form or a little/big-endian binary encoding of
// integers.
//
// A PRG element is either a base (1=A, 2=C, 3=G, 4=T) or a marker (>=5).
// Site markers are odd and appear at a site's entry and exit; allele markers
// are even and separate alleles within a site. Site i is delimited by marker
// 2i+3 at entry/exit, with 2i+4 separating its alleles.
package prg

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Base is a nucleotide encoded as a small integer: 1=A, 2=C, 3=G, 4=T.
type Base = uint32

const (
	BaseA Base = 1
	BaseC Base = 2
	BaseG Base = 3
	BaseT Base = 4
)

// Marker is an integer >=5 identifying a variant site or allele boundary.
type Marker = uint32

// firstMarker is the smallest legal marker value; site numbering starts here,
// mirroring libgramtools's site ID convention of 2i+3 for i starting at 1.
const firstMarker Marker = 5

var baseToChar = map[Base]byte{BaseA: 'A', BaseC: 'C', BaseG: 'G', BaseT: 'T'}
var charToBase = map[byte]Base{'A': BaseA, 'C': BaseC, 'G': BaseG, 'T': BaseT}

// IsBase reports whether e encodes a DNA base rather than a marker.
func IsBase(e uint32) bool { return e >= BaseA && e <= BaseT }

// IsSiteMarker reports whether m is a site entry/exit marker (odd, >=5).
func IsSiteMarker(m Marker) bool { return m >= firstMarker && m%2 == 1 }

// IsAlleleMarker reports whether m is an allele-boundary marker (even, >=5).
func IsAlleleMarker(m Marker) bool { return m >= firstMarker && m%2 == 0 }

// SiteMarkerOf returns the site marker that allele marker m belongs to: the
// odd marker one less than m.
func SiteMarkerOf(alleleMarker Marker) Marker { return alleleMarker - 1 }

// AlleleMarkerOf returns the allele marker paired with site marker m.
func AlleleMarkerOf(siteMarker Marker) Marker { return siteMarker + 1 }

// VariantLocus identifies a choice within the PRG: a site marker and the
// 1-based ordinal of the allele chosen within that site.
type VariantLocus struct {
	Site   Marker
	Allele uint32
}

// ParseError describes a malformed PRG, naming the offending position so
// build-time failures can be diagnosed precisely (spec error kind 1).
type ParseError struct {
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed prg at position %d: %s", e.Pos, e.Reason)
}

// String is the parsed, immutable PRG: a flat integer sequence plus an index
// from each site marker to the position of its closing (exit) occurrence.
type String struct {
	elements     []uint32
	endPositions map[Marker]int
}

// Elements returns the canonical integer sequence. Callers must not mutate
// the returned slice.
func (p *String) Elements() []uint32 { return p.elements }

// Len returns the number of elements in the PRG string.
func (p *String) Len() int { return len(p.elements) }

// At returns the element at position i.
func (p *String) At(i int) uint32 { return p.elements[i] }

// EndPositions returns, for every site marker present, the 0-based position
// of its site-exit occurrence.
func (p *String) EndPositions() map[Marker]int { return p.endPositions }

// FromIntegers builds a String from an already-encoded integer vector,
// validating marker balance (every site entry has a matching exit, no exit
// without an entry).
func FromIntegers(ints []uint32) (*String, error) {
	endPositions := make(map[Marker]int)
	open := map[Marker]bool{}
	var openStack []Marker

	for i, e := range ints {
		if IsBase(e) {
			continue
		}
		if e < firstMarker {
			return nil, &ParseError{Pos: i, Reason: fmt.Sprintf("marker %d below minimum %d", e, firstMarker)}
		}
		if IsAlleleMarker(e) {
			site := SiteMarkerOf(e)
			if !open[site] {
				return nil, &ParseError{Pos: i, Reason: fmt.Sprintf("allele marker %d outside any open site", e)}
			}
			continue
		}
		// Site marker: first occurrence opens the site, second closes it.
		if !open[e] {
			open[e] = true
			openStack = append(openStack, e)
		} else {
			open[e] = false
			endPositions[e] = i
			if len(openStack) == 0 || openStack[len(openStack)-1] != e {
				return nil, &ParseError{Pos: i, Reason: fmt.Sprintf("site %d closed out of nesting order", e)}
			}
			openStack = openStack[:len(openStack)-1]
		}
	}
	if len(openStack) != 0 {
		return nil, &ParseError{Pos: len(ints), Reason: fmt.Sprintf("site %d never closed", openStack[len(openStack)-1])}
	}
	return &String{elements: ints, endPositions: endPositions}, nil
}

// FromText parses the nested bracket/comma textual PRG form (e.g.
// "AATAA[CCC[A,G],T]AA") into a String. Site IDs are assigned in order of
// '[' encounter, starting at the first free odd marker; this numbering is
// not guaranteed to reproduce any numbering the text might have come from
// (see package doc and the open question in SPEC_FULL.md) -- it is simply a
// fresh, consistent assignment.
func FromText(text string) (*String, error) {
	var elements []uint32
	var siteStack []Marker
	nextSiteID := firstMarker

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '[':
			site := nextSiteID
			nextSiteID += 2
			siteStack = append(siteStack, site)
			elements = append(elements, site)
		case ',':
			if len(siteStack) == 0 {
				return nil, &ParseError{Pos: i, Reason: "',' outside any site"}
			}
			site := siteStack[len(siteStack)-1]
			elements = append(elements, AlleleMarkerOf(site))
		case ']':
			if len(siteStack) == 0 {
				return nil, &ParseError{Pos: i, Reason: "unmatched ']'"}
			}
			site := siteStack[len(siteStack)-1]
			siteStack = siteStack[:len(siteStack)-1]
			elements = append(elements, site)
		default:
			base, ok := charToBase[c]
			if !ok {
				return nil, &ParseError{Pos: i, Reason: fmt.Sprintf("unrecognised character %q", c)}
			}
			elements = append(elements, base)
		}
	}
	if len(siteStack) != 0 {
		return nil, &ParseError{Pos: len(text), Reason: fmt.Sprintf("site %d never closed", siteStack[len(siteStack)-1])}
	}
	return FromIntegers(elements)
}

// String renders the PRG back to its nested bracket/comma textual form. Site
// IDs from the original text (if any) are not recoverable; only the nesting
// structure and sequence content round-trip.
func (p *String) String() string {
	var b strings.Builder
	opened := map[Marker]bool{}
	for _, e := range p.elements {
		switch {
		case IsBase(e):
			b.WriteByte(baseToChar[e])
		case IsAlleleMarker(e):
			b.WriteByte(',')
		default: // site marker
			if !opened[e] {
				opened[e] = true
				b.WriteByte('[')
			} else {
				b.WriteByte(']')
			}
		}
	}
	return b.String()
}

// Endianness selects the byte order used by WriteBinary/ReadBinary, encoded
// as a single header byte ahead of the element stream.
type Endianness byte

const (
	// LittleEndian writes/reads a little-endian header+element stream.
	LittleEndian Endianness = 0
	// BigEndian writes/reads a big-endian header+element stream.
	BigEndian Endianness = 1
)

func (e Endianness) order() (binary.ByteOrder, error) {
	switch e {
	case LittleEndian:
		return binary.LittleEndian, nil
	case BigEndian:
		return binary.BigEndian, nil
	default:
		return nil, errors.Errorf("unrecognised prg binary endianness byte %d", e)
	}
}

// WriteBinary writes the header byte followed by one fixed-width uint32 per
// element, in the requested byte order.
func (p *String) WriteBinary(w io.Writer, order Endianness) error {
	bo, err := order.order()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(order)}); err != nil {
		return errors.Wrap(err, "writing prg binary header")
	}
	buf := make([]byte, 4*len(p.elements))
	for i, e := range p.elements {
		bo.PutUint32(buf[i*4:], e)
	}
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "writing prg binary body")
	}
	return nil
}

// ReadBinary reads a header byte and a stream of fixed-width uint32 elements
// written by WriteBinary.
func ReadBinary(r io.Reader) (*String, error) {
	var header [1]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "reading prg binary header")
	}
	bo, err := Endianness(header[0]).order()
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading prg binary body")
	}
	if len(body)%4 != 0 {
		return nil, errors.Errorf("prg binary body length %d not a multiple of 4", len(body))
	}
	elements := make([]uint32, len(body)/4)
	for i := range elements {
		elements[i] = bo.Uint32(body[i*4:])
	}
	return FromIntegers(elements)
}
