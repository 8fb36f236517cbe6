// Package kmerindex implements the seed kmer index used to prune reads
// before a full backward search: a sharded, linear-probing kmer set built
// once from a PRG's linear base sequence, backed by an mmap'd anonymous
// region with MADV_HUGEPAGE, following the teacher's
// fusion/kmer_index.go technique.
package kmerindex

import (
	"unsafe"

	farm "github.com/dgryski/go-farm"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/martinghunt/gramtools/prg"
)

const (
	numShards     = 256 // lower 8 bits of the hash select the shard.
	maxCollisions = 64
	invalidKmer   = ^uint64(0)
	hugePageSize  = 2 << 20
	loadFactor    = 4
)

// Kmer packs up to 32 bases 2 bits each, A=0,C=1,G=2,T=3.
type Kmer = uint64

func encode(bases []prg.Base) (Kmer, bool) {
	if len(bases) == 0 || len(bases) > 32 {
		return 0, false
	}
	var k Kmer
	for _, b := range bases {
		var bits uint64
		switch b {
		case prg.BaseA:
			bits = 0
		case prg.BaseC:
			bits = 1
		case prg.BaseG:
			bits = 2
		case prg.BaseT:
			bits = 3
		default:
			return 0, false
		}
		k = (k << 2) | bits
	}
	return k, true
}

func hashKmer(k Kmer) uint64 {
	return farm.Hash64WithSeed(nil, uint64(k))
}

// shard is one linear-probing hash set of kmers, backed by an mmap'd
// anonymous region.
type shard struct {
	data       []byte // the mmap'd backing region; unmapped by Close.
	tableStart uintptr
	size       int // number of uint64 slots, a power of two.
}

func (s *shard) slot(i int) *uint64 {
	return (*uint64)(unsafe.Pointer(s.tableStart + uintptr(i)*8))
}

func newShard(kmers []Kmer) (*shard, error) {
	minSize := (len(kmers) + 1) * loadFactor
	size := 1
	for size < minSize {
		size *= 2
	}

	data, err := unix.Mmap(-1, 0, size*8+hugePageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "kmerindex: mmap shard")
	}
	if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
		// Hugepages are an optimization; a failure here is not fatal.
		_ = err
	}
	tableStart := ((uintptr(unsafe.Pointer(&data[0])) - 1) / hugePageSize + 1) * hugePageSize

	s := &shard{data: data, tableStart: tableStart, size: size}
	for i := 0; i < size; i++ {
		*s.slot(i) = invalidKmer
	}

	sizeShift := uint(64 - log2(size))
	for _, k := range kmers {
		h := hashKmer(k)
		i := int(h >> sizeShift)
		for iter := 0; ; iter++ {
			if *s.slot(i) == invalidKmer || *s.slot(i) == k {
				*s.slot(i) = k
				break
			}
			if iter > maxCollisions {
				// Pathologically unlucky distribution: grow and retry from
				// scratch rather than silently dropping a kmer.
				return newShard(append(kmers, kmers...))
			}
			i++
			if i >= size {
				i = 0
			}
		}
	}
	return s, nil
}

func (s *shard) contains(k Kmer) bool {
	sizeShift := uint(64 - log2(s.size))
	h := hashKmer(k)
	i := int(h >> sizeShift)
	for iter := 0; iter <= maxCollisions+1; iter++ {
		v := *s.slot(i)
		if v == k {
			return true
		}
		if v == invalidKmer {
			return false
		}
		i++
		if i >= s.size {
			i = 0
		}
	}
	return false
}

func (s *shard) close() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	return err
}

func log2(n int) int {
	b := 0
	for (1 << b) < n {
		b++
	}
	return b
}

// Index is a built seed kmer index: MayContain reports whether a given
// base window could possibly occur in the indexed PRG.
type Index struct {
	k      int
	shards [numShards]*shard
}

// Build scans ps's linear base sequence (skipping markers, which reset the
// rolling window since a kmer must not straddle a variant boundary) and
// indexes every distinct window of length k.
func Build(ps *prg.String, k int) (*Index, error) {
	if k <= 0 || k > 32 {
		return nil, errors.Errorf("kmerindex: invalid k=%d", k)
	}

	byShard := make([][]Kmer, numShards)
	var window []prg.Base
	for _, e := range ps.Elements() {
		if !prg.IsBase(e) {
			window = window[:0]
			continue
		}
		window = append(window, e)
		if len(window) > k {
			window = window[len(window)-k:]
		}
		if len(window) == k {
			kmer, ok := encode(window)
			if !ok {
				continue
			}
			shardID := int(hashKmer(kmer) & (numShards - 1))
			byShard[shardID] = append(byShard[shardID], kmer)
		}
	}

	idx := &Index{k: k}
	for i := 0; i < numShards; i++ {
		s, err := newShard(byShard[i])
		if err != nil {
			return nil, err
		}
		idx.shards[i] = s
	}
	return idx, nil
}

// K returns the kmer length the index was built with. Callers must only
// query MayContain with seeds of this length.
func (idx *Index) K() int { return idx.k }

// MayContain reports whether seed could occur in the indexed PRG. Only
// kmers lying wholly inside one marker-free run of bases are indexed, so a
// false return means the seed occurs in no such run; a seed that occurs only
// across a site boundary is also reported absent. A true return means the
// caller should fall back to the full search. A seed whose length doesn't match K()
// can't be looked up in the table built for k, so it's reported as possibly
// present rather than silently encoded to the wrong width.
func (idx *Index) MayContain(seed []prg.Base) bool {
	if len(seed) != idx.k {
		return true
	}
	kmer, ok := encode(seed)
	if !ok {
		return true
	}
	shardID := int(hashKmer(kmer) & (numShards - 1))
	return idx.shards[shardID].contains(kmer)
}

// Close releases the mmap'd regions backing idx. After Close, idx must not
// be used.
func (idx *Index) Close() error {
	var first error
	for _, s := range idx.shards {
		if s == nil {
			continue
		}
		if err := s.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
