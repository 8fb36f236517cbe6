package quasimap

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"blainsmith.com/go/seahash"

	"github.com/martinghunt/gramtools/genotype"
	"github.com/martinghunt/gramtools/prg"
)

const numCoverageShards = 256

// coverageShard is one shard of the sharded grouped-allele-count map,
// following the teacher's concurrentMap pattern (seahash of the key picks
// the shard, a per-shard mutex guards it).
type coverageShard struct {
	mu     sync.Mutex
	counts map[prg.Marker]map[string]*genotype.AlleleGroupCount
}

// siteCoverage is the sharded accumulator of grouped allele coverage across
// every site touched during mapping, safe for concurrent increments from
// many read-mapping goroutines.
type siteCoverage struct {
	shards [numCoverageShards]coverageShard
}

func newSiteCoverage() *siteCoverage {
	c := &siteCoverage{}
	for i := range c.shards {
		c.shards[i].counts = map[prg.Marker]map[string]*genotype.AlleleGroupCount{}
	}
	return c
}

func (c *siteCoverage) shardFor(site prg.Marker) *coverageShard {
	h := seahash.Sum64([]byte{byte(site), byte(site >> 8), byte(site >> 16), byte(site >> 24)})
	return &c.shards[h%uint64(numCoverageShards)]
}

func groupKey(alleles []genotype.AlleleID) string {
	sorted := append([]genotype.AlleleID(nil), alleles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, a := range sorted {
		parts[i] = strconv.FormatUint(uint64(a), 10)
	}
	return strings.Join(parts, ",")
}

// Add increments the grouped-allele-count entry for (site, alleles) by one,
// creating it if this is the first read seen with exactly this compatible
// allele set.
func (c *siteCoverage) Add(site prg.Marker, alleles []genotype.AlleleID) {
	shard := c.shardFor(site)
	key := groupKey(alleles)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	perSite, ok := shard.counts[site]
	if !ok {
		perSite = map[string]*genotype.AlleleGroupCount{}
		shard.counts[site] = perSite
	}
	entry, ok := perSite[key]
	if !ok {
		entry = &genotype.AlleleGroupCount{Alleles: append([]genotype.AlleleID(nil), alleles...)}
		perSite[key] = entry
	}
	entry.Count++
}

// Snapshot returns the grouped allele counts accumulated for site so far.
func (c *siteCoverage) Snapshot(site prg.Marker) []genotype.AlleleGroupCount {
	shard := c.shardFor(site)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	perSite := shard.counts[site]
	out := make([]genotype.AlleleGroupCount, 0, len(perSite))
	for _, e := range perSite {
		out = append(out, *e)
	}
	return out
}

// Sites returns every site with at least one recorded group, across all
// shards.
func (c *siteCoverage) Sites() []prg.Marker {
	var out []prg.Marker
	for i := range c.shards {
		c.shards[i].mu.Lock()
		for site := range c.shards[i].counts {
			out = append(out, site)
		}
		c.shards[i].mu.Unlock()
	}
	return out
}
