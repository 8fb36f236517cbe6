/*
gram-genotype loads a mapped coverage graph and the grouped allele counts
gram-quasimap accumulated, genotypes every site in the PRG, and writes the
result as VCF and as the JSON summary used by downstream consumers.
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/golang/snappy"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"

	"github.com/martinghunt/gramtools/covgraph"
	"github.com/martinghunt/gramtools/genotype"
	"github.com/martinghunt/gramtools/prg"
	"github.com/martinghunt/gramtools/readstats"
	"github.com/martinghunt/gramtools/vcfwrite"
)

var (
	inPrefix       = flag.String("in", "gram", "Input path prefix, as written by gram-quasimap (<in>.mapped.cov.snappy, <in>.groupcounts.json, <in>.readstats)")
	outPrefix      = flag.String("out", "", "Output path prefix for <out>.vcf and <out>.json; defaults to -in")
	ploidy         = flag.Int("ploidy", 2, "1 for haploid-only calls, 2 to also consider heterozygous genotypes")
	sample         = flag.String("sample", "sample", "Sample name for the VCF header")
	credibleCovMin = flag.Uint64("credible-cov-min", 1, "Minimum per-base coverage counted as credible by the genotyping likelihood")
)

func genotypeUsage() {
	fmt.Printf("Usage: %s -in PREFIX -out PREFIX\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func readSnappy(ctx context.Context, path string) ([]byte, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close(ctx)
	sr := snappy.NewReader(f.Reader(ctx))
	return ioutil.ReadAll(sr)
}

func readGroupCounts(ctx context.Context, path string) (map[prg.Marker][]genotype.AlleleGroupCount, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close(ctx)
	var raw map[string][]genotype.AlleleGroupCount
	if err := json.NewDecoder(f.Reader(ctx)).Decode(&raw); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	out := make(map[prg.Marker][]genotype.AlleleGroupCount, len(raw))
	for k, v := range raw {
		site, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing site id %q", k)
		}
		out[prg.Marker(site)] = v
	}
	return out, nil
}

func readReadStats(ctx context.Context, path string) (readstats.Stats, error) {
	var s readstats.Stats
	f, err := file.Open(ctx, path)
	if err != nil {
		return s, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close(ctx)
	data, err := ioutil.ReadAll(f.Reader(ctx))
	if err != nil {
		return s, err
	}
	fields := strings.Fields(strings.TrimSpace(string(data)))
	if len(fields) != 5 {
		return s, errors.Errorf("malformed readstats file %s", path)
	}
	var err1, err2 error
	s.MeanDepth, err1 = strconv.ParseFloat(fields[0], 64)
	s.MeanBaseError, err2 = strconv.ParseFloat(fields[1], 64)
	if err1 != nil {
		return s, err1
	}
	if err2 != nil {
		return s, err2
	}
	totalReads, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return s, err
	}
	mappedReads, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return s, err
	}
	skippedReads, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return s, err
	}
	s.TotalReads, s.MappedReads, s.SkippedReads = totalReads, mappedReads, skippedReads
	return s, nil
}

// siteAlleles walks a bubble's node chains to recover each allele's base
// sequence as a string, in allele order (index 0 is allele 1, the
// reference).
func siteAlleles(graph *covgraph.Graph, entry covgraph.BubbleEntry) []string {
	start := graph.Node(entry.Start)
	alleles := make([]string, 0, len(start.Next))
	for _, firstNode := range start.Next {
		var b strings.Builder
		id := firstNode
		for {
			n := graph.Node(id)
			if n.IsBoundary {
				break
			}
			for _, base := range n.Sequence {
				b.WriteByte(baseChar(base))
			}
			if len(n.Next) == 0 {
				break
			}
			id = n.Next[0]
		}
		alleles = append(alleles, b.String())
	}
	return alleles
}

func baseChar(b prg.Base) byte {
	switch b {
	case prg.BaseA:
		return 'A'
	case prg.BaseC:
		return 'C'
	case prg.BaseG:
		return 'G'
	case prg.BaseT:
		return 'T'
	default:
		return 'N'
	}
}

func alleleCoverages(alleles []string, counts []genotype.AlleleGroupCount, numAlleles int) []uint64 {
	covs := make([]uint64, numAlleles)
	for _, g := range counts {
		if len(g.Alleles) != 1 {
			continue // Ambiguous groups don't attribute cleanly to one allele's COV field.
		}
		a := int(g.Alleles[0])
		if a >= 1 && a <= numAlleles {
			covs[a-1] += g.Count
		}
	}
	return covs
}

func totalCoverage(counts []genotype.AlleleGroupCount) uint64 {
	var total uint64
	for _, g := range counts {
		total += g.Count
	}
	return total
}

func main() {
	flag.Usage = genotypeUsage
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	out := *outPrefix
	if out == "" {
		out = *inPrefix
	}

	covData, err := readSnappy(ctx, *inPrefix+".mapped.cov.snappy")
	if err != nil {
		log.Panicf("reading %s.mapped.cov.snappy: %v", *inPrefix, err)
	}
	graph, err := covgraph.Deserialize(covData)
	if err != nil {
		log.Panicf("decoding coverage graph: %v", err)
	}

	groupCounts, err := readGroupCounts(ctx, *inPrefix+".groupcounts.json")
	if err != nil {
		log.Panicf("reading %s.groupcounts.json: %v", *inPrefix, err)
	}

	rs, err := readReadStats(ctx, *inPrefix+".readstats")
	if err != nil {
		log.Panicf("reading %s.readstats: %v", *inPrefix, err)
	}
	stats := genotype.NewStats(rs, *credibleCovMin)
	log.Debug.Printf("genotyping with mean depth %.2f, mean base error %.4f", rs.MeanDepth, rs.MeanBaseError)

	calls := make(map[prg.Marker]*genotype.Call, len(graph.BubbleMap))
	var allSites []prg.Marker
	records := make([]vcfwrite.SiteRecord, 0, len(graph.BubbleMap))

	for _, entry := range graph.BubbleMap {
		start := graph.Node(entry.Start)
		if len(start.Next) == 0 {
			continue
		}
		site := graph.Node(start.Next[0]).Site
		numAlleles := len(start.Next)
		counts := groupCounts[site]
		profiles := genotype.BuildCoverageProfiles(graph, entry, *credibleCovMin)

		call := genotype.CallSite(site, numAlleles, counts, profiles, stats, *ploidy)
		calls[site] = &call
		allSites = append(allSites, site)

		alleles := siteAlleles(graph, entry)
		haplogroups := make([]int, numAlleles)
		for i := range haplogroups {
			haplogroups[i] = i + 1
		}
		records = append(records, vcfwrite.SiteRecord{
			Pos:         graph.Node(entry.Start).Pos,
			Site:        site,
			Alleles:     alleles,
			Call:        call,
			Haplogroups: haplogroups,
			AlleleCovs:  alleleCoverages(alleles, counts, numAlleles),
			TotalCov:    totalCoverage(counts),
		})
	}

	genotype.InvalidateNestedCalls(calls, graph)
	for i := range records {
		records[i].Call = *calls[records[i].Site]
	}

	vcfPath := out + ".vcf"
	if err := writeVCF(ctx, vcfPath, records, *sample); err != nil {
		log.Panicf("writing %s: %v", vcfPath, err)
	}

	jsonPath := out + ".json"
	summary := vcfwrite.BuildPRGSummary(graph, allSites)
	if err := writeJSONSummary(ctx, jsonPath, records, summary); err != nil {
		log.Panicf("writing %s: %v", jsonPath, err)
	}

	log.Debug.Printf("genotyped %d sites, wrote %s and %s", len(records), vcfPath, jsonPath)
}

func writeVCF(ctx context.Context, path string, records []vcfwrite.SiteRecord, sample string) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	w := f.Writer(ctx)
	if err := vcfwrite.WriteVCFHeader(w, sample); err != nil {
		f.Close(ctx)
		return err
	}
	for _, r := range records {
		if err := vcfwrite.WriteVCFRecord(w, r); err != nil {
			f.Close(ctx)
			return err
		}
	}
	return f.Close(ctx)
}

func writeJSONSummary(ctx context.Context, path string, records []vcfwrite.SiteRecord, summary vcfwrite.PRGSummary) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := vcfwrite.WriteJSON(f.Writer(ctx), records, summary); err != nil {
		f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}
