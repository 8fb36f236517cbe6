/*
gram-quasimap loads a PRG and its coverage graph (as produced by
gram-build), rebuilds the FM-index from the PRG, maps a FASTQ read set against them, and writes the resulting
coverage graph back out for gram-genotype to call.
*/
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"math"
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
	"github.com/martinghunt/gramtools/encoding/fastq"
	"github.com/martinghunt/gramtools/fmindex"
	"github.com/martinghunt/gramtools/genotype"
	"github.com/martinghunt/gramtools/kmerindex"
	"github.com/martinghunt/gramtools/prg"
	"github.com/martinghunt/gramtools/quasimap"
	"github.com/martinghunt/gramtools/readstats"
)

var (
	inPrefix    = flag.String("in", "gram", "Input path prefix, as written by gram-build")
	reads       = flag.String("reads", "", "FASTQ read file to map (local path or any grailbio/base/file scheme)")
	outPrefix   = flag.String("out", "", "Output path prefix for the mapped coverage graph; defaults to -in")
	maxStates   = flag.Int("max-states", 1 << 16, "Per-read search state cap; reads exceeding it are dropped")
	kmerLen     = flag.Int("kmer-len", 15, "Kmer length for the seed filter built over the PRG, and the seed length checked against it before running a full search; 0 disables seeding")
	parallelism = flag.Int("parallelism", 0, "Maximum number of concurrent mapping jobs; 0 = runtime.NumCPU()")
)

func quasimapUsage() {
	fmt.Printf("Usage: %s -in PREFIX -reads FASTQ -out PREFIX\n", os.Args[0])
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

func loadChecksum(ctx context.Context, path string) (uint64, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close(ctx)
	data, err := ioutil.ReadAll(f.Reader(ctx))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

// errorProbFromPhred33 converts a FASTQ Phred+33 quality character to a
// probability of error, the same convention libgramtools's read_stats
// module uses.
func errorProbFromPhred33(q byte) float64 {
	phred := float64(int(q) - 33)
	if phred < 0 {
		phred = 0
	}
	return errorProbTable[int(phred)%len(errorProbTable)]
}

var errorProbTable = buildErrorProbTable()

func buildErrorProbTable() [64]float64 {
	var t [64]float64
	for i := range t {
		// P(error) = 10^(-Q/10).
		t[i] = pow10(-float64(i) / 10)
	}
	return t
}

func pow10(x float64) float64 { return math.Pow(10, x) }

func encodeRead(seq string) []prg.Base {
	out := make([]prg.Base, 0, len(seq))
	for i := 0; i < len(seq); i++ {
		switch seq[i] {
		case 'A', 'a':
			out = append(out, prg.BaseA)
		case 'C', 'c':
			out = append(out, prg.BaseC)
		case 'G', 'g':
			out = append(out, prg.BaseG)
		case 'T', 't':
			out = append(out, prg.BaseT)
		default:
			return nil // Ns and other ambiguity codes can't seed an exact search.
		}
	}
	return out
}

func writeSnappyGraph(ctx context.Context, path string, graph *covgraph.Graph) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	data, err := covgraph.Serialize(graph)
	if err != nil {
		f.Close(ctx)
		return errors.Wrap(err, "serializing mapped coverage graph")
	}
	sw := snappy.NewBufferedWriter(f.Writer(ctx))
	if _, err := sw.Write(data); err != nil {
		f.Close(ctx)
		return err
	}
	if err := sw.Close(); err != nil {
		f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}

// writeGroupCounts persists the grouped allele coverage accumulated for
// every touched site, as JSON keyed by site marker (a string, since JSON
// object keys must be strings). gram-genotype reads this back to drive
// genotype.CallSite.
func writeGroupCounts(ctx context.Context, path string, m *quasimap.Mapper) error {
	out := make(map[string][]genotype.AlleleGroupCount)
	for _, site := range m.Sites() {
		out[strconv.FormatUint(uint64(site), 10)] = m.GroupedAlleleCounts(site)
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	enc := json.NewEncoder(f.Writer(ctx))
	if err := enc.Encode(out); err != nil {
		f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}

func writeReadStats(ctx context.Context, path string, s readstats.Stats) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	_, err = fmt.Fprintf(f.Writer(ctx), "%f\t%f\t%d\t%d\t%d\n",
		s.MeanDepth, s.MeanBaseError, s.TotalReads, s.MappedReads, s.SkippedReads)
	if err != nil {
		f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}

func main() {
	flag.Usage = quasimapUsage
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	if *reads == "" {
		log.Fatalf("-reads is required")
	}
	out := *outPrefix
	if out == "" {
		out = *inPrefix
	}

	prgData, err := readSnappy(ctx, *inPrefix+".prg.snappy")
	if err != nil {
		log.Panicf("reading %s.prg.snappy: %v", *inPrefix, err)
	}
	ps, err := prg.ReadBinary(bytes.NewReader(prgData))
	if err != nil {
		log.Panicf("decoding prg: %v", err)
	}

	covData, err := readSnappy(ctx, *inPrefix+".cov.snappy")
	if err != nil {
		log.Panicf("reading %s.cov.snappy: %v", *inPrefix, err)
	}
	graph, err := covgraph.Deserialize(covData)
	if err != nil {
		log.Panicf("decoding coverage graph: %v", err)
	}

	idx, err := fmindex.Build(ps)
	if err != nil {
		log.Panicf("rebuilding fm-index: %v", err)
	}
	wantChecksum, err := loadChecksum(ctx, *inPrefix+".sum")
	if err != nil {
		log.Panicf("reading checksum: %v", err)
	}
	if err := covgraph.VerifyChecksum(wantChecksum, idx.Checksum()); err != nil {
		log.Panicf("%v: %s does not match the coverage graph built alongside it", err, *inPrefix)
	}

	var filter *kmerindex.Index
	seedLen := 0
	if *kmerLen > 0 {
		filter, err = kmerindex.Build(ps, *kmerLen)
		if err != nil {
			log.Panicf("building kmer seed filter: %v", err)
		}
		defer filter.Close()
		// SeedLen must equal the filter's own k: MayContain can only look up
		// seeds of the length it was built for.
		seedLen = filter.K()
	}

	mapper := quasimap.NewMapper(idx, graph, quasimap.Options{
		MaxStates: *maxStates,
		SeedLen:   seedLen,
		Filter:    filter,
	})

	f, err := fastq.Open(ctx, *reads)
	if err != nil {
		log.Panicf("opening reads: %v", err)
	}
	defer f.Close()

	scanner := fastq.NewScanner(f, fastq.Seq|fastq.Qual)
	var batch [][]prg.Base
	var quals []string
	const batchSize = 4096
	var acc readstats.Accumulator

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := mapper.MapAll(batch, *parallelism); err != nil {
			log.Panicf("mapping batch: %v", err)
		}
		batch = batch[:0]
		quals = quals[:0]
	}

	var r fastq.Read
	for scanner.Scan(&r) {
		bases := encodeRead(r.Seq)
		if bases == nil {
			acc.ReadProcessed(false, true)
			continue
		}
		batch = append(batch, bases)
		quals = append(quals, r.Qual)
		if len(batch) >= batchSize {
			for _, q := range quals {
				errs := make([]float64, len(q))
				for i := 0; i < len(q); i++ {
					errs[i] = errorProbFromPhred33(q[i])
				}
				acc.AddQualityScores(errs)
			}
			flush()
		}
	}
	for _, q := range quals {
		errs := make([]float64, len(q))
		for i := 0; i < len(q); i++ {
			errs[i] = errorProbFromPhred33(q[i])
		}
		acc.AddQualityScores(errs)
	}
	flush()
	if err := scanner.Err(); err != nil {
		log.Panicf("scanning reads: %v", err)
	}

	for id := 0; id < graph.NumNodes(); id++ {
		n := graph.Node(covgraph.NodeID(id))
		if n.IsInBubble() {
			continue
		}
		for _, c := range n.Coverage {
			acc.AddBaseCoverage(c)
		}
	}

	readStats := mapper.ReadStats()
	depthStats := acc.Finish()
	readStats.MeanDepth = depthStats.MeanDepth
	readStats.MeanBaseError = depthStats.MeanBaseError
	readStats.TotalReads += depthStats.TotalReads
	readStats.SkippedReads += depthStats.SkippedReads

	covPath := out + ".mapped.cov.snappy"
	if err := writeSnappyGraph(ctx, covPath, graph); err != nil {
		log.Panicf("writing %s: %v", covPath, err)
	}
	countsPath := out + ".groupcounts.json"
	if err := writeGroupCounts(ctx, countsPath, mapper); err != nil {
		log.Panicf("writing %s: %v", countsPath, err)
	}
	statsPath := out + ".readstats"
	if err := writeReadStats(ctx, statsPath, readStats); err != nil {
		log.Panicf("writing %s: %v", statsPath, err)
	}

	log.Debug.Printf("mapped %d reads (%d mapped, %d skipped); mean depth %.2f, mean base error %.4f",
		readStats.TotalReads, readStats.MappedReads, readStats.SkippedReads, readStats.MeanDepth, readStats.MeanBaseError)
}
