/*
gram-build parses a population reference graph, builds its FM-index and
coverage graph, and writes the PRG binary, the serialized coverage graph
and the FM-index checksum to disk for gram-quasimap and gram-genotype to
consume.
*/
package main

import (
	"context"
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
	"github.com/martinghunt/gramtools/fmindex"
	"github.com/martinghunt/gramtools/prg"
)

var (
	prgText = flag.String("prg-text", "", "Input PRG in bracket/comma textual form; this xor -prg-ints required")
	prgInts = flag.String("prg-ints", "", "Input PRG as a comma-separated integer vector; this xor -prg-text required")
	outPrefix = flag.String("out", "gram", "Output path prefix (<out>.prg.snappy, <out>.cov.snappy, <out>.sum written)")
)

func buildUsage() {
	fmt.Printf("Usage: %s -prg-text PATH -out PREFIX\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func readPRG(ctx context.Context) (*prg.String, error) {
	switch {
	case *prgText != "" && *prgInts != "":
		return nil, errors.New("only one of -prg-text or -prg-ints may be given")
	case *prgText != "":
		f, err := file.Open(ctx, *prgText)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", *prgText)
		}
		defer f.Close(ctx)
		data, err := ioutil.ReadAll(f.Reader(ctx))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", *prgText)
		}
		return prg.FromText(strings.TrimSpace(string(data)))
	case *prgInts != "":
		f, err := file.Open(ctx, *prgInts)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", *prgInts)
		}
		defer f.Close(ctx)
		data, err := ioutil.ReadAll(f.Reader(ctx))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", *prgInts)
		}
		fields := strings.Split(strings.TrimSpace(string(data)), ",")
		ints := make([]uint32, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing integer %q", field)
			}
			ints[i] = uint32(v)
		}
		return prg.FromIntegers(ints)
	default:
		return nil, errors.New("one of -prg-text or -prg-ints is required")
	}
}

func writeSnappy(ctx context.Context, path string, encode func(f file.File) error) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := encode(f); err != nil {
		f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}

func main() {
	flag.Usage = buildUsage
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	ps, err := readPRG(ctx)
	if err != nil {
		log.Fatalf("reading prg: %v", err)
	}
	log.Debug.Printf("parsed prg: %d elements", ps.Len())

	idx, err := fmindex.Build(ps)
	if err != nil {
		log.Panicf("building fm-index: %v", err)
	}
	log.Debug.Printf("built fm-index: %d text positions", idx.Len())

	graph, err := covgraph.Build(ps)
	if err != nil {
		log.Panicf("building coverage graph: %v", err)
	}
	log.Debug.Printf("built coverage graph: %d nodes, nested=%v", graph.NumNodes(), graph.IsNested)

	prgPath := *outPrefix + ".prg.snappy"
	if err := writeSnappy(ctx, prgPath, func(f file.File) error {
		sw := snappy.NewBufferedWriter(f.Writer(ctx))
		if err := ps.WriteBinary(sw, prg.LittleEndian); err != nil {
			return err
		}
		return sw.Close()
	}); err != nil {
		log.Panicf("writing %s: %v", prgPath, err)
	}

	covPath := *outPrefix + ".cov.snappy"
	if err := writeSnappy(ctx, covPath, func(f file.File) error {
		data, err := covgraph.Serialize(graph)
		if err != nil {
			return errors.Wrap(err, "serializing coverage graph")
		}
		sw := snappy.NewBufferedWriter(f.Writer(ctx))
		if _, err := sw.Write(data); err != nil {
			return err
		}
		return sw.Close()
	}); err != nil {
		log.Panicf("writing %s: %v", covPath, err)
	}

	sumPath := *outPrefix + ".sum"
	if err := writeSnappy(ctx, sumPath, func(f file.File) error {
		_, err := fmt.Fprintf(f.Writer(ctx), "%d\n", idx.Checksum())
		return err
	}); err != nil {
		log.Panicf("writing %s: %v", sumPath, err)
	}

	log.Debug.Printf("wrote %s, %s, %s", prgPath, covPath, sumPath)
}
