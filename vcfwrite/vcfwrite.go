// Package vcfwrite renders genotyped sites as VCF records and as the
// per-site / per-PRG JSON summary blobs described in spec section 6,
// grounded on libgramtools's Genotyper::populate_prg and
// GenotypedSite::get_JSON.
package vcfwrite

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/martinghunt/gramtools/covgraph"
	"github.com/martinghunt/gramtools/genotype"
	"github.com/martinghunt/gramtools/prg"
)

// SiteRecord is everything needed to emit one site's VCF line and JSON
// entry: its alleles (as sequence strings), the call, its per-allele
// coverage, and the haplogroup each allele belongs to (its own allele ID,
// for the flat non-nested case; for nested sites this would be the parent
// allele, but a flat nesting-agnostic numbering is used here -- see
// DESIGN.md).
type SiteRecord struct {
	Chrom      string
	Pos        int
	Site       prg.Marker
	Alleles    []string // Alleles[0] is REF.
	Call       genotype.Call
	Haplogroups []int
	AlleleCovs []uint64
	TotalCov   uint64
}

// siteJSON mirrors GenotypedSite::get_JSON's fields.
type siteJSON struct {
	ALS  []string  `json:"ALS"`
	GT   [][]int   `json:"GT"`
	HAPG []int     `json:"HAPG"`
	COVS []uint64  `json:"COVS"`
	DP   []uint64  `json:"DP"`
}

func (r SiteRecord) json() siteJSON {
	gt := [][]int{nil}
	if !r.Call.Null {
		indices := make([]int, len(r.Call.Genotype))
		for i, a := range r.Call.Genotype {
			indices[i] = int(a)
		}
		gt = [][]int{indices}
	}
	return siteJSON{
		ALS:  r.Alleles,
		GT:   gt,
		HAPG: r.Haplogroups,
		COVS: r.AlleleCovs,
		DP:   []uint64{r.TotalCov},
	}
}

// PRGSummary mirrors Genotyper::populate_prg: the list of top-level sites
// (or "all" if the PRG is flat/non-nested) and, for nested PRGs, a map from
// each site to its children grouped by haplogroup.
type PRGSummary struct {
	Lvl1Sites []interface{}          `json:"Lvl1_Sites"`
	ChildMap  map[string]map[string][]prg.Marker `json:"Child_map"`
}

// BuildPRGSummary derives a PRGSummary from a coverage graph: non-nested
// graphs report a single "all" entry; nested graphs list every top-level
// (parent-less) site and group each site's nested children by the parent
// haplogroup (allele) they sit inside.
func BuildPRGSummary(g *covgraph.Graph, allSites []prg.Marker) PRGSummary {
	summary := PRGSummary{ChildMap: map[string]map[string][]prg.Marker{}}
	if !g.IsNested {
		summary.Lvl1Sites = []interface{}{"all"}
		return summary
	}
	for _, site := range allSites {
		if _, isChild := g.ParentalMap[site]; !isChild {
			summary.Lvl1Sites = append(summary.Lvl1Sites, site)
		}
	}
	for child, parent := range g.ParentalMap {
		key := strconv.FormatUint(uint64(parent.Site), 10)
		group, ok := summary.ChildMap[key]
		if !ok {
			group = map[string][]prg.Marker{}
			summary.ChildMap[key] = group
		}
		hapg := strconv.FormatUint(uint64(parent.Allele), 10)
		group[hapg] = append(group[hapg], child)
	}
	return summary
}

// WriteJSON writes the full JSON document: one entry per site plus the PRG
// summary, matching the shape get_JSON assembles incrementally.
func WriteJSON(w io.Writer, sites []SiteRecord, summary PRGSummary) error {
	doc := struct {
		Sites []siteJSON `json:"Sites"`
		PRG   PRGSummary `json:"PRG"`
	}{PRG: summary}
	for _, s := range sites {
		doc.Sites = append(doc.Sites, s.json())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteVCFHeader writes a minimal VCF 4.2 header for the given sample.
func WriteVCFHeader(w io.Writer, sample string) error {
	lines := []string{
		"##fileformat=VCFv4.2",
		`##INFO=<ID=SITE,Number=1,Type=Integer,Description="internal site marker id">`,
		`##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`,
		`##FORMAT=<ID=COV,Number=R,Type=Integer,Description="Per-allele coverage">`,
		`##FORMAT=<ID=DP,Number=1,Type=Integer,Description="Total depth">`,
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t" + sample,
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// WriteVCFRecord writes one VCF data line for r.
func WriteVCFRecord(w io.Writer, r SiteRecord) error {
	if len(r.Alleles) == 0 {
		return fmt.Errorf("vcfwrite: site %d has no alleles", r.Site)
	}
	ref := r.Alleles[0]
	alt := "."
	if len(r.Alleles) > 1 {
		alt = strings.Join(r.Alleles[1:], ",")
	}

	gt := "."
	if !r.Call.Null {
		parts := make([]string, len(r.Call.Genotype))
		for i, a := range r.Call.Genotype {
			parts[i] = strconv.FormatUint(uint64(a-1), 10) // VCF genotype indices are 0-based.
		}
		gt = strings.Join(parts, "/")
	}

	covParts := make([]string, len(r.AlleleCovs))
	for i, c := range r.AlleleCovs {
		covParts[i] = strconv.FormatUint(c, 10)
	}

	_, err := fmt.Fprintf(w, "%s\t%d\t.\t%s\t%s\t.\t.\tSITE=%d\tGT:COV:DP\t%s:%s:%d\n",
		chromOrDefault(r.Chrom), r.Pos, ref, alt, r.Site, gt, strings.Join(covParts, ","), r.TotalCov)
	return err
}

func chromOrDefault(chrom string) string {
	if chrom == "" {
		return "prg"
	}
	return chrom
}
