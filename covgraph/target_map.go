package covgraph

import "github.com/martinghunt/gramtools/prg"

// markerKind classifies a marker as it is encountered in a left-to-right
// scan of the PRG string: whether it is opening a site, separating two
// alleles, or closing a site.
type markerKind int

const (
	kindSiteEntry markerKind = iota
	kindAlleleEnd
	kindSiteExit
)

// buildTargetMap is the second pass described in spec 4.C: for every pair
// of adjacent markers in the PRG string (ignoring intervening sequence),
// one of three rules records a target-map entry, so the search engine can
// look up which markers are reachable by forking at a given marker.
func buildTargetMap(ps *prg.String) (map[prg.Marker][]TargetedMarker, error) {
	targetMap := map[prg.Marker][]TargetedMarker{}

	open := map[prg.Marker]bool{}
	alleleOrd := map[prg.Marker]uint32{}
	var prevMarker prg.Marker
	var havePrev bool
	var prevKind markerKind
	var sawBase bool // a base appeared since prevMarker

	for _, e := range ps.Elements() {
		if prg.IsBase(e) {
			sawBase = true
			continue
		}

		var curKind markerKind
		switch {
		case prg.IsAlleleMarker(e):
			curKind = kindAlleleEnd
			alleleOrd[prg.SiteMarkerOf(e)]++
		default:
			site := e
			if !open[site] {
				open[site] = true
				alleleOrd[site] = 1
				curKind = kindSiteEntry
			} else {
				open[site] = false
				curKind = kindSiteExit
			}
		}

		if havePrev {
			directDeletionAllele := AlleleUnknown
			if curKind == kindSiteExit && prevKind == kindAlleleEnd &&
				prg.SiteMarkerOf(prevMarker) == e && !sawBase {
				// The allele that started right after prevMarker never saw a
				// base before the site closed: a direct deletion.
				directDeletionAllele = alleleOrd[e]
			}
			addTarget(targetMap, prevMarker, TargetedMarker{
				ID:                   e,
				Kind:                 transitionKindOf(curKind),
				Locus:                targetLocus(curKind, e, alleleOrd),
				DirectDeletionAllele: directDeletionAllele,
			})
		}

		prevMarker, prevKind, havePrev = e, curKind, true
		sawBase = false
	}
	return targetMap, nil
}

// transitionKindOf maps the internal marker classification onto the
// exported TransitionKind used by search-path bookkeeping.
func transitionKindOf(k markerKind) TransitionKind {
	switch k {
	case kindSiteEntry:
		return TransitionSiteEntry
	case kindAlleleEnd:
		return TransitionAlleleEnd
	default:
		return TransitionSiteExit
	}
}

// targetLocus computes the (site, allele) locus implied by crossing into a
// marker of the given kind: entering a site or an allele names the allele
// now current; exiting a site names the site with no specific allele.
func targetLocus(k markerKind, marker prg.Marker, alleleOrd map[prg.Marker]uint32) prg.VariantLocus {
	switch k {
	case kindSiteEntry:
		return prg.VariantLocus{Site: marker, Allele: 1}
	case kindAlleleEnd:
		site := prg.SiteMarkerOf(marker)
		return prg.VariantLocus{Site: site, Allele: alleleOrd[site]}
	default: // kindSiteExit
		return prg.VariantLocus{Site: marker, Allele: AlleleUnknown}
	}
}

// addTarget inserts newTarget into targetMap[from], honouring the conflict
// policy: keep an existing entry for the same target ID unless the new one
// disambiguates a direct deletion, in which case upgrade it in place.
func addTarget(targetMap map[prg.Marker][]TargetedMarker, from prg.Marker, newTarget TargetedMarker) {
	list := targetMap[from]
	for i, existing := range list {
		if existing.ID == newTarget.ID {
			if existing.DirectDeletionAllele == AlleleUnknown && newTarget.DirectDeletionAllele != AlleleUnknown {
				list[i].DirectDeletionAllele = newTarget.DirectDeletionAllele
			}
			return
		}
	}
	targetMap[from] = append(list, newTarget)
}
