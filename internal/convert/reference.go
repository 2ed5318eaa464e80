package convert

import (
	"github.com/inodb/plinkeig/internal/eigenstrat"
	"github.com/inodb/plinkeig/internal/plink"
)

// ReferenceReport compares converted data with a reference panel.
type ReferenceReport struct {
	// SharedVariants counts retained variants listed in the reference .snp,
	// either by id or by locus rendered with the index separator.
	SharedVariants int
	// MissingVariants lists retained variants absent from the reference, in
	// matrix order.
	MissingVariants []string
	// CollidingIndividuals lists user individuals whose id is already used
	// by a reference individual.
	CollidingIndividuals []string
}

// CompareReference checks res against reference variants and individuals.
// Variants are reported in the order of idx. Either reference may be nil.
func CompareReference(res *Result, idx *plink.VariantIndex, refVariants []string, refIndividuals *eigenstrat.Individuals) *ReferenceReport {
	report := &ReferenceReport{}

	if refVariants != nil {
		known := make(map[string]struct{}, len(refVariants))
		for _, v := range refVariants {
			known[v] = struct{}{}
		}
		for _, v := range res.Matrix.Variants(idx.Variants) {
			_, byID := known[v]
			_, byLocus := known[idx.LocusString(v)]
			if byID || byLocus {
				report.SharedVariants++
			} else {
				report.MissingVariants = append(report.MissingVariants, v)
			}
		}
	}

	if refIndividuals != nil {
		for _, ind := range res.Individuals {
			if refIndividuals.Has(ind) {
				report.CollidingIndividuals = append(report.CollidingIndividuals, ind)
			}
		}
	}

	return report
}
