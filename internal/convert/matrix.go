// Package convert builds Eigenstrat genotype matrices from PLINK PED files.
package convert

import "sort"

// Matrix maps variant id -> individual id -> genotype code.
type Matrix map[string]map[string]int

// NewMatrix creates an empty per-individual mapping for every variant.
func NewMatrix(variants []string) Matrix {
	m := make(Matrix, len(variants))
	for _, v := range variants {
		m[v] = make(map[string]int)
	}
	return m
}

// Code returns the code stored for individual at variant.
func (m Matrix) Code(variant, individual string) (int, bool) {
	calls, ok := m[variant]
	if !ok {
		return 0, false
	}
	code, ok := calls[individual]
	return code, ok
}

// Prune removes every listed variant and returns how many were present.
// Pruning the same set twice leaves the matrix unchanged.
func (m Matrix) Prune(variants map[string]struct{}) int {
	removed := 0
	for v := range variants {
		if _, ok := m[v]; ok {
			delete(m, v)
			removed++
		}
	}
	return removed
}

// Variants returns the matrix variants ordered by order, which is usually
// VariantIndex.Variants. Variants absent from order are appended sorted.
func (m Matrix) Variants(order []string) []string {
	out := make([]string, 0, len(m))
	seen := make(map[string]struct{}, len(m))
	for _, v := range order {
		if _, ok := m[v]; ok {
			out = append(out, v)
			seen[v] = struct{}{}
		}
	}
	var rest []string
	for v := range m {
		if _, ok := seen[v]; !ok {
			rest = append(rest, v)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
