package plink

import (
	"fmt"
	"strings"
)

// PED layout: six single-space separated metadata fields, then one
// fixed-width stride per genotype call ("a1 a2" plus a separator).
const (
	ColPopulation int = iota
	ColIndividual
	ColPaternal
	ColMaternal
	ColSex
	ColPhenotype
	metadataFields

	callWidth   = 3
	strideWidth = 4
)

// Call is one genotype call read from a PED stride.
type Call struct {
	Allele1 byte
	Allele2 byte
}

// Key returns the two-character allele pair used for code lookups.
func (c Call) Key() string {
	return string([]byte{c.Allele1, c.Allele2})
}

// MissingAllele is the PLINK allele code for an unknown allele.
const MissingAllele = '0'

// Missing reports whether c is the PLINK missing genotype "0 0".
func (c Call) Missing() bool {
	return c.Allele1 == MissingAllele && c.Allele2 == MissingAllele
}

// String returns the call as it appears in a PED file, e.g. "A G".
func (c Call) String() string {
	return string([]byte{c.Allele1, ' ', c.Allele2})
}

// ParseCall converts a two-character pair or a three-character "a1 a2"
// stride into a Call.
func ParseCall(s string) (Call, bool) {
	switch {
	case len(s) == 2 && s[0] != ' ' && s[1] != ' ':
		return Call{Allele1: s[0], Allele2: s[1]}, true
	case len(s) == callWidth && isCallSeparator(s[1]) && s[0] != ' ' && s[2] != ' ':
		return Call{Allele1: s[0], Allele2: s[2]}, true
	}
	return Call{}, false
}

func isCallSeparator(b byte) bool {
	return b == ' ' || b == '\t'
}

// Record is one decoded PED line. Calls is aligned with VariantIndex.Variants.
type Record struct {
	Population string
	Individual string
	Calls      []Call
}

// PedDecoder decodes PED lines against a VariantIndex.
type PedDecoder struct {
	name  string
	index *VariantIndex
}

// NewPedDecoder creates a decoder; name is only used in diagnostics.
func NewPedDecoder(name string, index *VariantIndex) *PedDecoder {
	return &PedDecoder{name: name, index: index}
}

// SplitMetadata separates the metadata fields of a PED line from its
// genotype section.
func SplitMetadata(line string) (population, individual, genotypes string, ok bool) {
	parts := strings.SplitN(line, " ", metadataFields+1)
	if len(parts) <= metadataFields {
		return "", "", "", false
	}
	return parts[ColPopulation], parts[ColIndividual], parts[metadataFields], true
}

// Decode decodes one PED line found at zero-based position pos. Tabs must
// already have been turned into spaces. Strides at MAP duplicate positions
// are skipped. A count mismatch yields a *WrongGenotypeCountError, any other
// layout problem a *ParseError.
func (d *PedDecoder) Decode(line string, pos int) (*Record, error) {
	population, individual, genotypes, ok := SplitMetadata(line)
	if !ok {
		return nil, &ParseError{
			File:    d.name,
			Line:    pos,
			Message: fmt.Sprintf("expected %d metadata fields before genotypes", metadataFields),
		}
	}

	nVariants := d.index.Len()
	rec := &Record{
		Population: population,
		Individual: individual,
		Calls:      make([]Call, 0, nVariants),
	}

	it := newStrideIter(genotypes)
	for stride := 0; ; stride++ {
		raw, more, err := it.next()
		if err != nil {
			return nil, &ParseError{File: d.name, Line: pos, Message: err.Error()}
		}
		if !more {
			break
		}
		if d.index.IsDuplicate(stride) {
			continue
		}
		if len(rec.Calls) == nVariants {
			return nil, &WrongGenotypeCountError{Line: pos, Variants: nVariants, Calls: nVariants + 1}
		}
		call, _ := ParseCall(raw)
		rec.Calls = append(rec.Calls, call)
	}

	if len(rec.Calls) != nVariants {
		return nil, &WrongGenotypeCountError{Line: pos, Variants: nVariants, Calls: len(rec.Calls)}
	}
	return rec, nil
}

// strideIter walks fixed-width genotype strides with explicit bounds checks.
type strideIter struct {
	s   string
	off int
}

func newStrideIter(genotypes string) *strideIter {
	return &strideIter{s: strings.TrimRight(genotypes, " ")}
}

func (it *strideIter) next() (string, bool, error) {
	if it.off >= len(it.s) {
		return "", false, nil
	}
	end := it.off + callWidth
	if end > len(it.s) {
		return "", false, fmt.Errorf("truncated genotype call %q at column %d", it.s[it.off:], it.off)
	}
	raw := it.s[it.off:end]
	if _, ok := ParseCall(raw); !ok {
		return "", false, fmt.Errorf("malformed genotype call %q at column %d", raw, it.off)
	}
	if end < len(it.s) && it.s[end] != ' ' {
		return "", false, fmt.Errorf("missing separator after genotype call %q at column %d", raw, it.off)
	}
	it.off += strideWidth
	return raw, true, nil
}

// FormatLine renders a PED line with unknown parentage, sex and phenotype.
func FormatLine(population, individual string, calls []Call) string {
	var sb strings.Builder
	sb.Grow(len(population) + len(individual) + 9 + len(calls)*strideWidth)
	sb.WriteString(population)
	sb.WriteByte(' ')
	sb.WriteString(individual)
	sb.WriteString(" 0 0 0 0")
	for _, c := range calls {
		sb.WriteByte(' ')
		sb.WriteString(c.String())
	}
	return sb.String()
}
