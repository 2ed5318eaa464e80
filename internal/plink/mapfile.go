// Package plink reads PLINK text genotype files (.map and .ped).
package plink

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/plinkeig/internal/fileio"
)

// DefaultSeparator joins a sequence label and a base-pair position when
// rendering a Locus as text.
const DefaultSeparator = "::"

// MAP file columns
const (
	ColSequence int = iota
	ColVariantID
	ColMorgans
	ColPosition
	mapColumns
)

// Locus is the genomic location a MAP line assigns to a variant.
type Locus struct {
	Sequence string
	Position int64
}

// Format renders the locus as sequence, separator, position.
func (l Locus) Format(sep string) string {
	return l.Sequence + sep + strconv.FormatInt(l.Position, 10)
}

// VariantIndex is the ordered content of a MAP file.
type VariantIndex struct {
	// Variants lists unique variant ids in file order.
	Variants []string
	// Loci holds the locus of the first definition of every variant.
	Loci map[string]Locus
	// Duplicates holds the zero-based MAP line positions that re-declare an
	// already seen variant. The matching PED genotype columns are dropped.
	Duplicates map[int]struct{}
	// Separator joins sequence and position in LocusString, which names
	// variants in diagnostics and reference matching.
	Separator string
}

// Len returns the number of unique variants.
func (x *VariantIndex) Len() int {
	return len(x.Variants)
}

// IsDuplicate reports whether the MAP line at position pos was redundant.
func (x *VariantIndex) IsDuplicate(pos int) bool {
	_, ok := x.Duplicates[pos]
	return ok
}

// LocusString returns the rendered locus of a variant, or "" if unknown.
func (x *VariantIndex) LocusString(variant string) string {
	l, ok := x.Loci[variant]
	if !ok {
		return ""
	}
	return l.Format(x.Separator)
}

// MapReader builds a VariantIndex from MAP file content.
type MapReader struct {
	name      string
	separator string
	logger    *zap.Logger
}

// NewMapReader creates a reader; name is only used in diagnostics.
func NewMapReader(name string) *MapReader {
	return &MapReader{
		name:      name,
		separator: DefaultSeparator,
		logger:    zap.NewNop(),
	}
}

// SetSeparator sets the locus separator stored in the resulting index.
func (m *MapReader) SetSeparator(sep string) {
	m.separator = sep
}

// SetLogger sets the logger for duplicate-variant warnings.
func (m *MapReader) SetLogger(l *zap.Logger) {
	m.logger = l
}

// Read consumes the whole MAP stream. Malformed lines are collected and
// reported together as a *FormatError once the stream is exhausted; the
// index built from the valid lines is returned alongside it.
func (m *MapReader) Read(r io.Reader) (*VariantIndex, error) {
	idx := &VariantIndex{
		Loci:       make(map[string]Locus),
		Duplicates: make(map[int]struct{}),
		Separator:  m.separator,
	}
	var errs ErrorLog

	lr := NewLineReader(r)
	for {
		raw, pos, ok, err := lr.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		line := NormalizeLine(raw)
		if IsBlank(line) {
			errs.Add(&ParseError{File: m.name, Line: pos, Message: "found empty line"})
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != mapColumns {
			errs.Add(&ParseError{
				File:    m.name,
				Line:    pos,
				Message: fmt.Sprintf("expected %d columns, found %d", mapColumns, len(fields)),
			})
			continue
		}

		bp, err := strconv.ParseInt(fields[ColPosition], 10, 64)
		if err != nil {
			errs.Add(&ParseError{
				File:    m.name,
				Line:    pos,
				Message: fmt.Sprintf("invalid base-pair position %q", fields[ColPosition]),
			})
			continue
		}

		variant := fields[ColVariantID]
		if _, seen := idx.Loci[variant]; seen {
			m.logger.Warn("variant is defined several times in MAP file",
				zap.String("variant", variant),
				zap.String("locus", idx.LocusString(variant)),
				zap.Int("position", pos))
			idx.Duplicates[pos] = struct{}{}
			continue
		}

		idx.Variants = append(idx.Variants, variant)
		idx.Loci[variant] = Locus{Sequence: fields[ColSequence], Position: bp}
	}

	return idx, errs.Err()
}

// ReadMapFile reads a plain, gzip or xz compressed MAP file.
func ReadMapFile(path, separator string, logger *zap.Logger) (*VariantIndex, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map file: %w", err)
	}
	defer rc.Close()

	m := NewMapReader(fileio.BaseName(path))
	if separator != "" {
		m.SetSeparator(separator)
	}
	if logger != nil {
		m.SetLogger(logger)
	}
	return m.Read(rc)
}
