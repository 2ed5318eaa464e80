package convert

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/inodb/plinkeig/internal/fileio"
	"github.com/inodb/plinkeig/internal/gtcode"
	"github.com/inodb/plinkeig/internal/plink"
	"github.com/inodb/plinkeig/internal/synonym"
)

// ReadStep labels progress messages of a PED scan.
const ReadStep = "Reading genotypes provided by user"

// UnmappedGenotypeError reports a genotype call missing from the code table
// of a supported variant.
type UnmappedGenotypeError struct {
	File       string
	Line       int
	Variant    string
	Individual string
	Call       plink.Call
}

func (e *UnmappedGenotypeError) Error() string {
	return fmt.Sprintf("no genotype code for %q at variant %s (individual %s) in %s at position %d",
		e.Call.String(), e.Variant, e.Individual, e.File, e.Line)
}

// Result is the outcome of a successful PED scan.
type Result struct {
	// Matrix holds codes for supported variants only.
	Matrix Matrix
	// Individuals lists individual ids in PED order.
	Individuals []string
	// Populations maps each individual to the population of its last record.
	Populations map[string]string
	// Unsupported lists pruned variants in MAP order.
	Unsupported []string
}

// Builder converts PED content into a genotype matrix. The index, code table
// and resolver are only read, so one Builder may serve concurrent scans.
type Builder struct {
	name     string
	step     string
	index    *plink.VariantIndex
	codes    gtcode.Table
	resolver *synonym.Resolver
	progress ProgressSink
	logger   *zap.Logger
}

// NewBuilder creates a builder for PED files aligned with index.
func NewBuilder(index *plink.VariantIndex, codes gtcode.Table) *Builder {
	return &Builder{
		name:   "PED file",
		step:   ReadStep,
		index:  index,
		codes:  codes,
		logger: zap.NewNop(),
	}
}

// SetName sets the file name used in diagnostics.
func (b *Builder) SetName(name string) {
	b.name = name
}

// SetResolver enables code lookups under variant synonyms.
func (b *Builder) SetResolver(r *synonym.Resolver) {
	b.resolver = r
}

// SetProgress sets the sink receiving percentage updates.
func (b *Builder) SetProgress(p ProgressSink) {
	b.progress = p
}

// SetLogger sets the logger for informational and warning messages.
func (b *Builder) SetLogger(l *zap.Logger) {
	b.logger = l
}

// codesFor finds the code table entry of a variant, trying synonyms when a
// resolver is set. It returns nil for unsupported variants.
func (b *Builder) codesFor(variant string) gtcode.Codes {
	if codes, ok := b.codes[variant]; ok {
		return codes
	}
	if b.resolver == nil {
		return nil
	}
	for _, id := range b.resolver.Candidates(variant) {
		if codes, ok := b.codes[id]; ok {
			b.logger.Debug("using genotype codes of synonym",
				zap.String("variant", variant), zap.String("synonym", id))
			return codes
		}
	}
	return nil
}

// Build scans r once. totalLines is the pre-counted number of lines in r
// (see plink.CountLines) and only drives progress reporting.
//
// A missing call ("0 0") without its own code leaves the cell empty.
// Blank lines, malformed records and unmapped genotypes are collected and
// returned together as a *plink.FormatError after the scan. A
// *plink.WrongGenotypeCountError stops the scan at once; it is returned
// inside the FormatError with the problems collected so far. No result is
// returned on failure.
func (b *Builder) Build(r io.Reader, totalLines int) (*Result, error) {
	variants := b.index.Variants
	matrix := NewMatrix(variants)

	table := make([]gtcode.Codes, len(variants))
	unsupported := make(map[string]struct{})
	var unsupportedOrder []string
	for i, v := range variants {
		table[i] = b.codesFor(v)
		if table[i] == nil {
			unsupported[v] = struct{}{}
			unsupportedOrder = append(unsupportedOrder, v)
		}
	}

	res := &Result{Populations: make(map[string]string)}
	tracker := &progressTracker{
		sink:   b.progress,
		step:   b.step,
		total:  totalLines,
		logger: b.logger,
	}
	decoder := plink.NewPedDecoder(b.name, b.index)
	var errs plink.ErrorLog

	lr := plink.NewLineReader(r)
	for {
		raw, pos, ok, err := lr.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		line := plink.NormalizeLine(raw)
		switch {
		case plink.IsBlank(line):
			errs.Add(&plink.ParseError{File: b.name, Line: pos, Message: "found empty line"})
			tracker.lineConsumed()
			continue
		case plink.IsComment(line):
			b.logger.Info("skipping comment in PED file",
				zap.Int("position", pos), zap.String("comment", line))
			tracker.lineConsumed()
			continue
		}

		rec, err := decoder.Decode(line, pos)
		if err != nil {
			errs.Add(err)
			var wrong *plink.WrongGenotypeCountError
			if errors.As(err, &wrong) {
				return nil, errs.Err()
			}
			tracker.lineConsumed()
			continue
		}

		if _, seen := res.Populations[rec.Individual]; !seen {
			res.Individuals = append(res.Individuals, rec.Individual)
		}
		res.Populations[rec.Individual] = rec.Population

		for i, call := range rec.Calls {
			codes := table[i]
			if codes == nil {
				continue
			}
			code, ok := codes.Lookup(call)
			if !ok && call.Missing() {
				continue
			}
			if !ok {
				errs.Add(&UnmappedGenotypeError{
					File:       b.name,
					Line:       pos,
					Variant:    variants[i],
					Individual: rec.Individual,
					Call:       call,
				})
				continue
			}
			matrix[variants[i]][rec.Individual] = code
		}
		tracker.lineConsumed()
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	if removed := matrix.Prune(unsupported); removed > 0 {
		b.logger.Info("no genotype codes found for some variants",
			zap.Int("unsupported", removed),
			zap.Int("variants", len(variants)))
	}
	res.Matrix = matrix
	res.Unsupported = unsupportedOrder
	return res, nil
}

// BuildFile counts the lines of a PED file, then scans it.
func (b *Builder) BuildFile(path string) (*Result, error) {
	total, err := countFileLines(path)
	if err != nil {
		return nil, err
	}

	rc, err := fileio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ped file: %w", err)
	}
	defer rc.Close()

	fb := *b
	fb.name = fileio.BaseName(path)
	return fb.Build(rc, total)
}

func countFileLines(path string) (int, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open ped file: %w", err)
	}
	defer rc.Close()
	return plink.CountLines(rc)
}
