// Package output writes converted genotype data.
package output

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/inodb/plinkeig/internal/convert"
	"github.com/inodb/plinkeig/internal/plink"
)

// MissingCode marks an individual without a genotype at a variant.
const MissingCode = 9

// unknownSex is written in the sex column of .ind files.
const unknownSex = "U"

// EigenstratWriter writes the .geno, .snp and .ind files of a conversion.
type EigenstratWriter struct {
	geno *bufio.Writer
	snp  *bufio.Writer
	ind  *bufio.Writer
}

// NewEigenstratWriter creates a writer over the three outputs.
func NewEigenstratWriter(geno, snp, ind io.Writer) *EigenstratWriter {
	return &EigenstratWriter{
		geno: bufio.NewWriter(geno),
		snp:  bufio.NewWriter(snp),
		ind:  bufio.NewWriter(ind),
	}
}

// Write writes one .geno and .snp row per retained variant in MAP order, and
// one .ind row per individual in PED order.
func (w *EigenstratWriter) Write(res *convert.Result, idx *plink.VariantIndex) error {
	row := make([]byte, len(res.Individuals)+1)
	row[len(row)-1] = '\n'

	for _, variant := range res.Matrix.Variants(idx.Variants) {
		for i, ind := range res.Individuals {
			code, ok := res.Matrix.Code(variant, ind)
			if !ok {
				code = MissingCode
			}
			if code < 0 || code > 9 {
				return fmt.Errorf("genotype code %d of %s at %s does not fit the geno format", code, ind, variant)
			}
			row[i] = byte('0' + code)
		}
		if _, err := w.geno.Write(row); err != nil {
			return err
		}

		locus := idx.Loci[variant]
		snpRow := []string{variant, locus.Sequence, "0.0", strconv.FormatInt(locus.Position, 10)}
		if _, err := w.snp.WriteString(strings.Join(snpRow, "\t") + "\n"); err != nil {
			return err
		}
	}

	for _, ind := range res.Individuals {
		indRow := []string{ind, unknownSex, res.Populations[ind]}
		if _, err := w.ind.WriteString(strings.Join(indRow, "\t") + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writers.
func (w *EigenstratWriter) Flush() error {
	for _, bw := range []*bufio.Writer{w.geno, w.snp, w.ind} {
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WriteEigenstrat creates <prefix>.geno, <prefix>.snp and <prefix>.ind on fs.
func WriteEigenstrat(fs afero.Fs, prefix string, res *convert.Result, idx *plink.VariantIndex) error {
	var files []afero.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	if err := fs.MkdirAll(filepath.Dir(prefix), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, ext := range []string{".geno", ".snp", ".ind"} {
		f, err := fs.Create(prefix + ext)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		files = append(files, f)
	}

	w := NewEigenstratWriter(files[0], files[1], files[2])
	if err := w.Write(res, idx); err != nil {
		return fmt.Errorf("write eigenstrat: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush eigenstrat: %w", err)
	}

	for _, f := range files {
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", f.Name(), err)
		}
	}
	files = nil
	return nil
}
