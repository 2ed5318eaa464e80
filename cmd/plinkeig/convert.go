package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/plinkeig/internal/archive"
	"github.com/inodb/plinkeig/internal/convert"
	"github.com/inodb/plinkeig/internal/eigenstrat"
	"github.com/inodb/plinkeig/internal/fileio"
	"github.com/inodb/plinkeig/internal/gtcode"
	"github.com/inodb/plinkeig/internal/output"
	"github.com/inodb/plinkeig/internal/plink"
	"github.com/inodb/plinkeig/internal/synonym"
)

// Output formats
const (
	FormatEigenstrat = "eigenstrat"
	FormatNumpy      = "numpy"
)

type convertOptions struct {
	mapPath      string
	pedPaths     []string
	codesPath    string
	synonymsPath string
	refSNPPath   string
	refINDPath   string
	separator    string
	progressFile string
	format       string
	workers      int
	out          string
}

func newConvertCmd(logger func() *zap.Logger) *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert PLINK .map/.ped files to Eigenstrat",
		Long: `Convert PLINK .map/.ped files to Eigenstrat .geno/.snp/.ind files.

Inputs may be plain, gzip or xz compressed. A PED file may also be a zip
archive holding exactly one file. Several --ped files share the MAP file and
are converted concurrently; each gets its own output prefix.`,
		Example: `  plinkeig convert --map data.map --ped data.ped --codes codes.tsv --out result
  plinkeig convert --map data.map --ped a.ped.gz --ped b.ped.zip --codes codes.tsv --out batch
  plinkeig convert --map data.map --ped data.ped --codes codes.tsv --format numpy --out matrix`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.applyConfig(cmd)
			if err := opts.validate(); err != nil {
				return err
			}
			return runConvert(cmd.Context(), opts, afero.NewOsFs(), logger())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mapPath, "map", "", "PLINK .map file (required)")
	f.StringSliceVar(&opts.pedPaths, "ped", nil, "PLINK .ped file, may be repeated (required)")
	f.StringVar(&opts.codesPath, "codes", "", "Genotype code table (required)")
	f.StringVar(&opts.synonymsPath, "synonyms", "", "Variant synonym file")
	f.StringVar(&opts.refSNPPath, "reference-snp", "", "Reference Eigenstrat .snp file to compare against")
	f.StringVar(&opts.refINDPath, "reference-ind", "", "Reference Eigenstrat .ind file to compare against")
	f.StringVar(&opts.separator, "separator", plink.DefaultSeparator, "Separator between sequence and position in locus strings")
	f.StringVar(&opts.progressFile, "progress-file", "", "File overwritten with the current progress")
	f.StringVar(&opts.format, "format", FormatEigenstrat, "Output format: eigenstrat, numpy")
	f.IntVar(&opts.workers, "workers", 0, "Concurrent PED conversions (0 = number of CPUs)")
	f.StringVarP(&opts.out, "out", "o", "", "Output prefix (required)")

	return cmd
}

// applyConfig fills options not set on the command line from config keys.
func (o *convertOptions) applyConfig(cmd *cobra.Command) {
	f := cmd.Flags()
	if !f.Changed("separator") && viper.IsSet("separator") {
		o.separator = viper.GetString("separator")
	}
	if !f.Changed("progress-file") && viper.IsSet("progress_file") {
		o.progressFile = viper.GetString("progress_file")
	}
	if !f.Changed("workers") && viper.IsSet("workers") {
		o.workers = viper.GetInt("workers")
	}
	if !f.Changed("format") && viper.IsSet("output.format") {
		o.format = viper.GetString("output.format")
	}
}

func (o *convertOptions) validate() error {
	switch {
	case o.mapPath == "":
		return usageErrorf("--map is required")
	case len(o.pedPaths) == 0:
		return usageErrorf("--ped is required")
	case o.codesPath == "":
		return usageErrorf("--codes is required")
	case slices.Contains(o.pedPaths, "-"):
		return usageErrorf("--ped cannot be read from stdin")
	case o.out == "":
		return usageErrorf("--out is required")
	case o.separator == "":
		return usageErrorf("--separator must not be empty")
	case o.workers < 0:
		return usageErrorf("--workers must not be negative")
	}
	switch o.format {
	case FormatEigenstrat, FormatNumpy:
	default:
		return usageErrorf("unknown output format %q", o.format)
	}
	return nil
}

// outputPrefix returns the prefix for the i-th PED file.
func (o *convertOptions) outputPrefix(i int) string {
	if len(o.pedPaths) == 1 {
		return o.out
	}
	return o.out + "." + trimExt(fileio.BaseName(o.pedPaths[i]))
}

func trimExt(name string) string {
	for _, ext := range []string{".zip", ".ped"} {
		if filepath.Ext(name) == ext {
			name = name[:len(name)-len(ext)]
		}
	}
	return name
}

func runConvert(ctx context.Context, opts *convertOptions, fs afero.Fs, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	idx, err := plink.ReadMapFile(opts.mapPath, opts.separator, logger)
	if err != nil {
		return fmt.Errorf("reading MAP file: %w", err)
	}
	logger.Info("loaded MAP file",
		zap.String("path", opts.mapPath), zap.Int("variants", idx.Len()),
		zap.Int("duplicates", len(idx.Duplicates)))

	codes, err := gtcode.Load(opts.codesPath)
	if err != nil {
		return fmt.Errorf("reading genotype codes: %w", err)
	}

	b := convert.NewBuilder(idx, codes)
	b.SetLogger(logger)

	if opts.synonymsPath != "" {
		syn, err := synonym.Load(opts.synonymsPath)
		if err != nil {
			return fmt.Errorf("reading synonyms: %w", err)
		}
		b.SetResolver(synonym.NewResolver(syn))
	}

	sinks := convert.MultiProgress{convert.NewLogProgress(logger)}
	if opts.progressFile != "" {
		sinks = append(sinks, convert.NewFileProgress(fs, opts.progressFile))
	}
	b.SetProgress(sinks)

	tmpDir, err := afero.TempDir(fs, "", "plinkeig")
	if err != nil {
		return fmt.Errorf("creating temporary directory: %w", err)
	}
	defer fs.RemoveAll(tmpDir)

	unzipper := archive.NewUnzipper(fs)
	unzipper.SetLogger(logger)
	pedPaths := make([]string, len(opts.pedPaths))
	for i, p := range opts.pedPaths {
		dest := filepath.Join(tmpDir, fmt.Sprint(i))
		pedPaths[i], err = unzipper.UnzipIfNeeded(p, dest)
		if err != nil {
			return err
		}
	}

	results, err := b.BuildAll(ctx, pedPaths, opts.workers)
	if err != nil {
		return err
	}

	ref, err := loadReference(opts)
	if err != nil {
		return err
	}

	for i, res := range results {
		prefix := opts.outputPrefix(i)
		if len(res.Unsupported) > 0 {
			logger.Warn("variants without genotype codes were dropped",
				zap.String("ped", opts.pedPaths[i]),
				zap.Strings("variants", res.Unsupported),
				zap.Strings("loci", loci(idx, res.Unsupported)))
		}
		if ref.snp != nil || ref.ind != nil {
			report := convert.CompareReference(res, idx, ref.snp, ref.ind)
			logger.Info("compared with reference",
				zap.String("ped", opts.pedPaths[i]),
				zap.Int("shared_variants", report.SharedVariants),
				zap.Int("missing_variants", len(report.MissingVariants)),
				zap.Strings("colliding_individuals", report.CollidingIndividuals))
			if len(report.MissingVariants) > 0 {
				logger.Debug("variants absent from reference",
					zap.Strings("loci", loci(idx, report.MissingVariants)))
			}
		}

		if err := writeResult(fs, opts.format, prefix, res, idx); err != nil {
			return err
		}
		logger.Info("wrote output",
			zap.String("prefix", prefix), zap.String("format", opts.format),
			zap.Int("individuals", len(res.Individuals)), zap.Int("variants", len(res.Matrix)))
	}
	return nil
}

// loci renders variant ids as "<id> <locus>" using the index separator.
func loci(idx *plink.VariantIndex, variants []string) []string {
	out := make([]string, len(variants))
	for i, v := range variants {
		out[i] = v + " " + idx.LocusString(v)
	}
	return out
}

type reference struct {
	snp []string
	ind *eigenstrat.Individuals
}

func loadReference(opts *convertOptions) (reference, error) {
	var ref reference
	var err error
	if opts.refSNPPath != "" {
		if ref.snp, err = eigenstrat.LoadSNP(opts.refSNPPath); err != nil {
			return ref, fmt.Errorf("reading reference .snp: %w", err)
		}
	}
	if opts.refINDPath != "" {
		if ref.ind, err = eigenstrat.LoadIND(opts.refINDPath); err != nil {
			return ref, fmt.Errorf("reading reference .ind: %w", err)
		}
	}
	return ref, nil
}

func writeResult(fs afero.Fs, format, prefix string, res *convert.Result, idx *plink.VariantIndex) error {
	switch format {
	case FormatNumpy:
		if err := fs.MkdirAll(filepath.Dir(prefix), 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		f, err := fs.OpenFile(prefix+".npy", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		if err := output.WriteNumpy(f, res, idx.Variants); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return output.WriteEigenstrat(fs, prefix, res, idx)
	}
}
