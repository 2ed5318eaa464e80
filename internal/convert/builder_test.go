package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/inodb/plinkeig/internal/eigenstrat"
	"github.com/inodb/plinkeig/internal/gtcode"
	"github.com/inodb/plinkeig/internal/plink"
	"github.com/inodb/plinkeig/internal/synonym"
)

func mapIndex(t *testing.T, lines ...string) *plink.VariantIndex {
	t.Helper()
	idx, err := plink.NewMapReader("test.map").Read(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	return idx
}

func codeTable(t *testing.T, lines ...string) gtcode.Table {
	t.Helper()
	tbl, err := gtcode.Read(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	return tbl
}

func build(t *testing.T, b *Builder, ped string) (*Result, error) {
	t.Helper()
	total, err := plink.CountLines(strings.NewReader(ped))
	require.NoError(t, err)
	return b.Build(strings.NewReader(ped), total)
}

type recordingSink struct {
	percents []int
	fail     bool
}

func (s *recordingSink) Progress(step string, percent int) error {
	s.percents = append(s.percents, percent)
	if s.fail {
		return errors.New("progress transport down")
	}
	return nil
}

func TestBuild_Basic(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100", "1 rs2 0 200")
	codes := codeTable(t, "rs1\tA A:0", "rs2\tA A:0\tA B:1")

	res, err := build(t, NewBuilder(idx, codes), "POP1 IND1 0 0 0 0 A A A B\nPOP2 IND2 0 0 0 0 A A A A\n")
	require.NoError(t, err)

	assert.Equal(t, Matrix{
		"rs1": {"IND1": 0, "IND2": 0},
		"rs2": {"IND1": 1, "IND2": 0},
	}, res.Matrix)
	assert.Equal(t, []string{"IND1", "IND2"}, res.Individuals)
	assert.Equal(t, map[string]string{"IND1": "POP1", "IND2": "POP2"}, res.Populations)
	assert.Empty(t, res.Unsupported)
}

func TestBuild_UnmappedGenotypeFails(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100", "1 rs2 0 200")
	codes := codeTable(t, "rs1\tA A:0", "rs2\tA A:0\tA B:1")

	res, err := build(t, NewBuilder(idx, codes), "POP1 IND1 0 0 0 0 A A B B\nPOP1 IND2 0 0 0 0 A A C C\n")
	require.Error(t, err)
	assert.Nil(t, res)

	var fe *plink.FormatError
	require.True(t, errors.As(err, &fe))
	require.Len(t, fe.Errs, 2, "every unmapped genotype is reported")

	var unmapped *UnmappedGenotypeError
	require.True(t, errors.As(err, &unmapped))
	assert.Equal(t, "rs2", unmapped.Variant)
	assert.Equal(t, "IND1", unmapped.Individual)
	assert.Equal(t, "B B", unmapped.Call.String())
	assert.Contains(t, err.Error(), `no genotype code for "B B" at variant rs2`)
}

func TestBuild_MissingGenotype(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100", "1 rs2 0 200")

	t.Run("no code for missing", func(t *testing.T) {
		codes := codeTable(t, "rs1\tA A:0\tA G:1", "rs2\tC C:0")
		res, err := build(t, NewBuilder(idx, codes), "P I1 0 0 0 0 0 0 C C\nP I2 0 0 0 0 A G 0 0\n")
		require.NoError(t, err)

		_, ok := res.Matrix.Code("rs1", "I1")
		assert.False(t, ok)
		_, ok = res.Matrix.Code("rs2", "I2")
		assert.False(t, ok)
		assert.Equal(t, Matrix{
			"rs1": {"I2": 1},
			"rs2": {"I1": 0},
		}, res.Matrix)
	})

	t.Run("explicit code for missing", func(t *testing.T) {
		codes := codeTable(t, "rs1\tA A:0\t0 0:9", "rs2\tC C:0")
		res, err := build(t, NewBuilder(idx, codes), "P I1 0 0 0 0 0 0 C C\n")
		require.NoError(t, err)

		code, ok := res.Matrix.Code("rs1", "I1")
		assert.True(t, ok)
		assert.Equal(t, 9, code)
	})

	t.Run("half missing is unmapped", func(t *testing.T) {
		codes := codeTable(t, "rs1\tA A:0", "rs2\tC C:0")
		_, err := build(t, NewBuilder(idx, codes), "P I1 0 0 0 0 A 0 C C\n")
		var unmapped *UnmappedGenotypeError
		require.ErrorAs(t, err, &unmapped)
		assert.Equal(t, "A 0", unmapped.Call.String())
	})
}

func TestBuild_PrunesUnsupportedVariants(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100", "1 rs2 0 200", "1 rs3 0 300")
	codes := codeTable(t, "rs2\tG G:2\tG T:1")

	core, logs := observer.New(zap.InfoLevel)
	b := NewBuilder(idx, codes)
	b.SetLogger(zap.New(core))

	res, err := build(t, b, "P I1 0 0 0 0 X Y G T Z Z\n")
	require.NoError(t, err)

	assert.Equal(t, Matrix{"rs2": {"I1": 1}}, res.Matrix)
	assert.Equal(t, []string{"rs1", "rs3"}, res.Unsupported)
	assert.Equal(t, 1, logs.FilterMessage("no genotype codes found for some variants").Len())
}

func TestBuild_NoDataLinesStillPrunes(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100", "1 rs2 0 200")
	codes := codeTable(t, "rs1\tA A:0")

	res, err := build(t, NewBuilder(idx, codes), "# only a comment\n")
	require.NoError(t, err)
	assert.Equal(t, Matrix{"rs1": {}}, res.Matrix)
	assert.Empty(t, res.Individuals)
}

func TestBuild_DuplicateStridesDropped(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100", "1 rs2 0 200", "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0\tT T:2", "rs2\tC C:1")

	res, err := build(t, NewBuilder(idx, codes), "P I 0 0 0 0 A A C C T T\n")
	require.NoError(t, err)
	assert.Equal(t, Matrix{"rs1": {"I": 0}, "rs2": {"I": 1}}, res.Matrix)
}

func TestBuild_CommentsAreSkipped(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")

	core, logs := observer.New(zap.InfoLevel)
	b := NewBuilder(idx, codes)
	b.SetLogger(zap.New(core))

	res, err := build(t, b, "# exported by tool\nP I 0 0 0 0 A A\n")
	require.NoError(t, err)
	assert.Equal(t, Matrix{"rs1": {"I": 0}}, res.Matrix)
	assert.Equal(t, 1, logs.FilterMessage("skipping comment in PED file").Len())
}

func TestBuild_BlankLinesAggregated(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")

	b := NewBuilder(idx, codes)
	b.SetName("cohort.ped")
	res, err := build(t, b, "P I1 0 0 0 0 A A\n\nP I2 0 0 0 0 A A\n   \nP I3 0 0 0 0 A A\n")
	require.Error(t, err)
	assert.Nil(t, res)

	var fe *plink.FormatError
	require.True(t, errors.As(err, &fe))
	require.Len(t, fe.Errs, 2)
	assert.Contains(t, err.Error(), "found empty line in cohort.ped at position 1")
	assert.Contains(t, err.Error(), "found empty line in cohort.ped at position 3")
}

func TestBuild_StructuralMismatchAbortsImmediately(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")

	ped := strings.Join([]string{
		"P I1 0 0 0 0 A A",
		"",
		"P I2 0 0 0 0 A A A A",
		"",
		"P I3 0 0 0 0 B B",
	}, "\n")
	_, err := build(t, NewBuilder(idx, codes), ped)
	require.Error(t, err)

	var wrong *plink.WrongGenotypeCountError
	require.True(t, errors.As(err, &wrong))
	assert.Equal(t, 2, wrong.Line)

	var fe *plink.FormatError
	require.True(t, errors.As(err, &fe))
	require.Len(t, fe.Errs, 2, "problems after the mismatch are never reached")
	assert.Contains(t, err.Error(), "position 1")
	assert.NotContains(t, err.Error(), "position 3")

	var unmapped *UnmappedGenotypeError
	assert.False(t, errors.As(err, &unmapped))
}

func TestBuild_MalformedRecordIsAggregated(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")

	_, err := build(t, NewBuilder(idx, codes), "P I1 0 0\nP I2 0 0 0 0 A A\n")
	require.Error(t, err)

	var pe *plink.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 0, pe.Line)
}

func TestBuild_LastPopulationWins(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0\tA C:1")

	res, err := build(t, NewBuilder(idx, codes), "P1 I 0 0 0 0 A A\nP2 I 0 0 0 0 A C\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"I"}, res.Individuals)
	assert.Equal(t, "P2", res.Populations["I"])
	assert.Equal(t, Matrix{"rs1": {"I": 1}}, res.Matrix)
}

func TestBuild_SynonymCodes(t *testing.T) {
	idx := mapIndex(t, "1 ilmn1 0 100", "1 rs2 0 200")
	codes := codeTable(t, "rs1\tA A:0", "kgp2\tC C:2")

	b := NewBuilder(idx, codes)
	b.SetResolver(synonym.NewResolver(synonym.Table{
		"rs1": {"ilmn1"},
		"rs2": {"kgp2"},
	}))

	res, err := build(t, b, "P I 0 0 0 0 A A C C\n")
	require.NoError(t, err)
	assert.Equal(t, Matrix{"ilmn1": {"I": 0}, "rs2": {"I": 2}}, res.Matrix)
}

func pedLines(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "P I%d 0 0 0 0 A A\n", i)
	}
	return sb.String()
}

func TestBuild_ProgressMonotonic(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")

	sink := &recordingSink{}
	b := NewBuilder(idx, codes)
	b.SetProgress(sink)

	_, err := build(t, b, pedLines(40))
	require.NoError(t, err)

	require.NotEmpty(t, sink.percents)
	for i := 1; i < len(sink.percents); i++ {
		assert.Greater(t, sink.percents[i], sink.percents[i-1])
	}
	assert.Equal(t, 40, len(sink.percents))
	assert.Equal(t, 100, sink.percents[len(sink.percents)-1])
}

func TestBuild_ProgressDeduplicated(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")

	sink := &recordingSink{}
	b := NewBuilder(idx, codes)
	b.SetProgress(sink)

	_, err := build(t, b, pedLines(250))
	require.NoError(t, err)
	assert.Len(t, sink.percents, 100)
}

func TestBuild_NoProgressForSmallInputs(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")

	sink := &recordingSink{}
	b := NewBuilder(idx, codes)
	b.SetProgress(sink)

	_, err := build(t, b, pedLines(10))
	require.NoError(t, err)
	assert.Empty(t, sink.percents)
}

func TestBuild_ProgressFailureIsNotFatal(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")

	core, logs := observer.New(zap.WarnLevel)
	sink := &recordingSink{fail: true}
	b := NewBuilder(idx, codes)
	b.SetProgress(sink)
	b.SetLogger(zap.New(core))

	res, err := build(t, b, pedLines(20))
	require.NoError(t, err)
	assert.Len(t, res.Individuals, 20)
	assert.NotZero(t, logs.FilterMessage("could not report progress").Len())
}

func TestFileProgress(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewFileProgress(fs, "/tmp/progress.txt")

	require.NoError(t, p.Progress(ReadStep, 12))
	require.NoError(t, p.Progress(ReadStep, 13))

	data, err := afero.ReadFile(fs, "/tmp/progress.txt")
	require.NoError(t, err)
	assert.Equal(t, "Reading genotypes provided by user... 13%", string(data))
}

func TestFileProgress_ConcurrentWriters(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewFileProgress(fs, "/tmp/progress.txt")

	steps := []string{ReadStep + " (a.ped)", ReadStep + " (bb.ped)", ReadStep + " (ccc.ped)"}
	var wg sync.WaitGroup
	for _, step := range steps {
		step := step
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pct := 1; pct <= 100; pct++ {
				assert.NoError(t, p.Progress(step, pct))
			}
		}()
	}
	wg.Wait()

	data, err := afero.ReadFile(fs, "/tmp/progress.txt")
	require.NoError(t, err)
	var valid []string
	for _, step := range steps {
		valid = append(valid, FormatProgress(step, 100))
	}
	assert.Contains(t, valid, string(data))
}

func TestMultiProgress(t *testing.T) {
	a := &recordingSink{fail: true}
	c := &recordingSink{}
	err := MultiProgress{a, NewLogProgress(zap.NewNop()), c}.Progress("step", 5)
	assert.Error(t, err)
	assert.Equal(t, []int{5}, a.percents)
	assert.Equal(t, []int{5}, c.percents)
}

func TestMatrix_PruneIdempotent(t *testing.T) {
	m := Matrix{"rs1": {"I": 0}, "rs2": {"I": 1}, "rs3": {}}
	drop := map[string]struct{}{"rs2": {}, "rs3": {}, "rs9": {}}

	assert.Equal(t, 2, m.Prune(drop))
	once := Matrix{"rs1": {"I": 0}}
	assert.Equal(t, once, m)

	assert.Equal(t, 0, m.Prune(drop))
	assert.Equal(t, once, m)
}

func TestMatrix_Variants(t *testing.T) {
	m := Matrix{"rs3": {}, "rs1": {}, "zz": {}, "aa": {}}
	assert.Equal(t, []string{"rs1", "rs3", "aa", "zz"}, m.Variants([]string{"rs1", "rs2", "rs3"}))

	code, ok := Matrix{"rs1": {"I": 2}}.Code("rs1", "I")
	assert.True(t, ok)
	assert.Equal(t, 2, code)
	_, ok = Matrix{"rs1": {"I": 2}}.Code("rs2", "I")
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100", "1 rs2 0 200", "2 rs3 0 50", "2 rs4 0 60")
	codes := codeTable(t,
		"rs1\tA A:2\tA G:1\tG G:0\t0 0:9",
		"rs2\tC C:2\tC T:1\tT T:0\t0 0:9",
		"rs4\tG G:2\tG T:1\tT T:0")

	original := Matrix{
		"rs1": {"I1": 2, "I2": 1, "I3": 9},
		"rs2": {"I1": 0, "I2": 1, "I3": 2},
		"rs4": {"I1": 1, "I2": 0, "I3": 2},
	}
	individuals := []string{"I1", "I2", "I3"}
	inv := codes.Inverse()

	var ped strings.Builder
	for _, ind := range individuals {
		var calls []plink.Call
		for _, v := range idx.Variants {
			code, ok := original.Code(v, ind)
			if !ok {
				calls = append(calls, plink.Call{Allele1: '0', Allele2: '0'})
				continue
			}
			calls = append(calls, inv[v][code])
		}
		ped.WriteString(plink.FormatLine("POP", ind, calls))
		ped.WriteByte('\n')
	}

	res, err := build(t, NewBuilder(idx, codes), ped.String())
	require.NoError(t, err)
	assert.Equal(t, original, res.Matrix)
	assert.Equal(t, individuals, res.Individuals)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBuildFile(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")
	dir := t.TempDir()
	path := writeFile(t, dir, "cohort.ped", "\nP I 0 0 0 0 A A\n")

	_, err := NewBuilder(idx, codes).BuildFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in cohort.ped at position 0")

	_, err = NewBuilder(idx, codes).BuildFile(filepath.Join(dir, "missing.ped"))
	assert.Error(t, err)
}

func TestBuildAll(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100", "1 rs2 0 200")
	codes := codeTable(t, "rs1\tA A:0\tA C:1", "rs2\tG G:2")
	dir := t.TempDir()

	var paths []string
	for i := 0; i < 6; i++ {
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("batch%d.ped", i),
			fmt.Sprintf("P B%d 0 0 0 0 A C G G\n", i)))
	}

	results, err := NewBuilder(idx, codes).BuildAll(context.Background(), paths, 3)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, res := range results {
		ind := fmt.Sprintf("B%d", i)
		assert.Equal(t, []string{ind}, res.Individuals)
		assert.Equal(t, Matrix{"rs1": {ind: 1}, "rs2": {ind: 2}}, res.Matrix)
	}
}

func TestBuildAll_Failure(t *testing.T) {
	idx := mapIndex(t, "1 rs1 0 100")
	codes := codeTable(t, "rs1\tA A:0")
	dir := t.TempDir()

	good := writeFile(t, dir, "good.ped", "P I 0 0 0 0 A A\n")
	bad := writeFile(t, dir, "bad.ped", "P I 0 0 0 0 A A A A\n")

	results, err := NewBuilder(idx, codes).BuildAll(context.Background(), []string{good, bad}, 0)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "bad.ped")

	var wrong *plink.WrongGenotypeCountError
	assert.True(t, errors.As(err, &wrong))
}

func TestCompareReference_Separator(t *testing.T) {
	res := &Result{Matrix: Matrix{"rs1": {}, "rs2": {}}}
	ref := []string{"1:100", "1::200"}

	r := plink.NewMapReader("test.map")
	r.SetSeparator(":")
	idx, err := r.Read(strings.NewReader("1 rs1 0 100\n1 rs2 0 200\n"))
	require.NoError(t, err)

	report := CompareReference(res, idx, ref, nil)
	assert.Equal(t, 1, report.SharedVariants)
	assert.Equal(t, []string{"rs2"}, report.MissingVariants)
}

func TestCompareReference(t *testing.T) {
	res := &Result{
		Matrix:      Matrix{"rs1": {}, "rs2": {}, "rs3": {}},
		Individuals: []string{"S1", "NEW"},
	}
	refInd := &eigenstrat.Individuals{
		Order:      []string{"S1"},
		Population: map[string]string{"S1": "Yoruba"},
	}

	idx := mapIndex(t, "1 rs1 0 100", "1 rs2 0 200", "2 rs3 0 300")

	report := CompareReference(res, idx, []string{"rs2", "rs9", "2::300"}, refInd)
	assert.Equal(t, 2, report.SharedVariants)
	assert.Equal(t, []string{"rs1"}, report.MissingVariants)
	assert.Equal(t, []string{"S1"}, report.CollidingIndividuals)

	empty := CompareReference(res, idx, nil, nil)
	assert.Zero(t, empty.SharedVariants)
	assert.Empty(t, empty.CollidingIndividuals)
}
