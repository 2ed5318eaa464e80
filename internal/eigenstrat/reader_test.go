package eigenstrat

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSNP(t *testing.T) {
	input := "rs3094315\t1\t0.020130\t752566\tG\tA\n\nrs12124819\t1\t0.020242\t776546\tA\tG\r\n"

	variants, err := ReadSNP(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"rs3094315", "rs12124819"}, variants)
}

func TestReadSNP_NoTab(t *testing.T) {
	_, err := ReadSNP(strings.NewReader("rs1\t1\t0\t10\nrs2 1 0 20\n"))
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Line)
}

func TestReadIND(t *testing.T) {
	input := "S1\tM\tYoruba\nS2\tF\tFrench\n\nS1\tM\tHan\n"

	ind, err := ReadIND(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, ind.Len())
	assert.Equal(t, []string{"S1", "S2"}, ind.Order)
	assert.Equal(t, "Han", ind.Population["S1"])
	assert.Equal(t, "French", ind.Population["S2"])
	assert.True(t, ind.Has("S2"))
	assert.False(t, ind.Has("S3"))
}

func TestReadIND_TooFewColumns(t *testing.T) {
	_, err := ReadIND(strings.NewReader("S1\tM\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
	assert.Contains(t, err.Error(), "found 2")
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	snpPath := filepath.Join(dir, "ref.snp")
	indPath := filepath.Join(dir, "ref.ind")
	require.NoError(t, os.WriteFile(snpPath, []byte("rs1\t1\t0.0\t100\n"), 0644))
	require.NoError(t, os.WriteFile(indPath, []byte("S1\tU\tPOP\n"), 0644))

	variants, err := LoadSNP(snpPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"rs1"}, variants)

	ind, err := LoadIND(indPath)
	require.NoError(t, err)
	assert.Equal(t, "POP", ind.Population["S1"])

	_, err = LoadSNP(filepath.Join(dir, "missing.snp"))
	assert.Error(t, err)
}
