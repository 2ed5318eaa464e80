package output

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/kshedden/gonpy"

	"github.com/inodb/plinkeig/internal/convert"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// WriteNumpy writes the matrix as an int8 .npy array with one row per
// retained variant (in order) and one column per individual.
func WriteNumpy(w io.Writer, res *convert.Result, order []string) error {
	variants := res.Matrix.Variants(order)
	rows, cols := len(variants), len(res.Individuals)

	data := make([]int8, rows*cols)
	for r, variant := range variants {
		for c, ind := range res.Individuals {
			code, ok := res.Matrix.Code(variant, ind)
			if !ok {
				code = MissingCode
			}
			if code < math.MinInt8 || code > math.MaxInt8 {
				return fmt.Errorf("genotype code %d of %s at %s does not fit int8", code, ind, variant)
			}
			data[r*cols+c] = int8(code)
		}
	}

	bufw := bufio.NewWriter(w)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return fmt.Errorf("gonpy.NewWriter: %w", err)
	}
	npw.Shape = []int{rows, cols}
	if err := npw.WriteInt8(data); err != nil {
		return fmt.Errorf("write npy: %w", err)
	}
	return bufw.Flush()
}
