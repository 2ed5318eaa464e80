package convert

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/inodb/plinkeig/internal/fileio"
)

// BuildAll converts several PED files aligned with the same MAP file.
// Results are returned in the order of paths. If workers is 0,
// runtime.NumCPU() is used. The first failure cancels files not yet started.
func (b *Builder) BuildAll(ctx context.Context, paths []string, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fb := *b
			if len(paths) > 1 {
				fb.step = fmt.Sprintf("%s (%s)", ReadStep, fileio.BaseName(path))
			}
			res, err := fb.BuildFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
