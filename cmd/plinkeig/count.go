package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inodb/plinkeig/internal/fileio"
	"github.com/inodb/plinkeig/internal/plink"
)

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <file>",
		Short: "Count the lines of a (possibly compressed) file",
		Example: `  plinkeig count data.ped
  plinkeig count data.ped.gz`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := fileio.Open(args[0])
			if err != nil {
				return err
			}
			defer rc.Close()

			n, err := plink.CountLines(rc)
			if err != nil {
				return fmt.Errorf("counting lines: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
