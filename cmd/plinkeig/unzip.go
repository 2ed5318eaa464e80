package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/plinkeig/internal/archive"
)

func newUnzipCmd(logger func() *zap.Logger) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "unzip <archive>",
		Short: "Extract the single file of a genotype archive",
		Long: `Extract the single file held by a zip archive and print its path.
Non-zip inputs are printed unchanged. Archives with more than one file are rejected.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := archive.NewUnzipper(afero.NewOsFs())
			u.SetLogger(logger())
			path, err := u.UnzipIfNeeded(args[0], dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to extract into")
	return cmd
}
