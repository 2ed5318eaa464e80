package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configKeys lists the settings read by convert.
var configKeys = []string{"separator", "progress_file", "workers", "output.format", "verbose"}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage plinkeig configuration",
		Long: `Show, get, or set default conversion settings. Config is stored in ~/.plinkeig.yaml.

Known keys: separator, progress_file, workers, output.format, verbose.
Each key may also be set through a PLINKEIG_ environment variable
(for example PLINKEIG_OUTPUT_FORMAT=numpy).`,
		Example: `  plinkeig config                          # show all config
  plinkeig config set output.format numpy  # write .npy matrices by default
  plinkeig config get separator            # get a value`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd.OutOrStdout(), args[0])
		},
	}
}

func runConfigShow(w io.Writer) error {
	settings := map[string]any{}
	for _, key := range configKeys {
		if viper.IsSet(key) {
			settings[key] = viper.Get(key)
		}
	}
	if len(settings) == 0 {
		fmt.Fprintln(w, "# No configuration set. Config file: ~/.plinkeig.yaml")
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(w, string(out))
	return nil
}

func runConfigSet(w io.Writer, key, value string) error {
	switch key {
	case "workers":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return usageErrorf("workers must be a non-negative integer, got %q", value)
		}
		viper.Set(key, n)
	case "verbose":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return usageErrorf("verbose must be true or false, got %q", value)
		}
		viper.Set(key, b)
	case "output.format":
		if value != FormatEigenstrat && value != FormatNumpy {
			return usageErrorf("unknown output format %q", value)
		}
		viper.Set(key, value)
	default:
		viper.Set(key, value)
	}

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		var err error
		if cfgFile, err = defaultConfigPath(); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(w io.Writer, key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(w, val)
	return nil
}
