package main

import (
	"fmt"
	"os"

	"github.com/castellan-ai/castellan/internal/config"
	"github.com/spf13/cobra"
)

var configFile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration as YAML.

Precedence, highest first:
  1. Environment variables (prefix CASTELLAN, e.g. CASTELLAN_LIMITS_TURN_AGENTS)
  2. castellan.yaml in the current directory
  3. ~/.config/castellan/config.yaml
  4. Built-in defaults

With --file, only the named file is read (plus defaults).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg *config.Config
		var err error
		if configFile != "" {
			cfg, err = config.LoadFrom(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		out, err := cfg.DumpYAML()
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, out)
		return nil
	},
}

func init() {
	configCmd.Flags().StringVar(&configFile, "file", "", "Read configuration from this file only")
}
