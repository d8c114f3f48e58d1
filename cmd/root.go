package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"building_monitor/internal/config"
	"building_monitor/internal/logger"
	"building_monitor/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yml"

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:           "buildmon",
		Short:         "Schedule inspections and remediations for construction, production and degrading entities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", defaultConfigPath, "path to the YAML config")
	root.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before the config (optional)")

	root.AddCommand(
		newRunCmd(o),
		newOnceCmd(o),
		newStateCmd(o),
		newValidateCmd(o),
		newHashPasswordCmd(),
	)
	return root
}

func execute() int {
	defer logger.Flush()
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		return 1
	}
	return 0
}

func printError(w io.Writer, err error) {
	var cerr *models.ConfigurationError
	if errors.As(err, &cerr) {
		fmt.Fprintln(w, "buildmon: invalid configuration:")
		for _, p := range cerr.Problems {
			fmt.Fprintln(w, "  -", p)
		}
		return
	}
	fmt.Fprintln(w, "buildmon:", err)
}

// load reads the optional dotenv file and then the config. A missing dotenv
// file is not an error.
func (o *rootOptions) load() (*config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}
	return config.Load(o.configPath)
}
