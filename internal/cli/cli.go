//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for barstore.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/barstore/barstore/internal/config"
	"github.com/barstore/barstore/internal/logging"
	"github.com/barstore/barstore/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	connection string
	logLevel   string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "barstore",
		Short: "Incremental OHLCV bar warehouse for PostgreSQL",
		Long: `barstore persists OHLCV price bars for many instruments and timeframes
into PostgreSQL, one table per series, and tracks per-series import
progress in a metadata catalog so repeated runs only fetch what is
missing.

Fetching itself is external: rate-limited exchange clients drop CSV
files that barstore ingests, and the catalog tells the scheduling layer
which date ranges still need fetching.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./barstore.yaml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(rescanCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(watchCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}
