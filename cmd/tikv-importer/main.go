// Command tikv-importer starts the bulk-load staging service: it
// loads and validates a Config, builds the metrics and a KVImporter
// registry, and blocks until terminated. It builds no ClientFacade and
// starts no gRPC listener. The launcher itself carries no import-path
// logic; see internal/service for that.
// Grounded on kwbase/pkg/cli's cobra root command style and
// original_source/src/bin/tikv-importer.rs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tikv/importer/internal/config"
	"github.com/tikv/importer/internal/logutil"
	"github.com/tikv/importer/internal/metrics"
	"github.com/tikv/importer/internal/registry"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tikv-importer",
	Short: "Bulk-load staging service for a TiKV cluster",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logutil.New(zapcore.InfoLevel)
	log.Info("starting tikv-importer", zap.String("import_dir", cfg.ImportDir))

	m := metrics.New()
	_ = m

	reg := registry.New(cfg.ImportDir, cfg.MaxOpenEngines, log)
	_ = reg

	// Real deployments mount reg+m behind a gRPC server exposing
	// ClientFacade's operations (see internal/service) on the address
	// configured out-of-band by the cluster operator; wiring the actual
	// listener is deployment-specific and out of this module's scope.
	log.Info("tikv-importer ready")
	select {}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
