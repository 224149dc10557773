// Package main implements the canvassd binary: the sharded data-access
// service for constituency canvassing data.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/canvassdb/canvassd/internal/app"
	"github.com/canvassdb/canvassd/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		httpAddr    string
		tenants     string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address for the API server")
	flag.StringVar(&tenants, "tenants", "", "Comma-separated constituency ids to serve")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "canvassd - sharded data-access service for canvassing data\n\n")
		fmt.Fprintf(os.Stderr, "Usage: canvassd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  canvassd --data-dir /data/canvassd --tenants 101,102,103\n")
		fmt.Fprintf(os.Stderr, "  canvassd --config /etc/canvassd/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CANVASSD_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  CANVASSD_TENANTS        Comma-separated constituency ids\n")
		fmt.Fprintf(os.Stderr, "  CANVASSD_HTTP_ADDR      HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  CANVASSD_STORAGE_TYPE   Snapshot storage type (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("canvassd version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// Local development convenience; absence of a .env file is not an error.
	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, dataDir, httpAddr, tenants)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if err := application.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	application.Wait()
}

// loadConfig layers file, environment, and flags, flags winning.
func loadConfig(configFile, dataDir, httpAddr, tenants string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if tenants != "" {
		ids, err := config.ParseTenantList(tenants)
		if err != nil {
			return nil, err
		}
		cfg.Tenants = ids
	}

	return cfg, nil
}

// printBanner prints the startup configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("canvassd %s starting", version)
	log.Printf("  Data Dir:       %s", cfg.DataDir)
	log.Printf("  HTTP:           %s", cfg.HTTP.Addr)
	log.Printf("  Constituencies: %d", len(cfg.Tenants))
	log.Printf("  Fanout:         concurrency=%d shard_timeout=%v",
		cfg.Query.FanoutConcurrency, cfg.Query.ShardTimeout)
	if cfg.Snapshot.Enabled {
		log.Printf("  Snapshots:      %s storage, prefix %q", cfg.Storage.Type, cfg.Snapshot.Prefix)
	}
}
