package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrissnell/segfit/pkg/config"
)

// setFlags collects repeated -set key=value arguments
type setFlags []string

func (s *setFlags) String() string     { return strings.Join(*s, ",") }
func (s *setFlags) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	var sets setFlags
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file to convert")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Var(&sets, "set", "Store one setting as key=value, e.g. -set fit.default_degree=2 (repeatable)")
	flag.Parse()

	if *sqliteFile == "" || (*yamlFile == "" && len(sets) == 0) {
		fmt.Fprintf(os.Stderr, "Usage: %s -sqlite <config.db> [-yaml <config.yaml>] [-set key=value ...]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *yamlFile != "" {
		convert(*yamlFile, *sqliteFile, *force, *dryRun)
	}

	if len(sets) > 0 {
		if err := applySettings(*sqliteFile, sets, *dryRun); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func convert(yamlFile, sqliteFile string, force, dryRun bool) {
	// Check if YAML file exists
	if _, err := os.Stat(yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", yamlFile)
		os.Exit(1)
	}

	// Check if SQLite file already exists
	if _, err := os.Stat(sqliteFile); err == nil && !force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", yamlFile)
	fmt.Printf("  Target: %s\n", sqliteFile)

	yamlProvider := config.NewYAMLProvider(yamlFile)
	configData, err := yamlProvider.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}

	if dryRun {
		printConfigSummary(configData)
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	// Remove existing SQLite file if force is specified
	if force {
		if err := os.Remove(sqliteFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing SQLite file: %v\n", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(filepath.Dir(sqliteFile), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	provider, err := config.NewSQLiteProvider(sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating SQLite database: %v\n", err)
		os.Exit(1)
	}
	defer provider.Close()

	if err := provider.SaveConfig(configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration into SQLite: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now use the SQLite backend with: -config-backend sqlite -config %s\n", sqliteFile)
}

func applySettings(sqliteFile string, sets []string, dryRun bool) error {
	provider, err := config.NewSQLiteProvider(sqliteFile)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer provider.Close()

	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("setting %q is not key=value", kv)
		}
		if dryRun {
			fmt.Printf("  would set %s = %s\n", key, value)
			continue
		}
		if err := provider.SetValue(key, value); err != nil {
			return err
		}
		fmt.Printf("  %s = %s\n", key, value)
	}

	// The stored settings must still form a valid configuration
	if _, err := provider.LoadConfig(); err != nil {
		return fmt.Errorf("stored configuration is no longer valid: %w", err)
	}
	return nil
}

func printConfigSummary(c *config.ConfigData) {
	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("Fit:\n")
	fmt.Printf("  constraint weight: %g\n", c.Fit.ConstraintWeight)
	fmt.Printf("  boundary epsilon:  %g\n", c.Fit.BoundaryEpsilon)
	fmt.Printf("  default degree:    %d\n", c.Fit.Degree())
	fmt.Printf("  auto recalculate:  %t\n", c.Fit.Recalculate())
	fmt.Printf("  fallback:          %t\n", c.Fit.Fallback())

	fmt.Printf("\nData:\n")
	fmt.Printf("  file: %s\n", c.Data.File)
	if c.Data.Segments != "" {
		fmt.Printf("  segments: %s\n", c.Data.Segments)
	}

	fmt.Printf("\nServer: %s:%d\n", c.Server.ListenAddr, c.Server.Port)
	if c.Storage.SQLite != nil {
		fmt.Printf("Project storage: %s\n", c.Storage.SQLite.Path)
	}
}
