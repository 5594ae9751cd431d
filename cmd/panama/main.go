// Panama Core - writing submission tracker data layer
//
// This is the command-line entry point for the Panama data layer. It opens
// the dataset under the configured root, reports what it contains and runs
// maintenance tasks:
//   - --new-dataset starts a fresh dataset file
//   - --vacuum compacts the dataset file
//   - --search queries the full-text index
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/panamawriter/panama-core/internal/infrastructure/config"
	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/infrastructure/logging"
	"github.com/panamawriter/panama-core/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options holds the parsed command line.
type options struct {
	configPath string
	root       string
	fileID     string
	newDataset bool
	vacuum     bool
	search     string
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses args into options.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("panama", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "configuration file")
	fs.StringVar(&opts.root, "root", "", "database root directory (overrides config)")
	fs.StringVar(&opts.fileID, "file-id", "", "dataset file identifier (overrides config)")
	fs.BoolVar(&opts.newDataset, "new-dataset", false, "start a new dataset file with a generated identifier")
	fs.BoolVar(&opts.vacuum, "vacuum", false, "compact the dataset file")
	fs.StringVarP(&opts.search, "search", "s", "", "print titles and publishers matching the text")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.newDataset && opts.fileID != "" {
		return options{}, errors.New("--new-dataset and --file-id are mutually exclusive")
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - stdout: Destination for the report
//
// Returns:
//   - error: nil on success, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Panama Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.root != "" {
		cfg.Database.Root = opts.root
	}
	switch {
	case opts.newDataset:
		cfg.Database.FileID = database.NewFileID()
	case opts.fileID != "":
		cfg.Database.FileID = opts.fileID
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", opts.configPath, "level", cfg.Logging.Level)

	ctrl, err := store.Open(ctx, database.Config{
		FileID:      cfg.Database.FileID,
		BusyTimeout: cfg.Database.BusyTimeout,
	}, cfg.Database.Root, log.Component("database"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		// Use a fresh context so pending changes are saved even after a signal.
		if closeErr := ctrl.Shutdown(context.WithoutCancel(ctx), true); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if opts.vacuum {
		if err := ctrl.Vacuum(ctx, store.SchemaPanama); err != nil {
			return fmt.Errorf("vacuuming dataset: %w", err)
		}
	}

	if err := report(ctx, ctrl, stdout); err != nil {
		return err
	}

	if opts.search != "" {
		if err := searchReport(ctx, ctrl, opts.search, stdout); err != nil {
			return err
		}
	}

	if cfg.Security.CredentialPassphrase != "" {
		if _, err := store.OpenSealer(ctx, database.MustGetTable[*store.ConfigTable](ctrl), cfg.Security.CredentialPassphrase); err != nil {
			return fmt.Errorf("preparing credential key: %w", err)
		}
	}

	return ctrl.HealthCheck(ctx)
}

// report prints the attached schemas and row counts.
func report(ctx context.Context, ctrl *database.Controller, w io.Writer) error {
	for _, a := range ctrl.Attachments() {
		fmt.Fprintf(w, "schema %-8s version %d  tables %2d  provisioned %2d  %s\n",
			a.Schema, a.Version, len(a.Tables), len(a.Provisioned), a.FileName)
	}

	for _, t := range ctrl.Tables(store.SchemaPanama) {
		counter, ok := t.(interface {
			Count(ctx context.Context, where string, args ...any) (int, error)
		})
		if !ok {
			continue
		}
		n, err := counter.Count(ctx, "")
		if err != nil {
			return fmt.Errorf("counting %s: %w", t.Name(), err)
		}
		fmt.Fprintf(w, "  %-16s %d\n", t.Name(), n)
	}
	return nil
}

// searchReport prints the matches of a full-text query.
func searchReport(ctx context.Context, ctrl *database.Controller, text string, w io.Writer) error {
	search, err := database.GetTable[*store.SearchTable](ctrl)
	if err != nil {
		return err
	}
	hits, err := search.Search(ctx, text)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	fmt.Fprintf(w, "%d match(es) for %q\n", len(hits), text)
	for _, h := range hits {
		fmt.Fprintf(w, "  %-10s %d\n", h.Kind, h.RefID)
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PANAMA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PANAMA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
