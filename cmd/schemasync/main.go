package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"ariga.io/atlas/sql/migrate"
	"github.com/spf13/cobra"

	"github.com/tordrt/schemasync"
	"github.com/tordrt/schemasync/internal/config"
	"github.com/tordrt/schemasync/internal/export"
	"github.com/tordrt/schemasync/internal/formatter"
	"github.com/tordrt/schemasync/internal/model"
	"github.com/tordrt/schemasync/internal/watch"
)

// cli holds flag values. Settings left unset on the command line come from
// the environment.
type cli struct {
	cfg *config.Config

	dbURL        string
	mysqlURL     string
	sqlitePath   string
	sqliteDriver string
	schemaName   string
	modelPath    string
	exclude      []string
	envFile      string
	format       string
	logLevel     string

	outputDir        string
	dryRun           bool
	allowDestructive bool
	transactional    bool
	exportDir        string

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	return (&cli{}).command()
}

func (c *cli) command() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "schemasync",
		Short: "Synchronize a database schema with a declared entity model",
		Long: `Schemasync compares a live PostgreSQL, MySQL, or SQLite schema with an entity model
and applies the schema changes needed to resolve the difference, in dependency order.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.dbURL, "db-url", "", "PostgreSQL connection string")
	flags.StringVar(&c.mysqlURL, "mysql-url", "", "MySQL connection string")
	flags.StringVar(&c.sqlitePath, "sqlite", "", "SQLite database file path")
	flags.StringVar(&c.sqliteDriver, "sqlite-driver", "", "SQLite driver: sqlite3 (cgo, default) or sqlite (pure Go)")
	flags.StringVarP(&c.schemaName, "schema", "s", "", "Database schema name (default: public for PostgreSQL)")
	flags.StringVarP(&c.modelPath, "model", "m", "", "Entity model file (default: schema.yaml)")
	flags.StringSliceVar(&c.exclude, "exclude", nil, "Tables to leave alone (comma-separated)")
	flags.StringVar(&c.envFile, "env-file", "", "Environment file to load (default: .env when present)")
	flags.StringVarP(&c.format, "format", "f", "", "Output format: text or markdown (default: text)")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error (default: info)")

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the live schema",
		Args:  cobra.NoArgs,
		RunE:  c.runInspect,
	}
	inspectCmd.Flags().StringVarP(&c.outputDir, "output-dir", "d", "", "Output directory for multi-file output")

	diffCmd := &cobra.Command{
		Use:   "diff",
		Short: "Print how the live schema differs from the model",
		Args:  cobra.NoArgs,
		RunE:  c.runDiff,
	}
	diffCmd.Flags().StringVarP(&c.outputDir, "output-dir", "d", "", "Output directory for a per-entity report")

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the changes that bring the live schema in line with the model",
		Args:  cobra.NoArgs,
		RunE:  c.runApply,
	}
	applyCmd.Flags().BoolVar(&c.dryRun, "dry-run", false, "Print the SQL without running it")
	applyCmd.Flags().BoolVar(&c.allowDestructive, "allow-destructive", false, "Allow dropping tables and columns")
	applyCmd.Flags().BoolVar(&c.transactional, "transactional", false, "Run all changes in one transaction (PostgreSQL, SQLite)")
	applyCmd.Flags().StringVar(&c.exportDir, "export-dir", "", "Also write the SQL as a versioned migration into this directory")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the diff again whenever the model file changes",
		Args:  cobra.NoArgs,
		RunE:  c.runWatch,
	}

	rootCmd.AddCommand(inspectCmd, diffCmd, applyCmd, watchCmd)
	return rootCmd
}

// setup loads the configuration and lets explicitly set flags override it.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return err
	}
	c.applyFlags(cmd, cfg)

	if _, err := cfg.DatabaseURL(); err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func (c *cli) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	// The three database flags are exclusive; one on the command line
	// replaces whatever the environment selected.
	if changed("db-url") || changed("mysql-url") || changed("sqlite") {
		cfg.PostgresURL, cfg.MySQLURL, cfg.SQLitePath = c.dbURL, c.mysqlURL, c.sqlitePath
	}
	if changed("sqlite-driver") {
		cfg.SQLiteDriver = c.sqliteDriver
	}
	if changed("schema") {
		cfg.Schema = c.schemaName
	}
	if changed("model") {
		cfg.Model = c.modelPath
	}
	if changed("exclude") {
		cfg.Exclude = c.exclude
	}
	if changed("format") {
		cfg.Format = c.format
	}
	if changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
}

func (c *cli) open(ctx context.Context, m *model.Model) (*schemasync.Synchronizer, error) {
	url, err := c.cfg.DatabaseURL()
	if err != nil {
		return nil, err
	}
	opts := []schemasync.Option{
		schemasync.WithLogger(c.logger),
		schemasync.WithExcludeTables(c.cfg.Exclude...),
		schemasync.WithSQLiteDriver(c.cfg.SQLiteDriver),
	}
	if c.cfg.Schema != "" {
		opts = append(opts, schemasync.WithSchemaName(c.cfg.Schema))
	}
	return schemasync.Open(ctx, url, m, opts...)
}

func (c *cli) output(w io.Writer) (formatter.Formatter, error) {
	return formatter.New(c.cfg.Format, w)
}

func (c *cli) runInspect(cmd *cobra.Command, _ []string) error {
	s, err := c.open(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer closeSync(s)

	live, err := s.Snapshot(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to extract schema: %w", err)
	}
	if c.outputDir != "" {
		return formatter.NewMultiFileFormatter(c.outputDir, c.cfg.Format).Format(live)
	}
	f, err := c.output(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return f.Format(live)
}

func (c *cli) runDiff(cmd *cobra.Command, _ []string) error {
	diffs, err := c.diff(cmd.Context())
	if err != nil {
		return err
	}
	if c.outputDir != "" {
		return formatter.NewMultiFileFormatter(c.outputDir, c.cfg.Format).FormatDiffs(diffs)
	}
	f, err := c.output(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return f.FormatDiffs(diffs)
}

func (c *cli) diff(ctx context.Context) ([]schemasync.Diff, error) {
	m, err := model.LoadFile(c.cfg.Model)
	if err != nil {
		return nil, err
	}
	s, err := c.open(ctx, m)
	if err != nil {
		return nil, err
	}
	defer closeSync(s)
	return s.Diff(ctx)
}

func (c *cli) runApply(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	f, err := c.output(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	m, err := model.LoadFile(c.cfg.Model)
	if err != nil {
		return err
	}
	s, err := c.open(ctx, m)
	if err != nil {
		return err
	}
	defer closeSync(s)

	diffs, err := s.Diff(ctx)
	if err != nil {
		return err
	}
	res, applyErr := s.Apply(ctx, diffs, schemasync.ApplyOptions{
		DryRun:           c.dryRun,
		AllowDestructive: c.allowDestructive,
		Transactional:    c.transactional,
	})
	if res != nil {
		if err := f.FormatReport(toReport(res, applyErr)); err != nil {
			return err
		}
	}
	if applyErr != nil {
		return applyErr
	}

	if c.exportDir != "" && len(res.Statements) > 0 {
		version, err := exportResult(c.exportDir, res)
		if err != nil {
			return fmt.Errorf("failed to export migration: %w", err)
		}
		c.logger.Info("schemasync: migration exported", "dir", c.exportDir, "version", version)
	}
	return nil
}

func (c *cli) runWatch(cmd *cobra.Command, _ []string) error {
	f, err := c.output(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	w := watch.New(c.cfg.Model, watch.WithLogger(c.logger))
	return w.Run(cmd.Context(), func(ctx context.Context) error {
		diffs, err := c.diff(ctx)
		if err != nil {
			return err
		}
		return f.FormatDiffs(diffs)
	})
}

func exportResult(dir string, res *schemasync.Result) (string, error) {
	e, err := export.New(dir)
	if err != nil {
		return "", err
	}
	descriptions := make([]string, len(res.Applied))
	for i, a := range res.Applied {
		descriptions[i] = a.String()
	}
	version, err := e.Write("schemasync", export.Changes(res.Statements, descriptions))
	if errors.Is(err, migrate.ErrNoPlan) {
		return "", nil
	}
	return version, err
}

func toReport(res *schemasync.Result, err error) *formatter.Report {
	r := &formatter.Report{
		RunID:      res.RunID,
		DryRun:     res.DryRun,
		RolledBack: res.RolledBack,
		Applied:    res.Applied,
		Withheld:   res.Withheld,
		Statements: res.Statements,
		Err:        err,
	}
	for _, w := range res.Warnings {
		r.Skipped = append(r.Skipped, formatter.Skipped{Action: w.Action, Reason: w.Err.Error()})
	}
	return r
}

func closeSync(s *schemasync.Synchronizer) {
	if err := s.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close database connection: %v\n", err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
