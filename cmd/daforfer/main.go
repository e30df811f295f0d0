package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/urfave/cli/v2"

	"daforfer/internal/config"
	"daforfer/internal/domain"
	"daforfer/internal/logging"
	"daforfer/internal/repository/sqlite"
	"daforfer/internal/service"
)

const VERSION = "v0.1.0"

// Module is used for tracing identifiers
const Module = "daforfer"

func makeApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "daforfer"
	app.Version = VERSION
	app.Usage = "Export an analysis database to a spreadsheet workbook"
	app.UsageText = "daforfer [global options] <input_database_path> <output_workbook_path>"
	app.Description = heredoc.Doc(`
		Writes every table in the database to its own sheet, followed by a
		sheet listing the scalar values with their descriptions and types.
		The workbook is written to a temporary file and moved into place, so
		a failed export leaves no file behind.

		Both paths may come from the config file (database.path,
		export.output_path) or DAFORFER_DB_PATH instead of the arguments.
	`)
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Reader = stdin
	app.HideVersion = true
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:      "config",
			Usage:     "Read settings from this YAML file",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
		},
		&cli.StringFlag{
			Name:      "manifest",
			Usage:     "Also write a catalog manifest (JSON for .json, YAML otherwise)",
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:      "trace.file",
			Usage:     "Enable tracing and emit output to file",
			TakesFile: true,
		},
	}
	app.ExitErrHandler = exitErrHandler
	app.Action = chain(exportAction,
		cmdMiddlewareConfig,
		cmdMiddlewareLogging,
		cmdMiddlewareTracingConfig,
		cmdMiddlewareTracingSpan,
	)
	return app
}

// chain wraps f so the first middleware runs outermost
func chain(f cli.ActionFunc, middleware ...func(cli.ActionFunc) cli.ActionFunc) cli.ActionFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		f = middleware[i](f)
	}
	return f
}

// Called after the action returns a non-nil error value.
// Prints a single line to stderr.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	logger := logging.NewLogger(c.App.Writer, c.App.ErrWriter, false)
	logger.Error("%s", err)
}

// cmdMiddlewareConfig loads the config file and environment overrides
func cmdMiddlewareConfig(f cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		var (
			cfg *config.Config
			err error
		)
		if path := c.String("config"); path != "" {
			cfg, _, err = config.LoadFromPath(path)
		} else {
			cfg, _, err = config.Load()
		}
		if err != nil {
			return err
		}
		c.App.Metadata["config"] = cfg
		return f(c)
	}
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata["config"].(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

// cmdMiddlewareLogging configures the logging system before executing the action
func cmdMiddlewareLogging(f cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		verbose := c.Bool("verbose") || configFrom(c).Log.Verbose
		logger := logging.NewLogger(c.App.Writer, c.App.ErrWriter, verbose)
		c.Context = logger.WithContext(c.Context)
		return f(c)
	}
}

func exportAction(c *cli.Context) error {
	cfg := configFrom(c)
	logger := logging.Ctx(c.Context)

	dbPath := c.Args().Get(0)
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	outputPath := c.Args().Get(1)
	if outputPath == "" {
		outputPath = cfg.Export.OutputPath
	}
	if dbPath == "" || outputPath == "" {
		return fmt.Errorf("expected <input_database_path> <output_workbook_path>")
	}
	if c.Args().Len() > 2 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(c.Args().Slice()[2:], " "))
	}
	logger.Debug("config", "%s", cfg.Summary())

	repo, err := sqlite.OpenExisting(dbPath,
		sqlite.WithBusyTimeout(cfg.Database.BusyTimeout.Duration()),
		sqlite.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := service.NewExportService(repo, cfg.Export.ValuesSheet)
	// Catch a manifest that cannot be written before the workbook is.
	manifestPath := c.String("manifest")
	if manifestPath != "" {
		dir := filepath.Dir(manifestPath)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("%w: manifest directory %s does not exist", domain.ErrExportFailed, dir)
		}
	}

	result, err := svc.Export(c.Context, outputPath)
	if err != nil {
		return err
	}
	logger.Debug("export", "%d bytes, blake2b-256 %s", result.Bytes, result.Digest)

	if manifestPath != "" {
		if err := svc.WriteManifestFile(c.Context, manifestPath); err != nil {
			return err
		}
		logger.Debug("manifest", "wrote %s", manifestPath)
	}

	logger.Out("Database %s successfully exported to %s", dbPath, outputPath)
	return nil
}

func main() {
	err := makeApp(os.Stdin, os.Stdout, os.Stderr).Run(os.Args)
	if err != nil {
		os.Exit(1)
	}
}
