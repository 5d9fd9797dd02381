// Package cli implements the thwack command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/appthwack/thwack/internal/appthwack"
	"github.com/appthwack/thwack/internal/artifacts"
	"github.com/appthwack/thwack/internal/config"
	"github.com/appthwack/thwack/internal/database"
	"github.com/appthwack/thwack/internal/observability"
	"github.com/appthwack/thwack/internal/transport"
)

type app struct {
	configPath  string
	apiKey      string
	domain      string
	logLevel    string
	databaseURL string

	// openDB opens the archive named by a DSN.
	openDB func(dsn string) (database.Database, error)

	cfg     config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics
	session *appthwack.Session
}

// NewRootCommand builds the command tree. Log output goes to stderr so that
// command output on stdout stays parseable.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{openDB: openSQL})
}

// offline marks commands that work without an API key.
const offline = "offline"

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "thwack",
		Short:         "Schedule and inspect AppThwack test runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr(), cmd.Annotations[offline] == "true")
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "HCL config file applied over the environment")
	flags.StringVar(&a.apiKey, "api-key", "", "API key (overrides APPTHWACK_API_KEY)")
	flags.StringVar(&a.domain, "domain", "", "service domain (overrides APPTHWACK_DOMAIN)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&a.databaseURL, "database-url", "", "result archive DSN (overrides DATABASE_URL)")

	root.AddCommand(
		a.projectsCommand(),
		a.poolsCommand(),
		a.uploadCommand(),
		a.scheduleCommand(),
		a.statusCommand(),
		a.resultsCommand(),
		a.waitCommand(),
		a.downloadCommand(),
		a.reportCommand(),
		a.watchCommand(),
		a.flakyCommand(),
		a.trendCommand(),
		a.cacheCommand(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (a *app) setup(logOut io.Writer, keyOptional bool) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.apiKey != "" {
		cfg.APIKey = a.apiKey
	}
	if a.domain != "" {
		cfg.Domain = a.domain
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.databaseURL != "" {
		cfg.DatabaseURL = a.databaseURL
	}
	if err := cfg.RequireAPIKey(); err != nil && !keyOptional {
		return err
	}

	a.cfg = cfg
	a.logger = *observability.NewLoggerTo(zerolog.ConsoleWriter{Out: logOut}, cfg.LogLevel)
	a.metrics = observability.NewMetrics()
	a.session = appthwack.Connect(cfg.APIKey, cfg.Domain, cfg.APIRoot,
		transport.WithTimeout(cfg.Timeout),
		transport.WithLogger(a.logger),
		transport.WithMetrics(a.metrics),
	)
	a.logger.Debug().Str("domain", cfg.Domain).Str("apiRoot", cfg.APIRoot).Msg("session ready")
	return nil
}

func openSQL(dsn string) (database.Database, error) {
	db, err := database.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// archive opens the configured result archive. It returns nil when no
// database is configured.
func (a *app) archive() (database.Database, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, nil
	}
	return a.openDB(a.cfg.DatabaseURL)
}

func (a *app) requireArchive() (database.Database, error) {
	db, err := a.archive()
	if err == nil && db == nil {
		err = errors.New("no result archive configured: set DATABASE_URL or --database-url")
	}
	return db, err
}

func (a *app) reports() *artifacts.Manager {
	return artifacts.NewManager(a.cfg.CacheDir, a.cfg.CacheTTL)
}

// project resolves ref as a project id, falling back to a name lookup.
func (a *app) project(ctx context.Context, ref string) (*appthwack.Project, error) {
	var (
		p   *appthwack.Project
		err error
	)
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		p, err = a.session.ProjectByID(ctx, id)
	} else {
		p, err = a.session.ProjectByName(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %q not found", ref)
	}
	return p, nil
}

func (a *app) pool(ctx context.Context, p *appthwack.Project, ref string) (*appthwack.DevicePool, error) {
	var (
		pool *appthwack.DevicePool
		err  error
	)
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		pool, err = p.DevicePoolByID(ctx, id)
	} else {
		pool, err = p.DevicePoolByName(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("device pool %q not found in %s", ref, p.Name)
	}
	return pool, nil
}

// run parses the PROJECT_ID RUN_ID argument pair.
func (a *app) run(args []string) (*appthwack.Run, error) {
	projectID, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid project id %q", args[0])
	}
	runID, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q", args[1])
	}
	return a.session.Run(projectID, runID), nil
}
