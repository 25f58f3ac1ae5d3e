package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evanschultz/cardclock/internal/adapters/server"
	"github.com/evanschultz/cardclock/internal/adapters/storage/sqlite"
	"github.com/evanschultz/cardclock/internal/adapters/trello"
	"github.com/evanschultz/cardclock/internal/app"
	"github.com/evanschultz/cardclock/internal/config"
	"github.com/evanschultz/cardclock/internal/platform"
)

// version stores a package-level helper value.
var version = "dev"

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg server.Config, deps server.Dependencies) error {
	return server.Run(ctx, cfg, deps)
}

// boardReaderFactory builds the board collaborator for one command run.
var boardReaderFactory = func(cfg config.Config, token string, metrics *trello.Metrics) app.BoardReader {
	return newTrelloClient(cfg, token, metrics)
}

// clipboardWriter copies report text to the system clipboard.
var clipboardWriter = clipboard.WriteAll

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCommand(os.Stdout, os.Stderr)
	err := fang.Execute(ctx, root, fang.WithVersion(version))
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// rootOptions carries persistent flag values and output streams.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	stdout     io.Writer
	stderr     io.Writer
}

// newRootCommand builds the cardclock command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("CARDCLOCK_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultAppName := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv("CARDCLOCK_APP_NAME")); envApp != "" {
		defaultAppName = envApp
	}

	root := &cobra.Command{
		Use:   "cardclock",
		Short: "Business-time tracking and member reports for Trello lists",
		Long: `cardclock tracks how long Trello cards sit in their current list in business
time, pauses and resumes card timers, and builds per-member CSV reports for a list.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", defaultAppName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newPathsCommand(opts),
		newAuthCommand(opts),
		newBoardCommand(opts),
		newBadgeCommand(opts),
		newToggleCommand(opts),
		newReportCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// runtime holds everything one command flow needs after configuration is resolved.
type runtime struct {
	appName    string
	devMode    bool
	paths      platform.Paths
	configPath string
	cfg        config.Config
	logger     *runtimeLogger
	repo       *sqlite.Repository
	svc        *app.Service
}

// resolvePaths resolves platform paths and the effective config path.
func (o *rootOptions) resolvePaths() (platform.Paths, string, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
	if err != nil {
		return platform.Paths{}, "", err
	}
	configPath := strings.TrimSpace(o.configPath)
	if configPath == "" {
		configPath = paths.ConfigPath
	}
	return paths, configPath, nil
}

// openRuntime loads config, opens storage and wires the app service.
func openRuntime(ctx context.Context, opts *rootOptions, metrics *trello.Metrics) (*runtime, error) {
	paths, configPath, err := opts.resolvePaths()
	if err != nil {
		return nil, err
	}

	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != "" || strings.TrimSpace(os.Getenv(platform.EnvDBPath)) != ""
	if dbPath == "" {
		dbPath = paths.DBPath
	}
	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(opts.stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.devLog; devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}

	calendar, err := cfg.BusinessCalendar()
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("build business calendar: %w", err)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}

	svcCfg := app.ServiceConfig{
		Organization:      cfg.Trello.Organization,
		BoardDefaults:     boardDefaultsFrom(cfg.Boards),
		ReportConcurrency: cfg.Report.Concurrency,
		Calendar:          calendar,
		Logger:            logger,
	}
	token, err := resolveToken(ctx, cfg, app.NewService(nil, repo, nil, nil, svcCfg))
	if err != nil {
		_ = repo.Close()
		_ = logger.Close()
		return nil, err
	}
	if token == "" {
		logger.Warn("no trello token configured; run 'cardclock auth set-token' or set CARDCLOCK_TRELLO_TOKEN")
	}

	svc := app.NewService(boardReaderFactory(cfg, token, metrics), repo, uuid.NewString, time.Now, svcCfg)
	logger.Debug("application service initialized", "organization", cfg.Trello.Organization, "holiday_set", cfg.Calendar.HolidaySet)

	return &runtime{
		appName:    opts.appName,
		devMode:    opts.devMode,
		paths:      paths,
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		repo:       repo,
		svc:        svc,
	}, nil
}

// Close releases storage and log sinks.
func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if err := rt.repo.Close(); err != nil {
		rt.logger.Warn("sqlite close failed", "db_path", rt.cfg.Database.Path, "err", err)
	}
	_ = rt.logger.Close()
}

// runFlow wraps one command flow with start, complete and failed log events.
func (rt *runtime) runFlow(command string, fn func() error) error {
	rt.logger.Info("command flow start", "command", command)
	if err := fn(); err != nil {
		rt.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	rt.logger.Info("command flow complete", "command", command)
	return nil
}

// withRuntime opens a runtime, runs fn as a logged flow and closes the runtime.
func withRuntime(cmd *cobra.Command, opts *rootOptions, command string, fn func(context.Context, *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, opts, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.runFlow(command, func() error {
		return fn(ctx, rt)
	})
}

// resolveToken prefers the configured token and falls back to the stored one.
func resolveToken(ctx context.Context, cfg config.Config, svc *app.Service) (string, error) {
	if token := strings.TrimSpace(cfg.Trello.Token); token != "" {
		return token, nil
	}
	token, err := svc.AuthToken(ctx)
	if errors.Is(err, app.ErrAuthRequired) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read stored auth token: %w", err)
	}
	return token, nil
}

// newTrelloClient maps configuration onto client options.
func newTrelloClient(cfg config.Config, token string, metrics *trello.Metrics) *trello.Client {
	return trello.NewClient(cfg.Trello.APIKey, token,
		trello.WithBaseURL(cfg.Trello.BaseURL),
		trello.WithTimeout(cfg.TrelloTimeout()),
		trello.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		trello.WithRetryPolicy(trello.RetryPolicy{
			MaxAttempts: cfg.RateLimit.MaxAttempts,
			Backoff:     trello.ExponentialBackoff(cfg.BaseBackoff(), cfg.MaxBackoff()),
		}),
		trello.WithMetrics(metrics),
	)
}

// boardDefaultsFrom converts configured board roles into service defaults.
func boardDefaultsFrom(boards map[string]config.BoardConfig) map[string]app.BoardLists {
	out := make(map[string]app.BoardLists, len(boards))
	for boardID, board := range boards {
		out[boardID] = app.BoardLists{
			CurrentWork: board.CurrentWorkList,
			Released:    board.ReleasedList,
			QA:          board.QAList,
			AutoPause:   append([]string(nil), board.AutoPauseLists...),
		}
	}
	return out
}

// parseBoolEnv parses a boolean environment variable when it is set.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}
