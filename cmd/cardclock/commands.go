package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/evanschultz/cardclock/internal/adapters/server"
	servercommon "github.com/evanschultz/cardclock/internal/adapters/server/common"
	"github.com/evanschultz/cardclock/internal/adapters/trello"
	"github.com/evanschultz/cardclock/internal/app"
	"github.com/evanschultz/cardclock/internal/config"
)

// newPathsCommand prints resolved locations without touching config or storage.
func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show resolved config, data and report paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, configPath, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", configPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "reports: %s\n", paths.ReportDir)
			return nil
		},
	}
}

func newAuthCommand(opts *rootOptions) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored Trello token",
	}
	auth.AddCommand(&cobra.Command{
		Use:   "set-token <token>",
		Short: "Store a Trello member token in organization-private storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "auth set-token", func(ctx context.Context, rt *runtime) error {
				if err := rt.svc.SetAuthToken(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token stored")
				return nil
			})
		},
	})
	return auth
}

func newBoardCommand(opts *rootOptions) *cobra.Command {
	board := &cobra.Command{
		Use:   "board",
		Short: "Configure board list roles",
	}

	var (
		in            app.BoardLists
		persistConfig bool
	)
	configure := &cobra.Command{
		Use:   "configure <board-id>",
		Short: "Set current-work, released, QA and auto-pause lists for a board",
		Long: `Lists may be given by id or by name (case-insensitive). Names are resolved against
the board's lists before they are stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "board configure", func(ctx context.Context, rt *runtime) error {
				boardID := strings.TrimSpace(args[0])
				resolved, err := rt.svc.SetBoardLists(ctx, boardID, in)
				if err != nil {
					return err
				}
				if persistConfig {
					if err := config.UpsertBoard(rt.configPath, boardID, config.BoardConfig{
						CurrentWorkList: resolved.CurrentWork,
						ReleasedList:    resolved.Released,
						QAList:          resolved.QA,
						AutoPauseLists:  resolved.AutoPause,
					}); err != nil {
						return fmt.Errorf("persist board config: %w", err)
					}
					rt.logger.Info("board config persisted", "board_id", boardID, "config_path", rt.configPath)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderBoardLists(boardID, resolved))
				return nil
			})
		},
	}
	configure.Flags().StringVar(&in.CurrentWork, "current-work", "", "current-work list id or name")
	configure.Flags().StringVar(&in.Released, "released", "", "released list id or name")
	configure.Flags().StringVar(&in.QA, "qa", "", "QA list id or name")
	configure.Flags().StringSliceVar(&in.AutoPause, "auto-pause", nil, "auto-pause list ids or names (repeatable)")
	configure.Flags().BoolVar(&persistConfig, "persist-config", false, "also write the resolved lists to the config file")

	show := &cobra.Command{
		Use:   "show <board-id>",
		Short: "Show the effective list roles for a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "board show", func(ctx context.Context, rt *runtime) error {
				lists, err := rt.svc.BoardLists(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderBoardLists(strings.TrimSpace(args[0]), lists))
				return nil
			})
		},
	}

	board.AddCommand(configure, show)
	return board
}

func newBadgeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "badge <card-id>",
		Short: "Show business time in the card's current list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "badge", func(ctx context.Context, rt *runtime) error {
				badge, err := rt.svc.CardBadge(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderBadge(badge))
				return nil
			})
		},
	}
}

func newToggleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <card-id>",
		Short: "Manually pause or resume a card timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "toggle", func(ctx context.Context, rt *runtime) error {
				state, err := rt.svc.ToggleTimer(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTimer(strings.TrimSpace(args[0]), state))
				return nil
			})
		},
	}
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	var (
		outDir  string
		copyCSV bool
	)
	report := &cobra.Command{
		Use:   "report <list-id>",
		Short: "Generate the member CSV report for a list",
		Long: `Generates the per-member report for every card in the list. The CSV is written to
--out (a directory, or - for stdout); without --out it goes to the configured report directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "report", func(ctx context.Context, rt *runtime) error {
				toStdout := strings.TrimSpace(outDir) == "-"
				if toStdout {
					rt.logger.MuteConsole(true)
				}
				rep, err := rt.svc.GenerateListReport(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if toStdout {
					_, err := fmt.Fprintln(out, rep.CSV)
					if err != nil {
						return err
					}
				} else {
					path, err := writeReportFile(rt.reportDir(outDir), rep.FileName, rep.CSV)
					if err != nil {
						return err
					}
					rt.logger.Info("report written", "path", path, "run_id", rep.RunID)
					_, _ = fmt.Fprintf(out, "%s\n", path)
				}
				if copyCSV {
					if err := clipboardWriter(rep.CSV); err != nil {
						return fmt.Errorf("copy report to clipboard: %w", err)
					}
					rt.logger.Info("report copied to clipboard", "run_id", rep.RunID)
				}
				return nil
			})
		},
	}
	report.Flags().StringVar(&outDir, "out", "", "output directory, or - for stdout")
	report.Flags().BoolVar(&copyCSV, "copy", false, "copy the CSV to the clipboard")

	var limit int
	history := &cobra.Command{
		Use:   "history <list-id>",
		Short: "List previously generated reports for a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "report history", func(ctx context.Context, rt *runtime) error {
				runs, err := rt.svc.ListReportRuns(ctx, args[0], limit)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderReportRuns(runs))
				return nil
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")

	report.AddCommand(history)
	return report
}

// reportDir picks the flag value, then the configured directory, then the platform default.
func (rt *runtime) reportDir(flagValue string) string {
	if dir := strings.TrimSpace(flagValue); dir != "" {
		return dir
	}
	if dir := strings.TrimSpace(rt.cfg.Report.OutputDir); dir != "" {
		return dir
	}
	return rt.paths.ReportDir
}

// writeReportFile writes csv into dir and returns the file path.
func writeReportFile(dir, fileName, csv string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var bind string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, MCP tools and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			rt, err := openRuntime(ctx, opts, trello.NewMetrics(registry))
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := server.Config{
				HTTPBind:      rt.cfg.Server.Bind,
				APIEndpoint:   rt.cfg.Server.APIEndpoint,
				MCPEndpoint:   rt.cfg.Server.MCPEndpoint,
				ServerName:    rt.appName,
				ServerVersion: version,
			}
			if strings.TrimSpace(bind) != "" {
				cfg.HTTPBind = bind
			}
			return rt.runFlow("serve", func() error {
				rt.logger.Info("serving", "bind", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				return serveCommandRunner(ctx, cfg, server.Dependencies{
					Service: servercommon.NewAppServiceAdapter(rt.svc),
					Metrics: registry,
					Ready:   rt.repo.Ping,
				})
			})
		},
	}
	serve.Flags().StringVar(&bind, "bind", "", "listen address (defaults to server.bind)")
	return serve
}
