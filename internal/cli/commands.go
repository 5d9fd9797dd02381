package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/appthwack/thwack/internal/appthwack"
	"github.com/appthwack/thwack/internal/charts"
	"github.com/appthwack/thwack/internal/database"
	"github.com/appthwack/thwack/internal/worker"
)

func (a *app) projectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the projects of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projects, err := a.session.Projects(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tURL")
			for _, p := range projects {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Name, p.WebURL())
			}
			return tw.Flush()
		},
	}
}

func (a *app) poolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pools PROJECT",
		Short: "List the device pools of a project, by id or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.project(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pools, err := p.DevicePools(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, pool := range pools {
				fmt.Fprintf(tw, "%d\t%s\n", pool.ID, pool.Name)
			}
			return tw.Flush()
		},
	}
}

func (a *app) uploadCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "upload PATH",
		Short: "Upload an application or test package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				f   *appthwack.File
				err error
			)
			if name == "" {
				f, err = a.session.UploadFile(cmd.Context(), args[0])
			} else {
				f, err = a.session.UploadFileAs(cmd.Context(), args[0], name)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), f.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name to store the file under (default: base name of PATH)")
	return cmd
}

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status PROJECT_ID RUN_ID",
		Short: "Show the status summary of a run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.run(args)
			if err != nil {
				return err
			}
			summary, err := run.Summary(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func (a *app) resultsCommand() *cobra.Command {
	var failuresOnly bool
	cmd := &cobra.Command{
		Use:   "results PROJECT_ID RUN_ID",
		Short: "Show the results of a run grouped by device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.run(args)
			if err != nil {
				return err
			}
			res, err := run.Results(cmd.Context())
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res, failuresOnly)
			return nil
		},
	}
	cmd.Flags().BoolVar(&failuresOnly, "failures", false, "only list warnings and failures")
	return cmd
}

func (a *app) waitCommand() *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
		archive  bool
	)
	cmd := &cobra.Command{
		Use:   "wait PROJECT_ID RUN_ID",
		Short: "Poll a run until its results are complete",
		Long: "Poll a run until its results are complete. With DATABASE_URL set the results\n" +
			"are archived, and the report is unpacked into the cache directory.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.run(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			opts := []worker.Option{
				worker.WithInterval(a.pollInterval(interval)),
				worker.WithLogger(a.logger),
				worker.WithMetrics(a.metrics),
			}
			var db database.Database
			if archive {
				if db, err = a.archive(); err != nil {
					return err
				}
			}
			if db != nil {
				defer db.Close()
				opts = append(opts, worker.WithReports(a.reports()))
			}

			res, err := worker.New(db, opts...).Wait(ctx, run)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res.Summary)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default APPTHWACK_POLL_INTERVAL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long")
	cmd.Flags().BoolVar(&archive, "archive", true, "archive results when DATABASE_URL is set")
	return cmd
}

func (a *app) pollInterval(flag time.Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	return a.cfg.PollInterval
}

func (a *app) downloadCommand() *cobra.Command {
	var (
		dest  string
		unzip bool
	)
	cmd := &cobra.Command{
		Use:   "download PROJECT_ID RUN_ID",
		Short: "Download the report archive of a completed run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.run(args)
			if err != nil {
				return err
			}
			res, err := run.Results(cmd.Context())
			if err != nil {
				return err
			}
			if unzip {
				dir, err := a.reports().Fetch(cmd.Context(), run, res)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dir)
				return nil
			}
			if err := run.DownloadResults(cmd.Context(), res, dest); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "output", "o", ".", "file or directory to write the archive to")
	cmd.Flags().BoolVar(&unzip, "unzip", false, "unpack into the cache directory instead")
	return cmd
}

func (a *app) reportCommand() *cobra.Command {
	var (
		out  string
		days int
	)
	cmd := &cobra.Command{
		Use:   "report PROJECT_ID RUN_ID",
		Short: "Render an HTML chart page for a run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.run(args)
			if err != nil {
				return err
			}
			res, err := run.Results(cmd.Context())
			if err != nil {
				return err
			}

			_, _, perf := database.Records(run, res)
			var trend []database.DataPoint
			db, err := a.archive()
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
				if trend, err = db.GetPassRateTrend(run.ProjectID, days); err != nil {
					a.logger.Warn().Err(err).Msg("pass rate trend unavailable")
				}
			}

			if out == "" {
				out = fmt.Sprintf("run-%d.html", run.ID)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := charts.NewGenerator().Page(res, perf, trend, f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "HTML file to write (default run-RUN_ID.html)")
	cmd.Flags().IntVar(&days, "days", 30, "days of pass rate history to chart")
	return cmd
}
