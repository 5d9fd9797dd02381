package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/appthwack/thwack/internal/appthwack"
	"github.com/appthwack/thwack/internal/artifacts"
	"github.com/appthwack/thwack/internal/charts"
	"github.com/appthwack/thwack/internal/worker"
)

func (a *app) watchCommand() *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch PROJECT_ID RUN_ID [RUN_ID...]",
		Short: "Poll several runs of a project until all of them have complete results",
		Long: "Poll several runs of a project and print each summary as it completes. With\n" +
			"DATABASE_URL set every completed run is archived and its report unpacked.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var runs []*appthwack.Run
			for _, id := range args[1:] {
				run, err := a.run([]string{args[0], id})
				if err != nil {
					return err
				}
				runs = append(runs, run)
			}

			db, err := a.archive()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			out := cmd.OutOrStdout()
			var w *worker.Worker
			opts := []worker.Option{
				worker.WithInterval(a.pollInterval(interval)),
				worker.WithLogger(a.logger),
				worker.WithMetrics(a.metrics),
				worker.OnComplete(func(_ *appthwack.Run, res *appthwack.Result) {
					printSummary(out, res.Summary)
					if len(w.Tracked()) == 0 {
						cancel()
					}
				}),
			}
			if db != nil {
				defer db.Close()
				opts = append(opts, worker.WithReports(a.reports()))
			}
			w = worker.New(db, opts...)
			for _, run := range runs {
				w.Track(run)
			}

			w.Poll(ctx)
			if len(w.Tracked()) > 0 {
				w.Start(ctx)
			}
			if left := w.Tracked(); len(left) > 0 {
				return fmt.Errorf("gave up with %d of %d runs pending", len(left), len(runs))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default APPTHWACK_POLL_INTERVAL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long")
	return cmd
}

func (a *app) flakyCommand() *cobra.Command {
	var (
		threshold float64
		limit     int
	)
	cmd := &cobra.Command{
		Use:         "flaky",
		Short:       "List archived tests that both passed and failed across runs",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.requireArchive()
			if err != nil {
				return err
			}
			defer db.Close()

			tests, err := db.GetFlakyTests(threshold)
			if err != nil {
				return err
			}
			if limit > 0 && len(tests) > limit {
				tests = tests[:limit]
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TEST\tFAILED\tPASSED\tRUNS\tSCORE\tLAST FAILURE")
			for _, t := range tests {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.0f%%\t%s\n", t.TestName, t.FailedRuns, t.PassedRuns, t.TotalRuns,
					t.FlakyScore*100, t.LastFailure.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0.1, "minimum share of failed runs")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of tests to list")
	return cmd
}

func (a *app) trendCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:         "trend PROJECT_ID",
		Short:       "Show the daily pass rate of archived runs",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid project id %q", args[0])
			}
			db, err := a.requireArchive()
			if err != nil {
				return err
			}
			defer db.Close()

			points, err := db.GetPassRateTrend(projectID, days)
			if err != nil {
				return err
			}
			if len(points) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no runs archived in the last %d days\n", days)
				return nil
			}
			values := make([]float64, len(points))
			runs := 0
			for i, p := range points {
				values[i] = p.PassRate
				runs += p.Count
			}
			last := points[len(points)-1]
			fmt.Fprintf(cmd.OutOrStdout(), "%s %.1f%% on %s (%d runs over %d days)\n",
				charts.NewGenerator().Sparkline(values), last.PassRate, last.Date.Format(time.DateOnly), runs, len(points))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "days of history")
	return cmd
}

func (a *app) cacheCommand() *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the unpacked report cache",
	}
	cache.AddCommand(&cobra.Command{
		Use:         "ls PROJECT_ID RUN_ID",
		Short:       "List the files of a cached report",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.run(args)
			if err != nil {
				return err
			}
			dir, err := a.reports().GetCachedReport(artifacts.Key(run.ProjectID, run.ID))
			if err != nil {
				return err
			}
			if dir == "" {
				return fmt.Errorf("report of run %d is not cached (see download --unzip)", run.ID)
			}
			files, err := artifacts.Files(dir)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}, &cobra.Command{
		Use:         "prune",
		Short:       "Remove cached reports older than APPTHWACK_CACHE_TTL",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := a.reports().Prune()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired reports\n", removed)
			return nil
		},
	})
	return cache
}
