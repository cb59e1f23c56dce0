package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/app"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/spf13/cobra"
)

func rootCmd(a *app.App) *cobra.Command {
	root := &cobra.Command{
		Use:          "schedctl",
		Short:        "Inspect and drive the goqueue scheduler",
		SilenceUsage: true,
	}
	root.AddCommand(
		backendCmd(a),
		intervalCmd(a),
		searchCmd(a),
		scheduleCmd(a),
		unscheduleCmd(a),
		runCmd(a),
		cleanupCmd(a),
	)
	return root
}

func parseArgsFlag(raw string) (models.Args, error) {
	if raw == "" {
		return nil, nil
	}
	args, err := models.ParseArgs([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("--args must be a JSON array: %w", err)
	}
	return args, nil
}

func backendCmd(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "backend",
		Short: "Print the active scheduling backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.Selector.ActiveName(cmd.Context()))
			return nil
		},
	}
}

func intervalCmd(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "interval [name]",
		Short: "Resolve a schedule name to seconds, or list every schedule",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, s := range a.Selector.Registry().All() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", s.Name, int64(s.Interval/time.Second), s.Display)
				}
				return nil
			}
			d, err := a.Selector.Interval(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), int64(d/time.Second))
			return nil
		},
	}
}

func searchCmd(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			hook, _ := flags.GetString("hook")
			group, _ := flags.GetString("group")
			status, _ := flags.GetString("status")
			rawArgs, _ := flags.GetString("args")
			limit, _ := flags.GetInt("limit")
			desc, _ := flags.GetBool("desc")
			idsOnly, _ := flags.GetBool("ids")

			args, err := parseArgsFlag(rawArgs)
			if err != nil {
				return err
			}
			q := models.ActionQuery{Hook: hook, Args: args, Group: group, Status: status, Desc: desc, Limit: limit}
			active := a.Selector.Active(cmd.Context())
			out := cmd.OutOrStdout()

			if idsOnly {
				for _, id := range active.SearchIDs(cmd.Context(), q) {
					fmt.Fprintln(out, id)
				}
				return nil
			}
			for _, s := range active.Search(cmd.Context(), q) {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Hook, s.ScheduledAt.Format(time.RFC3339), s.Status, s.Schedule)
			}
			return nil
		},
	}
	cmd.Flags().String("hook", "", "Filter by hook")
	cmd.Flags().String("group", "", "Filter by group")
	cmd.Flags().String("status", "", "Filter by status")
	cmd.Flags().String("args", "", "Filter by argument list (JSON array)")
	cmd.Flags().Int("limit", 50, "Maximum number of results")
	cmd.Flags().Bool("desc", false, "Latest first")
	cmd.Flags().Bool("ids", false, "Print identifiers only")
	return cmd
}

func scheduleCmd(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <hook>",
		Short: "Schedule a single or recurring job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			flags := cmd.Flags()
			rawArgs, _ := flags.GetString("args")
			group, _ := flags.GetString("group")
			at, _ := flags.GetString("at")
			every, _ := flags.GetString("every")

			args, err := parseArgsFlag(rawArgs)
			if err != nil {
				return err
			}
			runAt := time.Now().UTC()
			if at != "" {
				if runAt, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			active := a.Selector.Active(cmd.Context())
			ok := false
			if every != "" {
				interval, err := a.Selector.Interval(every)
				if err != nil {
					return err
				}
				ok = active.ScheduleRecurring(cmd.Context(), pos[0], runAt, interval, args, group)
			} else {
				ok = active.ScheduleSingle(cmd.Context(), pos[0], runAt, args, group)
			}
			if !ok {
				return fmt.Errorf("failed to schedule %s on %s", pos[0], active.Name())
			}

			if next, found := active.NextScheduled(cmd.Context(), pos[0], args, group); found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s next run %s\n", pos[0], next.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().String("args", "", "Argument list (JSON array)")
	cmd.Flags().String("group", "", "Group")
	cmd.Flags().String("at", "", "First run (RFC3339), defaults to now")
	cmd.Flags().String("every", "", "Schedule name for a recurring job")
	return cmd
}

func unscheduleCmd(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unschedule <hook>",
		Short: "Remove the next occurrence of a job, or all of them with --all",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			rawArgs, _ := cmd.Flags().GetString("args")
			group, _ := cmd.Flags().GetString("group")
			all, _ := cmd.Flags().GetBool("all")

			args, err := parseArgsFlag(rawArgs)
			if err != nil {
				return err
			}
			active := a.Selector.Active(cmd.Context())
			if all {
				if !active.UnscheduleAll(cmd.Context(), pos[0], args, group) {
					return fmt.Errorf("failed to unschedule %s", pos[0])
				}
				return nil
			}
			if !active.Unschedule(cmd.Context(), pos[0], args, group) {
				return fmt.Errorf("no scheduled job for %s", pos[0])
			}
			return nil
		},
	}
	cmd.Flags().String("args", "", "Argument list (JSON array); with --all, omit to match any")
	cmd.Flags().String("group", "", "Group")
	cmd.Flags().Bool("all", false, "Remove every occurrence")
	return cmd
}

func runCmd(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch of due jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			batchSize, _ := flags.GetInt("batch-size")
			hooks, _ := flags.GetStringSlice("hooks")
			group, _ := flags.GetString("group")
			force, _ := flags.GetBool("force")
			failFast, _ := flags.GetBool("fail-fast")

			if batchSize <= 0 {
				batchSize = a.Config.BatchSize
			}
			opts := runner.Options{BatchSize: batchSize, Hooks: hooks, Group: group, Force: force}

			ctx, cancel := context.WithCancelCause(cmd.Context())
			defer cancel(nil)

			d := a.Dispatcher
			if failFast {
				d = d.WithHandlers(runner.FailFast(d.Handlers(), cancel))
			}

			result, err := d.RunBatch(ctx, opts)
			if failFast {
				if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
					fmt.Fprintln(cmd.OutOrStdout(), result.String())
					return cause
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.String())
			return result.Err()
		},
	}
	cmd.Flags().Int("batch-size", 0, "Jobs to claim (defaults to RUNNER_BATCH_SIZE)")
	cmd.Flags().StringSlice("hooks", nil, "Only claim these hooks")
	cmd.Flags().String("group", "", "Only claim this group")
	cmd.Flags().Bool("force", false, "Ignore the concurrent batch cap")
	cmd.Flags().Bool("fail-fast", false, "Stop at the first failing job")
	return cmd
}

func cleanupCmd(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Prune old actions and recover stranded claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.Cleaner == nil {
				return errors.New("claim store is not available")
			}
			stats, err := a.Cleaner.Clean(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d, reset %d, failed %d\n", stats.Deleted, stats.Reset, stats.Failed)
			return err
		},
	}
}
