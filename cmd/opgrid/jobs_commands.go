package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"opgrid/internal/jobstore"
	"opgrid/internal/lifecycle"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect jobs recorded by the leader",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsHistoryCommand(ctx))
	jobsCmd.AddCommand(newJobsStatsCommand(ctx))
	jobsCmd.AddCommand(newJobsPruneCommand(ctx))
	return jobsCmd
}

type jobView struct {
	ID         string    `json:"id"`
	Operator   string    `json:"operator"`
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code"`
	Session    string    `json:"session,omitempty"`
	Marker     string    `json:"marker,omitempty"`
	User       string    `json:"user,omitempty"`
	Role       string    `json:"role,omitempty"`
	Descriptor string    `json:"descriptor"`
	Error      string    `json:"error,omitempty"`
	GroupSize  int       `json:"group_size"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newJobView(rec *lifecycle.JobRecord) jobView {
	return jobView{
		ID:         rec.ID,
		Operator:   rec.Operator,
		Status:     rec.Status.String(),
		StatusCode: int(rec.Status),
		Session:    rec.Session,
		Marker:     rec.Marker,
		User:       rec.User,
		Role:       rec.Role,
		Descriptor: rec.Descriptor,
		Error:      rec.Error,
		GroupSize:  rec.GroupSize,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses   []string
		session    string
		operator   string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := jobstore.ListFilter{Session: session, Operator: operator, Limit: limit}
			for _, value := range statuses {
				status, err := lifecycle.ParseStatus(value)
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStore(func(store *jobstore.Store) error {
				jobs, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					views := make([]jobView, 0, len(jobs))
					for _, rec := range jobs {
						views = append(views, newJobView(rec))
					}
					return writeJSON(cmd, views)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, rec := range jobs {
					rows = append(rows, []string{
						rec.ID,
						rec.Operator,
						statusLabel(rec.Status),
						strconv.Itoa(rec.GroupSize),
						formatTimestamp(rec.UpdatedAt),
						valueOrDash(truncate(rec.Error, 48)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Operator", "Status", "Ranks", "Updated", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status name or code (repeatable)")
	cmd.Flags().StringVar(&session, "session", "", "Filter by session")
	cmd.Flags().StringVar(&operator, "operator", "", "Filter by operator name")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobstore.Store) error {
				rec, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				view := newJobView(rec)
				if jsonOutput {
					return writeJSON(cmd, view)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderPairs([][2]string{
					{"ID", view.ID},
					{"Operator", view.Operator},
					{"Status", fmt.Sprintf("%s (%d)", statusLabel(rec.Status), view.StatusCode)},
					{"Descriptor", view.Descriptor},
					{"Session", valueOrDash(view.Session)},
					{"Marker", valueOrDash(view.Marker)},
					{"User", valueOrDash(view.User)},
					{"Role", valueOrDash(view.Role)},
					{"Ranks", strconv.Itoa(view.GroupSize)},
					{"Created", formatTimestamp(view.CreatedAt)},
					{"Updated", formatTimestamp(view.UpdatedAt)},
					{"Error", valueOrDash(view.Error)},
				}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type historyView struct {
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

func newJobsHistoryCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history <job-id>",
		Short: "Show every status a job passed through",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobstore.Store) error {
				history, err := store.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					views := make([]historyView, 0, len(history))
					for _, entry := range history {
						views = append(views, historyView{
							Status:     entry.Status.String(),
							StatusCode: int(entry.Status),
							Message:    entry.Message,
							At:         entry.At,
						})
					}
					return writeJSON(cmd, views)
				}
				rows := make([][]string, 0, len(history))
				for i, entry := range history {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						statusLabel(entry.Status),
						formatTimestamp(entry.At),
						valueOrDash(entry.Message),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"#", "Status", "Recorded", "Message"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobstore.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				var rows [][]string
				for _, status := range lifecycle.AllStatuses() {
					if count := stats[status]; count > 0 {
						rows = append(rows, []string{statusLabel(status), strconv.Itoa(count)})
					}
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newJobsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished jobs older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			return ctx.withStore(func(store *jobstore.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished job(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Only remove jobs last updated before this age")
	return cmd
}
