package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ytsubs/internal/history"
)

// runIDDisplayLength is enough of a uuid to be unique in practice and is
// accepted back by --run as a prefix.
const runIDDisplayLength = 8

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past download runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errors.New("run history is disabled (set [history] enabled = true)")
			}
			store, err := history.Open(cfg.Paths.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			if strings.TrimSpace(runID) != "" {
				return showRun(cmd, store, runID, jsonOutput)
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				if runs == nil {
					runs = []history.Run{}
				}
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderRunsTable(runs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show per-video outcomes for a run id or unique prefix")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of a table")
	return cmd
}

func showRun(cmd *cobra.Command, store *history.Store, runID string, jsonOutput bool) error {
	run, err := store.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	videos, err := store.RunVideos(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	if jsonOutput {
		if videos == nil {
			videos = []history.VideoOutcome{}
		}
		return writeJSON(cmd, struct {
			Run    history.Run            `json:"run"`
			Videos []history.VideoOutcome `json:"videos"`
		}{run, videos})
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Run "+run.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Started:  %s\n", formatTimestamp(run.StartedAt))
	fmt.Fprintf(out, "Sources:  %s\n", strings.Join(run.Sources, ", "))
	fmt.Fprintf(out, "Output:   %s (%s)\n", run.OutputDir, run.Format)
	fmt.Fprintf(out, "Result:   %d succeeded, %d failed, %d files, %s\n",
		run.Succeeded, run.Failed, run.Files, humanize.Bytes(uint64(max(run.Bytes, 0))))
	fmt.Fprintln(out, renderVideosTable(videos))
	return nil
}

func renderRunsTable(runs []history.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortRunID(run.ID),
			formatTimestamp(run.StartedAt),
			strconv.Itoa(run.Total),
			strconv.Itoa(run.Succeeded),
			strconv.Itoa(run.Failed),
			humanize.Bytes(uint64(max(run.Bytes, 0))),
			strings.Join(run.Sources, ", "),
		})
	}
	return renderTable([]column{
		{title: "Run"},
		{title: "Started"},
		{title: "Videos", numeric: true},
		{title: "OK", numeric: true},
		{title: "Failed", numeric: true},
		{title: "Size", numeric: true},
		{title: "Sources"},
	}, rows)
}

func renderVideosTable(videos []history.VideoOutcome) string {
	rows := make([][]string, 0, len(videos))
	for _, v := range videos {
		detail := v.Error
		if v.Status == history.StatusSucceeded {
			detail = fmt.Sprintf("%d file(s)", len(v.Files))
		}
		rows = append(rows, []string{strconv.Itoa(v.Position), v.VideoID, v.Title, v.Status, detail})
	}
	return renderTable([]column{
		{title: "#", numeric: true},
		{title: "Video"},
		{title: "Title"},
		{title: "Status"},
		{title: "Detail"},
	}, rows)
}

func shortRunID(id string) string {
	if len(id) <= runIDDisplayLength {
		return id
	}
	return id[:runIDDisplayLength]
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
