package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ytsubs/internal/deps"
	"ytsubs/internal/logging"
	"ytsubs/internal/ytdlp"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			statuses := deps.Check(cfg)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range dependencyLines(statuses, colorize) {
				fmt.Fprintln(out, line)
			}

			if err := deps.RequireAvailable(statuses); err != nil {
				return err
			}
			client := ytdlp.New(cfg, logging.NewNop())
			version, err := client.Version(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("yt-dlp version", statusWarn, err.Error(), colorize))
				return nil
			}
			fmt.Fprintln(out, renderStatusLine("yt-dlp version", statusInfo, version, colorize))
			return nil
		},
	}
}
