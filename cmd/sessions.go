package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/grovetools/pgpulse/cli"
	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/internal/recorder"
	"github.com/grovetools/pgpulse/internal/sessionlog"
	"github.com/grovetools/pgpulse/logging"
)

// NewSessionsCmd returns the session management commands.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and prune recorded sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsPruneCmd())

	return cmd
}

func sessionsDir(cmd *cobra.Command, override string) (*config.Config, string, error) {
	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	if override != "" {
		return cfg, override, nil
	}
	return cfg, cfg.Recording.Dir, nil
}

func newSessionsListCmd() *cobra.Command {
	var (
		dir   string
		label string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, root, err := sessionsDir(cmd, dir)
			if err != nil {
				return err
			}
			infos, err := sessionlog.List(root)
			if err != nil {
				return fmt.Errorf("failed to list sessions in %s: %w", root, err)
			}
			if label != "" {
				filtered := infos[:0]
				for _, info := range infos {
					if info.Label == label {
						filtered = append(filtered, info)
					}
				}
				infos = filtered
			}

			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintf(out, "No sessions in %s\n", root)
				return nil
			}
			writeSessionTable(out, infos, time.Now())
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Session log directory (defaults to recording.dir)")
	cmd.Flags().StringVar(&label, "label", "", "Only show sessions with this label")
	return cmd
}

func writeSessionTable(out io.Writer, infos []sessionlog.Info, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tSTARTED\tSPAN\tFRAMES\tSIZE\tSTATE\tPATH")
	for _, info := range infos {
		started := "-"
		frames := "-"
		span := "-"
		if info.Meta != nil {
			started = humanize.RelTime(info.Meta.StartedAt, now, "ago", "from now")
			frames = humanize.Comma(int64(info.Meta.Frames))
			if d := info.Span(); d > 0 {
				span = d.Round(time.Second).String()
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Label, started, span, frames, humanize.IBytes(uint64(info.Size)), sessionState(info), info.Path)
	}
	w.Flush()
}

func sessionState(info sessionlog.Info) string {
	switch {
	case info.Active:
		return "recording"
	case info.Meta == nil:
		return "no metadata"
	case info.Meta.Closed:
		return "closed"
	default:
		return "interrupted"
	}
}

func newSessionsPruneCmd() *cobra.Command {
	var (
		dir    string
		hours  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete closed sessions older than the retention window",
		Long: `Delete session logs whose last activity is older than the retention window.
Sessions still being recorded are never removed.

Examples:
  # Apply recording.retention_hours from the configuration
  pgpulse sessions prune

  # Keep one day, showing what would go
  pgpulse sessions prune --retention-hours 24 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, err := sessionsDir(cmd, dir)
			if err != nil {
				return err
			}
			horizon := cfg.Recording.RetentionHorizon()
			if cmd.Flags().Changed("retention-hours") {
				horizon = config.RecordingConfig{RetentionHours: hours}.RetentionHorizon()
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if horizon <= 0 {
				pretty.Info("Retention is disabled; nothing to prune")
				return nil
			}

			pruner := recorder.NewPruner(root, horizon)
			if dryRun {
				expired, err := pruner.Expired()
				if err != nil {
					return fmt.Errorf("prune failed: %w", err)
				}
				for _, info := range expired {
					pretty.Path("Would remove", info.Path)
				}
				return nil
			}

			removed, err := pruner.PruneOnce()
			for _, path := range removed {
				pretty.Path("Removed", path)
			}
			if err != nil {
				return fmt.Errorf("prune failed: %w", err)
			}
			pretty.Success(fmt.Sprintf("Pruned %d session(s) older than %s", len(removed), horizon))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Session log directory (defaults to recording.dir)")
	cmd.Flags().IntVar(&hours, "retention-hours", 0, "Retention window in hours (overrides recording.retention_hours)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be removed")
	return cmd
}
