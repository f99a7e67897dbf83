package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/pgpulse/cli"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/internal/replay"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/tui/dashboard"
)

const replayProducer = "replay"

// NewReplayCmd returns the command that plays back a recorded session.
func NewReplayCmd() *cobra.Command {
	var (
		speed    float64
		at       string
		sequence int64
		noTUI    bool
	)

	cmd := &cobra.Command{
		Use:   "replay <session.pgsl>",
		Short: "Replay a recorded session",
		Long: `Open a closed session log and show it in the dashboard, stepping, seeking
and playing it back at an adjustable speed.

A log whose writer is still recording is refused. A log left behind by a
crashed writer opens up to its last readable frame.

Examples:
  pgpulse replay ~/.local/share/pgpulse/sessions/db_5433/20260301_120000.pgsl
  pgpulse replay session.pgsl --speed 4
  pgpulse replay session.pgsl --at 2026-03-01T12:05:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := cli.LoadConfig(cmd); err != nil && !errors.Is(err, errors.ErrCodeConfigNotFound) {
				return err
			}

			log, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			defer log.Close()

			cur, err := log.NewCursor()
			if err != nil {
				return err
			}
			switch {
			case at != "":
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeInvalidInput, "--at must be an RFC 3339 timestamp")
				}
				cur.SeekTime(t)
			case sequence >= 0:
				cur.SeekSequence(sequence)
			}

			if noTUI || !isInteractive() {
				return printReplaySummary(cmd, log)
			}

			b := bus.New(0)
			defer b.Close()
			pub, err := b.Claim(replayProducer)
			if err != nil {
				return err
			}
			defer pub.Release()

			sub := b.Subscribe("dashboard")
			defer b.Unsubscribe(sub)
			cur.Attach(pub)
			if speed > 0 {
				if err := cur.Play(speed); err != nil {
					return err
				}
			}
			defer cur.Pause()

			noticeReplayState(b, log)
			return runDashboard("pgpulse replay", sub, dashboard.ReplayControls(cur))
		},
	}

	cmd.Annotations = map[string]string{cli.KeysAnnotation: dashboard.DefaultKeyMap.Reference(true)}

	cmd.Flags().Float64Var(&speed, "speed", 0, "Start playing at this speed (0 starts paused)")
	cmd.Flags().StringVar(&at, "at", "", "Start at the frame captured at or after this time (RFC 3339)")
	cmd.Flags().Int64Var(&sequence, "seq", -1, "Start at the frame with this sequence number")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print a summary of the log instead of the dashboard")

	return cmd
}

// noticeReplayState warns about interrupted recordings and skipped frames.
func noticeReplayState(b *bus.Bus, log *replay.Log) {
	if log.Interrupted() {
		b.Notify(bus.NoticeWarning, "replay", "recording was interrupted; showing frames up to the last readable one")
	}
	if gaps := log.Gaps(); len(gaps) > 0 {
		b.Notify(bus.NoticeWarning, "replay", fmt.Sprintf("%d corrupt frame(s) skipped", len(gaps)))
	}
}

func printReplaySummary(cmd *cobra.Command, log *replay.Log) error {
	pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
	start, end := log.Span()

	pretty.Path("Session", log.Path())
	pretty.KeyValue("Frames", fmt.Sprintf("%d", log.Len()))
	pretty.KeyValue("Start", start.Local().Format(time.RFC3339))
	pretty.KeyValue("End", end.Local().Format(time.RFC3339))
	pretty.KeyValue("Span", end.Sub(start).Round(time.Second).String())
	if meta := log.Meta(); meta != nil {
		pretty.KeyValue("Label", meta.Label)
		pretty.KeyValue("ID", meta.ID)
	}
	if gaps := log.Gaps(); len(gaps) > 0 {
		pretty.Warn(fmt.Sprintf("%d corrupt frame(s) skipped", len(gaps)))
	}
	if log.Interrupted() {
		pretty.Warn("recording was interrupted")
	}
	return nil
}
