package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/pkg/daemon"
	"github.com/grovetools/pgpulse/tui/dashboard"
)

// NewAttachCmd returns the command that views a remote session.
func NewAttachCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "attach <addr>",
		Short: "View a session served by another pgpulse process",
		Long: `Connect to the viewer endpoint of a running 'pgpulse monitor --listen' and show
its snapshots in the dashboard. The view is read-only; the remote session keeps
its own interval and recording state.

Examples:
  pgpulse attach unix:/tmp/pgpulse.sock
  pgpulse attach db-monitor.internal:7070 --status`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := args[0]
			client, err := daemon.Connect(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			if !client.IsRunning() {
				return fmt.Errorf("no pgpulse session reachable at %s", addr)
			}
			if statusOnly || !isInteractive() {
				return printRemoteStatus(cmd, client)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			b := bus.New(0)
			defer b.Close()
			feed, err := daemon.NewFeed(client, b, addr)
			if err != nil {
				return err
			}
			sub := b.Subscribe("dashboard")
			defer b.Unsubscribe(sub)

			go feed.Run(ctx)
			return runDashboard("pgpulse "+addr, sub, dashboard.ViewOnly("remote"))
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "Print the remote session status and exit")
	return cmd
}

func printRemoteStatus(cmd *cobra.Command, client daemon.Client) error {
	st, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}
	pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
	pretty.KeyValue("State", st.State)
	pretty.KeyValue("Interval", st.Interval)
	pretty.KeyValue("Ticks", fmt.Sprintf("%d (%d overruns)", st.Ticks, st.Overruns))
	if st.Recording != "" {
		pretty.Path("Recording", st.Recording)
		if !st.RecordingOK {
			pretty.Warn("recording disabled after a write failure")
		}
	}
	for _, h := range st.Sources {
		line := fmt.Sprintf("%s: %s", h.Source, h.State)
		if h.LastError != "" {
			line += " (" + h.LastError + ")"
		}
		pretty.Info(line)
	}
	return nil
}
