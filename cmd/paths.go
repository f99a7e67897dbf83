package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/pgpulse/pkg/paths"
)

// PathsOutput represents the XDG-compliant paths used by pgpulse.
type PathsOutput struct {
	ConfigDir   string `json:"config_dir"`
	DataDir     string `json:"data_dir"`
	StateDir    string `json:"state_dir"`
	SessionsDir string `json:"sessions_dir"`
	LogDir      string `json:"log_dir"`
}

func NewPathsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print the directories used by pgpulse",
		Long: `Print the XDG-compliant directories used by pgpulse as JSON.

- config_dir: pgpulse.yml searched after the working directory
- data_dir: persistent data
- state_dir: daemon PID files
- sessions_dir: default recording.dir
- log_dir: daemon-mode log files`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := PathsOutput{
				ConfigDir:   paths.ConfigDir(),
				DataDir:     paths.DataDir(),
				StateDir:    paths.StateDir(),
				SessionsDir: paths.SessionsDir(),
				LogDir:      paths.LogDir(),
			}

			jsonData, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal paths to JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
			return nil
		},
	}

	return cmd
}
