package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/pgpulse/cli"
	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/logging"
)

// NewConfigCmd returns the configuration inspection commands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate pgpulse configuration",
	}

	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of pgpulse.yml",
		Long: `Print the JSON schema generated from the configuration types. Point your
editor's YAML language server at it for completion and validation.

Examples:
  pgpulse config schema > pgpulse.schema.json
  pgpulse config schema -o ~/.config/pgpulse/pgpulse.schema.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to generate schema")
			}
			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(output, append(data, '\n'), 0644); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Path("Schema written to", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the schema to a file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg  *config.Config
				path string
				err  error
			)
			if len(args) == 1 {
				path = args[0]
				cfg, err = config.Load(path)
			} else {
				cfg, path, err = cli.LoadConfig(cmd)
			}
			if err != nil {
				return err
			}
			if path == "" {
				return errors.ConfigNotFound(".")
			}

			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pretty.Success("Configuration is valid")
			pretty.Path("File", path)
			pretty.KeyValue("Refresh interval", cfg.RefreshInterval.Std().String())
			pretty.KeyValue("Tick deadline", cfg.TickDeadline().String())
			for _, src := range cfg.Sources {
				pretty.KeyValue("Source "+src.ID, fmt.Sprintf("%s (timeout %s)", src.Kind, src.Timeout.Std()))
			}
			if cfg.Recording.Enabled {
				pretty.Path("Recording to", cfg.Recording.Dir)
			}
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# Source: %s\n", path)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "# Source: defaults (no configuration file found)")
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
