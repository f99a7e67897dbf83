package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/logging"
)

// CommandOptions holds the global flags shared by pgpulse commands.
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
}

// NewStandardCommand creates a root command with the standard pgpulse flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging and detailed errors")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to pgpulse.yml or pgpulse.toml")

	SetStyledHelp(cmd)

	return cmd
}

// GetOptions extracts the global options from a command.
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
	}
}

// LoadConfig loads the configuration named by --config, or searches the
// working directory and the pgpulse config directory. Without a file the
// defaults are returned with an empty path. Logging is configured from the
// result.
func LoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	opts := GetOptions(cmd)

	var (
		cfg  *config.Config
		path string
		err  error
	)
	if opts.ConfigFile != "" {
		path = opts.ConfigFile
		cfg, err = config.Load(path)
	} else {
		var cwd string
		cwd, err = os.Getwd()
		if err != nil {
			return nil, "", err
		}
		cfg, path, err = config.LoadFrom(cwd)
	}
	if err != nil {
		return nil, path, err
	}

	ConfigureLogging(cfg.Logging, opts.Verbose)
	return cfg, path, nil
}

// ConfigureLogging installs the logging configuration for every component
// logger created afterwards. Verbose forces debug level.
func ConfigureLogging(cfg logging.Config, verbose bool) {
	if verbose {
		cfg.Level = logrus.DebugLevel.String()
	}
	logging.Configure(cfg)
}
