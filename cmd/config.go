package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/xh/internal/config"
	"github.com/zjrosen/xh/internal/flags"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the xh configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write the default configuration file",
	Long: `Write a commented default configuration. PATH defaults to .xh/config.yaml.
An existing file is left alone unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := localConfigPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := yaml.Marshal(effectiveConfig(cfg))
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configFlagCmd = &cobra.Command{
	Use:   "flag NAME on|off",
	Short: "Turn a feature flag on or off in the config file",
	Long:  "Turn a feature flag on or off, keeping the rest of the config file (comments included) as it is.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if flags.Description(name) == "" {
			return fmt.Errorf("unknown flag %q (known: %v)", name, flags.Known())
		}
		var on bool
		switch args[1] {
		case "on", "true":
			on = true
		case "off", "false":
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}

		path := viper.ConfigFileUsed()
		if path == "" {
			path = localConfigPath
			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}
		}
		updated := flags.New(cfg.Flags).With(name, on).All()
		if err := config.SaveFlags(path, updated); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v in %s\n", name, on, path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd, configFlagCmd)
	rootCmd.AddCommand(configCmd)
}

// effectiveConfig renders cfg with the same keys the config file uses.
func effectiveConfig(c config.Config) map[string]any {
	historyPath := c.History.Path
	if historyPath == "" {
		historyPath = config.DefaultHistoryPath()
	}
	flagMap := make(map[string]bool, len(c.Flags))
	for _, name := range flags.Known() {
		flagMap[name] = false
	}
	for name, v := range c.Flags {
		flagMap[name] = v
	}
	return map[string]any{
		"encoding":           c.Encoding,
		"new_session":        c.NewSession,
		"stdout_buffer_size": c.StdoutBufferSize,
		"stderr_buffer_size": c.StderrBufferSize,
		"path_cache": map[string]any{
			"enabled": c.PathCache.Enabled,
			"ttl":     c.PathCache.TTL.String(),
		},
		"history": map[string]any{
			"enabled": c.History.Enabled,
			"path":    historyPath,
		},
		"watch": map[string]any{
			"debounce": c.Watch.Debounce.String(),
		},
		"tracing": map[string]any{
			"enabled":       c.Tracing.Enabled,
			"exporter":      c.Tracing.Exporter,
			"file_path":     c.Tracing.FilePath,
			"otlp_endpoint": c.Tracing.OTLPEndpoint,
			"sample_rate":   c.Tracing.SampleRate,
		},
		"flags": flagMap,
	}
}
