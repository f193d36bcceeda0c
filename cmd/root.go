package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/xh/internal/config"
	"github.com/zjrosen/xh/internal/flags"
	"github.com/zjrosen/xh/internal/history"
	"github.com/zjrosen/xh/internal/log"
	"github.com/zjrosen/xh/internal/shell"
	"github.com/zjrosen/xh/internal/tracing"
)

var (
	version    = "dev"
	cfgFile    string
	cfg        config.Config
	debugFlag  bool
	logFile    string
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "xh",
	Short: "Run external programs with discrete arguments",
	Long: `xh runs one external program with exact arguments (no shell in between)
and consumes its output synchronously, line by line, asynchronously, or in
the background with callbacks.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .xh/config.yaml, then ~/.config/xh/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (also enabled by XH_DEBUG)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "xh-debug.log",
		"debug log path")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("encoding", defaults.Encoding)
	viper.SetDefault("new_session", defaults.NewSession)
	viper.SetDefault("stdout_buffer_size", defaults.StdoutBufferSize)
	viper.SetDefault("stderr_buffer_size", defaults.StderrBufferSize)
	viper.SetDefault("path_cache.enabled", defaults.PathCache.Enabled)
	viper.SetDefault("path_cache.ttl", defaults.PathCache.TTL)
	viper.SetDefault("history.enabled", defaults.History.Enabled)
	viper.SetDefault("history.path", defaults.History.Path)
	viper.SetDefault("watch.debounce", defaults.Watch.Debounce)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .xh/config.yaml (current directory)
		// 2. ~/.config/xh/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "xh"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// A missing config file is fine; defaults apply
	_ = viper.ReadInConfig()
	_ = viper.Unmarshal(&cfg)
}

const localConfigPath = ".xh/config.yaml"

// setup starts debug logging and validates the loaded config before any
// subcommand runs.
func setup(_ *cobra.Command, _ []string) error {
	if debugFlag || os.Getenv("XH_DEBUG") != "" {
		cleanup, err := log.Init(logFile)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
		log.Info(log.CatConfig, "xh starting", "version", version, "config", viper.ConfigFileUsed())
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// runner bundles the engine with the resources it was built from.
type runner struct {
	engine   *shell.Engine
	history  *history.DB
	provider *tracing.Provider
}

// newRunner builds an engine from cfg. Close must be called when done.
func newRunner(cfg config.Config, extraFlags ...string) (*runner, error) {
	dec, err := shell.NewDecoder(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	ttl := cfg.PathCache.TTL
	if !cfg.PathCache.Enabled {
		ttl = 0
	}

	reg := flags.New(cfg.Flags)
	for _, name := range extraFlags {
		reg = reg.With(name, true)
	}

	tcfg := tracing.DefaultConfig()
	tcfg.Enabled = cfg.Tracing.Enabled
	tcfg.Exporter = cfg.Tracing.Exporter
	tcfg.FilePath = cfg.Tracing.FilePath
	if tcfg.FilePath == "" {
		tcfg.FilePath = config.DefaultTracesFilePath()
	}
	if cfg.Tracing.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	}
	tcfg.SampleRate = cfg.Tracing.SampleRate
	provider, err := tracing.NewProvider(tcfg)
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}

	opts := []shell.EngineOption{
		shell.WithResolver(shell.NewResolver(ttl)),
		shell.WithDecoder(dec),
		shell.WithFlags(reg),
		shell.WithTracer(provider.Tracer()),
		shell.WithDefaultNewSession(cfg.NewSession),
		shell.WithDefaultBufferSizes(cfg.StdoutBufferSize, cfg.StderrBufferSize),
	}

	rt := &runner{provider: provider}
	if cfg.History.Enabled {
		path := cfg.History.Path
		if path == "" {
			path = config.DefaultHistoryPath()
		}
		db, err := history.NewDB(path)
		if err != nil {
			// Runs still work without history
			log.ErrorErr(log.CatHistory, "history disabled", err, "path", path)
		} else {
			rt.history = db
			opts = append(opts, shell.WithRecorder(db))
		}
	}

	rt.engine = shell.New(opts...)
	return rt, nil
}

// Close flushes traces and closes the history database.
func (r *runner) Close() {
	r.engine.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.provider.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatTrace, "tracing shutdown failed", err)
	}
	if r.history != nil {
		_ = r.history.Close()
	}
}

// Execute runs the root command. Debug logging is closed on every path,
// including a command that fails or reports a non-zero exit.
func Execute() error {
	defer closeLogging()
	return rootCmd.Execute()
}

func closeLogging() {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
