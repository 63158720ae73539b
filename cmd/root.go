// Package cmd implements the serialmon command line
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"serialmon/pkg/config"
	"serialmon/pkg/serial"
)

const version = "1.0.0"

// globals holds the persistent flags and the pieces tests replace
type globals struct {
	verbose   bool
	logFile   string
	configDir string

	opener    serial.Opener
	listPorts func() ([]serial.PortInfo, error)
	// isTerminal reports whether stdout is an interactive terminal
	isTerminal func() bool

	logger *zap.SugaredLogger
}

func defaultGlobals() *globals {
	return &globals{
		opener:     serial.NewOpener(),
		listPorts:  serial.GetDetailedPortsList,
		isTerminal: stdoutIsTerminal,
		logger:     zap.NewNop().Sugar(),
	}
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := newRootCmd(defaultGlobals()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(g *globals) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "serialmon",
		Short: "A line-oriented serial port monitor",
		Long: `serialmon opens a serial port, shows received data line by line and
sends commands typed by the user.

Run 'serialmon connect <port>' for the interactive monitor.`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(g.verbose, g.logFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			g.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = g.logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "write diagnostics to this file")
	rootCmd.PersistentFlags().StringVar(&g.configDir, "config-dir", "", "directory for profiles and history (default: user config dir)")

	rootCmd.AddCommand(newListCmd(g))
	rootCmd.AddCommand(newConnectCmd(g))
	rootCmd.AddCommand(newSendCmd(g))
	rootCmd.AddCommand(newConfigCmd(g))

	return rootCmd
}

// newLogger builds the diagnostics logger: to logFile when set, to stderr
// at debug level when verbose, otherwise a no-op logger
func newLogger(verbose bool, logFile string, stderr io.Writer) (*zap.SugaredLogger, error) {
	if logFile == "" && !verbose {
		return zap.NewNop().Sugar(), nil
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	var sink zapcore.WriteSyncer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.Lock(f)
	} else {
		sink = zapcore.AddSync(stderr)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core).Sugar(), nil
}

// profiles opens the profile store under --config-dir
func (g *globals) profiles() (*config.FileConfigManager, error) {
	dir := g.configDir
	if dir == "" {
		var err error
		if dir, err = config.DefaultConfigDir(); err != nil {
			return nil, err
		}
	}
	return config.NewFileConfigManager(dir), nil
}
