package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"serialmon/pkg/app"
	"serialmon/pkg/config"
	"serialmon/pkg/serial"
)

const historyFile = "history.json"

func newConnectCmd(g *globals) *cobra.Command {
	var (
		sf         serialFlags
		timestamps bool
		headless   bool
		linger     time.Duration
	)

	connectCmd := &cobra.Command{
		Use:   "connect <port|profile>",
		Short: "Connect to a serial port",
		Long: `Connect to a serial port directly or using a saved profile.

The full-screen monitor is used when stdout is a terminal. Otherwise, or
with --headless, received lines go to stdout, connection notices to stderr,
and every line read from stdin is sent.

Examples:
  # Connect to /dev/ttyUSB0 at 115200 8N1
  serialmon connect /dev/ttyUSB0

  # 9600 baud, 7 data bits, even parity, CRLF terminator
  serialmon connect COM3 -b 9600 -f 7E1 -e crlf

  # Use a saved profile, overriding its baud rate
  serialmon connect mydevice -b 57600

  # Send a script and print replies for two seconds
  serialmon connect /dev/ttyACM0 --headless --linger 2s < script.txt`,
		Args:    cobra.ExactArgs(1),
		Aliases: []string{"open", "c"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, profile, err := resolveTarget(cmd, g, &sf, args[0])
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if headless || !g.isTerminal() {
				err = runHeadless(ctx, cmd, g, cfg, timestamps, linger)
			} else {
				err = runInteractive(ctx, g, cfg, timestamps)
			}
			if err != nil {
				printOpenHints(cmd.ErrOrStderr(), err)
				return err
			}

			if profile != "" {
				if pm, perr := g.profiles(); perr == nil {
					if perr := pm.UpdateLastUsed(profile); perr != nil {
						g.logger.Warnw("failed to update profile", "profile", profile, "error", perr)
					}
				}
			}
			return nil
		},
	}

	sf.register(connectCmd.Flags())
	connectCmd.Flags().BoolVarP(&timestamps, "timestamps", "t", false, "prefix received lines with the time")
	connectCmd.Flags().BoolVar(&headless, "headless", false, "print traffic instead of opening the full-screen monitor")
	connectCmd.Flags().DurationVar(&linger, "linger", 0, "headless: exit this long after stdin ends (0 keeps running)")

	return connectCmd
}

// resolveTarget turns a port name or profile name into a configuration.
// Flags the user set override profile values. The profile name is returned
// when one was used.
func resolveTarget(cmd *cobra.Command, g *globals, sf *serialFlags, target string) (serial.SerialConfig, string, error) {
	if !looksLikePort(target) {
		pm, err := g.profiles()
		if err != nil {
			return serial.SerialConfig{}, "", err
		}

		profile, err := pm.Load(target)
		switch {
		case err == nil:
			g.logger.Debugw("using profile", "profile", target, "port", profile.Config.Port)
			cfg, err := sf.apply(cmd, profile.Config, false)
			return cfg, target, err
		case !errors.Is(err, config.ErrProfileNotFound):
			return serial.SerialConfig{}, "", err
		}

		if !portListed(g, target) {
			return serial.SerialConfig{}, "", unknownTarget(cmd, g, pm, target)
		}
	}

	cfg := serial.DefaultConfig()
	cfg.Port = target
	cfg, err := sf.apply(cmd, cfg, true)
	return cfg, "", err
}

func portListed(g *globals, name string) bool {
	ports, err := g.listPorts()
	if err != nil {
		return false
	}
	return slices.ContainsFunc(ports, func(p serial.PortInfo) bool { return p.Name == name })
}

// unknownTarget prints what could have been meant and returns the error
func unknownTarget(cmd *cobra.Command, g *globals, pm config.ProfileManager, target string) error {
	w := cmd.ErrOrStderr()

	fmt.Fprintln(w, "Available ports:")
	ports, _ := g.listPorts()
	if len(ports) == 0 {
		fmt.Fprintln(w, "  No serial ports found.")
	}
	for _, p := range ports {
		fmt.Fprintf(w, "  - %s\n", p.Name)
	}

	if profiles, err := pm.List(); err == nil && len(profiles) > 0 {
		fmt.Fprintln(w, "\nAvailable profiles:")
		for _, p := range profiles {
			fmt.Fprintf(w, "  - %s (port: %s)\n", p.Name, p.Config.Port)
		}
	}

	return fmt.Errorf("'%s' is neither a serial port nor a saved profile", target)
}

func runHeadless(ctx context.Context, cmd *cobra.Command, g *globals, cfg serial.SerialConfig, timestamps bool, linger time.Duration) error {
	m, err := app.NewMonitor(app.MonitorConfig{
		Serial:     cfg,
		Timestamps: timestamps,
		Out:        cmd.OutOrStdout(),
		Diag:       cmd.ErrOrStderr(),
		In:         cmd.InOrStdin(),
		Linger:     linger,
	}, g.opener, app.WithLogger(g.logger), app.WithPortLister(g.listPorts))
	if err != nil {
		return err
	}
	return m.Run(ctx)
}

func runInteractive(ctx context.Context, g *globals, cfg serial.SerialConfig, timestamps bool) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to create screen: %w", err)
	}

	appCfg := app.DefaultConfig()
	appCfg.Serial = cfg
	appCfg.Timestamps = timestamps
	if pm, err := g.profiles(); err == nil {
		appCfg.HistoryFile = filepath.Join(pm.Dir(), historyFile)
	}

	// The screen owns the terminal, so only a log file may receive output
	logger := g.logger
	if g.logFile == "" {
		logger = zap.NewNop().Sugar()
	}

	application, err := app.NewApplication(appCfg, screen, g.opener, app.WithLogger(logger), app.WithPortLister(g.listPorts))
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
