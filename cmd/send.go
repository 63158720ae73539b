package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"serialmon/pkg/app"
)

func newSendCmd(g *globals) *cobra.Command {
	var (
		sf    serialFlags
		wait  time.Duration
		lines int
	)

	sendCmd := &cobra.Command{
		Use:   "send <port|profile> <text>...",
		Short: "Send one command and print the reply",
		Long: `Open the port, send the text followed by the line terminator, print
the lines received until --wait elapses or --lines arrive, then close.

Examples:
  serialmon send /dev/ttyUSB0 AT+GMR --lines 2
  serialmon send mydevice "AT+CSQ" --wait 500ms`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := resolveTarget(cmd, g, &sf, args[0])
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if lines < 0 {
				return fmt.Errorf("--lines must not be negative")
			}

			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" {
				return fmt.Errorf("nothing to send")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reply, err := app.Exchange(ctx, g.opener, cfg, text, app.ExchangeOptions{Wait: wait, MaxLines: lines}, app.WithLogger(g.logger))
			for _, line := range reply {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if err != nil {
				printOpenHints(cmd.ErrOrStderr(), err)
				return err
			}
			return nil
		},
	}

	sf.register(sendCmd.Flags())
	sendCmd.Flags().DurationVarP(&wait, "wait", "w", time.Second, "how long to collect the reply")
	sendCmd.Flags().IntVarP(&lines, "lines", "n", 0, "stop after this many reply lines (0 waits the full time)")

	return sendCmd
}
