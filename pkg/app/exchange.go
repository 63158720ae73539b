package app

import (
	"context"
	"fmt"
	"time"

	"serialmon/pkg/serial"
	"serialmon/pkg/session"
)

// ExchangeOptions bounds how long Exchange listens for a reply
type ExchangeOptions struct {
	Wait     time.Duration // total time to collect reply lines
	MaxLines int           // stop after this many lines; 0 means no limit
}

// Exchange opens the port, sends text once and collects the lines received
// until the wait elapses, MaxLines arrive or ctx is done. The port is closed
// before returning.
func Exchange(ctx context.Context, opener serial.Opener, cfg serial.SerialConfig, text string, opts ExchangeOptions, appOpts ...Option) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid serial config: %w", err)
	}

	enc, err := serial.LookupEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	o := buildOptions(appOpts)
	s := session.New(opener, session.WithLogger(o.logger), session.WithEncoding(enc))

	if err := s.Open(cfg.Port, cfg.BaudRate, cfg.Format); err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Write(text, cfg.EOL); err != nil {
		return nil, err
	}

	timer := time.NewTimer(opts.Wait)
	defer timer.Stop()

	var lines []string
	for {
		select {
		case <-ctx.Done():
			return lines, nil
		case <-timer.C:
			return lines, nil
		case ev := <-s.Events():
			switch ev.Kind {
			case session.EventDataReceived:
				lines = append(lines, ev.Message)
				if opts.MaxLines > 0 && len(lines) >= opts.MaxLines {
					return lines, nil
				}
			case session.EventError:
				return lines, ev.Err
			}
		}
	}
}
