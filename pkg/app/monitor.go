package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"serialmon/pkg/history"
	"serialmon/pkg/serial"
	"serialmon/pkg/session"
)

// MonitorConfig configures a headless Monitor
type MonitorConfig struct {
	Serial     serial.SerialConfig
	Timestamps bool

	Out  io.Writer // received lines
	Diag io.Writer // connection notices and errors

	// In supplies lines to send; nil sends nothing. A blocked Read cannot be
	// interrupted, so after Run returns the goroutine reading In lives until
	// that Read returns. Close In to release it when it is not os.Stdin.
	In io.Reader

	// Linger keeps the port open this long after In reaches EOF, so replies
	// to the last command are still printed. Zero keeps running until ctx
	// is done.
	Linger time.Duration
}

// Monitor prints a port's traffic without a screen: the mode used when
// output is piped or --headless is given
type Monitor struct {
	options

	cfg     MonitorConfig
	session *session.Session

	outMu sync.Mutex
}

// NewMonitor creates a headless monitor that opens ports through opener
func NewMonitor(cfg MonitorConfig, opener serial.Opener, opts ...Option) (*Monitor, error) {
	if err := cfg.Serial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid serial config: %w", err)
	}

	enc, err := serial.LookupEncoding(cfg.Serial.Encoding)
	if err != nil {
		return nil, err
	}

	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Diag == nil {
		cfg.Diag = io.Discard
	}

	o := buildOptions(opts)
	return &Monitor{
		options: o,
		cfg:     cfg,
		session: session.New(opener, session.WithLogger(o.logger), session.WithEncoding(enc)),
	}, nil
}

// Session returns the port session
func (m *Monitor) Session() *session.Session {
	return m.session
}

// Run opens the port and copies traffic until ctx is done, the input ends
// (plus Linger) or the device fails. Open and read failures are returned.
func (m *Monitor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatal := make(chan error, 1)
	pumpCtx, stopPump := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.pump(pumpCtx, fatal)
	}()
	defer func() {
		m.session.Close()
		stopPump()
		wg.Wait()
	}()

	cfg := m.cfg.Serial
	if err := m.session.Open(cfg.Port, cfg.BaudRate, cfg.Format); err != nil {
		return err
	}

	inputDone := make(chan struct{})
	if m.cfg.In != nil {
		go m.feed(ctx, inputDone)
	}

	var linger <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-fatal:
			return err
		case <-inputDone:
			inputDone = nil
			if m.cfg.Linger > 0 {
				linger = time.After(m.cfg.Linger)
			}
		case <-linger:
			return nil
		}
	}
}

// feed sends every non-empty input line with the configured EOL
func (m *Monitor) feed(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(m.cfg.In)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := m.session.Write(text, m.cfg.Serial.EOL); err != nil {
			m.diag(history.KindWarn, "Write failed: "+err.Error())
			continue
		}
		m.logger.Debugw("sent", "text", text)
	}

	if err := scanner.Err(); err != nil {
		m.logger.Warnw("input read failed", "error", err)
	}
}

func (m *Monitor) pump(ctx context.Context, fatal chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.session.Events():
			switch ev.Kind {
			case session.EventConnected:
				m.diag(history.KindInfo, ev.Message)
			case session.EventDisconnected:
				m.diag(history.KindWarn, "Disconnected")
			case session.EventError:
				m.writeLine(m.cfg.Diag, "[ERROR] "+ev.Message)
				if errors.Is(ev.Err, session.ErrReadFailed) {
					select {
					case fatal <- ev.Err:
					default:
					}
				}
			case session.EventDataReceived:
				m.receive(ev)
			}
		}
	}
}

func (m *Monitor) receive(ev session.Event) {
	line := ev.Message
	if m.cfg.Timestamps {
		line = "[" + ev.Time.Format(history.TimeLayout) + "] " + line
	}
	m.writeLine(m.cfg.Out, line)
}

func (m *Monitor) diag(kind history.Kind, text string) {
	m.writeLine(m.cfg.Diag, kind.Prefix()+text)
}

func (m *Monitor) writeLine(w io.Writer, line string) {
	m.outMu.Lock()
	defer m.outMu.Unlock()

	if _, err := io.WriteString(w, line+"\n"); err != nil {
		m.logger.Debugw("output write failed", "error", err)
	}
}
