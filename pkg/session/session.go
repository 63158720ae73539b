// Package session manages the open/closed lifecycle of a single serial connection
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"serialmon/pkg/framer"
	"serialmon/pkg/serial"
)

var (
	// ErrWriteQueueFull is returned by Write when the outbound queue cannot take more data
	ErrWriteQueueFull = errors.New("write queue is full")

	// ErrReadFailed and ErrWriteFailed wrap device errors carried by EventError
	ErrReadFailed  = errors.New("read failed")
	ErrWriteFailed = errors.New("write failed")
)

const (
	defaultEventBuffer = 256
	writeQueueSize     = 64
	readBufferSize     = 4096
)

// Session owns at most one open device at a time. Open, Close and Write may
// be called from any goroutine, including the one reading Events; none of
// them waits for the consumer. Events are delivered in order. Received lines
// stop being read from the device while the consumer falls behind.
type Session struct {
	mu     sync.Mutex
	opener serial.Opener
	logger *zap.SugaredLogger
	enc    encoding.Encoding
	events *eventQueue

	conn   *connection
	port   string
	baud   int
	format serial.FrameFormat

	bytesSent atomic.Int64
	bytesRecv atomic.Int64
}

// connection is the per-open state: the device and its two pumps
type connection struct {
	dev  serial.Device
	tx   chan []byte
	stop chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Session) { s.SetLogger(logger) }
}

// WithEventBuffer sets the capacity of the events channel
func WithEventBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.events = newEventQueue(n)
		}
	}
}

// WithEncoding sets the character encoding of the link (UTF-8 by default)
func WithEncoding(enc encoding.Encoding) Option {
	return func(s *Session) {
		if enc != nil {
			s.enc = enc
		}
	}
}

// New creates a closed session that opens devices with opener
func New(opener serial.Opener, opts ...Option) *Session {
	s := &Session{
		opener: opener,
		logger: zap.NewNop().Sugar(),
		enc:    unicode.UTF8,
		events: newEventQueue(defaultEventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger replaces the diagnostics logger; nil restores the no-op logger
func (s *Session) SetLogger(logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s.logger = logger
}

// Events returns the channel on which session events are published
func (s *Session) Events() <-chan Event {
	return s.events.out
}

// Open closes any open device, then opens port with the given baud rate and
// format specifier. Failures are both returned and published as EventError;
// the session is left closed.
func (s *Session) Open(port string, baudRate int, format string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()

	ff, err := serial.ParseFormat(format)
	if err != nil {
		s.logger.Debugw("rejected frame format", "format", format, "error", err)
		s.emit(newEvent(EventError, "Unsupported serial format: "+format, err))
		return err
	}

	if baudRate <= 0 {
		err := &serial.OpenError{Port: port, Cause: fmt.Errorf("%w: %d", serial.ErrInvalidBaudRate, baudRate)}
		s.emit(newEvent(EventError, "Failed to open port: "+err.Cause.Error(), err))
		return err
	}

	s.logger.Debugw("opening port", "port", port, "baud", baudRate, "format", ff.String())
	dev, err := s.opener.Open(port, ff.Mode(baudRate))
	if err != nil {
		openErr := &serial.OpenError{Port: port, Cause: err}
		s.logger.Warnw("open failed", "port", port, "error", err)
		s.emit(newEvent(EventError, "Failed to open port: "+err.Error(), openErr))
		return openErr
	}

	c := &connection{
		dev:  dev,
		tx:   make(chan []byte, writeQueueSize),
		stop: make(chan struct{}),
	}
	s.conn = c
	s.port = port
	s.baud = baudRate
	s.format = ff

	c.wg.Add(2)
	go s.readLoop(c, framer.NewLineFramer(framer.WithEncoding(s.enc)))
	go s.writeLoop(c)

	summary := fmt.Sprintf("Connected to %s @ %d baud (%s)", port, baudRate, format)
	s.logger.Infow("port opened", "port", port, "baud", baudRate, "format", ff.String())
	s.emit(newEvent(EventConnected, summary, nil))
	return nil
}

// Close releases the device if one is open. Closing a closed session does
// nothing and publishes nothing.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
}

func (s *Session) closeLocked() {
	c := s.conn
	if c == nil {
		return
	}
	s.conn = nil

	close(c.stop)
	if err := c.dev.Close(); err != nil {
		s.logger.Warnw("close failed", "port", s.port, "error", err)
	}
	// Both pumps are gone once Wait returns, so nothing from this device
	// can be published after Disconnected.
	c.wg.Wait()

	s.logger.Infow("port closed", "port", s.port)
	s.emit(newEvent(EventDisconnected, "Disconnected", nil))
}

// Write queues text followed by the eol terminator for transmission and
// returns without waiting for the device. On a closed session the text is
// dropped and nil is returned.
func (s *Session) Write(text string, eol serial.EOL) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	data, err := encoding.ReplaceUnsupported(s.enc.NewEncoder()).Bytes([]byte(text + eol.Sequence()))
	if err != nil {
		return fmt.Errorf("failed to encode text: %w", err)
	}

	select {
	case s.conn.tx <- data:
		return nil
	default:
		s.logger.Warnw("write queue full", "port", s.port, "dropped", len(data))
		return ErrWriteQueueFull
	}
}

// IsOpen reports whether a device is open. It stays true after a read
// failure has stopped the reader, until Close or the next Open.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// PortName returns the port of the current or last connection
func (s *Session) PortName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// BaudRate returns the baud rate of the current or last connection
func (s *Session) BaudRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baud
}

// Format returns the frame format of the current or last connection
func (s *Session) Format() serial.FrameFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Stats returns the number of bytes written to and read from devices
func (s *Session) Stats() (bytesSent, bytesRecv int64) {
	return s.bytesSent.Load(), s.bytesRecv.Load()
}

// emit queues ev without blocking. Callers hold s.mu, which keeps lifecycle
// events ordered.
func (s *Session) emit(ev Event) {
	s.events.push(ev)
}

// publish is emit for the pumps: it waits for room in the queue and gives up
// when the connection stops
func (s *Session) publish(c *connection, ev Event) bool {
	return s.events.pushWait(ev, c.stop)
}

func (s *Session) readLoop(c *connection, lf *framer.LineFramer) {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.dev.Read(buf)
		if n > 0 {
			s.bytesRecv.Add(int64(n))
			for line := range lf.Feed(buf[:n]) {
				if !s.publish(c, newEvent(EventDataReceived, line, nil)) {
					return
				}
			}
		}

		if err != nil {
			select {
			case <-c.stop:
				// Read was interrupted by Close
			default:
				s.logger.Warnw("read failed", "error", err)
				s.publish(c, newEvent(EventError, "Read failed: "+err.Error(), fmt.Errorf("%w: %w", ErrReadFailed, err)))
			}
			return
		}
	}
}

func (s *Session) writeLoop(c *connection) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stop:
			return
		case data := <-c.tx:
			n, err := c.dev.Write(data)
			s.bytesSent.Add(int64(n))
			if err != nil {
				select {
				case <-c.stop:
					return
				default:
				}
				s.logger.Warnw("write failed", "error", err)
				if !s.publish(c, newEvent(EventError, "Write failed: "+err.Error(), fmt.Errorf("%w: %w", ErrWriteFailed, err))) {
					return
				}
			}
		}
	}
}
