package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bugst "go.bug.st/serial"
	"golang.org/x/text/encoding/charmap"

	"serialmon/pkg/framer"
	"serialmon/pkg/serial"
	"serialmon/pkg/serial/serialtest"
)

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for session event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, s *Session) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %s: %q", ev.Kind, ev.Message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_InitiallyClosed(t *testing.T) {
	s := New(&serialtest.FakeOpener{})

	assert.False(t, s.IsOpen())
	assert.True(t, s.Format().IsZero())
}

func TestSession_Open(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)

	require.NoError(t, s.Open("/dev/ttyUSB0", 9600, "7e2"))

	ev := nextEvent(t, s)
	assert.Equal(t, EventConnected, ev.Kind)
	assert.Equal(t, "Connected to /dev/ttyUSB0 @ 9600 baud (7e2)", ev.Message)
	assert.True(t, s.IsOpen())
	assert.Equal(t, "/dev/ttyUSB0", s.PortName())
	assert.Equal(t, 9600, s.BaudRate())
	assert.Equal(t, "7E2", s.Format().String())

	dev := opener.Last()
	require.NotNil(t, dev)
	assert.Equal(t, bugst.Mode{
		BaudRate: 9600,
		DataBits: 7,
		Parity:   bugst.EvenParity,
		StopBits: bugst.TwoStopBits,
	}, dev.Mode)

	s.Close()
}

func TestSession_OpenInvalidFormat(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)

	err := s.Open("COM3", 115200, "8N3")

	require.ErrorIs(t, err, serial.ErrInvalidFormat)
	ev := nextEvent(t, s)
	assert.Equal(t, EventError, ev.Kind)
	assert.Equal(t, "Unsupported serial format: 8N3", ev.Message)
	assert.ErrorIs(t, ev.Err, serial.ErrInvalidFormat)
	assert.False(t, s.IsOpen())
	assert.Empty(t, opener.Devices(), "device must not be touched for a bad format")
	assertNoEvent(t, s)
}

func TestSession_OpenInvalidBaudRate(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)

	err := s.Open("COM3", 0, "8N1")

	var openErr *serial.OpenError
	require.ErrorAs(t, err, &openErr)
	assert.ErrorIs(t, err, serial.ErrInvalidBaudRate)
	assert.Equal(t, EventError, nextEvent(t, s).Kind)
	assert.False(t, s.IsOpen())
	assert.Empty(t, opener.Devices())
}

func TestSession_OpenDeviceFailure(t *testing.T) {
	opener := &serialtest.FakeOpener{Err: errors.New("Permission denied")}
	s := New(opener)

	err := s.Open("/dev/ttyS0", 115200, "8N1")

	var openErr *serial.OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "/dev/ttyS0", openErr.Port)
	ev := nextEvent(t, s)
	assert.Equal(t, EventError, ev.Kind)
	assert.Equal(t, "Failed to open port: Permission denied", ev.Message)
	assert.False(t, s.IsOpen())
	assertNoEvent(t, s)
}

func TestSession_OpenTwiceClosesFirst(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)

	require.NoError(t, s.Open("A", 9600, "8N1"))
	assert.Equal(t, EventConnected, nextEvent(t, s).Kind)

	require.NoError(t, s.Open("B", 9600, "8N1"))
	assert.Equal(t, EventDisconnected, nextEvent(t, s).Kind)
	ev := nextEvent(t, s)
	assert.Equal(t, EventConnected, ev.Kind)
	assert.Contains(t, ev.Message, "B")
	assertNoEvent(t, s)

	devices := opener.Devices()
	require.Len(t, devices, 2)
	assert.True(t, devices[0].IsClosed())
	assert.False(t, devices[1].IsClosed())
	assert.Equal(t, 1, opener.OpenCount())

	s.Close()
}

func TestSession_ReopenWithBadFormatStillClosesFirst(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)

	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)

	require.Error(t, s.Open("A", 9600, "9N1"))
	assert.Equal(t, EventDisconnected, nextEvent(t, s).Kind)
	assert.Equal(t, EventError, nextEvent(t, s).Kind)
	assert.False(t, s.IsOpen())
	assert.Equal(t, 0, opener.OpenCount())
}

func TestSession_CloseIdempotent(t *testing.T) {
	s := New(&serialtest.FakeOpener{})

	s.Close()
	assertNoEvent(t, s)

	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)

	s.Close()
	assert.Equal(t, EventDisconnected, nextEvent(t, s).Kind)
	assert.False(t, s.IsOpen())

	s.Close()
	assertNoEvent(t, s)
}

func TestSession_WriteAppendsEOL(t *testing.T) {
	tests := []struct {
		eol  serial.EOL
		want string
	}{
		{serial.EOLNone, "AT"},
		{serial.EOLLF, "AT\n"},
		{serial.EOLCR, "AT\r"},
		{serial.EOLCRLF, "AT\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.eol.String(), func(t *testing.T) {
			opener := &serialtest.FakeOpener{}
			s := New(opener)
			require.NoError(t, s.Open("A", 9600, "8N1"))
			defer s.Close()

			require.NoError(t, s.Write("AT", tt.eol))

			dev := opener.Last()
			require.Eventually(t, func() bool {
				return string(dev.Written()) == tt.want
			}, time.Second, 5*time.Millisecond)

			sent, _ := s.Stats()
			assert.Equal(t, int64(len(tt.want)), sent)
		})
	}
}

func TestSession_WriteWhileClosed(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)

	assert.NoError(t, s.Write("dropped", serial.EOLLF))
	assertNoEvent(t, s)

	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)
	s.Close()
	nextEvent(t, s)

	assert.NoError(t, s.Write("also dropped", serial.EOLLF))
	assertNoEvent(t, s)
	assert.Empty(t, opener.Last().Written())
	sent, _ := s.Stats()
	assert.Zero(t, sent)
}

func TestSession_WriteFailureReported(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)
	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)
	opener.Last().FailWrites(errors.New("I/O error"))

	require.NoError(t, s.Write("x", serial.EOLNone))

	ev := nextEvent(t, s)
	assert.Equal(t, EventError, ev.Kind)
	assert.Equal(t, "Write failed: I/O error", ev.Message)
	assert.ErrorIs(t, ev.Err, ErrWriteFailed)
	s.Close()
}

func TestSession_DataReceived(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)
	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)
	dev := opener.Last()

	dev.Inject([]byte("temp=2"))
	dev.Inject([]byte("1.5\r\nhum=40\r\npartial"))

	for _, want := range []string{"temp=21.5", "hum=40"} {
		ev := nextEvent(t, s)
		assert.Equal(t, EventDataReceived, ev.Kind)
		assert.Equal(t, want, ev.Message)
	}
	assertNoEvent(t, s)

	_, recv := s.Stats()
	assert.Equal(t, int64(len("temp=21.5\r\nhum=40\r\npartial")), recv)
	s.Close()
}

func TestSession_OverflowFlushDelivered(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)
	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)

	long := make([]byte, framer.DefaultMaxLineLength+1)
	for i := range long {
		long[i] = 'x'
	}
	opener.Last().Inject(long)

	ev := nextEvent(t, s)
	assert.Equal(t, EventDataReceived, ev.Kind)
	assert.Equal(t, framer.FlushPrefix+string(long[:framer.DefaultMaxLineLength]), ev.Message)
	s.Close()
}

func TestSession_BufferDiscardedOnClose(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)
	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)

	opener.Last().Inject([]byte("half a li"))
	require.Eventually(t, func() bool {
		_, recv := s.Stats()
		return recv > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s) // disconnected
	nextEvent(t, s) // connected

	opener.Last().Inject([]byte("ne\n"))
	ev := nextEvent(t, s)
	assert.Equal(t, "ne", ev.Message, "data buffered before the reopen must not leak into the new connection")
	s.Close()
}

func TestSession_NoDataAfterDisconnected(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener, WithEventBuffer(4))
	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)
	dev := opener.Last()

	// Fill the event buffer so the reader blocks while publishing
	for i := 0; i < 8; i++ {
		dev.Inject([]byte("line\n"))
	}
	require.Eventually(t, func() bool { return len(s.Events()) == cap(s.Events()) }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	var kinds []EventKind
	for {
		ev := nextEvent(t, s)
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventDisconnected {
			break
		}
	}
	<-done

	assert.Equal(t, EventDisconnected, kinds[len(kinds)-1])
	assertNoEvent(t, s)
}

func TestSession_ReadErrorReportedOnce(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener)
	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)

	opener.Last().FailRead(errors.New("device unplugged"))

	ev := nextEvent(t, s)
	assert.Equal(t, EventError, ev.Kind)
	assert.Equal(t, "Read failed: device unplugged", ev.Message)
	assert.ErrorIs(t, ev.Err, ErrReadFailed)
	assertNoEvent(t, s)
	assert.True(t, s.IsOpen(), "the caller decides when to close")

	s.Close()
	assert.Equal(t, EventDisconnected, nextEvent(t, s).Kind)
}

func TestSession_WithEncoding(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := New(opener, WithEncoding(charmap.ISO8859_1))
	require.NoError(t, s.Open("A", 9600, "8N1"))
	nextEvent(t, s)
	dev := opener.Last()

	dev.Inject([]byte{'c', 'a', 'f', 0xe9, '\n'})
	assert.Equal(t, "café", nextEvent(t, s).Message)

	require.NoError(t, s.Write("é", serial.EOLNone))
	require.Eventually(t, func() bool {
		return string(dev.Written()) == "\xe9"
	}, time.Second, 5*time.Millisecond)
	s.Close()
}

// backlogged opens a session with a small event buffer and injects lines
// until the reader is held back by the unread events
func backlogged(t *testing.T, opener *serialtest.FakeOpener) *Session {
	t.Helper()
	s := New(opener, WithEventBuffer(4))
	require.NoError(t, s.Open("A", 9600, "8N1"))
	assert.Equal(t, EventConnected, nextEvent(t, s).Kind)

	dev := opener.Last()
	for i := 0; i < 20; i++ {
		dev.Inject([]byte("line\n"))
	}
	require.Eventually(t, func() bool { return s.events.backlog() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, EventDataReceived, nextEvent(t, s).Kind)
	return s
}

func finishWithin(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s blocked while events were pending", what)
	}
}

func TestSession_CloseFromConsumerWithBacklog(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := backlogged(t, opener)

	finishWithin(t, "Close", s.Close)
	assert.False(t, s.IsOpen())
	assert.True(t, opener.Last().IsClosed())

	for {
		ev := nextEvent(t, s)
		if ev.Kind == EventDisconnected {
			break
		}
		require.Equal(t, EventDataReceived, ev.Kind)
		assert.Equal(t, "line", ev.Message)
	}
	assertNoEvent(t, s)
}

func TestSession_ReopenFromConsumerWithBacklog(t *testing.T) {
	opener := &serialtest.FakeOpener{}
	s := backlogged(t, opener)

	finishWithin(t, "Open", func() {
		assert.NoError(t, s.Open("B", 9600, "8N1"))
	})
	assert.True(t, s.IsOpen())
	assert.Equal(t, "B", s.PortName())

	var kinds []EventKind
	for {
		ev := nextEvent(t, s)
		if ev.Kind == EventDataReceived {
			continue
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventConnected {
			break
		}
	}
	assert.Equal(t, []EventKind{EventDisconnected, EventConnected}, kinds)

	opener.Last().Inject([]byte("fresh\n"))
	assert.Equal(t, "fresh", nextEvent(t, s).Message)
	s.Close()
}

func TestEventQueue_Order(t *testing.T) {
	q := newEventQueue(1)
	stop := make(chan struct{})
	close(stop)

	q.push(Event{Message: "a"})
	q.push(Event{Message: "b"})
	q.push(Event{Message: "c"})
	assert.False(t, q.pushWait(Event{Message: "d"}, stop), "a full queue gives up once stopped")

	for _, want := range []string{"a", "b", "c"} {
		select {
		case ev := <-q.out:
			assert.Equal(t, want, ev.Message)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %q", want)
		}
	}
	require.Eventually(t, func() bool { return q.backlog() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, q.pushWait(Event{Message: "e"}, stop))
	assert.Equal(t, "e", (<-q.out).Message)
}
