// Package serialtest provides an in-memory serial device for tests
package serialtest

import (
	"bytes"
	"errors"
	"io"
	"sync"

	bugst "go.bug.st/serial"

	"serialmon/pkg/serial"
)

// FakeDevice is an in-memory serial.Device. Inbound data is injected with
// Inject and handed out by Read; written bytes are collected for inspection.
type FakeDevice struct {
	Port string
	Mode bugst.Mode

	mu       sync.Mutex
	inbound  chan []byte
	pending  []byte
	closed   chan struct{}
	once     sync.Once
	written  bytes.Buffer
	writeErr error
	readErr  chan error
}

// NewFakeDevice creates an open fake device
func NewFakeDevice(port string, mode *bugst.Mode) *FakeDevice {
	d := &FakeDevice{
		Port:    port,
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
		readErr: make(chan error, 1),
	}
	if mode != nil {
		d.Mode = *mode
	}
	return d
}

// Inject queues bytes to be returned by Read
func (d *FakeDevice) Inject(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case d.inbound <- buf:
	case <-d.closed:
	}
}

// FailRead makes the next blocked Read return err
func (d *FakeDevice) FailRead(err error) {
	d.readErr <- err
}

// FailWrites makes every subsequent Write return err
func (d *FakeDevice) FailWrites(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = err
}

// Read blocks until data is injected or the device is closed
func (d *FakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	if len(d.pending) > 0 {
		n := copy(p, d.pending)
		d.pending = d.pending[n:]
		d.mu.Unlock()
		return n, nil
	}
	d.mu.Unlock()

	select {
	case data := <-d.inbound:
		n := copy(p, data)
		if n < len(data) {
			d.mu.Lock()
			d.pending = append(d.pending, data[n:]...)
			d.mu.Unlock()
		}
		return n, nil
	case err := <-d.readErr:
		return 0, err
	case <-d.closed:
		return 0, io.EOF
	}
}

// Write records p
func (d *FakeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.IsClosed() {
		return 0, errors.New("port closed")
	}
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	return d.written.Write(p)
}

// Close closes the device; further calls are no-ops
func (d *FakeDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

// IsClosed reports whether Close was called
func (d *FakeDevice) IsClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

// Written returns a copy of everything written so far
func (d *FakeDevice) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return bytes.Clone(d.written.Bytes())
}

// FakeOpener hands out FakeDevices and remembers them
type FakeOpener struct {
	mu      sync.Mutex
	devices []*FakeDevice
	// Err, when set, is returned by Open instead of a device
	Err error
}

// Open implements serial.Opener
func (o *FakeOpener) Open(port string, mode *bugst.Mode) (serial.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.Err != nil {
		return nil, o.Err
	}
	d := NewFakeDevice(port, mode)
	o.devices = append(o.devices, d)
	return d, nil
}

// Devices returns every device opened so far
func (o *FakeOpener) Devices() []*FakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*FakeDevice(nil), o.devices...)
}

// Last returns the most recently opened device or nil
func (o *FakeOpener) Last() *FakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.devices) == 0 {
		return nil
	}
	return o.devices[len(o.devices)-1]
}

// OpenCount returns the number of devices that are not closed
func (o *FakeOpener) OpenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, d := range o.devices {
		if !d.IsClosed() {
			n++
		}
	}
	return n
}
