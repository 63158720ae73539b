// Package serial provides frame format parsing, end-of-line selection and
// access to serial port devices
package serial

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrInvalidBaudRate is returned when the baud rate is not a positive integer
var ErrInvalidBaudRate = errors.New("invalid baud rate")

// SerialConfig defines the connection parameters for a serial port
type SerialConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	Format   string `json:"format"`
	EOL      EOL    `json:"eol"`
	Encoding string `json:"encoding,omitempty"`
}

// Validate checks if the serial configuration is valid
func (c SerialConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}

	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, c.BaudRate)
	}

	if _, err := ParseFormat(c.Format); err != nil {
		return err
	}

	if c.EOL < EOLNone || c.EOL > EOLCRLF {
		return fmt.Errorf("%w: %d", ErrInvalidEOL, int(c.EOL))
	}

	if _, err := LookupEncoding(c.Encoding); err != nil {
		return err
	}

	return nil
}

// Summary renders "port baud format" for status lines
func (c SerialConfig) Summary() string {
	return fmt.Sprintf("%s %d %s", c.Port, c.BaudRate, c.Format)
}

// DefaultConfig returns a default serial configuration
func DefaultConfig() SerialConfig {
	return SerialConfig{
		BaudRate: 115200,
		Format:   "8N1",
		EOL:      EOLLF,
		Encoding: "utf-8",
	}
}

// LookupEncoding resolves a WHATWG encoding name such as "utf-8", "latin1"
// or "windows-1252". An empty name selects UTF-8.
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	return enc, nil
}

// Device is an open serial port as seen by a session
type Device interface {
	io.ReadWriteCloser
}

// Opener opens devices. Implementations configure the port with the given
// mode and without flow control.
type Opener interface {
	Open(port string, mode *serial.Mode) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(port string, mode *serial.Mode) (Device, error)

// Open implements Opener
func (f OpenerFunc) Open(port string, mode *serial.Mode) (Device, error) {
	return f(port, mode)
}

// BugstOpener opens real ports with go.bug.st/serial
type BugstOpener struct{}

// Open implements Opener
func (BugstOpener) Open(port string, mode *serial.Mode) (Device, error) {
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewOpener returns the platform opener
func NewOpener() Opener {
	return BugstOpener{}
}

// PortInfo contains information about a serial port
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	Product      string `json:"product,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// GetDetailedPortsList returns detailed information about available serial ports
func GetDetailedPortsList() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get ports list: %w", err)
	}

	portInfos := make([]PortInfo, 0, len(details))
	for _, d := range details {
		portInfos = append(portInfos, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
		})
	}

	sort.Slice(portInfos, func(i, j int) bool { return portInfos[i].Name < portInfos[j].Name })
	return portInfos, nil
}

// ListPorts returns the names of the serial ports available on the system
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get available ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}

// IsPortAvailable checks if a specific port is available
func IsPortAvailable(portName string) bool {
	ports, err := ListPorts()
	if err != nil {
		return false
	}

	for _, port := range ports {
		if port == portName {
			return true
		}
	}

	return false
}

// OpenError reports a port that could not be opened
type OpenError struct {
	Port  string
	Cause error
}

// Error implements the error interface
func (e *OpenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to open port %s: %v", e.Port, e.Cause)
	}
	return fmt.Sprintf("failed to open port %s", e.Port)
}

// Unwrap returns the underlying cause
func (e *OpenError) Unwrap() error {
	return e.Cause
}

// Hints returns suggestions for the user based on the device error code
func (e *OpenError) Hints() []string {
	var portErr *serial.PortError
	if !errors.As(e.Cause, &portErr) {
		return nil
	}

	switch portErr.Code() {
	case serial.PermissionDenied:
		return []string{
			"Check if you have permission to access the port",
			"On Linux: add your user to the 'dialout' group: sudo usermod -a -G dialout $USER",
		}
	case serial.PortBusy:
		return []string{
			"The port may be in use by another application",
			"Close other terminal programs or serial monitors",
		}
	case serial.PortNotFound:
		return []string{
			"The specified port does not exist",
			"Use 'serialmon list' to see available ports",
		}
	case serial.InvalidSpeed:
		return []string{"The device does not support this baud rate"}
	default:
		return nil
	}
}
