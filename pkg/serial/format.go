package serial

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

// ErrInvalidFormat is returned when a frame format specifier cannot be parsed
var ErrInvalidFormat = errors.New("invalid frame format")

// Parity represents the parity mode of a frame
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
	ParityMark
	ParitySpace
)

// String returns the string representation of Parity
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	case ParityMark:
		return "mark"
	case ParitySpace:
		return "space"
	default:
		return "unknown"
	}
}

// Letter returns the single-letter form used in format specifiers
func (p Parity) Letter() byte {
	switch p {
	case ParityEven:
		return 'E'
	case ParityOdd:
		return 'O'
	case ParityMark:
		return 'M'
	case ParitySpace:
		return 'S'
	default:
		return 'N'
	}
}

// StopBits represents the number of stop bits of a frame
type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

// String returns the specifier suffix for StopBits
func (s StopBits) String() string {
	switch s {
	case StopBitsOne:
		return "1"
	case StopBitsOnePointFive:
		return "1.5"
	case StopBitsTwo:
		return "2"
	default:
		return "unknown"
	}
}

// FrameFormat is the data-bits/parity/stop-bits triple of a serial link.
// Values are only produced by ParseFormat and are never modified afterwards.
type FrameFormat struct {
	dataBits int
	parity   Parity
	stopBits StopBits
}

// DataBits returns the number of data bits (5 to 8)
func (f FrameFormat) DataBits() int {
	return f.dataBits
}

// Parity returns the parity mode
func (f FrameFormat) Parity() Parity {
	return f.parity
}

// StopBits returns the stop bits setting
func (f FrameFormat) StopBits() StopBits {
	return f.stopBits
}

// IsZero reports whether f was not produced by ParseFormat
func (f FrameFormat) IsZero() bool {
	return f.dataBits == 0
}

// String renders the canonical specifier, e.g. "8N1" or "5N1.5"
func (f FrameFormat) String() string {
	if f.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d%c%s", f.dataBits, f.parity.Letter(), f.stopBits)
}

// ParseFormat parses a specifier of the form <dataBits><parity><stopBits>,
// for example "8N1", "7e2" or "5N1.5".
func ParseFormat(spec string) (FrameFormat, error) {
	if len(spec) < 3 {
		return FrameFormat{}, fmt.Errorf("%w: %q is shorter than 3 characters", ErrInvalidFormat, spec)
	}

	var f FrameFormat

	switch spec[0] {
	case '5', '6', '7', '8':
		f.dataBits = int(spec[0] - '0')
	default:
		return FrameFormat{}, fmt.Errorf("%w: unsupported data bits %q", ErrInvalidFormat, spec[0])
	}

	switch spec[1] {
	case 'N', 'n':
		f.parity = ParityNone
	case 'E', 'e':
		f.parity = ParityEven
	case 'O', 'o':
		f.parity = ParityOdd
	case 'M', 'm':
		f.parity = ParityMark
	case 'S', 's':
		f.parity = ParitySpace
	default:
		return FrameFormat{}, fmt.Errorf("%w: unsupported parity %q", ErrInvalidFormat, spec[1])
	}

	switch stop := spec[2:]; stop {
	case "1":
		f.stopBits = StopBitsOne
	case "2":
		f.stopBits = StopBitsTwo
	case "1.5":
		// 1.5 stop bits only exist electrically with 5-bit frames
		if f.dataBits != 5 {
			return FrameFormat{}, fmt.Errorf("%w: 1.5 stop bits require 5 data bits, got %d", ErrInvalidFormat, f.dataBits)
		}
		f.stopBits = StopBitsOnePointFive
	default:
		return FrameFormat{}, fmt.Errorf("%w: unsupported stop bits %q", ErrInvalidFormat, stop)
	}

	return f, nil
}

// MustParseFormat is like ParseFormat but panics on error
func MustParseFormat(spec string) FrameFormat {
	f, err := ParseFormat(spec)
	if err != nil {
		panic(err)
	}
	return f
}

// Mode converts the frame format and baud rate to a go.bug.st/serial mode.
// Flow control is not part of serial.Mode; the library opens ports without it.
func (f FrameFormat) Mode(baudRate int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: f.dataBits,
		Parity:   convertParity(f.parity),
		StopBits: convertStopBits(f.stopBits),
	}
}

// convertStopBits converts our stop bits to go.bug.st/serial format
func convertStopBits(stopBits StopBits) serial.StopBits {
	switch stopBits {
	case StopBitsOnePointFive:
		return serial.OnePointFiveStopBits
	case StopBitsTwo:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

// convertParity converts our parity to go.bug.st/serial format
func convertParity(parity Parity) serial.Parity {
	switch parity {
	case ParityOdd:
		return serial.OddParity
	case ParityEven:
		return serial.EvenParity
	case ParityMark:
		return serial.MarkParity
	case ParitySpace:
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}
