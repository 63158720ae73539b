package serial

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEOL is returned for an unknown end-of-line name
var ErrInvalidEOL = errors.New("invalid end-of-line terminator")

// EOL selects the terminator appended to outbound text
type EOL int

const (
	EOLNone EOL = iota
	EOLLF
	EOLCR
	EOLCRLF
)

// String returns the name of the terminator as accepted by ParseEOL
func (e EOL) String() string {
	switch e {
	case EOLNone:
		return "none"
	case EOLLF:
		return "lf"
	case EOLCR:
		return "cr"
	case EOLCRLF:
		return "crlf"
	default:
		return "unknown"
	}
}

// Sequence returns the literal terminator bytes as a string
func (e EOL) Sequence() string {
	switch e {
	case EOLLF:
		return "\n"
	case EOLCR:
		return "\r"
	case EOLCRLF:
		return "\r\n"
	default:
		return ""
	}
}

// Next cycles none -> lf -> cr -> crlf -> none
func (e EOL) Next() EOL {
	return (e + 1) % (EOLCRLF + 1)
}

// MarshalText implements encoding.TextMarshaler
func (e EOL) MarshalText() ([]byte, error) {
	if e < EOLNone || e > EOLCRLF {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEOL, int(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *EOL) UnmarshalText(text []byte) error {
	v, err := ParseEOL(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ParseEOL accepts none, lf, cr, crlf (any case) and the escaped forms \n, \r, \r\n
func ParseEOL(name string) (EOL, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return EOLNone, nil
	case "lf", `\n`:
		return EOLLF, nil
	case "cr", `\r`:
		return EOLCR, nil
	case "crlf", `\r\n`:
		return EOLCRLF, nil
	default:
		return EOLNone, fmt.Errorf("%w: %q", ErrInvalidEOL, name)
	}
}
