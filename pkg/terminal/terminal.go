// Package terminal reduces received device output to printable text. Escape
// sequences are consumed and control characters are applied to a single
// line, so a line can be drawn into a cell grid without corrupting it.
package terminal

import "unicode"

// TabWidth is the distance between tab stops
const TabWidth = 8

// ParserState represents the current state of the VT parser
type ParserState int

const (
	StateGround ParserState = iota
	StateEscape
	StateCSI
	StateOSC
	StateString // DCS, SOS, PM and APC bodies
	StateStringEscape
)

// LineParser applies one line of device output to a row of cells. Printing
// overwrites at the cursor, CR returns to column 0, BS steps back and HT
// advances to the next tab stop. Other controls and every escape sequence
// are dropped.
type LineParser struct {
	state  ParserState
	cells  []rune
	cursor int
}

// NewLineParser creates a parser in the ground state
func NewLineParser() *LineParser {
	return &LineParser{cells: make([]rune, 0, 128)}
}

// Reset clears the row and returns to the ground state
func (p *LineParser) Reset() {
	p.state = StateGround
	p.cells = p.cells[:0]
	p.cursor = 0
}

// State returns the parser state
func (p *LineParser) State() ParserState {
	return p.state
}

// Feed processes s
func (p *LineParser) Feed(s string) {
	for _, r := range s {
		p.parseRune(r)
	}
}

// String returns the row
func (p *LineParser) String() string {
	return string(p.cells)
}

func (p *LineParser) parseRune(r rune) {
	switch p.state {
	case StateGround:
		p.handleGround(r)
	case StateEscape:
		p.handleEscape(r)
	case StateCSI:
		p.handleCSI(r)
	case StateOSC:
		p.handleOSC(r)
	case StateString:
		if r == 0x1B {
			p.state = StateStringEscape
		}
	case StateStringEscape:
		// ST is ESC \; anything else keeps the string open
		if r == '\\' {
			p.state = StateGround
		} else if r != 0x1B {
			p.state = StateString
		}
	}
}

func (p *LineParser) handleGround(r rune) {
	switch r {
	case 0x1B: // ESC
		p.state = StateEscape
	case 0x9B: // 8-bit CSI
		p.state = StateCSI
	case 0x9D: // 8-bit OSC
		p.state = StateOSC
	case 0x90, 0x98, 0x9E, 0x9F: // 8-bit DCS, SOS, PM, APC
		p.state = StateString
	case '\b':
		if p.cursor > 0 {
			p.cursor--
		}
	case '\t':
		next := (p.cursor/TabWidth + 1) * TabWidth
		for p.cursor < next {
			p.put(' ')
		}
	case '\r':
		p.cursor = 0
	default:
		if dropped(r) {
			return
		}
		p.put(r)
	}
}

func (p *LineParser) handleEscape(r rune) {
	switch r {
	case '[':
		p.state = StateCSI
	case ']':
		p.state = StateOSC
	case 'P', 'X', '^', '_': // DCS, SOS, PM, APC
		p.state = StateString
	case 0x1B:
		// ESC ESC: the first one is dropped
	default:
		if r >= 0x20 && r <= 0x2F {
			// intermediate byte, e.g. ESC ( B; wait for the final byte
			return
		}
		p.state = StateGround
	}
}

func (p *LineParser) handleCSI(r rune) {
	switch {
	case r >= 0x20 && r <= 0x3F: // parameter and intermediate bytes
	case r >= 0x40 && r <= 0x7E: // final byte
		p.state = StateGround
	case r == 0x1B:
		p.state = StateEscape
	default:
		// invalid sequence
		p.state = StateGround
	}
}

func (p *LineParser) handleOSC(r rune) {
	switch r {
	case 0x07, 0x9C: // BEL or 8-bit ST
		p.state = StateGround
	case 0x1B:
		p.state = StateStringEscape
	}
}

// put writes r at the cursor, overwriting what was there
func (p *LineParser) put(r rune) {
	for len(p.cells) < p.cursor {
		p.cells = append(p.cells, ' ')
	}
	if p.cursor < len(p.cells) {
		p.cells[p.cursor] = r
	} else {
		p.cells = append(p.cells, r)
	}
	p.cursor++
}

// Clean returns the printable text of one received line
func Clean(line string) string {
	if isPlain(line) {
		return line
	}
	p := NewLineParser()
	p.Feed(line)
	return p.String()
}

// dropped reports runes that never reach the row: controls and invisible
// format characters other than the zero width joiner
func dropped(r rune) bool {
	return unicode.IsControl(r) || (unicode.Is(unicode.Cf, r) && r != zeroWidthJoiner)
}

const zeroWidthJoiner = '\u200d'

func isPlain(s string) bool {
	for _, r := range s {
		if dropped(r) {
			return false
		}
	}
	return true
}
