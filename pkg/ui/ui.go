// Package ui provides the line-oriented console shown by the interactive monitor
package ui

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"serialmon/pkg/history"
	"serialmon/pkg/serial"
	"serialmon/pkg/terminal"
)

// Prompt is drawn in front of the input line
const Prompt = "> "

// Status is the connection summary shown in the status bar
type Status struct {
	Connected bool
	Port      string
	BaudRate  int
	Format    string
	EOL       serial.EOL
	BytesSent int64
	BytesRecv int64
}

// Console holds everything the interactive screen shows: the transcript,
// the input line and the view flags. It is safe for concurrent use.
type Console struct {
	mu         sync.Mutex
	transcript *history.Transcript
	commands   *history.CommandHistory

	timestamps bool
	paused     bool
	autoscroll bool
	scroll     int // rows scrolled back from the newest line

	input  []rune
	cursor int

	status  Status
	message string

	dirty atomic.Bool
}

// NewConsole creates a console over transcript, recalling input from commands
func NewConsole(transcript *history.Transcript, commands *history.CommandHistory) *Console {
	if transcript == nil {
		transcript = history.NewTranscript(0)
	}
	if commands == nil {
		commands = history.NewCommandHistory()
	}

	c := &Console{
		transcript: transcript,
		commands:   commands,
		autoscroll: true,
	}
	c.dirty.Store(true)
	return c
}

// Transcript returns the underlying transcript
func (c *Console) Transcript() *history.Transcript {
	return c.transcript
}

// Commands returns the command history used for recall
func (c *Console) Commands() *history.CommandHistory {
	return c.commands
}

// Print adds a line unless output is paused. It reports whether the line
// was kept.
func (c *Console) Print(kind history.Kind, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return false
	}
	c.appendLocked(kind, text)
	return true
}

// Append adds a line regardless of pause; used for local messages
func (c *Console) Append(kind history.Kind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(kind, text)
}

func (c *Console) appendLocked(kind history.Kind, text string) {
	c.transcript.Append(kind, text)
	if !c.autoscroll {
		// Keep the visible rows where they are
		c.scroll++
	}
	c.markDirty()
}

// Clear empties the transcript and returns to the newest line
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transcript.Clear()
	c.scroll = 0
	c.markDirty()
}

// ToggleTimestamps flips the [HH:MM:SS] prefix and returns the new state
func (c *Console) ToggleTimestamps() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timestamps = !c.timestamps
	c.markDirty()
	return c.timestamps
}

// SetTimestamps sets the timestamp flag
func (c *Console) SetTimestamps(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timestamps = on
	c.markDirty()
}

// Timestamps reports whether lines are shown with a clock prefix
func (c *Console) Timestamps() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timestamps
}

// TogglePause flips pause and returns the new state. Lines printed while
// paused are dropped.
func (c *Console) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = !c.paused
	c.markDirty()
	return c.paused
}

// Paused reports whether output is paused
func (c *Console) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// ToggleAutoscroll flips autoscroll and returns the new state. Turning it
// on jumps to the newest line.
func (c *Console) ToggleAutoscroll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autoscroll = !c.autoscroll
	if c.autoscroll {
		c.scroll = 0
	}
	c.markDirty()
	return c.autoscroll
}

// Autoscroll reports whether the view follows new lines
func (c *Console) Autoscroll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoscroll
}

// ScrollUp moves the view n rows towards older lines
func (c *Console) ScrollUp(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scroll += n
	c.markDirty()
}

// ScrollDown moves the view n rows towards newer lines
func (c *Console) ScrollDown(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scroll = max(c.scroll-n, 0)
	c.markDirty()
}

// ScrollOffset returns how many rows the view is scrolled back
func (c *Console) ScrollOffset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scroll
}

// SetStatus replaces the status bar contents
func (c *Console) SetStatus(st Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != st {
		c.status = st
		c.markDirty()
	}
}

// Status returns the status bar contents
func (c *Console) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetMessage shows a transient note at the right of the status bar
func (c *Console) SetMessage(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.message = msg
	c.markDirty()
}

// Message returns the status bar note
func (c *Console) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

// Input editing

// Input returns the input line
func (c *Console) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.input)
}

// Cursor returns the cursor position in runes
func (c *Console) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// SetInput replaces the input line and moves the cursor to its end
func (c *Console) SetInput(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setInputLocked(s)
}

func (c *Console) setInputLocked(s string) {
	c.input = []rune(s)
	c.cursor = len(c.input)
	c.markDirty()
}

// TakeInput returns the input line, clears it and ends history recall
func (c *Console) TakeInput() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := string(c.input)
	c.input = c.input[:0]
	c.cursor = 0
	c.commands.ResetCursor()
	c.markDirty()
	return s
}

// InsertRune inserts r at the cursor
func (c *Console) InsertRune(r rune) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.input = append(c.input, 0)
	copy(c.input[c.cursor+1:], c.input[c.cursor:])
	c.input[c.cursor] = r
	c.cursor++
	c.markDirty()
}

// Backspace deletes the rune before the cursor
func (c *Console) Backspace() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor == 0 {
		return
	}
	c.input = append(c.input[:c.cursor-1], c.input[c.cursor:]...)
	c.cursor--
	c.markDirty()
}

// Delete deletes the rune under the cursor
func (c *Console) Delete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor >= len(c.input) {
		return
	}
	c.input = append(c.input[:c.cursor], c.input[c.cursor+1:]...)
	c.markDirty()
}

// CursorLeft moves the cursor one rune left
func (c *Console) CursorLeft() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor > 0 {
		c.cursor--
		c.markDirty()
	}
}

// CursorRight moves the cursor one rune right
func (c *Console) CursorRight() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor < len(c.input) {
		c.cursor++
		c.markDirty()
	}
}

// CursorHome moves the cursor to the start of the input
func (c *Console) CursorHome() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cursor = 0
	c.markDirty()
}

// CursorEnd moves the cursor to the end of the input
func (c *Console) CursorEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cursor = len(c.input)
	c.markDirty()
}

// RecallPrev replaces the input with the previous history command
func (c *Console) RecallPrev() {
	if cmd, ok := c.commands.Prev(); ok {
		c.SetInput(cmd)
	}
}

// RecallNext replaces the input with the next history command, or empties
// it after the newest one
func (c *Console) RecallNext() {
	recalling := c.commands.Recalling()
	if cmd, ok := c.commands.Next(); ok || recalling {
		c.SetInput(cmd)
	}
}

// Dirty reports whether anything changed since the last Draw
func (c *Console) Dirty() bool {
	return c.dirty.Load()
}

func (c *Console) markDirty() {
	c.dirty.Store(true)
}

// Rendering

// Style returns the style lines of kind are drawn with
func Style(kind history.Kind) tcell.Style {
	switch kind {
	case history.KindTX:
		return tcell.StyleDefault.Foreground(tcell.ColorLightBlue)
	case history.KindInfo:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	case history.KindWarn:
		return tcell.StyleDefault.Foreground(tcell.ColorOrange)
	default:
		return tcell.StyleDefault
	}
}

var statusStyle = tcell.StyleDefault.Reverse(true)

type row struct {
	text  string
	style tcell.Style
}

// displayText is the visible form of an entry: the text, optionally behind
// a clock prefix. Kinds are told apart by colour.
// displayText renders an entry for the screen. The transcript keeps the raw
// text; escape sequences and control characters are resolved here.
func displayText(e history.Entry, timestamps bool) string {
	text := terminal.Clean(e.Text)
	if timestamps {
		return "[" + e.Timestamp.Format(history.TimeLayout) + "] " + text
	}
	return text
}

// wrap splits s into pieces no wider than width cells
func wrap(s string, width int) []string {
	if width <= 0 {
		return nil
	}
	if s == "" {
		return []string{""}
	}

	var rows []string
	var b strings.Builder
	w := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > width && w > 0 {
			rows = append(rows, b.String())
			b.Reset()
			w = 0
		}
		b.WriteRune(r)
		w += rw
	}
	return append(rows, b.String())
}

// visibleRows returns the rows of the output pane, oldest first, and clamps
// the scroll offset to the available history. Called with c.mu held.
func (c *Console) visibleRows(width, height int) []row {
	if height <= 0 || width <= 0 {
		return nil
	}

	need := c.scroll + height
	entries := c.transcript.All()

	var rows []row
	for i := len(entries) - 1; i >= 0 && len(rows) < need; i-- {
		e := entries[i]
		style := Style(e.Kind)
		pieces := wrap(displayText(e, c.timestamps), width)
		for j := len(pieces) - 1; j >= 0; j-- {
			rows = append(rows, row{text: pieces[j], style: style})
		}
	}
	// rows is newest first

	if maxScroll := max(len(rows)-height, 0); c.scroll > maxScroll {
		c.scroll = maxScroll
	}

	end := min(c.scroll+height, len(rows))
	visible := rows[c.scroll:end]
	out := make([]row, len(visible))
	for i, r := range visible {
		out[len(visible)-1-i] = r
	}
	return out
}

// Draw renders the output pane, status bar and input line onto screen. It
// does not call Show.
func (c *Console) Draw(screen tcell.Screen) {
	c.mu.Lock()
	defer c.mu.Unlock()

	width, height := screen.Size()
	screen.Clear()
	if width <= 0 || height <= 0 {
		return
	}

	paneHeight := max(height-2, 0)
	rows := c.visibleRows(width, paneHeight)
	top := paneHeight - len(rows)
	for i, r := range rows {
		drawText(screen, 0, top+i, width, r.text, r.style)
	}

	if height >= 2 {
		statusY := height - 2
		for x := 0; x < width; x++ {
			screen.SetContent(x, statusY, ' ', nil, statusStyle)
		}
		left := c.statusLine()
		drawText(screen, 0, statusY, width, left, statusStyle)
		if c.message != "" {
			msgWidth := runewidth.StringWidth(c.message)
			if x := width - msgWidth - 1; x > runewidth.StringWidth(left) {
				drawText(screen, x, statusY, width, c.message, statusStyle)
			}
		}
	}

	c.drawInput(screen, width, height-1)
	c.dirty.Store(false)
}

func (c *Console) statusLine() string {
	st := c.status

	var b strings.Builder
	if st.Connected {
		fmt.Fprintf(&b, " CONNECTED %s %d %s", st.Port, st.BaudRate, st.Format)
	} else {
		b.WriteString(" DISCONNECTED")
	}
	fmt.Fprintf(&b, " | EOL %s | TX %d RX %d", st.EOL, st.BytesSent, st.BytesRecv)

	var flags []string
	if c.timestamps {
		flags = append(flags, "TIME")
	}
	if c.paused {
		flags = append(flags, "PAUSED")
	}
	if !c.autoscroll {
		flags = append(flags, "HOLD")
	}
	if len(flags) > 0 {
		b.WriteString(" | " + strings.Join(flags, " "))
	}
	return b.String()
}

func (c *Console) drawInput(screen tcell.Screen, width, y int) {
	promptWidth := runewidth.StringWidth(Prompt)
	avail := width - promptWidth - 1
	if avail <= 0 {
		return
	}

	// Scroll the input horizontally so the cursor stays visible
	start := 0
	for runewidth.StringWidth(string(c.input[start:c.cursor])) > avail {
		start++
	}

	x := drawText(screen, 0, y, width, Prompt, tcell.StyleDefault.Bold(true))
	drawText(screen, x, y, width, string(c.input[start:]), tcell.StyleDefault)
	screen.ShowCursor(x+runewidth.StringWidth(string(c.input[start:c.cursor])), y)
}

// drawText puts s at (x, y) clipped to maxX and returns the column after it
func drawText(screen tcell.Screen, x, y, maxX int, s string, style tcell.Style) int {
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > maxX {
			break
		}
		screen.SetContent(x, y, r, nil, style)
		x += w
	}
	return x
}
