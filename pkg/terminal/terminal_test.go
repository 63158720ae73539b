package terminal

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text unchanged", "OK", "OK"},
		{"unicode unchanged", "温度 23°C ✓", "温度 23°C ✓"},
		{"empty", "", ""},
		{"SGR color", "\x1b[1;32mPASS\x1b[0m", "PASS"},
		{"cursor movement", "a\x1b[2Cb", "ab"},
		{"private mode", "\x1b[?25lhidden cursor\x1b[?25h", "hidden cursor"},
		{"OSC title with BEL", "\x1b]0;title\x07prompt$", "prompt$"},
		{"OSC with ST", "\x1b]8;;http://x\x1b\\link", "link"},
		{"DCS string", "\x1bPq#0;2;0;0;0\x1b\\done", "done"},
		{"charset select", "\x1b(Bascii", "ascii"},
		{"carriage return overwrites", "progress 10%\rprogress 20%", "progress 20%"},
		{"carriage return shorter", "abcdef\rXY", "XYcdef"},
		{"backspace overwrites", "abc\bd", "abd"},
		{"backspace at start", "\bx", "x"},
		{"tab expands", "a\tb", "a       b"},
		{"tab at stop", "12345678\tx", "12345678        x"},
		{"bell dropped", "ding\a", "ding"},
		{"NUL and DEL dropped", "a\x00b\x7fc", "abc"},
		{"BOM dropped", "\ufeffhello", "hello"},
		{"8-bit CSI", "\u009b31mred", "red"},
		{"unterminated CSI", "text\x1b[12", "text"},
		{"invalid CSI byte", "a\x1b[1\x01b", "ab"},
		{"ZWJ kept", "\U0001F469\u200d\U0001F4BB", "\U0001F469\u200d\U0001F4BB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLineParser_StateAcrossFeeds(t *testing.T) {
	p := NewLineParser()

	p.Feed("ab\x1b[")
	if p.State() != StateCSI {
		t.Fatalf("State() = %v, want StateCSI", p.State())
	}
	p.Feed("31mc")
	if p.State() != StateGround {
		t.Errorf("State() = %v, want StateGround", p.State())
	}
	if got := p.String(); got != "abc" {
		t.Errorf("String() = %q, want abc", got)
	}

	p.Reset()
	if p.String() != "" || p.State() != StateGround {
		t.Errorf("Reset() left %q in state %v", p.String(), p.State())
	}
}
