// Package history keeps the transcript of displayed lines and the list of sent commands
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Kind classifies a transcript line
type Kind int

const (
	KindRX Kind = iota
	KindTX
	KindInfo
	KindWarn
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindRX:
		return "rx"
	case KindTX:
		return "tx"
	case KindInfo:
		return "info"
	case KindWarn:
		return "warn"
	default:
		return "unknown"
	}
}

// Prefix returns the marker written in front of non-received lines
func (k Kind) Prefix() string {
	switch k {
	case KindTX:
		return "[TX] "
	case KindInfo:
		return "[INFO] "
	case KindWarn:
		return "[WARN] "
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "rx":
		*k = KindRX
	case "tx":
		*k = KindTX
	case "info":
		*k = KindInfo
	case "warn":
		*k = KindWarn
	default:
		return fmt.Errorf("invalid kind: %q", text)
	}
	return nil
}

// FileFormat represents different file export formats
type FileFormat int

const (
	FormatPlainText FileFormat = iota
	FormatTimestamped
	FormatJSON
)

// String returns the string representation of FileFormat
func (f FileFormat) String() string {
	switch f {
	case FormatPlainText:
		return "plain_text"
	case FormatTimestamped:
		return "timestamped"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFileFormat accepts plain, timestamped or json
func ParseFileFormat(name string) (FileFormat, error) {
	switch name {
	case "plain", "plain_text", "text", "txt":
		return FormatPlainText, nil
	case "timestamped", "ts":
		return FormatTimestamped, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatPlainText, fmt.Errorf("unsupported format: %s", name)
	}
}

// TimeLayout is the clock format shown in front of lines
const TimeLayout = "15:04:05"

// Entry is one line of the transcript
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
}

// Validate checks if the entry is valid
func (e Entry) Validate() error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}

	if e.Kind < KindRX || e.Kind > KindWarn {
		return fmt.Errorf("invalid kind: %d", e.Kind)
	}

	return nil
}

// Format renders the entry as displayed, optionally with a clock prefix
func (e Entry) Format(timestamps bool) string {
	if timestamps {
		return "[" + e.Timestamp.Format(TimeLayout) + "] " + e.Kind.Prefix() + e.Text
	}
	return e.Kind.Prefix() + e.Text
}

// NewEntry creates a new entry with the current time
func NewEntry(kind Kind, text string) Entry {
	return Entry{
		Timestamp: time.Now(),
		Kind:      kind,
		Text:      text,
	}
}

// DefaultMaxEntries bounds a transcript created with a non-positive limit
const DefaultMaxEntries = 10000

// Transcript is a bounded in-memory list of entries; the oldest entries are
// dropped first. It is safe for concurrent use.
type Transcript struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewTranscript creates a transcript that keeps at most maxEntries lines
func NewTranscript(maxEntries int) *Transcript {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Transcript{
		entries:    make([]Entry, 0),
		maxEntries: maxEntries,
	}
}

// Append adds a line and returns the stored entry
func (t *Transcript) Append(kind Kind, text string) Entry {
	entry := NewEntry(kind, text)
	t.Add(entry)
	return entry
}

// Add stores entry, evicting the oldest lines when full
func (t *Transcript) Add(entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.maxEntries {
		removeCount := len(t.entries) - t.maxEntries + 1
		t.entries = append(t.entries[:0], t.entries[removeCount:]...)
	}
	t.entries = append(t.entries, entry)
}

// Len returns the number of entries
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear removes all entries
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = t.entries[:0]
}

// MaxEntries returns the capacity
func (t *Transcript) MaxEntries() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxEntries
}

// SetMaxEntries changes the capacity, dropping the oldest entries if needed
func (t *Transcript) SetMaxEntries(n int) error {
	if n <= 0 {
		return fmt.Errorf("max entries must be positive")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.maxEntries = n
	if len(t.entries) > n {
		t.entries = append(t.entries[:0], t.entries[len(t.entries)-n:]...)
	}
	return nil
}

// Entries returns a copy of count entries starting at start
func (t *Transcript) Entries(start, count int) ([]Entry, error) {
	if start < 0 {
		return nil, fmt.Errorf("start cannot be negative")
	}

	if count < 0 {
		return nil, fmt.Errorf("count cannot be negative")
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if start >= len(t.entries) {
		return []Entry{}, nil
	}

	end := min(start+count, len(t.entries))
	result := make([]Entry, end-start)
	copy(result, t.entries[start:end])
	return result, nil
}

// All returns a copy of every entry
func (t *Transcript) All() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// SaveToFile writes the transcript to filename in the given format
func (t *Transcript) SaveToFile(filename string, format FileFormat) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := WriteEntries(file, t.All(), format); err != nil {
		return err
	}

	return file.Close()
}

// WriteEntries writes entries to w in the given format
func WriteEntries(w io.Writer, entries []Entry, format FileFormat) error {
	switch format {
	case FormatPlainText:
		return writePlainText(w, entries)
	case FormatTimestamped:
		return writeTimestamped(w, entries)
	case FormatJSON:
		return writeJSON(w, entries)
	default:
		return fmt.Errorf("unsupported format: %v", format)
	}
}

func writePlainText(w io.Writer, entries []Entry) error {
	for _, entry := range entries {
		if _, err := fmt.Fprintln(w, entry.Format(false)); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
	}
	return nil
}

func writeTimestamped(w io.Writer, entries []Entry) error {
	for _, entry := range entries {
		line := fmt.Sprintf("[%s] %-4s %s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05.000"),
			entry.Kind,
			entry.Text)

		if _, err := io.WriteString(w, line); err != nil {
			return fmt.Errorf("failed to write timestamped data: %w", err)
		}
	}
	return nil
}

func writeJSON(w io.Writer, entries []Entry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	data := struct {
		Entries []Entry `json:"entries"`
		Count   int     `json:"count"`
	}{
		Entries: entries,
		Count:   len(entries),
	}

	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
