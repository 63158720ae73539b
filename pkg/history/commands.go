package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// CommandHistory is the list of distinct commands the user has sent, with a
// recall cursor for stepping back through them. It is safe for concurrent use.
type CommandHistory struct {
	mu       sync.Mutex
	commands []string
	cursor   int // len(commands) means "not recalling"
}

// NewCommandHistory creates an empty history
func NewCommandHistory() *CommandHistory {
	return &CommandHistory{}
}

// Add appends cmd unless it is empty or already present, and resets the cursor
func (h *CommandHistory) Add(cmd string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	defer h.resetLocked()
	if cmd == "" || slices.Contains(h.commands, cmd) {
		return false
	}
	h.commands = append(h.commands, cmd)
	return true
}

// Remove deletes every occurrence of cmd
func (h *CommandHistory) Remove(cmd string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	before := len(h.commands)
	h.commands = slices.DeleteFunc(h.commands, func(c string) bool { return c == cmd })
	h.resetLocked()
	return len(h.commands) != before
}

// Clear removes all commands
func (h *CommandHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.commands = nil
	h.resetLocked()
}

// SortAZ orders commands alphabetically ignoring case and drops duplicates
func (h *CommandHistory) SortAZ() {
	h.mu.Lock()
	defer h.mu.Unlock()

	slices.SortStableFunc(h.commands, func(a, b string) int {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	h.commands = slices.Compact(h.commands)
	h.resetLocked()
}

// Items returns a copy of the commands
func (h *CommandHistory) Items() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.commands)
}

// Len returns the number of commands
func (h *CommandHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.commands)
}

// Prev moves the cursor one command back and returns it
func (h *CommandHistory) Prev() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor == 0 || len(h.commands) == 0 {
		return "", false
	}
	h.cursor--
	return h.commands[h.cursor], true
}

// Next moves the cursor one command forward. Past the newest command it
// returns "" and false, meaning the input line should be emptied.
func (h *CommandHistory) Next() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor >= len(h.commands)-1 {
		h.cursor = len(h.commands)
		return "", false
	}
	h.cursor++
	return h.commands[h.cursor], true
}

// Recalling reports whether Prev has moved the cursor off the end
func (h *CommandHistory) Recalling() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.commands)
}

// ResetCursor ends recall
func (h *CommandHistory) ResetCursor() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resetLocked()
}

func (h *CommandHistory) resetLocked() {
	h.cursor = len(h.commands)
}

type commandFile struct {
	Version  string   `json:"version"`
	Commands []string `json:"commands"`
}

// Load replaces the history with the commands stored at path. A missing
// file leaves the history empty.
func (h *CommandHistory) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.Clear()
			return nil
		}
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var stored commandFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse history file: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.commands = h.commands[:0]
	for _, cmd := range stored.Commands {
		if cmd != "" && !slices.Contains(h.commands, cmd) {
			h.commands = append(h.commands, cmd)
		}
	}
	h.resetLocked()
	return nil
}

// Save writes the history to path, replacing the file atomically
func (h *CommandHistory) Save(path string) error {
	stored := commandFile{Version: "1.0", Commands: h.Items()}
	if stored.Commands == nil {
		stored.Commands = []string{}
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic operation
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary history file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary history file: %w", err)
	}

	return nil
}
