// Package app provides the interactive monitor and the headless runner
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"serialmon/pkg/history"
	"serialmon/pkg/menu"
	"serialmon/pkg/serial"
	"serialmon/pkg/session"
	"serialmon/pkg/ui"
)

const refreshInterval = 50 * time.Millisecond // 20 FPS

// Config contains application configuration
type Config struct {
	Serial         serial.SerialConfig
	Timestamps     bool
	HistoryFile    string // command history, JSON; empty disables persistence
	TranscriptSize int
	SaveFormat     history.FileFormat
	SaveDir        string
}

// DefaultConfig returns default application configuration
func DefaultConfig() Config {
	return Config{
		Serial:         serial.DefaultConfig(),
		TranscriptSize: history.DefaultMaxEntries,
		SaveFormat:     history.FormatPlainText,
		SaveDir:        ".",
	}
}

// Option configures an Application or a Monitor
type Option func(*options)

type options struct {
	logger    *zap.SugaredLogger
	listPorts func() ([]serial.PortInfo, error)
	now       func() time.Time
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    zap.NewNop().Sugar(),
		listPorts: serial.GetDetailedPortsList,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the diagnostics logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPortLister replaces port enumeration for /ports
func WithPortLister(fn func() ([]serial.PortInfo, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.listPorts = fn
		}
	}
}

// Application is the interactive full-screen monitor
type Application struct {
	options

	cfg      Config
	screen   tcell.Screen
	session  *session.Session
	console  *ui.Console
	commands *history.CommandHistory
	picker   *menu.Menu

	mu     sync.Mutex
	eol    serial.EOL
	target serial.SerialConfig // parameters used by /connect and F5

	quit     chan struct{}
	quitOnce sync.Once
}

// NewApplication creates an application drawing on screen and opening
// ports through opener. The screen is initialised by Run.
func NewApplication(cfg Config, screen tcell.Screen, opener serial.Opener, opts ...Option) (*Application, error) {
	if _, err := serial.ParseFormat(cfg.Serial.Format); err != nil {
		return nil, fmt.Errorf("invalid serial config: %w", err)
	}

	enc, err := serial.LookupEncoding(cfg.Serial.Encoding)
	if err != nil {
		return nil, fmt.Errorf("invalid serial config: %w", err)
	}

	o := buildOptions(opts)
	commands := history.NewCommandHistory()
	console := ui.NewConsole(history.NewTranscript(cfg.TranscriptSize), commands)
	console.SetTimestamps(cfg.Timestamps)

	app := &Application{
		options:  o,
		cfg:      cfg,
		screen:   screen,
		session:  session.New(opener, session.WithLogger(o.logger), session.WithEncoding(enc)),
		console:  console,
		commands: commands,
		picker:   menu.NewMenu("Command history", screen),
		eol:      cfg.Serial.EOL,
		target:   cfg.Serial,
		quit:     make(chan struct{}),
	}
	app.setupPicker()

	return app, nil
}

// Console returns the console model
func (app *Application) Console() *ui.Console {
	return app.console
}

// Session returns the port session
func (app *Application) Session() *session.Session {
	return app.session
}

// EOL returns the terminator appended to sent commands
func (app *Application) EOL() serial.EOL {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.eol
}

// SetEOL changes the terminator appended to sent commands
func (app *Application) SetEOL(eol serial.EOL) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.eol = eol
}

// Quit asks Run to return
func (app *Application) Quit() {
	app.quitOnce.Do(func() { close(app.quit) })
}

// Run shows the monitor and blocks until Quit is called or ctx is done
func (app *Application) Run(ctx context.Context) error {
	if err := app.screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize screen: %w", err)
	}
	defer app.screen.Fini()

	app.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorReset).Foreground(tcell.ColorReset))
	app.screen.Clear()

	app.loadCommandHistory()

	pumpCtx, stopPump := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.pumpSessionEvents(pumpCtx)
	}()

	events := make(chan tcell.Event, 16)
	stopEvents := make(chan struct{})
	go app.screen.ChannelEvents(events, stopEvents)

	defer func() {
		close(stopEvents)
		app.session.Close()
		stopPump()
		wg.Wait()
		app.saveCommandHistory()
	}()

	app.console.Append(history.KindInfo, "serialmon: F1 help, Ctrl+Q quit")
	if app.cfg.Serial.Port != "" {
		app.connect(app.cfg.Serial)
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	app.render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-app.quit:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			app.handleEvent(ev)
		case <-ticker.C:
			app.refreshStatus()
			if app.console.Dirty() {
				app.render()
			}
		}
	}
}

func (app *Application) render() {
	app.console.Draw(app.screen)
	app.picker.Draw()
	app.screen.Show()
}

func (app *Application) refreshStatus() {
	sent, recv := app.session.Stats()
	st := ui.Status{
		Connected: app.session.IsOpen(),
		EOL:       app.EOL(),
		BytesSent: sent,
		BytesRecv: recv,
	}
	if st.Connected {
		st.Port = app.session.PortName()
		st.BaudRate = app.session.BaudRate()
		st.Format = app.session.Format().String()
	}
	app.console.SetStatus(st)
}

func (app *Application) pumpSessionEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-app.session.Events():
			app.handleSessionEvent(ev)
		}
	}
}

func (app *Application) handleSessionEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventConnected:
		app.console.Print(history.KindInfo, ev.Message)
		app.console.SetMessage(ev.Message)
	case session.EventDisconnected:
		app.console.Print(history.KindWarn, "Disconnected")
		app.console.SetMessage("Disconnected")
	case session.EventError:
		app.logger.Warnw("session error", "error", ev.Err)
		app.console.Print(history.KindWarn, ev.Message)
		// Errors stay visible even while output is paused
		app.console.SetMessage(ev.Message)
	case session.EventDataReceived:
		app.console.Print(history.KindRX, ev.Message)
	}
}

func (app *Application) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		app.screen.Sync()
	case *tcell.EventKey:
		if app.picker.IsVisible() {
			app.picker.HandleKey(ev)
		} else {
			app.handleKey(ev)
		}
	default:
		return
	}
	app.refreshStatus()
	app.render()
}

// handleKey handles keyboard events outside the history picker
func (app *Application) handleKey(ev *tcell.EventKey) {
	c := app.console

	switch ev.Key() {
	case tcell.KeyCtrlQ:
		app.Quit()
	case tcell.KeyEnter:
		app.submit()
	case tcell.KeyUp:
		c.RecallPrev()
	case tcell.KeyDown:
		c.RecallNext()
	case tcell.KeyPgUp:
		c.ScrollUp(app.pageSize())
	case tcell.KeyPgDn:
		c.ScrollDown(app.pageSize())
	case tcell.KeyF1:
		app.showHelp()
	case tcell.KeyF2:
		app.toggleNote("Timestamps", c.ToggleTimestamps())
	case tcell.KeyF3:
		app.openHistoryPicker()
	case tcell.KeyF4:
		app.toggleNote("Autoscroll", c.ToggleAutoscroll())
	case tcell.KeyF5:
		app.reconnect()
	case tcell.KeyF8:
		app.toggleNote("Pause", c.TogglePause())
	case tcell.KeyCtrlL:
		c.Clear()
	case tcell.KeyCtrlS:
		app.saveTranscript("")
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		c.Backspace()
	case tcell.KeyDelete:
		c.Delete()
	case tcell.KeyLeft:
		c.CursorLeft()
	case tcell.KeyRight:
		c.CursorRight()
	case tcell.KeyHome, tcell.KeyCtrlA:
		c.CursorHome()
	case tcell.KeyEnd, tcell.KeyCtrlE:
		c.CursorEnd()
	case tcell.KeyRune:
		c.InsertRune(ev.Rune())
	}
}

func (app *Application) toggleNote(name string, on bool) {
	state := "off"
	if on {
		state = "on"
	}
	app.console.SetMessage(name + " " + state)
}

func (app *Application) pageSize() int {
	_, height := app.screen.Size()
	return max(height-3, 1)
}

// submit handles Enter: slash commands run locally, anything else is sent
func (app *Application) submit() {
	raw := app.console.TakeInput()
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "/") {
		app.runCommand(text)
		return
	}

	if !app.send(text) {
		// Nothing was sent, keep what the user typed
		app.console.SetInput(raw)
	}
}

// send writes text with the current EOL. Empty text or a closed session
// sends nothing.
func (app *Application) send(text string) bool {
	if text == "" {
		return false
	}
	if !app.session.IsOpen() {
		app.console.SetMessage("Not connected")
		return false
	}

	if err := app.session.Write(text, app.EOL()); err != nil {
		app.console.Append(history.KindWarn, "Write failed: "+err.Error())
		return false
	}

	app.console.Print(history.KindTX, text)
	app.commands.Add(text)
	return true
}

func (app *Application) connect(cfg serial.SerialConfig) {
	app.mu.Lock()
	app.target = cfg
	app.mu.Unlock()

	// Failures arrive as session events
	if err := app.session.Open(cfg.Port, cfg.BaudRate, cfg.Format); err != nil {
		app.logger.Debugw("connect failed", "port", cfg.Port, "error", err)
	}
}

func (app *Application) reconnect() {
	app.mu.Lock()
	target := app.target
	app.mu.Unlock()

	if target.Port == "" {
		app.console.Append(history.KindWarn, "No port selected, use /connect <port> [baud] [format]")
		return
	}
	app.connect(target)
}

func (app *Application) showHelp() {
	for _, line := range helpLines() {
		app.console.Append(history.KindInfo, line)
	}
}

// saveTranscript writes the transcript to name, or to a timestamped file in
// the save directory when name is empty
func (app *Application) saveTranscript(name string) {
	if name == "" {
		name = filepath.Join(app.cfg.SaveDir, "serial_log_"+app.now().Format("20060102_150405")+".txt")
	}

	format := app.cfg.SaveFormat
	if strings.EqualFold(filepath.Ext(name), ".json") {
		format = history.FormatJSON
	}

	tr := app.console.Transcript()
	if err := tr.SaveToFile(name, format); err != nil {
		app.logger.Warnw("save failed", "file", name, "error", err)
		app.console.Append(history.KindWarn, "Failed to save file: "+err.Error())
		return
	}
	app.console.Append(history.KindInfo, fmt.Sprintf("Saved %d lines to %s", tr.Len(), name))
}

func (app *Application) setupPicker() {
	app.picker.SetFooter("Enter recall  Del remove  s sort  Esc close")
	app.picker.SetOnDelete(func(_ int, item menu.MenuItem) {
		app.commands.Remove(item.Label)
	})
	app.picker.BindRune('s', func() {
		app.commands.SortAZ()
		app.picker.SetItems(app.historyItems())
	})
}

func (app *Application) historyItems() []menu.MenuItem {
	cmds := app.commands.Items()
	items := make([]menu.MenuItem, 0, len(cmds))
	for _, cmd := range cmds {
		items = append(items, menu.MenuItem{
			Label:   cmd,
			Enabled: true,
			Action: func() error {
				app.console.SetInput(cmd)
				return nil
			},
		})
	}
	return items
}

func (app *Application) openHistoryPicker() {
	app.picker.SetItems(app.historyItems())
	app.picker.Show()
}

func (app *Application) loadCommandHistory() {
	if app.cfg.HistoryFile == "" {
		return
	}
	if err := app.commands.Load(app.cfg.HistoryFile); err != nil {
		app.logger.Warnw("failed to load command history", "file", app.cfg.HistoryFile, "error", err)
		app.console.Append(history.KindWarn, "Command history not loaded: "+err.Error())
		return
	}
	app.commands.SortAZ()
}

func (app *Application) saveCommandHistory() {
	if app.cfg.HistoryFile == "" {
		return
	}
	if err := app.commands.Save(app.cfg.HistoryFile); err != nil {
		app.logger.Warnw("failed to save command history", "file", app.cfg.HistoryFile, "error", err)
	}
}
