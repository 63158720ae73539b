package app

import (
	"fmt"
	"strconv"
	"strings"

	"serialmon/pkg/history"
	"serialmon/pkg/serial"
)

// command is a slash command typed into the input line
type command struct {
	name  string
	usage string
	help  string
	run   func(app *Application, args []string) error
}

var slashCommands []command

func init() {
	slashCommands = []command{
		{"connect", "/connect [port] [baud] [format]", "open a port, defaults to the last one", (*Application).cmdConnect},
		{"disconnect", "/disconnect", "close the port", (*Application).cmdDisconnect},
		{"eol", "/eol [none|lf|cr|crlf]", "show or set the line terminator", (*Application).cmdEOL},
		{"ports", "/ports", "list serial ports", (*Application).cmdPorts},
		{"save", "/save [file]", "save the transcript (.json for JSON)", (*Application).cmdSave},
		{"clear", "/clear", "clear the output", (*Application).cmdClear},
		{"history", "/history [sort|clear]", "pick, sort or clear sent commands", (*Application).cmdHistory},
		{"help", "/help", "show this help", (*Application).cmdHelp},
		{"quit", "/quit", "exit", (*Application).cmdQuit},
	}
}

var keyHelp = []string{
	"Enter send   Up/Down recall   PgUp/PgDn scroll",
	"F1 help   F2 timestamps   F3 history   F4 autoscroll",
	"F5 reconnect   F8 pause   Ctrl+L clear   Ctrl+S save   Ctrl+Q quit",
}

func helpLines() []string {
	lines := append([]string{}, keyHelp...)
	for _, c := range slashCommands {
		lines = append(lines, fmt.Sprintf("%-34s %s", c.usage, c.help))
	}
	return lines
}

func findCommand(name string) (command, bool) {
	for _, c := range slashCommands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// runCommand executes a line starting with "/"
func (app *Application) runCommand(line string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return
	}

	name := strings.ToLower(fields[0])
	cmd, ok := findCommand(name)
	if !ok {
		app.console.Append(history.KindWarn, fmt.Sprintf("Unknown command: /%s (try /help)", fields[0]))
		return
	}

	if err := cmd.run(app, fields[1:]); err != nil {
		app.console.Append(history.KindWarn, fmt.Sprintf("/%s: %v", name, err))
	}
}

func (app *Application) cmdConnect(args []string) error {
	if len(args) > 3 {
		return fmt.Errorf("usage: /connect [port] [baud] [format]")
	}

	app.mu.Lock()
	cfg := app.target
	app.mu.Unlock()

	if len(args) > 0 {
		cfg.Port = args[0]
	}
	if len(args) > 1 {
		baud, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: %q", serial.ErrInvalidBaudRate, args[1])
		}
		cfg.BaudRate = baud
	}
	if len(args) > 2 {
		cfg.Format = args[2]
	}
	if cfg.Port == "" {
		return fmt.Errorf("no port given")
	}

	app.connect(cfg)
	return nil
}

func (app *Application) cmdDisconnect(_ []string) error {
	app.session.Close()
	return nil
}

func (app *Application) cmdEOL(args []string) error {
	if len(args) == 0 {
		app.console.Append(history.KindInfo, "EOL is "+app.EOL().String())
		return nil
	}

	eol, err := serial.ParseEOL(args[0])
	if err != nil {
		return err
	}
	app.SetEOL(eol)
	app.console.SetMessage("EOL " + eol.String())
	return nil
}

func (app *Application) cmdPorts(_ []string) error {
	ports, err := app.listPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		app.console.Append(history.KindInfo, "No serial ports found")
		return nil
	}

	for _, p := range ports {
		line := p.Name
		if p.IsUSB {
			line += fmt.Sprintf("  USB %s:%s", p.VID, p.PID)
			if p.Product != "" {
				line += "  " + p.Product
			}
		}
		app.console.Append(history.KindInfo, line)
	}
	return nil
}

func (app *Application) cmdSave(args []string) error {
	name := ""
	if len(args) > 0 {
		name = strings.Join(args, " ")
	}
	app.saveTranscript(name)
	return nil
}

func (app *Application) cmdClear(_ []string) error {
	app.console.Clear()
	return nil
}

func (app *Application) cmdHistory(args []string) error {
	if len(args) == 0 {
		app.openHistoryPicker()
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "sort":
		app.commands.SortAZ()
		app.console.SetMessage("History sorted")
	case "clear":
		app.commands.Clear()
		app.console.SetMessage("History cleared")
	default:
		return fmt.Errorf("usage: /history [sort|clear]")
	}
	return nil
}

func (app *Application) cmdHelp(_ []string) error {
	app.showHelp()
	return nil
}

func (app *Application) cmdQuit(_ []string) error {
	app.Quit()
	return nil
}
