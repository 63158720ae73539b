package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"serialmon/pkg/serial"
)

// serialFlags are the connection parameters shared by connect, send and
// config save
type serialFlags struct {
	baudRate int
	format   string
	eol      string
	encoding string
}

func (f *serialFlags) register(fs *pflag.FlagSet) {
	def := serial.DefaultConfig()
	fs.IntVarP(&f.baudRate, "baud", "b", def.BaudRate, "baud rate")
	fs.StringVarP(&f.format, "format", "f", def.Format, "frame format: data bits, parity (N/E/O/M/S), stop bits (1, 1.5, 2), e.g. 8N1")
	fs.StringVarP(&f.eol, "eol", "e", def.EOL.String(), "line terminator appended to sent text (none, lf, cr, crlf)")
	fs.StringVar(&f.encoding, "encoding", def.Encoding, "character encoding of the link, e.g. utf-8, latin1")
}

// apply overrides cfg with the flags the user set, or with every flag when
// all is true
func (f *serialFlags) apply(cmd *cobra.Command, cfg serial.SerialConfig, all bool) (serial.SerialConfig, error) {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }

	if changed("baud") {
		cfg.BaudRate = f.baudRate
	}
	if changed("format") {
		cfg.Format = f.format
	}
	if changed("eol") {
		eol, err := serial.ParseEOL(f.eol)
		if err != nil {
			return cfg, err
		}
		cfg.EOL = eol
	}
	if changed("encoding") {
		cfg.Encoding = f.encoding
	}
	return cfg, nil
}

// looksLikePort reports names that can only be device paths
func looksLikePort(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "com") || strings.HasPrefix(name, "/dev/") || strings.HasPrefix(name, `\\.\`)
}

// printOpenHints writes suggestions for an OpenError to w
func printOpenHints(w io.Writer, err error) {
	var openErr *serial.OpenError
	if !errors.As(err, &openErr) {
		return
	}

	hints := openErr.Hints()
	if len(hints) == 0 {
		return
	}
	fmt.Fprintln(w, "\nPossible solutions:")
	for _, h := range hints {
		fmt.Fprintf(w, "  - %s\n", h)
	}
}
