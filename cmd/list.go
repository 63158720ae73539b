package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"serialmon/pkg/serial"
)

func newListCmd(g *globals) *cobra.Command {
	var (
		details bool
		format  string
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		Long: `List all available serial ports on the system.

With --details, USB ports also show vendor and product IDs, the product
name and the serial number.`,
		Aliases: []string{"ls", "ports"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := g.listPorts()
			if err != nil {
				return fmt.Errorf("listing ports: %w", err)
			}
			g.logger.Debugw("enumerated ports", "count", len(ports))

			out := cmd.OutOrStdout()
			switch format {
			case "csv":
				return printPortsCSV(out, ports, details)
			case "json":
				return printPortsJSON(out, ports, details)
			case "table":
				printPortsTable(out, ports, details)
				return nil
			default:
				return fmt.Errorf("unknown output format %q (table, csv, json)", format)
			}
		},
	}

	listCmd.Flags().BoolVarP(&details, "details", "d", false, "show detailed port information")
	listCmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, csv, json)")

	return listCmd
}

func printPortsTable(out io.Writer, ports []serial.PortInfo, details bool) {
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found.")
		return
	}

	fmt.Fprintf(out, "Found %d serial port(s):\n", len(ports))
	if !details {
		for _, p := range ports {
			fmt.Fprintf(out, "  %s\n", p.Name)
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PORT\tTYPE\tVID:PID\tPRODUCT\tSERIAL")
		for _, p := range ports {
			kind, ids := "-", "-"
			if p.IsUSB {
				kind = "USB"
				ids = p.VID + ":" + p.PID
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", p.Name, kind, ids, dash(p.Product), dash(p.SerialNumber))
		}
		w.Flush()
	}

	fmt.Fprintln(out, "\nUse 'serialmon connect <port>' to connect.")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printPortsCSV(out io.Writer, ports []serial.PortInfo, details bool) error {
	w := csv.NewWriter(out)
	if details {
		_ = w.Write([]string{"port", "is_usb", "vid", "pid", "product", "serial_number"})
		for _, p := range ports {
			_ = w.Write([]string{p.Name, strconv.FormatBool(p.IsUSB), p.VID, p.PID, p.Product, p.SerialNumber})
		}
	} else {
		_ = w.Write([]string{"port"})
		for _, p := range ports {
			_ = w.Write([]string{p.Name})
		}
	}
	w.Flush()
	return w.Error()
}

type portJSON struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb,omitempty"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	Product      string `json:"product,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

func printPortsJSON(out io.Writer, ports []serial.PortInfo, details bool) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if !details {
		names := make([]string, 0, len(ports))
		for _, p := range ports {
			names = append(names, p.Name)
		}
		return enc.Encode(names)
	}

	list := make([]portJSON, 0, len(ports))
	for _, p := range ports {
		list = append(list, portJSON{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			Product:      p.Product,
			SerialNumber: p.SerialNumber,
		})
	}
	return enc.Encode(list)
}
