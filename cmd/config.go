package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"serialmon/pkg/serial"
)

func newConfigCmd(g *globals) *cobra.Command {
	configCmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"profile"},
		Short:   "Manage saved connection profiles",
		Long: `Manage saved connection profiles.

A profile stores a port with its baud rate, frame format, line terminator
and encoding. Pass the profile name to 'serialmon connect' to use it.`,
	}

	configCmd.AddCommand(newConfigSaveCmd(g))
	configCmd.AddCommand(newConfigListCmd(g))
	configCmd.AddCommand(newConfigShowCmd(g))
	configCmd.AddCommand(newConfigDeleteCmd(g))
	configCmd.AddCommand(newConfigExportCmd(g))
	configCmd.AddCommand(newConfigImportCmd(g))

	return configCmd
}

func newConfigSaveCmd(g *globals) *cobra.Command {
	var (
		sf          serialFlags
		port        string
		description string
	)

	saveCmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a connection profile",
		Long: `Save connection parameters under a name. Saving over an existing
profile keeps its creation time.

Example:
  serialmon config save mydevice -p /dev/ttyUSB0 -b 115200 -f 8N1 -e crlf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg := serial.DefaultConfig()
			cfg.Port = port
			cfg, err := sf.apply(cmd, cfg, true)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			pm, err := g.profiles()
			if err != nil {
				return err
			}
			if err := pm.Save(name, cfg, description); err != nil {
				return fmt.Errorf("saving profile '%s': %w", name, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Profile '%s' saved.\n", name)
			fmt.Fprintf(out, "  Port:     %s\n", cfg.Port)
			fmt.Fprintf(out, "  Settings: %d %s, EOL %s\n", cfg.BaudRate, cfg.Format, cfg.EOL)
			return nil
		},
	}

	saveCmd.Flags().StringVarP(&port, "port", "p", "", "serial port")
	saveCmd.Flags().StringVarP(&description, "description", "d", "", "free-form note")
	sf.register(saveCmd.Flags())
	_ = saveCmd.MarkFlagRequired("port")

	return saveCmd
}

func newConfigListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := g.profiles()
			if err != nil {
				return err
			}
			profiles, err := pm.List()
			if err != nil {
				return fmt.Errorf("listing profiles: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(profiles) == 0 {
				fmt.Fprintln(out, "No saved profiles found.")
				fmt.Fprintln(out, "\nUse 'serialmon config save <name>' to save one.")
				return nil
			}

			fmt.Fprintf(out, "Found %d saved profile(s):\n\n", len(profiles))

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPORT\tBAUD\tFORMAT\tEOL\tLAST USED")
			for _, p := range profiles {
				lastUsed := "Never"
				if !p.LastUsedAt.IsZero() {
					lastUsed = p.LastUsedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					p.Name, p.Config.Port, p.Config.BaudRate, p.Config.Format, p.Config.EOL, lastUsed)
			}
			return w.Flush()
		},
	}
}

func newConfigShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := g.profiles()
			if err != nil {
				return err
			}
			p, err := pm.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Profile: %s\n", p.Name)
			fmt.Fprintln(out, strings.Repeat("=", len(p.Name)+9))
			fmt.Fprintf(out, "Port:        %s\n", p.Config.Port)
			fmt.Fprintf(out, "Baud Rate:   %d\n", p.Config.BaudRate)
			fmt.Fprintf(out, "Format:      %s\n", p.Config.Format)
			fmt.Fprintf(out, "EOL:         %s\n", p.Config.EOL)
			encoding := p.Config.Encoding
			if encoding == "" {
				encoding = "utf-8"
			}
			fmt.Fprintf(out, "Encoding:    %s\n", encoding)
			if p.Description != "" {
				fmt.Fprintf(out, "Description: %s\n", p.Description)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Created:     %s\n", p.CreatedAt.Format(time.RFC3339))
			if p.LastUsedAt.IsZero() {
				fmt.Fprintln(out, "Last Used:   Never")
			} else {
				fmt.Fprintf(out, "Last Used:   %s\n", p.LastUsedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newConfigDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm", "remove"},
		Short:   "Delete a saved profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := g.profiles()
			if err != nil {
				return err
			}
			if err := pm.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' deleted.\n", args[0])
			return nil
		},
	}
}

func newConfigExportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "export <name> <file>",
		Short: "Write a profile to a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := g.profiles()
			if err != nil {
				return err
			}
			if err := pm.Export(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' exported to %s.\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigImportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Save a profile from a JSON file written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := g.profiles()
			if err != nil {
				return err
			}
			p, err := pm.Import(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' imported (port %s).\n", p.Name, p.Config.Port)
			return nil
		},
	}
}
