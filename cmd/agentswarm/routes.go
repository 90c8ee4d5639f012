package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRoutesCommand(root *rootOptions) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the validated routing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := root.build(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			descriptors := app.Swarm.Descriptors()
			out := cmd.OutOrStdout()

			if asYAML {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(descriptors); err != nil {
					return err
				}
				return enc.Close()
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AGENT\tDEFAULT\tHANDOFF TARGETS")
			for _, d := range descriptors {
				def := ""
				if d.IsDefault {
					def = "*"
				}
				targets := strings.Join(d.AllowedTargets, ", ")
				if targets == "" {
					targets = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, def, targets)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML")

	return cmd
}
