package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <name> <domain>",
		Short: "Name a new app with its seed domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			svc, err := e.newService("")
			if err != nil {
				return err
			}
			if _, err := svc.RegisterApp(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", args[0], args[1])
			return nil
		},
	}
}

func newAddDomainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-domain <name> <domain>",
		Short: "Attribute another domain to an existing app",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			svc, err := e.newService("")
			if err != nil {
				return err
			}
			if _, err := svc.AddDomain(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now includes %s\n", args[0], args[1])
			return nil
		},
	}
}

func newAppsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List apps and their domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			details := e.layout.AppDetails()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(details)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "APP\tDOMAINS")
			for _, d := range details {
				fmt.Fprintf(tw, "%s\t%s\n", d.Name, strings.Join(d.Domains, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
