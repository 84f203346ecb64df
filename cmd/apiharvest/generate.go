package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"apiharvest/internal/service"
)

func newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Rebuild endpoints.json, auth.json and examples.sh for every app, then trim and prune",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			svc, err := e.newService(service.OfflineSession)
			if err != nil {
				return err
			}
			apps := svc.Apps()
			if len(apps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no apps yet")
				return nil
			}
			svc.GenerateAll()
			for _, app := range apps {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", app, e.layout.EndpointsPath(app))
			}
			return nil
		},
	}
}
