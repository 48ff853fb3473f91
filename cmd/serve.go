package main

import (
	"github.com/meghashyamc/docsearch/api"
	"github.com/meghashyamc/docsearch/config"
	"github.com/spf13/cobra"
)

func newServeCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Set("PORT", port)
			}
			return api.Run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port to listen on, overrides the configured one")
	return cmd
}
