package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/meghashyamc/docsearch/config"
	"github.com/spf13/cobra"
)

func main() {
	godotenv.Load()

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var env string

	root := &cobra.Command{
		Use:           "docsearch",
		Short:         "Search and page through archived document records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&env, "env", "", "config environment, defaults to $ENV or local")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(env)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(newServeCommand(loadConfig), newSearchCommand(loadConfig), newIngestCommand(loadConfig))
	return root
}
