package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/meghashyamc/docsearch/config"
	"github.com/meghashyamc/docsearch/db/kvdb"
	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/meghashyamc/docsearch/services/index"
	"github.com/spf13/cobra"
)

func newIngestCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	var exclude []string

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Load JSON record files under path into the embedded index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			appLogger := logger.NewWithLevel(cfg.GetLogLevel())
			indexer, err := searchdb.NewBleve(appLogger, cfg)
			if err != nil {
				return err
			}
			defer indexer.Close()

			boltDB, err := kvdb.New(appLogger, cfg)
			if err != nil {
				return err
			}
			defer boltDB.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			service := index.NewSync(appLogger, indexer, boltDB, index.Options{
				Workers:     cfg.GetIngestWorkers(),
				MaxFileSize: cfg.GetMaxIngestFileSize(),
			})
			result, err := service.Run(ctx, root, exclude, uuid.NewString())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "files: %d, records: %d, skipped records: %d, failed files: %d, deleted records: %d\n",
				result.Files, result.Records, result.SkippedRecords, result.FailedFiles, result.DeletedRecords)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "folders to skip, by name or full path")
	return cmd
}
