package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/meghashyamc/docsearch/config"
	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/meghashyamc/docsearch/services/search"
	"github.com/spf13/cobra"
)

type searchFlags struct {
	terms       []string
	matchMode   string
	filters     []string
	from        string
	to          string
	parentsOnly bool
	size        int
}

func newSearchCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	flags := searchFlags{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Stream every matching record to stdout as one JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			request, err := flags.toRequest()
			if err != nil {
				return err
			}

			appLogger := logger.NewWithLevel(cfg.GetLogLevel())
			db, err := searchdb.New(appLogger, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			service, err := search.New(appLogger, db, search.Options{
				DateUnit:        search.DateUnit(cfg.GetDateUnit()),
				DefaultPageSize: cfg.GetDefaultPageSize(),
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			out := bufio.NewWriter(cmd.OutOrStdout())
			encoder := search.NewArrayEncoder(out)
			err = service.Stream(ctx, request, func(documents []search.Document) error {
				if err := encoder.EncodeAll(documents); err != nil {
					return err
				}
				return out.Flush()
			})
			if err != nil {
				out.Flush()
				return err
			}
			if err := encoder.Close(); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return out.Flush()
		},
	}

	cmd.Flags().StringArrayVarP(&flags.terms, "term", "t", nil, "search term, repeatable")
	cmd.Flags().StringVar(&flags.matchMode, "match-mode", string(search.MatchAny), "any or all")
	cmd.Flags().StringArrayVarP(&flags.filters, "filter", "f", nil, "exact field filter as Field=value, repeatable")
	cmd.Flags().StringVar(&flags.from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.to, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().BoolVar(&flags.parentsOnly, "parents-only", false, "leave out attachments")
	cmd.Flags().IntVar(&flags.size, "page-size", 0, "records fetched per backend round trip")
	return cmd
}

func (f searchFlags) toRequest() (search.Request, error) {
	filters := map[string][]string{}
	for _, filter := range f.filters {
		field, value, ok := strings.Cut(filter, "=")
		if !ok || strings.TrimSpace(field) == "" {
			return search.Request{}, fmt.Errorf("filter %q is not in Field=value form", filter)
		}
		field = strings.TrimSpace(field)
		filters[field] = append(filters[field], value)
	}

	return search.Request{
		Terms:       f.terms,
		MatchMode:   search.MatchMode(f.matchMode),
		Filters:     filters,
		DateRange:   search.DateRange{From: f.from, To: f.to},
		ParentsOnly: f.parentsOnly,
		Size:        f.size,
	}, nil
}
