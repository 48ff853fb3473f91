package search

import (
	"context"
	"errors"
	"time"

	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/meghashyamc/docsearch/metrics"
)

// Executor owns the backend round trips of one page: a first attempt and, only when the
// backend refuses to highlight, a single attempt without highlighting.
type Executor struct {
	db      searchdb.DB
	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewExecutor(logger logger.Logger, db searchdb.DB, m *metrics.Metrics) *Executor {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Executor{db: db, logger: logger, metrics: m}
}

// Execute runs the query resuming after cursor. The query itself is never modified.
func (e *Executor) Execute(ctx context.Context, query *searchdb.Query, cursor Cursor) (*searchdb.Response, error) {
	attempt := query.WithCursor(cursor)

	response, err := e.attempt(ctx, attempt)
	if err == nil {
		return response, nil
	}
	if !errors.Is(err, searchdb.ErrHighlightRejected) || attempt.Highlight == nil {
		return nil, err
	}

	e.logger.Warn("search backend rejected highlighting, retrying without it", "err", err.Error())
	e.metrics.HighlightFallback()

	response, err = e.attempt(ctx, attempt.WithoutHighlight())
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (e *Executor) attempt(ctx context.Context, query *searchdb.Query) (*searchdb.Response, error) {
	start := time.Now()
	response, err := e.db.Search(ctx, query)
	e.metrics.ObserveBackend(outcomeOf(err), time.Since(start))
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, searchdb.ErrHighlightRejected) {
			e.logger.Error("search backend request failed", "err", err.Error())
		}
		return nil, err
	}
	return response, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.Canceled):
		return metrics.OutcomeCancelled
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, searchdb.ErrInvalidCursor):
		return metrics.OutcomeInvalid
	case errors.Is(err, searchdb.ErrHighlightRejected):
		return metrics.OutcomeHighlightRejected
	case errors.Is(err, searchdb.ErrRejected):
		return metrics.OutcomeRejected
	case errors.Is(err, searchdb.ErrUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
