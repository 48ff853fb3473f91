package search

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/meghashyamc/docsearch/metrics"
)

type Options struct {
	DateUnit        DateUnit
	DefaultPageSize int
	Metrics         *metrics.Metrics
}

type Service struct {
	builder         *QueryBuilder
	executor        *Executor
	logger          logger.Logger
	metrics         *metrics.Metrics
	defaultPageSize int
}

// Page is the single-page response. NextCursor is nil once the traversal is exhausted.
type Page struct {
	Documents    []Document   `json:"documents"`
	NextCursor   Cursor       `json:"next_cursor"`
	Aggregations Aggregations `json:"aggregations"`
	Total        int64        `json:"total"`
}

// EmptyPage is the answer to a request that constrains nothing.
func EmptyPage() *Page {
	return &Page{
		Documents:    []Document{},
		Aggregations: emptyAggregations(),
	}
}

func New(logger logger.Logger, db searchdb.DB, opts Options) (*Service, error) {
	builder, err := NewQueryBuilder(opts.DateUnit)
	if err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}

	return &Service{
		builder:         builder,
		executor:        NewExecutor(logger, db, opts.Metrics),
		logger:          logger,
		metrics:         opts.Metrics,
		defaultPageSize: opts.DefaultPageSize,
	}, nil
}

// Search fetches one page. Resuming is up to the caller, who passes NextCursor back.
func (s *Service) Search(ctx context.Context, req Request) (*Page, error) {
	if req.IsEmpty() {
		s.metrics.ObserveSearch(metrics.ModePage, metrics.OutcomeEmpty)
		return EmptyPage(), nil
	}

	page, err := s.search(ctx, req)
	s.metrics.ObserveSearch(metrics.ModePage, outcomeOf(err))
	return page, err
}

func (s *Service) search(ctx context.Context, req Request) (*Page, error) {
	query, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	p := newPager(s.executor, query, req.Cursor)
	response, err := p.next(ctx)
	if err != nil {
		return nil, err
	}

	return &Page{
		Documents:    Normalize(response.Hits.Hits),
		NextCursor:   p.cursor,
		Aggregations: ExtractAggregations(response.Aggregations),
		Total:        response.Hits.Total.Value,
	}, nil
}

// Stream walks every page from the request's cursor onwards and hands each normalized page
// to emit as soon as it arrives. It stops at the first empty page, when emit fails or when
// ctx is done. An empty request emits nothing.
func (s *Service) Stream(ctx context.Context, req Request, emit func([]Document) error) error {
	if req.IsEmpty() {
		s.metrics.ObserveSearch(metrics.ModeStream, metrics.OutcomeEmpty)
		return nil
	}

	err := s.stream(ctx, req, emit)
	s.metrics.ObserveSearch(metrics.ModeStream, outcomeOf(err))
	return err
}

func (s *Service) stream(ctx context.Context, req Request, emit func([]Document) error) error {
	query, err := s.prepare(req)
	if err != nil {
		return err
	}
	// Facet counts and totals are not part of a stream.
	query.Aggregations = nil
	query.TrackTotalHits = false

	p := newPager(s.executor, query, req.Cursor)
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		response, err := p.next(ctx)
		if err != nil {
			return err
		}
		if p.state == stateExhausted {
			s.logger.Debug("search stream exhausted", "pages", pages)
			return nil
		}

		documents := Normalize(response.Hits.Hits)
		if err := emit(documents); err != nil {
			return fmt.Errorf("could not emit search results: %w", err)
		}
		s.metrics.StreamedDocuments(len(documents))
		pages++
	}
}

func (s *Service) prepare(req Request) (*searchdb.Query, error) {
	if err := req.Cursor.validate(); err != nil {
		return nil, err
	}
	if req.Size <= 0 {
		req.Size = s.defaultPageSize
	}
	return s.builder.Build(req)
}

type pagerState int

const (
	stateReady pagerState = iota
	stateHasMore
	stateExhausted
)

var errPagerExhausted = errors.New("pager is exhausted")

// pager walks one traversal sequentially. Each page resumes after the sort values of the
// previous page's last hit.
type pager struct {
	executor *Executor
	query    *searchdb.Query
	cursor   Cursor
	state    pagerState
}

func newPager(executor *Executor, query *searchdb.Query, cursor Cursor) *pager {
	return &pager{executor: executor, query: query, cursor: cursor, state: stateReady}
}

func (p *pager) next(ctx context.Context) (*searchdb.Response, error) {
	if p.state == stateExhausted {
		return nil, errPagerExhausted
	}

	response, err := p.executor.Execute(ctx, p.query, p.cursor)
	if err != nil {
		return nil, err
	}

	hits := response.Hits.Hits
	if len(hits) == 0 {
		p.state, p.cursor = stateExhausted, nil
		return response, nil
	}

	last := hits[len(hits)-1]
	if len(last.Sort) == 0 {
		return nil, fmt.Errorf("search backend returned hit %q without sort values", last.ID)
	}
	if p.cursor != nil && reflect.DeepEqual([]any(p.cursor), last.Sort) {
		return nil, fmt.Errorf("search backend did not advance past cursor %v", last.Sort)
	}

	p.state, p.cursor = stateHasMore, Cursor(last.Sort)
	return response, nil
}
