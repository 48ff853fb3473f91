package search

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/logger"
)

func newTestLogger() logger.Logger {

	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

type fakeResult struct {
	response *searchdb.Response
	err      error
}

// fakeDB replays canned results in order and records every query it receives.
type fakeDB struct {
	mu      sync.Mutex
	results []fakeResult
	queries []*searchdb.Query
}

func (f *fakeDB) Search(ctx context.Context, query *searchdb.Query) (*searchdb.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, query)
	if len(f.results) == 0 {
		return &searchdb.Response{}, nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result.response, result.err
}

func (f *fakeDB) Close() error {
	return nil
}

func (f *fakeDB) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// countingDB forwards to another backend and counts the round trips.
type countingDB struct {
	searchdb.DB
	mu      sync.Mutex
	queries []*searchdb.Query
}

func (c *countingDB) Search(ctx context.Context, query *searchdb.Query) (*searchdb.Response, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	return c.DB.Search(ctx, query)
}

func (c *countingDB) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

// highlightRejectingDB refuses every query that asks for highlighting.
type highlightRejectingDB struct {
	searchdb.DB
}

func (h *highlightRejectingDB) Search(ctx context.Context, query *searchdb.Query) (*searchdb.Response, error) {
	if query.Highlight != nil {
		return nil, &searchdb.RejectionError{
			StatusCode: 400,
			Excerpt:    `{"error":{"type":"illegal_argument_exception","reason":"max_analyzed_offset exceeded"}}`,
			Highlight:  true,
		}
	}
	return h.DB.Search(ctx, query)
}

func hitsResponse(hits ...searchdb.Hit) *searchdb.Response {
	return &searchdb.Response{Hits: searchdb.HitsResult{
		Total: searchdb.HitsTotal{Value: int64(len(hits)), Relation: "eq"},
		Hits:  hits,
	}}
}

func documentIDs(documents []Document) []string {
	ids := make([]string, 0, len(documents))
	for _, document := range documents {
		id, _ := document[searchdb.FieldRecordID].(string)
		ids = append(ids, id)
	}
	return ids
}
