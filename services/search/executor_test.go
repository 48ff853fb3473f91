package search

import (
	"context"
	"errors"
	"testing"

	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func highlightedQuery(t *testing.T) *searchdb.Query {
	query, err := newTestBuilder(t, DateUnitSeconds).Build(Request{Terms: []string{"budget"}})
	require.NoError(t, err)
	return query
}

// counterValue sums every series of a counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestExecutorOutcomes(t *testing.T) {
	highlightRejection := &searchdb.RejectionError{StatusCode: 400, Excerpt: "highlight too costly", Highlight: true}
	otherRejection := &searchdb.RejectionError{StatusCode: 400, Excerpt: "parse_exception"}
	unavailable := &searchdb.UnavailableError{Err: context.DeadlineExceeded}
	success := hitsResponse(searchdb.Hit{ID: "rec-1", Sort: []any{"1", "rec-1"}})

	testCases := []struct {
		name               string
		results            []fakeResult
		expectedCalls      int
		expectedErr        error
		expectedFallbacks  float64
		expectedHighlights []bool
	}{
		{
			name:               "Success",
			results:            []fakeResult{{response: success}},
			expectedCalls:      1,
			expectedHighlights: []bool{true},
		},
		{
			name:               "HighlightFallback",
			results:            []fakeResult{{err: highlightRejection}, {response: success}},
			expectedCalls:      2,
			expectedFallbacks:  1,
			expectedHighlights: []bool{true, false},
		},
		{
			name:               "HighlightFallbackFailsToo",
			results:            []fakeResult{{err: highlightRejection}, {err: highlightRejection}},
			expectedCalls:      2,
			expectedErr:        searchdb.ErrHighlightRejected,
			expectedFallbacks:  1,
			expectedHighlights: []bool{true, false},
		},
		{
			name:               "FallbackThenUnavailable",
			results:            []fakeResult{{err: highlightRejection}, {err: unavailable}},
			expectedCalls:      2,
			expectedErr:        searchdb.ErrUnavailable,
			expectedFallbacks:  1,
			expectedHighlights: []bool{true, false},
		},
		{
			name:               "OtherRejectionIsFatal",
			results:            []fakeResult{{err: otherRejection}, {response: success}},
			expectedCalls:      1,
			expectedErr:        searchdb.ErrRejected,
			expectedHighlights: []bool{true},
		},
		{
			name:               "UnavailableIsFatal",
			results:            []fakeResult{{err: unavailable}, {response: success}},
			expectedCalls:      1,
			expectedErr:        searchdb.ErrUnavailable,
			expectedHighlights: []bool{true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			db := &fakeDB{results: tc.results}
			reg := prometheus.NewRegistry()
			executor := NewExecutor(newTestLogger(), db, metrics.New(reg))
			query := highlightedQuery(t)

			response, err := executor.Execute(context.Background(), query, nil)
			if tc.expectedErr != nil {
				assert.True(errors.Is(err, tc.expectedErr), "unexpected error %v", err)
				assert.Nil(response)
			} else {
				assert.NoError(err)
				assert.Equal(success, response)
			}

			assert.Equal(tc.expectedCalls, db.calls())
			for i, highlighted := range tc.expectedHighlights {
				assert.Equal(highlighted, db.queries[i].Highlight != nil, "call %d", i)
			}
			assert.NotNil(query.Highlight, "the caller's query must not be modified")
			assert.Equal(tc.expectedFallbacks, counterValue(t, reg, "docsearch_highlight_fallbacks_total"))
		})
	}
}

func TestExecutorAttachesCursor(t *testing.T) {
	assert := require.New(t)
	db := &fakeDB{}
	executor := NewExecutor(newTestLogger(), db, nil)
	query := highlightedQuery(t)

	_, err := executor.Execute(context.Background(), query, Cursor{"1704844800", "rec-0001"})
	assert.NoError(err)
	_, err = executor.Execute(context.Background(), query, nil)
	assert.NoError(err)

	assert.Equal([]any{"1704844800", "rec-0001"}, db.queries[0].SearchAfter)
	assert.Nil(db.queries[1].SearchAfter)
	assert.Nil(query.SearchAfter)
}

func TestExecutorWithoutHighlightDoesNotRetry(t *testing.T) {
	assert := require.New(t)
	db := &fakeDB{results: []fakeResult{
		{err: &searchdb.RejectionError{StatusCode: 400, Highlight: true}},
		{response: hitsResponse()},
	}}
	executor := NewExecutor(newTestLogger(), db, nil)

	_, err := executor.Execute(context.Background(), highlightedQuery(t).WithoutHighlight(), nil)
	assert.True(errors.Is(err, searchdb.ErrHighlightRejected))
	assert.Equal(1, db.calls())
}

func TestExecutorRecordsBackendOutcomes(t *testing.T) {
	assert := require.New(t)
	reg := prometheus.NewRegistry()
	db := &fakeDB{results: []fakeResult{
		{err: &searchdb.RejectionError{StatusCode: 400, Highlight: true}},
		{response: hitsResponse()},
	}}
	executor := NewExecutor(newTestLogger(), db, metrics.New(reg))

	_, err := executor.Execute(context.Background(), highlightedQuery(t), nil)
	assert.NoError(err)

	count, err := testutil.GatherAndCount(reg, "docsearch_backend_requests_total")
	assert.NoError(err)
	assert.Equal(2, count)
}
