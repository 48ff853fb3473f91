package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/db/searchdb/searchdbtest"
	"github.com/stretchr/testify/require"
)

var emptyPageResponse = map[string]any{
	"documents":   []any{},
	"next_cursor": nil,
	"aggregations": map[string]any{
		"doctype_counts":       map[string]any{},
		"branchtype_counts":    map[string]any{},
		"extensiontype_counts": map[string]any{},
	},
	"total": float64(0),
}

var searchHandlerTestCases = []testCase{
	{
		name:           "NoRequestBody",
		requestHeaders: defaultTestRequestHeaders,
		expectedStatus: http.StatusUnprocessableEntity,
	},
	{
		name:           "WrongFieldType",
		requestHeaders: defaultTestRequestHeaders,
		requestBody:    map[string]any{"terms": "budget"},
		expectedStatus: http.StatusUnprocessableEntity,
	},
	{
		name:           "UnknownMatchMode",
		requestHeaders: defaultTestRequestHeaders,
		requestBody:    map[string]any{"terms": []string{"budget"}, "match_mode": "most"},
		expectedStatus: http.StatusNotAcceptable,
		expectedResponse: map[string]any{
			"data":   nil,
			"errors": []any{"match_mode must be 'any' or 'all'"},
		},
	},
	{
		name:           "MalformedDate",
		requestHeaders: defaultTestRequestHeaders,
		requestBody:    map[string]any{"date_range": map[string]any{"from": "2024/01/10"}},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "MalformedCursor",
		requestHeaders: defaultTestRequestHeaders,
		requestBody:    map[string]any{"terms": []string{"budget"}, "cursor": []any{"only-one"}},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "ForeignCursor",
		requestHeaders: defaultTestRequestHeaders,
		requestBody:    map[string]any{"terms": []string{"budget"}, "cursor": []any{1704844800, "rec-0001"}},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "NegativeSize",
		requestHeaders: defaultTestRequestHeaders,
		requestBody:    map[string]any{"terms": []string{"budget"}, "size": -1},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:             "EmptyRequest",
		requestHeaders:   defaultTestRequestHeaders,
		requestBody:      map[string]any{"terms": []string{" "}, "filters": map[string]any{"DocType": []string{}}},
		expectedStatus:   http.StatusOK,
		expectedResponse: emptyPageResponse,
	},
	{
		name:             "EmptyStreamRequest",
		requestHeaders:   defaultTestRequestHeaders,
		requestBody:      map[string]any{"stream": true, "parents_only": true},
		expectedStatus:   http.StatusOK,
		expectedResponse: emptyPageResponse,
	},
	{
		name:           "NoMatches",
		requestHeaders: defaultTestRequestHeaders,
		requestBody:    map[string]any{"terms": []string{"nonexistent"}},
		expectedStatus: http.StatusOK,
		expectedResponse: map[string]any{
			"documents":   []any{},
			"next_cursor": nil,
			"aggregations": map[string]any{
				"doctype_counts":       map[string]any{},
				"branchtype_counts":    map[string]any{},
				"extensiontype_counts": map[string]any{},
			},
			"total": float64(0),
		},
	},
}

func TestHandleSearch(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert, searchdbtest.Records(20))

	for _, testCase := range searchHandlerTestCases {

		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			w := makeTestHTTPRequest(server, assert, http.MethodPost, "/search", testCase.requestHeaders, testCase.requestBody, testCase.queryParams)
			responseBytes := w.Body.Bytes()
			assert.Equal(testCase.expectedStatus, w.Code, fmt.Sprintf("response gotten was %s", string(responseBytes)))
			if testCase.expectedResponse != nil {
				assert.Equal(testCase.expectedResponse, decodeJSON(assert, responseBytes))
			}
		})
	}
}

func TestHandleSearchPagesThroughResults(t *testing.T) {
	assert := require.New(t)
	records := searchdbtest.Records(250)
	server := setupTestServer(t, assert, records)

	requestBody := map[string]any{"terms": []string{"quarterly budget", "harbour"}, "match_mode": "all", "size": 100}
	var ids []string
	for page := 0; ; page++ {
		assert.Less(page, 10, "pagination did not terminate")

		w := makeTestHTTPRequest(server, assert, http.MethodPost, "/search", defaultTestRequestHeaders, requestBody, nil)
		assert.Equal(http.StatusOK, w.Code, w.Body.String())

		response := decodeJSON(assert, w.Body.Bytes())
		if page == 0 {
			assert.Equal(float64(250), response["total"])
		}
		ids = append(ids, documentIDs(response["documents"].([]any))...)

		if response["next_cursor"] == nil {
			break
		}
		requestBody["cursor"] = response["next_cursor"]
	}

	assert.Equal(searchdbtest.SortedIDs(records), ids)
}

func TestHandleSearchFiltersAndDates(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert, searchdbtest.Records(250))

	w := makeTestHTTPRequest(server, assert, http.MethodPost, "/search", defaultTestRequestHeaders, map[string]any{
		"filters":      map[string]any{"Branch": []string{"north"}},
		"date_range":   map[string]any{"from": "2024-01-10", "to": "2024-01-10"},
		"parents_only": true,
		"size":         500,
	}, nil)
	assert.Equal(http.StatusOK, w.Code, w.Body.String())

	response := decodeJSON(assert, w.Body.Bytes())
	documents := response["documents"].([]any)
	// Records 0..94 fall on the 10th; the north branch holds the even ones, none of which is an attachment.
	assert.Len(documents, 48)
	for _, document := range documents {
		fields := document.(map[string]any)
		assert.Equal("north", fields["Branch"])
		assert.Equal("False", fields["IsAttachment"])
		assert.Contains(fields, "a_count")
		assert.Contains(fields, "highlighted_text")
	}

	aggregations := response["aggregations"].(map[string]any)
	assert.Equal(map[string]any{"north": float64(48), "south": float64(24)}, aggregations["branchtype_counts"])
}

func TestHandleSearchStream(t *testing.T) {
	assert := require.New(t)
	records := searchdbtest.Records(250)
	server := setupTestServer(t, assert, records)

	w := makeTestHTTPRequest(server, assert, http.MethodPost, "/search", defaultTestRequestHeaders,
		map[string]any{"terms": []string{"budget"}, "size": 100, "stream": true}, nil)
	assert.Equal(http.StatusOK, w.Code)
	assert.True(strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))

	var documents []any
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &documents))
	assert.Equal(searchdbtest.SortedIDs(records), documentIDs(documents))
}

func TestHandleSearchStreamWithoutMatches(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert, searchdbtest.Records(5))

	w := makeTestHTTPRequest(server, assert, http.MethodPost, "/search", defaultTestRequestHeaders,
		map[string]any{"terms": []string{"nonexistent"}, "stream": true}, nil)
	assert.Equal(http.StatusOK, w.Code)
	assert.Equal("[]", w.Body.String())
}

func TestHandleSearchStreamFailures(t *testing.T) {
	unavailable := &searchdb.UnavailableError{Err: errors.New("connection refused")}

	t.Run("BeforeFirstPage", func(t *testing.T) {
		assert := require.New(t)
		server := setupTestServerWithDB(t, assert, &fakeDB{results: []fakeResult{{err: unavailable}}}, nil)

		w := makeTestHTTPRequest(server, assert, http.MethodPost, "/search", defaultTestRequestHeaders,
			map[string]any{"terms": []string{"budget"}, "stream": true}, nil)
		assert.Equal(http.StatusServiceUnavailable, w.Code)
		assert.Equal(map[string]any{"data": nil, "errors": []any{"search backend unavailable"}}, decodeJSON(assert, w.Body.Bytes()))
	})

	t.Run("MidStream", func(t *testing.T) {
		assert := require.New(t)
		server := setupTestServerWithDB(t, assert, &fakeDB{results: []fakeResult{
			{response: fakePage("rec-1", "rec-2")},
			{err: unavailable},
		}}, nil)

		w := makeTestHTTPRequest(server, assert, http.MethodPost, "/search", defaultTestRequestHeaders,
			map[string]any{"terms": []string{"budget"}, "stream": true}, nil)
		assert.Equal(http.StatusOK, w.Code)

		body := w.Body.String()
		assert.True(strings.HasPrefix(body, `[{`), body)
		assert.False(strings.HasSuffix(body, "]"), "a truncated stream must not look complete")
		var documents []any
		assert.Error(json.Unmarshal(w.Body.Bytes(), &documents))
	})
}

func TestHandleSearchBackendErrors(t *testing.T) {
	testCases := []struct {
		name           string
		results        []fakeResult
		expectedStatus int
		expectedCalls  int
	}{
		{
			name:           "Rejected",
			results:        []fakeResult{{err: &searchdb.RejectionError{StatusCode: 400, Excerpt: "parse_exception"}}},
			expectedStatus: http.StatusBadGateway,
			expectedCalls:  1,
		},
		{
			name:           "Unavailable",
			results:        []fakeResult{{err: &searchdb.UnavailableError{Err: errors.New("timeout")}}},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCalls:  1,
		},
		{
			name:           "Unexpected",
			results:        []fakeResult{{err: errors.New("decode failure")}},
			expectedStatus: http.StatusInternalServerError,
			expectedCalls:  1,
		},
		{
			name: "HighlightFallback",
			results: []fakeResult{
				{err: &searchdb.RejectionError{StatusCode: 400, Excerpt: "max_analyzed_offset", Highlight: true}},
				{response: fakePage("rec-1")},
			},
			expectedStatus: http.StatusOK,
			expectedCalls:  2,
		},
		{
			name: "HighlightFallbackRejectedAgain",
			results: []fakeResult{
				{err: &searchdb.RejectionError{StatusCode: 400, Excerpt: "highlight", Highlight: true}},
				{err: &searchdb.RejectionError{StatusCode: 400, Excerpt: "highlight", Highlight: true}},
			},
			expectedStatus: http.StatusBadGateway,
			expectedCalls:  2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			db := &fakeDB{results: tc.results}
			server := setupTestServerWithDB(t, assert, db, nil)

			w := makeTestHTTPRequest(server, assert, http.MethodPost, "/search", defaultTestRequestHeaders,
				map[string]any{"terms": []string{"budget"}}, nil)
			assert.Equal(tc.expectedStatus, w.Code, w.Body.String())
			assert.Equal(tc.expectedCalls, db.calls)

			response := decodeJSON(assert, w.Body.Bytes())
			if tc.expectedStatus == http.StatusOK {
				documents := response["documents"].([]any)
				assert.Equal("body of rec-1", documents[0].(map[string]any)["highlighted_text"])
				return
			}
			assert.Nil(response["data"])
			assert.NotEmpty(response["errors"])
		})
	}
}

func TestHandleLinked(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert, searchdbtest.Records(12))

	testCases := []struct {
		name           string
		requestBody    map[string]any
		expectedStatus int
		expectedIDs    []string
	}{
		{name: "AttachmentBool", requestBody: map[string]any{"record_id": "rec-0003", "parent_id": "rec-0002", "is_attachment": true}, expectedStatus: http.StatusOK, expectedIDs: []string{"rec-0002"}},
		{name: "AttachmentString", requestBody: map[string]any{"record_id": "rec-0003", "parent_id": "rec-0002", "is_attachment": "True"}, expectedStatus: http.StatusOK, expectedIDs: []string{"rec-0002"}},
		{name: "AttachmentNumber", requestBody: map[string]any{"record_id": "rec-0003", "parent_id": "rec-0002", "is_attachment": 1}, expectedStatus: http.StatusOK, expectedIDs: []string{"rec-0002"}},
		{name: "ParentString", requestBody: map[string]any{"record_id": "rec-0006", "is_attachment": "False"}, expectedStatus: http.StatusOK, expectedIDs: []string{"rec-0007"}},
		{name: "ParentDefault", requestBody: map[string]any{"record_id": "rec-0010"}, expectedStatus: http.StatusOK, expectedIDs: []string{"rec-0011"}},
		{name: "UnreadableFlag", requestBody: map[string]any{"record_id": "rec-0006", "is_attachment": "maybe"}, expectedStatus: http.StatusUnprocessableEntity},
		{name: "MissingParentID", requestBody: map[string]any{"record_id": "rec-0003", "is_attachment": true}, expectedStatus: http.StatusNotAcceptable},
		{name: "MissingRecordID", requestBody: map[string]any{"is_attachment": 0}, expectedStatus: http.StatusNotAcceptable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			w := makeTestHTTPRequest(server, assert, http.MethodPost, "/attachments/link", defaultTestRequestHeaders, tc.requestBody, nil)
			assert.Equal(tc.expectedStatus, w.Code, w.Body.String())
			if tc.expectedStatus != http.StatusOK {
				return
			}

			response := decodeJSON(assert, w.Body.Bytes())
			assert.Nil(response["next_cursor"])
			assert.Equal(tc.expectedIDs, documentIDs(response["documents"].([]any)))
		})
	}
}
