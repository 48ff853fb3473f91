// Common test helpers
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/meghashyamc/docsearch/config"
	"github.com/meghashyamc/docsearch/db/kvdb"
	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/db/searchdb/searchdbtest"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/meghashyamc/docsearch/services/index"
	"github.com/meghashyamc/docsearch/services/search"
	"github.com/meghashyamc/docsearch/validation"
	"github.com/stretchr/testify/require"
)

var defaultTestRequestHeaders = map[string]string{"Content-Type": "application/json"}

type testCase struct {
	name             string
	requestHeaders   map[string]string
	requestBody      map[string]any
	queryParams      map[string]string
	expectedStatus   int
	expectedResponse map[string]any
}

type testServer struct {
	router  *gin.Engine
	indexer *searchdb.BleveDB
}

func newTestLogger() logger.Logger {

	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

// setupTestServer serves searches from an in-memory index holding records. Ingestion writes
// into the same index.
func setupTestServer(t *testing.T, assert *require.Assertions, records []searchdb.Record) *testServer {
	indexer := searchdbtest.NewIndex(t, newTestLogger(), records)
	return setupTestServerWithDB(t, assert, indexer, indexer)
}

func setupTestServerWithDB(t *testing.T, assert *require.Assertions, searchDB searchdb.DB, indexer *searchdb.BleveDB) *testServer {

	t.Setenv("ENV", "test")

	cfg, err := config.Load("")
	assert.NoError(err, "could not load config")
	cfg.Set("KVDB_PATH", filepath.Join(t.TempDir(), "kv.db"))

	testLogger := newTestLogger()

	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	searchService, err := search.New(testLogger, searchDB, search.Options{DateUnit: search.DateUnit(cfg.GetDateUnit())})
	assert.NoError(err, "could not create search service")

	gin.SetMode(gin.TestMode)
	binding.EnableDecoderUseNumber = true
	router := gin.New()
	SetupSearch(router, testLogger, searchService, validator)

	if indexer != nil {
		kvDB, err := kvdb.New(testLogger, cfg)
		assert.NoError(err, "could not create kv database")

		ctx, cancel := context.WithCancel(context.Background())
		indexService := index.New(ctx, testLogger, indexer, kvDB, index.Options{Workers: 2})
		SetupIndex(router, testLogger, indexService, validator)

		t.Cleanup(func() {
			cancel()
			assert.NoError(kvDB.Close(), "could not close kv database")
		})
	}

	return &testServer{router: router, indexer: indexer}
}

func makeTestHTTPRequest(server *testServer, assert *require.Assertions, method string, endpoint string, headers map[string]string, requestBodyMap map[string]interface{}, queryParams map[string]string) *httptest.ResponseRecorder {

	var err error
	w := httptest.NewRecorder()

	if len(queryParams) > 0 {
		endpoint = endpoint + "?"
		for key, value := range queryParams {
			if endpoint[len(endpoint)-1] != '?' {
				endpoint = endpoint + "&"
			}
			endpoint = endpoint + key + "=" + value
		}
	}
	var jsonBody []byte
	var req *http.Request
	if requestBodyMap != nil {
		jsonBody, err = json.Marshal(requestBodyMap)
		assert.NoError(err)
	}

	slog.Info("Making test request", "method", method, "endpoint", endpoint, "headers", headers, "body", string(jsonBody))

	if len(jsonBody) > 0 {
		req, err = http.NewRequest(method, endpoint, bytes.NewBuffer(jsonBody))
	} else {
		req, err = http.NewRequest(method, endpoint, nil)
	}
	assert.NoError(err)

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	server.router.ServeHTTP(w, req)

	return w
}

type fakeResult struct {
	response *searchdb.Response
	err      error
}

// fakeDB replays canned backend results in order.
type fakeDB struct {
	mu      sync.Mutex
	results []fakeResult
	calls   int
}

func (f *fakeDB) Search(ctx context.Context, query *searchdb.Query) (*searchdb.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
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

func fakePage(ids ...string) *searchdb.Response {
	response := &searchdb.Response{Hits: searchdb.HitsResult{Total: searchdb.HitsTotal{Value: int64(len(ids))}}}
	for _, id := range ids {
		response.Hits.Hits = append(response.Hits.Hits, searchdb.Hit{
			ID:     id,
			Source: map[string]any{searchdb.FieldRecordID: id, searchdb.FieldBody: "body of " + id},
			Sort:   []any{"1704844800", id},
		})
	}
	return response
}

func decodeJSON(assert *require.Assertions, data []byte) map[string]any {
	var decoded map[string]any
	assert.NoError(json.Unmarshal(data, &decoded), "response was %s", string(data))
	return decoded
}

func documentIDs(documents []any) []string {
	ids := make([]string, 0, len(documents))
	for _, document := range documents {
		ids = append(ids, document.(map[string]any)[searchdb.FieldRecordID].(string))
	}
	return ids
}
