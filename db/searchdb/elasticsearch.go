package searchdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/meghashyamc/docsearch/logger"
	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

type ElasticsearchConfig struct {
	URL      string
	Index    string
	Username string
	Password string
	Timeout  time.Duration
}

// ElasticsearchDB talks to an Elasticsearch compatible cluster over HTTP.
type ElasticsearchDB struct {
	client  *opensearch.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
}

func NewElasticsearch(logger logger.Logger, cfg ElasticsearchConfig) (*ElasticsearchDB, error) {
	if cfg.URL == "" {
		return nil, errors.New("elasticsearch url cannot be empty")
	}
	if cfg.Index == "" {
		return nil, errors.New("elasticsearch index cannot be empty")
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		// The only retry allowed is the highlight fallback, which the caller owns.
		DisableRetry: true,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: cfg.Timeout}).DialContext,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
		},
	})
	if err != nil {
		logger.Error("could not create elasticsearch client", "err", err.Error())
		return nil, fmt.Errorf("could not create elasticsearch client: %w", err)
	}

	return &ElasticsearchDB{client: client, index: cfg.Index, timeout: cfg.Timeout, logger: logger}, nil
}

func (e *ElasticsearchDB) Search(ctx context.Context, query *Query) (*Response, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("could not marshal search query: %w", err)
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	request := opensearchapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}

	res, err := request.Do(callCtx, e.client)
	if err != nil {
		// The caller going away is not a backend failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Error("elasticsearch request failed", "index", e.index, "err", err.Error())
		return nil, &UnavailableError{Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		responseBody, readErr := io.ReadAll(io.LimitReader(res.Body, 64*1024))
		if readErr != nil {
			e.logger.Warn("could not read elasticsearch error body", "err", readErr.Error())
		}
		rejection := newRejectionError(res.StatusCode, responseBody)
		e.logger.Warn("elasticsearch rejected search", "status", res.StatusCode, "highlight", rejection.Highlight)
		return nil, rejection
	}

	response, err := DecodeResponse(res.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if callCtx.Err() != nil {
			return nil, &UnavailableError{Err: callCtx.Err()}
		}
		e.logger.Error("could not decode elasticsearch response", "err", err.Error())
		return nil, err
	}

	return response, nil
}

func (e *ElasticsearchDB) Close() error {
	return nil
}

func isHighlightRejection(statusCode int, body []byte) bool {
	if statusCode != http.StatusBadRequest {
		return false
	}
	lowered := bytes.ToLower(body)
	return bytes.Contains(lowered, []byte("highlight")) || bytes.Contains(lowered, []byte("max_analyzed_offset"))
}
