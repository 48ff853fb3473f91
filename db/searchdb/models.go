package searchdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Record is one document handed to the embedded index.
type Record struct {
	ID     string
	Fields map[string]any
}

type Response struct {
	Hits         HitsResult                   `json:"hits"`
	Aggregations map[string]AggregationResult `json:"aggregations,omitempty"`
}

type HitsResult struct {
	Total HitsTotal `json:"total"`
	Hits  []Hit     `json:"hits"`
}

type HitsTotal struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation,omitempty"`
}

// UnmarshalJSON accepts both the object form and the legacy bare integer form of hits.total.
func (t *HitsTotal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '{' {
		var value int64
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("invalid hits total: %w", err)
		}
		t.Value, t.Relation = value, "eq"
		return nil
	}

	type plain HitsTotal
	var total plain
	if err := json.Unmarshal(data, &total); err != nil {
		return err
	}
	*t = HitsTotal(total)
	return nil
}

type Hit struct {
	ID        string              `json:"_id"`
	Source    map[string]any      `json:"_source"`
	Highlight map[string][]string `json:"highlight,omitempty"`
	Sort      []any               `json:"sort,omitempty"`
}

type AggregationResult struct {
	Buckets []Bucket `json:"buckets"`
}

// Bucket fields are pointers so that a missing key or count can be told apart from a zero value.
type Bucket struct {
	Key      any    `json:"key"`
	DocCount *int64 `json:"doc_count"`
}

// DecodeResponse reads a backend response keeping numbers as json.Number so that
// identifiers and sort values survive the round trip unchanged.
func DecodeResponse(r io.Reader) (*Response, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var response Response
	if err := decoder.Decode(&response); err != nil {
		return nil, fmt.Errorf("could not decode search response: %w", err)
	}
	return &response, nil
}
