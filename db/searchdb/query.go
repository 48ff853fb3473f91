package searchdb

import (
	"encoding/json"
	"fmt"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Query is the backend query document. It marshals to Elasticsearch request DSL.
type Query struct {
	Size           int                    `json:"size"`
	Sort           []SortField            `json:"sort,omitempty"`
	TrackTotalHits bool                   `json:"track_total_hits"`
	Query          Clause                 `json:"query"`
	PostFilter     *Clause                `json:"post_filter,omitempty"`
	Highlight      *Highlight             `json:"highlight,omitempty"`
	Aggregations   map[string]Aggregation `json:"aggs,omitempty"`
	SearchAfter    []any                  `json:"search_after,omitempty"`
}

type SortField struct {
	Field string
	Order SortOrder
}

func (s SortField) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]SortOrder{s.Field: s.Order})
}

func (s *SortField) UnmarshalJSON(data []byte) error {
	var raw map[string]SortOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("sort field must have exactly one key, got %d", len(raw))
	}
	for field, order := range raw {
		s.Field, s.Order = field, order
	}
	return nil
}

// Clause holds exactly one query clause.
type Clause struct {
	Bool        *BoolClause         `json:"bool,omitempty"`
	MatchPhrase map[string]string   `json:"match_phrase,omitempty"`
	Term        map[string]string   `json:"term,omitempty"`
	Terms       map[string][]string `json:"terms,omitempty"`
	Range       map[string]Range    `json:"range,omitempty"`
}

type BoolClause struct {
	Must               []Clause `json:"must,omitempty"`
	Should             []Clause `json:"should,omitempty"`
	MinimumShouldMatch *int     `json:"minimum_should_match,omitempty"`
}

// Range bounds are absolute instants expressed in the unit the date field is stored in.
type Range struct {
	GTE *int64 `json:"gte,omitempty"`
	LT  *int64 `json:"lt,omitempty"`
}

type Highlight struct {
	Type     string                    `json:"type,omitempty"`
	Fields   map[string]HighlightField `json:"fields"`
	PreTags  []string                  `json:"pre_tags,omitempty"`
	PostTags []string                  `json:"post_tags,omitempty"`
}

type HighlightField struct {
	FragmentSize      int    `json:"fragment_size,omitempty"`
	NumberOfFragments int    `json:"number_of_fragments,omitempty"`
	BoundaryScanner   string `json:"boundary_scanner,omitempty"`
}

type Aggregation struct {
	Terms TermsAggregation `json:"terms"`
}

type TermsAggregation struct {
	Field string `json:"field"`
	Size  int    `json:"size"`
}

func MatchPhrase(field string, text string) Clause {
	return Clause{MatchPhrase: map[string]string{field: text}}
}

func Term(field string, value string) Clause {
	return Clause{Term: map[string]string{field: value}}
}

func Terms(field string, values []string) Clause {
	return Clause{Terms: map[string][]string{field: values}}
}

func DateRange(field string, bounds Range) Clause {
	return Clause{Range: map[string]Range{field: bounds}}
}

// AnyOf matches when at least one of the clauses matches.
func AnyOf(clauses ...Clause) Clause {
	one := 1
	return Clause{Bool: &BoolClause{Should: clauses, MinimumShouldMatch: &one}}
}

// AllOf matches when every clause matches.
func AllOf(clauses ...Clause) Clause {
	return Clause{Bool: &BoolClause{Must: clauses}}
}

// IsEmpty reports whether the clause constrains nothing.
func (c Clause) IsEmpty() bool {
	if c.Bool != nil {
		return len(c.Bool.Must) == 0 && len(c.Bool.Should) == 0
	}
	return len(c.MatchPhrase) == 0 && len(c.Term) == 0 && len(c.Terms) == 0 && len(c.Range) == 0
}

// WithoutHighlight returns a copy of the query with the highlight clause stripped.
func (q *Query) WithoutHighlight() *Query {
	reduced := *q
	reduced.Highlight = nil
	return &reduced
}

// WithCursor returns a copy of the query resuming after the given sort tuple.
// A nil cursor starts from the beginning.
func (q *Query) WithCursor(cursor []any) *Query {
	resumed := *q
	if len(cursor) == 0 {
		resumed.SearchAfter = nil
	} else {
		resumed.SearchAfter = append([]any(nil), cursor...)
	}
	return &resumed
}
