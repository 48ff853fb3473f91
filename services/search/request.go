package search

import (
	"encoding/json"
	"strings"
)

type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

const DefaultPageSize = 100

// DateRange bounds are calendar days in YYYY-MM-DD form; both are inclusive and either may be empty.
type DateRange struct {
	From string
	To   string
}

func (d DateRange) IsEmpty() bool {
	return strings.TrimSpace(d.From) == "" && strings.TrimSpace(d.To) == ""
}

// Cursor is the sort tuple of the last hit of a page, handed back verbatim to resume after it.
// It is only meaningful for the request it came from.
type Cursor []any

type Request struct {
	Terms       []string
	MatchMode   MatchMode
	Filters     map[string][]string
	DateRange   DateRange
	ParentsOnly bool
	Size        int
	Cursor      Cursor
}

// IsEmpty reports whether the request carries no terms, filter values or date bounds.
// Such a request is answered without contacting the backend.
func (r Request) IsEmpty() bool {
	return len(r.terms()) == 0 && len(r.filters()) == 0 && r.DateRange.IsEmpty()
}

func (r Request) terms() []string {
	var terms []string
	for _, term := range r.Terms {
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func (r Request) filters() map[string][]string {
	filters := make(map[string][]string, len(r.Filters))
	for field, values := range r.Filters {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		var kept []string
		for _, value := range values {
			if value != "" {
				kept = append(kept, value)
			}
		}
		if len(kept) > 0 {
			filters[field] = append(filters[field], kept...)
		}
	}
	return filters
}

func (r Request) matchMode() MatchMode {
	if r.MatchMode == "" {
		return MatchAny
	}
	return MatchMode(strings.ToLower(string(r.MatchMode)))
}

func (r Request) size() int {
	if r.Size <= 0 {
		return DefaultPageSize
	}
	return r.Size
}

// cursorLength matches the number of sort fields of every search query.
const cursorLength = 2

func (c Cursor) validate() error {
	if len(c) == 0 {
		return nil
	}
	if len(c) != cursorLength {
		return invalidRequest("cursor must hold %d sort values, got %d", cursorLength, len(c))
	}
	for i, value := range c {
		switch value.(type) {
		case string, json.Number, float64, int, int64:
		default:
			return invalidRequest("cursor value %d has unsupported type %T", i, value)
		}
	}
	return nil
}
