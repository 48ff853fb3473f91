package search

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/meghashyamc/docsearch/db/searchdb"
)

type DateUnit string

const (
	DateUnitSeconds DateUnit = "seconds"
	DateUnitMillis  DateUnit = "millis"
)

const dateLayout = "2006-01-02"

// Aggregation names as they appear in the backend response.
const (
	AggregationDocType   = "doctype_counts"
	AggregationBranch    = "branchtype_counts"
	AggregationExtension = "extensiontype_counts"
)

const (
	facetSize = 100

	highlightFragmentSize = 250
	highlightFragments    = 5
	HighlightPreTag       = "<mark>"
	HighlightPostTag      = "</mark>"
)

// facetFields are filtered through post_filter so that their counts ignore their own selection.
var facetFields = map[string]string{
	searchdb.FieldDocType:   AggregationDocType,
	searchdb.FieldBranch:    AggregationBranch,
	searchdb.FieldExtension: AggregationExtension,
}

// termFields are matched exactly for every search term, next to the phrase match on the body.
var termFields = []string{
	searchdb.FieldOriginalName,
	searchdb.FieldRecordID,
	searchdb.FieldParentID,
}

// QueryBuilder turns search requests into backend query documents. It performs no I/O and
// the same request always yields the same query.
type QueryBuilder struct {
	dateUnit DateUnit
}

func NewQueryBuilder(dateUnit DateUnit) (*QueryBuilder, error) {
	switch dateUnit {
	case "":
		dateUnit = DateUnitSeconds
	case DateUnitSeconds, DateUnitMillis:
	default:
		return nil, fmt.Errorf("unsupported date unit %q", dateUnit)
	}
	return &QueryBuilder{dateUnit: dateUnit}, nil
}

func (b *QueryBuilder) Build(req Request) (*searchdb.Query, error) {
	must, err := b.termClauses(req)
	if err != nil {
		return nil, err
	}

	filters := req.filters()
	var postFilters []searchdb.Clause
	for _, field := range sortedKeys(filters) {
		clause := searchdb.Terms(searchdb.Keyword(field), filters[field])
		if isFacetField(field) {
			postFilters = append(postFilters, clause)
			continue
		}
		must = append(must, clause)
	}

	dateClause, err := b.dateClause(req.DateRange)
	if err != nil {
		return nil, err
	}
	if dateClause != nil {
		must = append(must, *dateClause)
	}

	if req.ParentsOnly {
		must = append(must, searchdb.Term(searchdb.Keyword(searchdb.FieldIsAttachment), "False"))
	}

	query := b.baseQuery(req.size())
	query.Query = searchdb.AllOf(must...)
	query.Aggregations = facetAggregations()
	if len(postFilters) > 0 {
		postFilter := searchdb.AllOf(postFilters...)
		query.PostFilter = &postFilter
	}
	return query, nil
}

// BuildLinked returns the query for the records linked to one record: its parent when it is
// an attachment, its attachments otherwise.
func (b *QueryBuilder) BuildLinked(field string, id string, size int) *searchdb.Query {
	query := b.baseQuery(size)
	query.Query = searchdb.AllOf(searchdb.Term(searchdb.Keyword(field), id))
	return query
}

func (b *QueryBuilder) baseQuery(size int) *searchdb.Query {
	return &searchdb.Query{
		Size: size,
		Sort: []searchdb.SortField{
			{Field: searchdb.FieldDocumentDate, Order: searchdb.SortDesc},
			{Field: searchdb.FieldDocID, Order: searchdb.SortAsc},
		},
		TrackTotalHits: true,
		Highlight:      bodyHighlight(),
	}
}

// termClauses returns one clause per term under ALL and a single disjunction under ANY.
func (b *QueryBuilder) termClauses(req Request) ([]searchdb.Clause, error) {
	mode := req.matchMode()
	if mode != MatchAny && mode != MatchAll {
		return nil, invalidRequest("unknown match mode %q", req.MatchMode)
	}

	terms := req.terms()
	if len(terms) == 0 {
		return nil, nil
	}

	perTerm := make([]searchdb.Clause, 0, len(terms))
	for _, term := range terms {
		alternatives := []searchdb.Clause{searchdb.MatchPhrase(searchdb.FieldBody, term)}
		for _, field := range termFields {
			alternatives = append(alternatives, searchdb.Term(searchdb.Keyword(field), term))
		}
		perTerm = append(perTerm, searchdb.AnyOf(alternatives...))
	}

	if mode == MatchAll {
		return perTerm, nil
	}
	return []searchdb.Clause{searchdb.AnyOf(perTerm...)}, nil
}

// dateClause covers whole UTC days: from midnight of the first day up to, but excluding,
// midnight after the last one.
func (b *QueryBuilder) dateClause(dates DateRange) (*searchdb.Clause, error) {
	var bounds searchdb.Range

	if from := strings.TrimSpace(dates.From); from != "" {
		day, err := parseDay(from)
		if err != nil {
			return nil, err
		}
		gte := b.instant(day)
		bounds.GTE = &gte
	}
	if to := strings.TrimSpace(dates.To); to != "" {
		day, err := parseDay(to)
		if err != nil {
			return nil, err
		}
		lt := b.instant(day.AddDate(0, 0, 1))
		bounds.LT = &lt
	}

	if bounds.GTE == nil && bounds.LT == nil {
		return nil, nil
	}
	if bounds.GTE != nil && bounds.LT != nil && *bounds.GTE >= *bounds.LT {
		return nil, invalidRequest("date range starts after it ends")
	}

	clause := searchdb.DateRange(searchdb.FieldDocumentDate, bounds)
	return &clause, nil
}

func (b *QueryBuilder) instant(t time.Time) int64 {
	if b.dateUnit == DateUnitMillis {
		return t.UnixMilli()
	}
	return t.Unix()
}

func parseDay(value string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, invalidRequest("date %q is not in YYYY-MM-DD form", value)
	}
	return day, nil
}

func bodyHighlight() *searchdb.Highlight {
	return &searchdb.Highlight{
		Type: "unified",
		Fields: map[string]searchdb.HighlightField{
			searchdb.FieldBody: {
				FragmentSize:      highlightFragmentSize,
				NumberOfFragments: highlightFragments,
				BoundaryScanner:   "sentence",
			},
		},
		PreTags:  []string{HighlightPreTag},
		PostTags: []string{HighlightPostTag},
	}
}

func facetAggregations() map[string]searchdb.Aggregation {
	aggregations := make(map[string]searchdb.Aggregation, len(facetFields))
	for field, name := range facetFields {
		aggregations[name] = searchdb.Aggregation{
			Terms: searchdb.TermsAggregation{Field: searchdb.Keyword(field), Size: facetSize},
		}
	}
	return aggregations
}

func isFacetField(field string) bool {
	_, ok := facetFields[strings.TrimSuffix(field, searchdb.KeywordSuffix)]
	return ok
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
