package searchdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/meghashyamc/docsearch/config"
	"github.com/meghashyamc/docsearch/logger"
)

const IndexingBatchSize = 100

// Fields indexed both analyzed (stored) and as an untokenized ".keyword" variant.
var keywordFields = []string{
	FieldOriginalName,
	FieldRecordID,
	FieldParentID,
	FieldIsAttachment,
	FieldDocType,
	FieldBranch,
	FieldExtension,
}

var keywordFieldSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(keywordFields))
	for _, field := range keywordFields {
		set[field] = struct{}{}
	}
	return set
}()

// BleveDB is an embedded backend that understands the same query documents as Elasticsearch.
type BleveDB struct {
	indexPath string
	logger    logger.Logger
	index     bleve.Index
	timeout   time.Duration
}

func NewBleve(logger logger.Logger, cfg *config.Config) (*BleveDB, error) {
	mapping := createIndexMapping()
	indexPath := filepath.Join(cfg.GetStoragePath(), cfg.GetIndexPath())
	index, err := bleve.New(indexPath, mapping)
	if err != nil {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Error("could not open index", "err", err.Error())
			return nil, err
		}
	}
	return &BleveDB{indexPath: indexPath, logger: logger, index: index, timeout: cfg.GetBackendTimeout()}, nil
}

// NewBleveMemOnly returns a backend over a fresh in-memory index.
func NewBleveMemOnly(logger logger.Logger) (*BleveDB, error) {
	index, err := bleve.NewMemOnly(createIndexMapping())
	if err != nil {
		logger.Error("could not create in-memory index", "err", err.Error())
		return nil, err
	}
	return &BleveDB{logger: logger, index: index}, nil
}

func createIndexMapping() mapping.IndexMapping {

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = keyword.Name
	docMapping := bleve.NewDocumentMapping()

	// Body - analyzed for phrase matching and highlighting
	bodyFieldMapping := bleve.NewTextFieldMapping()
	bodyFieldMapping.Analyzer = standard.Name
	bodyFieldMapping.Store = true
	bodyFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(FieldBody, bodyFieldMapping)

	for _, field := range keywordFields {
		storedFieldMapping := bleve.NewTextFieldMapping()
		storedFieldMapping.Analyzer = standard.Name
		storedFieldMapping.Store = true

		keywordFieldMapping := bleve.NewTextFieldMapping()
		keywordFieldMapping.Name = Keyword(field)
		keywordFieldMapping.Analyzer = keyword.Name
		keywordFieldMapping.Store = false
		keywordFieldMapping.DocValues = true

		docMapping.AddFieldMappingsAt(field, storedFieldMapping, keywordFieldMapping)
	}

	dateFieldMapping := bleve.NewNumericFieldMapping()
	dateFieldMapping.Store = true
	dateFieldMapping.DocValues = true
	docMapping.AddFieldMappingsAt(FieldDocumentDate, dateFieldMapping)

	attachmentsFieldMapping := bleve.NewTextFieldMapping()
	attachmentsFieldMapping.Analyzer = standard.Name
	attachmentsFieldMapping.Store = true
	docMapping.AddFieldMappingsAt(FieldAttachments, attachmentsFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

func (b *BleveDB) BuildIndex(records []Record) error {

	batch := b.index.NewBatch()

	for i, record := range records {

		if err := batch.Index(record.ID, record.Fields); err != nil {
			b.logger.Error("could not index record", "id", record.ID, "err", err.Error())
			return err
		}

		// Execute batch when it reaches the batch size
		if (i+1)%IndexingBatchSize == 0 {
			if err := b.index.Batch(batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			b.logger.Error("could not index records", "err", err.Error())
			return err
		}
	}

	return nil
}

func (b *BleveDB) DeleteDocuments(documentIDs []string) error {
	batch := b.index.NewBatch()

	for i, docID := range documentIDs {
		batch.Delete(docID)

		if (i+1)%IndexingBatchSize == 0 {
			if err := b.index.Batch(batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			b.logger.Error("could not delete documents", "err", err.Error())
			return err
		}
	}

	return nil
}

func (b *BleveDB) GetDocCount() (uint64, error) {
	return b.index.DocCount()
}

func (b *BleveDB) Close() error {

	if b.index != nil {
		if err := b.index.Close(); err != nil {
			b.logger.Error("could not close search index", "err", err.Error())
			return err
		}
	}
	return nil
}

func (b *BleveDB) Search(ctx context.Context, q *Query) (*Response, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	mainQuery, err := translateClause(q.Query)
	if err != nil {
		return nil, err
	}

	hitsQuery := mainQuery
	hasPostFilter := q.PostFilter != nil && !q.PostFilter.IsEmpty()
	if hasPostFilter {
		postFilter, err := translateClause(*q.PostFilter)
		if err != nil {
			return nil, err
		}
		hitsQuery = bleve.NewConjunctionQuery(mainQuery, postFilter)
	}

	searchRequest := bleve.NewSearchRequestOptions(hitsQuery, q.Size, 0, false)
	searchRequest.Fields = []string{"*"}

	sortOrder, err := translateSort(q.Sort)
	if err != nil {
		return nil, err
	}
	if len(sortOrder) > 0 {
		searchRequest.SortBy(sortOrder)
	}

	if len(q.SearchAfter) > 0 {
		searchAfter, err := translateCursor(q.SearchAfter, len(sortOrder))
		if err != nil {
			return nil, err
		}
		searchRequest.SearchAfter = searchAfter
	}

	if q.Highlight != nil {
		searchRequest.Highlight = bleve.NewHighlightWithStyle(html.Name)
		for _, field := range sortedKeys(q.Highlight.Fields) {
			searchRequest.Highlight.AddField(field)
		}
	}

	// Facets must not see the post filter.
	if !hasPostFilter {
		addFacets(searchRequest, q.Aggregations)
	}

	searchResult, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, b.searchError(ctx, err)
	}

	facets := searchResult.Facets
	if hasPostFilter && len(q.Aggregations) > 0 {
		facetRequest := bleve.NewSearchRequestOptions(mainQuery, 0, 0, false)
		addFacets(facetRequest, q.Aggregations)
		facetResult, err := b.index.SearchInContext(ctx, facetRequest)
		if err != nil {
			return nil, b.searchError(ctx, err)
		}
		facets = facetResult.Facets
	}

	response := &Response{
		Hits: HitsResult{
			Total: HitsTotal{Value: int64(searchResult.Total), Relation: "eq"},
			Hits:  make([]Hit, 0, len(searchResult.Hits)),
		},
	}

	for _, match := range searchResult.Hits {
		response.Hits.Hits = append(response.Hits.Hits, toHit(match, q.Highlight != nil))
	}

	if len(q.Aggregations) > 0 {
		response.Aggregations = toAggregations(facets)
	}

	return response, nil
}

func (b *BleveDB) searchError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() == context.DeadlineExceeded {
			return &UnavailableError{Err: err}
		}
		return err
	}
	b.logger.Error("search failed", "err", err.Error())
	return &RejectionError{StatusCode: 400, Excerpt: err.Error()}
}

func translateClause(clause Clause) (query.Query, error) {
	switch {
	case clause.Bool != nil:
		return translateBool(clause.Bool)

	case len(clause.MatchPhrase) > 0:
		field, text := singleEntry(clause.MatchPhrase)
		phraseQuery := bleve.NewMatchPhraseQuery(text)
		phraseQuery.SetField(field)
		return phraseQuery, nil

	case len(clause.Term) > 0:
		field, value := singleEntry(clause.Term)
		termQuery := bleve.NewTermQuery(value)
		termQuery.SetField(exactField(field))
		return termQuery, nil

	case len(clause.Terms) > 0:
		field, values := singleEntry(clause.Terms)
		if len(values) == 0 {
			return bleve.NewMatchNoneQuery(), nil
		}
		disjunction := bleve.NewDisjunctionQuery()
		for _, value := range values {
			termQuery := bleve.NewTermQuery(value)
			termQuery.SetField(exactField(field))
			disjunction.AddQuery(termQuery)
		}
		return disjunction, nil

	case len(clause.Range) > 0:
		field, bounds := singleEntry(clause.Range)
		var min, max *float64
		if bounds.GTE != nil {
			value := float64(*bounds.GTE)
			min = &value
		}
		if bounds.LT != nil {
			value := float64(*bounds.LT)
			max = &value
		}
		inclusiveMin, inclusiveMax := true, false
		rangeQuery := bleve.NewNumericRangeInclusiveQuery(min, max, &inclusiveMin, &inclusiveMax)
		rangeQuery.SetField(field)
		return rangeQuery, nil
	}

	return bleve.NewMatchAllQuery(), nil
}

// exactField maps a ".keyword" name onto the field that holds untokenized values. Fields
// outside the schema are indexed dynamically with the keyword analyzer, so they have no
// separate variant.
func exactField(field string) string {
	base := strings.TrimSuffix(field, KeywordSuffix)
	if base == field {
		return field
	}
	if _, ok := keywordFieldSet[base]; ok {
		return field
	}
	return base
}

func translateBool(clause *BoolClause) (query.Query, error) {
	if len(clause.Must) == 0 && len(clause.Should) == 0 {
		return bleve.NewMatchAllQuery(), nil
	}

	booleanQuery := bleve.NewBooleanQuery()
	for _, must := range clause.Must {
		translated, err := translateClause(must)
		if err != nil {
			return nil, err
		}
		booleanQuery.AddMust(translated)
	}
	for _, should := range clause.Should {
		translated, err := translateClause(should)
		if err != nil {
			return nil, err
		}
		booleanQuery.AddShould(translated)
	}
	if len(clause.Should) > 0 {
		minShould := 1
		if clause.MinimumShouldMatch != nil {
			minShould = *clause.MinimumShouldMatch
		}
		booleanQuery.SetMinShould(float64(minShould))
	}

	return booleanQuery, nil
}

func translateSort(fields []SortField) ([]string, error) {
	sortOrder := make([]string, 0, len(fields))
	for _, field := range fields {
		switch field.Order {
		case SortDesc:
			sortOrder = append(sortOrder, "-"+field.Field)
		case SortAsc, "":
			sortOrder = append(sortOrder, field.Field)
		default:
			return nil, fmt.Errorf("unsupported sort order %q", field.Order)
		}
	}
	return sortOrder, nil
}

// Bleve sort values are strings; anything else did not come from this backend.
func translateCursor(cursor []any, sortFields int) ([]string, error) {
	if len(cursor) != sortFields {
		return nil, fmt.Errorf("%w: expected %d sort values, got %d", ErrInvalidCursor, sortFields, len(cursor))
	}
	searchAfter := make([]string, len(cursor))
	for i, value := range cursor {
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: sort value %d is not a string", ErrInvalidCursor, i)
		}
		searchAfter[i] = text
	}
	return searchAfter, nil
}

func addFacets(searchRequest *bleve.SearchRequest, aggregations map[string]Aggregation) {
	for _, name := range sortedKeys(aggregations) {
		aggregation := aggregations[name]
		searchRequest.AddFacet(name, bleve.NewFacetRequest(aggregation.Terms.Field, aggregation.Terms.Size))
	}
}

func toHit(match *search.DocumentMatch, highlighted bool) Hit {
	hit := Hit{
		ID:     match.ID,
		Source: make(map[string]any, len(match.Fields)),
		Sort:   make([]any, len(match.Sort)),
	}
	for field, value := range match.Fields {
		hit.Source[field] = value
	}
	for i, value := range match.Sort {
		hit.Sort[i] = value
	}
	if highlighted && len(match.Fragments) > 0 {
		hit.Highlight = make(map[string][]string, len(match.Fragments))
		for field, fragments := range match.Fragments {
			hit.Highlight[field] = fragments
		}
	}
	return hit
}

func toAggregations(facets search.FacetResults) map[string]AggregationResult {
	aggregations := make(map[string]AggregationResult, len(facets))
	for name, facet := range facets {
		result := AggregationResult{Buckets: []Bucket{}}
		if facet.Terms != nil {
			for _, term := range facet.Terms.Terms() {
				count := int64(term.Count)
				result.Buckets = append(result.Buckets, Bucket{Key: term.Term, DocCount: &count})
			}
		}
		aggregations[name] = result
	}
	return aggregations
}

func singleEntry[V any](entries map[string]V) (string, V) {
	keys := sortedKeys(entries)
	return keys[0], entries[keys[0]]
}

func sortedKeys[V any](entries map[string]V) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ DB      = (*BleveDB)(nil)
	_ Indexer = (*BleveDB)(nil)
	_ DB      = (*ElasticsearchDB)(nil)
)
