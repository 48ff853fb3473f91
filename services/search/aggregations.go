package search

import (
	"encoding/json"
	"fmt"

	"github.com/meghashyamc/docsearch/db/searchdb"
)

// Aggregations holds the facet counts. The maps are never nil so they encode as {}.
type Aggregations struct {
	DocType   map[string]int64 `json:"doctype_counts"`
	Branch    map[string]int64 `json:"branchtype_counts"`
	Extension map[string]int64 `json:"extensiontype_counts"`
}

func emptyAggregations() Aggregations {
	return Aggregations{
		DocType:   map[string]int64{},
		Branch:    map[string]int64{},
		Extension: map[string]int64{},
	}
}

// ExtractAggregations copies the facet buckets of a response. An absent block gives empty maps.
func ExtractAggregations(results map[string]searchdb.AggregationResult) Aggregations {
	aggregations := emptyAggregations()
	copyBuckets(aggregations.DocType, results[AggregationDocType])
	copyBuckets(aggregations.Branch, results[AggregationBranch])
	copyBuckets(aggregations.Extension, results[AggregationExtension])
	return aggregations
}

func copyBuckets(counts map[string]int64, result searchdb.AggregationResult) {
	for _, bucket := range result.Buckets {
		if bucket.Key == nil || bucket.DocCount == nil {
			continue
		}
		counts[bucketKey(bucket.Key)] = *bucket.DocCount
	}
}

func bucketKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case json.Number:
		return k.String()
	default:
		return fmt.Sprint(k)
	}
}
