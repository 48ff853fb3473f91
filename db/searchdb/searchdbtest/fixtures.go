// Package searchdbtest builds deterministic fixture indexes for tests.
package searchdbtest

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/stretchr/testify/require"
)

// BaseDate is the newest DocumentDate in the fixture.
var BaseDate = time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)

var (
	docTypes   = []string{"email", "report", "memo"}
	branches   = []string{"north", "south"}
	extensions = []string{".pdf", ".docx", ".txt", ".msg"}
)

// Records returns n records. Every fifth record starts a new hour, so groups of five share a
// DocumentDate and ordering inside a group depends on the id tie-breaker. Every fourth record
// is an attachment of the record before it.
func Records(n int) []searchdb.Record {
	records := make([]searchdb.Record, 0, n)
	for i := range n {
		id := RecordID(i)
		fields := map[string]any{
			searchdb.FieldRecordID:     id,
			searchdb.FieldBody:         fmt.Sprintf("Record %d of the quarterly budget review. It mentions the harbour project in passing and continues with enough filler text to exceed one hundred characters.", i),
			searchdb.FieldOriginalName: fmt.Sprintf("file-%04d%s", i, extensions[i%len(extensions)]),
			searchdb.FieldDocumentDate: BaseDate.Add(-time.Duration(i/5) * time.Hour).Unix(),
			searchdb.FieldDocType:      docTypes[i%len(docTypes)],
			searchdb.FieldBranch:       branches[i%len(branches)],
			searchdb.FieldExtension:    extensions[i%len(extensions)],
			"Author":                   fmt.Sprintf("author-%d", i%7),
		}
		if i%4 == 3 {
			fields[searchdb.FieldIsAttachment] = "True"
			fields[searchdb.FieldParentID] = RecordID(i - 1)
		} else {
			fields[searchdb.FieldIsAttachment] = "False"
			if i%4 == 2 {
				fields[searchdb.FieldAttachments] = "a.pdf, b.docx@@@@c.txt,"
			}
		}
		records = append(records, searchdb.Record{ID: id, Fields: fields})
	}
	return records
}

func RecordID(i int) string {
	return fmt.Sprintf("rec-%04d", i)
}

// SortedIDs returns the ids of the records in DocumentDate descending, id ascending order.
func SortedIDs(records []searchdb.Record) []string {
	sorted := append([]searchdb.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di := sorted[i].Fields[searchdb.FieldDocumentDate].(int64)
		dj := sorted[j].Fields[searchdb.FieldDocumentDate].(int64)
		if di != dj {
			return di > dj
		}
		return sorted[i].ID < sorted[j].ID
	})

	ids := make([]string, len(sorted))
	for i, record := range sorted {
		ids[i] = record.ID
	}
	return ids
}

// NewIndex returns an in-memory bleve backend loaded with the records.
func NewIndex(t testing.TB, logger logger.Logger, records []searchdb.Record) *searchdb.BleveDB {
	t.Helper()
	assert := require.New(t)

	db, err := searchdb.NewBleveMemOnly(logger)
	assert.NoError(err, "could not create in-memory index")
	assert.NoError(db.BuildIndex(records), "could not index fixture records")

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
