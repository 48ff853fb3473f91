package searchdb

import (
	"context"
	"fmt"

	"github.com/meghashyamc/docsearch/config"
	"github.com/meghashyamc/docsearch/logger"
)

// DB executes backend query documents. Implementations must be safe for concurrent use by
// independent requests.
type DB interface {
	Search(ctx context.Context, query *Query) (*Response, error)
	Close() error
}

// New opens the backend selected by configuration.
func New(logger logger.Logger, cfg *config.Config) (DB, error) {
	switch backend := cfg.GetBackend(); backend {
	case config.BackendElasticsearch:
		db, err := NewElasticsearch(logger, ElasticsearchConfig{
			URL:      cfg.GetElasticsearchURL(),
			Index:    cfg.GetElasticsearchIndex(),
			Username: cfg.GetElasticsearchUsername(),
			Password: cfg.GetElasticsearchPassword(),
			Timeout:  cfg.GetBackendTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendBleve:
		db, err := NewBleve(logger, cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown search backend %q", backend)
	}
}

// Indexer is the write side of the embedded backend.
type Indexer interface {
	BuildIndex(records []Record) error
	DeleteDocuments(documentIDs []string) error
	GetDocCount() (uint64, error)
}

// Field names of the document index schema.
const (
	FieldBody         = "Text"
	FieldOriginalName = "OriginalName"
	FieldRecordID     = "ProphecyId"
	FieldParentID     = "ParentProphecyId"
	FieldIsAttachment = "IsAttachment"
	FieldAttachments  = "Attachments"
	FieldDocumentDate = "DocumentDate"
	FieldDocType      = "DocType"
	FieldBranch       = "Branch"
	FieldExtension    = "FileExtension"

	FieldDocID = "_id"

	KeywordSuffix = ".keyword"
)

// Keyword returns the untokenized variant of a field.
func Keyword(field string) string {
	if len(field) > len(KeywordSuffix) && field[len(field)-len(KeywordSuffix):] == KeywordSuffix {
		return field
	}
	return field + KeywordSuffix
}
