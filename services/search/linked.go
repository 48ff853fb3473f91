package search

import (
	"context"
	"strings"

	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/metrics"
)

// maxAttachments caps the attachments returned for one parent record.
const maxAttachments = 1000

type LinkRequest struct {
	RecordID     string
	ParentID     string
	IsAttachment bool
}

// Linked returns the parent of an attachment, or the attachments of a parent record.
func (s *Service) Linked(ctx context.Context, req LinkRequest) ([]Document, error) {
	documents, err := s.linked(ctx, req)
	s.metrics.ObserveSearch(metrics.ModeLinked, outcomeOf(err))
	return documents, err
}

func (s *Service) linked(ctx context.Context, req LinkRequest) ([]Document, error) {
	var query *searchdb.Query
	if req.IsAttachment {
		parentID := strings.TrimSpace(req.ParentID)
		if parentID == "" {
			return nil, invalidRequest("parent id is required to look up the parent of an attachment")
		}
		query = s.builder.BuildLinked(searchdb.FieldRecordID, parentID, 1)
	} else {
		recordID := strings.TrimSpace(req.RecordID)
		if recordID == "" {
			return nil, invalidRequest("record id is required to look up attachments")
		}
		query = s.builder.BuildLinked(searchdb.FieldParentID, recordID, maxAttachments)
	}

	response, err := s.executor.Execute(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	return Normalize(response.Hits.Hits), nil
}
