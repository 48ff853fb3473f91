package search

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/meghashyamc/docsearch/db/searchdb"
)

// Document is one client-facing hit: the indexed fields plus the derived ones.
type Document map[string]any

// Derived fields added to every document.
const (
	FieldHighlightedText = "highlighted_text"
	FieldAttachmentCount = "a_count"
)

const maxBodyLength = 100

var attachmentDelimiters = regexp.MustCompile(`,|@@@@`)

// Normalize reshapes one page of hits. Missing or mistyped fields fall back to empty values.
func Normalize(hits []searchdb.Hit) []Document {
	documents := make([]Document, 0, len(hits))
	for _, hit := range hits {
		documents = append(documents, normalizeHit(hit))
	}
	return documents
}

func normalizeHit(hit searchdb.Hit) Document {
	document := make(Document, len(hit.Source)+2)
	for key, value := range hit.Source {
		document[key] = value
	}

	body, _ := document[searchdb.FieldBody].(string)
	body = truncate(body, maxBodyLength)
	if _, ok := document[searchdb.FieldBody].(string); ok {
		document[searchdb.FieldBody] = body
	}

	document[FieldHighlightedText] = body
	if fragments := hit.Highlight[searchdb.FieldBody]; len(fragments) > 0 {
		document[FieldHighlightedText] = fragments[0]
	}

	if isAttachment, ok := ParseFlag(document[searchdb.FieldIsAttachment]); ok && !isAttachment {
		attachments, _ := document[searchdb.FieldAttachments].(string)
		document[FieldAttachmentCount] = CountAttachments(attachments)
	}

	return document
}

// CountAttachments counts the non-blank entries of a comma or @@@@ separated list.
func CountAttachments(value string) int {
	if value == "" {
		return 0
	}
	count := 0
	for _, segment := range attachmentDelimiters.Split(value, -1) {
		if strings.TrimSpace(segment) != "" {
			count++
		}
	}
	return count
}

// ParseFlag reads a boolean that may be stored as a bool, "True"/"False" in any case, or 0/1.
// ok is false when the value is missing or unrecognised.
func ParseFlag(value any) (flag bool, ok bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
	case json.Number:
		return ParseFlag(v.String())
	case float64:
		return flagFromNumber(v)
	case int:
		return flagFromNumber(float64(v))
	case int64:
		return flagFromNumber(float64(v))
	}
	return false, false
}

func flagFromNumber(n float64) (bool, bool) {
	switch n {
	case 0:
		return false, true
	case 1:
		return true, true
	}
	return false, false
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
