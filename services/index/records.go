package index

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/services/search"
)

const (
	extJSON   = ".json"
	extNDJSON = ".ndjson"

	maxNDJSONLineSize = 16 * 1024 * 1024
)

// parsedFile is the outcome of reading one record file.
type parsedFile struct {
	file    FileInfo
	records []searchdb.Record
	skipped int
}

func isRecordFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case extJSON, extNDJSON:
		return true
	}
	return false
}

// parseRecordFile reads a .json file holding one record or an array of records, or a .ndjson
// file holding one record per line. Records without a string ProphecyId are counted as skipped.
func parseRecordFile(fileInfo FileInfo) (*parsedFile, error) {
	file, err := os.Open(fileInfo.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var raw []map[string]any
	if strings.ToLower(filepath.Ext(fileInfo.Path)) == extNDJSON {
		raw, err = decodeNDJSON(file)
	} else {
		raw, err = decodeJSON(file)
	}
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", fileInfo.Path, err)
	}

	parsed := &parsedFile{file: fileInfo}
	for _, fields := range raw {
		record, ok := toRecord(fields)
		if !ok {
			parsed.skipped++
			continue
		}
		parsed.records = append(parsed.records, record)
	}
	return parsed, nil
}

func decodeJSON(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	if data[0] == '[' {
		var records []map[string]any
		if err := decoder.Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var record map[string]any
	if err := decoder.Decode(&record); err != nil {
		return nil, err
	}
	return []map[string]any{record}, nil
}

func decodeNDJSON(r io.Reader) ([]map[string]any, error) {
	var records []map[string]any

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxNDJSONLineSize)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		decoder := json.NewDecoder(bytes.NewReader(text))
		decoder.UseNumber()
		var record map[string]any
		if err := decoder.Decode(&record); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}
	return records, scanner.Err()
}

func toRecord(fields map[string]any) (searchdb.Record, bool) {
	id, ok := fields[searchdb.FieldRecordID].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return searchdb.Record{}, false
	}

	for key, value := range fields {
		fields[key] = plainNumbers(value)
	}

	// The parents-only filter matches the string form.
	if isAttachment, ok := search.ParseFlag(fields[searchdb.FieldIsAttachment]); ok {
		fields[searchdb.FieldIsAttachment] = "False"
		if isAttachment {
			fields[searchdb.FieldIsAttachment] = "True"
		}
	}

	return searchdb.Record{ID: id, Fields: fields}, true
}

// plainNumbers turns json.Number values into int64 or float64 so the index maps them as numbers.
func plainNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		for key, nested := range v {
			v[key] = plainNumbers(nested)
		}
		return v
	case []any:
		for i, nested := range v {
			v[i] = plainNumbers(nested)
		}
		return v
	default:
		return value
	}
}
