package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/meghashyamc/docsearch/db/kvdb"
	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/logger"
	"golang.org/x/sync/errgroup"
)

// Indexer represents the search database operations needed for ingestion.
type Indexer interface {
	BuildIndex(records []searchdb.Record) error
	DeleteDocuments(documentIDs []string) error
}

const (
	ProgressStatusStep1    = 10
	ProgressStatusStep2    = 20
	ProgressStatusParsed   = 60
	ProgressStatusComplete = 100
	ProgressStatusFailed   = -1

	defaultWorkers       = 8
	maxIndexBuildingTime = 2 * time.Hour
)

var ErrBuildInProgress = errors.New("indexing already in progress")

type Options struct {
	Workers     int
	MaxFileSize int64
}

type Service struct {
	logger        logger.Logger
	indexer       Indexer
	metadataStore MetadataStore
	workers       int
	maxFileSize   int64
	buildIndexC   chan indexRequest
}

type indexRequest struct {
	rootPath       string
	excludeFolders []string
	requestID      string
}

// Result summarises one ingestion run.
type Result struct {
	Files          int
	Records        int
	SkippedRecords int
	FailedFiles    int
	DeletedRecords int
}

// New returns a service whose background builder runs until ctx is done.
func New(ctx context.Context, logger logger.Logger, indexer Indexer, metadataStore MetadataStore, opts Options) *Service {
	indexService := newService(logger, indexer, metadataStore, opts)
	go indexService.build(ctx)
	return indexService
}

// NewSync returns a service without a background builder, for callers that use Run.
func NewSync(logger logger.Logger, indexer Indexer, metadataStore MetadataStore, opts Options) *Service {
	return newService(logger, indexer, metadataStore, opts)
}

func newService(logger logger.Logger, indexer Indexer, metadataStore MetadataStore, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Service{
		logger:        logger,
		indexer:       indexer,
		metadataStore: metadataStore,
		workers:       opts.Workers,
		maxFileSize:   opts.MaxFileSize,
		buildIndexC:   make(chan indexRequest),
	}
}

// Build hands the request to the background builder. Only one build runs at a time.
func (s *Service) Build(rootPath string, excludeFolders []string, requestID string) error {

	s.setRequestStatus(requestID, 0)

	select {
	case s.buildIndexC <- indexRequest{rootPath: rootPath, excludeFolders: excludeFolders, requestID: requestID}:
		return nil
	default:
		s.logger.Warn("request to index while indexing is already in progress", "request_id", requestID)
		if err := s.metadataStore.Delete(kvdb.RequestsBucket, requestID); err != nil {
			s.logger.Error("failed to forget rejected request", "request_id", requestID, "err", err.Error())
		}
		return ErrBuildInProgress
	}
}

// GetStatus retrieves the progress of an ingestion request: 0 to 100, or -1 on failure.
func (s *Service) GetStatus(requestID string) (int, error) {
	value, err := s.metadataStore.Get(kvdb.RequestsBucket, requestID)
	if err != nil {
		return 0, fmt.Errorf("request not found: %w", err)
	}

	status, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid status value: %w", err)
	}

	return status, nil
}

func (s *Service) build(ctx context.Context) {

	for {
		select {
		case req := <-s.buildIndexC:
			indexTimeoutCtx, cancel := context.WithTimeout(ctx, maxIndexBuildingTime)
			if _, err := s.Run(indexTimeoutCtx, req.rootPath, req.excludeFolders, req.requestID); err != nil {
				s.logger.Error("failed to build index", "request_id", req.requestID, "err", err.Error())
			}
			cancel()
		case <-ctx.Done():
			s.logger.Info("index service stopped", "reason", ctx.Err())
			return
		}
	}
}

// Run ingests every new or modified record file under rootPath and drops the records of
// files that no longer exist. Progress is recorded under requestID.
func (s *Service) Run(ctx context.Context, rootPath string, excludeFolders []string, requestID string) (*Result, error) {
	result, err := s.buildIndex(ctx, rootPath, excludeFolders, requestID)
	if err != nil {
		s.setRequestStatus(requestID, ProgressStatusFailed)
		return nil, err
	}
	s.setRequestStatus(requestID, ProgressStatusComplete)
	s.logger.Info("finished building index", "request_id", requestID, "files", result.Files, "records", result.Records,
		"skipped_records", result.SkippedRecords, "failed_files", result.FailedFiles, "deleted_records", result.DeletedRecords)
	return result, nil
}

func (s *Service) buildIndex(ctx context.Context, rootPath string, excludeFolders []string, requestID string) (*Result, error) {
	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}

	files, err := s.discoverModifiedFiles(rootPath, excludeFolders)
	if err != nil {
		return nil, fmt.Errorf("failed to discover record files: %w", err)
	}
	s.logger.Info("discovered modified record files", "request_id", requestID, "num_of_files", len(files))
	s.setRequestStatus(requestID, ProgressStatusStep1)

	result := &Result{Files: len(files)}

	deletedFiles, err := s.getDeletedFiles()
	if err != nil {
		return nil, err
	}
	deleted, err := s.removeDeletedFiles(deletedFiles)
	if err != nil {
		return nil, err
	}
	result.DeletedRecords += deleted
	s.setRequestStatus(requestID, ProgressStatusStep2)

	if len(files) == 0 {
		s.logger.Info("no record files to index", "request_id", requestID)
		return result, nil
	}

	parsed, err := s.parseFiles(ctx, files, requestID)
	if err != nil {
		return nil, err
	}
	s.setRequestStatus(requestID, ProgressStatusParsed)

	indexTime := time.Now().UTC()
	for i, file := range parsed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if file == nil {
			result.FailedFiles++
			continue
		}

		deleted, err := s.indexFile(file, indexTime)
		if err != nil {
			return nil, err
		}
		result.Records += len(file.records)
		result.SkippedRecords += file.skipped
		result.DeletedRecords += deleted

		s.setRequestStatus(requestID, getProgressPercentage(i+1, len(parsed), ProgressStatusParsed, ProgressStatusComplete))
	}

	return result, nil
}

// parseFiles reads the files with bounded parallelism. A file that cannot be parsed leaves a
// nil entry and is retried on the next run.
func (s *Service) parseFiles(ctx context.Context, files []FileInfo, requestID string) ([]*parsedFile, error) {
	parsed := make([]*parsedFile, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for i, file := range files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			result, err := parseRecordFile(file)
			if err != nil {
				s.logger.Error("error processing record file", "request_id", requestID, "path", file.Path, "err", err.Error())
				return nil
			}
			if result.skipped > 0 {
				s.logger.Warn("skipped records without a string ProphecyId", "path", file.Path, "skipped", result.skipped)
			}
			parsed[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("indexing cancelled: %w", err)
	}
	return parsed, nil
}

// indexFile writes the records of one file and removes the ones the file no longer holds.
func (s *Service) indexFile(file *parsedFile, indexTime time.Time) (int, error) {
	for start := 0; start < len(file.records); start += searchdb.IndexingBatchSize {
		end := min(start+searchdb.IndexingBatchSize, len(file.records))
		if err := s.indexer.BuildIndex(file.records[start:end]); err != nil {
			s.logger.Error("failed to index records", "path", file.file.Path, "err", err.Error())
			return 0, fmt.Errorf("failed to index records of %s: %w", file.file.Path, err)
		}
	}

	recordIDs := make([]string, 0, len(file.records))
	current := make(map[string]struct{}, len(file.records))
	for _, record := range file.records {
		recordIDs = append(recordIDs, record.ID)
		current[record.ID] = struct{}{}
	}

	var stale []string
	if previous, err := s.getFileMetadata(file.file.Path); err == nil {
		for _, id := range previous.RecordIDs {
			if _, ok := current[id]; !ok {
				stale = append(stale, id)
			}
		}
	}
	if len(stale) > 0 {
		if err := s.indexer.DeleteDocuments(stale); err != nil {
			s.logger.Error("failed to delete stale records", "path", file.file.Path, "err", err.Error())
			return 0, fmt.Errorf("failed to delete stale records of %s: %w", file.file.Path, err)
		}
	}

	if err := s.setFileMetadata(file.file.Path, kvdb.FileMetadata{LastIndexed: indexTime, RecordIDs: recordIDs}); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (s *Service) removeDeletedFiles(deletedFiles []string) (int, error) {
	if len(deletedFiles) == 0 {
		return 0, nil
	}
	s.logger.Info("removing records of deleted files from index", "deleted_files", len(deletedFiles))

	var recordIDs []string
	for _, filePath := range deletedFiles {
		metadata, err := s.getFileMetadata(filePath)
		if err != nil {
			continue
		}
		recordIDs = append(recordIDs, metadata.RecordIDs...)
	}

	if len(recordIDs) > 0 {
		if err := s.indexer.DeleteDocuments(recordIDs); err != nil {
			s.logger.Error("failed to delete documents from search index", "err", err.Error())
			return 0, fmt.Errorf("failed to delete documents from search index: %w", err)
		}
	}

	for _, filePath := range deletedFiles {
		if err := s.metadataStore.Delete(kvdb.FilesBucket, filePath); err != nil {
			s.logger.Error("failed to delete file metadata", "path", filePath, "err", err.Error())
		}
	}
	return len(recordIDs), nil
}

func (s *Service) setFileMetadata(filepath string, metadata kvdb.FileMetadata) error {
	if filepath == "" {
		s.logger.Error("filepath cannot be empty", "filepath", filepath)
		return fmt.Errorf("filepath cannot be empty")
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		s.logger.Error("failed to marshal metadata", "filepath", filepath, "err", err.Error())
		return fmt.Errorf("failed to marshal metadata for %s: %w", filepath, err)
	}

	if err := s.metadataStore.Set(kvdb.FilesBucket, filepath, string(data)); err != nil {
		s.logger.Error("failed to set file metadata", "filepath", filepath, "err", err.Error())
		return err
	}

	return nil
}

func (s *Service) getFileMetadata(filepath string) (*kvdb.FileMetadata, error) {

	value, err := s.metadataStore.Get(kvdb.FilesBucket, filepath)
	if err != nil {
		return nil, err
	}

	var metadata kvdb.FileMetadata
	if err := json.Unmarshal([]byte(value), &metadata); err != nil {
		s.logger.Error("failed to unmarshal metadata", "filepath", filepath, "err", err.Error())
		return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", filepath, err)
	}

	return &metadata, nil
}

func (s *Service) getDeletedFiles() ([]string, error) {
	allKeys, err := s.metadataStore.GetAllKeys(kvdb.FilesBucket)
	if err != nil {
		s.logger.Error("failed to get all keys from database", "err", err.Error())
		return nil, fmt.Errorf("failed to get all keys from database: %w", err)
	}

	var deletedFiles []string
	for _, key := range allKeys {
		if _, err := os.Stat(key); os.IsNotExist(err) {
			deletedFiles = append(deletedFiles, key)
		}
	}

	return deletedFiles, nil
}

func (s *Service) setRequestStatus(requestID string, status int) {
	if requestID == "" {
		return
	}
	if err := s.metadataStore.Set(kvdb.RequestsBucket, requestID, strconv.Itoa(status)); err != nil {
		s.logger.Error("failed to update request status", "request_id", requestID, "progress", status, "err", err.Error())
	}
}

func getProgressPercentage(done int, total int, initial int, final int) int {
	if done == 0 || total == 0 {
		return initial
	}

	if done >= total {
		return final
	}

	progress := float64(done) / float64(total)
	result := float64(initial) + progress*float64(final-initial)

	return int(result)

}
