package index

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meghashyamc/docsearch/db/kvdb"
)

type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

func (s *Service) discoverModifiedFiles(rootPath string, excludeFolders []string) ([]FileInfo, error) {
	var modifiedFiles []FileInfo
	excludeSet := make(map[string]struct{}, len(excludeFolders))
	for _, folder := range excludeFolders {
		excludeSet[filepath.Clean(folder)] = struct{}{}
	}

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.Error("could not walk through file or directory", "path", path, "err", err.Error())
			if errors.Is(err, os.ErrPermission) {
				return nil
			}
			return err
		}

		// Skip directories that start with '.' but not the root directory
		if info.IsDir() && strings.HasPrefix(info.Name(), ".") && path != rootPath {
			return filepath.SkipDir
		}

		if info.IsDir() && path != rootPath && isInExcludedPath(path, excludeSet) {
			return filepath.SkipDir
		}

		if info.IsDir() || strings.HasPrefix(info.Name(), ".") || !isRecordFile(path) {
			return nil
		}

		if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
			s.logger.Warn("skipping record file above the size limit", "path", path, "size", info.Size())
			return nil
		}

		fileModTime := info.ModTime()
		if s.shouldFileBeIndexed(path, fileModTime) {
			modifiedFiles = append(modifiedFiles, FileInfo{
				Path:    path,
				Name:    info.Name(),
				Size:    info.Size(),
				ModTime: fileModTime,
			})
		}

		return nil
	})

	return modifiedFiles, err
}

func (s *Service) shouldFileBeIndexed(path string, fileModTime time.Time) bool {

	metadata, err := s.getFileMetadata(path)
	if err != nil {
		// Anything unreadable is parsed again.
		if !errors.Is(err, kvdb.ErrNotFound) {
			s.logger.Error("failed to get file metadata", "path", path, "err", err.Error())
		}
		return true
	}

	return fileModTime.After(metadata.LastIndexed)
}

// isInExcludedPath matches a directory by its full path or by its name.
func isInExcludedPath(currentPath string, excludeSet map[string]struct{}) bool {

	if len(excludeSet) == 0 {
		return false
	}

	if _, ok := excludeSet[filepath.Clean(currentPath)]; ok {
		return true
	}
	_, ok := excludeSet[filepath.Base(currentPath)]
	return ok
}
