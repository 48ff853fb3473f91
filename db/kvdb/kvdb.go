package kvdb

// Buckets of the ingestion state store.
const (
	// FilesBucket maps an absolute file path to its FileMetadata.
	FilesBucket = "files"
	// RequestsBucket maps an ingestion request id to its progress.
	RequestsBucket = "requests"
)

var buckets = []string{FilesBucket, RequestsBucket}

type DB interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
	Close() error
}
