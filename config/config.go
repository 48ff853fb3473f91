package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const keyEnv = "ENV"
const envLocal = "local"

const (
	BackendElasticsearch = "elasticsearch"
	BackendBleve         = "bleve"
)

const (
	defaultPort            = "8080"
	defaultBackendTimeout  = 12 * time.Second
	defaultElasticURL      = "http://localhost:9200"
	defaultElasticIndex    = "document_index"
	defaultPageSize        = 100
	defaultDateUnit        = "seconds"
	defaultLogLevel        = "info"
	defaultAllowedOrigins  = "*"
	defaultIngestWorkers   = 8
	defaultStoragePath     = "./.docsearch"
	defaultIndexPath       = "index.bleve"
	defaultKVDBPath        = "./.docsearch/kv.db"
	defaultMaxIngestFileMB = 64
)

type Config struct {
	config *viper.Viper
}

func Load(env string) (*Config, error) {

	if len(env) == 0 {
		if env = os.Getenv(keyEnv); len(env) == 0 {
			env = envLocal
		}
	}

	configPath, err := getConfigPath(env)

	viperConfig := viper.New()
	if err == nil {
		viperConfig.SetConfigFile(configPath)
		if err := viperConfig.ReadInConfig(); err != nil {
			slog.Warn(fmt.Sprintf("error reading config file, %s", err))
		}
	}
	viperConfig.AutomaticEnv()

	cfg := &Config{
		config: viperConfig,
	}

	return cfg, nil
}

// Set overrides a yaml key. Used by the CLI flags and tests.
func (c *Config) Set(key string, value any) {
	c.config.Set(key, value)
}

func (c *Config) GetPort() string {
	return c.getString("PORT", "server.port", defaultPort)
}

func (c *Config) GetAllowedOrigins() []string {
	origins := c.getString("ALLOWED_ORIGINS", "server.allowed_origins", defaultAllowedOrigins)

	var allowed []string
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	return allowed
}

func (c *Config) GetBackend() string {
	return strings.ToLower(c.getString("SEARCH_BACKEND", "backend.type", BackendElasticsearch))
}

func (c *Config) GetBackendTimeout() time.Duration {
	timeout := c.config.GetDuration("BACKEND_TIMEOUT")
	if timeout <= 0 {
		timeout = c.config.GetDuration("backend.timeout")
	}
	if timeout <= 0 {
		timeout = defaultBackendTimeout
	}

	return timeout
}

func (c *Config) GetElasticsearchURL() string {
	return c.getString("ELASTICSEARCH_URL", "elasticsearch.url", defaultElasticURL)
}

func (c *Config) GetElasticsearchIndex() string {
	return c.getString("ELASTICSEARCH_INDEX", "elasticsearch.index", defaultElasticIndex)
}

func (c *Config) GetElasticsearchUsername() string {
	return c.getString("ELASTICSEARCH_USERNAME", "elasticsearch.username", "")
}

func (c *Config) GetElasticsearchPassword() string {
	return c.getString("ELASTICSEARCH_PASSWORD", "elasticsearch.password", "")
}

func (c *Config) GetDefaultPageSize() int {
	return c.getInt("DEFAULT_PAGE_SIZE", "search.default_page_size", defaultPageSize)
}

// GetDateUnit returns the unit DocumentDate is stored in on the backend: "seconds" or "millis".
func (c *Config) GetDateUnit() string {
	return strings.ToLower(c.getString("DATE_UNIT", "search.date_unit", defaultDateUnit))
}

func (c *Config) GetLogLevel() string {
	return c.getString("LOG_LEVEL", "log.level", defaultLogLevel)
}

func (c *Config) GetIngestWorkers() int {
	return c.getInt("INGEST_WORKERS", "ingest.workers", defaultIngestWorkers)
}

func (c *Config) GetMaxIngestFileSize() int64 {
	return int64(c.getInt("MAX_INGEST_FILE_MB", "ingest.max_file_mb", defaultMaxIngestFileMB)) * 1024 * 1024
}

func (c *Config) GetKVDBPath() string {
	return c.getString("KVDB_PATH", "database.kvdb_path", defaultKVDBPath)
}

func (c *Config) GetIndexPath() string {
	return c.getString("INDEX_PATH", "database.index_path", defaultIndexPath)
}

func (c *Config) GetStoragePath() string {
	return c.getString("STORAGE_PATH", "database.storage_path", defaultStoragePath)
}

func (c *Config) getString(envKey string, yamlKey string, fallback string) string {
	value := c.config.GetString(envKey)
	if len(value) == 0 {
		value = c.config.GetString(yamlKey)
	}
	if len(value) == 0 {
		value = fallback
	}

	return value
}

func (c *Config) getInt(envKey string, yamlKey string, fallback int) int {
	value := c.config.GetInt(envKey)
	if value <= 0 {
		value = c.config.GetInt(yamlKey)
	}
	if value <= 0 {
		value = fallback
	}

	return value
}

func getProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	for {
		configDir := filepath.Join(currentDir, "config")
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			return currentDir, nil
		}

		parent := filepath.Dir(currentDir)

		if parent == currentDir {
			break
		}

		currentDir = parent
	}

	return "", fmt.Errorf("could not find project root (directory containing 'config' folder)")
}

func getConfigPath(env string) (string, error) {
	configFile := fmt.Sprintf("config.%s.yaml", env)

	projectRoot, err := getProjectRoot()
	if err != nil {
		slog.Warn("failed to find project root with config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	configPath := filepath.Join(projectRoot, "config", configFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Warn("failed to find config file within config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("config file does not exist: %s", configPath)
	}

	return configPath, nil
}
