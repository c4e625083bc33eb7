package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/hr-qa/backend/pkg/errors"
)

const envPrefix = "HRQA"

type Config struct {
	Server        ServerConfig
	MongoDB       MongoDBConfig
	Elasticsearch ElasticsearchConfig
	Milvus        MilvusConfig
	Redis         RedisConfig
	SQLite        SQLiteConfig
	LLM           LLMConfig
	Retrieval     RetrievalConfig
	Engine        EngineConfig
	Cache         CacheConfig
	RateLimit     RateLimitConfig
	Validation    ValidationConfig
	Logging       LoggingConfig
	LoadTest      LoadTestConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Environment    string
}

type MongoDBConfig struct {
	URI               string
	Database          string
	ConnectTimeoutSec int
	QueryTimeoutSec   int
	MaxPoolSize       uint64
}

type ElasticsearchConfig struct {
	Addresses   []string
	Username    string
	Password    string
	Index       string
	VectorField string
	TimeoutSec  int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
}

type LLMConfig struct {
	Provider        string
	Model           string
	APIKey          string
	BaseURL         string
	Temperature     float32
	MaxTokens       int
	TimeoutSec      int
	ProbeTimeoutSec int
	EmbeddingModel  string
	EmbeddingDim    int
}

type RetrievalConfig struct {
	// VectorBackend selects where vector search runs: "elasticsearch" or "milvus".
	VectorBackend string
	TopK          int
	TimeoutSec    int
}

type EngineConfig struct {
	AIIntent     bool
	RankingLimit int
}

type CacheConfig struct {
	QueryTTLSec     int
	EmbeddingTTLSec int
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

type ValidationConfig struct {
	MaxQueryLength int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type LoadTestConfig struct {
	Concurrency int
	Iterations  int
}

// Load reads .env, config.yaml from the standard locations and HRQA_* environment overrides.
func Load() (*Config, error) {
	return load("")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/hrqa")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, apperrors.NewConfigurationError("failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.NewConfigurationError("failed to unmarshal config", err)
	}

	// OpenAI's conventional variable is honoured when no prefixed key is set.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile() {
	for _, p := range []string{".env", "../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Validate rejects configuration the service cannot start with. A missing LLM
// key is not an error: the engine runs in degraded mode instead.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.MongoDB.URI == "" {
		problems = append(problems, "mongodb.uri is required")
	}
	if c.MongoDB.Database == "" {
		problems = append(problems, "mongodb.database is required")
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		problems = append(problems, "elasticsearch.addresses is required")
	}
	if c.LLM.EmbeddingDim <= 0 {
		problems = append(problems, "llm.embeddingDim must be positive")
	}
	switch c.Retrieval.VectorBackend {
	case "elasticsearch":
	case "milvus":
		if c.Milvus.Endpoint == "" {
			problems = append(problems, "milvus.endpoint is required when retrieval.vectorBackend is milvus")
		}
		if c.Milvus.VectorDim != c.LLM.EmbeddingDim {
			problems = append(problems, "milvus.vectorDim must equal llm.embeddingDim")
		}
	default:
		problems = append(problems, fmt.Sprintf("retrieval.vectorBackend %q is not supported", c.Retrieval.VectorBackend))
	}
	if c.Retrieval.TopK <= 0 {
		problems = append(problems, "retrieval.topK must be positive")
	}

	if len(problems) > 0 {
		err := apperrors.NewConfigurationError("invalid configuration", nil)
		err.Details = strings.Join(problems, "; ")
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.environment", "development")

	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "hr_qna")
	v.SetDefault("mongodb.connectTimeoutSec", 10)
	v.SetDefault("mongodb.queryTimeoutSec", 15)
	v.SetDefault("mongodb.maxPoolSize", 50)

	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.index", "hr-employees-fixed")
	v.SetDefault("elasticsearch.vectorField", "content_vector")
	v.SetDefault("elasticsearch.timeoutSec", 10)
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")

	v.SetDefault("milvus.endpoint", "localhost:19530")
	v.SetDefault("milvus.collectionName", "hr_employees")
	v.SetDefault("milvus.vectorDim", 1536)
	v.SetDefault("milvus.apiKey", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("sqlite.enabled", false)
	v.SetDefault("sqlite.path", "./data/hrqa.db")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.maxTokens", 500)
	v.SetDefault("llm.timeoutSec", 30)
	v.SetDefault("llm.probeTimeoutSec", 10)
	v.SetDefault("llm.embeddingModel", "text-embedding-ada-002")
	v.SetDefault("llm.embeddingDim", 1536)

	v.SetDefault("retrieval.vectorBackend", "elasticsearch")
	v.SetDefault("retrieval.topK", 5)
	v.SetDefault("retrieval.timeoutSec", 10)

	v.SetDefault("engine.aiIntent", false)
	v.SetDefault("engine.rankingLimit", 10)

	v.SetDefault("cache.queryTTLSec", 300)
	v.SetDefault("cache.embeddingTTLSec", 86400)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requestsPerMinute", 120)

	v.SetDefault("validation.maxQueryLength", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("loadtest.concurrency", 10)
	v.SetDefault("loadtest.iterations", 100)
}
