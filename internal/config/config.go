package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Model      ModelConfig      `mapstructure:"model"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	RecommendationsTTL time.Duration `mapstructure:"recommendations_ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		InteractionEvents string `mapstructure:"interaction_events"`
		DeadLetter        string `mapstructure:"dead_letter"`
	} `mapstructure:"topics"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

type AuthConfig struct {
	JWTSecret string          `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration   `mapstructure:"token_ttl"`
	APIKeys   []string        `mapstructure:"api_keys"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Premium int           `mapstructure:"premium"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ModelConfig mirrors the engine settings. The two index fields point
// into the positional session layout, so they double as the defaults of
// the record layout used when decoding raw histories.
type ModelConfig struct {
	Recommendations            int    `mapstructure:"number_of_recommendations"`
	Neighbors                  int    `mapstructure:"number_of_neighbors"`
	SamplingStrategy           string `mapstructure:"sampling_strategy"`
	SampleSize                 int    `mapstructure:"sample_size"`
	Weighting                  string `mapstructure:"weighting_func"`
	Ranking                    string `mapstructure:"ranking_strategy"`
	ReturnEventsFromSession    bool   `mapstructure:"return_events_from_session"`
	RecommendAny               bool   `mapstructure:"recommend_any"`
	RequiredSamplingEvent      string `mapstructure:"required_sampling_event"`
	RequiredSamplingEventIndex int    `mapstructure:"required_sampling_event_index"`
	SamplingEventWeightsIndex  int    `mapstructure:"sampling_event_weights_index"`
}

type IngestConfig struct {
	RebuildInterval  time.Duration      `mapstructure:"rebuild_interval"`
	RebuildThreshold int                `mapstructure:"rebuild_threshold"`
	AllowedActions   map[string]float64 `mapstructure:"allowed_actions"`
	PurchaseAction   string             `mapstructure:"purchase_action"`
	Fields           FieldsConfig       `mapstructure:"fields"`
}

type FieldsConfig struct {
	Session    string `mapstructure:"session"`
	Item       string `mapstructure:"item"`
	Time       string `mapstructure:"time"`
	Action     string `mapstructure:"action"`
	TimeLayout string `mapstructure:"time_layout"`
}

type SnapshotConfig struct {
	Dir            string `mapstructure:"dir"`
	RestoreOnStart bool   `mapstructure:"restore_on_start"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Cache defaults
	viper.SetDefault("cache.recommendations_ttl", "15m")

	// Kafka defaults
	viper.SetDefault("kafka.topics.interaction_events", "interaction-events")
	viper.SetDefault("kafka.topics.dead_letter", "interaction-events-dlq")
	viper.SetDefault("kafka.consumer_group", "wsknn-ingest")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("auth.rate_limit.default", 1000)
	viper.SetDefault("auth.rate_limit.premium", 10000)
	viper.SetDefault("auth.rate_limit.window", "1h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Model defaults
	viper.SetDefault("model.number_of_recommendations", 5)
	viper.SetDefault("model.number_of_neighbors", 10)
	viper.SetDefault("model.sampling_strategy", "common_items")
	viper.SetDefault("model.sample_size", 1000)
	viper.SetDefault("model.weighting_func", "linear")
	viper.SetDefault("model.ranking_strategy", "linear")
	viper.SetDefault("model.return_events_from_session", true)
	viper.SetDefault("model.recommend_any", false)
	viper.SetDefault("model.required_sampling_event_index", 2)
	viper.SetDefault("model.sampling_event_weights_index", 3)

	// Ingest defaults
	viper.SetDefault("ingest.rebuild_interval", "5m")
	viper.SetDefault("ingest.rebuild_threshold", 1000)
	viper.SetDefault("ingest.fields.session", "session_id")
	viper.SetDefault("ingest.fields.item", "item_id")
	viper.SetDefault("ingest.fields.time", "timestamp")
	viper.SetDefault("ingest.fields.action", "action")

	// Snapshot defaults
	viper.SetDefault("snapshot.dir", "./snapshots")
	viper.SetDefault("snapshot.restore_on_start", false)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
