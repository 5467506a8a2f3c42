// internal/common/config/config.go
package config

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	ERPNext     ERPNextConfig     `mapstructure:"erpnext"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Bulk        BulkConfig        `mapstructure:"bulk"`
	SchemaCache SchemaCacheConfig `mapstructure:"schema_cache"`
	Skills      SkillsConfig      `mapstructure:"skills"`
	Server      ServerConfig      `mapstructure:"server"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ERPNextConfig holds connection settings for the remote document store.
type ERPNextConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds, per remote call
}

// RetryConfig bounds the retry/backoff policy applied to remote operations.
type RetryConfig struct {
	MaxRetries int `mapstructure:"max_retries"` // retries beyond the first attempt
	BaseDelay  int `mapstructure:"base_delay"`  // milliseconds
	MaxDelay   int `mapstructure:"max_delay"`   // milliseconds
}

// BulkConfig bounds the bulk executor worker pool.
type BulkConfig struct {
	Workers        int `mapstructure:"workers"`
	ProgressBuffer int `mapstructure:"progress_buffer"`
}

// SchemaCacheConfig controls schema metadata caching.
type SchemaCacheConfig struct {
	TTL   int         `mapstructure:"ttl"` // milliseconds
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig enables the optional schema snapshot store.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SkillsConfig locates skill definition files.
type SkillsConfig struct {
	Dir string `mapstructure:"dir"`
}

// ServerConfig selects the tool transport.
type ServerConfig struct {
	Transport string `mapstructure:"transport"` // "stdio" or "sse"
	Address   string `mapstructure:"address"`
	BasePath  string `mapstructure:"base_path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
