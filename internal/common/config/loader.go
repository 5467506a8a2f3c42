// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like ERPNEXT_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, merged over the base file.
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env from several locations so the binary and the tests
// resolve the same file.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // for tests in test/e2e/
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills credentials from plain environment variables
// when the config file left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.ERPNext.BaseURL == "" {
		if val := os.Getenv("ERPNEXT_URL"); val != "" {
			cfg.ERPNext.BaseURL = val
		}
	}
	if cfg.ERPNext.APIKey == "" {
		if val := os.Getenv("ERPNEXT_API_KEY"); val != "" {
			cfg.ERPNext.APIKey = val
		}
	}
	if cfg.ERPNext.APISecret == "" {
		if val := os.Getenv("ERPNEXT_API_SECRET"); val != "" {
			cfg.ERPNext.APISecret = val
		}
	}
	if cfg.SchemaCache.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.SchemaCache.Redis.Password = val
		}
	}
	if cfg.Skills.Dir == "" {
		if val := os.Getenv("SKILLS_DIR"); val != "" {
			cfg.Skills.Dir = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "erpnext-bridge"
	}

	if cfg.ERPNext.Timeout == 0 {
		cfg.ERPNext.Timeout = 30000
	}

	// Retry defaults: 3 retries beyond the first attempt, 1s base, 30s cap.
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 1000
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30000
	}

	if cfg.Bulk.Workers == 0 {
		cfg.Bulk.Workers = 5
	}
	if cfg.Bulk.ProgressBuffer == 0 {
		cfg.Bulk.ProgressBuffer = 64
	}

	if cfg.SchemaCache.TTL == 0 {
		cfg.SchemaCache.TTL = 300000 // 5 minutes
	}

	if cfg.Server.Transport == "" {
		cfg.Server.Transport = "stdio"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = "/mcp"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.ERPNext.BaseURL == "" {
		return fmt.Errorf("erpnext.base_url is required")
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if cfg.Retry.BaseDelay > cfg.Retry.MaxDelay {
		return fmt.Errorf("retry.base_delay must not exceed retry.max_delay")
	}

	if cfg.Bulk.Workers < 1 {
		return fmt.Errorf("bulk.workers must be at least 1")
	}

	if cfg.SchemaCache.Redis.Enabled && cfg.SchemaCache.Redis.Address == "" {
		return fmt.Errorf("schema_cache.redis.address is required when redis is enabled")
	}

	switch cfg.Server.Transport {
	case "stdio", "sse":
	default:
		return fmt.Errorf("server.transport must be stdio or sse, got %q", cfg.Server.Transport)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
