package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/parley-ai/parley/internal/mode"
	"github.com/parley-ai/parley/internal/pkg/logger"
)

type Config struct {
	Server    ServerConfig
	Log       logger.Config
	Database  DatabaseConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	Providers ProvidersConfig
	Engine    EngineConfig
	Tools     ToolsConfig
	Modes     map[string]mode.Mode
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// ProviderConfig holds one adapter's credentials and routing
type ProviderConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DefaultModel string        `mapstructure:"default_model"`
	Models       []string      `mapstructure:"models"`
	Prefixes     []string      `mapstructure:"prefixes"`
}

type ProvidersConfig struct {
	OpenAI ProviderConfig `mapstructure:"openai"`
	Gemini ProviderConfig `mapstructure:"gemini"`
}

// EngineConfig tunes the turn loop and history shaping
type EngineConfig struct {
	DefaultModel       string        `mapstructure:"default_model"`
	MaxIterations      int           `mapstructure:"max_iterations"`
	ProviderRetries    int           `mapstructure:"provider_retries"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
	HistoryTokenBudget int           `mapstructure:"history_token_budget"`
	ToolTimeout        time.Duration `mapstructure:"tool_timeout"`
	Workers            int           `mapstructure:"workers"`
}

type ToolsConfig struct {
	CommandAllowlist []string `mapstructure:"command_allowlist"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
