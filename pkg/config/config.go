package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port               string          `mapstructure:"port"`
	JWTSecret          string          `mapstructure:"jwt_secret"`
	GroupNameMaxLength int             `mapstructure:"group_name_max_length"`
	MongoSQL           DatabaseConfig  `mapstructure:"mongo"`
	PostgreSQL         DatabaseConfig  `mapstructure:"pg"`
	Redis              RedisConfig     `mapstructure:"redis"`
	MinIO              MinIOConfig     `mapstructure:"minio"`
	Kafka              KafkaConfig     `mapstructure:"kafka"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit"`
	Websocket          WebsocketConfig `mapstructure:"websocket"`
}

// RedisConfig definition redis setting, empty Addr means sentinel from .env
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition attachment bucket
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// KafkaConfig definition event log topic
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// RateLimitConfig per identity token bucket
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// WebsocketConfig session keepalive
type WebsocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
}
