package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Store     StoreConfig
	Call      CallConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// StoreConfig selects and parameterizes the durable backend.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"` // "sqlite" or "redis"
	SQLitePath string `mapstructure:"sqlitePath"`
	RedisURL   string `mapstructure:"redisURL"`
}

type CallConfig struct {
	// How long a call may sit unanswered before it fails.
	RingTimeout time.Duration `mapstructure:"ringTimeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}
