package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port       string         `mapstructure:"port"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	Notify     NotifyConfig   `mapstructure:"notify"`
	Gateway    GatewayConfig  `mapstructure:"gateway"`
	History    HistoryConfig  `mapstructure:"history"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
	// Addr 沒有設定哨兵時直接連線 (local / test)
	Addr           string        `mapstructure:"addr"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
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

// MinIOConfig definition avatar bucket setting
type MinIOConfig struct {
	Enable        bool          `mapstructure:"enable"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	BucketName    string        `mapstructure:"bucket_name"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// NotifyConfig definition offline notice publisher
type NotifyConfig struct {
	// Driver rabbitmq | kafka | none
	Driver   string         `mapstructure:"driver"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// RabbitMQConfig definition rabbitmq setting
type RabbitMQConfig struct {
	IP            string `mapstructure:"ip"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Queue         string `mapstructure:"queue"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// GatewayConfig definition websocket timing
type GatewayConfig struct {
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	PongWait      time.Duration `mapstructure:"pong_wait"`
	WriteWait     time.Duration `mapstructure:"write_wait"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	MaxRejections int           `mapstructure:"max_rejections"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
}

// HistoryConfig definition REST history limits
type HistoryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// WithDefaults 補上未設定的值
func (g GatewayConfig) WithDefaults() GatewayConfig {
	if g.PingInterval <= 0 {
		g.PingInterval = 25 * time.Second
	}
	if g.PongWait <= 0 {
		g.PongWait = 60 * time.Second
	}
	// ping 必須比 pong 等待時間短, 否則正常連線也會逾時
	if g.PingInterval >= g.PongWait {
		g.PingInterval = g.PongWait * 9 / 10
	}
	if g.WriteWait <= 0 {
		g.WriteWait = 10 * time.Second
	}
	if g.SendBuffer <= 0 {
		g.SendBuffer = 256
	}
	if g.MaxRejections <= 0 {
		g.MaxRejections = 5
	}
	if g.ReapInterval <= 0 {
		g.ReapInterval = 30 * time.Second
	}
	return g
}

// WithDefaults 補上未設定的值
func (h HistoryConfig) WithDefaults() HistoryConfig {
	if h.DefaultLimit <= 0 {
		h.DefaultLimit = 100
	}
	if h.MaxLimit <= 0 {
		h.MaxLimit = 500
	}
	if h.DefaultLimit > h.MaxLimit {
		h.DefaultLimit = h.MaxLimit
	}
	return h
}
