package config

import (
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string         `env:"ENV" envDefault:"local"`
	LogLevel string         `env:"LOG_LEVEL" envDefault:"info"`
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	Presence PresenceConfig `envPrefix:"PRESENCE_"`
	Outbox   OutboxConfig   `envPrefix:"OUTBOX_"`
	Socket   SocketConfig   `envPrefix:"SOCKET_"`
}

type ServerConfig struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Host        string `env:"HOST" envDefault:"0.0.0.0"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:".*"`
	Pprof       bool   `env:"PPROF" envDefault:"false"`
}

func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

type DatabaseConfig struct {
	URI      string `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"DATABASE" envDefault:"messaging"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	AuthDB   string `env:"AUTH_DB" envDefault:"admin"`
	Direct   bool   `env:"DIRECT" envDefault:"false"`
}

type RedisConfig struct {
	Addr      string `env:"ADDR" envDefault:"localhost:6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"messaging:"`
}

type KafkaConfig struct {
	Enabled     bool     `env:"ENABLED" envDefault:"false"`
	Brokers     []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic       string   `env:"TOPIC" envDefault:"messaging.changes"`
	GroupPrefix string   `env:"GROUP_PREFIX" envDefault:"messaging-feed"`
	Version     string   `env:"VERSION" envDefault:"3.6.0"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	Issuer    string        `env:"ISSUER" envDefault:"team-messaging"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

type StorageConfig struct {
	Bucket         string `env:"BUCKET" envDefault:"message_files"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
}

type PresenceConfig struct {
	SweepCron  string        `env:"SWEEP_CRON" envDefault:"* * * * *"`
	StaleAfter time.Duration `env:"STALE_AFTER" envDefault:"2m"`
	Heartbeat  time.Duration `env:"HEARTBEAT" envDefault:"30s"`
}

type OutboxConfig struct {
	Workers      int           `env:"WORKERS" envDefault:"8"`
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"200ms"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type SocketConfig struct {
	CommandRate  float64       `env:"COMMAND_RATE" envDefault:"20"`
	CommandBurst int           `env:"COMMAND_BURST" envDefault:"40"`
	SendBuffer   int           `env:"SEND_BUFFER" envDefault:"256"`
	PingPeriod   time.Duration `env:"PING_PERIOD" envDefault:"50s"`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.Outbox.Workers < 1 {
		return nil, fmt.Errorf("OUTBOX_WORKERS must be positive, got %d", cfg.Outbox.Workers)
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}
	return cfg
}
