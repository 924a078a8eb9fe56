// Package config loads service settings from defaults, an optional YAML file
// and SECKILL_* environment variables, in that order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SECKILL"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Environment string `yaml:"environment" envconfig:"ENVIRONMENT"`
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	HTTPAddr string `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	GRPCAddr string `yaml:"grpc_addr" envconfig:"GRPC_ADDR"`

	MySQL MySQL `yaml:"mysql" envconfig:"MYSQL"`
	Redis Redis `yaml:"redis" envconfig:"REDIS"`
	Kafka Kafka `yaml:"kafka" envconfig:"KAFKA"`

	TokenSecret  string        `yaml:"token_secret" envconfig:"TOKEN_SECRET"`
	MaxPageSize  int           `yaml:"max_page_size" envconfig:"MAX_PAGE_SIZE"`
	UseProcedure bool          `yaml:"use_procedure" envconfig:"USE_PROCEDURE"`
	CacheTimeout time.Duration `yaml:"cache_timeout" envconfig:"CACHE_TIMEOUT"`

	Events Events `yaml:"events" envconfig:"EVENTS"`

	JaegerEndpoint string `yaml:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT"`
}

type MySQL struct {
	DSN             string        `yaml:"dsn" envconfig:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
}

type Redis struct {
	Addr      string        `yaml:"addr" envconfig:"ADDR"`
	Password  string        `yaml:"password" envconfig:"PASSWORD"`
	DB        int           `yaml:"db" envconfig:"DB"`
	PoolSize  int           `yaml:"pool_size" envconfig:"POOL_SIZE"`
	TTL       time.Duration `yaml:"ttl" envconfig:"TTL"`
	KeyPrefix string        `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" envconfig:"BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"TOPIC"`
}

type Events struct {
	QueueSize      int           `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	Workers        int           `yaml:"workers" envconfig:"WORKERS"`
	PublishTimeout time.Duration `yaml:"publish_timeout" envconfig:"PUBLISH_TIMEOUT"`
}

func Default() Config {
	return Config{
		Environment: "development",
		ServiceName: "seckill",
		LogLevel:    "info",
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MySQL: MySQL{
			DSN:             "root:root@tcp(localhost:3306)/seckill?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: Redis{
			Addr:      "localhost:6379",
			PoolSize:  100,
			TTL:       time.Minute,
			KeyPrefix: "seckill:",
		},
		Kafka: Kafka{
			Topic: "seckill.purchases",
		},
		MaxPageSize:  50,
		CacheTimeout: 50 * time.Millisecond,
		Events: Events{
			QueueSize:      10000,
			Workers:        10,
			PublishTimeout: 5 * time.Second,
		},
	}
}

// Load reads path when it is non-empty, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", path)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "read environment")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.TokenSecret != "", "token_secret is required")
	check(c.MySQL.DSN != "", "mysql.dsn is required")
	check(c.MySQL.MaxOpenConns > 0, "mysql.max_open_conns must be positive")
	check(c.MySQL.MaxIdleConns >= 0, "mysql.max_idle_conns must not be negative")
	check(c.Redis.PoolSize > 0, "redis.pool_size must be positive")
	check(c.Redis.TTL > 0, "redis.ttl must be positive")
	check(c.MaxPageSize > 0, "max_page_size must be positive")
	check(c.CacheTimeout > 0, "cache_timeout must be positive")
	check(c.Events.QueueSize > 0, "events.queue_size must be positive")
	check(c.Events.Workers > 0, "events.workers must be positive")
	check(len(c.Kafka.Brokers) == 0 || c.Kafka.Topic != "", "kafka.topic is required with brokers")

	if len(problems) > 0 {
		return errors.Wrap(ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) Development() bool {
	return c.Environment == "development"
}
