package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Transporte
	UseKafka        bool          `env:"USE_KAFKA" envDefault:"true"`
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaTopic      string        `env:"KAFKA_TOPIC" envDefault:"auction-created-topic"`
	KafkaGroupID    string        `env:"KAFKA_GROUP_ID" envDefault:"search-auction-created"`
	KafkaDLQTopic   string        `env:"KAFKA_DLQ_TOPIC"`
	RedeliveryDelay time.Duration `env:"REDELIVERY_DELAY" envDefault:"5s"`

	// Almacén de proyecciones
	StoreDriver string `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI    string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB     string `env:"MONGO_DB" envDefault:"SearchDb"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./search_items.db"`

	// Opcionales: si no responden se sustituyen o se desactivan
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	ClickHouseAddr string `env:"CLICKHOUSE_ADDR"`
	ClickHouseDB   string `env:"CLICKHOUSE_DB" envDefault:"default"`

	// Seed inicial
	AuctionServiceURL     string        `env:"AUCTION_SERVICE_URL" envDefault:"http://localhost:7001"`
	SeedOnStartup         bool          `env:"SEED_ON_STARTUP" envDefault:"true"`
	UpstreamRetryInterval time.Duration `env:"UPSTREAM_RETRY_INTERVAL" envDefault:"3s"`

	// Reintentos
	StartupAttempts      int           `env:"STARTUP_ATTEMPTS" envDefault:"5"`
	StartupInterval      time.Duration `env:"STARTUP_INTERVAL" envDefault:"10s"`
	MessageRetryAttempts int           `env:"MESSAGE_RETRY_ATTEMPTS" envDefault:"5"`
	MessageRetryInterval time.Duration `env:"MESSAGE_RETRY_INTERVAL" envDefault:"5s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadConfig lee la configuración del entorno y la valida.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate devuelve todos los problemas encontrados, no solo el primero.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.UseKafka {
		if len(c.KafkaBrokers) == 0 || strings.TrimSpace(c.KafkaBrokers[0]) == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when USE_KAFKA=true"))
		}
		if c.KafkaGroupID == "" {
			errs = append(errs, errors.New("KAFKA_GROUP_ID is required when USE_KAFKA=true"))
		}
	}
	if c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required"))
	}

	if c.SeedOnStartup {
		u, err := url.Parse(c.AuctionServiceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid AUCTION_SERVICE_URL %q", c.AuctionServiceURL))
		}
	}

	if c.StartupAttempts < 0 {
		errs = append(errs, errors.New("STARTUP_ATTEMPTS must be >= 0 (0 = retry forever)"))
	}
	if c.MessageRetryAttempts < 1 {
		errs = append(errs, errors.New("MESSAGE_RETRY_ATTEMPTS must be >= 1"))
	}

	return errors.Join(errs...)
}
