package config

import (
	"log"
	"sync"
	"time"

	"github.com/Astemirdum/library-circulation/pkg/auth"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
	"github.com/Astemirdum/library-circulation/pkg/logger"
	"github.com/Astemirdum/library-circulation/pkg/postgres"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"CIRCULATION_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"CIRCULATION_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE" default:"10s"`
}

// Circulation holds the lending policy.
type Circulation struct {
	ReservationTTL  time.Duration   `envconfig:"RESERVATION_TTL" default:"24h"`
	FeePerDay       decimal.Decimal `envconfig:"FEE_PER_DAY" default:"1"`
	ReclaimInterval time.Duration   `envconfig:"RECLAIM_INTERVAL" default:"10m"`
}

type Storage string

const (
	StoragePostgres Storage = "postgres"
	StorageMemory   Storage = "memory"
)

type Config struct {
	Server      HTTPServer   `yaml:"server"`
	Database    postgres.DB  `yaml:"db"`
	Kafka       kafka.Config `yaml:"kafka"`
	Auth        auth.Config  `yaml:"auth"`
	Log         logger.Log   `yaml:"log"`
	Circulation Circulation  `yaml:"circulation"`
	Storage     Storage      `envconfig:"STORAGE" default:"postgres"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment. Options are applied last and win over env.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		for _, op := range ops {
			op(&config)
		}
		cfg = &config
	})

	return cfg
}
