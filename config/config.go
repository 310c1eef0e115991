package config

import (
	"errors"
	"os"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/api"
	postgres_wrapper "github.com/bhanukaranwal/SetuBond/pkg/infra/postgres"
	redis_wrapper "github.com/bhanukaranwal/SetuBond/pkg/infra/redis"
	kafkawrapper "github.com/bhanukaranwal/SetuBond/pkg/kafka_wrapper"
	"github.com/bhanukaranwal/SetuBond/pkg/matching"
	"github.com/bhanukaranwal/SetuBond/pkg/oms"
	fixgateway "github.com/bhanukaranwal/SetuBond/pkg/oms/fix"
	riskrule "github.com/bhanukaranwal/SetuBond/pkg/oms/risk_rule"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/worker"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrNoConfigFile = errors.New("no config file: pass a path or set CONFIG_FILE")

type AppConfig struct {
	ServiceName string                           `yaml:"service_name"`
	LogLevel    string                           `yaml:"log_level"`
	HTTP        api.Config                       `yaml:"http"`
	Engine      matching.Config                  `yaml:"engine"`
	Session     oms.SessionConfig                `yaml:"session"`
	Instruments []riskrule.InstrumentSpec        `yaml:"instruments"`
	OMS         OMSConfig                        `yaml:"oms"`
	Expiry      worker.ExpiryConfig              `yaml:"expiry"`
	OmsDB       *postgres_wrapper.PostgresConfig `yaml:"oms_db"`
	Redis       redis_wrapper.RedisConfig        `yaml:"redis"`
	Kafka       KafkaConfig                      `yaml:"kafka"`
	Fix         *fixgateway.FixGatewayConfig     `yaml:"fix"`
}

type OMSConfig struct {
	CleanerInterval time.Duration `yaml:"cleaner_interval"`
	EventRetention  time.Duration `yaml:"event_retention"`
	// ProjectionBuffer is the depth of the projector queue.
	ProjectionBuffer int `yaml:"projection_buffer"`
}

type KafkaConfig struct {
	Enabled     bool                        `yaml:"enabled"`
	Producer    kafkawrapper.ProducerConfig `yaml:"producer"`
	TradeTopic  string                      `yaml:"trade_topic"`
	BookTopic   string                      `yaml:"book_topic"`
	IntakeTopic string                      `yaml:"intake_topic"`
	Intake      kafkawrapper.ConsumerConfig `yaml:"intake"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	_ = godotenv.Load() // .env is optional

	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}
	if len(filePath) == 0 {
		return nil, ErrNoConfigFile
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}
	cfg.applyDefaults()

	zap.S().Debugf("config: %+v", cfg)
	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "setubond-oms"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Engine.BookDepth <= 0 {
		c.Engine.BookDepth = 10
	}
	if c.Engine.MaxStaleRetries <= 0 {
		c.Engine.MaxStaleRetries = 8
	}
	if c.Expiry.Interval <= 0 {
		c.Expiry.Interval = time.Second
	}
	if c.Kafka.TradeTopic == "" {
		c.Kafka.TradeTopic = "trades"
	}
	if c.Kafka.BookTopic == "" {
		c.Kafka.BookTopic = "book-updates"
	}
	if c.Kafka.Intake.Topic == "" {
		c.Kafka.Intake.Topic = c.Kafka.IntakeTopic
	}
	if len(c.Kafka.Intake.Brokers) == 0 {
		c.Kafka.Intake.Brokers = c.Kafka.Producer.Brokers
	}
	if c.Kafka.Intake.GroupID == "" {
		c.Kafka.Intake.GroupID = c.ServiceName
	}
}
