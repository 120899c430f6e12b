package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database   *dbConfig
	Service    *svcConfig
	Storage    *storageConfig
	Generation *generationConfig
	Worker     *workerConfig
	Events     *eventsConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"data_broker"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	LogLevel        string `envconfig:"BROKER_LOG_LEVEL" default:"info"`
	LogFormat       string `envconfig:"BROKER_LOG_FORMAT" default:"console"`
	MetricsAddress  string `envconfig:"BROKER_METRICS_ADDRESS" default:":8080"`
	MigrationFolder string `envconfig:"BROKER_MIGRATIONS_FOLDER" default:""`
	// IsLocal keeps generated files on local disk and returns paths instead of object keys.
	IsLocal bool `envconfig:"BROKER_LOCAL" default:"false"`
}

type storageConfig struct {
	Type      string `envconfig:"STORAGE_TYPE" default:"local"`
	LocalRoot string `envconfig:"STORAGE_LOCAL_ROOT" default:"/var/lib/data-broker/files"`
	S3        s3Config
}

type s3Config struct {
	Endpoint  string `envconfig:"STORAGE_S3_ENDPOINT" default:""`
	Bucket    string `envconfig:"STORAGE_S3_BUCKET" default:""`
	AccessKey string `envconfig:"STORAGE_S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"STORAGE_S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"STORAGE_S3_USE_SSL" default:"true"`
}

type generationConfig struct {
	PageSize    int    `envconfig:"GENERATION_PAGE_SIZE" default:"10000"`
	TempDir     string `envconfig:"GENERATION_TEMP_DIR" default:""`
	SourcesFile string `envconfig:"GENERATION_SOURCES_FILE" default:""`
	// BrokerFiles is the path prefix used for generated files in local mode.
	BrokerFiles string `envconfig:"GENERATION_BROKER_FILES" default:"generated"`
}

type workerConfig struct {
	MaxWorkers    int           `envconfig:"WORKER_MAX_WORKERS" default:"10"`
	PollInterval  time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"2s"`
	JobTimeout    time.Duration `envconfig:"WORKER_JOB_TIMEOUT" default:"5m"`
	LeaseDuration time.Duration `envconfig:"WORKER_LEASE_DURATION" default:"10m"`
}

type eventsConfig struct {
	// Writer is none, stdout or kafka.
	Writer  string   `envconfig:"EVENTS_WRITER" default:"none"`
	Brokers []string `envconfig:"EVENTS_KAFKA_BROKERS" default:""`
	Topic   string   `envconfig:"EVENTS_TOPIC" default:"data_broker.events"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a fresh configuration built from the environment and the defaults,
// bypassing the process-wide singleton.
func NewDefault() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
