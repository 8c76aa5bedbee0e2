package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	S3       *s3Config
	Pipeline *pipelineConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"validation"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"VALIDATION_SVC_ADDRESS" default:":3443"`
	MetricsAddress  string `envconfig:"VALIDATION_SVC_METRICS_ADDRESS" default:":8080"`
	BaseUrl         string `envconfig:"VALIDATION_SVC_BASE_URL" default:"https://localhost:3443"`
	LogLevel        string `envconfig:"VALIDATION_SVC_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"VALIDATION_SVC_MIGRATIONS_FOLDER" default:""`
	Kafka           kafkaConfig
}

type kafkaConfig struct {
	Brokers       []string `envconfig:"VALIDATION_SVC_KAFKA_BROKERS" default:""`
	Topic         string   `envconfig:"VALIDATION_SVC_KAFKA_TOPIC" default:""`
	ClientID      string   `envconfig:"VALIDATION_SVC_KAFKA_CLIENT_ID" default:""`
	QueueCapacity int      `envconfig:"VALIDATION_SVC_KAFKA_QUEUE_CAPACITY" default:"1024"`
}

type s3Config struct {
	Endpoint        string `envconfig:"VALIDATION_SVC_S3_ENDPOINT" default:"localhost:9000"`
	Bucket          string `envconfig:"VALIDATION_SVC_S3_BUCKET" default:"validation"`
	AccessKey       string `envconfig:"VALIDATION_SVC_S3_ACCESS_KEY" default:""`
	SecretAccessKey string `envconfig:"VALIDATION_SVC_S3_SECRET_KEY" default:""`
	OutputPrefix    string `envconfig:"VALIDATION_SVC_S3_OUTPUT_PREFIX" default:"validated"`
	UseSSL          bool   `envconfig:"VALIDATION_SVC_S3_USE_SSL" default:"false"`
}

// pipelineConfig carries the defaults applied to jobs that do not override
// them at submission time.
type pipelineConfig struct {
	ChunkSize        int    `envconfig:"VALIDATION_SVC_CHUNK_SIZE" default:"500"`
	Concurrency      int    `envconfig:"VALIDATION_SVC_CONCURRENCY" default:"0"`
	QueueDepth       int    `envconfig:"VALIDATION_SVC_QUEUE_DEPTH" default:"4"`
	ProgressInterval string `envconfig:"VALIDATION_SVC_PROGRESS_INTERVAL" default:"2s"`
	ProgressChunks   int    `envconfig:"VALIDATION_SVC_PROGRESS_CHUNKS" default:"10"`
	OnFailurePolicy  string `envconfig:"VALIDATION_SVC_ON_FAILURE_POLICY" default:"strict"`
	AuditGranularity string `envconfig:"VALIDATION_SVC_AUDIT_GRANULARITY" default:"fine"`
	SinkRetries      int    `envconfig:"VALIDATION_SVC_SINK_RETRIES" default:"3"`
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
