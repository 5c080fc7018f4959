package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Telephony TelephonyConfig `mapstructure:"telephony"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	DispatchTopic   string        `mapstructure:"dispatch_topic"`
	EventsTopic     string        `mapstructure:"events_topic"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SchedulerConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	LookAhead       time.Duration `mapstructure:"look_ahead"`
	MaxBatchSize    int           `mapstructure:"max_batch_size"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	OrphanThreshold time.Duration `mapstructure:"orphan_threshold"`
}

type WorkerConfig struct {
	Count           int           `mapstructure:"count"`
	RatePerMinute   int           `mapstructure:"rate_per_minute"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SlotTTL         time.Duration `mapstructure:"slot_ttl"`
}

type QueueConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	DedupTTL       time.Duration `mapstructure:"dedup_ttl"`
}

type TelephonyConfig struct {
	ProviderName   string        `mapstructure:"provider_name"`
	SuccessRate    float64       `mapstructure:"success_rate"`
	CallDuration   time.Duration `mapstructure:"call_duration"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("OUTBOUND")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 3000)
	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.look_ahead", time.Minute)
	v.SetDefault("scheduler.max_batch_size", 50)
	v.SetDefault("scheduler.sweep_interval", time.Minute)
	v.SetDefault("scheduler.orphan_threshold", 10*time.Minute)
	v.SetDefault("worker.count", 50)
	v.SetDefault("worker.rate_per_minute", 50)
	v.SetDefault("worker.shutdown_timeout", 10*time.Second)
	v.SetDefault("worker.slot_ttl", 10*time.Minute)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.retry_base_delay", 5*time.Second)
	v.SetDefault("queue.dedup_ttl", 15*time.Minute)
	v.SetDefault("telephony.success_rate", 0.9)
	v.SetDefault("telephony.call_duration", 2*time.Second)
	v.SetDefault("telephony.request_timeout", 30*time.Second)
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
