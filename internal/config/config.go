// Package config loads controller, worker and broker settings from an optional
// YAML file and environment variables.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	DatabaseURL string
	HTTPPort    int

	// Worker /metrics port
	MetricsPort int

	// Base URL workers use to reach the controller's internal endpoints
	ControllerURL string

	// Bearer secret shared by the controller and reporting agents
	InternalSecret string

	// Admin API key. Empty disables admin authentication.
	AdminAPIKey string

	// Per-connection limit on generation requests
	GenerateRateLimit float64
	GenerateBurst     int

	// Broker: memory, kafka or postgres
	BrokerDriver           string
	KafkaBrokers           []string
	KafkaClientID          string
	KafkaConsumerGroup     string
	KafkaSecurityProtocol  string
	KafkaReplicationFactor int
	TopicPrefix            string
	TopicPartitions        int
	BrokerRetryCount       int
	BrokerRetryWait        time.Duration
	ConsumeTimeout         time.Duration
	QueueVisibility        time.Duration

	WorkerCount         int
	AgentRetryCount     int
	AgentRetryWait      time.Duration
	AgentSlidingTimeout time.Duration

	// Workers run inside the controller process, needed by the memory broker
	EmbeddedWorkers int

	// Container runtime for ContainerAgent: exec, docker or kubernetes
	Runtime                  string
	RuntimeWorkDir           string
	KubernetesNamespace      string
	KubernetesServiceAccount string
	KubernetesCPULimit       string
	KubernetesMemoryLimit    string

	// OTLP collector address. Empty disables tracing.
	OTELEndpoint string
	LogLevel     string
}

var (
	validBrokers  = []string{"memory", "kafka", "postgres"}
	validRuntimes = []string{"exec", "docker", "kubernetes"}
)

// envKeys maps config keys to the environment variables that override them.
var envKeys = map[string]string{
	"database_url":               "DATABASE_URL",
	"http_port":                  "PORT",
	"metrics_port":               "METRICS_PORT",
	"controller_url":             "CONTROLLER_URL",
	"internal_secret":            "INTERNAL_SECRET",
	"admin_api_key":              "ADMIN_API_KEY",
	"generate_rate_limit":        "GENERATE_RATE_LIMIT",
	"generate_burst":             "GENERATE_BURST",
	"broker_driver":              "BROKER_DRIVER",
	"kafka_brokers":              "KAFKA_BROKERS",
	"kafka_client_id":            "KAFKA_CLIENT_ID",
	"kafka_consumer_group":       "KAFKA_CONSUMER_GROUP",
	"kafka_security_protocol":    "KAFKA_SECURITY_PROTOCOL",
	"kafka_replication_factor":   "KAFKA_REPLICATION_FACTOR",
	"topic_prefix":               "TOPIC_PREFIX",
	"topic_partitions":           "TOPIC_PARTITIONS",
	"broker_retry_count":         "BROKER_RETRY_COUNT",
	"broker_retry_wait":          "BROKER_RETRY_WAIT",
	"consume_timeout":            "CONSUME_TIMEOUT",
	"queue_visibility":           "QUEUE_VISIBILITY_TIMEOUT",
	"worker_count":               "WORKER_COUNT",
	"agent_retry_count":          "AGENT_RETRY_COUNT",
	"agent_retry_wait":           "AGENT_RETRY_WAIT",
	"agent_sliding_timeout":      "AGENT_SLIDING_TIMEOUT",
	"embedded_workers":           "EMBEDDED_WORKERS",
	"runtime":                    "RUNTIME",
	"runtime_workdir":            "RUNTIME_WORKDIR",
	"kubernetes_namespace":       "KUBERNETES_NAMESPACE",
	"kubernetes_service_account": "KUBERNETES_SERVICE_ACCOUNT",
	"kubernetes_cpu_limit":       "KUBERNETES_CPU_LIMIT",
	"kubernetes_memory_limit":    "KUBERNETES_MEMORY_LIMIT",
	"otel_endpoint":              "OTEL_EXPORTER_OTLP_ENDPOINT",
	"log_level":                  "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 6161)
	v.SetDefault("metrics_port", 6162)
	v.SetDefault("controller_url", "http://localhost:6161")
	v.SetDefault("generate_rate_limit", 5.0)
	v.SetDefault("generate_burst", 10)
	v.SetDefault("broker_driver", "postgres")
	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("kafka_client_id", "planetoidgen")
	v.SetDefault("kafka_consumer_group", "planetoidgen-workers")
	v.SetDefault("kafka_security_protocol", "plaintext")
	v.SetDefault("kafka_replication_factor", 1)
	v.SetDefault("topic_prefix", "agent_")
	v.SetDefault("topic_partitions", 1)
	v.SetDefault("broker_retry_count", 3)
	v.SetDefault("broker_retry_wait", time.Second)
	v.SetDefault("consume_timeout", time.Second)
	v.SetDefault("queue_visibility", 5*time.Minute)
	v.SetDefault("worker_count", min(runtime.NumCPU(), 64))
	v.SetDefault("agent_retry_count", 3)
	v.SetDefault("agent_retry_wait", time.Second)
	v.SetDefault("agent_sliding_timeout", 45*time.Second)
	v.SetDefault("embedded_workers", 0)
	v.SetDefault("runtime", "exec")
	v.SetDefault("kubernetes_namespace", "default")
	v.SetDefault("log_level", "info")
}

// Load reads configuration from the file at path (skipped when empty) and
// the environment. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:              v.GetString("database_url"),
		HTTPPort:                 v.GetInt("http_port"),
		MetricsPort:              v.GetInt("metrics_port"),
		ControllerURL:            strings.TrimRight(v.GetString("controller_url"), "/"),
		InternalSecret:           v.GetString("internal_secret"),
		AdminAPIKey:              v.GetString("admin_api_key"),
		GenerateRateLimit:        v.GetFloat64("generate_rate_limit"),
		GenerateBurst:            v.GetInt("generate_burst"),
		BrokerDriver:             strings.ToLower(v.GetString("broker_driver")),
		KafkaBrokers:             splitList(v.GetString("kafka_brokers")),
		KafkaClientID:            v.GetString("kafka_client_id"),
		KafkaConsumerGroup:       v.GetString("kafka_consumer_group"),
		KafkaSecurityProtocol:    strings.ToLower(v.GetString("kafka_security_protocol")),
		KafkaReplicationFactor:   v.GetInt("kafka_replication_factor"),
		TopicPrefix:              v.GetString("topic_prefix"),
		TopicPartitions:          v.GetInt("topic_partitions"),
		BrokerRetryCount:         v.GetInt("broker_retry_count"),
		BrokerRetryWait:          v.GetDuration("broker_retry_wait"),
		ConsumeTimeout:           v.GetDuration("consume_timeout"),
		QueueVisibility:          v.GetDuration("queue_visibility"),
		WorkerCount:              v.GetInt("worker_count"),
		AgentRetryCount:          v.GetInt("agent_retry_count"),
		AgentRetryWait:           v.GetDuration("agent_retry_wait"),
		AgentSlidingTimeout:      v.GetDuration("agent_sliding_timeout"),
		EmbeddedWorkers:          v.GetInt("embedded_workers"),
		Runtime:                  strings.ToLower(v.GetString("runtime")),
		RuntimeWorkDir:           v.GetString("runtime_workdir"),
		KubernetesNamespace:      v.GetString("kubernetes_namespace"),
		KubernetesServiceAccount: v.GetString("kubernetes_service_account"),
		KubernetesCPULimit:       v.GetString("kubernetes_cpu_limit"),
		KubernetesMemoryLimit:    v.GetString("kubernetes_memory_limit"),
		OTELEndpoint:             v.GetString("otel_endpoint"),
		LogLevel:                 v.GetString("log_level"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts a comma separated list, the form env variables use.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}
	if !slices.Contains(validBrokers, c.BrokerDriver) {
		return fmt.Errorf("invalid broker_driver %q: must be one of %v", c.BrokerDriver, validBrokers)
	}
	if !slices.Contains(validRuntimes, c.Runtime) {
		return fmt.Errorf("invalid runtime %q: must be one of %v", c.Runtime, validRuntimes)
	}
	if c.BrokerDriver == "kafka" && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka_brokers is required for the kafka broker (env: KAFKA_BROKERS)")
	}
	if c.TopicPrefix == "" {
		return fmt.Errorf("topic_prefix must not be empty")
	}

	checks := []struct {
		name     string
		value    int64
		min, max int64
	}{
		{"topic_partitions", int64(c.TopicPartitions), 1, 100},
		{"broker_retry_count", int64(c.BrokerRetryCount), 1, 10},
		{"broker_retry_wait", int64(c.BrokerRetryWait), 0, int64(20 * time.Second)},
		{"worker_count", int64(c.WorkerCount), 1, 64},
		{"agent_retry_count", int64(c.AgentRetryCount), 1, 10},
		{"agent_retry_wait", int64(c.AgentRetryWait), int64(100 * time.Millisecond), int64(time.Hour)},
		{"agent_sliding_timeout", int64(c.AgentSlidingTimeout), int64(time.Second), int64(24 * time.Hour)},
		{"consume_timeout", int64(c.ConsumeTimeout), 1, int64(time.Minute)},
		{"queue_visibility", int64(c.QueueVisibility), int64(3 * time.Second), int64(24 * time.Hour)},
		{"embedded_workers", int64(c.EmbeddedWorkers), 0, 64},
	}
	for _, ch := range checks {
		if ch.value < ch.min || ch.value > ch.max {
			return fmt.Errorf("invalid %s: out of range", ch.name)
		}
	}
	return nil
}
