// Package broker opens the messaging backend named by the configuration.
package broker

import (
	"errors"
	"fmt"
	"log/slog"

	"planetoidgen/internal/config"
	"planetoidgen/internal/messaging"
	"planetoidgen/internal/messaging/kafka"
	"planetoidgen/internal/messaging/memory"
	"planetoidgen/internal/store/postgres"
)

// ErrProcessLocal is returned by RequireShared for the memory broker.
var ErrProcessLocal = errors.New("broker only delivers within one process")

// Broker is a transport that can also manage its topics.
type Broker interface {
	messaging.Transport
	messaging.Admin
}

// Open returns the broker for cfg.BrokerDriver. db backs the postgres queue
// and may be nil for the other drivers.
func Open(cfg *config.Config, db *postgres.Store, logger *slog.Logger) (Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.BrokerDriver {
	case "memory":
		logger.Warn("using in-process memory broker; jobs are lost on restart")
		return memory.New(), nil
	case "kafka":
		b, err := kafka.New(kafka.Config{
			Brokers:           cfg.KafkaBrokers,
			ClientID:          cfg.KafkaClientID,
			ConsumerGroup:     cfg.KafkaConsumerGroup,
			SecurityProtocol:  cfg.KafkaSecurityProtocol,
			ReplicationFactor: cfg.KafkaReplicationFactor,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka broker: %w", err)
		}
		logger.Info("using kafka broker", "brokers", cfg.KafkaBrokers)
		return b, nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres broker requires a database connection")
		}
		logger.Info("using postgres queue broker", "visibility_timeout", cfg.QueueVisibility)
		return postgres.NewQueue(db, cfg.QueueVisibility, 0), nil
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.BrokerDriver)
	}
}

// Retry is the publish policy every component uses against the broker.
func Retry(cfg *config.Config) messaging.RetryPolicy {
	return messaging.RetryPolicy{Retries: cfg.BrokerRetryCount, Wait: cfg.BrokerRetryWait}
}

// RequireShared rejects drivers that cannot carry jobs between processes. A
// standalone worker on the memory broker would never receive a job.
func RequireShared(driver string) error {
	if driver == "memory" {
		return fmt.Errorf("%w: %q, run workers inside the controller with EMBEDDED_WORKERS instead", ErrProcessLocal, driver)
	}
	return nil
}
