package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/rice-deteriorate/internal/config"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/logger"
)

// NewPublisher creates a Publisher based on the configuration. A positive rate limit
// wraps the transport in a ThrottledPublisher, and a configured event log wraps the
// result in a LoggedPublisher.
func NewPublisher(cfg config.BusConfig, log *logger.Logger) (Publisher, error) {
	var p Publisher

	switch strings.ToLower(cfg.Type) {
	case "memory", "none", "":
		p = NewMemoryBus(log)

	case "kafka":
		brokers := cfg.Brokers()
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		kp, err := NewKafkaPublisher(KafkaConfig{
			Brokers:     brokers,
			ClientID:    cfg.ClientID,
			TopicPrefix: cfg.TopicPrefix,
		})
		if err != nil {
			return nil, err
		}
		p = kp

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.RateLimit > 0 {
		p = NewThrottledPublisher(p, cfg.RateLimit, cfg.Burst)
	}

	if cfg.EventLog == "" {
		return p, nil
	}

	eventLogger, err := NewEventLogger(cfg.EventLog)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return NewLoggedPublisher(p, eventLogger, log), nil
}
