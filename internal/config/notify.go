package config

import (
	"os"
	"time"

	"github.com/iliyamo/pixvault/internal/notify"
)

// NotifyConfig selects the notification sinks. With neither a webhook nor a
// broker configured, notifications are discarded.
type NotifyConfig struct {
	WebhookURL  string
	AMQPURL     string
	Queue       string
	Timeout     time.Duration
	MaxInFlight int
	// ActivityLogDir is where the activity consumer writes activity.log.
	ActivityLogDir string
}

func LoadNotifyConfig() NotifyConfig {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		url = os.Getenv("AMQP_URL")
	}
	return NotifyConfig{
		WebhookURL:     envStr("NOTIFY_WEBHOOK_URL", ""),
		AMQPURL:        url,
		Queue:          envStr("NOTIFY_QUEUE", notify.DefaultQueue),
		Timeout:        envDur("NOTIFY_TIMEOUT", notify.DefaultTimeout),
		MaxInFlight:    envInt("NOTIFY_MAX_IN_FLIGHT", notify.DefaultMaxInFlight),
		ActivityLogDir: envStr("ACTIVITY_LOG_DIR", "logs"),
	}
}

// Enabled reports whether any sink is configured.
func (c NotifyConfig) Enabled() bool { return c.WebhookURL != "" || c.AMQPURL != "" }
