// Package notification delivers alerts about approved signals and service
// problems to external channels (log, Telegram, webhooks).
package notification

import (
	"context"
	"errors"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Trade is set on approved
// decisions; channels with their own layout render it instead of Message.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Trade   *Trade     `json:"trade,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// Config selects the notification channels.
type Config struct {
	Log            bool   `yaml:"log" default:"true"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	WebhookURL     string `yaml:"webhook_url" validate:"omitempty,url"`
}

// New builds a notifier from cfg. It returns nil when no channel is enabled.
func New(cfg Config) Notifier {
	var ns Multi
	if cfg.Log {
		ns = append(ns, NewLogNotifier())
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		ns = append(ns, NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		ns = append(ns, NewWebhookNotifier(cfg.WebhookURL))
	}
	switch len(ns) {
	case 0:
		return nil
	case 1:
		return ns[0]
	}
	return ns
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
