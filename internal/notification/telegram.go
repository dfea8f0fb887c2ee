package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier posts alerts to a chat through the Bot API sendMessage
// method, formatted as MarkdownV2.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier for chatID using botToken.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// telegramMessage is the sendMessage body. Info alerts are delivered silently.
type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  telegramText(alert),
		ParseMode:             "MarkdownV2",
		DisableWebPagePreview: true,
		DisableNotification:   alert.Level == AlertInfo,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := t.apiBase + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent %s alert: %s", alert.Level, alert.Title)
	return nil
}

// telegramText renders a trade as a level table and anything else as title
// plus message.
func telegramText(alert Alert) string {
	var b strings.Builder
	b.WriteString(levelMark(alert.Level))
	b.WriteString(" *")
	b.WriteString(escapeMarkdown(alert.Title))
	b.WriteString("*\n\n")

	tr := alert.Trade
	if tr == nil {
		b.WriteString(escapeMarkdown(alert.Message))
		return b.String()
	}
	fmt.Fprintf(&b, "Entry  `%s`\nStop   `%s`\nTarget `%s`\n",
		price(tr.Entry), price(tr.StopLoss), price(tr.TakeProfit))
	b.WriteString(escapeMarkdown(fmt.Sprintf("RR %.2f, confidence %.3f, p %.3f",
		tr.RiskReward, tr.Confidence, tr.Probability)))
	if tr.TraceID != "" {
		fmt.Fprintf(&b, "\n_%s_", escapeMarkdown(tr.TraceID))
	}
	return b.String()
}

func levelMark(l AlertLevel) string {
	switch l {
	case AlertWarning:
		return "⚠️"
	case AlertCritical:
		return "🚨"
	}
	return "ℹ️"
}

const markdownV2Specials = "_*[]()~`>#+-=|{}.!\\"

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
