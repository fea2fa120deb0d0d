// Package notify sends operator alerts for proposals, breaker trips and
// errors.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"options-engine/internal/config"
	"options-engine/internal/models"
	"options-engine/internal/security"
	"options-engine/pkg/utils"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendProposals(ctx context.Context, runID string, proposals []models.Proposal) error
	SendCircuitTrip(ctx context.Context, strategy models.StrategyID, rejects int, reason string) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationProposal NotificationType = "proposal"
	NotificationRisk     NotificationType = "risk"
	NotificationError    NotificationType = "error"
	NotificationInfo     NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll           NotificationLevel = "all"
	LevelProposalsOnly NotificationLevel = "proposals_only"
	LevelErrorsOnly    NotificationLevel = "errors_only"
)

// maxListed caps the proposals listed in one run alert.
const maxListed = 5

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a new MultiNotifier with the given configuration.
func NewMultiNotifier(cfg *config.NotificationConfig) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		level:    NotificationLevel(cfg.Level),
	}
	if mn.level == "" {
		mn.level = LevelAll
	}

	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}
	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

func (mn *MultiNotifier) shouldSend(t NotificationType) bool {
	switch mn.level {
	case LevelProposalsOnly:
		return t == NotificationProposal
	case LevelErrorsOnly:
		return t == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels. Every channel is
// attempted; failures are joined into one error.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendProposals sends one summary of a run's top proposals. Nothing is sent
// for an empty run.
func (mn *MultiNotifier) SendProposals(ctx context.Context, runID string, proposals []models.Proposal) error {
	if len(proposals) == 0 {
		return nil
	}
	return mn.Send(ctx, ProposalsNotification(runID, proposals))
}

// SendCircuitTrip alerts that a strategy was disabled by the reject breaker.
func (mn *MultiNotifier) SendCircuitTrip(ctx context.Context, strategy models.StrategyID, rejects int, reason string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationRisk,
		Title:   fmt.Sprintf("Circuit tripped: %s", strategy),
		Message: fmt.Sprintf("%d rejects in window. Last: %s", rejects, reason),
		Data: map[string]interface{}{
			"strategy": string(strategy),
			"rejects":  rejects,
		},
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Engine error",
		Message: fmt.Sprintf("%s: %v", errContext, err),
		Data:    map[string]interface{}{"context": errContext},
	})
}

// ProposalsNotification formats the top of a ranked list.
func ProposalsNotification(runID string, proposals []models.Proposal) Notification {
	var b strings.Builder
	for i, p := range proposals {
		if i == maxListed {
			fmt.Fprintf(&b, "…and %d more\n", len(proposals)-maxListed)
			break
		}
		fmt.Fprintf(&b, "%d. %s %s score %d", i+1, p.Symbol, p.Strategy, p.Score)
		switch {
		case p.Credit != nil:
			fmt.Fprintf(&b, " | credit %s", utils.FormatUSD(*p.Credit))
		case p.Debit != nil:
			fmt.Fprintf(&b, " | debit %s", utils.FormatUSD(*p.Debit))
		}
		if exp := p.Expiry(); exp != "" {
			fmt.Fprintf(&b, " | exp %s", exp)
		}
		b.WriteString("\n")
	}
	return Notification{
		Type:    NotificationProposal,
		Title:   fmt.Sprintf("%d new proposal(s)", len(proposals)),
		Message: strings.TrimRight(b.String(), "\n"),
		Data: map[string]interface{}{
			"run_id": runID,
			"count":  len(proposals),
		},
	}
}


// WebhookNotifier posts to a Slack-compatible incoming webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification. The "text" field carries the rendered
// message; the remaining fields are for non-Slack receivers.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"text":      fmt.Sprintf("*%s*\n%s", n.Title, n.Message),
		"type":      n.Type,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "optengine/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %s", security.MaskSecrets(err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// TelegramNotifier sends notifications via Telegram bot.
type TelegramNotifier struct {
	baseURL  string
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		baseURL:  "https://api.telegram.org",
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification via Telegram.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %s", security.MaskSecrets(err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// NoOpNotifier discards everything.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

func (NoOpNotifier) Send(context.Context, Notification) error { return nil }

func (NoOpNotifier) SendProposals(context.Context, string, []models.Proposal) error { return nil }

func (NoOpNotifier) SendCircuitTrip(context.Context, models.StrategyID, int, string) error {
	return nil
}

func (NoOpNotifier) SendError(context.Context, error, string) error { return nil }
