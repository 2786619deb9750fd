package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"autorsa/internal/util"
)

// discordMaxLen is the longest message content, in characters, a Discord
// webhook accepts.
const discordMaxLen = 2000

// WebhookConfig configures a Webhook sink.
type WebhookConfig struct {
	URL         string
	Timeout     time.Duration // whole delivery budget per message
	MaxAttempts int
	RatePerMin  int // negative disables rate limiting
}

// Webhook posts each message as {"content": msg} to a Discord-compatible
// webhook URL. Delivery is best effort: failures are logged and dropped.
type Webhook struct {
	url     string
	timeout time.Duration
	backoff util.Backoff
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewWebhook creates a Webhook sink. Zero values in cfg get defaults: a 10s
// budget, 3 attempts, 30 messages a minute. Client errors other than 429 are
// not retried.
func NewWebhook(cfg WebhookConfig, log *slog.Logger) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RatePerMin == 0 {
		cfg.RatePerMin = 30
	}
	return &Webhook{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		backoff: util.Backoff{Attempts: cfg.MaxAttempts, Base: 250 * time.Millisecond, Max: 2 * time.Second},
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: newLimiter(cfg.RatePerMin, 5),
		log:     log.With("component", "webhook"),
	}
}

// Report delivers msg within the configured time budget.
func (w *Webhook) Report(ctx context.Context, msg string) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	msg = truncate(msg, discordMaxLen)
	body, err := json.Marshal(map[string]string{"content": msg})
	if err != nil {
		w.log.Error("encoding webhook payload", "error", err)
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		w.log.Warn("webhook rate limit wait aborted", "error", err)
		return
	}

	err = w.backoff.Do(ctx, func(ctx context.Context) error {
		return w.post(ctx, body)
	})
	if err != nil {
		w.log.Warn("webhook delivery failed", "error", err)
	}
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %s", resp.Status)
	default:
		return util.Permanent(fmt.Errorf("webhook rejected message: %s", resp.Status))
	}
	return nil
}

// newLimiter allows perMinute messages a minute with bursts of up to burst.
// perMinute <= 0 disables limiting.
func newLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// truncate cuts msg to at most n characters, never inside a rune.
func truncate(msg string, n int) string {
	if utf8.RuneCountInString(msg) <= n {
		return msg
	}
	return string([]rune(msg)[:n])
}
