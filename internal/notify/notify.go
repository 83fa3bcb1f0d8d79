package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/veridata/quality-cli/internal/model"
)

// Notifier delivers a fired alert. The returned map reports success per
// channel name so callers can log partial delivery.
type Notifier interface {
	Send(ctx context.Context, a *model.Alert) map[string]bool
}

// Log writes alerts to the structured logger. Always succeeds.
type Log struct{}

func (Log) Send(_ context.Context, a *model.Alert) map[string]bool {
	zap.L().Warn("quality alert",
		zap.String("rule", a.RuleName),
		zap.String("subject_kind", string(a.SubjectKind)),
		zap.String("subject_id", a.SubjectID),
		zap.String("severity", string(a.Severity)),
		zap.Float64("value", a.MetricValue),
		zap.Float64("threshold", a.Threshold),
		zap.String("message", a.Message))
	return map[string]bool{"log": true}
}

// Webhook POSTs alerts as JSON to a configured URL, rate limited so an
// alert storm cannot hammer the receiving endpoint. Transient delivery
// failures (network errors, 5xx) are retried with backoff; a 4xx rejection
// is final.
type Webhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	retry   retryPolicy
}

func NewWebhook(url string, perMinute int) *Webhook {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		retry:   defaultRetryPolicy(),
	}
}

func (w *Webhook) Send(ctx context.Context, a *model.Alert) map[string]bool {
	result := map[string]bool{"webhook": false}
	if w.url == "" {
		return result
	}
	if err := w.limiter.Wait(ctx); err != nil {
		zap.L().Warn("webhook rate limit wait aborted", zap.Error(err))
		return result
	}

	body, err := json.Marshal(a)
	if err != nil {
		zap.L().Error("webhook payload marshal failed", zap.Error(err))
		return result
	}
	if err := w.retry.do(ctx, func(ctx context.Context) error {
		return w.post(ctx, body)
	}); err != nil {
		zap.L().Warn("webhook delivery failed", zap.String("rule", a.RuleName), zap.Error(err))
		return result
	}
	result["webhook"] = true
	return result
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return permanentError{eris.Wrap(err, "notify: build webhook request")}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook post")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return eris.Errorf("notify: webhook returned %d", resp.StatusCode)
	default:
		return permanentError{eris.Errorf("notify: webhook rejected alert with %d", resp.StatusCode)}
	}
}

// Multi fans an alert out to several notifiers and merges their results.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, a *model.Alert) map[string]bool {
	merged := make(map[string]bool)
	for _, n := range m {
		for channel, ok := range n.Send(ctx, a) {
			merged[channel] = ok
		}
	}
	return merged
}
