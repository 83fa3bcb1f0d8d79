package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/quality-cli/internal/model"
)

func testAlert() *model.Alert {
	return &model.Alert{
		ID:          "al-1",
		RuleName:    "low_overall_quality",
		SubjectKind: model.SubjectEntity,
		SubjectID:   "e1",
		Severity:    model.SeverityHigh,
		MetricValue: 0.3,
		Threshold:   0.5,
		Message:     "overall quality 0.30 below 0.50",
		TriggeredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// --- Log ---

func TestLog_AlwaysSucceeds(t *testing.T) {
	result := Log{}.Send(context.Background(), testAlert())
	assert.Equal(t, map[string]bool{"log": true}, result)
}

// --- Webhook ---

func TestWebhook_DeliversJSON(t *testing.T) {
	var got model.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	result := NewWebhook(srv.URL, 60).Send(context.Background(), testAlert())

	assert.Equal(t, map[string]bool{"webhook": true}, result)
	assert.Equal(t, "low_overall_quality", got.RuleName)
	assert.Equal(t, "e1", got.SubjectID)
}

func TestWebhook_ClientErrorIsNotRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	result := NewWebhook(srv.URL, 60).Send(context.Background(), testAlert())
	assert.Equal(t, map[string]bool{"webhook": false}, result)
	assert.Equal(t, 1, requests)
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	wh := NewWebhook(srv.URL, 60)
	wh.retry.initialBackoff = time.Millisecond

	result := wh.Send(context.Background(), testAlert())
	assert.Equal(t, map[string]bool{"webhook": true}, result)
	assert.Equal(t, 2, requests)
}

func TestWebhook_GivesUpAfterMaxAttempts(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	wh := NewWebhook(srv.URL, 60)
	wh.retry.initialBackoff = time.Millisecond

	result := wh.Send(context.Background(), testAlert())
	assert.Equal(t, map[string]bool{"webhook": false}, result)
	assert.Equal(t, 3, requests)
}

func TestWebhook_EmptyURLIsNoop(t *testing.T) {
	result := NewWebhook("", 60).Send(context.Background(), testAlert())
	assert.Equal(t, map[string]bool{"webhook": false}, result)
}

func TestWebhook_CancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewWebhook("http://127.0.0.1:1", 60).Send(ctx, testAlert())
	assert.False(t, result["webhook"])
}

// --- Multi ---

type stubNotifier map[string]bool

func (s stubNotifier) Send(context.Context, *model.Alert) map[string]bool { return s }

func TestMulti_MergesChannels(t *testing.T) {
	m := Multi{
		stubNotifier{"log": true},
		stubNotifier{"webhook": false},
	}

	result := m.Send(context.Background(), testAlert())
	assert.Equal(t, map[string]bool{"log": true, "webhook": false}, result)
}
