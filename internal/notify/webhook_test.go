package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/guildgate/internal/model"
	"github.com/hitoshi/guildgate/internal/security"
)

func testTenant(webhookURL string) *model.Tenant {
	return &model.Tenant{
		ID:                "tenant-uuid-1",
		Slug:              "acme",
		DiscordWebhookURL: webhookURL,
	}
}

func testUser() *model.User {
	return &model.User{
		ID:       "user-uuid-1",
		Username: "Alice",
		Role:     model.RoleAdmin,
	}
}

// newTestNotifier はテスト用にSSRF防止なしのクライアントを使うNotifierを生成する。
// httptestサーバーはループバックで起動するため、safeurlクライアントでは到達できない。
func newTestNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     slog.Default(),
	}
}

func TestWebhookNotifier_NotifyLogin(t *testing.T) {
	var received webhookPayload
	var contentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("invalid JSON body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	notifier := newTestNotifier()
	notifier.NotifyLogin(context.Background(), testTenant(ts.URL), testUser())

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
	if len(received.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(received.Embeds))
	}
	embed := received.Embeds[0]
	if len(embed.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(embed.Fields))
	}
	if embed.Fields[0].Value != "Alice" {
		t.Errorf("user field = %q, want Alice", embed.Fields[0].Value)
	}
	if embed.Fields[1].Value != "ADMIN" {
		t.Errorf("role field = %q, want ADMIN", embed.Fields[1].Value)
	}
}

func TestWebhookNotifier_SkipsWhenURLEmpty(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	notifier := newTestNotifier()
	notifier.NotifyLogin(context.Background(), testTenant(""), testUser())

	if called {
		t.Error("webhook should not be called when URL is empty")
	}
}

// 配信失敗はpanicもエラー伝播もせず、呼び出しが正常に戻る。
func TestWebhookNotifier_DeliveryFailureIsSwallowed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	notifier := newTestNotifier()
	notifier.NotifyLogin(context.Background(), testTenant(ts.URL), testUser())
}

type mockDeliveryMetrics struct {
	successes int
	failures  int
}

func (m *mockDeliveryMetrics) RecordWebhookDelivery(success bool) {
	if success {
		m.successes++
	} else {
		m.failures++
	}
}

func TestWebhookNotifier_RecordsDeliveryResult(t *testing.T) {
	status := http.StatusNoContent
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer ts.Close()

	metrics := &mockDeliveryMetrics{}
	notifier := newTestNotifier()
	notifier.metrics = metrics

	notifier.NotifyLogin(context.Background(), testTenant(ts.URL), testUser())
	if metrics.successes != 1 || metrics.failures != 0 {
		t.Errorf("after success: successes=%d failures=%d", metrics.successes, metrics.failures)
	}

	status = http.StatusInternalServerError
	notifier.NotifyLogin(context.Background(), testTenant(ts.URL), testUser())
	if metrics.successes != 1 || metrics.failures != 1 {
		t.Errorf("after failure: successes=%d failures=%d", metrics.successes, metrics.failures)
	}

	// URL未設定時は配信試行自体が発生しないため記録されない
	notifier.NotifyLogin(context.Background(), testTenant(""), testUser())
	if metrics.successes+metrics.failures != 2 {
		t.Errorf("skip should not record a delivery result")
	}
}

// 本番用コンストラクタはSSRF防止付きクライアントを使用するため、
// ループバックへの配信はブロックされる。
func TestWebhookNotifier_BlocksLoopbackDelivery(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	notifier := NewWebhookNotifier(security.NewURLGuard(), 5*time.Second, slog.Default(), nil)
	notifier.NotifyLogin(context.Background(), testTenant(ts.URL), testUser())

	if called {
		t.Error("delivery to loopback address should be blocked")
	}
}
