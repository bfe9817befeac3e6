// Package notify はDiscord Webhookによるログイン通知機能を提供する。
// 通知はベストエフォートで配信され、失敗してもログインフローを妨げない。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/guildgate/internal/model"
	"github.com/hitoshi/guildgate/internal/security"
)

// webhookPayload はDiscord Webhookのリクエストボディ。
type webhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []webhookEmbed `json:"embeds,omitempty"`
}

// webhookEmbed はDiscord Webhookの埋め込みメッセージ。
type webhookEmbed struct {
	Title     string              `json:"title,omitempty"`
	Color     int                 `json:"color,omitempty"`
	Fields    []webhookEmbedField `json:"fields,omitempty"`
	Timestamp string              `json:"timestamp,omitempty"`
}

type webhookEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// embedColor は通知埋め込みの左端カラー（Discordのblurple）。
const embedColor = 0x5865F2

// DeliveryMetrics はWebhook配信結果のメトリクス記録インターフェース。
type DeliveryMetrics interface {
	RecordWebhookDelivery(success bool)
}

// WebhookNotifier はテナントのWebhook URLにログイン通知を配信する。
// Webhook URLはテナント管理者が設定する外部URLであるため、
// 送信はSSRF防止付きクライアント経由で行う。
type WebhookNotifier struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    DeliveryMetrics
}

// NewWebhookNotifier はWebhookNotifierの新しいインスタンスを生成する。
// metricsはnilを許容する。
func NewWebhookNotifier(guard security.URLGuardService, timeout time.Duration, logger *slog.Logger, metrics DeliveryMetrics) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		httpClient: guard.NewSafeClient(timeout),
		logger:     logger,
		metrics:    metrics,
	}
}

// NotifyLogin はログイン成功をテナントのWebhookに通知する。
// Webhook URLが未設定の場合は何もしない。配信失敗はログにのみ残す。
func (n *WebhookNotifier) NotifyLogin(ctx context.Context, tenant *model.Tenant, user *model.User) {
	if tenant.DiscordWebhookURL == "" {
		return
	}

	payload := webhookPayload{
		Embeds: []webhookEmbed{{
			Title: "メンバーがログインしました",
			Color: embedColor,
			Fields: []webhookEmbedField{
				{Name: "ユーザー", Value: user.Username, Inline: true},
				{Name: "ロール", Value: string(user.Role), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}

	if err := n.post(ctx, tenant.DiscordWebhookURL, payload); err != nil {
		if n.metrics != nil {
			n.metrics.RecordWebhookDelivery(false)
		}
		n.logger.Warn("Webhookログイン通知の配信に失敗しました",
			slog.String("tenant_slug", tenant.Slug),
			slog.String("error", err.Error()),
		)
		return
	}

	if n.metrics != nil {
		n.metrics.RecordWebhookDelivery(true)
	}
	n.logger.Debug("Webhookログイン通知を配信しました",
		slog.String("tenant_slug", tenant.Slug),
		slog.String("user_id", user.ID),
	)
}

// post はWebhookエンドポイントにJSONペイロードを送信する。
func (n *WebhookNotifier) post(ctx context.Context, webhookURL string, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ペイロードのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// Discordは成功時204を返すが、2xx全体を成功として扱う。
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhookがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}
