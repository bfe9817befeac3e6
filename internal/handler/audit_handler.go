package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/guildgate/internal/model"
)

// AuditServiceInterface は監査ログハンドラーが必要とするサービスインターフェース。
type AuditServiceInterface interface {
	ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error)
	ListByEntity(ctx context.Context, entity model.AuditEntity, entityID string) ([]*model.AuditLog, error)
}

// AuditHandler は監査ログ参照APIのHTTPハンドラー。
type AuditHandler struct {
	service AuditServiceInterface
}

// NewAuditHandler はAuditHandlerを生成する。
func NewAuditHandler(service AuditServiceInterface) *AuditHandler {
	return &AuditHandler{service: service}
}

type auditLogResponse struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entityId"`
	Details    json.RawMessage `json:"details,omitempty"`
	ActorID    string          `json:"actorId"`
	ActorEmail string          `json:"actorEmail,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func toAuditLogResponses(logs []*model.AuditLog) []auditLogResponse {
	responses := make([]auditLogResponse, len(logs))
	for i, entry := range logs {
		var details json.RawMessage
		if entry.Details != "" {
			details = json.RawMessage(entry.Details)
		}
		responses[i] = auditLogResponse{
			ID:         entry.ID,
			Action:     string(entry.Action),
			Entity:     string(entry.Entity),
			EntityID:   entry.EntityID,
			Details:    details,
			ActorID:    entry.ActorID,
			ActorEmail: entry.ActorEmail,
			CreatedAt:  entry.CreatedAt,
		}
	}
	return responses
}

// ListRecent は直近の監査ログを新しい順に返す。
// GET /api/audit?limit=100
func (h *AuditHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("limitは整数で指定してください"))
			return
		}
		limit = parsed
	}

	logs, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toAuditLogResponses(logs))
}

// ListByEntity は特定エンティティの監査ログを返す。
// GET /api/audit/{entity}/{entityID}
func (h *AuditHandler) ListByEntity(w http.ResponseWriter, r *http.Request) {
	entity := model.AuditEntity(chi.URLParam(r, "entity"))
	switch entity {
	case model.AuditEntityTenant, model.AuditEntitySettings, model.AuditEntitySession:
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("不明なエンティティ種別です"))
		return
	}

	logs, err := h.service.ListByEntity(r.Context(), entity, chi.URLParam(r, "entityID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toAuditLogResponses(logs))
}
