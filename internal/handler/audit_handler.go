package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/ledgerbook/internal/middleware"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/repository"
)

// AuditServiceInterface は監査証跡ハンドラーが必要とするサービスインターフェース。
type AuditServiceInterface interface {
	List(ctx context.Context, filter repository.AuditFilter) ([]*model.AuditRecord, int, error)
	Get(ctx context.Context, id int64) (*model.AuditRecord, error)
}

// AuditHandler は監査証跡のHTTPハンドラー。全ルートが管理者限定。
type AuditHandler struct {
	service AuditServiceInterface
}

// NewAuditHandler はAuditHandlerを生成する。
func NewAuditHandler(service AuditServiceInterface) *AuditHandler {
	return &AuditHandler{service: service}
}

// auditResponse は監査レコードの公開表現。
type auditResponse struct {
	ID         int64          `json:"id"`
	UserID     int64          `json:"user_id"`
	ActionType string         `json:"action_type"`
	TableName  string         `json:"table_name"`
	RecordID   *int64         `json:"record_id"`
	OldValues  map[string]any `json:"old_values"`
	NewValues  map[string]any `json:"new_values"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`
}

func toAuditResponse(record *model.AuditRecord) auditResponse {
	return auditResponse{
		ID:         record.ID,
		UserID:     record.UserID,
		ActionType: string(record.ActionType),
		TableName:  record.TableName,
		RecordID:   record.RecordID,
		OldValues:  record.OldValues,
		NewValues:  record.NewValues,
		IPAddress:  record.IPAddress,
		UserAgent:  record.UserAgent,
		CreatedAt:  record.CreatedAt,
	}
}

type auditListResponse struct {
	Items   []auditResponse `json:"items"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
	Pages   int             `json:"pages"`
}

// auditFilterFromQuery はクエリパラメータから一覧フィルタを構築する。
func auditFilterFromQuery(r *http.Request) repository.AuditFilter {
	page, perPage := pageParams(r)
	filter := repository.AuditFilter{
		TableName: r.URL.Query().Get("table_name"),
		Search:    r.URL.Query().Get("search"),
		StartDate: queryDate(r, "start_date", false),
		EndDate:   queryDate(r, "end_date", true),
		Page:      page,
		PerPage:   perPage,
	}
	if raw := r.URL.Query().Get("action_type"); raw != "" {
		if parsed, err := model.ParseActionType(raw); err == nil {
			filter.ActionType = &parsed
		}
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		if userID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.UserID = &userID
		}
	}
	return filter
}

// List は監査レコードの一覧を新しい順で返す。
// GET /api/audit-logs
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := auditFilterFromQuery(r)

	records, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	items := make([]auditResponse, 0, len(records))
	for _, record := range records {
		items = append(items, toAuditResponse(record))
	}
	writeJSON(w, http.StatusOK, auditListResponse{
		Items:   items,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Pages:   totalPages(total, filter.PerPage),
	})
}

// Get は指定IDの監査レコードを返す。
// GET /api/audit-logs/{id}
func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuditResponse(record))
}
