package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/ledger"
	"github.com/hitoshi/ledgerbook/internal/middleware"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/repository"
)

// LedgerServiceInterface は台帳ハンドラーが必要とするサービスインターフェース。
type LedgerServiceInterface interface {
	List(ctx context.Context, filter repository.EntryFilter) ([]*model.LedgerEntry, int, error)
	Get(ctx context.Context, id int64) (*model.LedgerEntry, error)
	Balance(ctx context.Context) (*model.Balance, error)
	Create(ctx context.Context, actor *model.User, origin audit.Origin, input ledger.CreateInput) (*model.LedgerEntry, error)
	Update(ctx context.Context, actor *model.User, origin audit.Origin, id int64, input ledger.UpdateInput) (*model.LedgerEntry, error)
	Delete(ctx context.Context, actor *model.User, origin audit.Origin, id int64) error
}

// LedgerHandler は台帳エントリのHTTPハンドラー。
// 閲覧は認証済み全ユーザー、変更は管理者限定。
type LedgerHandler struct {
	service LedgerServiceInterface
}

// NewLedgerHandler はLedgerHandlerを生成する。
func NewLedgerHandler(service LedgerServiceInterface) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

type entryCreateRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
	EntryType   string `json:"entry_type"`
}

type entryUpdateRequest struct {
	Amount      *string `json:"amount,omitempty"`
	Description *string `json:"description,omitempty"`
	EntryType   *string `json:"entry_type,omitempty"`
}

// entryResponse は台帳エントリの公開表現。
// 金額はNUMERICの精度を保つため文字列で返す。
type entryResponse struct {
	ID          int64     `json:"id"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	EntryType   string    `json:"entry_type"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toEntryResponse(entry *model.LedgerEntry) entryResponse {
	return entryResponse{
		ID:          entry.ID,
		Amount:      entry.Amount,
		Description: entry.Description,
		EntryType:   string(entry.EntryType),
		CreatedBy:   entry.CreatedBy,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
}

type entryListResponse struct {
	Items   []entryResponse `json:"items"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
	Pages   int             `json:"pages"`
}

type balanceResponse struct {
	Balance      string `json:"balance"`
	TotalCredits string `json:"total_credits"`
	TotalDebits  string `json:"total_debits"`
}

// entryFilterFromQuery はクエリパラメータから一覧フィルタを構築する。
func entryFilterFromQuery(r *http.Request) repository.EntryFilter {
	page, perPage := pageParams(r)
	filter := repository.EntryFilter{
		Search:    r.URL.Query().Get("search"),
		StartDate: queryDate(r, "start_date", false),
		EndDate:   queryDate(r, "end_date", true),
		Page:      page,
		PerPage:   perPage,
	}
	if raw := r.URL.Query().Get("entry_type"); raw != "" {
		if parsed, err := model.ParseEntryType(raw); err == nil {
			filter.EntryType = &parsed
		}
	}
	return filter
}

// list は一覧取得の共通実装。認証の有無はルーティング側で決まる。
func (h *LedgerHandler) list(w http.ResponseWriter, r *http.Request) {
	filter := entryFilterFromQuery(r)

	entries, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	items := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toEntryResponse(entry))
	}
	writeJSON(w, http.StatusOK, entryListResponse{
		Items:   items,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Pages:   totalPages(total, filter.PerPage),
	})
}

// List は台帳エントリの一覧を返す。
// GET /api/transactions
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r)
}

// PublicList は認証なしの公開一覧を返す。
// GET /api/public/transactions
func (h *LedgerHandler) PublicList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r)
}

// Get は指定IDのエントリを返す。
// GET /api/transactions/{id}
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

// balance は収支取得の共通実装。
func (h *LedgerHandler) balance(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Balance(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Balance:      b.Balance,
		TotalCredits: b.TotalCredits,
		TotalDebits:  b.TotalDebits,
	})
}

// Balance は全体の収支を返す。
// GET /api/transactions/balance
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	h.balance(w, r)
}

// PublicBalance は認証なしの公開収支を返す。
// GET /api/public/balance
func (h *LedgerHandler) PublicBalance(w http.ResponseWriter, r *http.Request) {
	h.balance(w, r)
}

// Create はエントリを作成する。
// POST /api/transactions
func (h *LedgerHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, model.NewAuthError(model.MsgInvalidToken))
		return
	}

	var req entryCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	entry, err := h.service.Create(r.Context(), actor, requestOrigin(r), ledger.CreateInput{
		Amount:      req.Amount,
		Description: req.Description,
		EntryType:   req.EntryType,
	})
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

// Update はエントリを更新する。
// PUT /api/transactions/{id}
func (h *LedgerHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, model.NewAuthError(model.MsgInvalidToken))
		return
	}

	id, err := pathID(r)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	var req entryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	entry, err := h.service.Update(r.Context(), actor, requestOrigin(r), id, ledger.UpdateInput{
		Amount:      req.Amount,
		Description: req.Description,
		EntryType:   req.EntryType,
	})
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

// Delete はエントリをソフトデリートする。
// DELETE /api/transactions/{id}
func (h *LedgerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, model.NewAuthError(model.MsgInvalidToken))
		return
	}

	id, err := pathID(r)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	if err := h.service.Delete(r.Context(), actor, requestOrigin(r), id); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction deleted successfully"})
}
