// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/middleware"
	"github.com/hitoshi/ledgerbook/internal/model"
)

// defaultPerPage は一覧系エンドポイントの1ページあたりのデフォルト件数。
const defaultPerPage = 10

// maxPerPage は1ページあたりの上限件数。
const maxPerPage = 100

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをJSONとしてデコードする。
// 未知のフィールドは無視する。不正なボディは検証エラーとして報告する。
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewValidationError("Invalid request body")
	}
	return nil
}

// pathID はURLパラメータ{id}を数値IDとして取り出す。
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("Invalid ID")
	}
	return id, nil
}

// requestOrigin は監査レコード用の発信元情報をリクエストから取り出す。
func requestOrigin(r *http.Request) audit.Origin {
	return audit.Origin{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// queryInt はクエリパラメータを整数として読む。不在・不正ならfallbackを返す。
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// pageParams はページネーションパラメータを読み、範囲内に正規化する。
func pageParams(r *http.Request) (page, perPage int) {
	page = queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage = queryInt(r, "per_page", defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// queryDate はYYYY-MM-DD形式のクエリパラメータを読む。
// endOfDayがtrueの場合はその日の終端（23:59:59）を返す。
// 不正な形式は無視してnilを返す。
func queryDate(r *http.Request, key string, endOfDay bool) *time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	if endOfDay {
		parsed = parsed.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	return &parsed
}

// totalPages は総件数からページ数を計算する。
func totalPages(total, perPage int) int {
	return (total + perPage - 1) / perPage
}
