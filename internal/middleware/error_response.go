package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/ledgerbook/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// APIErrorでないエラーは詳細をログにのみ残し、ユーザーには一般化した
// 500レスポンスを返す。
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		slog.ErrorContext(ctx, "unexpected error", slog.String("error", err.Error()))
		apiErr = model.NewInternalError()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:    apiErr.Code,
		Message: apiErr.Message,
	})
}
