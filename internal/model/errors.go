// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind はAPIエラーの分類を表す。
// ハンドラーはKindからHTTPステータスへ機械的に変換する。
type ErrorKind string

const (
	// KindAuth は認証失敗（401）。メッセージは常に一般化され、
	// どの検査で失敗したかを漏らさない。
	KindAuth ErrorKind = "auth"
	// KindForbidden は認可失敗（403）。
	KindForbidden ErrorKind = "forbidden"
	// KindValidation は入力検証失敗（400）。
	KindValidation ErrorKind = "validation"
	// KindNotFound は対象リソース不在（404）。
	KindNotFound ErrorKind = "not_found"
	// KindInternal は予期しない内部エラー（500）。詳細はログのみに残す。
	KindInternal ErrorKind = "internal"
)

// APIError は統一エラーフォーマットを表す。
// 例外伝播の代わりに、各層はこの型を明示的に返す。
type APIError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// HTTPStatus はKindに対応するHTTPステータスコードを返す。
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// 定義済みエラーコード
const (
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ユーザー向けの正規メッセージ。
// ログイン失敗はユーザー列挙を防ぐため原因によらず同一文言を返す。
const (
	MsgIncorrectCredentials = "Incorrect username or password"
	MsgInvalidToken         = "Invalid or expired token"
	MsgAdminRequired        = "Admin access required"
	MsgCannotDeleteSelf     = "Cannot delete your own account"
	MsgInternalError        = "Internal server error"
)

// NewAuthError は認証エラーを生成する。
func NewAuthError(message string) *APIError {
	return &APIError{Kind: KindAuth, Code: ErrCodeAuthFailed, Message: message}
}

// NewForbiddenError は認可エラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{Kind: KindForbidden, Code: ErrCodeForbidden, Message: message}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{Kind: KindValidation, Code: ErrCodeValidationFailed, Message: message}
}

// NewNotFoundError はリソース不在エラーを生成する。
func NewNotFoundError(resource string) *APIError {
	return &APIError{Kind: KindNotFound, Code: ErrCodeNotFound, Message: resource + " not found"}
}

// NewInternalError は内部エラーを生成する。
// 呼び出し側は元のエラーをログに残し、ユーザーには一般メッセージのみを返す。
func NewInternalError() *APIError {
	return &APIError{Kind: KindInternal, Code: ErrCodeInternal, Message: MsgInternalError}
}

// AsAPIError はエラーチェーンからAPIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
