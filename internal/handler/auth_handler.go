package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/auth"
	"github.com/hitoshi/ledgerbook/internal/middleware"
	"github.com/hitoshi/ledgerbook/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string, origin audit.Origin) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, actor *model.User, origin audit.Origin) error
	ChangePassword(ctx context.Context, actor *model.User, currentPassword, newPassword string, origin audit.Origin) error
	UpdateProfile(ctx context.Context, actor *model.User, update auth.ProfileUpdate, origin audit.Origin) (*model.User, error)
}

// AuthHandler は認証ライフサイクルのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type profileUpdateRequest struct {
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"full_name,omitempty"`
}

// userResponse はユーザーの公開表現。パスワードハッシュは含めない。
type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func toTokenResponse(pair *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	}
}

type loginResponse struct {
	tokenResponse
	User userResponse `json:"user"`
}

// Login は資格情報を検証してトークンペアを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		middleware.WriteError(r.Context(), w, model.NewValidationError("Username and password are required"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password, requestOrigin(r))
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		tokenResponse: toTokenResponse(&result.TokenPair),
		User:          toUserResponse(result.User),
	})
}

// Refresh はリフレッシュトークンから新しいトークンペアを発行する。
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}
	if req.RefreshToken == "" {
		middleware.WriteError(r.Context(), w, model.NewValidationError("Refresh token is required"))
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// Me は認証済みユーザー自身の情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, model.NewAuthError(model.MsgInvalidToken))
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout はLOGOUT監査レコードを残す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, model.NewAuthError(model.MsgInvalidToken))
		return
	}

	if err := h.service.Logout(r.Context(), user, requestOrigin(r)); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

// ChangePassword は現在のパスワードを再検証して新しいパスワードに更新する。
// PUT /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, model.NewAuthError(model.MsgInvalidToken))
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword, requestOrigin(r)); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

// UpdateProfile は自身のメールアドレスと氏名を更新する。
// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, model.NewAuthError(model.MsgInvalidToken))
		return
	}

	var req profileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user, auth.ProfileUpdate{
		Email:    req.Email,
		FullName: req.FullName,
	}, requestOrigin(r))
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}
