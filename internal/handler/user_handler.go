package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/middleware"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/user"
)

// UserServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	Create(ctx context.Context, actor *model.User, origin audit.Origin, input user.CreateInput) (*model.User, error)
	Update(ctx context.Context, actor *model.User, origin audit.Origin, id int64, input user.UpdateInput) (*model.User, error)
	Delete(ctx context.Context, actor *model.User, origin audit.Origin, id int64) error
}

// UserHandler はユーザー管理のHTTPハンドラー。全ルートが管理者限定。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type userCreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type userUpdateRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// List は全ユーザーを返す。
// GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	responses := make([]userResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, responses)
}

// Get は指定IDのユーザーを返す。
// GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Create は新しいユーザーを作成する。
// POST /api/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, model.NewAuthError(model.MsgInvalidToken))
		return
	}

	var req userCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		middleware.WriteError(r.Context(), w, model.NewValidationError("Username, email and password are required"))
		return
	}

	created, err := h.service.Create(r.Context(), actor, requestOrigin(r), user.CreateInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(created))
}

// Update はユーザーのフィールドを更新する。
// PUT /api/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	var req userUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), actor, requestOrigin(r), id, user.UpdateInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// Delete はユーザーを無効化する。
// DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, map[string]string{"message": "User deactivated successfully"})
}
