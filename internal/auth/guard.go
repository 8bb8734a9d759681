package auth

import (
	"context"
	"fmt"

	"github.com/hitoshi/ledgerbook/internal/metrics"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/repository"
	"github.com/hitoshi/ledgerbook/internal/token"
)

// Guard はリクエストの認証と認可を判定する。
// トークンの署名・有効期限・種別の検証に加えて、ユーザーが現在も
// 存在しアクティブであることを毎回データベースで確認する。
// 無効化されたユーザーの発行済みトークンはこの確認で即座に失効する。
type Guard struct {
	tokens  *token.Service
	users   repository.UserRepository
	metrics metrics.EventRecorder
}

// NewGuard はGuardを生成する。
func NewGuard(tokens *token.Service, users repository.UserRepository, m metrics.EventRecorder) *Guard {
	return &Guard{tokens: tokens, users: users, metrics: m}
}

// RequireAuthenticated はアクセストークンを検証し、対応するアクティブな
// ユーザーを返す。失敗理由は区別せず、常に同一の認証エラーを返す。
func (g *Guard) RequireAuthenticated(ctx context.Context, tokenString string) (*model.User, error) {
	subject, err := g.tokens.Verify(tokenString, token.TypeAccess)
	if err != nil {
		g.metrics.RecordTokenRejected()
		return nil, err
	}

	user, err := g.users.FindByID(ctx, subject.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user for token: %w", err)
	}
	if user == nil || !user.IsActive {
		g.metrics.RecordTokenRejected()
		return nil, model.NewAuthError(model.MsgInvalidToken)
	}

	return user, nil
}

// RequireAdmin はユーザーが管理者ロールであることを要求する。
func (g *Guard) RequireAdmin(user *model.User) error {
	if user == nil || user.Role != model.RoleAdmin {
		return model.NewForbiddenError(model.MsgAdminRequired)
	}
	return nil
}

// ForbidSelfTarget は管理者が自分自身のアカウントを削除・無効化する
// 操作を禁止する。最後の管理者が自分をロックアウトする事故を防ぐ。
func (g *Guard) ForbidSelfTarget(actor *model.User, targetID int64) error {
	if actor != nil && actor.ID == targetID {
		return model.NewForbiddenError(model.MsgCannotDeleteSelf)
	}
	return nil
}
