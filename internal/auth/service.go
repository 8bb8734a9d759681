// Package auth は認証ライフサイクル（ログイン・リフレッシュ・ログアウト・
// パスワード変更・プロフィール更新）とリクエストのガードを提供する。
package auth

import (
	"context"
	"fmt"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/metrics"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/repository"
	"github.com/hitoshi/ledgerbook/internal/security"
	"github.com/hitoshi/ledgerbook/internal/token"
)

// TokenPair はアクセストークンとリフレッシュトークンの組。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
}

// LoginResult はログイン成功時の応答内容。
type LoginResult struct {
	TokenPair
	User *model.User
}

// ProfileUpdate はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Email    *string
	FullName *string
}

// Service は認証ライフサイクルを実装する。
// ログイン・ログアウト・パスワード変更・プロフィール更新は監査レコードと
// 同一トランザクションでコミットされる。
type Service struct {
	users   repository.UserRepository
	hasher  *security.PasswordHasher
	tokens  *token.Service
	uow     repository.UnitOfWork
	auditor *audit.Recorder
	metrics metrics.EventRecorder
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	hasher *security.PasswordHasher,
	tokens *token.Service,
	uow repository.UnitOfWork,
	auditor *audit.Recorder,
	m metrics.EventRecorder,
) *Service {
	return &Service{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		uow:     uow,
		auditor: auditor,
		metrics: m,
	}
}

// Login は資格情報を検証し、トークンペアを発行してLOGIN監査レコードを書く。
// ユーザー不在・無効化済み・パスワード不一致は区別せず同一のエラーを返し、
// ユーザー名の存在を推測させない。
func (s *Service) Login(ctx context.Context, username, password string, origin audit.Origin) (*LoginResult, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user for login: %w", err)
	}
	if user == nil || !user.IsActive || !s.hasher.Verify(password, user.PasswordHash) {
		s.metrics.RecordLoginFailure()
		return nil, model.NewAuthError(model.MsgIncorrectCredentials)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	err = s.uow.Within(ctx, func(q repository.Querier) error {
		_, err := s.auditor.Record(ctx, q, audit.Entry{
			ActorID:   user.ID,
			Action:    model.ActionLogin,
			TableName: model.AuditTableUsers,
			RecordID:  &user.ID,
			Origin:    origin,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLoginSuccess()
	s.metrics.RecordAuditWritten(string(model.ActionLogin))

	return &LoginResult{TokenPair: *pair, User: user}, nil
}

// Refresh はリフレッシュトークンを検証し、新しいトークンペアを発行する。
// ユーザーが無効化されていればトークンが有効でも拒否する。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	subject, err := s.tokens.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		s.metrics.RecordTokenRejected()
		return nil, err
	}

	user, err := s.users.FindByID(ctx, subject.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user for refresh: %w", err)
	}
	if user == nil || !user.IsActive {
		s.metrics.RecordTokenRejected()
		return nil, model.NewAuthError(model.MsgInvalidToken)
	}

	return s.issuePair(user)
}

// Logout はLOGOUT監査レコードを書く。トークン自体はステートレスなので
// サーバー側の失効処理はなく、破棄はクライアントの責任。
func (s *Service) Logout(ctx context.Context, actor *model.User, origin audit.Origin) error {
	err := s.uow.Within(ctx, func(q repository.Querier) error {
		_, err := s.auditor.Record(ctx, q, audit.Entry{
			ActorID:   actor.ID,
			Action:    model.ActionLogout,
			TableName: model.AuditTableUsers,
			RecordID:  &actor.ID,
			Origin:    origin,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.RecordAuditWritten(string(model.ActionLogout))
	return nil
}

// ChangePassword は現在のパスワードを再検証したうえで新しいパスワードに
// 更新する。監査レコードには真偽値マーカーのみを残し、ハッシュ値も平文も
// 決して記録しない。
func (s *Service) ChangePassword(ctx context.Context, actor *model.User, currentPassword, newPassword string, origin audit.Origin) error {
	if !s.hasher.Verify(currentPassword, actor.PasswordHash) {
		return model.NewValidationError("Current password is incorrect")
	}
	if err := security.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}
	actor.PasswordHash = hash

	err = s.uow.Within(ctx, func(q repository.Querier) error {
		if err := s.users.Update(ctx, q, actor); err != nil {
			return err
		}
		_, err := s.auditor.Record(ctx, q, audit.Entry{
			ActorID:   actor.ID,
			Action:    model.ActionUpdate,
			TableName: model.AuditTableUsers,
			RecordID:  &actor.ID,
			NewValues: map[string]any{"password_changed": true},
			Origin:    origin,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.RecordMutation(string(model.ActionUpdate), model.AuditTableUsers)
	s.metrics.RecordAuditWritten(string(model.ActionUpdate))
	return nil
}

// UpdateProfile は自分自身のメールアドレスと氏名を更新する。
// 監査レコードには実際に変わったフィールドのみを記録する。
// 変更が1つもなければ何も書かずにそのまま返す。
func (s *Service) UpdateProfile(ctx context.Context, actor *model.User, update ProfileUpdate, origin audit.Origin) (*model.User, error) {
	oldValues := map[string]any{}
	newValues := map[string]any{}

	if update.Email != nil && *update.Email != actor.Email {
		taken, err := s.users.EmailTaken(ctx, *update.Email, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if taken {
			return nil, model.NewValidationError("Email already registered")
		}
		oldValues["email"] = actor.Email
		newValues["email"] = *update.Email
		actor.Email = *update.Email
	}
	if update.FullName != nil && *update.FullName != actor.FullName {
		oldValues["full_name"] = actor.FullName
		newValues["full_name"] = *update.FullName
		actor.FullName = *update.FullName
	}

	if len(newValues) == 0 {
		return actor, nil
	}

	err := s.uow.Within(ctx, func(q repository.Querier) error {
		if err := s.users.Update(ctx, q, actor); err != nil {
			return err
		}
		_, err := s.auditor.Record(ctx, q, audit.Entry{
			ActorID:   actor.ID,
			Action:    model.ActionUpdate,
			TableName: model.AuditTableUsers,
			RecordID:  &actor.ID,
			OldValues: oldValues,
			NewValues: newValues,
			Origin:    origin,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMutation(string(model.ActionUpdate), model.AuditTableUsers)
	s.metrics.RecordAuditWritten(string(model.ActionUpdate))
	return actor, nil
}

func (s *Service) issuePair(user *model.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    s.tokens.AccessTTLSeconds(),
	}, nil
}
