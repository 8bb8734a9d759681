// Package user は管理者によるユーザーアカウント管理を提供する。
package user

import (
	"context"
	"fmt"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/auth"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/pipeline"
	"github.com/hitoshi/ledgerbook/internal/repository"
	"github.com/hitoshi/ledgerbook/internal/security"
)

// CreateInput はユーザー作成の入力。
type CreateInput struct {
	Username string
	Email    string
	FullName string
	Password string
	Role     string
}

// UpdateInput はユーザー更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Username *string
	Email    *string
	FullName *string
	Password *string
	Role     *string
	IsActive *bool
}

// Service はユーザーアカウントのユースケースを実装する。全操作が管理者限定。
// 削除は行レベルの削除ではなく無効化であり、無効化されたユーザーの
// トークンは次のリクエストのアクティブ確認で失効する。
type Service struct {
	users  repository.UserRepository
	hasher *security.PasswordHasher
	guard  *auth.Guard
	pipe   *pipeline.Pipeline
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, hasher *security.PasswordHasher, guard *auth.Guard, pipe *pipeline.Pipeline) *Service {
	return &Service{users: users, hasher: hasher, guard: guard, pipe: pipe}
}

// List は全ユーザーを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// Get は指定IDのユーザーを取得する。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("User")
	}
	return user, nil
}

// Create は新しいユーザーを作成する。
func (s *Service) Create(ctx context.Context, actor *model.User, origin audit.Origin, input CreateInput) (*model.User, error) {
	role, err := model.ParseRole(input.Role)
	if err != nil {
		return nil, model.NewValidationError("Role must be admin or viewer")
	}
	if err := security.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	if err := s.checkUniqueness(ctx, input.Username, input.Email, 0); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	outcome, err := s.pipe.Run(ctx, actor, origin, pipeline.Mutation{
		Action:    model.ActionCreate,
		TableName: model.AuditTableUsers,
		AdminOnly: true,
		Execute: func(ctx context.Context, q repository.Querier, actor *model.User) (*pipeline.Outcome, error) {
			created := &model.User{
				Username:     input.Username,
				Email:        input.Email,
				FullName:     input.FullName,
				Role:         role,
				IsActive:     true,
				PasswordHash: hash,
			}
			if err := s.users.Create(ctx, q, created); err != nil {
				return nil, err
			}
			return &pipeline.Outcome{
				RecordID:  &created.ID,
				NewValues: userSnapshot(created),
				Result:    created,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return outcome.Result.(*model.User), nil
}

// Update はユーザーのフィールドを更新する。
// 自分自身の無効化は禁止する。パスワードが含まれる場合、監査レコードには
// 真偽値マーカーのみを残す。
func (s *Service) Update(ctx context.Context, actor *model.User, origin audit.Origin, id int64, input UpdateInput) (*model.User, error) {
	if input.IsActive != nil && !*input.IsActive {
		if err := s.guard.ForbidSelfTarget(actor, id); err != nil {
			return nil, err
		}
	}

	var role *model.Role
	if input.Role != nil {
		parsed, err := model.ParseRole(*input.Role)
		if err != nil {
			return nil, model.NewValidationError("Role must be admin or viewer")
		}
		role = &parsed
	}
	var hash string
	if input.Password != nil {
		if err := security.ValidatePassword(*input.Password); err != nil {
			return nil, err
		}
		hashed, err := s.hasher.Hash(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		hash = hashed
	}

	outcome, err := s.pipe.Run(ctx, actor, origin, pipeline.Mutation{
		Action:    model.ActionUpdate,
		TableName: model.AuditTableUsers,
		AdminOnly: true,
		Execute: func(ctx context.Context, q repository.Querier, actor *model.User) (*pipeline.Outcome, error) {
			target, err := s.users.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if target == nil {
				return nil, model.NewNotFoundError("User")
			}

			username := target.Username
			if input.Username != nil {
				username = *input.Username
			}
			email := target.Email
			if input.Email != nil {
				email = *input.Email
			}
			if err := s.checkUniqueness(ctx, username, email, target.ID); err != nil {
				return nil, err
			}

			oldValues := map[string]any{}
			newValues := map[string]any{}
			if username != target.Username {
				oldValues["username"] = target.Username
				newValues["username"] = username
				target.Username = username
			}
			if email != target.Email {
				oldValues["email"] = target.Email
				newValues["email"] = email
				target.Email = email
			}
			if input.FullName != nil && *input.FullName != target.FullName {
				oldValues["full_name"] = target.FullName
				newValues["full_name"] = *input.FullName
				target.FullName = *input.FullName
			}
			if role != nil && *role != target.Role {
				oldValues["role"] = string(target.Role)
				newValues["role"] = string(*role)
				target.Role = *role
			}
			if input.IsActive != nil && *input.IsActive != target.IsActive {
				oldValues["is_active"] = target.IsActive
				newValues["is_active"] = *input.IsActive
				target.IsActive = *input.IsActive
			}
			if input.Password != nil {
				newValues["password_changed"] = true
				target.PasswordHash = hash
			}

			if len(newValues) > 0 {
				if err := s.users.Update(ctx, q, target); err != nil {
					return nil, err
				}
			}
			return &pipeline.Outcome{
				RecordID:  &target.ID,
				OldValues: oldValues,
				NewValues: newValues,
				Result:    target,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return outcome.Result.(*model.User), nil
}

// Delete はユーザーを無効化する。行は削除せず、監査証跡の参照整合性を保つ。
// 自分自身の無効化は禁止する。
func (s *Service) Delete(ctx context.Context, actor *model.User, origin audit.Origin, id int64) error {
	if err := s.guard.ForbidSelfTarget(actor, id); err != nil {
		return err
	}

	_, err := s.pipe.Run(ctx, actor, origin, pipeline.Mutation{
		Action:    model.ActionDelete,
		TableName: model.AuditTableUsers,
		AdminOnly: true,
		Execute: func(ctx context.Context, q repository.Querier, actor *model.User) (*pipeline.Outcome, error) {
			target, err := s.users.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if target == nil {
				return nil, model.NewNotFoundError("User")
			}

			snapshot := userSnapshot(target)
			target.IsActive = false
			if err := s.users.Update(ctx, q, target); err != nil {
				return nil, err
			}
			return &pipeline.Outcome{
				RecordID:  &target.ID,
				OldValues: snapshot,
				NewValues: map[string]any{"is_active": false},
			}, nil
		},
	})
	return err
}

// checkUniqueness はusernameとemailが他のユーザーと重複しないことを確認する。
func (s *Service) checkUniqueness(ctx context.Context, username, email string, excludeID int64) error {
	taken, err := s.users.UsernameTaken(ctx, username, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return model.NewValidationError("Username already registered")
	}
	taken, err = s.users.EmailTaken(ctx, email, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return model.NewValidationError("Email already registered")
	}
	return nil
}

// userSnapshot は監査レコード用のスナップショットを作る。
// パスワードハッシュは決して含めない。
func userSnapshot(user *model.User) map[string]any {
	return map[string]any{
		"username":  user.Username,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      string(user.Role),
		"is_active": user.IsActive,
	}
}
