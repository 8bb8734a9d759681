package auth

import (
	"context"
	"testing"

	"github.com/hitoshi/ledgerbook/internal/metrics"
	"github.com/hitoshi/ledgerbook/internal/model"
)

func TestGuardRequireAuthenticated(t *testing.T) {
	hasher := newTestHasher()
	user := activeUser(t, hasher, "Password1")
	tokens := newTestTokenService()

	users := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id int64) (*model.User, error) {
			if id == user.ID {
				return user, nil
			}
			return nil, nil
		},
	}
	guard := NewGuard(tokens, users, metrics.Nop{})

	access, err := tokens.IssueAccess(user)
	if err != nil {
		t.Fatalf("failed to issue access token: %v", err)
	}

	t.Run("valid token", func(t *testing.T) {
		got, err := guard.RequireAuthenticated(context.Background(), access)
		if err != nil {
			t.Fatalf("RequireAuthenticated failed: %v", err)
		}
		if got.ID != user.ID {
			t.Errorf("user ID = %d, want %d", got.ID, user.ID)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := guard.RequireAuthenticated(context.Background(), "not.a.token")
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindAuth {
			t.Fatalf("garbage token should yield auth error, got %v", err)
		}
		if apiErr.Message != model.MsgInvalidToken {
			t.Errorf("Message = %q, want %q", apiErr.Message, model.MsgInvalidToken)
		}
	})

	t.Run("refresh token is rejected", func(t *testing.T) {
		refresh, err := tokens.IssueRefresh(user)
		if err != nil {
			t.Fatalf("failed to issue refresh token: %v", err)
		}
		_, err = guard.RequireAuthenticated(context.Background(), refresh)
		if _, ok := model.AsAPIError(err); !ok {
			t.Fatalf("refresh token should not authenticate, got %v", err)
		}
	})

	t.Run("deactivated user", func(t *testing.T) {
		user.IsActive = false
		defer func() { user.IsActive = true }()

		_, err := guard.RequireAuthenticated(context.Background(), access)
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindAuth {
			t.Fatalf("deactivated user should be rejected, got %v", err)
		}
	})

	t.Run("deleted user", func(t *testing.T) {
		empty := &mockUserRepo{}
		g := NewGuard(tokens, empty, metrics.Nop{})
		_, err := g.RequireAuthenticated(context.Background(), access)
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindAuth {
			t.Fatalf("unknown user should be rejected, got %v", err)
		}
	})
}

func TestGuardRequireAdmin(t *testing.T) {
	guard := NewGuard(newTestTokenService(), &mockUserRepo{}, metrics.Nop{})

	admin := &model.User{ID: 1, Role: model.RoleAdmin}
	if err := guard.RequireAdmin(admin); err != nil {
		t.Errorf("admin should pass: %v", err)
	}

	viewer := &model.User{ID: 2, Role: model.RoleViewer}
	err := guard.RequireAdmin(viewer)
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.Kind != model.KindForbidden {
		t.Fatalf("viewer should be forbidden, got %v", err)
	}
	if apiErr.Message != model.MsgAdminRequired {
		t.Errorf("Message = %q, want %q", apiErr.Message, model.MsgAdminRequired)
	}

	if err := guard.RequireAdmin(nil); err == nil {
		t.Error("nil user should be forbidden")
	}
}

func TestGuardForbidSelfTarget(t *testing.T) {
	guard := NewGuard(newTestTokenService(), &mockUserRepo{}, metrics.Nop{})
	admin := &model.User{ID: 10, Role: model.RoleAdmin}

	err := guard.ForbidSelfTarget(admin, 10)
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.Kind != model.KindForbidden {
		t.Fatalf("self target should be forbidden, got %v", err)
	}
	if apiErr.Message != model.MsgCannotDeleteSelf {
		t.Errorf("Message = %q, want %q", apiErr.Message, model.MsgCannotDeleteSelf)
	}

	if err := guard.ForbidSelfTarget(admin, 11); err != nil {
		t.Errorf("other target should pass: %v", err)
	}
}
