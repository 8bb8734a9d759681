package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/metrics"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/repository"
	"github.com/hitoshi/ledgerbook/internal/security"
	"github.com/hitoshi/ledgerbook/internal/token"
)

// --- テスト用モック ---

type stubQuerier struct{}

func (stubQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (stubQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, nil
}
func (stubQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

// fakeUnitOfWork はトランザクションを張らずにfnを直接実行する。
type fakeUnitOfWork struct {
	calls int
}

func (u *fakeUnitOfWork) Within(ctx context.Context, fn func(q repository.Querier) error) error {
	u.calls++
	return fn(stubQuerier{})
}

type mockUserRepo struct {
	findByIDFunc       func(ctx context.Context, id int64) (*model.User, error)
	findByUsernameFunc func(ctx context.Context, username string) (*model.User, error)
	listFunc           func(ctx context.Context) ([]*model.User, error)
	usernameTakenFunc  func(ctx context.Context, username string, excludeID int64) (bool, error)
	emailTakenFunc     func(ctx context.Context, email string, excludeID int64) (bool, error)
	createFunc         func(ctx context.Context, q repository.Querier, user *model.User) error
	updateFunc         func(ctx context.Context, q repository.Querier, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFunc != nil {
		return m.findByUsernameFunc(ctx, username)
	}
	return nil, nil
}

func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockUserRepo) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	if m.usernameTakenFunc != nil {
		return m.usernameTakenFunc(ctx, username, excludeID)
	}
	return false, nil
}

func (m *mockUserRepo) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	if m.emailTakenFunc != nil {
		return m.emailTakenFunc(ctx, email, excludeID)
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, q repository.Querier, user *model.User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, q, user)
	}
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, q repository.Querier, user *model.User) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, q, user)
	}
	return nil
}

type mockAuditRepo struct {
	insertFunc func(ctx context.Context, q repository.Querier, record *model.AuditRecord) error
	inserted   []*model.AuditRecord
}

func (m *mockAuditRepo) Insert(ctx context.Context, q repository.Querier, record *model.AuditRecord) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, q, record)
	}
	m.inserted = append(m.inserted, record)
	return nil
}

func (m *mockAuditRepo) FindByID(ctx context.Context, id int64) (*model.AuditRecord, error) {
	return nil, nil
}

func (m *mockAuditRepo) List(ctx context.Context, filter repository.AuditFilter) ([]*model.AuditRecord, int, error) {
	return nil, 0, nil
}

func newTestTokenService() *token.Service {
	return token.NewService(token.ServiceConfig{
		Secret:     "test-secret-key",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
}

func newTestHasher() *security.PasswordHasher {
	return security.NewPasswordHasher(4)
}

func activeUser(t *testing.T, hasher *security.PasswordHasher, password string) *model.User {
	t.Helper()
	hash, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return &model.User{
		ID:           1,
		Username:     "hanako",
		Email:        "hanako@example.com",
		FullName:     "Yamada Hanako",
		Role:         model.RoleAdmin,
		IsActive:     true,
		PasswordHash: hash,
	}
}

func newTestService(users *mockUserRepo, audits *mockAuditRepo, uow *fakeUnitOfWork) *Service {
	return NewService(users, newTestHasher(), newTestTokenService(), uow, audit.NewRecorder(audits), metrics.Nop{})
}

// --- Login ---

func TestLoginSuccess(t *testing.T) {
	hasher := newTestHasher()
	user := activeUser(t, hasher, "Password1")
	users := &mockUserRepo{
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			if username != "hanako" {
				return nil, nil
			}
			return user, nil
		},
	}
	audits := &mockAuditRepo{}
	uow := &fakeUnitOfWork{}
	svc := NewService(users, hasher, newTestTokenService(), uow, audit.NewRecorder(audits), metrics.Nop{})

	result, err := svc.Login(context.Background(), "hanako", "Password1", audit.Origin{IPAddress: "192.0.2.1"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Error("both tokens should be issued")
	}
	if result.TokenType != "bearer" {
		t.Errorf("TokenType = %q, want bearer", result.TokenType)
	}
	if result.ExpiresIn != 1800 {
		t.Errorf("ExpiresIn = %d, want 1800", result.ExpiresIn)
	}
	if result.User != user {
		t.Error("result should carry the authenticated user")
	}

	if len(audits.inserted) != 1 {
		t.Fatalf("exactly one audit record should be written, got %d", len(audits.inserted))
	}
	record := audits.inserted[0]
	if record.ActionType != model.ActionLogin {
		t.Errorf("ActionType = %q, want LOGIN", record.ActionType)
	}
	if record.UserID != user.ID {
		t.Errorf("UserID = %d, want %d", record.UserID, user.ID)
	}
	if record.IPAddress != "192.0.2.1" {
		t.Errorf("IPAddress = %q, want 192.0.2.1", record.IPAddress)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	hasher := newTestHasher()
	active := activeUser(t, hasher, "Password1")
	inactive := activeUser(t, hasher, "Password1")
	inactive.IsActive = false

	tests := []struct {
		name     string
		stored   *model.User
		password string
	}{
		{"unknown user", nil, "Password1"},
		{"wrong password", active, "WrongPass1"},
		{"inactive user", inactive, "Password1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserRepo{
				findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
					return tt.stored, nil
				},
			}
			audits := &mockAuditRepo{}
			svc := NewService(users, hasher, newTestTokenService(), &fakeUnitOfWork{}, audit.NewRecorder(audits), metrics.Nop{})

			_, err := svc.Login(context.Background(), "hanako", tt.password, audit.Origin{})
			apiErr, ok := model.AsAPIError(err)
			if !ok {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Kind != model.KindAuth {
				t.Errorf("Kind = %q, want auth", apiErr.Kind)
			}
			if apiErr.Message != model.MsgIncorrectCredentials {
				t.Errorf("Message = %q, want %q", apiErr.Message, model.MsgIncorrectCredentials)
			}
			if len(audits.inserted) != 0 {
				t.Error("failed login should not write an audit record")
			}
		})
	}
}

func TestLoginAuditFailureBlocksLogin(t *testing.T) {
	hasher := newTestHasher()
	user := activeUser(t, hasher, "Password1")
	users := &mockUserRepo{
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			return user, nil
		},
	}
	audits := &mockAuditRepo{
		insertFunc: func(ctx context.Context, q repository.Querier, record *model.AuditRecord) error {
			return errors.New("audit store down")
		},
	}
	svc := NewService(users, hasher, newTestTokenService(), &fakeUnitOfWork{}, audit.NewRecorder(audits), metrics.Nop{})

	_, err := svc.Login(context.Background(), "hanako", "Password1", audit.Origin{})
	if err == nil {
		t.Fatal("login should fail when the audit record cannot be written")
	}
}

// --- Refresh ---

func TestRefresh(t *testing.T) {
	hasher := newTestHasher()
	user := activeUser(t, hasher, "Password1")
	users := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id int64) (*model.User, error) {
			if id == user.ID {
				return user, nil
			}
			return nil, nil
		},
	}
	tokens := newTestTokenService()
	svc := NewService(users, hasher, tokens, &fakeUnitOfWork{}, audit.NewRecorder(&mockAuditRepo{}), metrics.Nop{})

	refresh, err := tokens.IssueRefresh(user)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}

	t.Run("valid refresh token", func(t *testing.T) {
		pair, err := svc.Refresh(context.Background(), refresh)
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if pair.AccessToken == "" || pair.RefreshToken == "" {
			t.Error("new token pair should be issued")
		}
	})

	t.Run("access token is rejected", func(t *testing.T) {
		access, err := tokens.IssueAccess(user)
		if err != nil {
			t.Fatalf("failed to issue access token: %v", err)
		}
		_, err = svc.Refresh(context.Background(), access)
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindAuth {
			t.Fatalf("access token should be rejected for refresh, got %v", err)
		}
	})

	t.Run("deactivated user is rejected", func(t *testing.T) {
		user.IsActive = false
		defer func() { user.IsActive = true }()
		_, err := svc.Refresh(context.Background(), refresh)
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindAuth {
			t.Fatalf("deactivated user should be rejected, got %v", err)
		}
	})
}

// --- Logout ---

func TestLogoutWritesAudit(t *testing.T) {
	hasher := newTestHasher()
	user := activeUser(t, hasher, "Password1")
	audits := &mockAuditRepo{}
	svc := newTestService(&mockUserRepo{}, audits, &fakeUnitOfWork{})

	err := svc.Logout(context.Background(), user, audit.Origin{UserAgent: "cli"})
	if err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if len(audits.inserted) != 1 {
		t.Fatalf("audit records = %d, want 1", len(audits.inserted))
	}
	if audits.inserted[0].ActionType != model.ActionLogout {
		t.Errorf("ActionType = %q, want LOGOUT", audits.inserted[0].ActionType)
	}
}

// --- ChangePassword ---

func TestChangePassword(t *testing.T) {
	hasher := newTestHasher()

	t.Run("success", func(t *testing.T) {
		user := activeUser(t, hasher, "Password1")
		oldHash := user.PasswordHash
		var updated *model.User
		users := &mockUserRepo{
			updateFunc: func(ctx context.Context, q repository.Querier, u *model.User) error {
				updated = u
				return nil
			},
		}
		audits := &mockAuditRepo{}
		svc := NewService(users, hasher, newTestTokenService(), &fakeUnitOfWork{}, audit.NewRecorder(audits), metrics.Nop{})

		err := svc.ChangePassword(context.Background(), user, "Password1", "NewPassword2", audit.Origin{})
		if err != nil {
			t.Fatalf("ChangePassword failed: %v", err)
		}
		if updated == nil {
			t.Fatal("user should be updated")
		}
		if updated.PasswordHash == oldHash {
			t.Error("password hash should change")
		}
		if !hasher.Verify("NewPassword2", updated.PasswordHash) {
			t.Error("new password should verify against the stored hash")
		}

		if len(audits.inserted) != 1 {
			t.Fatalf("audit records = %d, want 1", len(audits.inserted))
		}
		record := audits.inserted[0]
		if record.NewValues["password_changed"] != true {
			t.Error("audit should carry the password_changed marker")
		}
		for _, values := range []map[string]any{record.OldValues, record.NewValues} {
			for key, value := range values {
				if s, ok := value.(string); ok && s == updated.PasswordHash {
					t.Errorf("audit field %q must not contain the password hash", key)
				}
			}
		}
	})

	t.Run("wrong current password", func(t *testing.T) {
		user := activeUser(t, hasher, "Password1")
		audits := &mockAuditRepo{}
		svc := NewService(&mockUserRepo{}, hasher, newTestTokenService(), &fakeUnitOfWork{}, audit.NewRecorder(audits), metrics.Nop{})

		err := svc.ChangePassword(context.Background(), user, "WrongPass1", "NewPassword2", audit.Origin{})
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindValidation {
			t.Fatalf("wrong current password should yield validation error, got %v", err)
		}
		if len(audits.inserted) != 0 {
			t.Error("rejected change should not write an audit record")
		}
	})

	t.Run("weak new password", func(t *testing.T) {
		user := activeUser(t, hasher, "Password1")
		svc := NewService(&mockUserRepo{}, hasher, newTestTokenService(), &fakeUnitOfWork{}, audit.NewRecorder(&mockAuditRepo{}), metrics.Nop{})

		err := svc.ChangePassword(context.Background(), user, "Password1", "short", audit.Origin{})
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindValidation {
			t.Fatalf("weak password should yield validation error, got %v", err)
		}
	})
}

// --- UpdateProfile ---

func TestUpdateProfile(t *testing.T) {
	hasher := newTestHasher()

	t.Run("changed fields are audited", func(t *testing.T) {
		user := activeUser(t, hasher, "Password1")
		audits := &mockAuditRepo{}
		users := &mockUserRepo{}
		svc := NewService(users, hasher, newTestTokenService(), &fakeUnitOfWork{}, audit.NewRecorder(audits), metrics.Nop{})

		newEmail := "new@example.com"
		updated, err := svc.UpdateProfile(context.Background(), user, ProfileUpdate{Email: &newEmail}, audit.Origin{})
		if err != nil {
			t.Fatalf("UpdateProfile failed: %v", err)
		}
		if updated.Email != newEmail {
			t.Errorf("Email = %q, want %q", updated.Email, newEmail)
		}

		if len(audits.inserted) != 1 {
			t.Fatalf("audit records = %d, want 1", len(audits.inserted))
		}
		record := audits.inserted[0]
		if record.OldValues["email"] != "hanako@example.com" {
			t.Error("old email should be recorded")
		}
		if record.NewValues["email"] != newEmail {
			t.Error("new email should be recorded")
		}
		if _, exists := record.NewValues["full_name"]; exists {
			t.Error("unchanged fields should not appear in the audit record")
		}
	})

	t.Run("no changes writes no audit", func(t *testing.T) {
		user := activeUser(t, hasher, "Password1")
		audits := &mockAuditRepo{}
		uow := &fakeUnitOfWork{}
		svc := NewService(&mockUserRepo{}, hasher, newTestTokenService(), uow, audit.NewRecorder(audits), metrics.Nop{})

		sameEmail := user.Email
		_, err := svc.UpdateProfile(context.Background(), user, ProfileUpdate{Email: &sameEmail}, audit.Origin{})
		if err != nil {
			t.Fatalf("UpdateProfile failed: %v", err)
		}
		if uow.calls != 0 {
			t.Error("no transaction should run when nothing changed")
		}
		if len(audits.inserted) != 0 {
			t.Error("no audit record should be written when nothing changed")
		}
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		user := activeUser(t, hasher, "Password1")
		users := &mockUserRepo{
			emailTakenFunc: func(ctx context.Context, email string, excludeID int64) (bool, error) {
				return true, nil
			},
		}
		svc := NewService(users, hasher, newTestTokenService(), &fakeUnitOfWork{}, audit.NewRecorder(&mockAuditRepo{}), metrics.Nop{})

		other := "taken@example.com"
		_, err := svc.UpdateProfile(context.Background(), user, ProfileUpdate{Email: &other}, audit.Origin{})
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindValidation {
			t.Fatalf("duplicate email should yield validation error, got %v", err)
		}
	})
}
