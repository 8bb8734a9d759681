package ledger

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/auth"
	"github.com/hitoshi/ledgerbook/internal/metrics"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/pipeline"
	"github.com/hitoshi/ledgerbook/internal/repository"
	"github.com/hitoshi/ledgerbook/internal/security"
	"github.com/hitoshi/ledgerbook/internal/token"
)

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

type fakeUnitOfWork struct{}

func (fakeUnitOfWork) Within(ctx context.Context, fn func(q repository.Querier) error) error {
	return fn(stubQuerier{})
}

type nopUserRepo struct{}

func (nopUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error)       { return nil, nil }
func (nopUserRepo) FindByUsername(ctx context.Context, s string) (*model.User, error) { return nil, nil }
func (nopUserRepo) List(ctx context.Context) ([]*model.User, error)                   { return nil, nil }
func (nopUserRepo) UsernameTaken(ctx context.Context, s string, id int64) (bool, error) {
	return false, nil
}
func (nopUserRepo) EmailTaken(ctx context.Context, s string, id int64) (bool, error) {
	return false, nil
}
func (nopUserRepo) Create(ctx context.Context, q repository.Querier, u *model.User) error { return nil }
func (nopUserRepo) Update(ctx context.Context, q repository.Querier, u *model.User) error { return nil }

type captureAuditRepo struct {
	inserted []*model.AuditRecord
}

func (c *captureAuditRepo) Insert(ctx context.Context, q repository.Querier, record *model.AuditRecord) error {
	c.inserted = append(c.inserted, record)
	return nil
}

func (c *captureAuditRepo) FindByID(ctx context.Context, id int64) (*model.AuditRecord, error) {
	return nil, nil
}

func (c *captureAuditRepo) List(ctx context.Context, filter repository.AuditFilter) ([]*model.AuditRecord, int, error) {
	return nil, 0, nil
}

type mockEntryRepo struct {
	findByIDFunc   func(ctx context.Context, id int64) (*model.LedgerEntry, error)
	listFunc       func(ctx context.Context, filter repository.EntryFilter) ([]*model.LedgerEntry, int, error)
	balanceFunc    func(ctx context.Context) (*model.Balance, error)
	createFunc     func(ctx context.Context, q repository.Querier, entry *model.LedgerEntry) error
	updateFunc     func(ctx context.Context, q repository.Querier, entry *model.LedgerEntry) error
	softDeleteFunc func(ctx context.Context, q repository.Querier, id int64) error
}

func (m *mockEntryRepo) FindByID(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockEntryRepo) List(ctx context.Context, filter repository.EntryFilter) ([]*model.LedgerEntry, int, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return nil, 0, nil
}

func (m *mockEntryRepo) Balance(ctx context.Context) (*model.Balance, error) {
	if m.balanceFunc != nil {
		return m.balanceFunc(ctx)
	}
	return &model.Balance{Balance: "0", TotalCredits: "0", TotalDebits: "0"}, nil
}

func (m *mockEntryRepo) Create(ctx context.Context, q repository.Querier, entry *model.LedgerEntry) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, q, entry)
	}
	return nil
}

func (m *mockEntryRepo) Update(ctx context.Context, q repository.Querier, entry *model.LedgerEntry) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, q, entry)
	}
	return nil
}

func (m *mockEntryRepo) SoftDelete(ctx context.Context, q repository.Querier, id int64) error {
	if m.softDeleteFunc != nil {
		return m.softDeleteFunc(ctx, q, id)
	}
	return nil
}

func newTestService(entries *mockEntryRepo, audits *captureAuditRepo) *Service {
	tokens := token.NewService(token.ServiceConfig{
		Secret:     "test-secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	guard := auth.NewGuard(tokens, nopUserRepo{}, metrics.Nop{})
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	pipe := pipeline.New(guard, fakeUnitOfWork{}, audit.NewRecorder(audits), metrics.Nop{}, logger)
	return NewService(entries, security.NewDescriptionSanitizer(), pipe)
}

func admin() *model.User {
	return &model.User{ID: 1, Username: "admin", Role: model.RoleAdmin, IsActive: true}
}

func viewer() *model.User {
	return &model.User{ID: 2, Username: "viewer", Role: model.RoleViewer, IsActive: true}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"100", false},
		{"100.50", false},
		{"0.01", false},
		{"0", true},
		{"0.00", true},
		{"-5", true},
		{"10.555", true},
		{"abc", true},
		{"", true},
		{"1e3", true},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := ValidateAmount(tt.amount)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateAmount(%q) should fail", tt.amount)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateAmount(%q) failed: %v", tt.amount, err)
			}
		})
	}
}

func TestCreateEntry(t *testing.T) {
	t.Run("success writes audit", func(t *testing.T) {
		entries := &mockEntryRepo{
			createFunc: func(ctx context.Context, q repository.Querier, entry *model.LedgerEntry) error {
				entry.ID = 55
				return nil
			},
		}
		audits := &captureAuditRepo{}
		svc := newTestService(entries, audits)

		entry, err := svc.Create(context.Background(), admin(), audit.Origin{}, CreateInput{
			Amount:      "1200.00",
			Description: "Office supplies",
			EntryType:   "debit",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if entry.ID != 55 {
			t.Errorf("ID = %d, want 55", entry.ID)
		}
		if entry.CreatedBy != 1 {
			t.Errorf("CreatedBy = %d, want 1", entry.CreatedBy)
		}

		if len(audits.inserted) != 1 {
			t.Fatalf("audit records = %d, want 1", len(audits.inserted))
		}
		record := audits.inserted[0]
		if record.ActionType != model.ActionCreate {
			t.Errorf("ActionType = %q, want CREATE", record.ActionType)
		}
		if record.TableName != model.AuditTableLedgerEntries {
			t.Errorf("TableName = %q, want ledger_entries", record.TableName)
		}
		if record.NewValues["amount"] != "1200.00" {
			t.Error("audit should carry the created amount")
		}
	})

	t.Run("viewer is forbidden", func(t *testing.T) {
		audits := &captureAuditRepo{}
		svc := newTestService(&mockEntryRepo{}, audits)

		_, err := svc.Create(context.Background(), viewer(), audit.Origin{}, CreateInput{
			Amount:      "10.00",
			Description: "test",
			EntryType:   "credit",
		})
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindForbidden {
			t.Fatalf("viewer should be forbidden, got %v", err)
		}
		if len(audits.inserted) != 0 {
			t.Error("rejected mutation should not write an audit record")
		}
	})

	t.Run("invalid amount", func(t *testing.T) {
		svc := newTestService(&mockEntryRepo{}, &captureAuditRepo{})
		_, err := svc.Create(context.Background(), admin(), audit.Origin{}, CreateInput{
			Amount:      "0",
			Description: "test",
			EntryType:   "credit",
		})
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindValidation {
			t.Fatalf("zero amount should be rejected, got %v", err)
		}
	})

	t.Run("invalid entry type", func(t *testing.T) {
		svc := newTestService(&mockEntryRepo{}, &captureAuditRepo{})
		_, err := svc.Create(context.Background(), admin(), audit.Origin{}, CreateInput{
			Amount:      "10.00",
			Description: "test",
			EntryType:   "transfer",
		})
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindValidation {
			t.Fatalf("unknown entry type should be rejected, got %v", err)
		}
	})

	t.Run("description is sanitized", func(t *testing.T) {
		var created *model.LedgerEntry
		entries := &mockEntryRepo{
			createFunc: func(ctx context.Context, q repository.Querier, entry *model.LedgerEntry) error {
				created = entry
				return nil
			},
		}
		svc := newTestService(entries, &captureAuditRepo{})

		_, err := svc.Create(context.Background(), admin(), audit.Origin{}, CreateInput{
			Amount:      "10.00",
			Description: `<script>alert("x")</script>Lunch`,
			EntryType:   "credit",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if created.Description != "Lunch" {
			t.Errorf("Description = %q, want %q", created.Description, "Lunch")
		}
	})

	t.Run("markup-only description is rejected", func(t *testing.T) {
		svc := newTestService(&mockEntryRepo{}, &captureAuditRepo{})
		_, err := svc.Create(context.Background(), admin(), audit.Origin{}, CreateInput{
			Amount:      "10.00",
			Description: "<b></b>",
			EntryType:   "credit",
		})
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindValidation {
			t.Fatalf("empty description should be rejected, got %v", err)
		}
	})
}

func TestUpdateEntry(t *testing.T) {
	existing := func() *model.LedgerEntry {
		return &model.LedgerEntry{
			ID:          7,
			Amount:      "100.00",
			Description: "Old description",
			EntryType:   model.EntryCredit,
			CreatedBy:   1,
		}
	}

	t.Run("only changed fields are audited", func(t *testing.T) {
		entries := &mockEntryRepo{
			findByIDFunc: func(ctx context.Context, id int64) (*model.LedgerEntry, error) {
				return existing(), nil
			},
		}
		audits := &captureAuditRepo{}
		svc := newTestService(entries, audits)

		newAmount := "250.00"
		entry, err := svc.Update(context.Background(), admin(), audit.Origin{}, 7, UpdateInput{Amount: &newAmount})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if entry.Amount != "250.00" {
			t.Errorf("Amount = %q, want 250.00", entry.Amount)
		}

		record := audits.inserted[0]
		if record.OldValues["amount"] != "100.00" || record.NewValues["amount"] != "250.00" {
			t.Error("amount change should be recorded")
		}
		if _, exists := record.NewValues["description"]; exists {
			t.Error("unchanged description should not appear in the audit record")
		}
	})

	t.Run("missing entry", func(t *testing.T) {
		svc := newTestService(&mockEntryRepo{}, &captureAuditRepo{})
		newAmount := "10.00"
		_, err := svc.Update(context.Background(), admin(), audit.Origin{}, 999, UpdateInput{Amount: &newAmount})
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Kind != model.KindNotFound {
			t.Fatalf("missing entry should yield not_found, got %v", err)
		}
	})
}

func TestDeleteEntry(t *testing.T) {
	existing := &model.LedgerEntry{
		ID:          7,
		Amount:      "100.00",
		Description: "To be removed",
		EntryType:   model.EntryDebit,
		CreatedBy:   1,
	}

	softDeleted := false
	entries := &mockEntryRepo{
		findByIDFunc: func(ctx context.Context, id int64) (*model.LedgerEntry, error) {
			return existing, nil
		},
		softDeleteFunc: func(ctx context.Context, q repository.Querier, id int64) error {
			softDeleted = true
			return nil
		},
	}
	audits := &captureAuditRepo{}
	svc := newTestService(entries, audits)

	if err := svc.Delete(context.Background(), admin(), audit.Origin{}, 7); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !softDeleted {
		t.Error("entry should be soft-deleted")
	}

	record := audits.inserted[0]
	if record.ActionType != model.ActionDelete {
		t.Errorf("ActionType = %q, want DELETE", record.ActionType)
	}
	if record.OldValues["description"] != "To be removed" {
		t.Error("full snapshot should be recorded before deletion")
	}
	if record.NewValues["is_deleted"] != true {
		t.Error("NewValues should mark the soft delete")
	}
}

func TestListNilBecomesEmpty(t *testing.T) {
	svc := newTestService(&mockEntryRepo{}, &captureAuditRepo{})
	entries, total, err := svc.List(context.Background(), repository.EntryFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if entries == nil {
		t.Error("List should return empty slice instead of nil")
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

func TestGetMissingEntry(t *testing.T) {
	svc := newTestService(&mockEntryRepo{}, &captureAuditRepo{})
	_, err := svc.Get(context.Background(), 1)
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.Kind != model.KindNotFound {
		t.Fatalf("missing entry should yield not_found, got %v", err)
	}
}
