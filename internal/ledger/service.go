// Package ledger は台帳エントリの照会と変更を提供する。
package ledger

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/pipeline"
	"github.com/hitoshi/ledgerbook/internal/repository"
	"github.com/hitoshi/ledgerbook/internal/security"
)

// amountPattern は金額の正規形式。整数部と最大2桁の小数部のみを許す。
var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)

// ValidateAmount は金額文字列を検証する。
// 金額はNUMERIC(10,2)として保存されるため、浮動小数に変換せず
// 文字列のまま検証・保存する。
func ValidateAmount(amount string) error {
	if !amountPattern.MatchString(amount) {
		return model.NewValidationError("Amount must be a positive number with at most two decimal places")
	}
	if strings.Trim(amount, "0.") == "" {
		return model.NewValidationError("Amount must be greater than zero")
	}
	return nil
}

// CreateInput はエントリ作成の入力。
type CreateInput struct {
	Amount      string
	Description string
	EntryType   string
}

// UpdateInput はエントリ更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Amount      *string
	Description *string
	EntryType   *string
}

// Service は台帳エントリのユースケースを実装する。
// 変更系の操作は全てパイプラインを通り、管理者限定かつ監査付きで実行される。
type Service struct {
	entries   repository.EntryRepository
	sanitizer *security.DescriptionSanitizer
	pipe      *pipeline.Pipeline
}

// NewService はServiceを生成する。
func NewService(entries repository.EntryRepository, sanitizer *security.DescriptionSanitizer, pipe *pipeline.Pipeline) *Service {
	return &Service{entries: entries, sanitizer: sanitizer, pipe: pipe}
}

// List は条件に合致する未削除エントリをページングして返す。
func (s *Service) List(ctx context.Context, filter repository.EntryFilter) ([]*model.LedgerEntry, int, error) {
	entries, total, err := s.entries.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list entries: %w", err)
	}
	if entries == nil {
		entries = []*model.LedgerEntry{}
	}
	return entries, total, nil
}

// Get は指定IDの未削除エントリを取得する。
func (s *Service) Get(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	if entry == nil {
		return nil, model.NewNotFoundError("Transaction")
	}
	return entry, nil
}

// Balance は未削除エントリ全体の収支を返す。
func (s *Service) Balance(ctx context.Context) (*model.Balance, error) {
	balance, err := s.entries.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Create はエントリを作成する。管理者限定。
func (s *Service) Create(ctx context.Context, actor *model.User, origin audit.Origin, input CreateInput) (*model.LedgerEntry, error) {
	if err := ValidateAmount(input.Amount); err != nil {
		return nil, err
	}
	entryType, err := model.ParseEntryType(input.EntryType)
	if err != nil {
		return nil, model.NewValidationError("Entry type must be credit or debit")
	}
	description := s.sanitizer.Sanitize(input.Description)
	if description == "" {
		return nil, model.NewValidationError("Description must not be empty")
	}

	outcome, err := s.pipe.Run(ctx, actor, origin, pipeline.Mutation{
		Action:    model.ActionCreate,
		TableName: model.AuditTableLedgerEntries,
		AdminOnly: true,
		Execute: func(ctx context.Context, q repository.Querier, actor *model.User) (*pipeline.Outcome, error) {
			entry := &model.LedgerEntry{
				Amount:      input.Amount,
				Description: description,
				EntryType:   entryType,
				CreatedBy:   actor.ID,
			}
			if err := s.entries.Create(ctx, q, entry); err != nil {
				return nil, err
			}
			return &pipeline.Outcome{
				RecordID:  &entry.ID,
				NewValues: entrySnapshot(entry),
				Result:    entry,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return outcome.Result.(*model.LedgerEntry), nil
}

// Update はエントリを更新する。管理者限定。
// 監査レコードには実際に変わったフィールドのみを記録する。
func (s *Service) Update(ctx context.Context, actor *model.User, origin audit.Origin, id int64, input UpdateInput) (*model.LedgerEntry, error) {
	if input.Amount != nil {
		if err := ValidateAmount(*input.Amount); err != nil {
			return nil, err
		}
	}
	var entryType *model.EntryType
	if input.EntryType != nil {
		parsed, err := model.ParseEntryType(*input.EntryType)
		if err != nil {
			return nil, model.NewValidationError("Entry type must be credit or debit")
		}
		entryType = &parsed
	}
	var description *string
	if input.Description != nil {
		sanitized := s.sanitizer.Sanitize(*input.Description)
		if sanitized == "" {
			return nil, model.NewValidationError("Description must not be empty")
		}
		description = &sanitized
	}

	outcome, err := s.pipe.Run(ctx, actor, origin, pipeline.Mutation{
		Action:    model.ActionUpdate,
		TableName: model.AuditTableLedgerEntries,
		AdminOnly: true,
		Execute: func(ctx context.Context, q repository.Querier, actor *model.User) (*pipeline.Outcome, error) {
			entry, err := s.entries.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if entry == nil {
				return nil, model.NewNotFoundError("Transaction")
			}

			oldValues := map[string]any{}
			newValues := map[string]any{}
			if input.Amount != nil && *input.Amount != entry.Amount {
				oldValues["amount"] = entry.Amount
				newValues["amount"] = *input.Amount
				entry.Amount = *input.Amount
			}
			if description != nil && *description != entry.Description {
				oldValues["description"] = entry.Description
				newValues["description"] = *description
				entry.Description = *description
			}
			if entryType != nil && *entryType != entry.EntryType {
				oldValues["entry_type"] = string(entry.EntryType)
				newValues["entry_type"] = string(*entryType)
				entry.EntryType = *entryType
			}

			if len(newValues) > 0 {
				if err := s.entries.Update(ctx, q, entry); err != nil {
					return nil, err
				}
			}
			return &pipeline.Outcome{
				RecordID:  &entry.ID,
				OldValues: oldValues,
				NewValues: newValues,
				Result:    entry,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return outcome.Result.(*model.LedgerEntry), nil
}

// Delete はエントリをソフトデリートする。管理者限定。
// 監査レコードには削除時点の全フィールドを残す。
func (s *Service) Delete(ctx context.Context, actor *model.User, origin audit.Origin, id int64) error {
	_, err := s.pipe.Run(ctx, actor, origin, pipeline.Mutation{
		Action:    model.ActionDelete,
		TableName: model.AuditTableLedgerEntries,
		AdminOnly: true,
		Execute: func(ctx context.Context, q repository.Querier, actor *model.User) (*pipeline.Outcome, error) {
			entry, err := s.entries.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if entry == nil {
				return nil, model.NewNotFoundError("Transaction")
			}
			if err := s.entries.SoftDelete(ctx, q, id); err != nil {
				return nil, err
			}
			return &pipeline.Outcome{
				RecordID:  &entry.ID,
				OldValues: entrySnapshot(entry),
				NewValues: map[string]any{"is_deleted": true},
			}, nil
		},
	})
	return err
}

// entrySnapshot は監査レコード用のスナップショットを作る。
func entrySnapshot(entry *model.LedgerEntry) map[string]any {
	return map[string]any{
		"amount":      entry.Amount,
		"description": entry.Description,
		"entry_type":  string(entry.EntryType),
		"created_by":  entry.CreatedBy,
	}
}
