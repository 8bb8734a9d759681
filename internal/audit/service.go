package audit

import (
	"context"
	"fmt"

	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/repository"
)

// Service は監査証跡の照会を提供する。閲覧は管理者限定であり、
// ロール確認はハンドラー側のガードで行われる。
type Service struct {
	repo repository.AuditRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

// List は条件に合致する監査レコードを新しい順でページングして返す。
// 戻り値の2番目は条件に合致する総件数。
func (s *Service) List(ctx context.Context, filter repository.AuditFilter) ([]*model.AuditRecord, int, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit records: %w", err)
	}
	if records == nil {
		records = []*model.AuditRecord{}
	}
	return records, total, nil
}

// Get は指定IDの監査レコードを取得する。存在しない場合はNotFoundエラー。
func (s *Service) Get(ctx context.Context, id int64) (*model.AuditRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	if record == nil {
		return nil, model.NewNotFoundError("Audit log")
	}
	return record, nil
}
