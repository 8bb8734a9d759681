// Package pipeline は変更操作の実行パイプラインを提供する。
//
// 全ての変更操作は 受理 → 認証確認 → 認可 → 変更 → 監査 → 完了 の
// 状態を順に通過する。いずれかの段階で失敗すると拒否状態で終わり、
// それ以降の段階は実行されない。変更と監査は同一トランザクションで
// コミットされるため、監査されていない変更が残ることはない。
package pipeline

import (
	"context"
	"log/slog"

	"github.com/hitoshi/ledgerbook/internal/audit"
	"github.com/hitoshi/ledgerbook/internal/auth"
	"github.com/hitoshi/ledgerbook/internal/metrics"
	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/repository"
)

// State はパイプラインの進行状態。
type State string

const (
	StateReceived      State = "received"
	StateAuthenticated State = "authenticated"
	StateAuthorized    State = "authorized"
	StateMutated       State = "mutated"
	StateAudited       State = "audited"
	StateComplete      State = "complete"
	StateRejected      State = "rejected"
)

// Outcome は変更の実行結果。RecordID と変更前後のスナップショットは
// そのまま監査レコードに書き込まれる。Result はハンドラーに返す値。
type Outcome struct {
	RecordID  *int64
	OldValues map[string]any
	NewValues map[string]any
	Result    any
}

// Mutation は1つの変更操作の定義。
// Execute は渡されたQuerier上で変更を実行すること。別のコネクションで
// 実行すると監査との原子性が壊れる。
type Mutation struct {
	Action    model.ActionType
	TableName string
	AdminOnly bool
	Execute   func(ctx context.Context, q repository.Querier, actor *model.User) (*Outcome, error)
}

// Pipeline は変更操作を状態機械として実行する。
type Pipeline struct {
	guard   *auth.Guard
	uow     repository.UnitOfWork
	auditor *audit.Recorder
	metrics metrics.EventRecorder
	logger  *slog.Logger
}

// New はPipelineを生成する。
func New(guard *auth.Guard, uow repository.UnitOfWork, auditor *audit.Recorder, m metrics.EventRecorder, logger *slog.Logger) *Pipeline {
	return &Pipeline{guard: guard, uow: uow, auditor: auditor, metrics: m, logger: logger}
}

// Run は変更操作を実行する。actorは認証ミドルウェアが解決済みの
// 操作主体。成功時はOutcomeを返し、拒否時はどの段階で止まったかに
// 応じたAPIエラーを返す。
func (p *Pipeline) Run(ctx context.Context, actor *model.User, origin audit.Origin, m Mutation) (*Outcome, error) {
	state := StateReceived
	advance := func(next State) {
		p.logger.DebugContext(ctx, "mutation pipeline transition",
			slog.String("from", string(state)),
			slog.String("to", string(next)),
			slog.String("action", string(m.Action)),
			slog.String("table", m.TableName),
		)
		state = next
	}

	if actor == nil || !actor.IsActive {
		return nil, p.reject(ctx, state, m, model.NewAuthError(model.MsgInvalidToken))
	}
	advance(StateAuthenticated)

	if m.AdminOnly {
		if err := p.guard.RequireAdmin(actor); err != nil {
			return nil, p.reject(ctx, state, m, err)
		}
	}
	advance(StateAuthorized)

	var outcome *Outcome
	err := p.uow.Within(ctx, func(q repository.Querier) error {
		out, err := m.Execute(ctx, q, actor)
		if err != nil {
			return err
		}
		outcome = out
		advance(StateMutated)

		_, err = p.auditor.Record(ctx, q, audit.Entry{
			ActorID:   actor.ID,
			Action:    m.Action,
			TableName: m.TableName,
			RecordID:  out.RecordID,
			OldValues: out.OldValues,
			NewValues: out.NewValues,
			Origin:    origin,
		})
		if err != nil {
			return err
		}
		advance(StateAudited)
		return nil
	})
	if err != nil {
		return nil, p.reject(ctx, state, m, err)
	}
	advance(StateComplete)

	p.metrics.RecordMutation(string(m.Action), m.TableName)
	p.metrics.RecordAuditWritten(string(m.Action))

	return outcome, nil
}

// reject は拒否を記録し、エラーをそのまま返す。
func (p *Pipeline) reject(ctx context.Context, at State, m Mutation, err error) error {
	reason := "internal"
	if apiErr, ok := model.AsAPIError(err); ok {
		reason = string(apiErr.Kind)
	}
	p.metrics.RecordMutationRejected(reason)
	p.logger.WarnContext(ctx, "mutation pipeline rejected",
		slog.String("state", string(at)),
		slog.String("action", string(m.Action)),
		slog.String("table", m.TableName),
		slog.String("reason", reason),
	)
	return err
}
