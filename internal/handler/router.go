package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/ledgerbook/internal/metrics"
	"github.com/hitoshi/ledgerbook/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.EventRecorder
	Gatherer          prometheus.Gatherer

	// サービス
	AuthService   AuthServiceInterface
	UserService   UserServiceInterface
	LedgerService LedgerServiceInterface
	AuditService  AuditServiceInterface

	// HealthCheck はデータベース到達性の確認。/healthで使用する。
	HealthCheck func(ctx context.Context) error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (Auth → RateLimit(General))
//
// 公開ルート（/health、/metrics、/api/public/*、/api/auth/login、/api/auth/refresh）は
// 認証ミドルウェアの外に配置する。ログインはIP単位の専用レート制限を持つ。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	ledgerHandler := NewLedgerHandler(deps.LedgerService)
	auditHandler := NewAuditHandler(deps.AuditService)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.HealthCheck))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// ログイン・リフレッシュはトークンを持たない状態で叩くため認証の外。
	// ログインは総当たり対策としてIP単位のレート制限を掛ける。
	r.Route("/api/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
	})

	// 公開閲覧ルート
	r.Route("/api/public", func(r chi.Router) {
		r.Get("/transactions", ledgerHandler.PublicList)
		r.Get("/balance", ledgerHandler.PublicBalance)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 自分自身の操作
		// /api/auth は認証不要ルート側で既にMount済みのため、二重Mountを避けて
		// フルパスで直接登録する（静的パスはMountのワイルドカードより優先される）。
		r.Get("/api/auth/me", authHandler.Me)
		r.Post("/api/auth/logout", authHandler.Logout)
		r.Put("/api/auth/change-password", authHandler.ChangePassword)
		r.Put("/api/auth/profile", authHandler.UpdateProfile)

		// 台帳エントリ。閲覧は全認証ユーザー、変更はパイプラインが管理者限定を強制する。
		r.Route("/api/transactions", func(r chi.Router) {
			r.Get("/", ledgerHandler.List)
			r.Get("/balance", ledgerHandler.Balance)
			r.Post("/", ledgerHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ledgerHandler.Get)
				r.Put("/", ledgerHandler.Update)
				r.Delete("/", ledgerHandler.Delete)
			})
		})

		// 管理者限定ルート
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAdminOnlyMiddleware())

			r.Route("/api/users", func(r chi.Router) {
				r.Get("/", userHandler.List)
				r.Post("/", userHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", userHandler.Get)
					r.Put("/", userHandler.Update)
					r.Delete("/", userHandler.Delete)
				})
			})

			r.Route("/api/audit-logs", func(r chi.Router) {
				r.Get("/", auditHandler.List)
				r.Get("/{id}", auditHandler.Get)
			})
		})
	})

	return r
}

// newHealthHandler はデータベース到達性を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.ErrorContext(r.Context(), "health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
