package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/guildgate/internal/metrics"
	mw "github.com/hitoshi/guildgate/internal/middleware"
)

// RouterDeps はルーター構築に必要な依存をまとめる。
type RouterDeps struct {
	AuthHandler      *AuthHandler
	TenantHandler    *TenantHandler
	AuditHandler     *AuditHandler
	DashboardHandler *DashboardHandler

	SessionVerifier   mw.TokenVerifier
	SessionUserFinder mw.SessionUserFinder
	SessionMetrics    mw.SessionMetrics
	RateLimiter       *mw.RateLimiter

	SuperAdminTokens []string
	AllowedOrigin    string
	Gatherer         prometheus.Gatherer
	Logger           *slog.Logger
}

// NewRouter はアプリケーションの全ルートを構築する。
//
// ルートは3つの面に分かれる:
//   - /auth/discord/* : OAuthログインフロー（IPレート制限付き）
//   - /p/{slug}/*     : テナントポータル（dashboard以下はセッション必須）
//   - /api/*          : コンソールAPI（スーパー管理者トークン必須）
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.NewRecoveryMiddleware())
	r.Use(mw.NewSecurityHeadersMiddleware())
	r.Use(mw.NewCORSMiddleware(deps.AllowedOrigin))
	r.Use(mw.NewLoggingMiddleware(deps.Logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	sessionMiddleware := mw.NewTenantSessionMiddleware(deps.SessionVerifier, deps.SessionUserFinder, deps.SessionMetrics)

	r.Route("/auth/discord/{slug}", func(r chi.Router) {
		r.Use(deps.RateLimiter.LoginMiddleware())
		r.Get("/", deps.AuthHandler.Authorize)
		r.Get("/callback", deps.AuthHandler.Callback)
	})

	r.Route("/p/{slug}", func(r chi.Router) {
		r.Get("/", deps.DashboardHandler.Landing)

		r.Group(func(r chi.Router) {
			r.Use(sessionMiddleware)
			r.Get("/dashboard", deps.DashboardHandler.Dashboard)
			r.Get("/logout", deps.AuthHandler.Logout)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(mw.NewSuperAdminMiddleware(deps.SuperAdminTokens))
		r.Use(deps.RateLimiter.AdminMiddleware())

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", deps.TenantHandler.List)
			r.Post("/", deps.TenantHandler.Create)
			r.Get("/{id}", deps.TenantHandler.Get)
			r.Put("/{id}", deps.TenantHandler.Update)
			r.Delete("/{id}", deps.TenantHandler.Delete)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", deps.AuditHandler.ListRecent)
			r.Get("/{entity}/{entityID}", deps.AuditHandler.ListByEntity)
		})
	})

	return r
}
