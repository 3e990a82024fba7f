package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jobly/internal/guard"
	"github.com/hitoshi/jobly/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Session  SessionService
	Catalog  CatalogService
	Renderer *Renderer
	Logger   *slog.Logger

	// LoginPath は未ログイン時のリダイレクト先。空の場合は/login。
	LoginPath   string
	CSRFConfig  middleware.CSRFConfig
	RateLimiter *middleware.RateLimiter

	// MetricsHandler が設定されている場合は/metricsで公開する。
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Session → Logging → Recovery → SecurityHeaders → CSRF → RateLimit(Submit) → [RouteGuard]
//
// RouteGuardはログインが必要なページにのみ適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loginPath := deps.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	r := chi.NewRouter()

	r.Use(middleware.NewSessionMiddleware(deps.Session))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.Session, deps.Renderer, logger)
	catalogHandler := NewCatalogHandler(deps.Catalog, deps.Session, deps.Renderer, logger)
	profileHandler := NewProfileHandler(deps.Session, deps.Renderer, logger)
	sessionHandler := NewSessionHandler(deps.Session, logger)

	// --- 運用系のルート ---
	r.Get("/health", sessionHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Handle("/assets/*", AssetHandler())

	// --- セッションAPI ---
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
	r.Get("/api/session", sessionHandler.Get)
	r.Get("/api/session/events", sessionHandler.Events)

	// --- HTMLページ ---
	// ミドルウェアスタック: CSRF → RateLimit(Submit)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.SubmitMiddleware())
		}

		// 認証不要のページ
		r.Get("/", authHandler.Home)
		r.Get("/login", authHandler.LoginForm)
		r.Post("/login", authHandler.Login)
		r.Get("/signup", authHandler.SignupForm)
		r.Post("/signup", authHandler.Signup)
		r.Post("/logout", authHandler.Logout)

		// ログインが必要なページ
		r.Group(func(r chi.Router) {
			r.Use(guard.New(deps.Session, loginPath, logger).Middleware())

			r.Get("/companies", catalogHandler.ListCompanies)
			r.Get("/companies/{handle}", catalogHandler.GetCompany)
			r.Get("/jobs", catalogHandler.ListJobs)
			r.Post("/jobs/{id}/apply", catalogHandler.ApplyToJob)
			r.Get("/profile", profileHandler.Show)
			r.Post("/profile", profileHandler.Update)
		})
	})

	// 未知のパスはトップページへ
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	return r
}
