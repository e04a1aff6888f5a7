package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusMetrics     middleware.StatusMetrics
	UserFinder        middleware.UserFinder
	ActingResolver    middleware.ActingResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証不要
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	ProfileFinder  PublicProfileFinder
	PhotoStore     blob.Store
	BaseURL        string

	// ログインユーザー
	MeService MeServiceInterface

	// 個体
	IndividualService IndividualServiceInterface
	Narrative         NarrativeGenerator

	// ジョブ
	JobService    JobServiceInterface
	Template      TemplateFunc
	ImportMaxSize int64

	// 管理者
	AdminService AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Actor → RateLimit(General)
//
// ヘルスチェック・メトリクス・公開プロフィール・写真配信はActor以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusMetrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(strings.HasPrefix(deps.BaseURL, "https://")))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	publicHandler := NewPublicHandler(deps.ProfileFinder, deps.PhotoStore, deps.HealthChecker, deps.BaseURL)
	meHandler := NewMeHandler(deps.MeService)
	individualHandler := NewIndividualHandler(deps.IndividualService, deps.Narrative)
	jobHandler := NewJobHandler(deps.JobService, deps.Template, deps.ImportMaxSize)
	adminHandler := NewAdminHandler(deps.AdminService)

	// --- 認証不要のルート ---
	r.Get("/health", publicHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/u/{code}", publicHandler.PublicProfile)
	// 公開プロフィールのOGP画像として参照されるため認証を要求しない
	r.Get("/api/photos/*", publicHandler.GetPhoto)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Actor → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewActorMiddleware(deps.UserFinder, deps.ActingResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/me", func(r chi.Router) {
			r.Get("/", meHandler.GetMe)
			r.Post("/plan/upgrade", meHandler.UpgradePlan)
		})

		r.Route("/api/individuals", func(r chi.Router) {
			r.Get("/", individualHandler.ListIndividuals)
			r.Post("/", individualHandler.CreateIndividual)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", individualHandler.GetIndividual)
				r.Put("/", individualHandler.UpdateIndividual)
				r.Get("/draft", individualHandler.GetDraft)
				r.Post("/photos", individualHandler.AddPhoto)
				r.Post("/measurements", individualHandler.AddMeasurement)
				r.Get("/narrative", individualHandler.GetNarrative)
			})
		})

		r.Route("/api/imports", func(r chi.Router) {
			// POST /api/imports - CSVインポート（インポート専用レート制限を追加）
			r.With(deps.RateLimiter.ImportMiddleware()).Post("/", jobHandler.SubmitImport)
			r.Get("/templates/{type}", jobHandler.GetTemplate)
		})

		r.Route("/api/exports", func(r chi.Router) {
			r.Post("/", jobHandler.SubmitExport)
			r.Get("/{id}/download", jobHandler.DownloadArtifact)
		})

		r.Route("/api/jobs", func(r chi.Router) {
			r.Get("/", jobHandler.ListJobs)
			r.Get("/{id}", jobHandler.GetJob)
			r.Delete("/{id}", jobHandler.CancelJob)
		})

		// 管理者ルート（なりすまし中も本人の管理者権限で判定する）
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewRequireAdminMiddleware())

			r.Get("/users", adminHandler.SearchUsers)
			r.Post("/users", adminHandler.CreateUser)
			r.Post("/users/{id}/toggle-status", adminHandler.ToggleUserStatus)

			r.Post("/impersonate/{id}", adminHandler.Impersonate)
			r.Delete("/impersonate", adminHandler.StopImpersonating)

			r.Get("/jobs", adminHandler.ListJobs)
			r.Post("/jobs/{id}/retry", adminHandler.RetryJob)
			r.Post("/jobs/{id}/cancel", adminHandler.CancelJob)
		})
	})

	return r
}
