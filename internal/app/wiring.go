package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/beetlebase/internal/admin"
	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/config"
	"github.com/hitoshi/beetlebase/internal/database"
	"github.com/hitoshi/beetlebase/internal/events"
	"github.com/hitoshi/beetlebase/internal/export"
	"github.com/hitoshi/beetlebase/internal/handler"
	"github.com/hitoshi/beetlebase/internal/importer"
	"github.com/hitoshi/beetlebase/internal/job"
	"github.com/hitoshi/beetlebase/internal/metrics"
	"github.com/hitoshi/beetlebase/internal/middleware"
	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/narrative"
	"github.com/hitoshi/beetlebase/internal/record"
	"github.com/hitoshi/beetlebase/internal/repository"
	"github.com/hitoshi/beetlebase/internal/security"
	"github.com/hitoshi/beetlebase/internal/seed"
	"github.com/hitoshi/beetlebase/internal/user"
	"github.com/hitoshi/beetlebase/internal/worker/cleanup"
	"github.com/hitoshi/beetlebase/internal/worker/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// application は起動モードに依存しない依存関係一式を保持する。
type application struct {
	cfg    *config.Config
	logger *slog.Logger

	db        *sql.DB
	repos     seed.Repositories
	blobs     blob.Store
	publisher events.Publisher
	registry  *prometheus.Registry
	collector *metrics.Collector

	users    *user.Service
	records  *record.Service
	jobs     *job.Service
	runner   *job.Runner
	facade   *admin.Facade
	narrator *narrative.Service

	sweeper *sweep.Sweeper
	cleanup *cleanup.CleanupJob
}

// build は設定に従ってストレージ、サービス、ジョブランナーを組み立てる。
// 戻り値のapplicationは利用後にCloseを呼び出す必要がある。
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	a := &application{cfg: cfg, logger: logger}

	// 1. リポジトリの初期化
	if err := a.openRepositories(ctx); err != nil {
		return nil, err
	}

	// 2. Blobストレージの初期化
	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.blobs = blobs

	// 3. イベント配信の初期化
	a.publisher = events.Noop{}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := pub.EnsureStream(ctx); err != nil {
			pub.Close()
			a.Close()
			return nil, err
		}
		a.publisher = pub
		logger.Info("NATSへのイベント配信を有効化しました")
	}

	// 4. メトリクスの初期化
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector(a.registry)

	// 5. ドメインサービスの初期化
	guard := security.NewURLGuard()
	a.users = user.NewService(a.repos.Users)
	a.records = record.NewService(a.repos.Individuals, a.users, security.NewTextSanitizer()).
		WithPhotoResolver(record.NewBlobPhotoResolver(a.blobs, guard, int(cfg.PhotoMaxSize))).
		WithMetrics(a.collector)
	a.jobs = job.NewService(a.repos.Jobs).
		WithBlobStore(a.blobs).
		WithPublisher(a.publisher).
		WithMetrics(a.collector)

	// 6. ジョブランナーの初期化
	a.runner = job.NewRunner(a.jobs, job.NewTimerScheduler(), a.processors(), job.RunnerConfig{
		ImportDelay:       cfg.ImportDelay,
		ExportPickupDelay: cfg.ExportPickupDelay,
		ExportDelay:       cfg.ExportDelay,
		Timeout:           cfg.JobTimeout,
	}, logger)

	// 7. 文章生成と管理機能の初期化
	var completer narrative.Completer
	if cfg.NarrativeAPIURL != "" {
		completer = narrative.NewHTTPClient(cfg.NarrativeAPIURL, cfg.NarrativeAPIKey, guard.NewSafeClient(cfg.NarrativeTimeout))
	}
	a.narrator = narrative.NewService(completer, cfg.NarrativeCacheTTL, a.collector, logger)
	a.facade = admin.NewFacade(a.users, a.jobs)

	// 8. バックグラウンド処理の初期化
	a.sweeper = sweep.NewSweeper(a.jobs, a.runner, logger, cfg.StaleJobAfter())
	a.cleanup = cleanup.NewCleanupJob(a.blobs, logger)
	a.cleanup.RetentionDays = cfg.ArtifactRetentionDays

	// 9. デモデータの投入
	if cfg.SeedDemoData {
		if err := a.seedDemo(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// openRepositories はDATABASE_URLが設定されていればPostgreSQL、なければインメモリのリポジトリを開く。
func (a *application) openRepositories(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.repos = seed.Repositories{
			Users:       repository.NewMemoryUserRepo(),
			Individuals: repository.NewMemoryIndividualRepo(),
			Jobs:        repository.NewMemoryJobRepo(),
		}
		a.logger.Info("インメモリリポジトリを使用します")
		return nil
	}

	db, err := database.Open(a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	a.repos = seed.Repositories{
		Users:       repository.NewPostgresUserRepo(db),
		Individuals: repository.NewPostgresIndividualRepo(db),
		Jobs:        repository.NewPostgresJobRepo(db),
	}
	a.logger.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(a.cfg.DatabaseURL)),
	)
	return nil
}

// openBlobStore はBLOB_DRIVERに対応するStoreを生成する。
func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobDriver {
	case "fs":
		store, err := blob.NewFSStore(cfg.BlobFSRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to open blob store: %w", err)
		}
		return store, nil
	case "minio":
		store, err := blob.NewMinIOStore(blob.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare blob bucket: %w", err)
		}
		return store, nil
	default:
		return blob.NewMemoryStore(), nil
	}
}

// processors はJOB_SIMULATIONに応じてジョブ種別ごとの処理を選ぶ。
func (a *application) processors() map[model.JobKind]job.Processor {
	if a.cfg.JobSimulation {
		return map[model.JobKind]job.Processor{
			model.JobKindImport: job.SimulatedImport{Outcome: job.WeightedOutcome(a.cfg.JobSuccessRate)},
			model.JobKindExport: job.SimulatedExport{},
		}
	}
	return map[model.JobKind]job.Processor{
		model.JobKindImport: importer.New(a.records, a.blobs, a.cfg.ImportMaxSize),
		model.JobKindExport: export.New(a.records, a.blobs, a.cfg.BaseURL, a.cfg.ExportFontPath),
	}
}

// seedDemo は空のストアにデモデータを投入する。既にユーザーがいる場合は何もしない。
func (a *application) seedDemo(ctx context.Context) error {
	fixture, err := seed.Demo()
	if err != nil {
		return fmt.Errorf("failed to parse demo data: %w", err)
	}
	loaded, err := seed.Load(ctx, a.repos, fixture)
	if err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}
	if loaded {
		a.logger.Info("デモデータを投入しました")
	}
	return nil
}

// router はHTTPルーターを構築する。rlは呼び出し側で停止する。
func (a *application) router(rl *middleware.RateLimiter) http.Handler {
	deps := &handler.RouterDeps{
		Logger:            a.logger,
		StatusMetrics:     a.collector,
		UserFinder:        a.users,
		ActingResolver:    a.facade,
		CORSAllowedOrigin: a.cfg.CORSAllowedOrigin,
		RateLimiter:       rl,

		MetricsHandler: metrics.Handler(a.registry),
		ProfileFinder:  a.records,
		PhotoStore:     a.blobs,
		BaseURL:        a.cfg.BaseURL,

		MeService:         handler.NewMeServiceAdapter(a.users, a.records),
		IndividualService: a.records,
		Narrative:         a.narrator,

		JobService:    a.jobs,
		Template:      importer.Template,
		ImportMaxSize: a.cfg.ImportMaxSize,

		AdminService: a.facade,
	}
	// nilの*sql.DBをインターフェースに入れないよう、接続がある場合のみ設定する
	if a.db != nil {
		deps.HealthChecker = a.db
	}
	return handler.NewRouter(deps)
}

// Close はランナーを停止し、外部接続を閉じる。
func (a *application) Close() {
	if a.runner != nil {
		a.runner.Stop()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
