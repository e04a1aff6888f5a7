package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/events"
	"github.com/hitoshi/beetlebase/internal/metrics"
	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/repository"
)

// Dispatcher は投入・リトライされたジョブの非同期実行を受け付ける。
type Dispatcher interface {
	Schedule(job *model.Job) error
	Cancel(ctx context.Context, jobID string) error
}

// SubmitRequest はジョブ投入の入力を表す。
type SubmitRequest struct {
	Kind    model.JobKind
	Type    string
	OwnerID string

	// インポート用
	ImportMode model.ImportMode
	Payload    []byte

	// エクスポート用。qr_label_pdfで空の場合は所有者の全個体が対象。
	TargetID string
}

// Service はジョブの状態管理を行うサービス層。
// 状態の前提確認から書き込みまでを排他制御し、リポジトリの比較更新で他プロセスとの競合も防ぐ。
type Service struct {
	repo       repository.JobRepository
	blobs      blob.Store
	publisher  events.Publisher
	metrics    metrics.MetricsCollector
	dispatcher Dispatcher
	now        func() time.Time
	newID      func() string
	mu         sync.Mutex
}

// NewService はServiceを生成する。
func NewService(repo repository.JobRepository) *Service {
	return &Service{
		repo:      repo,
		publisher: events.Noop{},
		metrics:   metrics.Nop{},
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// WithBlobStore はCSVペイロードとエクスポート生成物の保存先を設定する。
func (s *Service) WithBlobStore(store blob.Store) *Service {
	s.blobs = store
	return s
}

// WithPublisher はジョブイベントの配信先を設定する。
func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

// WithMetrics はメトリクス収集を設定する。
func (s *Service) WithMetrics(m metrics.MetricsCollector) *Service {
	s.metrics = m
	return s
}

// WithDispatcher はジョブの実行先を設定する。
func (s *Service) WithDispatcher(d Dispatcher) *Service {
	s.dispatcher = d
	return s
}

// WithClock は時刻取得関数を差し替える。
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

var jobTypesByKind = map[model.JobKind][]string{
	model.JobKindImport: {model.JobTypeIndividuals, model.JobTypeMeasurements},
	model.JobKindExport: {model.JobTypePedigreePDF, model.JobTypeQRLabelPDF},
}

func validateSubmit(req SubmitRequest) []model.FieldError {
	var errs []model.FieldError
	if !req.Kind.Valid() {
		return []model.FieldError{{Field: "kind", Message: "ジョブ種別が正しくありません"}}
	}

	validType := false
	for _, t := range jobTypesByKind[req.Kind] {
		if req.Type == t {
			validType = true
		}
	}
	if !validType {
		errs = append(errs, model.FieldError{Field: "type", Message: "ジョブタイプが正しくありません"})
	}

	switch req.Kind {
	case model.JobKindImport:
		if !req.ImportMode.Valid() {
			errs = append(errs, model.FieldError{Field: "mode", Message: "インポートモードが正しくありません"})
		}
		if len(req.Payload) == 0 {
			errs = append(errs, model.FieldError{Field: "file", Message: "CSVファイルが空です"})
		}
	case model.JobKindExport:
		if req.Type == model.JobTypePedigreePDF && req.TargetID == "" {
			errs = append(errs, model.FieldError{Field: "targetId", Message: "対象の個体を指定してください"})
		}
	}
	return errs
}

// Submit はジョブを作成し、実行先に引き渡す。
// インポートはrunning、エクスポートはpendingで作成する。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*model.Job, error) {
	if errs := validateSubmit(req); len(errs) > 0 {
		return nil, model.NewValidationError(errs...)
	}

	now := s.now()
	status, result := initialStatus(req.Kind)
	job := &model.Job{
		ID:          s.newID(),
		Kind:        req.Kind,
		Type:        req.Type,
		Status:      status,
		OwnerID:     req.OwnerID,
		SubmittedAt: now,
		UpdatedAt:   now,
		Result:      result,
		Attempts:    1,
		TargetID:    req.TargetID,
		RowErrors:   []model.RowError{},
	}
	if req.Kind == model.JobKindImport {
		job.ImportMode = req.ImportMode
		if s.blobs != nil {
			job.PayloadKey = blob.ImportKey(job.ID)
			if err := s.blobs.Put(ctx, job.PayloadKey, req.Payload, "text/csv"); err != nil {
				return nil, fmt.Errorf("CSVペイロードの保存に失敗しました: %w", err)
			}
		}
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("ジョブの作成に失敗しました: %w", err)
	}

	slog.Info("ジョブを投入しました",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.String("type", job.Type),
		slog.String("owner_id", job.OwnerID),
	)
	s.metrics.RecordJobSubmitted(string(job.Kind), job.Type)
	s.publish(ctx, job)
	s.dispatch(job)
	return job.Clone(), nil
}

// Retry は失敗したジョブを再実行する。
// failed以外の状態ではINVALID_PRECONDITIONを返し、状態は変更しない。
func (s *Service) Retry(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.transition(ctx, jobID, model.JobStatusFailed, func(j *model.Job) {
		ApplyRetry(j, s.now())
	})
	if err != nil {
		return nil, err
	}

	slog.Info("ジョブをリトライします",
		slog.String("job_id", job.ID),
		slog.Int("attempts", job.Attempts),
	)
	s.metrics.RecordJobRetried(string(job.Kind))
	s.dispatch(job)
	return job.Clone(), nil
}

// Complete は処理中のジョブを成功として終了する。
// インポートはsucceeded、エクスポートはcompletedになる。
func (s *Service) Complete(ctx context.Context, jobID string, out Outcome) (*model.Job, error) {
	out.Success = true
	return s.finish(ctx, jobID, out)
}

// Fail は処理中のジョブを原因メッセージ付きで失敗にする。
func (s *Service) Fail(ctx context.Context, jobID, cause string, rowErrors []model.RowError) (*model.Job, error) {
	return s.finish(ctx, jobID, Outcome{Result: cause, RowErrors: rowErrors})
}

func (s *Service) finish(ctx context.Context, jobID string, out Outcome) (*model.Job, error) {
	if out.RowErrors == nil {
		out.RowErrors = []model.RowError{}
	}
	job, err := s.transition(ctx, jobID, model.JobStatusRunning, func(j *model.Job) {
		ApplyOutcome(j, out, s.now())
	})
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if job.Status == model.JobStatusFailed {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "ジョブが終了しました",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
		slog.String("result", job.Result),
		slog.Int("row_errors", len(job.RowErrors)),
	)
	s.metrics.RecordJobFinished(string(job.Kind), string(job.Status), job.UpdatedAt.Sub(job.SubmittedAt))
	return job.Clone(), nil
}

// claim は取得待ちのジョブを処理中にする。
// 他のランナーが先に取得した場合はfalseを返す。
func (s *Service) claim(ctx context.Context, jobID string) (*model.Job, bool, error) {
	job, err := s.transition(ctx, jobID, model.JobStatusPending, func(j *model.Job) {
		ApplyClaim(j, s.now())
	})
	if model.HasCode(err, model.ErrCodeInvalidPrecondition) || model.HasCode(err, model.ErrCodeJobNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Cancel は実行待ち・実行中のジョブを取り消す。
// 処理中のジョブは処理側がcanceledを書き込むため、戻り値はrunningのままの場合がある。
// このプロセスで予約されていない取得待ちのジョブは直接canceledにする。
func (s *Service) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	if s.dispatcher != nil {
		err := s.dispatcher.Cancel(ctx, jobID)
		if err == nil {
			slog.Info("ジョブの取り消しを受け付けました", slog.String("job_id", jobID))
			return s.Get(ctx, jobID)
		}
		if !model.HasCode(err, model.ErrCodeInvalidPrecondition) {
			return nil, err
		}
	}

	current, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.JobStatusPending {
		return nil, model.NewInvalidPreconditionError(
			fmt.Sprintf("ジョブの状態が %s のため取り消せません", current.Status))
	}
	job, err := s.transition(ctx, jobID, model.JobStatusPending, func(j *model.Job) {
		ApplyFailure(j, ResultCanceled, s.now())
	})
	if err != nil {
		return nil, err
	}
	slog.Info("取得待ちのジョブを取り消しました", slog.String("job_id", jobID))
	return job.Clone(), nil
}

// CancelOwned は所有者のジョブを取り消す。
func (s *Service) CancelOwned(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	if _, err := s.GetOwned(ctx, ownerID, jobID); err != nil {
		return nil, err
	}
	return s.Cancel(ctx, jobID)
}

// cancel は未終了のジョブをcanceledとして失敗にする。失敗扱いのためリトライできる。
func (s *Service) cancel(ctx context.Context, jobID string) (*model.Job, error) {
	current, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}
	if current.Status.IsTerminal() {
		return nil, model.NewInvalidPreconditionError("終了済みのジョブは取り消せません")
	}
	return s.transition(ctx, jobID, current.Status, func(j *model.Job) {
		ApplyFailure(j, ResultCanceled, s.now())
	})
}

// FailStale は一定時間以上runningのまま更新されていないジョブを失敗にする。
// プロセスの停止などで処理が中断されたジョブをリトライ可能にするために使用する。
func (s *Service) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	running, err := s.repo.ListByStatus(ctx, model.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("処理中ジョブの取得に失敗しました: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	failed := 0
	for _, j := range running {
		if j.UpdatedAt.After(cutoff) {
			continue
		}
		_, err := s.transition(ctx, j.ID, model.JobStatusRunning, func(j *model.Job) {
			ApplyFailure(j, "timed out", s.now())
		})
		if model.HasCode(err, model.ErrCodeInvalidPrecondition) {
			continue
		}
		if err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}

// transition は保存済みジョブの状態がexpectedであることを確認してから変更を適用する。
func (s *Service) transition(ctx context.Context, jobID string, expected model.JobStatus, apply func(*model.Job)) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}
	if job.Status != expected {
		slog.Warn("ジョブの状態が操作の前提を満たしません",
			slog.String("job_id", jobID),
			slog.String("status", string(job.Status)),
			slog.String("expected", string(expected)),
		)
		return nil, model.NewInvalidPreconditionError(
			fmt.Sprintf("ジョブの状態が %s のため操作できません（%s である必要があります）", job.Status, expected))
	}

	apply(job)
	ok, err := s.repo.UpdateIf(ctx, job, expected)
	if err != nil {
		return nil, fmt.Errorf("ジョブの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewInvalidPreconditionError("ジョブの状態が他の処理によって変更されました")
	}

	s.publish(ctx, job)
	return job, nil
}

// publish はジョブイベントを配信する。配信の失敗は状態遷移を失敗させない。
func (s *Service) publish(ctx context.Context, job *model.Job) {
	if err := s.publisher.PublishJob(ctx, job); err != nil {
		slog.Warn("ジョブイベントの配信に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) dispatch(job *model.Job) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Schedule(job.Clone()); err != nil {
		slog.Warn("ジョブの実行予約に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Get はジョブを取得する。
func (s *Service) Get(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}
	return job, nil
}

// GetOwned は所有者のジョブを取得する。他のユーザーのジョブはJOB_NOT_FOUNDとして扱う。
func (s *Service) GetOwned(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, model.NewJobNotFoundError(jobID)
	}
	return job, nil
}

// List はジョブを投入日時の新しい順で返す。kindが空の場合は全種別を返す。
func (s *Service) List(ctx context.Context, kind model.JobKind) ([]*model.Job, error) {
	if kind != "" && !kind.Valid() {
		return nil, model.NewValidationError(model.FieldError{Field: "kind", Message: "ジョブ種別が正しくありません"})
	}
	jobs, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("ジョブ一覧の取得に失敗しました: %w", err)
	}
	return jobs, nil
}

// ListByOwner は所有者のジョブを投入日時の新しい順で返す。
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*model.Job, error) {
	jobs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ジョブ一覧の取得に失敗しました: %w", err)
	}
	return jobs, nil
}

// ListPending は取得待ちのジョブを投入日時の古い順で返す。
func (s *Service) ListPending(ctx context.Context) ([]*model.Job, error) {
	jobs, err := s.repo.ListByStatus(ctx, model.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("取得待ちジョブの取得に失敗しました: %w", err)
	}
	return jobs, nil
}

// OpenArtifact は所有者のエクスポート生成物を取得する。
// 生成物が未作成、または保持期間切れで削除済みの場合はARTIFACT_NOT_FOUNDを返す。
func (s *Service) OpenArtifact(ctx context.Context, ownerID, jobID string) (*model.Job, *blob.Object, error) {
	job, err := s.GetOwned(ctx, ownerID, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != model.JobStatusCompleted || job.Artifact == nil || job.Artifact.Key == "" || s.blobs == nil {
		return nil, nil, model.NewArtifactNotFoundError(jobID)
	}

	obj, err := s.blobs.Get(ctx, job.Artifact.Key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, model.NewArtifactNotFoundError(jobID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("エクスポートファイルの取得に失敗しました: %w", err)
	}
	return job, obj, nil
}
