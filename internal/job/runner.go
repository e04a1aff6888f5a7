package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/beetlebase/internal/model"
)

// RunnerConfig はランナーの遅延とタイムアウトの設定。
type RunnerConfig struct {
	// ImportDelay はインポート投入から処理開始までの遅延。
	ImportDelay time.Duration
	// ExportPickupDelay はエクスポート投入からワーカー取得までの遅延。
	ExportPickupDelay time.Duration
	// ExportDelay はエクスポート取得から処理開始までの遅延。
	ExportDelay time.Duration
	// Timeout は1回の処理に許容する時間。
	Timeout time.Duration
}

// DefaultRunnerConfig は既定の設定を返す。
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		ImportDelay:       2 * time.Second,
		ExportPickupDelay: 1 * time.Second,
		ExportDelay:       3 * time.Second,
		Timeout:           30 * time.Second,
	}
}

// Runner はジョブを遅延実行し、結果を1回の状態更新として反映する。
// 同じジョブIDについて同時に実行される処理は1つだけ。
type Runner struct {
	jobs       *Service
	scheduler  Scheduler
	processors map[model.JobKind]Processor
	cfg        RunnerConfig
	logger     *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	inflight map[string]*task
	stopped  bool
	wg       sync.WaitGroup
}

// task は実行予約中または処理中のジョブ。
type task struct {
	stopTimer func() bool
	cancelCtx context.CancelFunc
	canceled  bool
}

// NewRunner はRunnerを生成し、jobsの投入・リトライの実行先として登録する。
func NewRunner(jobs *Service, scheduler Scheduler, processors map[model.JobKind]Processor, cfg RunnerConfig, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		jobs:       jobs,
		scheduler:  scheduler,
		processors: processors,
		cfg:        cfg,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		inflight:   make(map[string]*task),
	}
	jobs.WithDispatcher(r)
	return r
}

// Schedule はジョブの実行を予約する。
// pendingのジョブは取得遅延の後に取得し、runningのジョブは処理遅延の後に処理する。
// 同じジョブが予約済み・処理中の場合はINVALID_PRECONDITIONを返す。
func (r *Runner) Schedule(job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return model.NewInvalidPreconditionError("ジョブランナーは停止しています")
	}
	if _, ok := r.inflight[job.ID]; ok {
		return model.NewInvalidPreconditionError("このジョブはすでに実行中です")
	}

	id := job.ID
	t := &task{}
	switch job.Status {
	case model.JobStatusPending:
		t.stopTimer = r.scheduler.After(r.cfg.ExportPickupDelay, func() { r.onPickup(id) })
	case model.JobStatusRunning:
		t.stopTimer = r.scheduler.After(r.processingDelay(job.Kind), func() { r.onProcess(id) })
	default:
		return model.NewInvalidPreconditionError(
			fmt.Sprintf("ジョブの状態が %s のため実行できません", job.Status))
	}
	r.inflight[id] = t

	r.logger.Debug("ジョブの実行を予約しました",
		slog.String("job_id", id),
		slog.String("status", string(job.Status)),
	)
	return nil
}

func (r *Runner) processingDelay(kind model.JobKind) time.Duration {
	if kind == model.JobKindExport {
		return r.cfg.ExportDelay
	}
	return r.cfg.ImportDelay
}

// Cancel は予約中・処理中のジョブを取り消し、canceledとして失敗にする。
// 処理中の場合は処理のコンテキストを取り消し、処理側が状態を更新する。
// 結果の書き込みを始めたジョブは予約から外れているため、INVALID_PRECONDITIONを返す。
func (r *Runner) Cancel(ctx context.Context, jobID string) error {
	r.mu.Lock()
	t, ok := r.inflight[jobID]
	if !ok || t.canceled {
		r.mu.Unlock()
		return model.NewInvalidPreconditionError("実行待ち・実行中のジョブではありません")
	}
	t.canceled = true
	timerStopped := t.stopTimer()
	if t.cancelCtx != nil {
		t.cancelCtx()
	}
	r.mu.Unlock()

	if !timerStopped {
		return nil
	}
	return r.markCanceled(ctx, jobID)
}

// InFlight はジョブが予約中・処理中かを返す。
func (r *Runner) InFlight(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[jobID]
	return ok
}

// Stop はすべての予約を取り消し、処理中のコールバックの終了を待つ。
// 停止後は状態の更新を行わない。
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	for _, t := range r.inflight {
		t.stopTimer()
		if t.cancelCtx != nil {
			t.cancelCtx()
		}
	}
	pending := len(r.inflight)
	r.inflight = make(map[string]*task)
	r.mu.Unlock()

	r.baseCancel()
	r.wg.Wait()
	r.logger.Info("ジョブランナーを停止しました", slog.Int("abandoned", pending))
}

// begin は予定時刻を迎えたコールバックを開始する。停止後や予約が取り消し済みの場合はfalseを返す。
func (r *Runner) begin(id string) (*task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, false
	}
	t, ok := r.inflight[id]
	if !ok {
		return nil, false
	}
	r.wg.Add(1)
	return t, true
}

func (r *Runner) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
}

// markCanceled は予約を外してからcanceledを書き込む。
func (r *Runner) markCanceled(ctx context.Context, id string) error {
	r.forget(id)
	if _, err := r.jobs.cancel(ctx, id); err != nil {
		r.logger.Warn("ジョブの取り消しに失敗しました",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		return err
	}
	r.logger.Info("ジョブを取り消しました", slog.String("job_id", id))
	return nil
}

// onPickup は取得待ちのジョブを取得し、処理を予約する。
func (r *Runner) onPickup(id string) {
	t, ok := r.begin(id)
	if !ok {
		return
	}
	defer r.wg.Done()

	r.mu.Lock()
	canceled := t.canceled
	r.mu.Unlock()
	if canceled {
		_ = r.markCanceled(r.baseCtx, id)
		return
	}

	job, claimed, err := r.jobs.claim(r.baseCtx, id)
	if err != nil || !claimed {
		if err != nil {
			r.logger.Error("ジョブの取得に失敗しました",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
		r.forget(id)
		return
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if t.canceled {
		r.mu.Unlock()
		_ = r.markCanceled(r.baseCtx, id)
		return
	}
	t.stopTimer = r.scheduler.After(r.processingDelay(job.Kind), func() { r.onProcess(id) })
	r.mu.Unlock()
}

// onProcess はジョブを処理し、結果を反映する。
func (r *Runner) onProcess(id string) {
	t, ok := r.begin(id)
	if !ok {
		return
	}
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(r.baseCtx, r.cfg.Timeout)
	defer cancel()

	r.mu.Lock()
	if t.canceled {
		r.mu.Unlock()
		_ = r.markCanceled(r.baseCtx, id)
		return
	}
	t.cancelCtx = cancel
	r.mu.Unlock()

	out := r.process(ctx, id)

	// 終了状態を書き込む前に予約を外す。書き込み直後のリトライは新しい予約として受け付ける。
	r.mu.Lock()
	stopped, canceled := r.stopped, t.canceled
	if !stopped && !canceled {
		delete(r.inflight, id)
	}
	r.mu.Unlock()
	if stopped {
		return
	}
	if canceled {
		_ = r.markCanceled(r.baseCtx, id)
		return
	}

	var err error
	if out.Success {
		_, err = r.jobs.Complete(r.baseCtx, id, out)
	} else {
		_, err = r.jobs.Fail(r.baseCtx, id, out.Result, out.RowErrors)
	}
	if err != nil {
		r.logger.Warn("ジョブ結果の反映に失敗しました",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) process(ctx context.Context, id string) Outcome {
	job, err := r.jobs.Get(ctx, id)
	if err != nil {
		return Outcome{Result: failureMessage(err, r.cfg.Timeout)}
	}

	p, ok := r.processors[job.Kind]
	if !ok {
		return Outcome{Result: fmt.Sprintf("unsupported job kind: %s", job.Kind)}
	}

	start := time.Now()
	out, err := p.Process(ctx, job)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		r.logger.Warn("ジョブの処理に失敗しました",
			slog.String("job_id", id),
			slog.String("type", job.Type),
			slog.String("error", err.Error()),
		)
		return Outcome{Result: failureMessage(err, r.cfg.Timeout)}
	}

	r.logger.Debug("ジョブの処理が完了しました",
		slog.String("job_id", id),
		slog.Bool("success", out.Success),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return out
}

// failureMessage は処理エラーをジョブの結果メッセージに変換する。
func failureMessage(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("timed out after %s", timeout)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

var _ Dispatcher = (*Runner)(nil)
