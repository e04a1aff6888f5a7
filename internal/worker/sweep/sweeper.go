// Package sweep は取得待ちジョブの定期的な実行予約と、中断されたジョブの失敗化を行う。
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/beetlebase/internal/model"
)

// JobSource はスイープ対象のジョブを提供する。
type JobSource interface {
	// ListPending は取得待ちのジョブを投入日時の古い順で返す。
	ListPending(ctx context.Context) ([]*model.Job, error)
	// FailStale は一定時間以上更新のないrunningジョブを失敗にする。
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// JobScheduler はジョブの実行を予約する。
type JobScheduler interface {
	Schedule(job *model.Job) error
	InFlight(jobID string) bool
}

// Sweeper は一定間隔で取得待ちジョブをランナーに渡す。
// 別プロセスから投入されたエクスポートや、再起動前に予約されていたジョブを拾うために使う。
type Sweeper struct {
	jobs       JobSource
	runner     JobScheduler
	logger     *slog.Logger
	staleAfter time.Duration
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
// staleAfterが0以下の場合は中断ジョブの失敗化を行わない。
func NewSweeper(jobs JobSource, runner JobScheduler, logger *slog.Logger, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		jobs:       jobs,
		runner:     runner,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// Start は指定間隔のティッカーでスイープを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ジョブスイーパーを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("stale_after", s.staleAfter),
	)

	// 起動直後に1回実行
	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ジョブスイーパーを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("ジョブスイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Result は1回のスイープの結果。
type Result struct {
	Scheduled int
	Failed    int
}

// RunOnce は中断ジョブを失敗にしたうえで、未予約の取得待ちジョブをランナーに渡す。
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	if s.staleAfter > 0 {
		n, err := s.jobs.FailStale(ctx, s.staleAfter)
		if err != nil {
			return res, err
		}
		res.Failed = n
		if n > 0 {
			s.logger.Warn("中断されたジョブを失敗にしました", slog.Int("count", n))
		}
	}

	pending, err := s.jobs.ListPending(ctx)
	if err != nil {
		return res, err
	}

	for _, j := range pending {
		if s.runner.InFlight(j.ID) {
			continue
		}
		if err := s.runner.Schedule(j); err != nil {
			// 他の経路で予約済み、またはランナー停止中
			if model.HasCode(err, model.ErrCodeInvalidPrecondition) {
				s.logger.Debug("ジョブの予約をスキップしました",
					slog.String("job_id", j.ID),
					slog.String("reason", err.Error()),
				)
				continue
			}
			s.logger.Error("ジョブの予約に失敗しました",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Scheduled++
	}

	if res.Scheduled > 0 || res.Failed > 0 {
		s.logger.Info("ジョブスイープが完了しました",
			slog.Int("pending_count", len(pending)),
			slog.Int("scheduled", res.Scheduled),
			slog.Int("failed", res.Failed),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return res, nil
}
