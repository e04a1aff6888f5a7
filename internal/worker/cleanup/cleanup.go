// Package cleanup はエクスポート生成物の自動削除ジョブを提供する。
// 保持期間（デフォルト7日）を超過した生成物をバッチで削除する。
// 削除後のダウンロードはARTIFACT_NOT_FOUNDになる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/beetlebase/internal/blob"
)

// DefaultRetentionDays は生成物の保持日数の既定値。
const DefaultRetentionDays = 7

// CleanupJob は保持期間を超過したエクスポート生成物の自動削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	store         blob.Store
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // 生成物の保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store blob.Store, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		store:         store,
		logger:        logger,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は更新日時がRetentionDays日前より古い生成物を削除し、削除件数を返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (int, error) {
	start := time.Now()
	cutoff := j.now().Add(-time.Duration(j.RetentionDays) * 24 * time.Hour)

	objects, err := j.store.List(ctx, blob.PrefixExports)
	if err != nil {
		j.logger.Error("生成物クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("生成物一覧の取得に失敗: %w", err)
	}

	deleted := 0
	for _, obj := range objects {
		if !obj.ModTime.Before(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, obj.Key); err != nil {
			j.logger.Error("生成物の削除に失敗しました",
				slog.String("key", obj.Key),
				slog.String("error", err.Error()),
			)
			return deleted, fmt.Errorf("生成物の削除に失敗: %w", err)
		}
		deleted++
	}

	j.logger.Info("生成物クリーンアップジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.String("driver", j.store.Driver()),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start は起動直後と以後interval毎にRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
