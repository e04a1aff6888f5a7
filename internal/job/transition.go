// Package job は非同期ジョブ（CSVインポート・PDFエクスポート）の状態管理と実行を提供する。
// 状態遷移、遅延実行のスケジューリング、シミュレーション処理を含む。
package job

import (
	"fmt"
	"time"

	"github.com/hitoshi/beetlebase/internal/model"
)

// ジョブの進捗・結果メッセージ。
const (
	ResultQueued     = "Queued"
	ResultProcessing = "Processing..."
	ResultRetrying   = "retrying"
	ResultCanceled   = "canceled"
	ResultDownload   = "Download"
)

// Outcome はProcessorの処理結果を表す。
type Outcome struct {
	// Success がfalseの場合、ジョブはResultを原因としてfailedになる。
	Success   bool
	Result    string
	RowErrors []model.RowError
	Artifact  *model.Artifact
}

// SummaryResult は "28/30 success" 形式の集計結果を返す。
func SummaryResult(succeeded, total int) string {
	return fmt.Sprintf("%d/%d success", succeeded, total)
}

// ArtifactURL はエクスポート生成物のダウンロードURLを返す。
func ArtifactURL(jobID string) string {
	return fmt.Sprintf("/api/exports/%s/download", jobID)
}

// initialStatus はジョブ種別ごとの投入直後の状態と結果メッセージを返す。
// インポートは即座に処理中となり、エクスポートはワーカーの取得待ちとなる。
func initialStatus(kind model.JobKind) (model.JobStatus, string) {
	if kind == model.JobKindExport {
		return model.JobStatusPending, ResultQueued
	}
	return model.JobStatusRunning, ResultProcessing
}

// successStatus はジョブ種別ごとの成功時の終端状態を返す。
func successStatus(kind model.JobKind) model.JobStatus {
	if kind == model.JobKindExport {
		return model.JobStatusCompleted
	}
	return model.JobStatusSucceeded
}

// ApplyClaim は取得待ちのジョブを処理中にする。
func ApplyClaim(job *model.Job, now time.Time) {
	job.Status = model.JobStatusRunning
	job.Result = ResultProcessing
	job.UpdatedAt = now
}

// ApplyRetry は失敗したジョブを再実行のため処理中に戻す。
// 前回の行エラーと生成物は破棄する。
func ApplyRetry(job *model.Job, now time.Time) {
	job.Status = model.JobStatusRunning
	job.Result = ResultRetrying
	job.Attempts++
	job.RowErrors = nil
	job.Artifact = nil
	job.UpdatedAt = now
}

// ApplyOutcome は処理結果を終端状態として反映する。
func ApplyOutcome(job *model.Job, out Outcome, now time.Time) {
	if out.Success {
		job.Status = successStatus(job.Kind)
		job.Artifact = out.Artifact
	} else {
		job.Status = model.JobStatusFailed
		job.Artifact = nil
	}
	job.Result = out.Result
	job.RowErrors = out.RowErrors
	job.UpdatedAt = now
}

// ApplyFailure はジョブを原因メッセージ付きで失敗にする。
func ApplyFailure(job *model.Job, cause string, now time.Time) {
	ApplyOutcome(job, Outcome{Result: cause}, now)
}
