// Package admin は管理者向けの操作（ユーザー管理・なりすまし・ジョブの再実行と取り消し）を提供する。
package admin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/beetlebase/internal/model"
)

// UserManager はユーザー管理の操作。
type UserManager interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	Search(ctx context.Context, query string) ([]*model.User, error)
	Create(ctx context.Context, email string, isAdmin bool) (*model.User, error)
	ToggleStatus(ctx context.Context, userID string) (*model.User, error)
}

// JobManager はジョブ管理の操作。
type JobManager interface {
	List(ctx context.Context, kind model.JobKind) ([]*model.Job, error)
	Retry(ctx context.Context, jobID string) (*model.Job, error)
	Cancel(ctx context.Context, jobID string) (*model.Job, error)
}

// Facade は管理者操作の窓口。
// なりすましの状態はプロセス内のセッションとして保持し、保存データは変更しない。
type Facade struct {
	users UserManager
	jobs  JobManager

	mu       sync.RWMutex
	sessions map[string]string // 管理者ID → なりすまし対象のユーザーID
}

// NewFacade はFacadeを生成する。
func NewFacade(users UserManager, jobs JobManager) *Facade {
	return &Facade{
		users:    users,
		jobs:     jobs,
		sessions: make(map[string]string),
	}
}

// ToggleUserStatus はユーザーの状態をActiveとSuspendedの間で切り替える。
func (f *Facade) ToggleUserStatus(ctx context.Context, userID string) (*model.User, error) {
	return f.users.ToggleStatus(ctx, userID)
}

// SearchUsers はメールアドレスの部分一致でユーザーを検索する。
func (f *Facade) SearchUsers(ctx context.Context, query string) ([]*model.User, error) {
	return f.users.Search(ctx, query)
}

// CreateUser はユーザーを作成する。
func (f *Facade) CreateUser(ctx context.Context, email string, isAdmin bool) (*model.User, error) {
	return f.users.Create(ctx, email, isAdmin)
}

// ListJobs はジョブ一覧を返す。kindが空の場合は全種別を返す。
func (f *Facade) ListJobs(ctx context.Context, kind model.JobKind) ([]*model.Job, error) {
	return f.jobs.List(ctx, kind)
}

// RetryJob は失敗したジョブを再実行する。failed以外はINVALID_PRECONDITIONを返す。
func (f *Facade) RetryJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := f.jobs.Retry(ctx, jobID)
	if err != nil {
		return nil, err
	}
	slog.Info("管理者がジョブを再実行しました", slog.String("job_id", jobID))
	return job, nil
}

// CancelJob は実行待ち・実行中のジョブを取り消す。終了済みのジョブはINVALID_PRECONDITIONを返す。
func (f *Facade) CancelJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := f.jobs.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	slog.Info("管理者がジョブを取り消しました", slog.String("job_id", jobID))
	return job, nil
}

// Impersonate は管理者のセッションを対象ユーザーとして振る舞う状態にする。
// なりすまし中の再なりすましはできない。
func (f *Facade) Impersonate(ctx context.Context, adminID, targetID string) (*model.User, error) {
	admin, err := f.users.Get(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !admin.IsAdmin {
		return nil, model.NewForbiddenError("管理者権限が必要です。")
	}
	if adminID == targetID {
		return nil, model.NewInvalidPreconditionError("自分自身になりすますことはできません。")
	}
	target, err := f.users.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.sessions[adminID]; ok {
		return nil, model.NewInvalidPreconditionError("既に " + current + " としてなりすまし中です。先に終了してください。")
	}
	f.sessions[adminID] = targetID

	slog.Info("なりすましを開始しました",
		slog.String("admin_id", adminID),
		slog.String("target_id", targetID),
	)
	return target, nil
}

// StopImpersonating はなりすましを終了する。なりすまし中でない場合はINVALID_PRECONDITIONを返す。
func (f *Facade) StopImpersonating(ctx context.Context, adminID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	targetID, ok := f.sessions[adminID]
	if !ok {
		return model.NewInvalidPreconditionError("なりすまし中ではありません。")
	}
	delete(f.sessions, adminID)

	slog.Info("なりすましを終了しました",
		slog.String("admin_id", adminID),
		slog.String("target_id", targetID),
	)
	return nil
}

// ActingUserID はリクエストの操作主体となるユーザーIDを返す。
// なりすまし中は対象ユーザー、それ以外は本人。
func (f *Facade) ActingUserID(userID string) string {
	if target, ok := f.Impersonating(userID); ok {
		return target
	}
	return userID
}

// Impersonating はなりすまし中の対象ユーザーIDを返す。
func (f *Facade) Impersonating(adminID string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	target, ok := f.sessions[adminID]
	return target, ok
}
