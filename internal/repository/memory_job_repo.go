package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hitoshi/beetlebase/internal/model"
)

// MemoryJobRepo はプロセス内メモリにジョブを保持するリポジトリ。
type MemoryJobRepo struct {
	mu   sync.RWMutex
	byID map[string]*model.Job
}

// NewMemoryJobRepo はMemoryJobRepoを生成する。
func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{byID: make(map[string]*model.Job)}
}

// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
func (r *MemoryJobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byID[id].Clone(), nil
}

// List はジョブを投入日時の新しい順で返す。
func (r *MemoryJobRepo) List(ctx context.Context, kind model.JobKind) ([]*model.Job, error) {
	return r.filter(func(j *model.Job) bool {
		return kind == "" || j.Kind == kind
	}, false), nil
}

// ListByOwner は所有者のジョブを投入日時の新しい順で返す。
func (r *MemoryJobRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Job, error) {
	return r.filter(func(j *model.Job) bool {
		return j.OwnerID == ownerID
	}, false), nil
}

// ListByStatus は指定状態のジョブを投入日時の古い順で返す。
func (r *MemoryJobRepo) ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	return r.filter(func(j *model.Job) bool {
		return j.Status == status
	}, true), nil
}

func (r *MemoryJobRepo) filter(match func(*model.Job) bool, ascending bool) []*model.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Job
	for _, j := range r.byID {
		if match(j) {
			result = append(result, j.Clone())
		}
	}
	sort.SliceStable(result, func(a, b int) bool {
		if result[a].SubmittedAt.Equal(result[b].SubmittedAt) {
			return result[a].ID < result[b].ID
		}
		if ascending {
			return result[a].SubmittedAt.Before(result[b].SubmittedAt)
		}
		return result[a].SubmittedAt.After(result[b].SubmittedAt)
	})
	return result
}

// Create はジョブを作成する。IDが重複する場合はエラーを返す。
func (r *MemoryJobRepo) Create(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[job.ID]; exists {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	r.byID[job.ID] = job.Clone()
	return nil
}

// UpdateIf は保存済みジョブの状態がexpectedの場合に限りジョブを置き換える。
func (r *MemoryJobRepo) UpdateIf(ctx context.Context, job *model.Job, expected model.JobStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[job.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	r.byID[job.ID] = job.Clone()
	return true, nil
}

// compile-time interface check
var _ JobRepository = (*MemoryJobRepo)(nil)
