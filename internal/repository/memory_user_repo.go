package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/beetlebase/internal/model"
)

// MemoryUserRepo はプロセス内メモリにユーザーを保持するリポジトリ。
type MemoryUserRepo struct {
	mu    sync.RWMutex
	byID  map[string]model.User
	order []string
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{byID: make(map[string]model.User)}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// List は全ユーザーを作成順で返す。
func (r *MemoryUserRepo) List(ctx context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.User, 0, len(r.order))
	for _, id := range r.order {
		u := r.byID[id]
		result = append(result, &u)
	}
	return result, nil
}

// Create はユーザーを作成する。IDが重複する場合はエラーを返す。
func (r *MemoryUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[user.ID]; exists {
		return fmt.Errorf("user already exists: %s", user.ID)
	}
	r.byID[user.ID] = *user
	r.order = append(r.order, user.ID)
	return nil
}

// Update はユーザーを置き換える。
func (r *MemoryUserRepo) Update(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[user.ID]; !ok {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	r.byID[user.ID] = *user
	return nil
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
