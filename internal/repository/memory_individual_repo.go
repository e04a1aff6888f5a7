package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hitoshi/beetlebase/internal/model"
)

// MemoryIndividualRepo はプロセス内メモリに個体を保持するリポジトリ。
// 読み書きともにディープコピーを受け渡し、呼び出し側の変更が保存内容に漏れないようにする。
type MemoryIndividualRepo struct {
	mu    sync.RWMutex
	byID  map[string]*model.Individual
	order []string
}

// NewMemoryIndividualRepo はMemoryIndividualRepoを生成する。
func NewMemoryIndividualRepo() *MemoryIndividualRepo {
	return &MemoryIndividualRepo{byID: make(map[string]*model.Individual)}
}

// FindByID は指定IDの個体を取得する。見つからない場合はnilを返す。
func (r *MemoryIndividualRepo) FindByID(ctx context.Context, id string) (*model.Individual, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ind, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return ind.Clone(), nil
}

// FindByOwnerAndCode は所有者と個体コードで最初に登録された個体を返す。
func (r *MemoryIndividualRepo) FindByOwnerAndCode(ctx context.Context, ownerID, code string) (*model.Individual, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		ind := r.byID[id]
		if ind.OwnerID == ownerID && ind.IndividualCode == code {
			return ind.Clone(), nil
		}
	}
	return nil, nil
}

// FindFirstByCode は所有者を問わず、コードが一致する最初の個体を返す。
func (r *MemoryIndividualRepo) FindFirstByCode(ctx context.Context, code string) (*model.Individual, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if ind := r.byID[id]; strings.EqualFold(ind.IndividualCode, code) {
			return ind.Clone(), nil
		}
	}
	return nil, nil
}

// ListByOwner は所有者の個体一覧を登録順で返す。
func (r *MemoryIndividualRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Individual, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Individual
	for _, id := range r.order {
		if ind := r.byID[id]; ind.OwnerID == ownerID {
			result = append(result, ind.Clone())
		}
	}
	return result, nil
}

// CountByOwner は所有者の登録個体数を返す。
func (r *MemoryIndividualRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, ind := range r.byID {
		if ind.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// Create は個体を作成する。IDが重複する場合はエラーを返す。
func (r *MemoryIndividualRepo) Create(ctx context.Context, ind *model.Individual) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[ind.ID]; exists {
		return fmt.Errorf("individual already exists: %s", ind.ID)
	}
	r.byID[ind.ID] = ind.Clone()
	r.order = append(r.order, ind.ID)
	return nil
}

// Update は個体の登録情報を置き換える。写真・計測値は保持する。
func (r *MemoryIndividualRepo) Update(ctx context.Context, ind *model.Individual) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[ind.ID]
	if !ok {
		return fmt.Errorf("individual not found: %s", ind.ID)
	}
	stored.IndividualDraft = ind.IndividualDraft.CloneDraft()
	stored.UpdatedAt = ind.UpdatedAt
	return nil
}

// AppendPhoto は個体の写真リスト末尾に写真を追加する。
func (r *MemoryIndividualRepo) AppendPhoto(ctx context.Context, individualID string, photo model.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[individualID]
	if !ok {
		return fmt.Errorf("individual not found: %s", individualID)
	}
	stored.Photos = append(stored.Photos, photo)
	stored.UpdatedAt = photo.CreatedAt
	return nil
}

// AppendMeasurement は個体の計測記録を追加する。
func (r *MemoryIndividualRepo) AppendMeasurement(ctx context.Context, individualID string, m model.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[individualID]
	if !ok {
		return fmt.Errorf("individual not found: %s", individualID)
	}
	stored.Measurements = append(stored.Measurements, m.Clone())
	return nil
}

// compile-time interface check
var _ IndividualRepository = (*MemoryIndividualRepo)(nil)
