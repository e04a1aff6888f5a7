package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
	listFn     func(ctx context.Context) ([]*model.User, error)
	updateFn   func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return nil
}
func (m *mockUserRepo) Update(ctx context.Context, user *model.User) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, user)
	}
	return nil
}

func newSeededService(t *testing.T) *Service {
	t.Helper()
	repo := repository.NewMemoryUserRepo()
	ctx := context.Background()
	for _, u := range []*model.User{
		{ID: "u1", Email: "tanaka@example.com", Status: model.UserStatusActive, Plan: model.PlanFree},
		{ID: "u2", Email: "Suzuki@Example.com", Status: model.UserStatusSuspended, Plan: model.PlanPro},
		{ID: "u3", Email: "sato@beetle.jp", Status: model.UserStatusActive, Plan: model.PlanFree},
	} {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return NewService(repo)
}

// --- テスト ---

// TestService_ToggleStatus_TwiceRestores は状態切り替えを2回行うと元に戻ることを検証する。
func TestService_ToggleStatus_TwiceRestores(t *testing.T) {
	svc := newSeededService(t)
	ctx := context.Background()

	u, err := svc.ToggleStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Status != model.UserStatusSuspended {
		t.Fatalf("expected Suspended, got %s", u.Status)
	}

	u, err = svc.ToggleStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Status != model.UserStatusActive {
		t.Fatalf("expected Active, got %s", u.Status)
	}

	stored, _ := svc.Get(ctx, "u1")
	if stored.Status != model.UserStatusActive {
		t.Errorf("expected stored status Active, got %s", stored.Status)
	}
}

// TestService_ToggleStatus_NotFound は存在しないユーザーでUSER_NOT_FOUNDを返すことを検証する。
func TestService_ToggleStatus_NotFound(t *testing.T) {
	svc := newSeededService(t)

	_, err := svc.ToggleStatus(context.Background(), "missing")
	if !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

// TestService_ToggleStatus_UpdateError はリポジトリエラーがラップされて返ることを検証する。
func TestService_ToggleStatus_UpdateError(t *testing.T) {
	dbErr := errors.New("connection refused")
	svc := NewService(&mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Status: model.UserStatusActive}, nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			return dbErr
		},
	})

	_, err := svc.ToggleStatus(context.Background(), "u1")
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

// TestService_Search はメールアドレスの大文字小文字を区別しない部分一致を検証する。
func TestService_Search(t *testing.T) {
	svc := newSeededService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"空クエリは全件", "", []string{"u1", "u2", "u3"}},
		{"ドメイン一致", "example.com", []string{"u1", "u2"}},
		{"大文字小文字を無視", "SUZUKI", []string{"u2"}},
		{"前後の空白を無視", "  beetle ", []string{"u3"}},
		{"一致なし", "nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Search(ctx, tt.query)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d users, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("result[%d]: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}

// TestService_Create は新規ユーザーがActive・Freeで作成されることを検証する。
func TestService_Create(t *testing.T) {
	svc := newSeededService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "new@example.com", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Status != model.UserStatusActive || u.Plan != model.PlanFree || u.ID == "" {
		t.Errorf("unexpected user: %+v", u)
	}

	if _, err := svc.Create(ctx, "TANAKA@example.com", false); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_ERROR for duplicate email, got %v", err)
	}
	if _, err := svc.Create(ctx, "not-an-email", false); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_ERROR for malformed email, got %v", err)
	}
}

// TestService_UpgradePlan はFreeからProへの変更とPro維持を検証する。
func TestService_UpgradePlan(t *testing.T) {
	svc := newSeededService(t)
	ctx := context.Background()

	u, err := svc.UpgradePlan(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Plan != model.PlanPro {
		t.Fatalf("expected Pro, got %s", u.Plan)
	}

	plan, err := svc.PlanOf(ctx, "u1")
	if err != nil || plan != model.PlanPro {
		t.Fatalf("expected Pro from PlanOf, got %s, %v", plan, err)
	}

	u, err = svc.UpgradePlan(ctx, "u2")
	if err != nil || u.Plan != model.PlanPro {
		t.Fatalf("expected Pro to stay Pro, got %v, %v", u, err)
	}
}
