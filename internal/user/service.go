// Package user はユーザーアカウント管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/repository"
)

// Service はユーザー管理のサービス層。
// 状態の切り替えとプラン変更は読み取りから書き込みまでを排他制御する。
type Service struct {
	userRepo repository.UserRepository
	now      func() time.Time
	mu       sync.Mutex
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
		now:      time.Now,
	}
}

// Get は指定IDのユーザーを取得する。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// PlanOf はユーザーの現在のプランを返す。
// 上限判定のたびに呼び出し、プランをキャッシュしない。
func (s *Service) PlanOf(ctx context.Context, userID string) (model.Plan, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Plan, nil
}

// List は全ユーザーを作成順で返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Search はメールアドレスに対する大文字小文字を区別しない部分一致でユーザーを検索する。
// queryが空の場合は全ユーザーを返す。
func (s *Service) Search(ctx context.Context, query string) ([]*model.User, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return users, nil
	}

	var matched []*model.User
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Email), q) {
			matched = append(matched, u)
		}
	}
	return matched, nil
}

// Create は新規ユーザーをActive・Freeプランで作成する。
func (s *Service) Create(ctx context.Context, email string, isAdmin bool) (*model.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, model.NewValidationError(model.FieldError{Field: "email", Message: "メールアドレスの形式が正しくありません"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return nil, model.NewValidationError(model.FieldError{Field: "email", Message: "このメールアドレスは既に登録されています"})
		}
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Status:    model.UserStatusActive,
		Plan:      model.PlanFree,
		IsAdmin:   isAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを作成しました",
		slog.String("user_id", user.ID),
		slog.Bool("is_admin", isAdmin),
	)
	return user, nil
}

// ToggleStatus はユーザーの状態をActiveとSuspendedの間で切り替える。
// 呼び出すたびに反転するため、2回呼ぶと元の状態に戻る。
func (s *Service) ToggleStatus(ctx context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.Status == model.UserStatusActive {
		user.Status = model.UserStatusSuspended
	} else {
		user.Status = model.UserStatusActive
	}
	user.UpdatedAt = s.now()

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザー状態の更新に失敗しました: %w", err)
	}

	slog.Info("ユーザー状態を切り替えました",
		slog.String("user_id", userID),
		slog.String("status", string(user.Status)),
	)
	return user, nil
}

// UpgradePlan はユーザーをProプランに変更する。既にProの場合は何もしない。
// ダウングレードは提供しない。
func (s *Service) UpgradePlan(ctx context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Plan == model.PlanPro {
		return user, nil
	}

	user.Plan = model.PlanPro
	user.UpdatedAt = s.now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("プランの更新に失敗しました: %w", err)
	}

	slog.Info("プランをアップグレードしました",
		slog.String("user_id", userID),
	)
	return user, nil
}
