package handler

import (
	"context"

	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/plan"
)

// UserAccount はMeServiceAdapterが必要とするユーザーサービスの操作。
// user.Serviceが実装する。
type UserAccount interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	UpgradePlan(ctx context.Context, userID string) (*model.User, error)
}

// IndividualCounter は登録個体数を数える。record.Serviceが実装する。
type IndividualCounter interface {
	Count(ctx context.Context, ownerID string) (int, error)
}

// MeServiceAdapter は user.Service と record.Service を MeServiceInterface に適合させるアダプタ。
type MeServiceAdapter struct {
	users   UserAccount
	records IndividualCounter
}

// NewMeServiceAdapter はMeServiceAdapterを生成する。
func NewMeServiceAdapter(users UserAccount, records IndividualCounter) *MeServiceAdapter {
	return &MeServiceAdapter{users: users, records: records}
}

// Profile はユーザー情報とプランの利用状況をhandlerレスポンス型で返す。
func (a *MeServiceAdapter) Profile(ctx context.Context, userID string) (*meResponse, error) {
	u, err := a.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.toMeResponse(ctx, u)
}

// UpgradePlan はProプランに変更し、変更後の利用状況をhandlerレスポンス型で返す。
func (a *MeServiceAdapter) UpgradePlan(ctx context.Context, userID string) (*meResponse, error) {
	u, err := a.users.UpgradePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.toMeResponse(ctx, u)
}

func (a *MeServiceAdapter) toMeResponse(ctx context.Context, u *model.User) (*meResponse, error) {
	count, err := a.records.Count(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	limits := plan.LimitsFor(u.Plan)
	resp := &meResponse{
		User:            toUserResponse(u),
		Limits:          limitsResponse{PhotosPerIndividual: limits.PhotosPerIndividual},
		IndividualCount: count,
	}
	if !limits.IndividualsUnlimited {
		n := limits.Individuals
		resp.Limits.Individuals = &n
	}
	return resp, nil
}

// コンパイル時のインターフェース実装チェック
var (
	_ MeServiceInterface = (*MeServiceAdapter)(nil)
)
