package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/beetlebase/internal/middleware"
	"github.com/hitoshi/beetlebase/internal/model"
)

// MeServiceInterface はログインユーザー向けハンドラーが必要とするサービスインターフェース。
type MeServiceInterface interface {
	// Profile はユーザー情報とプランの利用状況を返す。
	Profile(ctx context.Context, userID string) (*meResponse, error)
	// UpgradePlan はユーザーをProプランに変更し、変更後の利用状況を返す。
	UpgradePlan(ctx context.Context, userID string) (*meResponse, error)
}

// MeHandler はログインユーザー自身の情報を扱うHTTPハンドラー。
type MeHandler struct {
	service MeServiceInterface
}

// NewMeHandler はMeHandlerを生成する。
func NewMeHandler(service MeServiceInterface) *MeHandler {
	return &MeHandler{service: service}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	Plan      string    `json:"plan"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

// limitsResponse はプラン上限のAPIレスポンス。individualsがnilの場合は無制限。
type limitsResponse struct {
	Individuals         *int `json:"individuals"`
	PhotosPerIndividual int  `json:"photosPerIndividual"`
}

// meResponse はログインユーザー情報のAPIレスポンス。
type meResponse struct {
	User            userResponse   `json:"user"`
	Limits          limitsResponse `json:"limits"`
	IndividualCount int            `json:"individualCount"`
	// なりすまし中のみ設定する
	ImpersonatedBy string `json:"impersonatedBy,omitempty"`
}

// GetMe はログインユーザーの情報を取得する。
// GET /api/me
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	resp, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if actor, err := middleware.ActorFromContext(r.Context()); err == nil && actor.Impersonating() {
		resp.ImpersonatedBy = actor.Real.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpgradePlan はProプランにアップグレードする。
// POST /api/me/plan/upgrade
func (h *MeHandler) UpgradePlan(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	resp, err := h.service.UpgradePlan(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Status:    string(u.Status),
		Plan:      string(u.Plan),
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}
