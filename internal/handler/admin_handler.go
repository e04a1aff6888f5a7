package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/beetlebase/internal/middleware"
	"github.com/hitoshi/beetlebase/internal/model"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
// admin.Facadeが実装する。
type AdminServiceInterface interface {
	SearchUsers(ctx context.Context, query string) ([]*model.User, error)
	CreateUser(ctx context.Context, email string, isAdmin bool) (*model.User, error)
	ToggleUserStatus(ctx context.Context, userID string) (*model.User, error)
	Impersonate(ctx context.Context, adminID, targetID string) (*model.User, error)
	StopImpersonating(ctx context.Context, adminID string) error
	ListJobs(ctx context.Context, kind model.JobKind) ([]*model.Job, error)
	RetryJob(ctx context.Context, jobID string) (*model.Job, error)
	CancelJob(ctx context.Context, jobID string) (*model.Job, error)
}

// AdminHandler は管理者向けのHTTPハンドラー。
// なりすまし中でも、操作は認証された管理者本人として行う。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// createUserRequest はユーザー作成リクエストのボディ。
type createUserRequest struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

// SearchUsers はユーザーを検索する。
// GET /api/admin/users?q=
func (h *AdminHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]userResponse, len(users))
	for i, u := range users {
		results[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, results)
}

// CreateUser はユーザーを作成する。
// POST /api/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.CreateUser(r.Context(), req.Email, req.IsAdmin)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// ToggleUserStatus はユーザーの利用状態を切り替える。
// POST /api/admin/users/{id}/toggle-status
func (h *AdminHandler) ToggleUserStatus(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.ToggleUserStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Impersonate は対象ユーザーとしてのなりすましを開始する。
// POST /api/admin/impersonate/{id}
func (h *AdminHandler) Impersonate(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	target, err := h.service.Impersonate(r.Context(), actor.Real.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(target))
}

// StopImpersonating はなりすましを終了する。
// DELETE /api/admin/impersonate
func (h *AdminHandler) StopImpersonating(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.StopImpersonating(r.Context(), actor.Real.ID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListJobs は全ユーザーのジョブ一覧を取得する。
// GET /api/admin/jobs?kind=
func (h *AdminHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	kind := model.JobKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(
			model.FieldError{Field: "kind", Message: "ジョブ種別が正しくありません"}))
		return
	}

	jobs, err := h.service.ListJobs(r.Context(), kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponses(jobs))
}

// RetryJob は失敗したジョブを再実行する。
// POST /api/admin/jobs/{id}/retry
func (h *AdminHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.service.RetryJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(j))
}

// CancelJob は実行待ち・実行中のジョブを取り消す。
// POST /api/admin/jobs/{id}/cancel
func (h *AdminHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.service.CancelJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(j))
}
