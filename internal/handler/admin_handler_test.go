package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/beetlebase/internal/model"
)

// --- モック定義 ---

// mockAdminService はAdminServiceInterfaceのモック実装。
type mockAdminService struct {
	searchUsersFn       func(ctx context.Context, query string) ([]*model.User, error)
	createUserFn        func(ctx context.Context, email string, isAdmin bool) (*model.User, error)
	toggleUserStatusFn  func(ctx context.Context, userID string) (*model.User, error)
	impersonateFn       func(ctx context.Context, adminID, targetID string) (*model.User, error)
	stopImpersonatingFn func(ctx context.Context, adminID string) error
	listJobsFn          func(ctx context.Context, kind model.JobKind) ([]*model.Job, error)
	retryJobFn          func(ctx context.Context, jobID string) (*model.Job, error)
	cancelJobFn         func(ctx context.Context, jobID string) (*model.Job, error)
}

func (m *mockAdminService) SearchUsers(ctx context.Context, query string) ([]*model.User, error) {
	if m.searchUsersFn != nil {
		return m.searchUsersFn(ctx, query)
	}
	return nil, nil
}

func (m *mockAdminService) CreateUser(ctx context.Context, email string, isAdmin bool) (*model.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, email, isAdmin)
	}
	return &model.User{ID: "new", Email: email, IsAdmin: isAdmin}, nil
}

func (m *mockAdminService) ToggleUserStatus(ctx context.Context, userID string) (*model.User, error) {
	if m.toggleUserStatusFn != nil {
		return m.toggleUserStatusFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockAdminService) Impersonate(ctx context.Context, adminID, targetID string) (*model.User, error) {
	if m.impersonateFn != nil {
		return m.impersonateFn(ctx, adminID, targetID)
	}
	return &model.User{ID: targetID}, nil
}

func (m *mockAdminService) StopImpersonating(ctx context.Context, adminID string) error {
	if m.stopImpersonatingFn != nil {
		return m.stopImpersonatingFn(ctx, adminID)
	}
	return nil
}

func (m *mockAdminService) ListJobs(ctx context.Context, kind model.JobKind) ([]*model.Job, error) {
	if m.listJobsFn != nil {
		return m.listJobsFn(ctx, kind)
	}
	return nil, nil
}

func (m *mockAdminService) RetryJob(ctx context.Context, jobID string) (*model.Job, error) {
	if m.retryJobFn != nil {
		return m.retryJobFn(ctx, jobID)
	}
	return &model.Job{ID: jobID, Status: model.JobStatusRunning}, nil
}

func (m *mockAdminService) CancelJob(ctx context.Context, jobID string) (*model.Job, error) {
	if m.cancelJobFn != nil {
		return m.cancelJobFn(ctx, jobID)
	}
	return &model.Job{ID: jobID, Status: model.JobStatusFailed, Result: "canceled"}, nil
}

var (
	testAdmin  = &model.User{ID: "admin", Email: "admin@example.com", Status: model.UserStatusActive, IsAdmin: true}
	testMember = &model.User{ID: "u1", Email: "u1@example.com", Status: model.UserStatusActive}
)

// --- ユーザー管理テスト ---

func TestAdminHandler_SearchUsers(t *testing.T) {
	svc := &mockAdminService{
		searchUsersFn: func(ctx context.Context, query string) ([]*model.User, error) {
			if query != "example" {
				t.Errorf("query = %q, want %q", query, "example")
			}
			return []*model.User{testAdmin, testMember}, nil
		},
	}
	h := NewAdminHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users?q=example", nil)
	w := httptest.NewRecorder()

	h.SearchUsers(w, req)

	resp := decodeBody[[]userResponse](t, w)
	if len(resp) != 2 || !resp[0].IsAdmin {
		t.Errorf("response = %+v", resp)
	}
}

func TestAdminHandler_CreateUser(t *testing.T) {
	h := NewAdminHandler(&mockAdminService{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users",
		strings.NewReader(`{"email":"new@example.com","isAdmin":true}`))
	w := httptest.NewRecorder()

	h.CreateUser(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	resp := decodeBody[userResponse](t, w)
	if resp.Email != "new@example.com" || !resp.IsAdmin {
		t.Errorf("response = %+v", resp)
	}
}

func TestAdminHandler_ToggleUserStatus_NotFound(t *testing.T) {
	h := NewAdminHandler(&mockAdminService{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/ghost/toggle-status", nil)
	req = withChiURLParam(req, "id", "ghost")
	w := httptest.NewRecorder()

	h.ToggleUserStatus(w, req)

	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeUserNotFound)
}

// --- なりすましテスト ---

func TestAdminHandler_Impersonate_UsesRealIdentity(t *testing.T) {
	var gotAdmin string
	svc := &mockAdminService{
		impersonateFn: func(ctx context.Context, adminID, targetID string) (*model.User, error) {
			gotAdmin = adminID
			return testMember, nil
		},
	}
	h := NewAdminHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/impersonate/u1", nil)
	req = withActor(req, testAdmin, testAdmin)
	req = withChiURLParam(req, "id", "u1")
	w := httptest.NewRecorder()

	h.Impersonate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotAdmin != "admin" {
		t.Errorf("adminID = %q, want %q", gotAdmin, "admin")
	}
}

func TestAdminHandler_Impersonate_AlreadyImpersonating(t *testing.T) {
	svc := &mockAdminService{
		impersonateFn: func(ctx context.Context, adminID, targetID string) (*model.User, error) {
			return nil, model.NewInvalidPreconditionError("既になりすまし中です。")
		},
	}
	h := NewAdminHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/impersonate/u2", nil)
	req = withActor(req, testAdmin, testMember)
	req = withChiURLParam(req, "id", "u2")
	w := httptest.NewRecorder()

	h.Impersonate(w, req)

	assertErrorCode(t, w, http.StatusConflict, model.ErrCodeInvalidPrecondition)
}

func TestAdminHandler_StopImpersonating(t *testing.T) {
	var gotAdmin string
	svc := &mockAdminService{
		stopImpersonatingFn: func(ctx context.Context, adminID string) error {
			gotAdmin = adminID
			return nil
		},
	}
	h := NewAdminHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/impersonate", nil)
	req = withActor(req, testAdmin, testMember)
	w := httptest.NewRecorder()

	h.StopImpersonating(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotAdmin != "admin" {
		t.Errorf("adminID = %q, want the real admin", gotAdmin)
	}
}

func TestAdminHandler_Impersonate_NoActor_ReturnsUnauthorized(t *testing.T) {
	h := NewAdminHandler(&mockAdminService{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/impersonate/u1", nil)
	req = withChiURLParam(req, "id", "u1")
	w := httptest.NewRecorder()

	h.Impersonate(w, req)

	assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
}

// --- ジョブ管理テスト ---

func TestAdminHandler_ListJobs_KindFilter(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantKind   model.JobKind
		wantStatus int
	}{
		{"all", "", "", http.StatusOK},
		{"import", "?kind=import", model.JobKindImport, http.StatusOK},
		{"export", "?kind=export", model.JobKindExport, http.StatusOK},
		{"invalid", "?kind=photos", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKind model.JobKind
			svc := &mockAdminService{
				listJobsFn: func(ctx context.Context, kind model.JobKind) ([]*model.Job, error) {
					gotKind = kind
					return []*model.Job{}, nil
				},
			}
			h := NewAdminHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/admin/jobs"+tt.query, nil)
			w := httptest.NewRecorder()

			h.ListJobs(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gotKind != tt.wantKind {
				t.Errorf("kind = %q, want %q", gotKind, tt.wantKind)
			}
		})
	}
}

func TestAdminHandler_RetryJob(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"failed job", nil, http.StatusAccepted},
		{"not failed", model.NewInvalidPreconditionError("失敗したジョブのみ再実行できます"), http.StatusConflict},
		{"missing", model.NewJobNotFoundError("x"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAdminService{
				retryJobFn: func(ctx context.Context, jobID string) (*model.Job, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Job{ID: jobID, Status: model.JobStatusRunning, Attempts: 2}, nil
				},
			}
			h := NewAdminHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/admin/jobs/job-i2/retry", nil)
			req = withChiURLParam(req, "id", "job-i2")
			w := httptest.NewRecorder()

			h.RetryJob(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAdminHandler_CancelJob(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"pending job", nil, http.StatusAccepted},
		{"finished", model.NewInvalidPreconditionError("終了済みのジョブは取り消せません"), http.StatusConflict},
		{"missing", model.NewJobNotFoundError("x"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID string
			svc := &mockAdminService{
				cancelJobFn: func(ctx context.Context, jobID string) (*model.Job, error) {
					gotID = jobID
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Job{ID: jobID, Status: model.JobStatusFailed, Result: "canceled"}, nil
				},
			}
			h := NewAdminHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/admin/jobs/job-e2/cancel", nil)
			req = withChiURLParam(req, "id", "job-e2")
			w := httptest.NewRecorder()

			h.CancelJob(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gotID != "job-e2" {
				t.Errorf("jobID = %q, want job-e2", gotID)
			}
		})
	}
}
