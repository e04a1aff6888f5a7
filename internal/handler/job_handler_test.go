package handler

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/job"
	"github.com/hitoshi/beetlebase/internal/model"
)

// --- モック定義 ---

// mockJobService はJobServiceInterfaceのモック実装。
type mockJobService struct {
	submitFn       func(ctx context.Context, req job.SubmitRequest) (*model.Job, error)
	listByOwnerFn  func(ctx context.Context, ownerID string) ([]*model.Job, error)
	getOwnedFn     func(ctx context.Context, ownerID, jobID string) (*model.Job, error)
	openArtifactFn func(ctx context.Context, ownerID, jobID string) (*model.Job, *blob.Object, error)
	cancelOwnedFn  func(ctx context.Context, ownerID, jobID string) (*model.Job, error)
}

func (m *mockJobService) Submit(ctx context.Context, req job.SubmitRequest) (*model.Job, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, req)
	}
	return &model.Job{ID: "job-1", Kind: req.Kind, Type: req.Type, Status: model.JobStatusPending}, nil
}

func (m *mockJobService) ListByOwner(ctx context.Context, ownerID string) ([]*model.Job, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockJobService) GetOwned(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	if m.getOwnedFn != nil {
		return m.getOwnedFn(ctx, ownerID, jobID)
	}
	return nil, model.NewJobNotFoundError(jobID)
}

func (m *mockJobService) CancelOwned(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	if m.cancelOwnedFn != nil {
		return m.cancelOwnedFn(ctx, ownerID, jobID)
	}
	return nil, model.NewJobNotFoundError(jobID)
}

func (m *mockJobService) OpenArtifact(ctx context.Context, ownerID, jobID string) (*model.Job, *blob.Object, error) {
	if m.openArtifactFn != nil {
		return m.openArtifactFn(ctx, ownerID, jobID)
	}
	return nil, nil, model.NewArtifactNotFoundError(jobID)
}

func stubTemplate(jobType string) ([]byte, error) {
	if jobType != model.JobTypeIndividuals {
		return nil, errors.New("unsupported import type")
	}
	return []byte("individual_code,species_common\n"), nil
}

// newImportRequest はmultipart形式のインポートリクエストを組み立てるヘルパー。
func newImportRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withUserID(req, "user-1")
}

// --- POST /api/imports テスト ---

func TestJobHandler_SubmitImport_Success(t *testing.T) {
	var got job.SubmitRequest
	svc := &mockJobService{
		submitFn: func(ctx context.Context, req job.SubmitRequest) (*model.Job, error) {
			got = req
			return &model.Job{ID: "job-1", Kind: req.Kind, Type: req.Type, Status: model.JobStatusRunning, ImportMode: req.ImportMode}, nil
		},
	}
	h := NewJobHandler(svc, stubTemplate, 0)

	req := newImportRequest(t, "batch.CSV", "individual_code\nA-1\n", map[string]string{
		"type": model.JobTypeIndividuals,
		"mode": string(model.ImportModeOverwrite),
	})
	w := httptest.NewRecorder()

	h.SubmitImport(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusAccepted, w.Body.String())
	}
	if got.Kind != model.JobKindImport || got.OwnerID != "user-1" || got.ImportMode != model.ImportModeOverwrite {
		t.Errorf("request = %+v", got)
	}
	if string(got.Payload) != "individual_code\nA-1\n" {
		t.Errorf("payload = %q", got.Payload)
	}
	resp := decodeBody[jobResponse](t, w)
	if resp.Status != string(model.JobStatusRunning) {
		t.Errorf("status = %q, want running", resp.Status)
	}
}

func TestJobHandler_SubmitImport_DefaultsToSkipMode(t *testing.T) {
	var got job.SubmitRequest
	svc := &mockJobService{
		submitFn: func(ctx context.Context, req job.SubmitRequest) (*model.Job, error) {
			got = req
			return &model.Job{ID: "job-1"}, nil
		},
	}
	h := NewJobHandler(svc, stubTemplate, 0)

	req := newImportRequest(t, "a.csv", "x", map[string]string{"type": model.JobTypeMeasurements})
	w := httptest.NewRecorder()

	h.SubmitImport(w, req)

	if got.ImportMode != model.ImportModeSkip {
		t.Errorf("mode = %q, want %q", got.ImportMode, model.ImportModeSkip)
	}
}

func TestJobHandler_SubmitImport_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		content    string
		maxSize    int64
		wantStatus int
	}{
		{"no file", "", "", 0, http.StatusBadRequest},
		{"wrong extension", "batch.xlsx", "x", 0, http.StatusBadRequest},
		{"too large", "batch.csv", strings.Repeat("a", 2048), 1024, http.StatusRequestEntityTooLarge},
		{"one byte over ceiling", "batch.csv", strings.Repeat("a", 1025), 1024, http.StatusRequestEntityTooLarge},
		{"body beyond envelope", "batch.csv", strings.Repeat("a", 2<<20), 1024, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockJobService{
				submitFn: func(ctx context.Context, req job.SubmitRequest) (*model.Job, error) {
					called = true
					return &model.Job{}, nil
				},
			}
			h := NewJobHandler(svc, stubTemplate, tt.maxSize)

			req := newImportRequest(t, tt.filename, tt.content, map[string]string{"type": model.JobTypeIndividuals})
			w := httptest.NewRecorder()

			h.SubmitImport(w, req)

			assertErrorCode(t, w, tt.wantStatus, model.ErrCodeValidation)
			if called {
				t.Error("Submit must not be called")
			}
		})
	}
}

func TestJobHandler_SubmitImport_AcceptsFilesUpToCeiling(t *testing.T) {
	for _, size := range []int{1000, 1024} {
		called := false
		var gotLen int
		svc := &mockJobService{
			submitFn: func(ctx context.Context, req job.SubmitRequest) (*model.Job, error) {
				called = true
				gotLen = len(req.Payload)
				return &model.Job{ID: "job-1", Kind: req.Kind, Status: model.JobStatusRunning}, nil
			},
		}
		h := NewJobHandler(svc, stubTemplate, 1024)

		req := newImportRequest(t, "batch.csv", strings.Repeat("a", size),
			map[string]string{"type": model.JobTypeIndividuals, "mode": string(model.ImportModeSkip)})
		w := httptest.NewRecorder()

		h.SubmitImport(w, req)

		if w.Code != http.StatusAccepted {
			t.Fatalf("size %d: status = %d, want %d (body: %s)", size, w.Code, http.StatusAccepted, w.Body.String())
		}
		if !called || gotLen != size {
			t.Errorf("size %d: called = %v, payload = %d bytes", size, called, gotLen)
		}
	}
}

// --- GET /api/imports/templates/{type} テスト ---

func TestJobHandler_GetTemplate(t *testing.T) {
	h := NewJobHandler(&mockJobService{}, stubTemplate, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/imports/templates/individuals", nil)
	req = withChiURLParam(req, "type", model.JobTypeIndividuals)
	w := httptest.NewRecorder()

	h.GetTemplate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "individuals_template.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestJobHandler_GetTemplate_UnknownType(t *testing.T) {
	h := NewJobHandler(&mockJobService{}, stubTemplate, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/imports/templates/photos", nil)
	req = withChiURLParam(req, "type", "photos")
	w := httptest.NewRecorder()

	h.GetTemplate(w, req)

	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidation)
}

// --- POST /api/exports テスト ---

func TestJobHandler_SubmitExport(t *testing.T) {
	var got job.SubmitRequest
	svc := &mockJobService{
		submitFn: func(ctx context.Context, req job.SubmitRequest) (*model.Job, error) {
			got = req
			return &model.Job{ID: "job-e", Kind: req.Kind, Type: req.Type, Status: model.JobStatusPending, TargetID: req.TargetID}, nil
		},
	}
	h := NewJobHandler(svc, stubTemplate, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/exports",
		strings.NewReader(`{"type":"pedigree_pdf","targetId":"ind-1"}`))
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.SubmitExport(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if got.Kind != model.JobKindExport || got.TargetID != "ind-1" || got.Type != model.JobTypePedigreePDF {
		t.Errorf("request = %+v", got)
	}
	resp := decodeBody[jobResponse](t, w)
	if resp.Status != string(model.JobStatusPending) || resp.TargetID != "ind-1" {
		t.Errorf("response = %+v", resp)
	}
}

// --- GET /api/jobs テスト ---

func TestJobHandler_ListJobs_IncludesRowErrors(t *testing.T) {
	svc := &mockJobService{
		listByOwnerFn: func(ctx context.Context, ownerID string) ([]*model.Job, error) {
			return []*model.Job{{
				ID:          "job-i2",
				Kind:        model.JobKindImport,
				Status:      model.JobStatusFailed,
				SubmittedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				RowErrors:   []model.RowError{{Line: 15, Field: "measured_at", Message: "日付形式が不正です"}},
			}}, nil
		},
	}
	h := NewJobHandler(svc, stubTemplate, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.ListJobs(w, req)

	resp := decodeBody[[]jobResponse](t, w)
	if len(resp) != 1 || len(resp[0].RowErrors) != 1 || resp[0].RowErrors[0].Line != 15 {
		t.Errorf("response = %+v", resp)
	}
}

func TestJobHandler_GetJob_NotFound(t *testing.T) {
	h := NewJobHandler(&mockJobService{}, stubTemplate, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	req = withUserID(req, "user-1")
	req = withChiURLParam(req, "id", "nope")
	w := httptest.NewRecorder()

	h.GetJob(w, req)

	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeJobNotFound)
}

// --- DELETE /api/jobs/{id} テスト ---

func TestJobHandler_CancelJob(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"pending job", nil, http.StatusAccepted},
		{"already finished", model.NewInvalidPreconditionError("終了済みのジョブは取り消せません"), http.StatusConflict},
		{"other owner", model.NewJobNotFoundError("job-1"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOwner string
			svc := &mockJobService{
				cancelOwnedFn: func(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
					gotOwner = ownerID
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Job{ID: jobID, Status: model.JobStatusFailed, Result: job.ResultCanceled}, nil
				},
			}
			h := NewJobHandler(svc, stubTemplate, 0)

			req := httptest.NewRequest(http.MethodDelete, "/api/jobs/job-1", nil)
			req = withUserID(req, "user-1")
			req = withChiURLParam(req, "id", "job-1")
			w := httptest.NewRecorder()

			h.CancelJob(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gotOwner != "user-1" {
				t.Errorf("ownerID = %q, want user-1", gotOwner)
			}
			if tt.err == nil {
				if resp := decodeBody[jobResponse](t, w); resp.Result != job.ResultCanceled {
					t.Errorf("result = %q, want canceled", resp.Result)
				}
			}
		})
	}
}

func TestJobHandler_CancelJob_Unauthorized(t *testing.T) {
	h := NewJobHandler(&mockJobService{}, stubTemplate, 0)

	req := httptest.NewRequest(http.MethodDelete, "/api/jobs/job-1", nil)
	req = withChiURLParam(req, "id", "job-1")
	w := httptest.NewRecorder()

	h.CancelJob(w, req)

	assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
}

// --- GET /api/exports/{id}/download テスト ---

func TestJobHandler_DownloadArtifact(t *testing.T) {
	svc := &mockJobService{
		openArtifactFn: func(ctx context.Context, ownerID, jobID string) (*model.Job, *blob.Object, error) {
			return &model.Job{ID: jobID, Artifact: &model.Artifact{Filename: "pedigree-DHO-2024-001.pdf"}},
				&blob.Object{Data: []byte("%PDF-1.3"), ContentType: "application/pdf"}, nil
		},
	}
	h := NewJobHandler(svc, stubTemplate, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/exports/job-e1/download", nil)
	req = withUserID(req, "user-1")
	req = withChiURLParam(req, "id", "job-e1")
	w := httptest.NewRecorder()

	h.DownloadArtifact(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename=pedigree-DHO-2024-001.pdf` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if w.Body.String() != "%PDF-1.3" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestJobHandler_DownloadArtifact_Purged(t *testing.T) {
	h := NewJobHandler(&mockJobService{}, stubTemplate, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/exports/job-e1/download", nil)
	req = withUserID(req, "user-1")
	req = withChiURLParam(req, "id", "job-e1")
	w := httptest.NewRecorder()

	h.DownloadArtifact(w, req)

	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeArtifactNotFound)
}
