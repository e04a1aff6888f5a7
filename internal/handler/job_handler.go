package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/job"
	"github.com/hitoshi/beetlebase/internal/middleware"
	"github.com/hitoshi/beetlebase/internal/model"
)

// DefaultImportMaxSize はCSVアップロードの既定の上限サイズ。
const DefaultImportMaxSize int64 = 10 << 20

// multipartOverhead はファイル以外のmultipartの境界・ヘッダー・フォーム項目に許容するサイズ。
const multipartOverhead int64 = 1 << 20

// JobServiceInterface はジョブハンドラーが必要とするサービスインターフェース。
type JobServiceInterface interface {
	// Submit はジョブを作成し、非同期実行に引き渡す。
	Submit(ctx context.Context, req job.SubmitRequest) (*model.Job, error)
	// ListByOwner は所有者のジョブを投入日時の新しい順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Job, error)
	// GetOwned は所有者のジョブを取得する。
	GetOwned(ctx context.Context, ownerID, jobID string) (*model.Job, error)
	// CancelOwned は所有者の実行待ち・実行中のジョブを取り消す。
	CancelOwned(ctx context.Context, ownerID, jobID string) (*model.Job, error)
	// OpenArtifact は所有者のエクスポート生成物を取得する。
	OpenArtifact(ctx context.Context, ownerID, jobID string) (*model.Job, *blob.Object, error)
}

// TemplateFunc はインポート種別のCSVテンプレートを返す。
type TemplateFunc func(jobType string) ([]byte, error)

// JobHandler はインポート・エクスポートジョブのHTTPハンドラー。
type JobHandler struct {
	service       JobServiceInterface
	template      TemplateFunc
	importMaxSize int64
}

// NewJobHandler はJobHandlerを生成する。importMaxSizeが0以下の場合は既定値を使う。
func NewJobHandler(service JobServiceInterface, template TemplateFunc, importMaxSize int64) *JobHandler {
	if importMaxSize <= 0 {
		importMaxSize = DefaultImportMaxSize
	}
	return &JobHandler{
		service:       service,
		template:      template,
		importMaxSize: importMaxSize,
	}
}

// submitExportRequest はエクスポート投入リクエストのボディ。
type submitExportRequest struct {
	Type     string `json:"type"`
	TargetID string `json:"targetId"`
}

// jobResponse はジョブ情報のAPIレスポンス。
type jobResponse struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Type        string             `json:"type"`
	Status      string             `json:"status"`
	SubmittedAt time.Time          `json:"submittedAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	Result      string             `json:"result,omitempty"`
	Attempts    int                `json:"attempts"`
	ImportMode  string             `json:"importMode,omitempty"`
	TargetID    string             `json:"targetId,omitempty"`
	RowErrors   []rowErrorResponse `json:"rowErrors,omitempty"`
	Artifact    *artifactResponse  `json:"artifact,omitempty"`
}

// rowErrorResponse はCSVの行単位エラーのAPIレスポンス。
type rowErrorResponse struct {
	Line    int    `json:"line"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// artifactResponse はエクスポート生成物のAPIレスポンス。
type artifactResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// SubmitImport はCSVインポートジョブを投入する。
// POST /api/imports (multipart/form-data: file, type, mode)
func (h *JobHandler) SubmitImport(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	bodyLimit := h.importMaxSize + multipartOverhead
	if r.ContentLength > bodyLimit {
		writeFileTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeFileTooLarge(w)
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(
			model.FieldError{Field: "file", Message: "CSVファイルを選択してください"}))
		return
	}
	defer file.Close()

	// 上限はファイル本体のサイズに対して適用する
	if header.Size > h.importMaxSize {
		writeFileTooLarge(w)
		return
	}

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(
			model.FieldError{Field: "file", Message: "拡張子が.csvのファイルを選択してください"}))
		return
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	mode := model.ImportMode(r.FormValue("mode"))
	if mode == "" {
		mode = model.ImportModeSkip
	}

	j, err := h.service.Submit(r.Context(), job.SubmitRequest{
		Kind:       model.JobKindImport,
		Type:       r.FormValue("type"),
		OwnerID:    userID,
		ImportMode: mode,
		Payload:    payload,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(j))
}

// GetTemplate はインポート種別のCSVテンプレートを返す。
// GET /api/imports/templates/{type}
func (h *JobHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	jobType := chi.URLParam(r, "type")
	data, err := h.template(jobType)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(
			model.FieldError{Field: "type", Message: "インポート種別が正しくありません"}))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(jobType+"_template.csv"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// SubmitExport はPDFエクスポートジョブを投入する。
// POST /api/exports
func (h *JobHandler) SubmitExport(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req submitExportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	j, err := h.service.Submit(r.Context(), job.SubmitRequest{
		Kind:     model.JobKindExport,
		Type:     req.Type,
		OwnerID:  userID,
		TargetID: req.TargetID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(j))
}

// ListJobs は自分のジョブ一覧を取得する。
// GET /api/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	jobs, err := h.service.ListByOwner(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponses(jobs))
}

// GetJob はジョブの状態を取得する。
// GET /api/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	j, err := h.service.GetOwned(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// CancelJob は自分の実行待ち・実行中のジョブを取り消す。
// DELETE /api/jobs/{id}
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	j, err := h.service.CancelOwned(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(j))
}

// DownloadArtifact はエクスポート生成物をダウンロードする。
// GET /api/exports/{id}/download
func (h *JobHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	j, obj, err := h.service.OpenArtifact(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", attachment(j.Artifact.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}

// --- ヘルパー関数 ---

func writeFileTooLarge(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewValidationError(
		model.FieldError{Field: "file", Message: "ファイルサイズが上限を超えています"}))
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func toJobResponses(jobs []*model.Job) []jobResponse {
	results := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		results[i] = toJobResponse(j)
	}
	return results
}

// toJobResponse はmodel.JobからAPIレスポンスに変換する。
func toJobResponse(j *model.Job) jobResponse {
	resp := jobResponse{
		ID:          j.ID,
		Kind:        string(j.Kind),
		Type:        j.Type,
		Status:      string(j.Status),
		SubmittedAt: j.SubmittedAt,
		UpdatedAt:   j.UpdatedAt,
		Result:      j.Result,
		Attempts:    j.Attempts,
		ImportMode:  string(j.ImportMode),
		TargetID:    j.TargetID,
	}
	for _, e := range j.RowErrors {
		resp.RowErrors = append(resp.RowErrors, rowErrorResponse{Line: e.Line, Field: e.Field, Message: e.Message})
	}
	if j.Artifact != nil {
		resp.Artifact = &artifactResponse{Filename: j.Artifact.Filename, URL: j.Artifact.URL}
	}
	return resp
}
