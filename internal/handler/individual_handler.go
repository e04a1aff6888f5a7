package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/beetlebase/internal/middleware"
	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/record"
)

// IndividualServiceInterface は個体ハンドラーが必要とするサービスインターフェース。
type IndividualServiceInterface interface {
	// List は所有者の個体を検索・並び替えして返す。
	List(ctx context.Context, ownerID string, q record.ListQuery) ([]*model.Individual, error)
	// AddIndividual は個体を登録する。登録個体数がプラン上限の場合はQUOTA_EXCEEDEDを返す。
	AddIndividual(ctx context.Context, ownerID string, draft model.IndividualDraft) (*model.Individual, error)
	// UpdateIndividual は個体の登録内容を置き換える。
	UpdateIndividual(ctx context.Context, ownerID string, ind *model.Individual) (*model.Individual, error)
	// Get は所有者の個体を取得する。
	Get(ctx context.Context, ownerID, individualID string) (*model.Individual, error)
	// DraftFrom は既存個体から再登録用の下書きを作成する。
	DraftFrom(ctx context.Context, ownerID, individualID string) (model.IndividualDraft, error)
	// AddPhoto は個体に写真を追加する。
	AddPhoto(ctx context.Context, ownerID, individualID, photoURL string) (*model.Photo, error)
	// AddMeasurement は個体に計測記録を追加する。
	AddMeasurement(ctx context.Context, ownerID, individualID string, in record.MeasurementInput) (*model.Measurement, error)
}

// NarrativeGenerator は個体の紹介レポートを生成する。
type NarrativeGenerator interface {
	Generate(ctx context.Context, ind *model.Individual) (string, error)
}

// IndividualHandler は個体管理のHTTPハンドラー。
type IndividualHandler struct {
	service   IndividualServiceInterface
	narrative NarrativeGenerator
}

// NewIndividualHandler はIndividualHandlerを生成する。
func NewIndividualHandler(service IndividualServiceInterface, narrative NarrativeGenerator) *IndividualHandler {
	return &IndividualHandler{
		service:   service,
		narrative: narrative,
	}
}

// individualRequest は個体の登録・更新リクエストのボディ。
type individualRequest struct {
	IndividualCode    string      `json:"individualCode"`
	SpeciesCommon     string      `json:"speciesCommon"`
	SpeciesScientific string      `json:"speciesScientific"`
	Stage             model.Stage `json:"stage"`
	Sex               model.Sex   `json:"sex"`
	BirthDate         *string     `json:"birthDate"`
	IntroducedDate    string      `json:"introducedDate"`
	LineName          *string     `json:"lineName"`
	ParentCodeM       *string     `json:"parentCodeM"`
	ParentCodeF       *string     `json:"parentCodeF"`
	Notes             *string     `json:"notes"`
}

func (req individualRequest) toDraft() model.IndividualDraft {
	return model.IndividualDraft{
		IndividualCode:    req.IndividualCode,
		SpeciesCommon:     req.SpeciesCommon,
		SpeciesScientific: req.SpeciesScientific,
		Stage:             req.Stage,
		Sex:               req.Sex,
		BirthDate:         req.BirthDate,
		IntroducedDate:    req.IntroducedDate,
		LineName:          req.LineName,
		ParentCodeM:       req.ParentCodeM,
		ParentCodeF:       req.ParentCodeF,
		Notes:             req.Notes,
	}
}

// addPhotoRequest は写真追加リクエストのボディ。photoUrlはURLまたはdata URI。
type addPhotoRequest struct {
	PhotoURL string `json:"photoUrl"`
}

// addMeasurementRequest は計測記録追加リクエストのボディ。
type addMeasurementRequest struct {
	MeasuredAt time.Time `json:"measuredAt"`
	WeightG    *float64  `json:"weightG"`
	LengthMm   *float64  `json:"lengthMm"`
	JawWidthMm *float64  `json:"jawWidthMm"`
	Note       *string   `json:"note"`
}

// draftResponse は個体の登録内容のAPIレスポンス。
type draftResponse struct {
	IndividualCode    string  `json:"individualCode"`
	SpeciesCommon     string  `json:"speciesCommon"`
	SpeciesScientific string  `json:"speciesScientific"`
	Stage             string  `json:"stage"`
	Sex               string  `json:"sex"`
	BirthDate         *string `json:"birthDate"`
	IntroducedDate    string  `json:"introducedDate"`
	LineName          *string `json:"lineName"`
	ParentCodeM       *string `json:"parentCodeM"`
	ParentCodeF       *string `json:"parentCodeF"`
	Notes             *string `json:"notes"`
}

// individualResponse は個体情報のAPIレスポンス。
type individualResponse struct {
	ID string `json:"id"`
	draftResponse
	Photos       []photoResponse       `json:"photos"`
	Measurements []measurementResponse `json:"measurements"`
	LatestWeight *float64              `json:"latestWeightG"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// photoResponse は写真情報のAPIレスポンス。
type photoResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ThumbURL  string    `json:"thumbUrl"`
	IsPrimary bool      `json:"isPrimary"`
	CreatedAt time.Time `json:"createdAt"`
}

// measurementResponse は計測記録のAPIレスポンス。
type measurementResponse struct {
	ID         string    `json:"id"`
	MeasuredAt time.Time `json:"measuredAt"`
	WeightG    *float64  `json:"weightG"`
	LengthMm   *float64  `json:"lengthMm"`
	JawWidthMm *float64  `json:"jawWidthMm"`
	Note       *string   `json:"note"`
}

// narrativeResponse はAIレポートのAPIレスポンス。
type narrativeResponse struct {
	IndividualID string `json:"individualId"`
	Text         string `json:"text"`
}

// ListIndividuals は個体一覧を取得する。
// GET /api/individuals?q=&sort=&order=
func (h *IndividualHandler) ListIndividuals(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	q := r.URL.Query()
	query := record.ListQuery{
		Search: q.Get("q"),
		Sort:   record.SortKey(q.Get("sort")),
	}
	switch strings.ToLower(q.Get("order")) {
	case "", "asc":
	case "desc":
		query.Desc = true
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(
			model.FieldError{Field: "order", Message: "並び順はascまたはdescを指定してください"}))
		return
	}

	inds, err := h.service.List(r.Context(), userID, query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]individualResponse, len(inds))
	for i, ind := range inds {
		results[i] = toIndividualResponse(ind)
	}
	writeJSON(w, http.StatusOK, results)
}

// CreateIndividual は個体を登録する。
// POST /api/individuals
func (h *IndividualHandler) CreateIndividual(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req individualRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ind, err := h.service.AddIndividual(r.Context(), userID, req.toDraft())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIndividualResponse(ind))
}

// GetIndividual は個体詳細を取得する。
// GET /api/individuals/{id}
func (h *IndividualHandler) GetIndividual(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	ind, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIndividualResponse(ind))
}

// UpdateIndividual は個体の登録内容を更新する。
// PUT /api/individuals/{id}
func (h *IndividualHandler) UpdateIndividual(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req individualRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ind, err := h.service.UpdateIndividual(r.Context(), userID, &model.Individual{
		ID:              chi.URLParam(r, "id"),
		IndividualDraft: req.toDraft(),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIndividualResponse(ind))
}

// GetDraft は既存個体をもとにした再登録用の下書きを返す。
// GET /api/individuals/{id}/draft
func (h *IndividualHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	draft, err := h.service.DraftFrom(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDraftResponse(draft))
}

// AddPhoto は個体に写真を追加する。
// POST /api/individuals/{id}/photos
func (h *IndividualHandler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req addPhotoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	photo, err := h.service.AddPhoto(r.Context(), userID, chi.URLParam(r, "id"), req.PhotoURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPhotoResponse(*photo))
}

// AddMeasurement は個体に計測記録を追加する。
// POST /api/individuals/{id}/measurements
func (h *IndividualHandler) AddMeasurement(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req addMeasurementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.service.AddMeasurement(r.Context(), userID, chi.URLParam(r, "id"), record.MeasurementInput{
		MeasuredAt: req.MeasuredAt,
		WeightG:    req.WeightG,
		LengthMm:   req.LengthMm,
		JawWidthMm: req.JawWidthMm,
		Note:       req.Note,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMeasurementResponse(*m))
}

// GetNarrative は個体のAIレポートを生成して返す。
// GET /api/individuals/{id}/narrative
func (h *IndividualHandler) GetNarrative(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	ind, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	text, err := h.narrative.Generate(r.Context(), ind)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, narrativeResponse{IndividualID: ind.ID, Text: text})
}

// --- ヘルパー関数 ---

func toDraftResponse(d model.IndividualDraft) draftResponse {
	return draftResponse{
		IndividualCode:    d.IndividualCode,
		SpeciesCommon:     d.SpeciesCommon,
		SpeciesScientific: d.SpeciesScientific,
		Stage:             string(d.Stage),
		Sex:               string(d.Sex),
		BirthDate:         d.BirthDate,
		IntroducedDate:    d.IntroducedDate,
		LineName:          d.LineName,
		ParentCodeM:       d.ParentCodeM,
		ParentCodeF:       d.ParentCodeF,
		Notes:             d.Notes,
	}
}

// toIndividualResponse はmodel.IndividualからAPIレスポンスに変換する。
// 計測記録は計測日時の新しい順に並べる。
func toIndividualResponse(ind *model.Individual) individualResponse {
	resp := individualResponse{
		ID:            ind.ID,
		draftResponse: toDraftResponse(ind.IndividualDraft),
		Photos:        make([]photoResponse, len(ind.Photos)),
		CreatedAt:     ind.CreatedAt,
		UpdatedAt:     ind.UpdatedAt,
	}
	for i, p := range ind.Photos {
		resp.Photos[i] = toPhotoResponse(p)
	}
	sorted := ind.MeasurementsByDateDesc()
	resp.Measurements = make([]measurementResponse, len(sorted))
	for i, m := range sorted {
		resp.Measurements[i] = toMeasurementResponse(m)
	}
	if w, ok := ind.LatestWeightG(); ok {
		resp.LatestWeight = &w
	}
	return resp
}

func toPhotoResponse(p model.Photo) photoResponse {
	return photoResponse{
		ID:        p.ID,
		URL:       p.URL,
		ThumbURL:  p.ThumbURL,
		IsPrimary: p.IsPrimary,
		CreatedAt: p.CreatedAt,
	}
}

func toMeasurementResponse(m model.Measurement) measurementResponse {
	return measurementResponse{
		ID:         m.ID,
		MeasuredAt: m.MeasuredAt,
		WeightG:    m.WeightG,
		LengthMm:   m.LengthMm,
		JawWidthMm: m.JawWidthMm,
		Note:       m.Note,
	}
}
