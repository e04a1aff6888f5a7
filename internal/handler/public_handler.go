package handler

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/model"
)

// PublicProfileFinder は公開プロフィール用に個体を検索する。record.Serviceが実装する。
type PublicProfileFinder interface {
	FindPublic(ctx context.Context, code string) (*model.Individual, error)
}

// HealthChecker はヘルスチェックで疎通を確認する依存先。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// PublicHandler は認証不要のHTTPハンドラー。
type PublicHandler struct {
	profiles PublicProfileFinder
	photos   blob.Store
	health   HealthChecker
	baseURL  string
}

// NewPublicHandler はPublicHandlerを生成する。healthがnilの場合、ヘルスチェックは常に成功する。
func NewPublicHandler(profiles PublicProfileFinder, photos blob.Store, health HealthChecker, baseURL string) *PublicHandler {
	return &PublicHandler{
		profiles: profiles,
		photos:   photos,
		health:   health,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// profileTemplate は公開プロフィールのHTML。OGPメタタグのみを持つ最小構成。
var profileTemplate = template.Must(template.New("profile").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta property="og:type" content="article">
<meta property="og:title" content="{{.Title}}">
<meta property="og:description" content="{{.Description}}">
<meta property="og:url" content="{{.URL}}">
{{- if .Image}}
<meta property="og:image" content="{{.Image}}">
<meta name="twitter:card" content="summary_large_image">
{{- end}}
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Description}}</p>
{{- if .Image}}
<img src="{{.Image}}" alt="{{.Title}}">
{{- end}}
</body>
</html>
`))

// profilePage は公開プロフィールの表示内容。
type profilePage struct {
	Title       string
	Description string
	URL         string
	Image       string
}

// healthResponse はヘルスチェックのAPIレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

// Health はサービスの稼働状態を返す。
// GET /health
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.PingContext(r.Context()); err != nil {
			slog.Error("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// PublicProfile は個体の公開プロフィールをOGPメタタグ付きのHTMLで返す。
// GET /u/{code}
func (h *PublicHandler) PublicProfile(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ind, err := h.profiles.FindPublic(r.Context(), code)
	if err != nil {
		if model.HasCode(err, model.ErrCodeIndividualNotFound) {
			http.Error(w, "個体が見つかりません", http.StatusNotFound)
			return
		}
		slog.Error("公開プロフィールの取得に失敗しました",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		http.Error(w, "内部エラーが発生しました", http.StatusInternalServerError)
		return
	}

	page := profilePage{
		Title:       ind.SpeciesCommon + " " + ind.IndividualCode,
		Description: model.StringValue(ind.Notes),
		URL:         h.baseURL + "/u/" + ind.IndividualCode,
	}
	if strings.TrimSpace(page.Description) == "" {
		page.Description = ind.SpeciesScientific
	}
	if p := ind.PrimaryPhoto(); p != nil {
		page.Image = h.absoluteURL(p.URL)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := profileTemplate.Execute(w, page); err != nil {
		slog.Error("公開プロフィールの描画に失敗しました", slog.String("error", err.Error()))
	}
}

// GetPhoto はブロブストアに保存した写真を配信する。
// GET /api/photos/*
func (h *PublicHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	key := blob.PrefixPhotos + chi.URLParam(r, "*")
	if err := blob.ValidateKey(key); err != nil {
		writePhotoNotFound(w)
		return
	}

	obj, err := h.photos.Get(r.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		writePhotoNotFound(w)
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}

func (h *PublicHandler) absoluteURL(u string) string {
	if strings.HasPrefix(u, "/") {
		return h.baseURL + u
	}
	return u
}

func writePhotoNotFound(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
		Code:     "PHOTO_NOT_FOUND",
		Message:  "指定された写真が見つかりません。",
		Category: "record",
		Action:   "個体の写真一覧を再読み込みしてください。",
	})
}
