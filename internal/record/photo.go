package record

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/security"
)

// PhotoURLPrefix はブロブストアに保存した写真を配信するパス。
const PhotoURLPrefix = "/api/photos/"

// PhotoResolver は写真の入力（URLまたはdata URI）を保存済みの写真URLに変換する。
type PhotoResolver interface {
	Resolve(ctx context.Context, individualID, photoID, raw string) (string, error)
	// Release はResolveが保存した写真を削除する。外部URLの場合は何もしない。
	Release(ctx context.Context, resolved string) error
}

// blobPhotoResolver はdata URIをブロブストアに保存し、外部URLはSSRF検証のみ行う。
type blobPhotoResolver struct {
	store   blob.Store
	guard   security.URLGuard
	maxSize int
}

// NewBlobPhotoResolver はPhotoResolverを生成する。
func NewBlobPhotoResolver(store blob.Store, guard security.URLGuard, maxSize int) PhotoResolver {
	return &blobPhotoResolver{store: store, guard: guard, maxSize: maxSize}
}

var allowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

func (r *blobPhotoResolver) Resolve(ctx context.Context, individualID, photoID, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		if err := r.guard.ValidateURL(raw); err != nil {
			return "", model.NewValidationError(model.FieldError{Field: "photoUrl", Message: "写真URLが正しくありません"})
		}
		return raw, nil
	}

	contentType, data, err := decodeDataURI(raw)
	if err != nil {
		return "", model.NewValidationError(model.FieldError{Field: "photoUrl", Message: "画像データを読み取れません"})
	}
	ext, ok := allowedPhotoTypes[contentType]
	if !ok {
		return "", model.NewValidationError(model.FieldError{Field: "photoUrl", Message: "対応していない画像形式です"})
	}
	if r.maxSize > 0 && len(data) > r.maxSize {
		return "", model.NewValidationError(model.FieldError{Field: "photoUrl", Message: "画像サイズが上限を超えています"})
	}

	key := blob.PhotoKey(individualID, photoID, ext)
	if err := r.store.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("写真の保存に失敗しました: %w", err)
	}
	return PhotoURLPrefix + strings.TrimPrefix(key, blob.PrefixPhotos), nil
}

func (r *blobPhotoResolver) Release(ctx context.Context, resolved string) error {
	rest, ok := strings.CutPrefix(resolved, PhotoURLPrefix)
	if !ok {
		return nil
	}
	return r.store.Delete(ctx, blob.PrefixPhotos+rest)
}

// decodeDataURI は "data:<mediatype>;base64,<payload>" 形式を解析する。
func decodeDataURI(raw string) (string, []byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	params := strings.Split(header, ";")
	mediaType, _, err := mime.ParseMediaType(params[0])
	if err != nil {
		return "", nil, err
	}

	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}
	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, err
		}
		return mediaType, []byte(decoded), nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return mediaType, data, nil
}

// ThumbnailURL は写真URLからサムネイルURLを導出する。
// 600x400のレンディションを指すURLは300x200に置き換え、それ以外は元のURLを使う。
func ThumbnailURL(photoURL string) string {
	return strings.Replace(photoURL, "/600/400", "/300/200", 1)
}
