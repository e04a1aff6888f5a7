// Package blob はCSVペイロード・写真・エクスポート生成物を保持するオブジェクトストアを提供する。
// メモリ、ローカルファイルシステム、MinIOの3つのドライバを持つ。
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound は指定キーのオブジェクトが存在しないことを表す。
var ErrNotFound = errors.New("blob: object not found")

// Object は取得したオブジェクトを表す。
type Object struct {
	Key         string
	Data        []byte
	ContentType string
	ModTime     time.Time
}

// ObjectInfo は一覧取得時のオブジェクト情報を表す。
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store はオブジェクトストアのインターフェース。
type Store interface {
	// Put はキーにデータを保存する。既存のオブジェクトは上書きする。
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get はオブジェクトを取得する。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, key string) (*Object, error)
	// Delete はオブジェクトを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
	// List はprefix配下のオブジェクトをキー順で返す。
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Driver はドライバ名を返す。
	Driver() string
}

// キーの名前空間。
const (
	PrefixImports = "imports/"
	PrefixPhotos  = "photos/"
	PrefixExports = "exports/"
)

// ImportKey はインポートジョブのCSVペイロードのキーを返す。
func ImportKey(jobID string) string {
	return PrefixImports + jobID + ".csv"
}

// PhotoKey は個体写真のキーを返す。
func PhotoKey(individualID, photoID, ext string) string {
	return fmt.Sprintf("%s%s/%s%s", PrefixPhotos, individualID, photoID, ext)
}

// ExportKey はエクスポート生成物のキーを返す。
func ExportKey(jobID, filename string) string {
	return fmt.Sprintf("%s%s/%s", PrefixExports, jobID, filename)
}

// ValidateKey は相対パスとして安全なキーかを検証する。
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("blob: empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("blob: invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("blob: invalid key %q", key)
		}
	}
	return nil
}
