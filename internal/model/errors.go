// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string       // エラーコード
	Message  string       // エラーメッセージ
	Category string       // カテゴリ: auth, validation, quota, record, job, external, system
	Action   string       // ユーザー向け対処方法
	Details  []FieldError // 項目別の検証エラー（VALIDATION_ERRORのみ）
}

// FieldError は項目単位の検証エラーを表す。
type FieldError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeQuotaExceeded          = "QUOTA_EXCEEDED"
	ErrCodeIndividualNotFound     = "INDIVIDUAL_NOT_FOUND"
	ErrCodeJobNotFound            = "JOB_NOT_FOUND"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeArtifactNotFound       = "ARTIFACT_NOT_FOUND"
	ErrCodeInvalidPrecondition    = "INVALID_PRECONDITION"
	ErrCodeExternalServiceFailure = "EXTERNAL_SERVICE_FAILURE"
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
)

// QuotaResource は上限判定の対象リソース。
type QuotaResource string

const (
	QuotaIndividuals QuotaResource = "individuals"
	QuotaPhotos      QuotaResource = "photos"
)

// NewQuotaExceededError はプラン上限到達エラーを生成する。
// UIではアップグレード案内として表示する。
func NewQuotaExceededError(resource QuotaResource, limit int) *APIError {
	var msg string
	switch resource {
	case QuotaPhotos:
		msg = fmt.Sprintf("この個体の写真は上限（%d枚）に達しています。", limit)
	default:
		msg = fmt.Sprintf("登録個体数が上限（%d件）に達しています。", limit)
	}
	return &APIError{
		Code:     ErrCodeQuotaExceeded,
		Message:  msg,
		Category: "quota",
		Action:   "Proプランにアップグレードすると上限が緩和されます。",
	}
}

// NewIndividualNotFoundError は個体未検出エラーを生成する。
func NewIndividualNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeIndividualNotFound,
		Message:  fmt.Sprintf("指定された個体が見つかりません: %s", id),
		Category: "record",
		Action:   "個体一覧を再読み込みしてください。",
	}
}

// NewJobNotFoundError はジョブ未検出エラーを生成する。
func NewJobNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFound,
		Message:  fmt.Sprintf("指定されたジョブが見つかりません: %s", id),
		Category: "job",
		Action:   "ジョブIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewArtifactNotFoundError はエクスポート生成物が存在しない、または保持期間切れの場合のエラーを生成する。
func NewArtifactNotFoundError(jobID string) *APIError {
	return &APIError{
		Code:     ErrCodeArtifactNotFound,
		Message:  fmt.Sprintf("エクスポートファイルが見つかりません: %s", jobID),
		Category: "job",
		Action:   "保持期間が過ぎている可能性があります。エクスポートを再実行してください。",
	}
}

// NewInvalidPreconditionError は状態が操作の前提を満たさない場合のエラーを生成する。
func NewInvalidPreconditionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPrecondition,
		Message:  reason,
		Category: "job",
		Action:   "最新の状態を確認してから再度お試しください。",
	}
}

// NewExternalServiceFailureError は外部サービス（文章生成など）の失敗エラーを生成する。
// 同じ操作を再実行することで回復できる。
func NewExternalServiceFailureError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeExternalServiceFailure,
		Message:  fmt.Sprintf("%sの処理中にエラーが発生しました。", service),
		Category: "external",
		Action:   "しばらくしてからもう一度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(details ...FieldError) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "項目ごとのエラー内容を確認して修正してください。",
		Details:  details,
	}
}

// NewForbiddenError は権限不足・利用停止エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  reason,
		Category: "auth",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// HasCode はerrがAPIErrorで、指定のコードを持つかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
