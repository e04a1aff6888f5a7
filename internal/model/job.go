// Package model はドメインモデルを定義する。
package model

import "time"

// JobKind は非同期ジョブの種別を表す。
type JobKind string

const (
	// JobKindImport はCSVインポートジョブ。
	JobKindImport JobKind = "import"
	// JobKindExport はPDFエクスポートジョブ。
	JobKindExport JobKind = "export"
)

// Valid は種別が定義済みの値かを返す。
func (k JobKind) Valid() bool {
	return k == JobKindImport || k == JobKindExport
}

// インポート・エクスポートのジョブタイプ。
const (
	JobTypeIndividuals  = "individuals"
	JobTypeMeasurements = "measurements"
	JobTypePedigreePDF  = "pedigree_pdf"
	JobTypeQRLabelPDF   = "qr_label_pdf"
)

// JobStatus はジョブの状態を表す。
// pending → running → {succeeded|completed, failed} の順にのみ遷移する。
// 終端状態からはfailedのリトライによってのみrunningへ戻る。
type JobStatus string

const (
	// JobStatusPending はワーカーの取得待ち（エクスポートのみ）。
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning は処理中。
	JobStatusRunning JobStatus = "running"
	// JobStatusSucceeded はインポートの成功。
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusCompleted はエクスポートの成功。
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed は失敗。リトライ可能。
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal は終端状態かを返す。
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusCompleted || s == JobStatusFailed
}

// ImportMode はCSVインポート時の個体コード重複の扱いを表す。
type ImportMode string

const (
	// ImportModeSkip は既存個体を残し、行をスキップする。
	ImportModeSkip ImportMode = "skip"
	// ImportModeOverwrite は既存個体の内容を上書きする。
	ImportModeOverwrite ImportMode = "overwrite"
	// ImportModeNewAssignment は新しいコードを割り当てて登録する。
	ImportModeNewAssignment ImportMode = "new_assignment"
)

// Valid はモードが定義済みの値かを返す。
func (m ImportMode) Valid() bool {
	switch m {
	case ImportModeSkip, ImportModeOverwrite, ImportModeNewAssignment:
		return true
	}
	return false
}

// Job は非同期ジョブ（インポート・エクスポート）を表す。削除されない。
type Job struct {
	ID          string
	Kind        JobKind
	Type        string
	Status      JobStatus
	OwnerID     string
	SubmittedAt time.Time
	UpdatedAt   time.Time
	Result      string
	Attempts    int

	// インポート用
	ImportMode ImportMode
	PayloadKey string
	RowErrors  []RowError

	// エクスポート用
	TargetID string
	Artifact *Artifact
}

// Artifact はエクスポートジョブの生成物を表す。
type Artifact struct {
	Key      string
	Filename string
	URL      string
}

// RowError はCSVの行単位のエラーを表す。Lineはヘッダー行を1とした物理行番号。
type RowError struct {
	Line    int
	Field   string
	Message string
}

// Clone はスライス・ポインタを共有しないコピーを返す。
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.RowErrors = append([]RowError(nil), j.RowErrors...)
	if j.Artifact != nil {
		a := *j.Artifact
		c.Artifact = &a
	}
	return &c
}
