// Package export は血統書PDFとQRラベルPDFの生成を提供する。
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/job"
	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/record"
)

// Records はエクスポートが参照する個体記録の操作。
type Records interface {
	Get(ctx context.Context, ownerID, individualID string) (*model.Individual, error)
	FindByCode(ctx context.Context, ownerID, code string) (*model.Individual, error)
	List(ctx context.Context, ownerID string, q record.ListQuery) ([]*model.Individual, error)
}

// fontFamily はUTF-8フォント登録時のフォントファミリー名。
const fontFamily = "beetlebase"

// Exporter はエクスポートジョブを処理し、PDFをブロブストアに保存する。
type Exporter struct {
	records  Records
	blobs    blob.Store
	baseURL  string
	fontPath string
}

// New はExporterを生成する。
// fontPathにTrueTypeフォントを指定すると和名などの非ASCII文字を出力できる。
// 未指定の場合は標準フォントで出力し、表現できない文字は置き換える。
func New(records Records, blobs blob.Store, baseURL, fontPath string) *Exporter {
	return &Exporter{
		records:  records,
		blobs:    blobs,
		baseURL:  strings.TrimRight(baseURL, "/"),
		fontPath: fontPath,
	}
}

// PublicProfileURL は個体の公開プロフィールURLを返す。
func (e *Exporter) PublicProfileURL(code string) string {
	return fmt.Sprintf("%s/u/%s", e.baseURL, strings.ToLower(code))
}

// Process はエクスポートジョブを処理する。
func (e *Exporter) Process(ctx context.Context, j *model.Job) (job.Outcome, error) {
	var (
		data     []byte
		filename string
		err      error
	)
	switch j.Type {
	case model.JobTypePedigreePDF:
		data, filename, err = e.pedigree(ctx, j.OwnerID, j.TargetID)
	case model.JobTypeQRLabelPDF:
		data, filename, err = e.labels(ctx, j.OwnerID, j.TargetID)
	default:
		return job.Outcome{Result: fmt.Sprintf("unsupported export type: %s", j.Type)}, nil
	}
	if err != nil {
		return job.Outcome{}, err
	}

	key := blob.ExportKey(j.ID, filename)
	if err := e.blobs.Put(ctx, key, data, "application/pdf"); err != nil {
		return job.Outcome{}, fmt.Errorf("エクスポートファイルの保存に失敗しました: %w", err)
	}

	slog.Info("エクスポートファイルを生成しました",
		slog.String("job_id", j.ID),
		slog.String("type", j.Type),
		slog.String("filename", filename),
		slog.Int("bytes", len(data)),
	)
	return job.Outcome{
		Success: true,
		Result:  job.ResultDownload,
		Artifact: &model.Artifact{
			Key:      key,
			Filename: filename,
			URL:      job.ArtifactURL(j.ID),
		},
	}, nil
}

// newDocument はA4縦のPDFを生成し、フォントを設定する。
// 戻り値の関数は文字列をフォントで表現できる形に変換する。
func (e *Exporter) newDocument() (*fpdf.Fpdf, string, func(string) string) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreator("BeetleBase", true)
	pdf.SetAutoPageBreak(true, 15)

	if e.fontPath != "" {
		pdf.AddUTF8Font(fontFamily, "", e.fontPath)
		if pdf.Ok() {
			return pdf, fontFamily, func(s string) string { return s }
		}
		slog.Warn("フォントの読み込みに失敗したため標準フォントを使用します",
			slog.String("font_path", e.fontPath),
			slog.String("error", pdf.Error().Error()),
		)
		pdf = fpdf.New("P", "mm", "A4", "")
		pdf.SetCreator("BeetleBase", true)
		pdf.SetAutoPageBreak(true, 15)
	}
	return pdf, "Helvetica", latin1Text(pdf)
}

// latin1Text は標準フォントで表現できない文字を "?" に置き換える変換関数を返す。
func latin1Text(pdf *fpdf.Fpdf) func(string) string {
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	return func(s string) string {
		var b strings.Builder
		for _, r := range s {
			if r > 0xff {
				b.WriteByte('?')
				continue
			}
			b.WriteRune(r)
		}
		return tr(b.String())
	}
}

func render(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDFの生成に失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// safeFilename はファイル名に使えない文字を置き換える。
func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

var _ job.Processor = (*Exporter)(nil)
