package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/job"
	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/record"
)

// maxAssignmentSuffix は new_assignment モードで試行するコード接尾辞の上限。
const maxAssignmentSuffix = 1000

// Records はインポートが利用する個体記録の操作。
type Records interface {
	AddIndividual(ctx context.Context, ownerID string, draft model.IndividualDraft) (*model.Individual, error)
	UpdateIndividual(ctx context.Context, ownerID string, ind *model.Individual) (*model.Individual, error)
	AddMeasurement(ctx context.Context, ownerID, individualID string, in record.MeasurementInput) (*model.Measurement, error)
	FindByCode(ctx context.Context, ownerID, code string) (*model.Individual, error)
}

// Report はインポートの集計結果。
type Report struct {
	Total     int
	Succeeded int
	Skipped   int
	RowErrors []model.RowError
}

// Summary は "28/30 success" 形式の集計結果を返す。
func (r Report) Summary() string {
	return job.SummaryResult(r.Succeeded, r.Total)
}

// Importer はCSVを解析し、行ごとに個体記録へ反映する。
// 行単位のエラーは記録して処理を続け、ファイル全体が解析できない場合のみ中断する。
type Importer struct {
	records Records
	blobs   blob.Store
	maxSize int64
}

// New はImporterを生成する。maxSizeが0以下の場合はサイズを制限しない。
func New(records Records, blobs blob.Store, maxSize int64) *Importer {
	return &Importer{records: records, blobs: blobs, maxSize: maxSize}
}

// Process はインポートジョブのCSVペイロードをブロブストアから読み込み、取り込む。
func (im *Importer) Process(ctx context.Context, j *model.Job) (job.Outcome, error) {
	obj, err := im.blobs.Get(ctx, j.PayloadKey)
	if errors.Is(err, blob.ErrNotFound) {
		return job.Outcome{Result: "CSV payload not found"}, nil
	}
	if err != nil {
		return job.Outcome{}, fmt.Errorf("CSVペイロードの取得に失敗しました: %w", err)
	}

	report, err := im.Import(ctx, j.OwnerID, j.Type, j.ImportMode, bytes.NewReader(obj.Data))
	if errors.Is(err, ErrInvalidFormat) {
		return job.Outcome{Result: err.Error()}, nil
	}
	if err != nil {
		return job.Outcome{}, err
	}

	slog.Info("CSVインポートが完了しました",
		slog.String("job_id", j.ID),
		slog.Int("total", report.Total),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("skipped", report.Skipped),
		slog.Int("row_errors", len(report.RowErrors)),
	)
	return job.Outcome{
		Success:   report.Succeeded > 0,
		Result:    report.Summary(),
		RowErrors: report.RowErrors,
	}, nil
}

// Import はCSVを取り込む。
// ファイル全体が解析できない場合はErrInvalidFormatを返し、個体記録は変更しない。
func (im *Importer) Import(ctx context.Context, ownerID, jobType string, mode model.ImportMode, r io.Reader) (Report, error) {
	schema, ok := Schemas[jobType]
	if !ok {
		return Report{}, fmt.Errorf("%w: unsupported import type %s", ErrInvalidFormat, jobType)
	}
	if im.maxSize > 0 {
		r = io.LimitReader(r, im.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Report{}, fmt.Errorf("CSVの読み込みに失敗しました: %w", err)
	}
	if im.maxSize > 0 && int64(len(data)) > im.maxSize {
		return Report{}, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidFormat, im.maxSize)
	}

	rows, err := parse(bytes.NewReader(data), schema)
	if err != nil {
		return Report{}, err
	}

	report := Report{Total: len(rows), RowErrors: []model.RowError{}}
	for _, rw := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var rowErrs []model.RowError
		var skipped bool
		switch jobType {
		case model.JobTypeMeasurements:
			skipped, rowErrs, err = im.applyMeasurement(ctx, ownerID, rw)
		default:
			skipped, rowErrs, err = im.applyIndividual(ctx, ownerID, mode, rw)
		}
		if err != nil {
			return report, err
		}

		if len(rowErrs) > 0 {
			report.RowErrors = append(report.RowErrors, rowErrs...)
			continue
		}
		report.Succeeded++
		if skipped {
			report.Skipped++
		}
	}
	return report, nil
}

// applyIndividual は個体の1行を反映する。個体コードの重複はmodeに従って処理する。
func (im *Importer) applyIndividual(ctx context.Context, ownerID string, mode model.ImportMode, rw row) (bool, []model.RowError, error) {
	draft := model.IndividualDraft{
		IndividualCode:    rw.get(ColIndividualCode),
		SpeciesCommon:     rw.get(ColSpeciesCommon),
		SpeciesScientific: rw.get(ColSpeciesScientific),
		Stage:             model.Stage(rw.get(ColStage)),
		Sex:               model.Sex(rw.get(ColSex)),
		BirthDate:         model.StringPtr(rw.get(ColBirthDate)),
		IntroducedDate:    rw.get(ColIntroducedDate),
		LineName:          model.StringPtr(rw.get(ColLineName)),
		ParentCodeM:       model.StringPtr(rw.get(ColParentCodeM)),
		ParentCodeF:       model.StringPtr(rw.get(ColParentCodeF)),
		Notes:             model.StringPtr(rw.get(ColNotes)),
	}

	var existing *model.Individual
	if draft.IndividualCode != "" {
		var err error
		existing, err = im.records.FindByCode(ctx, ownerID, draft.IndividualCode)
		if err != nil {
			return false, nil, err
		}
	}

	var err error
	switch {
	case existing == nil:
		_, err = im.records.AddIndividual(ctx, ownerID, draft)
	case mode == model.ImportModeSkip:
		return true, nil, nil
	case mode == model.ImportModeOverwrite:
		upd := existing.Clone()
		upd.IndividualDraft = draft
		_, err = im.records.UpdateIndividual(ctx, ownerID, upd)
	case mode == model.ImportModeNewAssignment:
		code, findErr := im.nextFreeCode(ctx, ownerID, draft.IndividualCode)
		if findErr != nil {
			return false, nil, findErr
		}
		if code == "" {
			return false, []model.RowError{{Line: rw.Line, Field: ColIndividualCode, Message: "割り当て可能な個体コードがありません"}}, nil
		}
		draft.IndividualCode = code
		_, err = im.records.AddIndividual(ctx, ownerID, draft)
	default:
		return false, []model.RowError{{Line: rw.Line, Field: "mode", Message: "インポートモードが正しくありません"}}, nil
	}

	rowErrs, err := rowErrorsFrom(rw.Line, err)
	return false, rowErrs, err
}

// nextFreeCode は "{code}-2", "{code}-3", ... のうち未使用の最初のコードを返す。
func (im *Importer) nextFreeCode(ctx context.Context, ownerID, code string) (string, error) {
	for n := 2; n <= maxAssignmentSuffix; n++ {
		candidate := fmt.Sprintf("%s-%d", code, n)
		found, err := im.records.FindByCode(ctx, ownerID, candidate)
		if err != nil {
			return "", err
		}
		if found == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// applyMeasurement は計測記録の1行を反映する。
// 同じ日時・同じ値の計測記録が登録済みの行はスキップするため、中断したインポートを再実行しても重複しない。
func (im *Importer) applyMeasurement(ctx context.Context, ownerID string, rw row) (bool, []model.RowError, error) {
	var errs []model.RowError
	addErr := func(field, msg string) {
		errs = append(errs, model.RowError{Line: rw.Line, Field: field, Message: msg})
	}

	code := rw.get(ColIndividualCode)
	var target *model.Individual
	if code == "" {
		addErr(ColIndividualCode, "個体コードは必須です")
	} else {
		var err error
		target, err = im.records.FindByCode(ctx, ownerID, code)
		if err != nil {
			return false, nil, err
		}
		if target == nil {
			addErr(ColIndividualCode, fmt.Sprintf("個体が見つかりません: %s", code))
		}
	}

	measuredAt, ok := parseTimestamp(rw.get(ColMeasuredAt))
	if !ok {
		addErr(ColMeasuredAt, "Invalid date format")
	}

	in := record.MeasurementInput{MeasuredAt: measuredAt, Note: model.StringPtr(rw.get(ColNote))}
	for _, f := range []struct {
		col string
		dst **float64
	}{
		{ColWeightG, &in.WeightG},
		{ColLengthMm, &in.LengthMm},
		{ColJawWidthMm, &in.JawWidthMm},
	} {
		raw := rw.get(f.col)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			addErr(f.col, "数値を入力してください")
			continue
		}
		*f.dst = &v
	}

	if len(errs) > 0 {
		return false, errs, nil
	}
	if hasMeasurement(target, in) {
		return true, nil, nil
	}
	_, err := im.records.AddMeasurement(ctx, ownerID, target.ID, in)
	rowErrs, err := rowErrorsFrom(rw.Line, err)
	return false, rowErrs, err
}

// hasMeasurement は同じ日時・同じ値の計測記録が登録済みかを返す。
func hasMeasurement(ind *model.Individual, in record.MeasurementInput) bool {
	for _, m := range ind.Measurements {
		if m.MeasuredAt.Equal(in.MeasuredAt) &&
			sameValue(m.WeightG, in.WeightG) &&
			sameValue(m.LengthMm, in.LengthMm) &&
			sameValue(m.JawWidthMm, in.JawWidthMm) {
			return true
		}
	}
	return false
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// parseTimestamp はRFC3339またはYYYY-MM-DD形式の日時を解析する。
func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(model.DateLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// rowErrorsFrom はサービス層のエラーを行エラーに変換する。
// APIError以外のエラーはインポート全体の失敗として返す。
func rowErrorsFrom(line int, err error) ([]model.RowError, error) {
	if err == nil {
		return nil, nil
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return nil, err
	}
	if len(apiErr.Details) == 0 {
		return []model.RowError{{Line: line, Message: apiErr.Message}}, nil
	}
	errs := make([]model.RowError, 0, len(apiErr.Details))
	for _, d := range apiErr.Details {
		errs = append(errs, model.RowError{Line: line, Field: columnName(d.Field), Message: d.Message})
	}
	return errs, nil
}

// columnName は "parentCodeM" のような項目名をCSVの列名 "parent_code_m" に変換する。
func columnName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ job.Processor = (*Importer)(nil)
