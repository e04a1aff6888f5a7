// Package importer はCSVファイルからの個体・計測記録の一括登録を提供する。
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hitoshi/beetlebase/internal/model"
)

// 個体CSVの列名。
const (
	ColIndividualCode    = "individual_code"
	ColSpeciesCommon     = "species_common"
	ColSpeciesScientific = "species_scientific"
	ColStage             = "stage"
	ColSex               = "sex"
	ColBirthDate         = "birth_date"
	ColIntroducedDate    = "introduced_date"
	ColLineName          = "line_name"
	ColParentCodeM       = "parent_code_m"
	ColParentCodeF       = "parent_code_f"
	ColNotes             = "notes"
)

// 計測CSVの列名。
const (
	ColMeasuredAt = "measured_at"
	ColWeightG    = "weight_g"
	ColLengthMm   = "length_mm"
	ColJawWidthMm = "jaw_width_mm"
	ColNote       = "note"
)

// Schema はジョブタイプごとのCSVの列定義。
type Schema struct {
	Columns  []string
	Required []string
}

// Schemas はジョブタイプごとのCSVの列定義。
var Schemas = map[string]Schema{
	model.JobTypeIndividuals: {
		Columns: []string{
			ColIndividualCode, ColSpeciesCommon, ColSpeciesScientific, ColStage, ColSex,
			ColBirthDate, ColIntroducedDate, ColLineName, ColParentCodeM, ColParentCodeF, ColNotes,
		},
		Required: []string{ColIndividualCode, ColSpeciesCommon, ColIntroducedDate},
	},
	model.JobTypeMeasurements: {
		Columns:  []string{ColIndividualCode, ColMeasuredAt, ColWeightG, ColLengthMm, ColJawWidthMm, ColNote},
		Required: []string{ColIndividualCode, ColMeasuredAt},
	},
}

// ErrInvalidFormat はファイル全体が解析できないことを表す。
var ErrInvalidFormat = errors.New("Invalid CSV format")

// row はCSVのデータ行。Lineはヘッダー行を1とした物理行番号。
type row struct {
	Line   int
	values map[string]string
}

// get は列の値を前後の空白を除いて返す。列が存在しない場合は空文字列。
func (r row) get(col string) string {
	return strings.TrimSpace(r.values[col])
}

// parse はCSV全体を読み込み、列名をキーにしたデータ行を返す。
// 列名は大文字小文字を区別せず、BOMは除去する。未知の列は無視する。
func parse(r io.Reader, schema Schema) ([]row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range schema.Required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrInvalidFormat, col)
		}
	}

	var rows []row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		if blankRecord(record) {
			continue
		}

		line, _ := reader.FieldPos(0)
		values := make(map[string]string, len(schema.Columns))
		for _, col := range schema.Columns {
			if i, ok := index[col]; ok && i < len(record) {
				values[col] = record[i]
			}
		}
		rows = append(rows, row{Line: line, values: values})
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrInvalidFormat)
	}
	return rows, nil
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
