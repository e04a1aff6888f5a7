package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/hitoshi/beetlebase/internal/model"
)

// templateExamples はテンプレートに含める記入例。
var templateExamples = map[string][]string{
	model.JobTypeIndividuals: {
		"DHO-2024-001", "国産オオクワガタ", "Dorcus hopei binodulosus", "adult", "male",
		"2023-07-15", "2024-01-10", "YG-Bloodline", "YG-2022-A", "YG-2022-B", "羽化後、非常に元気。",
	},
	model.JobTypeMeasurements: {
		"DHO-2024-001", "2024-05-15", "31.8", "85.2", "6.8", "",
	},
}

// Template はジョブタイプのCSVテンプレート（ヘッダー行と記入例1行）を返す。
func Template(jobType string) ([]byte, error) {
	schema, ok := Schemas[jobType]
	if !ok {
		return nil, fmt.Errorf("unsupported import type: %s", jobType)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(schema.Columns); err != nil {
		return nil, err
	}
	if err := w.Write(templateExamples[jobType]); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
