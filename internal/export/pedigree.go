package export

import (
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/hitoshi/beetlebase/internal/model"
)

// Ancestor は血統書の1枠を表す。Individualは所有者の記録に該当する個体がない場合nil。
type Ancestor struct {
	Code       string
	Individual *model.Individual
}

// Label は枠に表示する名称を返す。コードも記録もない場合は "unknown"。
func (a Ancestor) Label() string {
	if a.Code == "" {
		return "unknown"
	}
	return a.Code
}

// Pedigree は個体と2世代分の祖先を表す。
// Parentsは [父, 母]、Grandparentsは [父方祖父, 父方祖母, 母方祖父, 母方祖母] の順。
type Pedigree struct {
	Subject      *model.Individual
	Parents      [2]Ancestor
	Grandparents [4]Ancestor
}

// ResolvePedigree は所有者の記録から個体コードで祖先を解決する。
// 血統フィールドは参照整合性を持たないため、該当する個体がない祖先はコードのみを保持する。
func ResolvePedigree(ctx context.Context, records Records, ownerID string, subject *model.Individual) (*Pedigree, error) {
	p := &Pedigree{Subject: subject}

	parentCodes := [2]string{model.StringValue(subject.ParentCodeM), model.StringValue(subject.ParentCodeF)}
	for i, code := range parentCodes {
		a, err := resolve(ctx, records, ownerID, code)
		if err != nil {
			return nil, err
		}
		p.Parents[i] = a
		if a.Individual == nil {
			continue
		}
		for j, gcode := range [2]string{model.StringValue(a.Individual.ParentCodeM), model.StringValue(a.Individual.ParentCodeF)} {
			g, err := resolve(ctx, records, ownerID, gcode)
			if err != nil {
				return nil, err
			}
			p.Grandparents[i*2+j] = g
		}
	}
	return p, nil
}

func resolve(ctx context.Context, records Records, ownerID, code string) (Ancestor, error) {
	if code == "" {
		return Ancestor{}, nil
	}
	ind, err := records.FindByCode(ctx, ownerID, code)
	if err != nil {
		return Ancestor{}, fmt.Errorf("祖先 %s の取得に失敗しました: %w", code, err)
	}
	return Ancestor{Code: code, Individual: ind}, nil
}

// pedigree は血統書PDFを生成する。
func (e *Exporter) pedigree(ctx context.Context, ownerID, individualID string) ([]byte, string, error) {
	subject, err := e.records.Get(ctx, ownerID, individualID)
	if err != nil {
		return nil, "", err
	}
	p, err := ResolvePedigree(ctx, e.records, ownerID, subject)
	if err != nil {
		return nil, "", err
	}

	pdf, font, text := e.newDocument()
	pdf.SetTitle("Pedigree "+subject.IndividualCode, true)
	pdf.AddPage()

	pdf.SetFont(font, "", 18)
	pdf.CellFormat(0, 12, text("Pedigree Certificate"), "", 1, "C", false, 0, "")
	pdf.SetFont(font, "", 11)
	pdf.CellFormat(0, 7, text(subject.IndividualCode+"  "+subject.SpeciesScientific), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	subjectLines := []string{
		subject.IndividualCode,
		subject.SpeciesCommon,
		subject.SpeciesScientific,
		fmt.Sprintf("%s / %s", subject.Sex, subject.Stage),
		"Line: " + model.StringValue(subject.LineName),
		"Born: " + model.StringValue(subject.BirthDate),
	}
	if m := subject.LatestMeasurement(); m != nil {
		subjectLines = append(subjectLines, "Latest: "+formatMeasurement(m))
	}

	const (
		top    = 45.0
		colW   = 58.0
		gap    = 6.0
		boxH   = 48.0
		gboxH  = 22.0
		left   = 10.0
		midCol = left + colW + gap
		endCol = midCol + colW + gap
	)
	drawBox(pdf, font, text, left, top+boxH/2+2, colW, boxH, "Individual", subjectLines)
	for i, a := range p.Parents {
		title := "Sire"
		if i == 1 {
			title = "Dam"
		}
		y := top + float64(i)*(boxH+4)
		drawBox(pdf, font, text, midCol, y, colW, boxH, title, ancestorLines(a))
	}
	for i, g := range p.Grandparents {
		y := top + float64(i)*(gboxH+4)
		drawBox(pdf, font, text, endCol, y, colW, gboxH, grandparentTitle(i), ancestorLines(g)[:1])
	}

	data, err := render(pdf)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("pedigree-%s.pdf", safeFilename(subject.IndividualCode)), nil
}

func grandparentTitle(i int) string {
	return [4]string{"Sire's sire", "Sire's dam", "Dam's sire", "Dam's dam"}[i]
}

func ancestorLines(a Ancestor) []string {
	lines := []string{a.Label()}
	if a.Individual == nil {
		return lines
	}
	ind := a.Individual
	lines = append(lines,
		ind.SpeciesCommon,
		ind.SpeciesScientific,
		"Line: "+model.StringValue(ind.LineName),
	)
	if m := ind.LatestMeasurement(); m != nil {
		lines = append(lines, "Latest: "+formatMeasurement(m))
	}
	return lines
}

func drawBox(pdf *fpdf.Fpdf, font string, text func(string) string, x, y, w, h float64, title string, lines []string) {
	pdf.Rect(x, y, w, h, "D")
	pdf.SetXY(x+2, y+2)
	pdf.SetFont(font, "", 8)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(w-4, 4, text(title), "", 2, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(font, "", 9)
	for _, l := range lines {
		if pdf.GetY()+5 > y+h {
			break
		}
		pdf.CellFormat(w-4, 5, text(l), "", 2, "L", false, 0, "")
	}
}

func formatMeasurement(m *model.Measurement) string {
	s := m.MeasuredAt.Format(model.DateLayout)
	if m.WeightG != nil {
		s += fmt.Sprintf(" %.1fg", *m.WeightG)
	}
	if m.LengthMm != nil {
		s += fmt.Sprintf(" %.1fmm", *m.LengthMm)
	}
	if m.JawWidthMm != nil {
		s += fmt.Sprintf(" jaw %.1fmm", *m.JawWidthMm)
	}
	return s
}
