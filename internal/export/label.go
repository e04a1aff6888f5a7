package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/record"
)

// ラベルの配置（A4に2列×6段）。
const (
	labelCols   = 2
	labelRows   = 6
	labelW      = 90.0
	labelH      = 42.0
	labelMargin = 12.0
	qrSize      = 34.0
	qrPixels    = 256
)

// labels はQRラベルPDFを生成する。individualIDが空の場合は所有者の全個体を登録順に出力する。
func (e *Exporter) labels(ctx context.Context, ownerID, individualID string) ([]byte, string, error) {
	var targets []*model.Individual
	filename := "qr-labels.pdf"
	if individualID != "" {
		ind, err := e.records.Get(ctx, ownerID, individualID)
		if err != nil {
			return nil, "", err
		}
		targets = []*model.Individual{ind}
		filename = fmt.Sprintf("qr-label-%s.pdf", safeFilename(ind.IndividualCode))
	} else {
		all, err := e.records.List(ctx, ownerID, record.ListQuery{})
		if err != nil {
			return nil, "", err
		}
		targets = all
	}
	if len(targets) == 0 {
		return nil, "", model.NewInvalidPreconditionError("ラベルを出力する個体がありません")
	}

	pdf, font, text := e.newDocument()
	pdf.SetTitle("QR labels", true)

	perPage := labelCols * labelRows
	for i, ind := range targets {
		if i%perPage == 0 {
			pdf.AddPage()
		}
		slot := i % perPage
		x := labelMargin + float64(slot%labelCols)*(labelW+6)
		y := labelMargin + float64(slot/labelCols)*(labelH+4)
		if err := e.drawLabel(pdf, font, text, x, y, ind); err != nil {
			return nil, "", err
		}
	}

	data, err := render(pdf)
	if err != nil {
		return nil, "", err
	}
	return data, filename, nil
}

func (e *Exporter) drawLabel(pdf *fpdf.Fpdf, font string, text func(string) string, x, y float64, ind *model.Individual) error {
	png, err := qrcode.Encode(e.PublicProfileURL(ind.IndividualCode), qrcode.Medium, qrPixels)
	if err != nil {
		return fmt.Errorf("QRコードの生成に失敗しました: %w", err)
	}

	name := "qr-" + ind.ID
	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	if !pdf.Ok() {
		return fmt.Errorf("QRコード画像の登録に失敗しました: %w", pdf.Error())
	}

	pdf.SetDrawColor(180, 180, 180)
	pdf.Rect(x, y, labelW, labelH, "D")
	pdf.ImageOptions(name, x+3, y+4, qrSize, qrSize, false, opts, 0, "")

	tx := x + qrSize + 6
	tw := labelW - qrSize - 9
	pdf.SetXY(tx, y+5)
	pdf.SetFont(font, "", 12)
	pdf.CellFormat(tw, 7, text(ind.IndividualCode), "", 2, "L", false, 0, "")
	pdf.SetFont(font, "", 9)
	for _, l := range []string{
		ind.SpeciesCommon,
		ind.SpeciesScientific,
		fmt.Sprintf("%s / %s", ind.Sex, ind.Stage),
		model.StringValue(ind.LineName),
	} {
		if l == "" {
			continue
		}
		pdf.CellFormat(tw, 5, text(l), "", 2, "L", false, 0, "")
	}
	return nil
}
