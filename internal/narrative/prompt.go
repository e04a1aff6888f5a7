// Package narrative は個体の紹介レポートを外部の文章生成APIで作成する。
package narrative

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/beetlebase/internal/model"
)

// BuildPrompt は個体の公開可能な属性からレポート作成の指示文を組み立てる。
// 最新の計測値は計測日時が最も新しい記録を使う。
func BuildPrompt(ind *model.Individual) string {
	var b strings.Builder
	b.WriteString("あなたは世界クラスのクワガタ・カブトムシのブリーダー専門家です。\n")
	b.WriteString("以下のデータを持つ個体について、その特徴、将来性、および飼育上のアドバイスを組み合わせた、魅力的で専門的なレポートを作成してください。\n\n")

	b.WriteString("# 個体データ\n")
	fmt.Fprintf(&b, "- 和名: %s\n", ind.SpeciesCommon)
	fmt.Fprintf(&b, "- 学名: %s\n", ind.SpeciesScientific)
	fmt.Fprintf(&b, "- ステージ: %s\n", ind.Stage)
	fmt.Fprintf(&b, "- 性別: %s\n", ind.Sex)
	fmt.Fprintf(&b, "- 血統名: %s\n", orDefault(ind.LineName, "なし"))
	fmt.Fprintf(&b, "- 父個体コード: %s\n", orDefault(ind.ParentCodeM, "不明"))
	fmt.Fprintf(&b, "- 母個体コード: %s\n", orDefault(ind.ParentCodeF, "不明"))
	fmt.Fprintf(&b, "- 最新の計測値: %s\n", latestMeasurementText(ind))
	fmt.Fprintf(&b, "- ブリーダーのメモ: %s\n\n", orDefault(ind.Notes, "特になし"))

	b.WriteString("# レポート作成の指示\n")
	b.WriteString("1. **序文**: この個体の種としての魅力や特徴について簡潔に述べてください。\n")
	b.WriteString("2. **個体の評価**: 提供されたデータ（特に血統、最新のサイズ）を基に、この個体のポテンシャルを評価してください。\n")
	b.WriteString("3. **飼育アドバイス**: 現在のステージと種に合わせて、具体的な次のステップや注意点をアドバイスしてください。\n")
	b.WriteString("4. **結び**: この個体を飼育する楽しみや期待が高まるような、ポジティブな言葉で締めくくってください。\n\n")
	b.WriteString("レポートは、専門用語を適度に使いつつも、情熱的で読みやすい文章で記述してください。\n")
	return b.String()
}

func latestMeasurementText(ind *model.Individual) string {
	m := ind.LatestMeasurement()
	if m == nil {
		return "なし"
	}
	return fmt.Sprintf("体重 %sg, 体長 %smm, 大顎幅 %smm",
		formatValue(m.WeightG), formatValue(m.LengthMm), formatValue(m.JawWidthMm))
}

func formatValue(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func orDefault(s *string, def string) string {
	if v := model.StringValue(s); v != "" {
		return v
	}
	return def
}
