package security

import "testing"

// TestSanitizeText はマークアップが除去されプレーンテキストが残ることを検証する。
func TestSanitizeText(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列", "", ""},
		{"プレーンテキスト", "羽化後2週間で活動開始", "羽化後2週間で活動開始"},
		{"前後の空白", "  メモ  ", "メモ"},
		{"scriptタグ", `メモ<script>alert('xss')</script>`, "メモ"},
		{"装飾タグ", "<b>大型</b>個体", "大型個体"},
		{"イベント属性", `<img src=x onerror=alert(1)>ラベル`, "ラベル"},
		{"記号はエスケープされない", "体重 > 30g & 良好", "体重 > 30g & 良好"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeText_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestSanitizeText_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	input := `<p>系統 <em>OAKS</em></p>`
	first := s.SanitizeText(input)
	if second := s.SanitizeText(first); first != second {
		t.Errorf("not idempotent: %q then %q", first, second)
	}
}

// TestTextSanitizerInterface はTextSanitizerインターフェースを実装していることをテストする。
func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
