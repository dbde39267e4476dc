package security

import "testing"

// TestNewTextSanitizer はTextSanitizerの生成をテストする。
func TestNewTextSanitizer(t *testing.T) {
	s := NewTextSanitizer()
	if s == nil {
		t.Fatal("NewTextSanitizer() returned nil")
	}
}

// TestSanitize_PlainText はプレーンテキストがそのまま通過することをテストする。
func TestSanitize_PlainText(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "日本語タイトル",
			input: "朝のニュース解説",
			want:  "朝のニュース解説",
		},
		{
			name:  "英語タイトル",
			input: "Morning Tech Briefing",
			want:  "Morning Tech Briefing",
		},
		{
			name:  "空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_RemovesHTML はHTMLタグが除去されることをテストする。
func TestSanitize_RemovesHTML(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "scriptタグ",
			input: `タイトル<script>alert("xss")</script>`,
			want:  "タイトル",
		},
		{
			name:  "imgタグのonerror属性",
			input: `<img src=x onerror=alert(1)>説明文`,
			want:  "説明文",
		},
		{
			name:  "通常のタグ",
			input: "<p>段落の<strong>テキスト</strong></p>",
			want:  "段落のテキスト",
		},
		{
			name:  "iframeタグ",
			input: `<iframe src="https://evil.example.com"></iframe>本文`,
			want:  "本文",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_TrimsWhitespace は前後の空白がトリムされることをテストする。
func TestSanitize_TrimsWhitespace(t *testing.T) {
	s := NewTextSanitizer()

	got := s.Sanitize("  タイトル  \n")
	if got != "タイトル" {
		t.Errorf("Sanitize() = %q, want %q", got, "タイトル")
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことをテストする。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewTextSanitizer()

	input := `番組<script>x</script>タイトル`
	first := s.Sanitize(input)
	second := s.Sanitize(first)
	if first != second {
		t.Errorf("Sanitize is not idempotent: first=%q second=%q", first, second)
	}
}

// TestTextSanitizerInterface はTextSanitizerがインターフェースを正しく実装していることをテストする。
func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizerService = NewTextSanitizer()
}
