package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer は台帳エントリの説明文からマークアップを除去する。
// 説明文はプレーンテキストとして扱うため、許可リストが空の
// StrictPolicyで全てのタグと属性を除去する。
// 同一入力に対して常に同一出力を返す（冪等）。
type DescriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerを生成する。
func NewDescriptionSanitizer() *DescriptionSanitizer {
	return &DescriptionSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグを除去し、前後の空白を取り除いて返す。
func (s *DescriptionSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
