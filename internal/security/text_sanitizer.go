// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はコンソール管理者が入力するテナント表示名などの
// テキストをサニタイズし、保存値経由のXSSを防止する。
// bluemondayのStrictPolicyを使用し、HTMLタグを一切許可しない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキスト入力のサニタイズ機能のインターフェースを定義する。
// テナントの表示名・ブランディングテキストの保存前に使用される。
type TextSanitizerService interface {
	// SanitizeText は入力からすべてのHTMLタグを除去したテキストを返す。
	// エンティティはデコードされ、前後の空白は切り詰められる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(input string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// StrictPolicyはスレッドセーフであり、使い回して問題ない。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

var _ TextSanitizerService = (*textSanitizer)(nil)

// SanitizeText は入力からすべてのHTMLタグを除去したテキストを返す。
// StrictPolicyはタグ除去後の残存テキストをエスケープして返すため、
// 保存用のプレーンテキストとしてはエンティティを元に戻す。
func (s *textSanitizer) SanitizeText(input string) string {
	stripped := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
