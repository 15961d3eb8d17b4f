// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NotesSanitizer は時間計測エントリのメモなど利用者が自由入力するテキストから
// HTMLマークアップを除去し、保存されたメモがUIで解釈されないようにする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNotesLength はメモ1回分の入力として受け付ける最大文字数（rune単位）。
const MaxNotesLength = 1000

// NotesSanitizer は自由入力テキストのサニタイズ機能のインターフェースを定義する。
type NotesSanitizer interface {
	// Sanitize は全てのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白は除去する。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// notesSanitizer はNotesSanitizerの実装。
// bluemondayのポリシーは並行利用に対して安全。
type notesSanitizer struct {
	policy *bluemonday.Policy
}

// NewNotesSanitizer はNotesSanitizerの新しいインスタンスを生成する。
// タグを一切許可しないStrictPolicyを使用する。
func NewNotesSanitizer() *notesSanitizer {
	return &notesSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去し、bluemondayがエスケープした文字参照を元に戻す。
// メモはプレーンテキストとして保存し、出力時のエスケープは表示側が行う。
func (s *notesSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
