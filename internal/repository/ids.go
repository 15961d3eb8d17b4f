package repository

import (
	"strings"

	"github.com/google/uuid"
)

// isUUID はUUID型の列と比較できる文字列かを返す。
// 形式外の値はどの行とも一致しないため、呼び出し側は該当なしとして扱う。
func isUUID(s string) bool {
	if strings.HasPrefix(strings.ToLower(s), "urn:") {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
