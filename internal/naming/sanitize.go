package naming

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// slashReplacement 用于 '/' 与标题中原有的 U+FF0F：两者都不能与 Separator 混淆。
const slashReplacement = '∕' // U+2215 DIVISION SLASH

var spaceRunRE = regexp.MustCompile(` {2,}`)

// Sanitize 把标题变成可安全用于目录名的文本（只替换、不删除信息）。
//
// - '/' 与 '／' -> '∕'
// - \ : * ? " < > | -> 对应的全角字符
// - 控制字符直接丢弃
// - 先做 NFC 规范化；连续空格折叠为一个；去掉首尾空格
func Sanitize(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '/' || r == '／':
			b.WriteRune(slashReplacement)
		case isReserved(r):
			b.WriteString(width.Widen.String(string(r)))
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	out := spaceRunRE.ReplaceAllString(b.String(), " ")
	return strings.Trim(out, " ")
}

func isReserved(r rune) bool {
	switch r {
	case '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	default:
		return false
	}
}
