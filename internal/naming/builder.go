package naming

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/anidir/internal/domain"
)

// Ellipsis 是截断标记（单个 U+2026，占 3 字节）。
const Ellipsis = "…"

// minimalHeadRunes 是最小形态保留的标题字符数上限。
const minimalHeadRunes = 3

// Result 是一次可读名构建的结果。
type Result struct {
	Name      string
	Truncated bool
}

// Suffix 返回必选的 id 后缀 "[catalog-<id>]"。
func Suffix(id int) string {
	return "[catalog-" + strconv.Itoa(id) + "]"
}

// BuildCatalog 构建 catalog 形式的目录名："[tag] id" 或 "id"。id 很短，不做截断。
func BuildCatalog(tag string, id int) string {
	return domain.CatalogName{Tag: tag, ID: id}.String()
}

// BuildReadable 由 (tag, info) 构建可读目录名，并保证字节长度不超过 maxLength。
//
// 组装顺序：[tag] 标题[ ／ 副标题] (年份) [catalog-<id>]，单空格连接。
// 标题会先经过 Sanitize；tag 来自现有目录名，原样保留。
// 相同输入总是得到逐字节相同的输出。
//
// 输出总能被 Classify 识别为可读形态；maxLength 连 "X… [catalog-<id>]" 都放不下时
// 返回 *domain.NameTooLongError。
func BuildReadable(tag string, info domain.AnimeInfo, maxLength int) (Result, error) {
	main := Sanitize(info.TitleMain)
	alt := Sanitize(info.TitleAlt)
	if main == "" {
		main = strconv.Itoa(info.ID)
	}

	prefix := ""
	if tag != "" {
		prefix = "[" + tag + "] "
	}
	year := yearPart(info.Year, main, alt)
	suffix := Suffix(info.ID)

	parts := make([]string, 0, 3)
	parts = append(parts, titlePart(main, alt))
	if year != "" {
		parts = append(parts, year)
	}
	parts = append(parts, suffix)
	name := prefix + strings.Join(parts, " ")

	if len(name) <= maxLength {
		return Result{Name: name}, nil
	}
	short, ok := truncate(prefix, main, year, suffix, maxLength)
	if !ok {
		need := len(firstRunes(main, 1)) + len(Ellipsis) + 1 + len(suffix)
		return Result{}, &domain.NameTooLongError{ID: info.ID, MaxLength: maxLength, Need: need}
	}
	return Result{Name: short, Truncated: true}, nil
}

// titlePart 只有当副标题非空、与主标题不同、且不是主标题子串时才拼接副标题。
func titlePart(main, alt string) string {
	if alt == "" || alt == main || strings.Contains(main, alt) {
		return main
	}
	return main + " " + Separator + " " + alt
}

// yearPart 返回 "(yyyy)"；年份缺失或已原样出现在任一标题中时返回空串。
func yearPart(year int, main, alt string) string {
	if year <= 0 {
		return ""
	}
	y := strconv.Itoa(year)
	if strings.Contains(main, y) || strings.Contains(alt, y) {
		return ""
	}
	return "(" + y + ")"
}

// truncate 丢弃副标题，只截断主标题；固定部分（tag、年份、后缀）放不下时退化为最小形态。
func truncate(prefix, main, year, suffix string, maxLength int) (string, bool) {
	yearSeg := ""
	if year != "" {
		yearSeg = " " + year
	}
	fixed := len(prefix) + len(yearSeg) + 1 + len(suffix)

	if budget := maxLength - fixed; budget > 0 {
		title := main
		if len(title) > budget {
			title = strings.TrimRight(cutBytes(main, budget-len(Ellipsis)), " ")
			if title != "" {
				title += Ellipsis
			}
		}
		if title != "" {
			return prefix + title + yearSeg + " " + suffix, true
		}
	}
	return minimal(prefix, main, suffix, maxLength)
}

// minimal 生成 "前≤3个字符… [catalog-<id>]"，优先保留 tag；连 1 个字符都放不下时返回 false。
func minimal(prefix, main, suffix string, maxLength int) (string, bool) {
	prefixes := []string{prefix}
	if prefix != "" {
		prefixes = append(prefixes, "")
	}
	for _, p := range prefixes {
		for n := minimalHeadRunes; n > 0; n-- {
			head := strings.TrimRight(firstRunes(main, n), " ")
			if head == "" {
				continue
			}
			cand := p + head + Ellipsis + " " + suffix
			if len(cand) <= maxLength {
				return cand, true
			}
		}
	}
	return "", false
}

// cutBytes 在不超过 n 字节的前提下按 rune 边界截断。
func cutBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
