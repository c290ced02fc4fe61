package naming

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/anidir/internal/domain"
)

// Separator 是可读形式中主标题与副标题之间的分隔符（全角斜杠 U+FF0F）。
// Sanitize 会把标题里原有的 U+FF0F 替换掉，保证该字符在目录名中只充当分隔符。
const Separator = "／"

var (
	// 可读形式：可选 [tag]、标题段、可选 (yyyy)、必选 [catalog-<id>]。
	readableRE = regexp.MustCompile(`^(?:\[([^\]]+)\]\s*)?(.*?)\s*(?:\((\d{4})\))?\s*\[catalog-(\d+)\]$`)
	// catalog 形式：可选 [tag] + 纯数字 id，别无其他。
	catalogRE = regexp.MustCompile(`^(?:\[([^\]]+)\]\s*)?(\d+)$`)

	separatorRE = regexp.MustCompile(`\s*` + Separator + `\s*`)
)

// Classify 把单个目录名识别为 CatalogName 或 ReadableName。
// 可读形式更具体，先尝试；都不匹配时返回 *domain.UnrecognizedFormatError。
func Classify(name string) (domain.ParsedDirectory, error) {
	if r, ok := classifyReadable(name); ok {
		return r, nil
	}
	if c, ok := classifyCatalog(name); ok {
		return c, nil
	}
	return nil, &domain.UnrecognizedFormatError{Names: []string{name}}
}

func classifyCatalog(name string) (domain.CatalogName, bool) {
	m := catalogRE.FindStringSubmatch(name)
	if m == nil {
		return domain.CatalogName{}, false
	}
	id, ok := parseID(m[2])
	if !ok {
		return domain.CatalogName{}, false
	}
	return domain.CatalogName{Tag: m[1], ID: id}, true
}

func classifyReadable(name string) (domain.ReadableName, bool) {
	m := readableRE.FindStringSubmatch(name)
	if m == nil {
		return domain.ReadableName{}, false
	}
	id, ok := parseID(m[4])
	if !ok {
		return domain.ReadableName{}, false
	}

	main, alt := splitTitles(strings.TrimSpace(m[2]))
	if main == "" {
		return domain.ReadableName{}, false
	}

	year := 0
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}
	return domain.ReadableName{
		Tag:       m[1],
		TitleMain: main,
		TitleAlt:  alt,
		Year:      year,
		ID:        id,
	}, true
}

// splitTitles 按分隔符拆出主/副标题；两侧相同则折叠为单标题。
func splitTitles(s string) (main, alt string) {
	parts := separatorRE.Split(s, 2)
	main = strings.TrimSpace(parts[0])
	if len(parts) < 2 {
		return main, ""
	}
	alt = strings.TrimSpace(parts[1])
	if alt == main {
		alt = ""
	}
	return main, alt
}

// parseID 只接受正的 32 位整数 id（前导零允许，但数值必须 > 0）。
func parseID(s string) (int, bool) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}
