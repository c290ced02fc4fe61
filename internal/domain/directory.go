package domain

import "strconv"

// Format 是目录名所属的命名体系。
type Format string

const (
	// FormatCatalog 形如 "[tag] 12345"。
	FormatCatalog Format = "catalog"
	// FormatReadable 形如 "[tag] 标题 ／ 副标题 (1998) [catalog-12345]"。
	FormatReadable Format = "readable"
)

// DirectoryEntry 描述一次扫描得到的子目录（只做 stat，不读内容）。
//
// 不变量：Path 必须是 clean + absolute，且 filepath.Base(Path) == Name。
type DirectoryEntry struct {
	Name string
	Path string
}

// ParsedDirectory 是单个目录名的解析结果。
//
// 这是一个封闭的和类型：只有 CatalogName 与 ReadableName 两种实现（未导出方法保证包外无法扩展）。
// 需要按变体分派时使用 MatchParsed，而不是类型断言。
type ParsedDirectory interface {
	Format() Format
	// Ident 返回两种变体共有的部分：可选 tag 与目录 id。
	Ident() (tag string, id int)

	accept(v parsedVisitor)
}

type parsedVisitor struct {
	catalog  func(CatalogName)
	readable func(ReadableName)
}

// MatchParsed 对 p 做穷尽分派：两个分支都必须提供。
func MatchParsed[T any](p ParsedDirectory, onCatalog func(CatalogName) T, onReadable func(ReadableName) T) T {
	var out T
	p.accept(parsedVisitor{
		catalog:  func(c CatalogName) { out = onCatalog(c) },
		readable: func(r ReadableName) { out = onReadable(r) },
	})
	return out
}

// CatalogName 是 "[tag] <id>" 形式的目录名。Tag 为空表示没有 tag。
type CatalogName struct {
	Tag string
	ID  int
}

func (CatalogName) Format() Format { return FormatCatalog }
func (c CatalogName) Ident() (string, int) { return c.Tag, c.ID }
func (c CatalogName) accept(v parsedVisitor) { v.catalog(c) }

// String 重建目录名："[tag] id" 或纯 "id"。
func (c CatalogName) String() string {
	id := strconv.Itoa(c.ID)
	if c.Tag == "" {
		return id
	}
	return "[" + c.Tag + "] " + id
}

// ReadableName 是可读形式的目录名。
//
// 可选字段用零值表示缺失：Tag==""、TitleAlt==""、Year==0。
type ReadableName struct {
	Tag       string
	TitleMain string
	TitleAlt  string
	Year      int
	ID        int
}

func (ReadableName) Format() Format { return FormatReadable }
func (r ReadableName) Ident() (string, int) { return r.Tag, r.ID }
func (r ReadableName) accept(v parsedVisitor) { v.readable(r) }

// ValidatedEntry 把扫描条目与其解析结果绑定。
type ValidatedEntry struct {
	Entry  DirectoryEntry
	Parsed ParsedDirectory
}

// ValidationResult 是一批同构目录的校验结果。
//
// 不变量：Entries 中每个元素的 Parsed.Format() 都等于 Format；顺序与扫描顺序一致。
type ValidationResult struct {
	Format  Format
	Entries []ValidatedEntry
}
