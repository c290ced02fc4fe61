package app

import (
	"errors"

	"github.com/samber/lo"

	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/naming"
)

// mixedExamples 是格式混杂时每种格式最多展示的示例数。
const mixedExamples = 3

// Validate 对整批目录做识别并要求同构。
//
// - 空输入：domain.ErrNoDirectories
// - 任一名称无法识别：*domain.UnrecognizedFormatError（包含全部失败名称）
// - catalog 与 readable 同时存在：*domain.MixedFormatsError（两侧示例都非空）
// - 否则返回保持扫描顺序的 ValidationResult
//
// 整批拒绝，不做过滤。
func Validate(entries []domain.DirectoryEntry) (domain.ValidationResult, error) {
	if len(entries) == 0 {
		return domain.ValidationResult{}, domain.ErrNoDirectories
	}

	validated := make([]domain.ValidatedEntry, 0, len(entries))
	unrecognized := make([]string, 0, 8)
	for _, e := range entries {
		p, err := naming.Classify(e.Name)
		if err != nil {
			var ue *domain.UnrecognizedFormatError
			if errors.As(err, &ue) {
				unrecognized = append(unrecognized, ue.Names...)
				continue
			}
			return domain.ValidationResult{}, err
		}
		validated = append(validated, domain.ValidatedEntry{Entry: e, Parsed: p})
	}
	if len(unrecognized) > 0 {
		return domain.ValidationResult{}, &domain.UnrecognizedFormatError{Names: unrecognized}
	}

	catalog := lo.Filter(validated, func(v domain.ValidatedEntry, _ int) bool {
		return v.Parsed.Format() == domain.FormatCatalog
	})
	readable := lo.Filter(validated, func(v domain.ValidatedEntry, _ int) bool {
		return v.Parsed.Format() == domain.FormatReadable
	})
	if len(catalog) > 0 && len(readable) > 0 {
		return domain.ValidationResult{}, &domain.MixedFormatsError{
			Catalog:       exampleNames(catalog),
			Readable:      exampleNames(readable),
			CatalogCount:  len(catalog),
			ReadableCount: len(readable),
		}
	}

	format := domain.FormatCatalog
	if len(readable) > 0 {
		format = domain.FormatReadable
	}
	return domain.ValidationResult{Format: format, Entries: validated}, nil
}

func exampleNames(vs []domain.ValidatedEntry) []string {
	return lo.Map(lo.Subset(vs, 0, mixedExamples), func(v domain.ValidatedEntry, _ int) string {
		return v.Entry.Name
	})
}
