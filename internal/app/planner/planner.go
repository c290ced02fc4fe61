package planner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"

	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/infra/cache"
	"github.com/John-Robertt/anidir/internal/infra/fsx"
	"github.com/John-Robertt/anidir/internal/naming"
	"github.com/John-Robertt/anidir/internal/provider"
)

// Source 表示一条元数据的来源（用于进度输出与统计）。
type Source string

const (
	SourceCache       Source = "cache"
	SourceProvider    Source = "provider"
	SourcePlaceholder Source = "placeholder"
)

// Placeholder 返回 dry-run 缓存未命中时使用的占位元数据（不发网络请求）。
func Placeholder(id int) domain.AnimeInfo {
	return domain.AnimeInfo{ID: id, TitleMain: "[Title for catalog-" + strconv.Itoa(id) + "]"}
}

// Resolver 按"缓存 -> provider"顺序解析元数据。
//
// 约束：
// - DryRun=true 时绝不调用 Fetcher：缓存未命中直接用 Placeholder
// - provider 成功结果写入缓存（是否落盘由调用方的 Save 决定）
type Resolver struct {
	Cache   *cache.Store
	Fetcher provider.Fetcher
	DryRun  bool
}

func (r *Resolver) Resolve(ctx context.Context, id int) (domain.AnimeInfo, Source, error) {
	if r.Cache != nil {
		if info, ok := r.Cache.Get(id); ok {
			return info, SourceCache, nil
		}
	}
	if r.DryRun {
		return Placeholder(id), SourcePlaceholder, nil
	}
	if r.Fetcher == nil {
		return domain.AnimeInfo{}, "", &provider.Error{Provider: "none", Kind: provider.KindNotConfigured, ID: id, Err: errors.New("未配置 provider")}
	}

	info, err := r.Fetcher.Fetch(ctx, id)
	if err != nil {
		return domain.AnimeInfo{}, "", err
	}
	info.ID = id
	if r.Cache != nil {
		r.Cache.Insert(info)
	}
	return info, SourceProvider, nil
}

// Step 是 PrepareReadable 每处理完一个条目时的回调参数。
type Step struct {
	Index  int
	Total  int
	Op     domain.RenameOperation
	Source Source
}

// PrepareReadable 为 catalog 形态的目录构造 catalog → readable 的操作列表（不做任何写入/移动）。
//
// 任一 provider 错误都会中止整批（返回 provider_error，并带上出错的 id）。
func PrepareReadable(ctx context.Context, entries []domain.ValidatedEntry, res *Resolver, maxLength int, onStep func(Step)) ([]domain.RenameOperation, error) {
	ops := make([]domain.RenameOperation, 0, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tag, id, ok := catalogIdent(e.Parsed)
		if !ok {
			return nil, &domain.Error{Code: domain.ErrCodeMixedFormats, Path: e.Entry.Path, Err: errors.New("不是 catalog 形态的目录名")}
		}

		info, src, err := res.Resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("获取元数据失败（%q）：%w", e.Entry.Name, err)
		}

		built, err := naming.BuildReadable(tag, info, maxLength)
		if err != nil {
			return nil, fmt.Errorf("无法为 %q 构建目录名：%w", e.Entry.Name, err)
		}
		op := newOp(e.Entry, built.Name, id)
		op.Truncated = built.Truncated
		ops = append(ops, op)

		if onStep != nil {
			onStep(Step{Index: i, Total: len(entries), Op: op, Source: src})
		}
	}
	return ops, nil
}

func catalogIdent(p domain.ParsedDirectory) (string, int, bool) {
	type ident struct {
		tag string
		id  int
		ok  bool
	}
	r := domain.MatchParsed(p,
		func(c domain.CatalogName) ident { return ident{tag: c.Tag, id: c.ID, ok: true} },
		func(domain.ReadableName) ident { return ident{} },
	)
	return r.tag, r.id, r.ok
}

// PrepareCatalog 为 readable 形态的目录构造 readable → catalog 的操作列表。
// 只依赖目录名本身，不读取元数据与缓存。
func PrepareCatalog(entries []domain.ValidatedEntry) []domain.RenameOperation {
	ops := make([]domain.RenameOperation, 0, len(entries))
	for _, e := range entries {
		tag, id := e.Parsed.Ident()
		ops = append(ops, newOp(e.Entry, naming.BuildCatalog(tag, id), id))
	}
	return ops
}

func newOp(src domain.DirectoryEntry, dstName string, id int) domain.RenameOperation {
	return domain.RenameOperation{
		SourcePath:      src.Path,
		SourceName:      src.Name,
		DestinationPath: filepath.Join(filepath.Dir(src.Path), dstName),
		DestinationName: dstName,
		ID:              id,
	}
}

// CheckCollisions 在任何 rename 之前检查目标冲突：
// - 同批次内两个操作指向同一目标
// - 目标已存在且不是源本身（大小写不敏感文件系统上的仅大小写改名不算冲突）
//
// 源与目标相同的 no-op 操作不参与检查。
func CheckCollisions(ops []domain.RenameOperation) error {
	seen := make(map[string]string, len(ops))
	for _, op := range ops {
		if op.NoOp() {
			continue
		}
		if prev, ok := seen[op.DestinationPath]; ok {
			return &domain.DestinationExistsError{Source: op.SourcePath, Destination: op.DestinationPath, Other: prev}
		}
		seen[op.DestinationPath] = op.SourcePath

		taken, err := fsx.Occupied(op.SourcePath, op.DestinationPath)
		if err != nil {
			code := domain.ErrCodeRename
			if errors.Is(err, fs.ErrPermission) {
				code = domain.ErrCodePermission
			}
			return &domain.Error{Code: code, Path: op.DestinationPath, Err: err}
		}
		if taken {
			return &domain.DestinationExistsError{Source: op.SourcePath, Destination: op.DestinationPath}
		}
	}
	return nil
}
