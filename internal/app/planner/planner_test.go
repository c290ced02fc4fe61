package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/infra/cache"
	"github.com/John-Robertt/anidir/internal/provider"
)

type fakeFetcher struct {
	infos map[int]domain.AnimeInfo
	calls []int
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(ctx context.Context, id int) (domain.AnimeInfo, error) {
	f.calls = append(f.calls, id)
	info, ok := f.infos[id]
	if !ok {
		return domain.AnimeInfo{}, &provider.Error{Provider: "fake", Kind: provider.KindNotFound, ID: id, Err: errors.New("not found")}
	}
	return info, nil
}

func catalogEntries(root string, names ...domain.CatalogName) []domain.ValidatedEntry {
	out := make([]domain.ValidatedEntry, 0, len(names))
	for _, n := range names {
		out = append(out, domain.ValidatedEntry{
			Entry:  domain.DirectoryEntry{Name: n.String(), Path: filepath.Join(root, n.String())},
			Parsed: n,
		})
	}
	return out
}

func TestPrepareCatalog_KeepsTag(t *testing.T) {
	root := t.TempDir()
	entries := []domain.ValidatedEntry{
		{
			Entry:  domain.DirectoryEntry{Name: "[AS0] Cowboy Bebop (1998) [catalog-1]", Path: filepath.Join(root, "[AS0] Cowboy Bebop (1998) [catalog-1]")},
			Parsed: domain.ReadableName{Tag: "AS0", TitleMain: "Cowboy Bebop", Year: 1998, ID: 1},
		},
		{
			Entry:  domain.DirectoryEntry{Name: "One Piece (1999) [catalog-69]", Path: filepath.Join(root, "One Piece (1999) [catalog-69]")},
			Parsed: domain.ReadableName{TitleMain: "One Piece", Year: 1999, ID: 69},
		},
	}
	ops := PrepareCatalog(entries)
	if len(ops) != 2 {
		t.Fatalf("期望 2 个操作，实际 %d", len(ops))
	}
	if ops[0].DestinationName != "[AS0] 1" || ops[1].DestinationName != "69" {
		t.Fatalf("目标名不正确：%q, %q", ops[0].DestinationName, ops[1].DestinationName)
	}
	if ops[0].DestinationPath != filepath.Join(root, "[AS0] 1") {
		t.Fatalf("目标路径不正确：%q", ops[0].DestinationPath)
	}
}

func TestPrepareReadable_CacheThenProvider(t *testing.T) {
	root := t.TempDir()
	store := cache.Load(cache.PathFor(root), 30)
	store.Insert(domain.AnimeInfo{ID: 1, TitleMain: "Cowboy Bebop", Year: 1998})

	f := &fakeFetcher{infos: map[int]domain.AnimeInfo{69: {ID: 69, TitleMain: "One Piece", Year: 1999}}}
	res := &Resolver{Cache: store, Fetcher: f}

	var sources []Source
	ops, err := PrepareReadable(context.Background(),
		catalogEntries(root, domain.CatalogName{Tag: "AS0", ID: 1}, domain.CatalogName{ID: 69}),
		res, 255, func(s Step) { sources = append(sources, s.Source) })
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ops[0].DestinationName != "[AS0] Cowboy Bebop (1998) [catalog-1]" {
		t.Fatalf("目标名不正确：%q", ops[0].DestinationName)
	}
	if ops[1].DestinationName != "One Piece (1999) [catalog-69]" {
		t.Fatalf("目标名不正确：%q", ops[1].DestinationName)
	}
	if len(f.calls) != 1 || f.calls[0] != 69 {
		t.Fatalf("只有缓存未命中的 id 才应请求 provider：%v", f.calls)
	}
	if len(sources) != 2 || sources[0] != SourceCache || sources[1] != SourceProvider {
		t.Fatalf("来源不正确：%v", sources)
	}
	if _, ok := store.Get(69); !ok {
		t.Fatalf("provider 结果应写入缓存")
	}
}

func TestPrepareReadable_DryRunNoNetwork(t *testing.T) {
	root := t.TempDir()
	f := &fakeFetcher{}
	res := &Resolver{Cache: cache.Load(cache.PathFor(root), 30, cache.WithReadOnly(true)), Fetcher: f, DryRun: true}

	ops, err := PrepareReadable(context.Background(), catalogEntries(root, domain.CatalogName{ID: 12345}), res, 255, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("dry-run 不应请求 provider：%v", f.calls)
	}
	if ops[0].DestinationName != "[Title for catalog-12345] [catalog-12345]" {
		t.Fatalf("占位名不正确：%q", ops[0].DestinationName)
	}
}

func TestPrepareReadable_ProviderErrorAborts(t *testing.T) {
	root := t.TempDir()
	f := &fakeFetcher{infos: map[int]domain.AnimeInfo{1: {ID: 1, TitleMain: "x"}}}
	res := &Resolver{Fetcher: f}

	_, err := PrepareReadable(context.Background(),
		catalogEntries(root, domain.CatalogName{ID: 404}, domain.CatalogName{ID: 1}), res, 255, nil)
	if domain.Code(err) != domain.ErrCodeProvider {
		t.Fatalf("期望 provider_error，实际 %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("出错后不应继续请求：%v", f.calls)
	}
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.ID != 404 {
		t.Fatalf("错误应携带 id=404：%v", err)
	}
}

func TestCheckCollisions(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"1", "2", "Taken [catalog-2]"} {
		if err := os.Mkdir(filepath.Join(root, n), 0o755); err != nil {
			t.Fatalf("创建目录失败：%v", err)
		}
	}
	op := func(src, dst string) domain.RenameOperation {
		return domain.RenameOperation{
			SourcePath: filepath.Join(root, src), SourceName: src,
			DestinationPath: filepath.Join(root, dst), DestinationName: dst,
		}
	}

	if err := CheckCollisions([]domain.RenameOperation{op("1", "A [catalog-1]"), op("x", "x")}); err != nil {
		t.Fatalf("不期望冲突：%v", err)
	}

	err := CheckCollisions([]domain.RenameOperation{op("2", "Taken [catalog-2]")})
	var de *domain.DestinationExistsError
	if !errors.As(err, &de) || de.Other != "" {
		t.Fatalf("期望目标已存在错误，实际 %v", err)
	}

	err = CheckCollisions([]domain.RenameOperation{op("1", "Same [catalog-1]"), op("2", "Same [catalog-1]")})
	if !errors.As(err, &de) || de.Other != filepath.Join(root, "1") {
		t.Fatalf("期望批内冲突错误，实际 %v", err)
	}
	if domain.Code(err) != domain.ErrCodeRename {
		t.Fatalf("期望 rename_error，实际 %q", domain.Code(err))
	}
}

func TestPrepareReadable_RejectsReadableEntry(t *testing.T) {
	root := t.TempDir()
	entries := []domain.ValidatedEntry{{
		Entry:  domain.DirectoryEntry{Name: "A [catalog-1]", Path: filepath.Join(root, "A [catalog-1]")},
		Parsed: domain.ReadableName{TitleMain: "A", ID: 1},
	}}
	_, err := PrepareReadable(context.Background(), entries, &Resolver{DryRun: true}, 255, nil)
	if domain.Code(err) != domain.ErrCodeMixedFormats {
		t.Fatalf("期望 %q，实际 %v", domain.ErrCodeMixedFormats, err)
	}
}

func TestPrepareReadable_MaxLengthTooSmallFailsBatch(t *testing.T) {
	root := t.TempDir()
	res := &Resolver{Fetcher: &fakeFetcher{infos: map[int]domain.AnimeInfo{12345: {ID: 12345, TitleMain: "Cowboy Bebop"}}}}

	ops, err := PrepareReadable(context.Background(), catalogEntries(root, domain.CatalogName{ID: 12345}), res, 16, nil)
	var tooLong *domain.NameTooLongError
	if !errors.As(err, &tooLong) {
		t.Fatalf("期望 NameTooLongError，实际 %v", err)
	}
	if domain.Code(err) != domain.ErrCodeInvalidArgs {
		t.Fatalf("期望 invalid_args，实际 %q", domain.Code(err))
	}
	if ops != nil {
		t.Fatalf("失败时不应返回操作：%v", ops)
	}
}
