package revert

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/anidir/internal/app/run"
	"github.com/John-Robertt/anidir/internal/config"
	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/history"
	"github.com/John-Robertt/anidir/internal/provider"
)

type stubFetcher map[int]domain.AnimeInfo

func (stubFetcher) Name() string { return "stub" }

func (s stubFetcher) Fetch(ctx context.Context, id int) (domain.AnimeInfo, error) {
	info, ok := s[id]
	if !ok {
		return domain.AnimeInfo{}, &provider.Error{Provider: "stub", Kind: provider.KindNotFound, ID: id, Err: errors.New("not found")}
	}
	return info, nil
}

var clock = time.Date(2026, 1, 15, 10, 30, 45, 0, time.UTC)

func now() time.Time { return clock }

func dirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

// renamed 执行一次正向重命名，返回 journal 路径。
func renamed(t *testing.T, root string, names ...string) string {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.Mkdir(filepath.Join(root, n), 0o755))
	}
	out, err := run.Rename(context.Background(), run.Options{
		Config: config.EffectiveConfig{TargetDir: root, MaxLength: 255, CacheExpiryDays: 30},
		Fetcher: stubFetcher{
			1:  {ID: 1, TitleMain: "Cowboy Bebop", Year: 1998},
			69: {ID: 69, TitleMain: "One Piece", Year: 1999},
			5:  {ID: 5, TitleMain: "A Very Long Title That Will Be Cut", Year: 2001},
		},
		ToolVersion: "test",
		Now:         now,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Journal)
	return out.Journal
}

func TestRevert_RestoresOriginalNames(t *testing.T) {
	root := t.TempDir()
	original := []string{"1", "5", "[AS0] 69"}
	journal := renamed(t, root, original...)
	require.NotEqual(t, original, dirs(t, root))

	res, err := Revert(context.Background(), Options{Journal: journal, TargetDir: root, ToolVersion: "test", Now: func() time.Time { return clock.Add(time.Minute) }})
	require.NoError(t, err)
	assert.Equal(t, original, dirs(t, root))
	assert.Len(t, res.Operations, 3)
	assert.Equal(t, journal, res.OriginJournal)

	// revert 自身也写 journal，且方向相反，可以再次 revert。
	h, err := history.Read(res.NewJournal)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationRevert, h.Operation)
	assert.Equal(t, domain.DirectionReadableToCatalog, h.Direction)

	_, err = Revert(context.Background(), Options{Journal: res.NewJournal, Now: func() time.Time { return clock.Add(2 * time.Minute) }})
	require.NoError(t, err)
	assert.Equal(t, []string{"A Very Long Title That Will Be Cut (2001) [catalog-5]", "Cowboy Bebop (1998) [catalog-1]", "[AS0] One Piece (1999) [catalog-69]"}, dirs(t, root))
}

func TestRevert_DirectoryMismatchRefuses(t *testing.T) {
	root := t.TempDir()
	journal := renamed(t, root, "1")
	before := dirs(t, root)

	_, err := Revert(context.Background(), Options{Journal: journal, TargetDir: t.TempDir(), Now: now})
	var me *domain.DirectoryMismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, domain.ErrCodeHistory, domain.Code(err))
	assert.Equal(t, before, dirs(t, root), "目录不一致时不应有任何修改")
}

func TestRevert_ValidationAggregatesAllProblems(t *testing.T) {
	root := t.TempDir()
	journal := renamed(t, root, "1", "69")

	// 一个当前名被外部删除，另一个原名被外部占用。
	require.NoError(t, os.Remove(filepath.Join(root, "Cowboy Bebop (1998) [catalog-1]")))
	require.NoError(t, os.Mkdir(filepath.Join(root, "69"), 0o755))
	before := dirs(t, root)

	_, err := Revert(context.Background(), Options{Journal: journal, Now: now})
	var ve *domain.RevertValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 2)
	assert.Equal(t, before, dirs(t, root), "预校验失败时不应有任何修改")
}

func TestRevert_DryRunNoEffect(t *testing.T) {
	root := t.TempDir()
	journal := renamed(t, root, "1")
	before := dirs(t, root)

	res, err := Revert(context.Background(), Options{Journal: journal, DryRun: true, Now: now})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Empty(t, res.NewJournal)
	assert.Equal(t, before, dirs(t, root))
}

func TestRevert_BadJournal(t *testing.T) {
	_, err := Revert(context.Background(), Options{Journal: filepath.Join(t.TempDir(), "missing.json")})
	assert.Equal(t, domain.ErrCodeHistory, domain.Code(err))
}

func TestInverse_SwapsAndReverses(t *testing.T) {
	h := domain.HistoryFile{
		TargetDirectory: "/lib",
		Changes: []domain.HistoryEntry{
			{Source: "b", Destination: "c", ID: 2},
			{Source: "a", Destination: "b", ID: 1},
		},
	}
	ops := Inverse(h)
	require.Len(t, ops, 2)
	assert.Equal(t, "b", ops[0].SourceName)
	assert.Equal(t, "a", ops[0].DestinationName)
	assert.Equal(t, filepath.Join("/lib", "c"), ops[1].SourcePath)
	assert.Equal(t, filepath.Join("/lib", "b"), ops[1].DestinationPath)
}

func TestCheck_ChainUsesVacatedName(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "c"), 0o755))

	ops := Inverse(domain.HistoryFile{TargetDirectory: root, Changes: []domain.HistoryEntry{
		{Source: "b", Destination: "c"},
		{Source: "a", Destination: "b"},
	}})
	assert.NoError(t, Check(ops))
}

func TestRevert_RefusesJournalEscapingTarget(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "lib")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(base, "outside"), 0o755))

	b, err := json.Marshal(domain.HistoryFile{
		Version:         domain.HistoryVersion,
		ExecutedAt:      clock,
		Operation:       domain.OperationRename,
		Direction:       domain.DirectionCatalogToReadable,
		TargetDirectory: root,
		ToolVersion:     "test",
		Changes:         []domain.HistoryEntry{{Source: "../escaped", Destination: "../outside", ID: 1}},
	})
	require.NoError(t, err)
	journal := filepath.Join(root, "anidir-history-20260115-103045.json")
	require.NoError(t, os.WriteFile(journal, b, 0o644))

	_, err = Revert(context.Background(), Options{Journal: journal, Now: now})
	assert.Equal(t, domain.ErrCodeHistory, domain.Code(err))
	assert.Equal(t, []string{"lib", "outside"}, dirs(t, base), "target_directory 之外的目录不应被改名")
}
