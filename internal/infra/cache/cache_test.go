package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/anidir/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func TestStore_InsertSaveReload(t *testing.T) {
	dir := t.TempDir()
	clk := newClock()

	s := Load(PathFor(dir), 30, WithClock(clk.now))
	if s.Len() != 0 {
		t.Fatalf("新缓存应为空，实际 %d", s.Len())
	}
	s.Insert(domain.AnimeInfo{ID: 69, TitleMain: "One Piece", Year: 1999})
	if !s.Dirty() {
		t.Fatalf("Insert 后应为 dirty")
	}
	if err := s.Save(); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if s.Dirty() {
		t.Fatalf("Save 后不应为 dirty")
	}

	s2 := Load(PathFor(dir), 30, WithClock(clk.now))
	info, ok := s2.Get(69)
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if info.TitleMain != "One Piece" || info.Year != 1999 || info.ID != 69 {
		t.Fatalf("内容不一致：%+v", info)
	}

	// 落盘格式：顶层 version + entries，id 作为字符串 key。
	b, err := os.ReadFile(PathFor(dir))
	if err != nil {
		t.Fatalf("读取缓存文件失败：%v", err)
	}
	if !strings.Contains(string(b), `"version": "1.0"`) || !strings.Contains(string(b), `"69": {`) {
		t.Fatalf("缓存文件格式不符合预期：%s", string(b))
	}
	if strings.Contains(string(b), "title_alt") {
		t.Fatalf("缺失的 title_alt 不应输出：%s", string(b))
	}
}

func TestStore_ExpiryBoundary(t *testing.T) {
	dir := t.TempDir()
	clk := newClock()
	s := Load(PathFor(dir), 30, WithClock(clk.now))

	insertAt := func(id int, at time.Time) {
		old := clk.t
		clk.t = at
		s.Insert(domain.AnimeInfo{ID: id, TitleMain: "x"})
		clk.t = old
	}
	insertAt(1, clk.t.Add(-30*24*time.Hour))
	insertAt(2, clk.t.Add(-31*24*time.Hour))

	if _, ok := s.Get(1); !ok {
		t.Fatalf("恰好 expiry_days 天的记录不应过期")
	}
	if _, ok := s.Get(2); ok {
		t.Fatalf("超过 expiry_days 天的记录应过期")
	}
	if st := s.Stats(); st.Total != 2 || st.Expired != 1 {
		t.Fatalf("统计不正确：%+v", st)
	}
}

func TestLoad_VersionMismatchIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, PathFor(dir), []byte(`{"version":"0.1","entries":{"1":{"id":1,"title_main":"x","fetched_at":"2026-01-01T00:00:00Z"}}}`))

	s := Load(PathFor(dir), 30)
	if s.Len() != 0 {
		t.Fatalf("版本不一致应视为空缓存，实际 %d", s.Len())
	}
}

func TestLoad_CorruptIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, PathFor(dir), []byte(`{`))

	s := Load(PathFor(dir), 30)
	if s.Len() != 0 {
		t.Fatalf("损坏文件应视为空缓存，实际 %d", s.Len())
	}
	// 损坏的缓存可以被新的写入覆盖修复。
	s.Insert(domain.AnimeInfo{ID: 1, TitleMain: "x"})
	if err := s.Save(); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if s2 := Load(PathFor(dir), 30); s2.Len() != 1 {
		t.Fatalf("重写后应可读取，实际 %d", s2.Len())
	}
}

func TestStore_SaveCleanIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := Load(PathFor(dir), 30)
	if err := s.Save(); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(PathFor(dir)); !os.IsNotExist(err) {
		t.Fatalf("干净的缓存不应落盘，Stat err=%v", err)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	dir := t.TempDir()
	s := Load(PathFor(dir), 30, WithReadOnly(true))
	s.Insert(domain.AnimeInfo{ID: 1, TitleMain: "x"})

	err := s.Save()
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	if domain.Code(err) != domain.ErrCodeCache {
		t.Fatalf("期望 cache_error，实际 %q", domain.Code(err))
	}
	if _, err := os.Stat(PathFor(dir)); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
}

func TestStore_PruneAndClear(t *testing.T) {
	dir := t.TempDir()
	clk := newClock()
	s := Load(PathFor(dir), 7, WithClock(clk.now))
	s.Insert(domain.AnimeInfo{ID: 1, TitleMain: "old"})
	clk.t = clk.t.Add(10 * 24 * time.Hour)
	s.Insert(domain.AnimeInfo{ID: 2, TitleMain: "new"})
	if err := s.Save(); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if n := s.PruneExpired(); n != 1 {
		t.Fatalf("期望清理 1 条，实际 %d", n)
	}
	if !s.Dirty() {
		t.Fatalf("PruneExpired 有变化时应为 dirty")
	}
	if n := s.Clear(); n != 1 {
		t.Fatalf("期望清空 1 条，实际 %d", n)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if s2 := Load(PathFor(dir), 7); s2.Len() != 0 {
		t.Fatalf("清空后重载应为空，实际 %d", s2.Len())
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
