package cache

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/infra/fsx"
)

const (
	// FileName 是缓存文件名（位于目标目录下；'.' 前缀保证扫描时被跳过）。
	FileName = ".anidir-cache.json"
	// Version 是缓存 schema 版本；不一致时整体丢弃重建。
	Version = "1.0"
)

var ErrReadOnly = errors.New("cache: read-only")

// Entry 是一条缓存记录。
type Entry struct {
	ID        int       `json:"id"`
	TitleMain string    `json:"title_main"`
	TitleAlt  string    `json:"title_alt,omitempty"`
	Year      int       `json:"year,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (e Entry) info() domain.AnimeInfo {
	return domain.AnimeInfo{ID: e.ID, TitleMain: e.TitleMain, TitleAlt: e.TitleAlt, Year: e.Year}
}

type cacheFile struct {
	Version string        `json:"version"`
	Entries map[int]Entry `json:"entries"`
}

// Stats 是缓存概况（--cache-info 使用）。
type Stats struct {
	Total   int
	Expired int
	Oldest  time.Time
}

// Store 是按 id 索引、带 TTL 的元数据缓存。单线程使用，不加锁。
//
// 约束：
// - dry-run：ReadOnly=true，Insert 只影响内存，Save 拒绝落盘
// - 调用方负责在所有退出路径上显式调用 Save（通常放在 defer 中）
type Store struct {
	path       string
	expiryDays int
	readOnly   bool
	now        func() time.Time

	entries map[int]Entry
	dirty   bool
}

type Option func(*Store)

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithReadOnly 设置只读模式。
func WithReadOnly(readOnly bool) Option {
	return func(s *Store) { s.readOnly = readOnly }
}

// PathFor 返回目标目录对应的缓存文件路径。
func PathFor(dir string) string {
	return filepath.Join(filepath.Clean(dir), FileName)
}

// Load 读取缓存文件。
//
// 文件不存在、解析失败、版本不一致都视为空缓存：只记日志，不向调用方返回错误。
func Load(path string, expiryDays int, opts ...Option) *Store {
	s := &Store{
		path:       filepath.Clean(path),
		expiryDays: expiryDays,
		now:        time.Now,
		entries:    map[int]Entry{},
	}
	for _, o := range opts {
		o(s)
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("缓存文件不存在，使用空缓存", "path", s.path)
		} else {
			slog.Warn("读取缓存失败，使用空缓存", "path", s.path, "error", err)
		}
		return s
	}

	var f cacheFile
	if err := json.Unmarshal(b, &f); err != nil {
		slog.Warn("缓存文件损坏，使用空缓存", "path", s.path, "error", err)
		return s
	}
	if f.Version != Version {
		slog.Warn("缓存版本不一致，使用空缓存", "path", s.path, "got", f.Version, "want", Version)
		return s
	}
	for id, e := range f.Entries {
		if e.ID == 0 {
			e.ID = id
		}
		s.entries[id] = e
	}
	slog.Debug("缓存已加载", "path", s.path, "entries", len(s.entries))
	return s
}

func (s *Store) Path() string { return s.path }

func (s *Store) Len() int { return len(s.entries) }

// Dirty 表示内存中存在未落盘的修改。
func (s *Store) Dirty() bool { return s.dirty }

// Get 返回未过期的缓存记录。
// 过期判定按整天计算：age 恰好等于 expiryDays 天时仍视为有效。
func (s *Store) Get(id int) (domain.AnimeInfo, bool) {
	e, ok := s.entries[id]
	if !ok || s.expired(e) {
		return domain.AnimeInfo{}, false
	}
	return e.info(), true
}

// Insert 插入或刷新记录（fetched_at = now），并标记 dirty。
func (s *Store) Insert(info domain.AnimeInfo) {
	s.entries[info.ID] = Entry{
		ID:        info.ID,
		TitleMain: info.TitleMain,
		TitleAlt:  info.TitleAlt,
		Year:      info.Year,
		FetchedAt: s.now().UTC(),
	}
	s.dirty = true
}

// PruneExpired 删除过期记录，返回删除数量。
func (s *Store) PruneExpired() int {
	n := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			n++
		}
	}
	if n > 0 {
		s.dirty = true
	}
	return n
}

// Clear 清空全部记录，返回删除数量。
func (s *Store) Clear() int {
	n := len(s.entries)
	if n > 0 {
		s.entries = map[int]Entry{}
		s.dirty = true
	}
	return n
}

func (s *Store) Stats() Stats {
	st := Stats{Total: len(s.entries)}
	for _, e := range s.entries {
		if s.expired(e) {
			st.Expired++
		}
		if st.Oldest.IsZero() || e.FetchedAt.Before(st.Oldest) {
			st.Oldest = e.FetchedAt
		}
	}
	return st
}

// Save 在 dirty 时把缓存原子写回（同目录临时文件 + rename）；干净时什么也不做。
func (s *Store) Save() error {
	if !s.dirty {
		return nil
	}
	if s.readOnly {
		return &domain.Error{Code: domain.ErrCodeCache, Path: s.path, Err: ErrReadOnly}
	}

	b, err := json.MarshalIndent(cacheFile{Version: Version, Entries: s.entries}, "", "  ")
	if err != nil {
		return &domain.Error{Code: domain.ErrCodeCache, Path: s.path, Err: err}
	}
	b = append(b, '\n')
	if err := fsx.WriteFileAtomicReplace(filepath.Dir(s.path), filepath.Base(s.path), b); err != nil {
		return &domain.Error{Code: domain.ErrCodeCache, Path: s.path, Err: err}
	}
	s.dirty = false
	slog.Debug("缓存已保存", "path", s.path, "entries", len(s.entries))
	return nil
}

func (s *Store) expired(e Entry) bool {
	days := int(s.now().Sub(e.FetchedAt) / (24 * time.Hour))
	return days > s.expiryDays
}
