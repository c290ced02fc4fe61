package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/infra/fsx"
)

const (
	filePrefix = "anidir-history-"
	fileExt    = ".json"
	timeLayout = "20060102-150405"

	// maxCounter 限制同一毫秒内的重名重试次数。
	maxCounter = 1000
)

// FromResult 由一次已执行的 RenameResult 构造 journal（只记录真正执行过的操作）。
func FromResult(res domain.RenameResult, op domain.OperationType, targetDir, toolVersion string, executedAt time.Time) domain.HistoryFile {
	applied := res.Applied()
	changes := make([]domain.HistoryEntry, 0, len(applied))
	for _, o := range applied {
		changes = append(changes, domain.HistoryEntry{
			Source:      o.SourceName,
			Destination: o.DestinationName,
			ID:          o.ID,
			Truncated:   o.Truncated,
		})
	}
	h := domain.HistoryFile{
		Version:         domain.HistoryVersion,
		ExecutedAt:      executedAt,
		Operation:       op,
		Direction:       res.Direction,
		TargetDirectory: targetDir,
		ToolVersion:     toolVersion,
		Changes:         changes,
	}
	h.Finalize()
	return h
}

// FileName 返回 executed_at 对应的基础文件名：anidir-history-YYYYMMDD-HHMMSS.json（UTC）。
func FileName(executedAt time.Time) string {
	return filePrefix + executedAt.UTC().Format(timeLayout) + fileExt
}

// candidates 依次给出：秒级名、毫秒级名、毫秒级名 + 递增计数。
func candidates(executedAt time.Time) func() (string, bool) {
	t := executedAt.UTC()
	base := filePrefix + t.Format(timeLayout)
	ms := fmt.Sprintf("%s-%03d", base, t.Nanosecond()/int(time.Millisecond))
	n := 0
	return func() (string, bool) {
		n++
		switch {
		case n == 1:
			return base + fileExt, true
		case n == 2:
			return ms + fileExt, true
		case n-2 <= maxCounter:
			return ms + "-" + strconv.Itoa(n-2) + fileExt, true
		default:
			return "", false
		}
	}
}

// Write 把 journal 写入 dir，返回最终路径。
//
// 已存在的 journal 永不覆盖：同名时依次改用毫秒精度与计数后缀。
func Write(dir string, h domain.HistoryFile) (string, error) {
	h.Finalize()
	if h.Version == "" {
		h.Version = domain.HistoryVersion
	}

	b, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return "", &domain.Error{Code: domain.ErrCodeHistory, Path: dir, Err: err}
	}
	b = append(b, '\n')

	next := candidates(h.ExecutedAt)
	for {
		name, ok := next()
		if !ok {
			return "", &domain.Error{Code: domain.ErrCodeHistory, Path: dir, Err: errors.New("无法分配唯一的 journal 文件名")}
		}
		err := fsx.WriteFileAtomicNoOverwrite(dir, name, b)
		if err == nil {
			return filepath.Join(dir, name), nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return "", &domain.Error{Code: domain.ErrCodeHistory, Path: filepath.Join(dir, name), Err: err}
	}
}

// Read 读取并校验 journal；读取、解析、版本不一致都是 history_error。
func Read(path string) (domain.HistoryFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.HistoryFile{}, &domain.Error{Code: domain.ErrCodeHistory, Path: path, Err: fmt.Errorf("无法读取 journal：%w", err)}
	}

	var h domain.HistoryFile
	if err := json.Unmarshal(b, &h); err != nil {
		return domain.HistoryFile{}, &domain.Error{Code: domain.ErrCodeHistory, Path: path, Err: fmt.Errorf("journal 不是合法 JSON：%w", err)}
	}
	if h.Version != domain.HistoryVersion {
		return domain.HistoryFile{}, &domain.Error{Code: domain.ErrCodeHistory, Path: path,
			Err: fmt.Errorf("journal 版本不支持：%q（期望 %q）", h.Version, domain.HistoryVersion)}
	}
	if h.TargetDirectory == "" {
		return domain.HistoryFile{}, &domain.Error{Code: domain.ErrCodeHistory, Path: path, Err: errors.New("journal 缺少 target_directory")}
	}
	for i, c := range h.Changes {
		if c.Source == "" || c.Destination == "" {
			return domain.HistoryFile{}, &domain.Error{Code: domain.ErrCodeHistory, Path: path, Err: fmt.Errorf("journal 第 %d 条变更缺少 source/destination", i+1)}
		}
		for _, name := range []string{c.Source, c.Destination} {
			if !isPlainName(name) {
				return domain.HistoryFile{}, &domain.Error{Code: domain.ErrCodeHistory, Path: path,
					Err: fmt.Errorf("journal 第 %d 条变更的目录名 %q 不是单级名称", i+1, name)}
			}
		}
	}
	h.Finalize()
	return h, nil
}

// isPlainName 判断 name 是否为 target_directory 下的单级目录名。
func isPlainName(name string) bool {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name && !filepath.IsAbs(name) && filepath.VolumeName(name) == ""
}
