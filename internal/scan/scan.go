package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/anidir/internal/domain"
)

// ScanDirs 列出 root 下的直接子目录（不递归），并应用排除规则。
//
// 规则（硬约束）：
// - 隐藏项（'.' 开头，包括缓存、临时文件）永远跳过
// - 非目录跳过；指向目录的符号链接按目录处理
// - exclude：按目录名精确匹配（来自配置）
// - 输出按名称字典序（区分大小写）稳定排序
//
// root 不存在/不是目录：domain.ErrCodeDirNotFound；无权限：domain.ErrCodePermission。
func ScanDirs(root string, exclude []string) ([]domain.DirectoryEntry, error) {
	root = filepath.Clean(root)

	fi, err := os.Stat(root)
	if err != nil {
		return nil, classifyErr(root, err)
	}
	if !fi.IsDir() {
		return nil, &domain.Error{Code: domain.ErrCodeDirNotFound, Path: root, Err: errors.New("不是目录")}
	}

	des, err := os.ReadDir(root)
	if err != nil {
		return nil, classifyErr(root, err)
	}

	excluded := buildExcluded(exclude)
	out := make([]domain.DirectoryEntry, 0, len(des))
	for _, d := range des {
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := excluded[name]; ok {
			slog.Debug("跳过排除目录", "name", name)
			continue
		}

		path := filepath.Join(root, name)
		isDir := d.IsDir()
		if d.Type()&fs.ModeSymlink != 0 {
			// 悬空链接等 stat 失败的条目直接跳过，不让单个坏条目阻断整批。
			if st, err := os.Stat(path); err == nil {
				isDir = st.IsDir()
			}
		}
		if !isDir {
			continue
		}
		out = append(out, domain.DirectoryEntry{Name: name, Path: path})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func classifyErr(root string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &domain.Error{Code: domain.ErrCodeDirNotFound, Path: root, Err: errors.New("路径不存在")}
	case errors.Is(err, fs.ErrPermission):
		return &domain.Error{Code: domain.ErrCodePermission, Path: root, Err: err}
	default:
		return &domain.Error{Code: domain.ErrCodeGeneric, Path: root, Err: fmt.Errorf("读取目录失败：%w", err)}
	}
}

func buildExcluded(exclude []string) map[string]struct{} {
	m := make(map[string]struct{}, len(exclude))
	for _, x := range exclude {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		m[x] = struct{}{}
	}
	return m
}
