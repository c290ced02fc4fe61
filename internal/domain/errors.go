package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

const (
	ErrCodeGeneric      = "generic"
	ErrCodeInvalidArgs  = "invalid_args"
	ErrCodeDirNotFound  = "directory_not_found"
	ErrCodeMixedFormats = "mixed_formats"
	ErrCodeUnrecognized = "unrecognized_format"
	ErrCodeProvider     = "provider_error"
	ErrCodePermission   = "permission"
	ErrCodeHistory      = "history_error"
	ErrCodeRename       = "rename_error"
	ErrCodeCache        = "cache_error"
)

// Error 是带 error_code 的通用结构化错误。
// Path 为可选的定位信息（目录、journal 文件、缓存文件等）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s：%q", e.Code, e.Path)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorCode() string { return e.Code }

// Code 从 error 链中提取 error_code；无法归类时返回 ErrCodeGeneric（nil 返回空串）。
func Code(err error) string {
	if err == nil {
		return ""
	}
	var c interface{ ErrorCode() string }
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ErrCodeGeneric
}

// ErrNoDirectories 表示目标目录下没有可处理的子目录。
var ErrNoDirectories = &Error{Code: ErrCodeDirNotFound, Err: errors.New("目标目录下没有可处理的子目录")}

// UnrecognizedFormatError 汇总所有无法识别的目录名（不是只报第一个）。
type UnrecognizedFormatError struct {
	Names []string
}

func (e *UnrecognizedFormatError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("无法识别的目录名：%q", e.Names[0])
	}
	return fmt.Sprintf("%d 个目录名无法识别：%s", len(e.Names), quoteJoin(e.Names))
}

func (e *UnrecognizedFormatError) ErrorCode() string { return ErrCodeUnrecognized }

// MixedFormatsError 表示同一批目录同时包含 catalog 与 readable 两种形态。
// 两个示例列表都必须非空；Count 字段保留完整数量。
type MixedFormatsError struct {
	Catalog       []string
	Readable      []string
	CatalogCount  int
	ReadableCount int
}

func (e *MixedFormatsError) Error() string {
	return fmt.Sprintf("目录格式混杂：catalog=%d（例如 %s），readable=%d（例如 %s）",
		e.CatalogCount, quoteJoin(e.Catalog), e.ReadableCount, quoteJoin(e.Readable))
}

func (e *MixedFormatsError) ErrorCode() string { return ErrCodeMixedFormats }

// DestinationExistsError 表示目标路径已存在（或同批次内两个操作指向同一目标）。
// Other 非空时表示与同批次另一个源冲突。
type DestinationExistsError struct {
	Source      string
	Destination string
	Other       string
}

func (e *DestinationExistsError) Error() string {
	if e.Other != "" {
		return fmt.Sprintf("目标冲突：%q 与 %q 都将重命名为 %q", e.Other, e.Source, e.Destination)
	}
	return fmt.Sprintf("目标已存在：%q -> %q", e.Source, e.Destination)
}

func (e *DestinationExistsError) ErrorCode() string { return ErrCodeRename }

// RenameError 表示执行阶段某个 rename 失败；此前已执行的操作不会回滚。
type RenameError struct {
	From    string
	To      string
	Applied int
	Err     error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("重命名失败：%q -> %q（已完成 %d 个，未回滚）：%v", e.From, e.To, e.Applied, e.Err)
}

func (e *RenameError) Unwrap() error { return e.Err }

func (e *RenameError) ErrorCode() string {
	if errors.Is(e.Err, fs.ErrPermission) {
		return ErrCodePermission
	}
	return ErrCodeRename
}

// NameTooLongError 表示 max_length 连最小可读名（1 个字符 + 省略号 + id 后缀）都放不下。
type NameTooLongError struct {
	ID        int
	MaxLength int
	Need      int
}

func (e *NameTooLongError) Error() string {
	return fmt.Sprintf("max-length=%d 无法容纳 id %d 的最小可读名（至少需要 %d 字节）", e.MaxLength, e.ID, e.Need)
}

func (e *NameTooLongError) ErrorCode() string { return ErrCodeInvalidArgs }

// DirectoryMismatchError 表示 revert 时调用方给出的目录与 journal 记录的目录不一致。
type DirectoryMismatchError struct {
	Given    string
	Recorded string
}

func (e *DirectoryMismatchError) Error() string {
	return fmt.Sprintf("目录不一致：指定 %q，journal 记录为 %q", e.Given, e.Recorded)
}

func (e *DirectoryMismatchError) ErrorCode() string { return ErrCodeHistory }

// RevertProblem 是 revert 预校验发现的单条问题。
type RevertProblem struct {
	Source      string
	Destination string
	Reason      string
}

// RevertValidationError 汇总 revert 预校验的全部问题（在任何文件系统操作之前返回）。
type RevertValidationError struct {
	Problems []RevertProblem
}

func (e *RevertValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "revert 预校验失败（%d 项）", len(e.Problems))
	for _, p := range e.Problems {
		fmt.Fprintf(&b, "\n  %q -> %q：%s", p.Source, p.Destination, p.Reason)
	}
	return b.String()
}

func (e *RevertValidationError) ErrorCode() string { return ErrCodeHistory }

func quoteJoin(names []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%q", n))
	}
	return strings.Join(parts, ", ")
}
