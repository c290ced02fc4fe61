package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/John-Robertt/anidir/internal/domain"
)

// Fetcher 把"元数据来源"限制在 provider 包内部；核心流程只依赖统一接口与稳定的 AnimeInfo。
//
// 约束：
// - Fetch 不做缓存（缓存由 run 层统一管理）
// - 返回的错误必须可以用 KindOf 归类
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, id int) (domain.AnimeInfo, error)
}

// Kind 是 provider 错误的稳定分类；重试与退出码都只依赖它。
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindRateLimited   Kind = "rate_limited"
	KindTimeout       Kind = "timeout"
	KindNetwork       Kind = "network"
	KindMalformed     Kind = "malformed"
	KindBanned        Kind = "banned"
	KindNotConfigured Kind = "not_configured"
	KindServer        Kind = "server"
	KindCanceled      Kind = "canceled"
)

// Retryable 只对瞬时故障返回 true。
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}

// Error 是 provider 阶段的可追溯错误。
// Attempts 由 WithRetry 填写；未经过重试包装时为 0。
type Error struct {
	Provider string
	Kind     Kind
	ID       int
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provider=%s id=%d kind=%s", e.Provider, e.ID, e.Kind)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" attempts=%d", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorCode() string { return domain.ErrCodeProvider }

// KindOf 从 error 链中提取 Kind。
//
// 非 *Error 的错误按传输层语义归类：ctx 取消/超时、net.Error 超时，其余视为网络错误。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return classifyTransport(err)
}

// Wrap 把任意错误包装为 *Error；已经是 *Error 的保持原样。
func Wrap(provider string, id int, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: provider, Kind: classifyTransport(err), ID: id, Err: err}
}

func classifyTransport(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
