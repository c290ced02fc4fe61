package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/John-Robertt/anidir/internal/domain"
)

// Policy 描述重试策略：第 n 次重试前等待 InitialBackoff * Multiplier^(n-1)。
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64

	// Sleep 可注入（测试用）；为 nil 时使用可被 ctx 打断的计时器。
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy：最多 3 次尝试，退避 1s、2s。
var DefaultPolicy = Policy{MaxAttempts: 3, InitialBackoff: time.Second, Multiplier: 2}

// Attempt 记录一次尝试（用于日志与测试断言）。
type Attempt struct {
	N       int
	Kind    Kind
	Backoff time.Duration // 本次失败后等待的时长；最后一次为 0
}

type retrying struct {
	next   Fetcher
	policy Policy

	trace []Attempt
}

// WithRetry 为 Fetcher 增加重试：只有 Kind.Retryable() 的错误会重试。
// 重试耗尽时返回最后一次的 *Error，Kind 保持不变，Attempts 记录总尝试次数。
func WithRetry(f Fetcher, p Policy) Fetcher {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	return &retrying{next: f, policy: p}
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Fetch(ctx context.Context, id int) (domain.AnimeInfo, error) {
	r.trace = r.trace[:0]
	backoff := r.policy.InitialBackoff

	var lastErr error
	attempt := 0
	for attempt < r.policy.MaxAttempts {
		attempt++
		info, err := r.next.Fetch(ctx, id)
		if err == nil {
			return info, nil
		}
		lastErr = Wrap(r.next.Name(), id, err)
		kind := KindOf(lastErr)

		if !kind.Retryable() || attempt == r.policy.MaxAttempts || ctx.Err() != nil {
			r.trace = append(r.trace, Attempt{N: attempt, Kind: kind})
			break
		}
		r.trace = append(r.trace, Attempt{N: attempt, Kind: kind, Backoff: backoff})
		slog.Warn("provider 请求失败，准备重试",
			"provider", r.next.Name(), "id", id, "kind", kind, "attempt", attempt, "backoff", backoff)

		if err := r.policy.Sleep(ctx, backoff); err != nil {
			return domain.AnimeInfo{}, &Error{Provider: r.next.Name(), Kind: KindOf(err), ID: id, Attempts: attempt, Err: err}
		}
		backoff = time.Duration(float64(backoff) * r.policy.Multiplier)
	}

	var pe *Error
	if errors.As(lastErr, &pe) {
		cp := *pe
		cp.Attempts = attempt
		return domain.AnimeInfo{}, &cp
	}
	return domain.AnimeInfo{}, lastErr
}

// Trace 返回最近一次 Fetch 的尝试链路。
func Trace(f Fetcher) []Attempt {
	r, ok := f.(*retrying)
	if !ok {
		return nil
	}
	return append([]Attempt(nil), r.trace...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
