package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 保证相邻两次 provider 调用之间至少间隔 minInterval。
//
// 它是显式注入的组件（不是全局状态）：同一个 Limiter 在一次运行中被所有调用点共享。
// 当前流程是单线程的，互斥锁让它在调用点并行化后仍然正确。
type Limiter struct {
	mu       sync.Mutex
	lim      *rate.Limiter
	interval time.Duration
	last     time.Time
}

// New 构造 Limiter；minInterval <= 0 表示不限速。
func New(minInterval time.Duration) *Limiter {
	l := &Limiter{interval: minInterval}
	if minInterval > 0 {
		l.lim = rate.NewLimiter(rate.Every(minInterval), 1)
	} else {
		l.lim = rate.NewLimiter(rate.Inf, 1)
	}
	return l
}

// Wait 阻塞到允许下一次调用（或 ctx 结束）。
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	l.last = time.Now()
	return nil
}

// Interval 返回配置的最小间隔。
func (l *Limiter) Interval() time.Duration { return l.interval }

// Last 返回最近一次放行的时间；从未放行时为零值。
func (l *Limiter) Last() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
