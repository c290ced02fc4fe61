package run

import (
	"time"

	"github.com/John-Robertt/anidir/internal/app/planner"
	"github.com/John-Robertt/anidir/internal/config"
	"github.com/John-Robertt/anidir/internal/domain"
)

// Observer 用于把"运行进度/阶段/条目结果"从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 事件都在调用 Rename/Engine 方法的 goroutine 上同步发出
type Observer interface {
	// OnStart 在 Rename 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnPrepared 在 PREPARE 阶段每构造出一个操作时调用。
	OnPrepared(idx, total int, op domain.RenameOperation, src planner.Source)
	// OnRenamed 在 EXECUTE 阶段每执行完（或失败）一个操作时调用。
	OnRenamed(idx, total int, op domain.RenameOperation, err error)
}

// nopObserver 让核心流程不必到处判空。
type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnPrepared(int, int, domain.RenameOperation, planner.Source) {}
func (nopObserver) OnRenamed(int, int, domain.RenameOperation, error) {}

func orNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
