package run

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/John-Robertt/anidir/internal/app/planner"
	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/infra/cache"
	"github.com/John-Robertt/anidir/internal/infra/fsx"
	"github.com/John-Robertt/anidir/internal/provider"
)

// Engine 是两阶段（PREPARE -> EXECUTE）重命名事务。
//
// 一个 Engine 只承载一次事务：Committed/Aborted 之后任何调用都返回 ErrInvalidTransition。
// 单线程使用，不加锁。
type Engine struct {
	fetcher   provider.Fetcher
	cache     *cache.Store
	obs       Observer
	maxLength int
	dryRun    bool

	state  State
	result domain.RenameResult
}

// EngineOptions 是构造 Engine 的全部输入。
type EngineOptions struct {
	Fetcher   provider.Fetcher
	Cache     *cache.Store
	Observer  Observer
	MaxLength int
	DryRun    bool
}

func NewEngine(o EngineOptions) *Engine {
	return &Engine{
		fetcher:   o.Fetcher,
		cache:     o.Cache,
		obs:       orNop(o.Observer),
		maxLength: o.MaxLength,
		dryRun:    o.DryRun,
	}
}

func (e *Engine) State() State { return e.state }

// Result 返回当前已构造的结果（Prepared 之前为空）。
func (e *Engine) Result() domain.RenameResult { return e.result }

func (e *Engine) transition(to State) error {
	if !canTransition(e.state, to) {
		return &TransitionError{From: e.state, To: to}
	}
	slog.Debug("事务状态转换", "from", e.state, "to", to)
	e.state = to
	return nil
}

func (e *Engine) abort(err error) error {
	if !e.state.Terminal() {
		e.state = StateAborted
	}
	return err
}

// Prepare 构造整批操作并做冲突检查（不修改文件系统）。
//
// - catalog 批次：逐条解析元数据（缓存 -> provider；dry-run 只用缓存与占位名）后构建可读名
// - readable 批次：直接由目录名还原 catalog 名，不读取元数据与缓存
// - 非 dry-run 时任一目标冲突都会中止整批
func (e *Engine) Prepare(ctx context.Context, vr domain.ValidationResult) (domain.RenameResult, error) {
	if err := e.transition(StatePreparing); err != nil {
		return domain.RenameResult{}, err
	}
	started := time.Now()

	direction := domain.DirectionFor(vr.Format)
	var (
		ops []domain.RenameOperation
		err error
	)
	counts := map[planner.Source]int{}
	switch direction {
	case domain.DirectionCatalogToReadable:
		res := &planner.Resolver{Cache: e.cache, Fetcher: e.fetcher, DryRun: e.dryRun}
		ops, err = planner.PrepareReadable(ctx, vr.Entries, res, e.maxLength, func(s planner.Step) {
			counts[s.Source]++
			e.obs.OnPrepared(s.Index+1, s.Total, s.Op, s.Source)
		})
		if err != nil {
			return domain.RenameResult{}, e.abort(err)
		}
	default:
		ops = planner.PrepareCatalog(vr.Entries)
		for i, op := range ops {
			e.obs.OnPrepared(i+1, len(ops), op, "")
		}
	}

	if !e.dryRun {
		if err := planner.CheckCollisions(ops); err != nil {
			return domain.RenameResult{}, e.abort(err)
		}
	}

	e.result = domain.RenameResult{Direction: direction, Operations: ops, DryRun: e.dryRun}
	e.obs.OnPhaseDone("prepare", map[string]any{
		"direction":   direction,
		"operations":  len(ops),
		"noop":        len(ops) - len(e.result.Applied()),
		"truncated":   e.result.TruncatedCount(),
		"cached":      counts[planner.SourceCache],
		"fetched":     counts[planner.SourceProvider],
		"placeholder": counts[planner.SourcePlaceholder],
	}, time.Since(started))

	if err := e.transition(StatePrepared); err != nil {
		return domain.RenameResult{}, e.abort(err)
	}
	return e.result, nil
}

// Execute 按 PREPARE 的顺序逐个 rename；dry-run 直接提交。
//
// 第一个失败立即中止并返回 *domain.RenameError；已执行的操作不回滚。
func (e *Engine) Execute(ctx context.Context) (domain.RenameResult, error) {
	if e.state != StatePrepared {
		return domain.RenameResult{}, &TransitionError{From: e.state, To: StateExecuting}
	}
	if e.dryRun {
		if err := e.transition(StateCommitted); err != nil {
			return domain.RenameResult{}, err
		}
		return e.result, nil
	}
	if err := e.transition(StateExecuting); err != nil {
		return domain.RenameResult{}, err
	}

	started := time.Now()
	applied, err := Apply(ctx, e.result.Operations, e.obs)
	e.obs.OnPhaseDone("execute", map[string]any{
		"renamed": applied,
		"total":   len(e.result.Applied()),
	}, time.Since(started))
	if err != nil {
		return e.result, e.abort(err)
	}

	if err := e.transition(StateCommitted); err != nil {
		return domain.RenameResult{}, err
	}
	return e.result, nil
}

// Apply 严格按顺序执行 ops（跳过 no-op），返回成功执行的数量。
//
// 第一个错误即中止：rename 失败返回 *domain.RenameError，ctx 取消直接返回 ctx.Err()。
// 每次 rename 前都会重新确认目标未被占用（rename(2) 会静默替换空目录）。
// revert 复用同一执行语义。
func Apply(ctx context.Context, ops []domain.RenameOperation, obs Observer) (int, error) {
	obs = orNop(obs)
	applied := 0
	for i, op := range ops {
		if op.NoOp() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return applied, fmt.Errorf("已完成 %d 个重命名后中断：%w", applied, err)
		}
		if err := renameFree(op); err != nil {
			rerr := &domain.RenameError{From: op.SourcePath, To: op.DestinationPath, Applied: applied, Err: err}
			obs.OnRenamed(i+1, len(ops), op, rerr)
			slog.Error("重命名失败", "from", op.SourceName, "to", op.DestinationName, "error", err)
			return applied, rerr
		}
		applied++
		obs.OnRenamed(i+1, len(ops), op, nil)
		slog.Info("已重命名", "from", op.SourceName, "to", op.DestinationName)
	}
	return applied, nil
}

// renameFree 在目标仍空闲时执行 rename；目标在 PREPARE 之后被占用时返回 *domain.DestinationExistsError。
func renameFree(op domain.RenameOperation) error {
	taken, err := fsx.Occupied(op.SourcePath, op.DestinationPath)
	if err != nil {
		return err
	}
	if taken {
		return &domain.DestinationExistsError{Source: op.SourcePath, Destination: op.DestinationPath}
	}
	return fsx.Rename(op.SourcePath, op.DestinationPath)
}
