package run

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/John-Robertt/anidir/internal/app"
	"github.com/John-Robertt/anidir/internal/config"
	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/history"
	"github.com/John-Robertt/anidir/internal/infra/cache"
	"github.com/John-Robertt/anidir/internal/provider"
	"github.com/John-Robertt/anidir/internal/scan"
)

// Options 是一次完整重命名会话的输入。
type Options struct {
	Config      config.EffectiveConfig
	Fetcher     provider.Fetcher
	Observer    Observer
	ToolVersion string

	// Now 可注入（测试用）；为 nil 时使用 time.Now。
	Now func() time.Time
}

// Outcome 是一次会话的输出。
//
// 出错时 Result 仍包含已构造的操作（若 PREPARE 已完成），便于上层报告进度。
type Outcome struct {
	Result  domain.RenameResult
	Journal string
	// CacheErr 记录缓存落盘失败（不影响事务结果）。
	CacheErr error
}

// Rename 执行一次完整会话：scan -> validate -> prepare -> execute -> journal。
//
// 缓存在 defer 中统一落盘：成功、失败、取消都会把已获取的元数据保存下来（dry-run 除外）。
// journal 只在整批成功且确有变更时写入。
func Rename(ctx context.Context, o Options) (out Outcome, err error) {
	eff := o.Config
	obs := orNop(o.Observer)
	now := o.Now
	if now == nil {
		now = time.Now
	}
	obs.OnStart(eff)

	started := time.Now()
	entries, err := scan.ScanDirs(eff.TargetDir, eff.Exclude)
	if err != nil {
		return out, err
	}
	vr, err := app.Validate(entries)
	if err != nil {
		return out, err
	}
	obs.OnPhaseDone("scan", map[string]any{
		"directories": len(vr.Entries),
		"format":      vr.Format,
	}, time.Since(started))

	var store *cache.Store
	if vr.Format == domain.FormatCatalog {
		store = cache.Load(cache.PathFor(eff.TargetDir), eff.CacheExpiryDays,
			cache.WithReadOnly(eff.DryRun), cache.WithClock(now))
		defer func() {
			if eff.DryRun {
				return
			}
			if serr := store.Save(); serr != nil {
				slog.Warn("缓存保存失败", "path", store.Path(), "error", serr)
				out.CacheErr = serr
			}
		}()
	}

	eng := NewEngine(EngineOptions{
		Fetcher:   o.Fetcher,
		Cache:     store,
		Observer:  obs,
		MaxLength: eff.MaxLength,
		DryRun:    eff.DryRun,
	})
	if out.Result, err = eng.Prepare(ctx, vr); err != nil {
		return out, err
	}
	if out.Result, err = eng.Execute(ctx); err != nil {
		return out, err
	}
	if eff.DryRun || len(out.Result.Applied()) == 0 {
		return out, nil
	}

	h := history.FromResult(out.Result, domain.OperationRename, eff.TargetDir, o.ToolVersion, now())
	out.Journal, err = history.Write(eff.TargetDir, h)
	if err != nil {
		// 重命名已完成，只是无法记录：提示用户手动保存操作列表。
		return out, errors.Join(err, errJournalLost)
	}
	slog.Info("journal 已写入", "path", out.Journal, "changes", len(h.Changes))
	return out, nil
}

var errJournalLost = errors.New("重命名已全部完成，但 journal 写入失败：本次操作无法自动 revert")
