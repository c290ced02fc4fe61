package revert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"

	"github.com/John-Robertt/anidir/internal/app/run"
	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/history"
	"github.com/John-Robertt/anidir/internal/infra/fsx"
)

// Options 是一次 revert 的输入。
type Options struct {
	// Journal 是要撤销的 journal 文件路径。
	Journal string
	// TargetDir 非空时必须与 journal 记录的 target_directory 一致，否则拒绝执行。
	TargetDir string
	DryRun    bool

	ToolVersion string
	Observer    run.Observer
	Now         func() time.Time
}

// Revert 由 journal 构造逆向操作，全部预校验通过后按顺序执行，并为本次 revert 写入新的 journal。
//
// 目录不一致或预校验失败时不做任何文件系统修改。
// 执行阶段与正向事务相同：第一个失败即中止，不回滚。
func Revert(ctx context.Context, o Options) (domain.RevertResult, error) {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	res := domain.RevertResult{DryRun: o.DryRun, OriginJournal: o.Journal}

	h, err := history.Read(o.Journal)
	if err != nil {
		return res, err
	}
	recorded := filepath.Clean(h.TargetDirectory)
	if o.TargetDir != "" {
		given, err := filepath.Abs(o.TargetDir)
		if err != nil {
			return res, &domain.Error{Code: domain.ErrCodeInvalidArgs, Path: o.TargetDir, Err: err}
		}
		if filepath.Clean(given) != recorded {
			return res, &domain.DirectoryMismatchError{Given: filepath.Clean(given), Recorded: recorded}
		}
	}

	res.Operations = Inverse(h)
	if err := Check(res.Operations); err != nil {
		return res, err
	}
	slog.Info("revert 预校验通过", "journal", o.Journal, "operations", len(res.Operations))
	if o.DryRun {
		return res, nil
	}

	applied, err := run.Apply(ctx, res.Operations, o.Observer)
	if err != nil {
		return res, err
	}

	rr := domain.RenameResult{Direction: h.Direction.Reverse(), Operations: res.Operations}
	nh := history.FromResult(rr, domain.OperationRevert, recorded, o.ToolVersion, now())
	res.NewJournal, err = history.Write(recorded, nh)
	if err != nil {
		return res, fmt.Errorf("revert 已完成（%d 个），但 journal 写入失败：%w", applied, err)
	}
	return res, nil
}

// Inverse 交换每条变更的 source/destination，并倒序排列（链式改名需要从后往前撤销）。
func Inverse(h domain.HistoryFile) []domain.RenameOperation {
	dir := filepath.Clean(h.TargetDirectory)
	ops := lo.Map(h.Changes, func(c domain.HistoryEntry, _ int) domain.RenameOperation {
		return domain.RenameOperation{
			SourcePath:      filepath.Join(dir, c.Destination),
			SourceName:      c.Destination,
			DestinationPath: filepath.Join(dir, c.Source),
			DestinationName: c.Source,
			ID:              c.ID,
			Truncated:       c.Truncated,
		}
	})
	return lo.Reverse(ops)
}

// Check 在任何文件系统修改之前校验全部逆向操作，汇总所有问题（不是只报第一个）：
// - 当前名（rename 后的名字）必须存在，且是目录
// - 原名不能已经存在（被本批次前面的操作移走的除外）
func Check(ops []domain.RenameOperation) error {
	var problems []domain.RevertProblem
	add := func(op domain.RenameOperation, reason string) {
		problems = append(problems, domain.RevertProblem{Source: op.SourceName, Destination: op.DestinationName, Reason: reason})
	}

	// 被本批次前面的操作移走的源路径：执行到后面的操作时已经空出。
	vacated := make(map[string]struct{}, len(ops))

	for _, op := range ops {
		if op.NoOp() {
			continue
		}
		st, err := os.Stat(op.SourcePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			add(op, "当前目录不存在")
		case err != nil:
			add(op, err.Error())
		case !st.IsDir():
			add(op, "当前路径不是目录")
		}

		exists, err := fsx.Exists(op.DestinationPath)
		if err != nil {
			add(op, err.Error())
		} else if _, ok := vacated[op.DestinationPath]; exists && !ok {
			add(op, "原目录名已被占用")
		}
		vacated[op.SourcePath] = struct{}{}
	}
	if len(problems) > 0 {
		return &domain.RevertValidationError{Problems: problems}
	}
	return nil
}
