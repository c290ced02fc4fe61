package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/mattn/go-isatty"

	"github.com/John-Robertt/anidir/internal/app/revert"
	"github.com/John-Robertt/anidir/internal/app/run"
	"github.com/John-Robertt/anidir/internal/config"
	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/infra/fsx"
	"github.com/John-Robertt/anidir/internal/infra/httpx"
	"github.com/John-Robertt/anidir/internal/infra/logx"
	"github.com/John-Robertt/anidir/internal/infra/ratelimit"
	"github.com/John-Robertt/anidir/internal/provider"
	"github.com/John-Robertt/anidir/internal/provider/anidb"
)

// version 由构建时 -ldflags "-X main.version=..." 注入。
var version = "dev"

type options struct {
	Dry         bool   `short:"d" long:"dry" description:"只规划不执行：不重命名、不联网、不写缓存与 journal"`
	Verbose     []bool `short:"v" long:"verbose" description:"输出更多日志（-v info，-vv debug）"`
	Revert      string `short:"r" long:"revert" value-name:"HISTORY_FILE" description:"按 journal 撤销一次操作（TARGET_DIR 可选，用于确认目录）"`
	MaxLength   int    `short:"l" long:"max-length" value-name:"N" description:"目录名最大字节数（默认 255）"`
	CacheExpiry int    `short:"c" long:"cache-expiry" value-name:"DAYS" description:"缓存有效天数（默认 30）"`
	CacheInfo   bool   `long:"cache-info" description:"显示 TARGET_DIR 的缓存概况"`
	CachePrune  bool   `long:"cache-prune" description:"删除 TARGET_DIR 缓存中的过期记录"`
	CacheClear  bool   `long:"cache-clear" description:"清空 TARGET_DIR 的缓存"`
	JSON        bool   `long:"json" description:"强制在 stdout 输出 JSON 结果"`
	Version     bool   `short:"V" long:"version" description:"显示版本"`

	Args struct {
		TargetDir string `positional-arg-name:"TARGET_DIR"`
	} `positional-args:"yes"`
}

// cli 持有一次调用的全部外部依赖；测试通过替换字段驱动整个流程。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	outTTY bool
	errTTY bool

	// cwd 为空时使用 os.Getwd。
	cwd        string
	newFetcher func(config.EffectiveConfig) (provider.Fetcher, error)
	now        func() time.Time

	pal  palette
	json bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		outTTY:     isTTY(os.Stdout),
		errTTY:     isTTY(os.Stderr),
		newFetcher: newAniDB,
	}
	code := c.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (c *cli) run(ctx context.Context, argv []string) int {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "anidir"
	parser.Usage = "[OPTIONS] [TARGET_DIR]"

	rest, err := parser.ParseArgs(argv)
	if err != nil {
		if flags.WroteHelp(err) {
			fmt.Fprintln(c.stdout, err.Error())
			return 0
		}
		fmt.Fprintf(c.stderr, "参数错误：%v\n使用 \"anidir --help\" 查看用法。\n", err)
		return exitCodes[domain.ErrCodeInvalidArgs]
	}
	if opts.Version {
		fmt.Fprintf(c.stdout, "anidir %s\n", version)
		return 0
	}

	c.json = opts.JSON || !c.outTTY
	c.pal = newPalette(c.errTTY)
	logx.Setup(c.stderr, len(opts.Verbose))

	if len(rest) > 0 {
		return c.fail("", usageError("多余的参数：%s", strings.Join(rest, " ")))
	}
	action, err := cacheAction(opts)
	if err != nil {
		return c.fail("", err)
	}

	cwd := c.cwd
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return c.fail("", fmt.Errorf("读取当前目录失败：%w", err))
		}
	}
	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		TargetDir:          opts.Args.TargetDir,
		RevertFile:         opts.Revert,
		DryRun:             opts.Dry,
		MaxLength:          opts.MaxLength,
		MaxLengthSet:       explicit(parser, "max-length"),
		CacheExpiryDays:    opts.CacheExpiry,
		CacheExpiryDaysSet: explicit(parser, "cache-expiry"),
	})
	if err != nil {
		return c.fail(commandFor(opts, action), err)
	}

	var rep report
	switch {
	case action != "":
		rep, err = c.cache(eff, action)
	case eff.RevertFile != "":
		rep, err = c.revert(ctx, eff)
	default:
		rep, err = c.rename(ctx, eff)
	}
	return c.finish(rep, err)
}

func (c *cli) rename(ctx context.Context, eff config.EffectiveConfig) (report, error) {
	rep := report{Command: "rename", TargetDir: eff.TargetDir, DryRun: eff.DryRun}

	var f provider.Fetcher
	if !eff.DryRun {
		var err error
		if f, err = c.newFetcher(eff); err != nil {
			return rep, err
		}
	}

	ui := c.progress()
	defer ui.Close()
	out, err := run.Rename(ctx, run.Options{
		Config:      eff,
		Fetcher:     f,
		Observer:    ui.observer(),
		ToolVersion: version,
		Now:         c.now,
	})
	if out.Result.Operations != nil {
		rep.Rename = &out.Result
	}
	rep.Journal = out.Journal
	if out.CacheErr != nil {
		rep.Warnings = append(rep.Warnings, out.CacheErr.Error())
	}
	return rep, err
}

func (c *cli) revert(ctx context.Context, eff config.EffectiveConfig) (report, error) {
	rep := report{Command: "revert", TargetDir: eff.TargetDir, DryRun: eff.DryRun}

	ui := c.progress()
	defer ui.Close()
	res, err := revert.Revert(ctx, revert.Options{
		Journal:     eff.RevertFile,
		TargetDir:   eff.TargetDir,
		DryRun:      eff.DryRun,
		ToolVersion: version,
		Observer:    ui.observer(),
		Now:         c.now,
	})
	rep.Revert = &res
	rep.Journal = res.NewJournal
	return rep, err
}

// newAniDB 组装生产环境的 provider：共享限速器 + 代理/超时策略 + 重试。
func newAniDB(eff config.EffectiveConfig) (provider.Fetcher, error) {
	hc, err := httpx.NewClient(httpx.Options{
		ProxyURL:  eff.ProxyURL,
		Timeout:   eff.Timeout,
		UserAgent: "anidir/" + version,
	})
	if err != nil {
		return nil, &domain.Error{Code: domain.ErrCodeInvalidArgs, Err: fmt.Errorf("构造 HTTP client 失败：%w", err)}
	}
	return provider.WithRetry(&anidb.Client{
		BaseURL:       eff.AniDBBaseURL,
		ClientName:    eff.AniDBClient,
		ClientVersion: eff.AniDBClientVersion,
		HTTP:          hc,
		Limiter:       ratelimit.New(eff.MinInterval),
	}, provider.DefaultPolicy), nil
}

// exitCodes 是 error_code 到进程退出码的唯一映射表。
var exitCodes = map[string]int{
	"":                         0,
	domain.ErrCodeGeneric:      1,
	domain.ErrCodeInvalidArgs:  2,
	domain.ErrCodeDirNotFound:  3,
	domain.ErrCodeMixedFormats: 4,
	domain.ErrCodeUnrecognized: 5,
	domain.ErrCodeProvider:     6,
	domain.ErrCodePermission:   7,
	domain.ErrCodeHistory:      8,
	domain.ErrCodeRename:       9,
	domain.ErrCodeCache:        10,
}

func exitCode(err error) int {
	if code, ok := exitCodes[domain.Code(err)]; ok {
		return code
	}
	return exitCodes[domain.ErrCodeGeneric]
}

// report 是 stdout JSON 的唯一结构（一次调用只输出一个）。
type report struct {
	Command   string               `json:"command"`
	OK        bool                 `json:"ok"`
	ExitCode  int                  `json:"exit_code"`
	ErrorCode string               `json:"error_code,omitempty"`
	Error     string               `json:"error,omitempty"`
	Hint      string               `json:"hint,omitempty"`
	TargetDir string               `json:"target_directory,omitempty"`
	DryRun    bool                 `json:"dry_run"`
	Rename    *domain.RenameResult `json:"rename,omitempty"`
	Revert    *domain.RevertResult `json:"revert,omitempty"`
	Journal   string               `json:"journal,omitempty"`
	Cache     *cacheReport         `json:"cache,omitempty"`
	Warnings  []string             `json:"warnings,omitempty"`
}

func (c *cli) fail(command string, err error) int {
	return c.finish(report{Command: command}, err)
}

func (c *cli) finish(rep report, err error) int {
	rep.ExitCode = exitCode(err)
	rep.OK = err == nil
	if err != nil {
		rep.ErrorCode = domain.Code(err)
		rep.Error = err.Error()
		rep.Hint = errorHint(rep, err)
	}
	c.emit(rep)
	return rep.ExitCode
}

// emit 输出最终结果。
//
// stdout 非 TTY（或 --json）：stdout 只输出一个 JSON，摘要走 stderr。
// stdout 是 TTY：摘要写 stdout，错误写 stderr。
func (c *cli) emit(rep report) {
	if c.json {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rep)
		printSummary(c.stderr, c.pal, rep)
	} else {
		printSummary(c.stdout, c.pal, rep)
	}
	for _, w := range rep.Warnings {
		fmt.Fprintf(c.stderr, "%s %s\n", c.pal.warn.Sprint("警告："), w)
	}
	if !rep.OK {
		fmt.Fprintf(c.stderr, "%s %s\n", c.pal.fail.Sprintf("错误[%s]：", rep.ErrorCode), rep.Error)
		if rep.Hint != "" {
			fmt.Fprintln(c.stderr, c.pal.dim.Sprint(rep.Hint))
		}
	}
}

// progress 选择进度输出位置：只在交互终端启用，且永远不与 stdout 的 JSON 混写。
func (c *cli) progress() *progressUI {
	switch {
	case c.errTTY:
		return newProgressUI(c.stderr, c.pal)
	case c.outTTY && !c.json:
		return newProgressUI(c.stdout, c.pal)
	default:
		return nil
	}
}

func cacheAction(o options) (string, error) {
	var picked []string
	if o.CacheInfo {
		picked = append(picked, "info")
	}
	if o.CachePrune {
		picked = append(picked, "prune")
	}
	if o.CacheClear {
		picked = append(picked, "clear")
	}
	switch {
	case len(picked) > 1:
		return "", usageError("--cache-info/--cache-prune/--cache-clear 只能指定一个")
	case len(picked) == 1 && o.Revert != "":
		return "", usageError("缓存维护命令不能与 --revert 同时使用")
	case len(picked) == 1 && o.Args.TargetDir == "":
		return "", usageError("缓存维护命令需要 TARGET_DIR")
	case len(picked) == 1:
		return picked[0], nil
	default:
		return "", nil
	}
}

func commandFor(o options, action string) string {
	switch {
	case action != "":
		return "cache"
	case o.Revert != "":
		return "revert"
	default:
		return "rename"
	}
}

// explicit 判断某个长选项是否在命令行上出现过（用于 CLI > env 的覆盖判断）。
func explicit(p *flags.Parser, long string) bool {
	o := p.FindOptionByLongName(long)
	return o != nil && o.IsSet()
}

func usageError(format string, args ...any) error {
	return &domain.Error{Code: domain.ErrCodeInvalidArgs, Err: fmt.Errorf(format, args...)}
}

func errorHint(rep report, err error) string {
	switch {
	case fsx.IsCrossDevice(err):
		return "目标目录跨越了挂载点（EXDEV）：请检查该目录是否为合并/网络文件系统。"
	case fsx.IsPathTypeConflict(err):
		return "journal 文件名已被目录或特殊文件占用：请移走后重试。"
	}
	switch rep.ErrorCode {
	case domain.ErrCodeRename:
		var re *domain.RenameError
		if rep.Rename != nil && errors.As(err, &re) && re.Applied > 0 {
			return fmt.Sprintf("已执行的 %d 个重命名不会回滚，也没有写入 journal；目录现在混有两种形态，直接重跑会因 mixed_formats 被拒绝。"+
				"请按 rename.operations 中前 %d 个（非 no-op）操作把这些目录手动改回原名，修复问题后再重新运行。", re.Applied, re.Applied)
		}
	case domain.ErrCodeHistory:
		if rep.Command == "rename" && rep.Rename != nil {
			return "请手动保存操作列表（--json 输出中的 rename.operations），以便需要时还原。"
		}
	case domain.ErrCodeProvider:
		return "已获取的元数据已写入缓存，重新运行时不会重复请求。"
	}
	return ""
}

func isTTY(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
