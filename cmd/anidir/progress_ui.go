package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/John-Robertt/anidir/internal/app/planner"
	"github.com/John-Robertt/anidir/internal/app/run"
	"github.com/John-Robertt/anidir/internal/config"
	"github.com/John-Robertt/anidir/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// palette 集中管理终端颜色；非交互输出时全部退化为纯文本。
type palette struct {
	ok   *color.Color
	fail *color.Color
	warn *color.Color
	dim  *color.Color
	bold *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		ok:   mk(color.FgGreen, color.Bold),
		fail: mk(color.FgRed, color.Bold),
		warn: mk(color.FgYellow),
		dim:  mk(color.Faint),
		bold: mk(color.Bold),
	}
}

// progressUI 是交互终端的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：PREPARE 阶段按限速逐个请求元数据，长时间无输出时定期打印一行
type progressUI struct {
	w   io.Writer
	pal palette

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total    int
	prepared int
	fetched  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, pal palette) *progressUI {
	return &progressUI{
		w:                  w,
		pal:                pal,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

// observer 返回可传给 run/revert 的 Observer；p 为 nil 时返回 nil 接口。
func (p *progressUI) observer() run.Observer {
	if p == nil {
		return nil
	}
	return p
}

// Close 停止 keepalive ticker；可重复调用，nil 安全。
func (p *progressUI) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "apply"
	modeHint := ""
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不重命名/不联网/不写缓存)"
	}

	fmt.Fprintf(p.w, "[%s] %s (%s)\n", now.Format("15:04:05"), p.pal.bold.Sprint("anidir "+version), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  target: %s\n", eff.TargetDir)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  max_length: %d\n", eff.MaxLength)
	fmt.Fprintf(p.w, "  cache_expiry: %d 天\n", eff.CacheExpiryDays)
	fmt.Fprintf(p.w, "  anidb: %s\n", formatClient(eff))
	fmt.Fprintf(p.w, "  min_interval: %s\n", eff.MinInterval)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if len(eff.Exclude) > 0 {
		fmt.Fprintf(p.w, "  exclude: %s\n", strings.Join(eff.Exclude, ", "))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		p.total = intField(fields, "directories")
		fmt.Fprintf(p.w, "扫描: directories=%d format=%v (%s)\n",
			p.total, fields["format"], formatShortDuration(dur),
		)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "prepare":
		p.stopTickerLocked()
		fmt.Fprintf(p.w, "规划: operations=%d noop=%d truncated=%d cached=%d fetched=%d placeholder=%d (%s)\n",
			intField(fields, "operations"),
			intField(fields, "noop"),
			intField(fields, "truncated"),
			intField(fields, "cached"),
			intField(fields, "fetched"),
			intField(fields, "placeholder"),
			formatShortDuration(dur),
		)
	case "execute":
		fmt.Fprintf(p.w, "执行: renamed=%d/%d (%s)\n",
			intField(fields, "renamed"), intField(fields, "total"), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPrepared(idx, total int, op domain.RenameOperation, src planner.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prepared = idx
	p.total = total
	if src == planner.SourceProvider {
		p.fetched++
	}

	var notes []string
	if src != "" {
		notes = append(notes, string(src))
	}
	if op.Truncated {
		notes = append(notes, "truncated")
	}
	if op.NoOp() {
		notes = append(notes, "noop")
	}
	note := ""
	if len(notes) > 0 {
		note = " " + p.pal.dim.Sprintf("(%s)", strings.Join(notes, ", "))
	}
	fmt.Fprintf(p.w, "[%d/%d] %s → %s%s\n", idx, total, op.SourceName, op.DestinationName, note)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnRenamed(idx, total int, op domain.RenameOperation, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		fmt.Fprintf(p.w, "[%d/%d] %s %s: %s\n", idx, total, p.pal.fail.Sprint("FAIL"), op.SourceName, truncate(err.Error(), 160))
	} else {
		fmt.Fprintf(p.w, "[%d/%d] %s %s → %s\n", idx, total, p.pal.ok.Sprint("OK"), op.SourceName, op.DestinationName)
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	stop := p.stopCh
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: prepared=%d/%d fetched=%d elapsed=%s\n",
						p.prepared, p.total, p.fetched, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

// printSummary 打印一次调用的摘要（TTY 下写 stdout，JSON 模式下写 stderr）。
func printSummary(w io.Writer, pal palette, rep report) {
	switch {
	case rep.Rename != nil:
		printRenameSummary(w, pal, rep)
	case rep.Revert != nil && rep.Revert.Operations != nil:
		printRevertSummary(w, pal, rep)
	case rep.Cache != nil && rep.OK:
		printCacheSummary(w, pal, rep.Cache)
	}
}

func printRenameSummary(w io.Writer, pal palette, rep report) {
	r := rep.Rename
	applied := len(r.Applied())
	noop := len(r.Operations) - applied
	switch {
	case rep.DryRun:
		fmt.Fprintf(w, "计划：%d 个目录将被重命名（%s，noop=%d truncated=%d）。去掉 --dry 以执行。\n",
			applied, r.Direction.Describe(), noop, r.TruncatedCount())
	case rep.OK:
		fmt.Fprintf(w, "%s %d 个目录已重命名（%s，noop=%d truncated=%d）\n",
			pal.ok.Sprint("完成："), applied, r.Direction.Describe(), noop, r.TruncatedCount())
	default:
		return
	}
	if rep.Journal != "" {
		fmt.Fprintf(w, "%s\n", pal.dim.Sprintf("journal: %s", rep.Journal))
	}
}

func printRevertSummary(w io.Writer, pal palette, rep report) {
	r := rep.Revert
	switch {
	case r.DryRun && rep.OK:
		fmt.Fprintf(w, "revert 计划：%d 个目录将被还原（%s）。去掉 --dry 以执行。\n", len(r.Operations), r.OriginJournal)
		for _, op := range r.Operations {
			fmt.Fprintf(w, "  %s → %s\n", op.SourceName, op.DestinationName)
		}
	case rep.OK:
		fmt.Fprintf(w, "%s %d 个目录已还原\n", pal.ok.Sprint("revert 完成："), len(r.Operations))
		if r.NewJournal != "" {
			fmt.Fprintf(w, "%s\n", pal.dim.Sprintf("journal: %s", r.NewJournal))
		}
	}
}

func printCacheSummary(w io.Writer, pal palette, cr *cacheReport) {
	switch cr.Action {
	case "prune":
		fmt.Fprintf(w, "已清理 %d 条过期记录\n", cr.Removed)
	case "clear":
		fmt.Fprintf(w, "已清空 %d 条记录\n", cr.Removed)
	}
	oldest := "-"
	if cr.Oldest != nil {
		oldest = humanize.Time(*cr.Oldest)
	}
	fmt.Fprintf(w, "缓存：%s\n", pal.dim.Sprint(cr.Path))
	fmt.Fprintf(w, "  entries=%s expired=%s oldest=%s size=%s\n",
		humanize.Comma(int64(cr.Entries)), humanize.Comma(int64(cr.Expired)), oldest, humanize.Bytes(uint64(cr.SizeBytes)))
}

func formatClient(eff config.EffectiveConfig) string {
	if strings.TrimSpace(eff.AniDBClient) == "" || strings.TrimSpace(eff.AniDBClientVersion) == "" {
		return "未配置（只能使用缓存）"
	}
	return fmt.Sprintf("%s/%s", eff.AniDBClient, eff.AniDBClientVersion)
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// truncate 按 rune 截断，避免切开多字节字符。
func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if max <= 0 || len(r) <= max {
		return string(r)
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
