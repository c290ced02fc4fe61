package logx

import (
	"io"
	"log/slog"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/rs/xid"
)

// Level 把 -v 的次数映射为日志级别：0=warn，1=info，>=2=debug。
func Level(verbosity int) charmlog.Level {
	switch {
	case verbosity <= 0:
		return charmlog.WarnLevel
	case verbosity == 1:
		return charmlog.InfoLevel
	default:
		return charmlog.DebugLevel
	}
}

// New 构造写入 w 的 slog.Logger（charmbracelet/log 作为 handler），并附带本次运行的 run_id。
//
// 日志只写 w（通常是 stderr）；stdout 留给结果输出。
func New(w io.Writer, verbosity int) *slog.Logger {
	h := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           Level(verbosity),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Formatter:       charmlog.TextFormatter,
	})
	return slog.New(h).With("run_id", xid.New().String())
}

// Setup 构造 logger 并设为 slog 默认值，返回该 logger。
func Setup(w io.Writer, verbosity int) *slog.Logger {
	l := New(w, verbosity)
	slog.SetDefault(l)
	return l
}
