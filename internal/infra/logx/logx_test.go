package logx

import (
	"bytes"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, charmlog.WarnLevel, Level(0))
	assert.Equal(t, charmlog.WarnLevel, Level(-1))
	assert.Equal(t, charmlog.InfoLevel, Level(1))
	assert.Equal(t, charmlog.DebugLevel, Level(2))
	assert.Equal(t, charmlog.DebugLevel, Level(5))
}

func TestNew_FiltersByVerbosity(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 0)
	l.Info("不应出现")
	l.Warn("缓存保存失败", "path", "/tmp/x")

	out := buf.String()
	assert.NotContains(t, out, "不应出现")
	assert.Contains(t, out, "缓存保存失败")
	assert.Contains(t, out, "run_id=")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNew_DebugVerbosity(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 2)
	l.Debug("事务状态转换", "from", "idle", "to", "preparing")
	assert.Contains(t, buf.String(), "事务状态转换")
}

func TestNew_RunIDPerLogger(t *testing.T) {
	var a, b bytes.Buffer
	New(&a, 1).Info("x")
	New(&b, 1).Info("x")
	assert.NotEqual(t, runID(a.String()), runID(b.String()))
}

func runID(line string) string {
	i := strings.Index(line, "run_id=")
	if i < 0 {
		return ""
	}
	return strings.Fields(line[i:])[0]
}
