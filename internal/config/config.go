package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/John-Robertt/anidir/internal/domain"
)

const (
	// DefaultMaxLength 是目录名的默认字节上限（大多数文件系统的单段上限）。
	DefaultMaxLength = 255
	// DefaultCacheExpiryDays 是缓存记录的默认有效天数。
	DefaultCacheExpiryDays = 30
	// DotEnvFile 是 cwd 下可选的环境变量文件。
	DotEnvFile = ".env"
)

// CLIArgs 是 CLI 暴露的入口参数，并保留"是否显式指定"的信息。
// 这能保证覆盖优先级可实现：例如 -l 255 必须能覆盖 ANIDIR_MAX_LENGTH=100。
type CLIArgs struct {
	TargetDir  string
	RevertFile string
	DryRun     bool

	MaxLength    int
	MaxLengthSet bool

	CacheExpiryDays    int
	CacheExpiryDaysSet bool
}

// EnvConfig 对应环境变量（以及 cwd/.env）的解析结构。
type EnvConfig struct {
	AniDBClient        string        `env:"ANIDB_CLIENT"`
	AniDBClientVersion string        `env:"ANIDB_CLIENT_VERSION"`
	AniDBBaseURL       string        `env:"ANIDIR_ANIDB_URL"`
	ProxyURL           string        `env:"ANIDIR_PROXY"`
	MinInterval        time.Duration `env:"ANIDIR_MIN_INTERVAL" envDefault:"2s"`
	Timeout            time.Duration `env:"ANIDIR_TIMEOUT" envDefault:"30s"`
	MaxLength          int           `env:"ANIDIR_MAX_LENGTH" envDefault:"255"`
	CacheExpiryDays    int           `env:"ANIDIR_CACHE_EXPIRY" envDefault:"30"`
	Exclude            []string      `env:"ANIDIR_EXCLUDE" envSeparator:","`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// TargetDir 为 clean + absolute；revert 且未指定目录时为空。
	TargetDir  string
	RevertFile string
	DryRun     bool

	MaxLength       int
	CacheExpiryDays int

	AniDBClient        string
	AniDBClientVersion string
	AniDBBaseURL       string
	ProxyURL           string
	MinInterval        time.Duration
	Timeout            time.Duration
	Exclude            []string
}

// Error 是配置阶段的结构化错误；Code 复用 domain 的 error_code，便于统一映射退出码。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorCode() string { return e.Code }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func invalid(path string, err error) *Error {
	return &Error{Code: domain.ErrCodeInvalidArgs, Path: path, Err: err}
}

// LoadEnv 解析环境变量；cwd/.env（可选）中的值只在环境中没有同名变量时生效。
func LoadEnv(cwd string, environ []string) (EnvConfig, error) {
	vars := map[string]string{}

	dotenv := filepath.Join(cwd, DotEnvFile)
	if m, err := godotenv.Read(dotenv); err == nil {
		for k, v := range m {
			vars[k] = v
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return EnvConfig{}, invalid(dotenv, err)
	}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			vars[k] = v
		}
	}

	var ec EnvConfig
	if err := env.ParseWithOptions(&ec, env.Options{Environment: vars}); err != nil {
		return EnvConfig{}, invalid("", fmt.Errorf("环境变量无效：%w", err))
	}
	return ec, nil
}

// LoadEffective 读取环境配置，然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：CLI > 环境变量（含 .env）> 内置默认值。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, invalid(cwd, err)
	}
	ec, err := LoadEnv(cwdAbs, os.Environ())
	if err != nil {
		return EffectiveConfig{}, err
	}
	return Merge(cwdAbs, cli, ec)
}

// Merge 合并 CLI 与环境配置并校验。cwd 必须是绝对路径；ec 通常来自 LoadEnv（已填好默认值）。
func Merge(cwd string, cli CLIArgs, ec EnvConfig) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		DryRun:             cli.DryRun,
		MaxLength:          ec.MaxLength,
		CacheExpiryDays:    ec.CacheExpiryDays,
		AniDBClient:        strings.TrimSpace(ec.AniDBClient),
		AniDBClientVersion: strings.TrimSpace(ec.AniDBClientVersion),
		AniDBBaseURL:       strings.TrimSpace(ec.AniDBBaseURL),
		ProxyURL:           strings.TrimSpace(ec.ProxyURL),
		MinInterval:        ec.MinInterval,
		Timeout:            ec.Timeout,
		Exclude:            normList(ec.Exclude),
	}

	if cli.MaxLengthSet {
		eff.MaxLength = cli.MaxLength
	}
	if eff.MaxLength < 1 {
		return EffectiveConfig{}, invalid("", fmt.Errorf("max-length 必须 >= 1，实际 %d", eff.MaxLength))
	}

	if cli.CacheExpiryDaysSet {
		eff.CacheExpiryDays = cli.CacheExpiryDays
	}
	if eff.CacheExpiryDays < 0 {
		return EffectiveConfig{}, invalid("", fmt.Errorf("cache-expiry 不能为负数，实际 %d", eff.CacheExpiryDays))
	}

	if eff.MinInterval < 0 {
		return EffectiveConfig{}, invalid("", fmt.Errorf("ANIDIR_MIN_INTERVAL 不能为负数：%s", eff.MinInterval))
	}
	if eff.ProxyURL != "" {
		if err := checkURL(eff.ProxyURL, "http", "https", "socks5"); err != nil {
			return EffectiveConfig{}, invalid("", fmt.Errorf("ANIDIR_PROXY 无效：%w", err))
		}
	}
	if eff.AniDBBaseURL != "" {
		if err := checkURL(eff.AniDBBaseURL, "http", "https"); err != nil {
			return EffectiveConfig{}, invalid("", fmt.Errorf("ANIDIR_ANIDB_URL 无效：%w", err))
		}
	}

	if strings.TrimSpace(cli.RevertFile) != "" {
		eff.RevertFile = absCleanFrom(cwd, cli.RevertFile)
	}

	if strings.TrimSpace(cli.TargetDir) == "" {
		if eff.RevertFile == "" {
			return EffectiveConfig{}, invalid("", errors.New("必须指定目标目录"))
		}
		return eff, nil
	}
	eff.TargetDir = absCleanFrom(cwd, cli.TargetDir)
	if err := checkDir(eff.TargetDir); err != nil {
		return EffectiveConfig{}, err
	}
	return eff, nil
}

func checkDir(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return &Error{Code: domain.ErrCodePermission, Path: path, Err: err}
		}
		return &Error{Code: domain.ErrCodeDirNotFound, Path: path, Err: err}
	}
	if !st.IsDir() {
		return &Error{Code: domain.ErrCodeDirNotFound, Path: path, Err: errors.New("不是目录")}
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("必须包含 scheme 与 host：%q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("不支持的 scheme %q（可用：%s）", u.Scheme, strings.Join(schemes, "/"))
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

func normList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
