package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/anidir/internal/domain"
)

func TestLoadEnv_Defaults(t *testing.T) {
	ec, err := LoadEnv(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ec.MinInterval != 2*time.Second || ec.Timeout != 30*time.Second {
		t.Fatalf("默认值不正确：%+v", ec)
	}
	if ec.MaxLength != DefaultMaxLength || ec.CacheExpiryDays != DefaultCacheExpiryDays {
		t.Fatalf("默认值不正确：%+v", ec)
	}
}

func TestLoadEnv_DotEnvLosesToEnvironment(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, ".env"), []byte("ANIDB_CLIENT=fromfile\nANIDB_CLIENT_VERSION=3\nANIDIR_EXCLUDE=@eaDir, Extras\n"))

	ec, err := LoadEnv(cwd, []string{"ANIDB_CLIENT=fromenv", "ANIDIR_MIN_INTERVAL=4s"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ec.AniDBClient != "fromenv" {
		t.Fatalf("环境变量应优先于 .env，实际 %q", ec.AniDBClient)
	}
	if ec.AniDBClientVersion != "3" {
		t.Fatalf("应读取 .env 中的值，实际 %q", ec.AniDBClientVersion)
	}
	if ec.MinInterval != 4*time.Second {
		t.Fatalf("期望 4s，实际 %s", ec.MinInterval)
	}

	eff, err := Merge(cwd, CLIArgs{TargetDir: "."}, ec)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(eff.Exclude) != 2 || eff.Exclude[0] != "@eaDir" || eff.Exclude[1] != "Extras" {
		t.Fatalf("排除列表不正确：%q", eff.Exclude)
	}
}

func TestLoadEnv_InvalidDuration(t *testing.T) {
	_, err := LoadEnv(t.TempDir(), []string{"ANIDIR_TIMEOUT=soon"})
	if Code(err) != domain.ErrCodeInvalidArgs {
		t.Fatalf("期望 %q，实际 err=%v", domain.ErrCodeInvalidArgs, err)
	}
}

func TestMerge_CLIOverridesEnv(t *testing.T) {
	cwd := t.TempDir()
	ec, err := LoadEnv(cwd, []string{"ANIDIR_MAX_LENGTH=100", "ANIDIR_CACHE_EXPIRY=7"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	eff, err := Merge(cwd, CLIArgs{TargetDir: "."}, ec)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.MaxLength != 100 || eff.CacheExpiryDays != 7 {
		t.Fatalf("应使用环境变量：%+v", eff)
	}

	eff, err = Merge(cwd, CLIArgs{TargetDir: ".", MaxLength: 255, MaxLengthSet: true, CacheExpiryDays: 0, CacheExpiryDaysSet: true}, ec)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.MaxLength != 255 || eff.CacheExpiryDays != 0 {
		t.Fatalf("CLI 应覆盖环境变量：%+v", eff)
	}
	if eff.TargetDir != cwd {
		t.Fatalf("期望 TargetDir=%q，实际 %q", cwd, eff.TargetDir)
	}
}

func TestMerge_Validation(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "file"), []byte("x"))
	ec, err := LoadEnv(cwd, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	cases := []struct {
		name string
		cli  CLIArgs
		ec   func(EnvConfig) EnvConfig
		code string
	}{
		{"no target", CLIArgs{}, nil, domain.ErrCodeInvalidArgs},
		{"missing dir", CLIArgs{TargetDir: "missing"}, nil, domain.ErrCodeDirNotFound},
		{"not dir", CLIArgs{TargetDir: "file"}, nil, domain.ErrCodeDirNotFound},
		{"max length", CLIArgs{TargetDir: ".", MaxLength: 0, MaxLengthSet: true}, nil, domain.ErrCodeInvalidArgs},
		{"expiry", CLIArgs{TargetDir: ".", CacheExpiryDays: -1, CacheExpiryDaysSet: true}, nil, domain.ErrCodeInvalidArgs},
		{"proxy", CLIArgs{TargetDir: "."}, func(e EnvConfig) EnvConfig { e.ProxyURL = "127.0.0.1:8080"; return e }, domain.ErrCodeInvalidArgs},
		{"base url", CLIArgs{TargetDir: "."}, func(e EnvConfig) EnvConfig { e.AniDBBaseURL = "ftp://x"; return e }, domain.ErrCodeInvalidArgs},
	}
	for _, tc := range cases {
		e := ec
		if tc.ec != nil {
			e = tc.ec(e)
		}
		_, err := Merge(cwd, tc.cli, e)
		if Code(err) != tc.code {
			t.Fatalf("%s：期望 %q，实际 err=%v", tc.name, tc.code, err)
		}
		if domain.Code(err) != tc.code {
			t.Fatalf("%s：domain.Code 应与 config.Code 一致，实际 %q", tc.name, domain.Code(err))
		}
	}
}

func TestMerge_RevertWithoutTargetDir(t *testing.T) {
	cwd := t.TempDir()
	ec, err := LoadEnv(cwd, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	eff, err := Merge(cwd, CLIArgs{RevertFile: "anidir-history-20260101-000000.json"}, ec)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.TargetDir != "" {
		t.Fatalf("未指定目录时 TargetDir 应为空，实际 %q", eff.TargetDir)
	}
	if eff.RevertFile != filepath.Join(cwd, "anidir-history-20260101-000000.json") {
		t.Fatalf("RevertFile 应为绝对路径，实际 %q", eff.RevertFile)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
