package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vesiron/library-edge/internal/cache"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("LIBRARY_EDGE_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}
	if opts.command != commandServe {
		t.Fatalf("不带子命令时应等同 serve，得到 %s", opts.command)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsSubcommands(t *testing.T) {
	t.Setenv("LIBRARY_EDGE_CONFIG", "")

	cases := map[string][]string{
		commandServe:       {"serve"},
		commandCheckConfig: {"check-config", "--config", "/tmp/a.toml"},
		commandStores:      {"--config", "/tmp/a.toml", "stores"},
		commandVersion:     {"version"},
	}
	for want, args := range cases {
		opts, err := parseCLIFlags(args)
		if err != nil {
			t.Fatalf("%v 解析失败: %v", args, err)
		}
		if opts.command != want {
			t.Fatalf("%v 期望命令 %s，得到 %s", args, want, opts.command)
		}
	}

	opts, err := parseCLIFlags([]string{"version"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "config.toml" {
		t.Fatalf("缺省配置路径应为 config.toml，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsRejectsUnknown(t *testing.T) {
	if _, err := parseCLIFlags([]string{"--bogus"}); err == nil {
		t.Fatalf("未知参数应返回错误")
	}
	if _, err := parseCLIFlags([]string{"serve", "extra"}); err == nil {
		t.Fatalf("多余的位置参数应返回错误")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), command: commandCheckConfig})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d: %s", code, stdErrBuffer().String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), command: commandCheckConfig})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "加载配置失败") {
		t.Fatalf("错误输出应说明原因，得到 %q", stdErrBuffer().String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{command: commandVersion})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "library-edge") {
		t.Fatalf("version 输出应包含 library-edge 标识")
	}
}

func TestRunStoresMarksCurrentVersion(t *testing.T) {
	storageDir := filepath.Join(t.TempDir(), "storage")
	storage, err := cache.NewDiskStorage(storageDir)
	if err != nil {
		t.Fatalf("创建缓存后端失败: %v", err)
	}
	for _, name := range []string{"vesiron-tech-library-v1.0.1", "vesiron-tech-library-v1.0.2"} {
		if _, err := storage.Open(context.Background(), name); err != nil {
			t.Fatalf("创建缓存仓失败: %v", err)
		}
	}

	configPath := writeConfigFile(t, fmt.Sprintf(`
Origin = "https://library.vesiron.tech"

[Worker]
CacheVersion = "v1.0.2"

[Storage]
Backend = "disk"
Path = "%s"
`, storageDir))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, command: commandStores})
	if code != 0 {
		t.Fatalf("stores 应成功退出，得到 %d: %s", code, stdErrBuffer().String())
	}
	out := stdOutBuffer().String()
	if !strings.Contains(out, "  vesiron-tech-library-v1.0.1\n") {
		t.Fatalf("旧版本缓存仓应被列出，得到 %q", out)
	}
	if !strings.Contains(out, "* vesiron-tech-library-v1.0.2") {
		t.Fatalf("当前版本应以 * 标记，得到 %q", out)
	}
}
