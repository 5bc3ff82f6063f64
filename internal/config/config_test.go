package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ListenPort != 5000 {
		t.Fatalf("ListenPort 应当被解析，得到 %d", cfg.Global.ListenPort)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 15*time.Second {
		t.Fatalf("UpstreamTimeout 解析错误: %s", cfg.Global.UpstreamTimeout.DurationValue())
	}
	if cfg.Worker.OfflinePage != "/offline.html" {
		t.Fatalf("OfflinePage 默认值错误: %s", cfg.Worker.OfflinePage)
	}
	if len(cfg.Worker.Precache) != 28 {
		t.Fatalf("默认预缓存清单应包含 28 项，得到 %d", len(cfg.Worker.Precache))
	}
	if cfg.CacheName() != "vesiron-tech-library-v1.0.2" {
		t.Fatalf("缓存仓名称错误: %s", cfg.CacheName())
	}
	if cfg.Worker.UpdateInterval.DurationValue() != time.Hour {
		t.Fatalf("UpdateInterval 默认应为 1h，得到 %s", cfg.Worker.UpdateInterval.DurationValue())
	}
	if cfg.Storage.Path == "" || cfg.Storage.Path[0] != '/' {
		t.Fatalf("disk 路径应被转换为绝对路径: %s", cfg.Storage.Path)
	}
}

func TestLoadMemoryBackendWithCustomManifest(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "memory.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("期望 memory 后端，得到 %s", cfg.Storage.Backend)
	}
	if len(cfg.Worker.Precache) != 3 {
		t.Fatalf("自定义清单应覆盖默认值，得到 %v", cfg.Worker.Precache)
	}
	if cfg.CacheName() != "vesiron-tech-library-v1.0.1" {
		t.Fatalf("缓存仓名称错误: %s", cfg.CacheName())
	}
}

func TestValidateRejectsMissingOrigin(t *testing.T) {
	_, err := Load(testConfigPath(t, "missing.toml"))
	if err == nil {
		t.Fatalf("缺少 Origin 的配置应返回错误")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("校验失败应可用 ErrInvalidConfig 识别，得到 %v", err)
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateRequiresOfflinePageInManifest(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.Precache = []string{"/", "/index.html"}

	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("期望 FieldError，得到 %v", err)
	}
	if fieldErr.Field != "Worker.OfflinePage" {
		t.Fatalf("字段路径错误: %s", fieldErr.Field)
	}
}

func TestValidateWorkerFields(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*Config)
		shouldErr bool
	}{
		{"default ok", func(*Config) {}, false},
		{"empty version", func(c *Config) { c.Worker.CacheVersion = "" }, true},
		{"version with slash", func(c *Config) { c.Worker.CacheVersion = "v1/2" }, true},
		{"relative api prefix", func(c *Config) { c.Worker.APIPrefix = "api/" }, true},
		{"duplicate precache", func(c *Config) { c.Worker.Precache = append(c.Worker.Precache, "/") }, true},
		{"precache with query", func(c *Config) { c.Worker.Precache = append(c.Worker.Precache, "/a?b=1") }, true},
		{"no document rule", func(c *Config) { c.Worker.DocumentSuffix = ""; c.Worker.DocumentMediaType = "" }, true},
		{"suffix only", func(c *Config) { c.Worker.DocumentMediaType = "" }, false},
		{"zero concurrency", func(c *Config) { c.Worker.PrecacheConcurrency = 0 }, true},
		{"origin with path", func(c *Config) { c.Global.Origin = "https://library.vesiron.tech/app" }, true},
		{"origin ftp", func(c *Config) { c.Global.Origin = "ftp://library.vesiron.tech" }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for %s: %v", tc.name, err)
			}
		})
	}
}

func TestValidateStorageBackends(t *testing.T) {
	testCases := []struct {
		name      string
		storage   StorageConfig
		shouldErr bool
	}{
		{"disk ok", StorageConfig{Backend: BackendDisk, Path: "./data"}, false},
		{"disk missing path", StorageConfig{Backend: BackendDisk}, true},
		{"memory ok", StorageConfig{Backend: BackendMemory}, false},
		{"redis ok", StorageConfig{Backend: BackendRedis, RedisAddr: "127.0.0.1:6379"}, false},
		{"redis missing addr", StorageConfig{Backend: BackendRedis}, true},
		{"unsupported", StorageConfig{Backend: "s3"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Storage = tc.storage
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for backend %q", tc.storage.Backend)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for backend %q: %v", tc.storage.Backend, err)
			}
		})
	}
}

func TestCacheNameFor(t *testing.T) {
	if got := CacheNameFor("", "v1.0.2"); got != "v1.0.2" {
		t.Fatalf("空前缀应只返回版本，得到 %s", got)
	}
	if got := CacheNameFor("vesiron-tech-library", "v1.0.1"); got != "vesiron-tech-library-v1.0.1" {
		t.Fatalf("拼接错误: %s", got)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort: 5000,
			LogLevel:   "info",
			Origin:     "https://library.vesiron.tech",
		},
		Worker: WorkerConfig{
			CacheVersion:        "v1.0.2",
			CachePrefix:         "vesiron-tech-library",
			OfflinePage:         "/offline.html",
			ScriptPath:          "/service-worker.js",
			ManifestPath:        "/manifest.webmanifest",
			APIPrefix:           "/api/",
			DocumentSuffix:      ".pdf",
			DocumentMediaType:   "application/pdf",
			Precache:            []string{"/", "/index.html", "/offline.html"},
			PrecacheConcurrency: 4,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
	}
}
