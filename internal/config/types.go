package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的缓存仓后端。
const (
	BackendDisk   = "disk"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// GlobalConfig 描述进程级运行参数：监听端口、日志与源站。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	Origin          string   `mapstructure:"Origin"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// WorkerConfig 对应浏览器 Service Worker 的全部可调项：版本标签、预缓存清单与分类规则。
type WorkerConfig struct {
	CacheVersion        string   `mapstructure:"CacheVersion"`
	CachePrefix         string   `mapstructure:"CachePrefix"`
	OfflinePage         string   `mapstructure:"OfflinePage"`
	ScriptPath          string   `mapstructure:"ScriptPath"`
	ManifestPath        string   `mapstructure:"ManifestPath"`
	APIPrefix           string   `mapstructure:"APIPrefix"`
	DocumentSuffix      string   `mapstructure:"DocumentSuffix"`
	DocumentMediaType   string   `mapstructure:"DocumentMediaType"`
	Precache            []string `mapstructure:"Precache"`
	PrecacheConcurrency int      `mapstructure:"PrecacheConcurrency"`
	UpdateInterval      Duration `mapstructure:"UpdateInterval"`
}

// StorageConfig 选择缓存仓后端，disk 使用 Path，redis 使用 Redis* 字段。
type StorageConfig struct {
	Backend       string `mapstructure:"Backend"`
	Path          string `mapstructure:"Path"`
	RedisAddr     string `mapstructure:"RedisAddr"`
	RedisPassword string `mapstructure:"RedisPassword"`
	RedisDB       int    `mapstructure:"RedisDB"`
	RedisPrefix   string `mapstructure:"RedisPrefix"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Worker  WorkerConfig  `mapstructure:"Worker"`
	Storage StorageConfig `mapstructure:"Storage"`
}

// CacheName 返回当前版本对应的缓存仓名称，例如 vesiron-tech-library-v1.0.2。
func (c *Config) CacheName() string {
	return CacheNameFor(c.Worker.CachePrefix, c.Worker.CacheVersion)
}

// CacheNameFor 拼接前缀与版本标签。
func CacheNameFor(prefix, version string) string {
	if prefix == "" {
		return version
	}
	return prefix + "-" + version
}

// HasPrecacheEntry 判断某个路径是否在预缓存清单内。
func (w WorkerConfig) HasPrecacheEntry(path string) bool {
	for _, entry := range w.Precache {
		if entry == path {
			return true
		}
	}
	return false
}
