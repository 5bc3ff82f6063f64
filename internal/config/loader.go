package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/vesiron/library-edge/internal/version"
)

// EnvPrefix 是环境变量覆盖的前缀，键中的 . 换成 _，例如
// LIBRARY_EDGE_ORIGIN、LIBRARY_EDGE_WORKER_CACHEVERSION、LIBRARY_EDGE_STORAGE_BACKEND。
const EnvPrefix = "LIBRARY_EDGE"

// Load 读取 TOML 配置，叠加默认值与环境变量覆盖后执行校验。
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	return decode(v)
}

// newViper 构建 Load 与 Watch 共用的 viper 实例。
func newViper(path string) *viper.Viper {
	if path == "" {
		path = "config.toml"
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// decode 将 viper 中的原始键值映射为 Config，Load 与 Watch 共用。
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyWorkerDefaults(&cfg.Worker)
	applyStorageDefaults(&cfg.Storage)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == BackendDisk {
		absStorage, err := filepath.Abs(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Storage.Path = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("UpstreamTimeout", 0)
	// 没有默认值的键也要登记，AutomaticEnv 才能在 Unmarshal 时覆盖它们。
	v.SetDefault("Origin", "")
	v.SetDefault("Worker.Precache", []string{})
	v.SetDefault("Storage.RedisAddr", "")
	v.SetDefault("Storage.RedisPassword", "")
	v.SetDefault("Storage.RedisDB", 0)

	v.SetDefault("Worker.CacheVersion", version.CacheVersion)
	v.SetDefault("Worker.CachePrefix", "vesiron-tech-library")
	v.SetDefault("Worker.OfflinePage", "/offline.html")
	v.SetDefault("Worker.ScriptPath", "/service-worker.js")
	v.SetDefault("Worker.ManifestPath", "/manifest.webmanifest")
	v.SetDefault("Worker.APIPrefix", "/api/")
	v.SetDefault("Worker.DocumentSuffix", ".pdf")
	v.SetDefault("Worker.DocumentMediaType", "application/pdf")
	v.SetDefault("Worker.PrecacheConcurrency", 6)
	v.SetDefault("Worker.UpdateInterval", "1h")

	v.SetDefault("Storage.Backend", BackendDisk)
	v.SetDefault("Storage.Path", "./storage")
	v.SetDefault("Storage.RedisPrefix", "library-edge")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	g.Origin = strings.TrimRight(strings.TrimSpace(g.Origin), "/")
}

func applyWorkerDefaults(w *WorkerConfig) {
	w.CacheVersion = strings.TrimSpace(w.CacheVersion)
	if w.CacheVersion == "" {
		w.CacheVersion = version.CacheVersion
	}
	if len(w.Precache) == 0 {
		w.Precache = DefaultPrecache()
	}
	if w.PrecacheConcurrency <= 0 {
		w.PrecacheConcurrency = 6
	}
	if w.UpdateInterval.DurationValue() < 0 {
		w.UpdateInterval = Duration(0)
	}
	w.DocumentSuffix = strings.ToLower(w.DocumentSuffix)
	w.DocumentMediaType = strings.ToLower(w.DocumentMediaType)
}

func applyStorageDefaults(s *StorageConfig) {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = BackendDisk
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
