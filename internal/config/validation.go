package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedBackends = map[string]struct{}{
	BackendDisk:   {},
	BackendMemory: {},
	BackendRedis:  {},
}

const supportedBackendList = "disk|memory|redis"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if err := validateOrigin(g.Origin); err != nil {
		return newFieldError("Global.Origin", err.Error())
	}
	if g.UpstreamTimeout.DurationValue() < 0 {
		return newFieldError("Global.UpstreamTimeout", "不能为负数")
	}

	if err := c.Worker.validate(); err != nil {
		return err
	}
	return c.Storage.validate()
}

func (w WorkerConfig) validate() error {
	if w.CacheVersion == "" {
		return newFieldError("Worker.CacheVersion", "不能为空")
	}
	if strings.ContainsAny(w.CacheVersion, "/ ") {
		return newFieldError("Worker.CacheVersion", "不允许包含空格或 /")
	}
	if strings.ContainsAny(w.CachePrefix, "/ ") {
		return newFieldError("Worker.CachePrefix", "不允许包含空格或 /")
	}

	pathFields := []struct {
		field string
		value string
	}{
		{"Worker.OfflinePage", w.OfflinePage},
		{"Worker.ScriptPath", w.ScriptPath},
		{"Worker.APIPrefix", w.APIPrefix},
	}
	for _, pf := range pathFields {
		if err := validatePath(pf.value); err != nil {
			return newFieldError(pf.field, err.Error())
		}
	}
	if w.ManifestPath != "" {
		if err := validatePath(w.ManifestPath); err != nil {
			return newFieldError("Worker.ManifestPath", err.Error())
		}
	}
	if w.DocumentSuffix == "" && w.DocumentMediaType == "" {
		return newFieldError("Worker.DocumentSuffix/DocumentMediaType", "至少需要提供一个")
	}

	if len(w.Precache) == 0 {
		return newFieldError("Worker.Precache", "不能为空")
	}
	seen := make(map[string]struct{}, len(w.Precache))
	for i, entry := range w.Precache {
		if err := validatePath(entry); err != nil {
			return newFieldError(precacheField(i), err.Error())
		}
		if _, exists := seen[entry]; exists {
			return newFieldError(precacheField(i), "重复")
		}
		seen[entry] = struct{}{}
	}
	// 离线兜底页只能从缓存中取得，因此必须被预缓存。
	if !w.HasPrecacheEntry(w.OfflinePage) {
		return newFieldError("Worker.OfflinePage", "必须包含在 Worker.Precache 中")
	}
	if w.PrecacheConcurrency <= 0 {
		return newFieldError("Worker.PrecacheConcurrency", "必须大于 0")
	}
	return nil
}

func (s StorageConfig) validate() error {
	if _, ok := supportedBackends[s.Backend]; !ok {
		return newFieldError("Storage.Backend", "仅支持 "+supportedBackendList)
	}
	switch s.Backend {
	case BackendDisk:
		if s.Path == "" {
			return newFieldError("Storage.Path", "disk 后端不能为空")
		}
	case BackendRedis:
		if s.RedisAddr == "" {
			return newFieldError("Storage.RedisAddr", "redis 后端不能为空")
		}
		if s.RedisDB < 0 {
			return newFieldError("Storage.RedisDB", "不能为负数")
		}
	}
	return nil
}

func validatePath(p string) error {
	if p == "" {
		return errors.New("不能为空")
	}
	if !strings.HasPrefix(p, "/") {
		return errors.New("必须以 / 开头")
	}
	if strings.ContainsAny(p, " ?#") {
		return errors.New("不允许包含空格、查询串或片段")
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("源站不应包含路径: %s", raw)
	}
	return nil
}
