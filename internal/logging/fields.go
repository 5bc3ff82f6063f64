package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// LifecycleFields 提供版本与缓存仓名称字段，供 install/activate 日志复用。
func LifecycleFields(action, version, cacheName string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"version":    version,
		"cache_name": cacheName,
	}
}

// RequestFields 提供策略/来源/命中状态字段，供代理请求日志复用。
func RequestFields(method, path, strategy, source, cacheName string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"method":     method,
		"path":       path,
		"strategy":   strategy,
		"source":     source,
		"cache_name": cacheName,
		"cache_hit":  cacheHit,
	}
}
