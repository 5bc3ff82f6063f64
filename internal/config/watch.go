package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watch 以 path 为配置文件启动 viper.WatchConfig，每次变更重新解析并回调。
// onChange 只会收到通过校验的配置；解析失败时回调 onError，调用方保留旧配置。
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置失败: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}
