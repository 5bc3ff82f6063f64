package lifecycle

import "github.com/vesiron/library-edge/internal/config"

// Manifest 是安装阶段需要写入缓存仓的资源路径列表，顺序即预缓存顺序。
type Manifest []string

// DefaultManifest 返回内置的预缓存清单。
func DefaultManifest() Manifest {
	return Manifest(config.DefaultPrecache())
}

// Paths 返回清单的拷贝。
func (m Manifest) Paths() []string {
	return append([]string(nil), m...)
}
