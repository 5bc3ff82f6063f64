package version

import "fmt"

// Version/Commit 可在构建时通过 -ldflags 注入，默认使用开发占位符。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// CacheVersion 是构建时嵌入的缓存版本标签，修改它是让旧缓存仓全部失效的唯一途径：
//
//	go build -ldflags "-X github.com/vesiron/library-edge/internal/version.CacheVersion=v1.0.3"
var CacheVersion = "v1.0.2"

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("library-edge %s (%s) cache %s", Version, Commit, CacheVersion)
}
