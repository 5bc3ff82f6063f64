// Package lifecycle 管理缓存版本的安装与激活：预缓存清单、旧版本清理、
// worker 状态机以及版本更新。激活后的缓存仓通过 Controller.Current 交给请求分发器。
package lifecycle
