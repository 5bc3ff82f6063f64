// Package cache 实现按版本命名的缓存仓（Cache Storage 语义）：一个 Storage 管理多个
// 以名称隔离的 Store，Store 内部以请求身份（方法 + URL + Vary 相关请求头）为键保存
// 完整响应。后端可选磁盘（临时文件 + rename 原子写入）、进程内存（go-cache）以及
// Redis（每个仓一个 hash），由 NewStorage 按配置选择。生命周期控制器负责创建与
// 删除整个仓，请求分发器只负责在当前仓内读写条目。
package cache
