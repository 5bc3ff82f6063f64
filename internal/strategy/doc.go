// Package strategy 实现请求分发：判定请求类别（文档、动态数据、静态资源），
// 经注册表找到对应的缓存策略，并在网络不可用时给出离线兜底响应。
package strategy
