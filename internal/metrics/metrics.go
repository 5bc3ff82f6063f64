// Package metrics 汇总边缘缓存的 Prometheus 指标，均注册在默认 Registry 上，
// 由 /-/metrics 诊断接口统一暴露。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOperations 按操作（match/put/delete/open/drop）与结果（hit/miss/ok/error）计数。
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_edge_cache_operations_total",
			Help: "Total number of cache store operations",
		},
		[]string{"backend", "operation", "result"},
	)

	// StrategyResponses 记录每种策略最终从哪里产出响应。
	StrategyResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_edge_strategy_responses_total",
			Help: "Total number of dispatched responses by strategy and source",
		},
		[]string{"strategy", "source"},
	)

	// Revalidations 记录 stale-while-revalidate 后台刷新结果。
	Revalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_edge_revalidations_total",
			Help: "Total number of background revalidations by result",
		},
		[]string{"result"}, // "updated", "skipped", "failed"
	)

	// LifecycleTransitions 记录 worker 状态迁移。
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_edge_lifecycle_transitions_total",
			Help: "Total number of worker lifecycle state transitions",
		},
		[]string{"state"},
	)

	// PrecacheEntries 记录安装阶段每个清单条目的结果。
	PrecacheEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_edge_precache_entries_total",
			Help: "Total number of precache manifest entries by result",
		},
		[]string{"result"}, // "cached", "failed"
	)

	// StoresDeleted 记录激活阶段清理掉的旧版本缓存仓数量。
	StoresDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_edge_stores_deleted_total",
			Help: "Total number of stale cache stores deleted on activation",
		},
	)

	// ActiveVersion 以 version 标签暴露当前激活的缓存版本，值恒为 1。
	ActiveVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_edge_active_cache_version",
			Help: "Currently active cache version (value is always 1)",
		},
		[]string{"version", "cache_name"},
	)
)

// SetActiveVersion 重置 ActiveVersion，保证同一时刻只有一个版本标签为 1。
func SetActiveVersion(version, cacheName string) {
	ActiveVersion.Reset()
	ActiveVersion.WithLabelValues(version, cacheName).Set(1)
}
