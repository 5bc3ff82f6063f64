package strategy

import (
	"context"
	"io"
	"net/http"

	"github.com/vesiron/library-edge/internal/metrics"
)

// revalidateStrategy 对 API 数据采用 stale-while-revalidate。
// 有缓存时立即返回并在后台刷新；无缓存时等待网络结果。两种情况都只发起一次回源。
type revalidateStrategy struct{}

func (revalidateStrategy) Kind() Kind { return KindDynamic }

func (revalidateStrategy) Handle(ctx context.Context, ex *Exchange, req *http.Request) (*http.Response, Source) {
	if entry := ex.Lookup(ctx, req); entry != nil {
		background := req.Clone(context.WithoutCancel(ctx))
		ex.Go(func(ctx context.Context) {
			revalidate(ctx, ex, background.WithContext(ctx))
		})
		return entry.Response(req), SourceCache
	}

	resp, err := ex.Fetch(ctx, req)
	if err != nil {
		ex.logger.WithError(err).WithField("action", "dispatch").
			WithField("path", req.URL.Path).Warn("network_fetch_failed")
		return Synthetic(req, http.StatusServiceUnavailable, "", "text/plain", "Network error"), SourceSynthetic
	}
	if resp.StatusCode == http.StatusOK {
		ex.Put(ctx, req, resp)
	}
	return resp, SourceNetwork
}

// revalidate 在后台回源，200 时覆盖缓存条目，失败只记录日志。
func revalidate(ctx context.Context, ex *Exchange, req *http.Request) {
	logger := ex.logger.WithField("action", "revalidate").WithField("path", req.URL.Path)

	resp, err := ex.Fetch(ctx, req)
	if err != nil {
		metrics.Revalidations.WithLabelValues("failed").Inc()
		logger.WithError(err).Warn("revalidate_failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.Revalidations.WithLabelValues("skipped").Inc()
		logger.WithField("upstream_status", resp.StatusCode).Debug("revalidate_skipped")
		return
	}
	if !ex.Put(ctx, req, resp) {
		metrics.Revalidations.WithLabelValues("failed").Inc()
		return
	}
	metrics.Revalidations.WithLabelValues("updated").Inc()
	logger.Debug("revalidate_updated")
}
