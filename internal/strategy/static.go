package strategy

import (
	"context"
	"net/http"

	"github.com/vesiron/library-edge/internal/cache"
)

// staticStrategy 是兜底策略：cache-first，只缓存同源 200 响应。
type staticStrategy struct{}

func (staticStrategy) Kind() Kind { return KindStatic }

func (staticStrategy) Handle(ctx context.Context, ex *Exchange, req *http.Request) (*http.Response, Source) {
	if entry := ex.Lookup(ctx, req); entry != nil {
		return entry.Response(req), SourceCache
	}

	resp, err := ex.Fetch(ctx, req)
	if err != nil {
		if ex.Navigation {
			return ex.Offline(ctx, req)
		}
		return Synthetic(req, http.StatusServiceUnavailable, "Service Unavailable", "text/plain", "Resource unavailable offline"), SourceSynthetic
	}
	if resp.StatusCode == http.StatusOK && ex.TypeOf(resp) == cache.TypeBasic {
		ex.Put(ctx, req, resp)
	}
	return resp, SourceNetwork
}
