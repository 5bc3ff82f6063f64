package strategy

import (
	"context"
	"net/http"
)

// documentStrategy 对 PDF 等文档采用 cache-first：命中直接返回，未命中回源且 200 时写入。
type documentStrategy struct{}

func (documentStrategy) Kind() Kind { return KindDocument }

func (documentStrategy) Handle(ctx context.Context, ex *Exchange, req *http.Request) (*http.Response, Source) {
	if entry := ex.Lookup(ctx, req); entry != nil {
		return entry.Response(req), SourceCache
	}

	resp, err := ex.Fetch(ctx, req)
	if err != nil {
		if ex.Navigation {
			return ex.Offline(ctx, req)
		}
		return Synthetic(req, http.StatusServiceUnavailable, "", "text/plain", "PDF unavailable offline"), SourceSynthetic
	}
	if resp.StatusCode == http.StatusOK {
		ex.Put(ctx, req, resp)
	}
	return resp, SourceNetwork
}
