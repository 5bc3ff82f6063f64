package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/vesiron/library-edge/internal/cache"
	"github.com/vesiron/library-edge/internal/server"
)

// Origin 是"网络"：把请求原样转发到 PWA 源站，跟随重定向后的最终 URL 保留在 resp.Request 中。
type Origin struct {
	client *http.Client
	base   *url.URL
}

// NewOrigin 构造回源 Fetcher，base 必须是 http(s) 绝对地址。
func NewOrigin(client *http.Client, base *url.URL) (*Origin, error) {
	if client == nil {
		return nil, errors.New("http client required")
	}
	if base == nil || base.Host == "" {
		return nil, errors.New("origin url required")
	}
	return &Origin{client: client, base: base}, nil
}

// Fetch 发起回源请求。请求 URL 不在源站上时，scheme 与 host 会被改写为源站。
func (o *Origin) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""

	target := *req.URL
	if !strings.EqualFold(target.Host, o.base.Host) || !strings.EqualFold(target.Scheme, o.base.Scheme) {
		target.Scheme = o.base.Scheme
		target.Host = o.base.Host
	}
	out.URL = &target
	out.Host = o.base.Host

	out.Header = http.Header{}
	server.CopyHeaders(out.Header, req.Header)
	for _, name := range cache.UnforwardedHeaders() {
		out.Header.Del(name)
	}
	out.Header.Del("Host")

	return o.client.Do(out)
}
