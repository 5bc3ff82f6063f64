package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vesiron/library-edge/internal/cache"
)

// Source 表示响应的实际来源。
type Source string

const (
	SourceCache       Source = "cache"
	SourceNetwork     Source = "network"
	SourceFallback    Source = "fallback"
	SourceSynthetic   Source = "synthetic"
	SourcePassthrough Source = "passthrough"
)

// Exchange 是单个被拦截请求的执行环境：当前缓存仓、网络与后台任务调度。
type Exchange struct {
	Store      cache.Store
	Navigation bool

	writer     cache.Writer
	fetcher    Fetcher
	origin     *url.URL
	rules      Rules
	logger     *logrus.Logger
	background func(fn func(ctx context.Context))
}

// Lookup 在当前缓存仓中查找请求，未命中或后端出错都返回 nil。
func (ex *Exchange) Lookup(ctx context.Context, req *http.Request) *cache.Entry {
	if ex.Store == nil {
		return nil
	}
	entry, err := ex.Store.Match(ctx, req)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			ex.logger.WithError(err).WithFields(logrus.Fields{
				"action":     "dispatch",
				"cache_name": ex.Store.Name(),
				"key":        cache.KeyFor(req).String(),
			}).Warn("cache_match_failed")
		}
		return nil
	}
	return entry
}

// Fetch 回源并读完正文。正文读取中断视同网络失败，调用方走各自的降级路径。
func (ex *Exchange) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := ex.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read origin body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

// Put 缓冲响应正文并写入缓存仓，resp 之后仍可返回给客户端。
func (ex *Exchange) Put(ctx context.Context, req *http.Request, resp *http.Response) bool {
	entry, err := cache.NewEntry(req, resp, ex.TypeOf(resp))
	if err != nil {
		ex.logger.WithError(err).WithField("action", "cache_write").Warn("cache_entry_build_failed")
		return false
	}
	return ex.writer.Put(ctx, entry)
}

// TypeOf 返回响应类型（basic/cors/opaque）。
func (ex *Exchange) TypeOf(resp *http.Response) cache.ResponseType {
	return cache.TypeOf(ex.origin, resp)
}

// Go 调度一个不随请求取消的后台任务。
func (ex *Exchange) Go(fn func(ctx context.Context)) {
	ex.background(fn)
}

// Offline 返回缓存的离线页面；离线页面也不在缓存中时返回 503 HTML。
func (ex *Exchange) Offline(ctx context.Context, req *http.Request) (*http.Response, Source) {
	if target, err := ex.origin.Parse(ex.rules.OfflinePage); err == nil {
		offlineReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err == nil {
			if entry := ex.Lookup(ctx, offlineReq); entry != nil {
				return entry.Response(req), SourceFallback
			}
		}
	}
	return Synthetic(req, http.StatusServiceUnavailable, "", "text/html", "Offline"), SourceSynthetic
}

// Synthetic 构造边缘节点自身产出的响应。statusText 为空时只返回状态码。
func Synthetic(req *http.Request, status int, statusText, contentType, body string) *http.Response {
	line := fmt.Sprintf("%d", status)
	if statusText != "" {
		line += " " + statusText
	}
	return &http.Response{
		Status:        line,
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{contentType}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// StatusText 返回 resp.Status 中状态码之后的原因短语。
func StatusText(resp *http.Response) string {
	_, text, _ := strings.Cut(resp.Status, " ")
	return text
}
