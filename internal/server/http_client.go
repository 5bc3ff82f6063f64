package server

import (
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/vesiron/library-edge/internal/config"
)

const minIdleConnsPerHost = 16

// originTransport 只面向一个源站，空闲连接数不低于预缓存并发，安装期间复用长连接。
func originTransport(cfg *config.Config) *http.Transport {
	perHost := minIdleConnsPerHost
	if cfg != nil && cfg.Worker.PrecacheConcurrency > perHost {
		perHost = cfg.Worker.PrecacheConcurrency
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          perHost * 2,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// NewUpstreamClient 返回回源共用的 http.Client。UpstreamTimeout 为 0 时不设整体超时，
// 重定向按浏览器 fetch 的默认行为跟随。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	client := &http.Client{Transport: originTransport(cfg)}
	if cfg != nil {
		if timeout := cfg.Global.UpstreamTimeout.DurationValue(); timeout > 0 {
			client.Timeout = timeout
		}
	}
	return client
}

// CopyHeaders 把 src 复制到 dst，跳过逐跳头以及 Connection 中点名的头。
func CopyHeaders(dst, src http.Header) {
	named := connectionTokens(src)
	for key, values := range src {
		if IsHopByHopHeader(key) {
			continue
		}
		if _, ok := named[textproto.CanonicalMIMEHeaderKey(key)]; ok {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// IsHopByHopHeader 判断 key 是否为 RFC 7230 §6.1 的逐跳头（含非标准的 Proxy-Connection）。
func IsHopByHopHeader(key string) bool {
	switch textproto.CanonicalMIMEHeaderKey(key) {
	case "Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
		"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade":
		return true
	}
	return false
}

func connectionTokens(h http.Header) map[string]struct{} {
	var tokens map[string]struct{}
	for _, value := range h.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if tokens == nil {
				tokens = make(map[string]struct{})
			}
			tokens[textproto.CanonicalMIMEHeaderKey(token)] = struct{}{}
		}
	}
	return tokens
}
