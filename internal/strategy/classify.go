package strategy

import (
	"net/http"
	"strings"
)

// Kind 是请求类别，每个被拦截的请求恰好属于其中之一。
type Kind string

const (
	KindDocument Kind = "document"
	KindDynamic  Kind = "dynamic"
	KindStatic   Kind = "static"
)

// Rules 描述分类与拦截所需的路径规则。
type Rules struct {
	APIPrefix         string
	DocumentSuffix    string
	DocumentMediaType string
	OfflinePage       string
	ScriptPath        string
}

// DefaultRules 返回站点默认规则。
func DefaultRules() Rules {
	return Rules{
		APIPrefix:         "/api/",
		DocumentSuffix:    ".pdf",
		DocumentMediaType: "application/pdf",
		OfflinePage:       "/offline.html",
		ScriptPath:        "/service-worker.js",
	}
}

// Classify 按优先级判定类别：文档 > 动态数据 > 静态资源。
func Classify(req *http.Request, rules Rules) Kind {
	path := req.URL.Path
	switch {
	case rules.DocumentSuffix != "" && strings.HasSuffix(path, rules.DocumentSuffix),
		rules.DocumentMediaType != "" && strings.Contains(req.Header.Get("Accept"), rules.DocumentMediaType):
		return KindDocument
	case rules.APIPrefix != "" && strings.HasPrefix(path, rules.APIPrefix),
		IsGenericFetch(req):
		return KindDynamic
	default:
		return KindStatic
	}
}

// IsNavigation 判断是否为页面导航请求。缺少 Fetch Metadata 时退化为检查 Accept。
func IsNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return strings.EqualFold(mode, "navigate")
	}
	return req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html")
}

// IsGenericFetch 判断是否为脚本发起的 fetch()/XHR 请求。
func IsGenericFetch(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Sec-Fetch-Dest"), "empty")
}
