package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Key 表示请求身份：方法 + 去掉片段的绝对 URL。相关请求头由 Entry.Vary 另行校验。
type Key struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// KeyFor 根据请求生成确定性的 Key，scheme 与 host 统一小写。
func KeyFor(req *http.Request) Key {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	return Key{Method: method, URL: normalizeURL(req.URL)}
}

// String 生成形如 "GET https://library.vesiron.tech/index.html" 的键字符串。
func (k Key) String() string {
	return fmt.Sprintf("%s %s", k.Method, k.URL)
}

// ParseKey 是 String 的逆过程，供后端从持久化的键字符串恢复 Key。
func ParseKey(raw string) (Key, error) {
	method, rawURL, ok := strings.Cut(raw, " ")
	if !ok || method == "" || rawURL == "" {
		return Key{}, fmt.Errorf("%w: malformed key %q", ErrInvalidEntry, raw)
	}
	return Key{Method: method, URL: rawURL}, nil
}

func normalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clone := *u
	clone.Fragment = ""
	clone.RawFragment = ""
	clone.Scheme = strings.ToLower(clone.Scheme)
	clone.Host = strings.ToLower(clone.Host)
	if clone.Path == "" && clone.Host != "" {
		clone.Path = "/"
	}
	return clone.String()
}
