package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ResponseType 对应 Fetch 规范中的 Response.type。
type ResponseType string

const (
	// TypeBasic 表示响应来自源站本身（同源）。
	TypeBasic ResponseType = "basic"
	// TypeCORS 表示重定向到其他站点，且对方允许跨域读取。
	TypeCORS ResponseType = "cors"
	// TypeOpaque 表示重定向到其他站点且未声明 CORS，内容不可信任地缓存。
	TypeOpaque ResponseType = "opaque"
)

// unforwardedHeaders 是回源前会被剥离的请求头。源站从未见过它们的取值，
// 所以即使响应 Vary 中列出，也不参与匹配。
var unforwardedHeaders = []string{"Accept-Encoding"}

// UnforwardedHeaders 返回回源前必须剥离的请求头。
func UnforwardedHeaders() []string {
	return append([]string(nil), unforwardedHeaders...)
}

func isUnforwarded(name string) bool {
	for _, h := range unforwardedHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// Entry 是一条完整的缓存响应。Body 在写入时已完全缓冲，读取方每次获得独立的 Reader。
type Entry struct {
	Key      Key               `json:"key"`
	Status   int               `json:"status"`
	Header   http.Header       `json:"header"`
	Body     []byte            `json:"body"`
	Type     ResponseType      `json:"type"`
	Vary     map[string]string `json:"vary,omitempty"`
	VaryAll  bool              `json:"vary_all,omitempty"`
	StoredAt time.Time         `json:"stored_at"`
}

// NewEntry 读取 resp 的全部正文生成条目，并把 resp.Body 替换为等价的新 Reader，
// 调用方仍可把 resp 原样返回给客户端（相当于 Response.clone()）。
func NewEntry(req *http.Request, resp *http.Response, typ ResponseType) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", ErrInvalidEntry)
	}

	var body []byte
	if resp.Body != nil {
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			resp.Body = io.NopCloser(bytes.NewReader(data))
			resp.ContentLength = int64(len(data))
			return nil, fmt.Errorf("read response body: %w", err)
		}
		body = data
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	entry := &Entry{
		Key:      KeyFor(req),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		Type:     typ,
		StoredAt: time.Now().UTC(),
	}
	if entry.Header == nil {
		entry.Header = http.Header{}
	}
	entry.captureVary(req)
	return entry, nil
}

// captureVary 记录响应 Vary 头中列出的请求头取值，供之后的 Match 比较。
func (e *Entry) captureVary(req *http.Request) {
	for _, raw := range e.Header.Values("Vary") {
		for _, name := range strings.Split(raw, ",") {
			name = http.CanonicalHeaderKey(strings.TrimSpace(name))
			switch name {
			case "":
				continue
			case "*":
				e.VaryAll = true
				continue
			}
			if isUnforwarded(name) {
				continue
			}
			if e.Vary == nil {
				e.Vary = make(map[string]string)
			}
			e.Vary[name] = req.Header.Get(name)
		}
	}
}

// Matches 判断请求是否命中该条目：键一致，且 Vary 列出的请求头取值一致。
func (e *Entry) Matches(req *http.Request) bool {
	if e.VaryAll {
		return false
	}
	if e.Key != KeyFor(req) {
		return false
	}
	for name, value := range e.Vary {
		if isUnforwarded(name) {
			continue
		}
		if req.Header.Get(name) != value {
			return false
		}
	}
	return true
}

// OK 对应 Response.ok：状态码在 200-299。
func (e *Entry) OK() bool {
	return e.Status >= 200 && e.Status <= 299
}

// Response 以条目内容构造一个全新的 *http.Response。
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Clone 返回深拷贝，内存后端用它隔离调用方的修改。
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Header = e.Header.Clone()
	clone.Body = append([]byte(nil), e.Body...)
	if e.Vary != nil {
		clone.Vary = make(map[string]string, len(e.Vary))
		for k, v := range e.Vary {
			clone.Vary[k] = v
		}
	}
	return &clone
}

// TypeOf 根据最终响应 URL（跟随重定向后）判断响应类型。
func TypeOf(origin *url.URL, resp *http.Response) ResponseType {
	if resp == nil || resp.Request == nil || resp.Request.URL == nil || origin == nil {
		return TypeBasic
	}
	final := resp.Request.URL
	if strings.EqualFold(final.Scheme, origin.Scheme) && strings.EqualFold(final.Host, origin.Host) {
		return TypeBasic
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		return TypeCORS
	}
	return TypeOpaque
}
