package strategy

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Strategy 针对某一类请求产出响应。Handle 永远返回有效响应，网络失败由策略自行兜底。
type Strategy interface {
	Kind() Kind
	Handle(ctx context.Context, ex *Exchange, req *http.Request) (*http.Response, Source)
}

// Registry 维护 Kind -> Strategy 映射。
type Registry struct {
	mu         sync.RWMutex
	strategies map[Kind]Strategy
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[Kind]Strategy)}
}

// DefaultRegistry 返回注册了文档、动态数据、静态资源三种策略的注册表。
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(documentStrategy{})
	r.MustRegister(revalidateStrategy{})
	r.MustRegister(staticStrategy{})
	return r
}

// Register 加入策略，重复 Kind 会返回错误。
func (r *Registry) Register(s Strategy) error {
	if s == nil || s.Kind() == "" {
		return fmt.Errorf("strategy kind is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[s.Kind()]; exists {
		return fmt.Errorf("strategy %s already registered", s.Kind())
	}
	r.strategies[s.Kind()] = s
	return nil
}

// MustRegister 在注册失败时 panic。
func (r *Registry) MustRegister(s Strategy) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Resolve 返回指定类别的策略。
func (r *Registry) Resolve(kind Kind) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[kind]
	return s, ok
}

// Kinds 返回已注册类别，按字典序排列。
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.strategies))
	for kind := range r.strategies {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
