package cache

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrNotCacheable 表示条目状态码不属于成功响应，拒绝写入。
var ErrNotCacheable = errors.New("response is not cacheable")

// Writer 在 Store 之上统一"仅写入成功响应"的约束；写入失败只记录日志，不向调用方暴露。
type Writer struct {
	store  Store
	logger *logrus.Logger
}

// NewWriter 构造写入器，store 为空时 Put 一律返回 false。
func NewWriter(store Store, logger *logrus.Logger) Writer {
	return Writer{store: store, logger: logger}
}

// Put 写入成功响应并返回是否真正落盘，错误已在内部记录。
func (w Writer) Put(ctx context.Context, entry *Entry) bool {
	err := w.put(ctx, entry)
	if err == nil {
		return true
	}
	if w.logger != nil && !errors.Is(err, ErrNotCacheable) {
		fields := logrus.Fields{"action": "cache_write"}
		if entry != nil {
			fields["key"] = entry.Key.String()
		}
		if w.store != nil {
			fields["cache_name"] = w.store.Name()
		}
		w.logger.WithError(err).WithFields(fields).Warn("cache_write_failed")
	}
	return false
}

func (w Writer) put(ctx context.Context, entry *Entry) error {
	if w.store == nil {
		return ErrStoreUnavailable
	}
	if entry == nil || !entry.OK() {
		return ErrNotCacheable
	}
	return w.store.Put(ctx, entry)
}
