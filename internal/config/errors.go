package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig 是所有语义校验失败的根错误，调用方可用 errors.Is 区分读取失败与校验失败。
var ErrInvalidConfig = errors.New("invalid config")

// FieldError 指出出错的字段路径（如 Worker.Precache[3]）与原因。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e FieldError) Unwrap() error {
	return ErrInvalidConfig
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

func precacheField(idx int) string {
	return fmt.Sprintf("Worker.Precache[%d]", idx)
}
