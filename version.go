package main

import (
	"fmt"
	"runtime"

	"github.com/vesiron/library-edge/internal/version"
)

// printVersion 输出构建版本、提交、缓存版本标签与 Go 运行时版本。
func printVersion() {
	fmt.Fprintf(stdOut, "%s %s/%s %s\n", version.Full(), runtime.GOOS, runtime.GOARCH, runtime.Version())
}
