package config

import "fmt"

// DefaultPrecache 返回默认预缓存清单：站点壳、离线页、图标、示例 PDF 以及全部专利页面。
func DefaultPrecache() []string {
	paths := []string{
		"/",
		"/index.html",
		"/styles.css",
		"/app.js",
		"/brand-overview.html",
		"/patent-index.html",
		"/document-viewer.html",
		"/offline.html",
		"/manifest.webmanifest",
		"/icons/icon-192x192.png",
		"/icons/icon-512x512.png",
		"/assets/docs/placeholder.pdf",
	}
	for _, n := range patentPages {
		paths = append(paths, fmt.Sprintf("/patents/G%d.html", n))
	}
	return paths
}

// G15-G17 尚未发布。
var patentPages = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 18, 19}
