package lifecycle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vesiron/library-edge/internal/cache"
	"github.com/vesiron/library-edge/internal/logging"
	"github.com/vesiron/library-edge/internal/metrics"
)

// Fetcher 抽象"网络"，即回源获取响应。
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// InstallReport 汇总一次安装的预缓存结果。
type InstallReport struct {
	Version     string        `json:"version"`
	CacheName   string        `json:"cache_name"`
	Cached      int           `json:"cached"`
	Failed      int           `json:"failed"`
	FailedPaths []string      `json:"failed_paths,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

type precacher struct {
	fetcher     Fetcher
	origin      *url.URL
	concurrency int
	logger      *logrus.Logger
}

// run 并发拉取全部清单条目。单个条目失败只记录日志，不影响其他条目。
func (p precacher) run(ctx context.Context, store cache.Store, manifest Manifest, report *InstallReport) {
	var (
		group errgroup.Group
		mu    sync.Mutex
	)
	group.SetLimit(p.concurrency)

	for _, path := range manifest {
		path := path
		group.Go(func() error {
			err := p.add(ctx, store, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.FailedPaths = append(report.FailedPaths, path)
				metrics.PrecacheEntries.WithLabelValues("failed").Inc()
				p.logger.WithError(err).
					WithFields(logging.LifecycleFields("precache", report.Version, report.CacheName)).
					WithField("path", path).
					Warn("precache_entry_failed")
				return nil
			}
			report.Cached++
			metrics.PrecacheEntries.WithLabelValues("cached").Inc()
			return nil
		})
	}
	_ = group.Wait()
}

// add 等价于 Cache.add：回源后仅在 2xx 时写入。
func (p precacher) add(ctx context.Context, store cache.Store, path string) error {
	target, err := p.origin.Parse(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}

	resp, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}

	entry, err := cache.NewEntry(req, resp, cache.TypeOf(p.origin, resp))
	if err != nil {
		return err
	}
	if err := store.Put(ctx, entry); err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}
	return nil
}
