package download

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/url-cache/internal/cache"
)

// Batch 并发下载一组 URL。同一缓存 key 只处理一次；仅网络错误会按退避策略重试。
type Batch struct {
	Protocol *Protocol
	Logger   *logrus.Logger
	// Workers 为并发数，小于 1 时按 1 处理。
	Workers        int
	MaxRetries     int
	InitialBackoff time.Duration
	// Force 为 true 时跳过命中检查，总是重新下载。
	Force bool
	// ContinueOnError 为 false 时首个失败会取消剩余任务。
	ContinueOnError bool
}

// Result 记录单个 URL 的处理结果。
type Result struct {
	URL string
	Key cache.Key
	Err error
}

// Summary 汇总一次批量下载。
type Summary struct {
	Results []Result
	Failed  int
}

// Run 处理 urls 并返回逐条结果。ContinueOnError 为 false 时返回首个错误。
func (b *Batch) Run(ctx context.Context, urls []string, headers http.Header) (Summary, error) {
	if b.Protocol == nil {
		return Summary{}, errors.New("batch requires a protocol")
	}
	logger := b.Logger
	if logger == nil {
		logger = b.Protocol.logger
	}

	var (
		summary Summary
		jobs    []int
		seen    = make(map[cache.Key]struct{}, len(urls))
	)
	for _, rawURL := range urls {
		key, err := cache.KeyFor(rawURL)
		if err != nil {
			summary.Results = append(summary.Results, Result{URL: rawURL, Err: err})
			summary.Failed++
			if !b.ContinueOnError {
				return summary, err
			}
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		summary.Results = append(summary.Results, Result{URL: rawURL, Key: key})
		jobs = append(jobs, len(summary.Results)-1)
	}

	workers := b.Workers
	if workers < 1 {
		workers = 1
	}

	queue := make(chan int)
	group, groupCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	group.Go(func() error {
		defer close(queue)
		for _, idx := range jobs {
			select {
			case queue <- idx:
			case <-groupCtx.Done():
				return nil
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for idx := range queue {
				mu.Lock()
				rawURL := summary.Results[idx].URL
				mu.Unlock()

				err := b.fetchOne(groupCtx, logger, rawURL, headers)

				mu.Lock()
				summary.Results[idx].Err = err
				if err != nil {
					summary.Failed++
				}
				mu.Unlock()

				if err != nil && !b.ContinueOnError {
					return err
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (b *Batch) fetchOne(ctx context.Context, logger *logrus.Logger, rawURL string, headers http.Header) error {
	operation := func() error {
		var err error
		if b.Force {
			err = b.Protocol.ForceDownload(ctx, rawURL, headers)
		} else {
			err = b.Protocol.EnsureInCache(ctx, rawURL, headers)
		}
		if err == nil || errors.Is(err, ErrNetwork) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.InitialBackoff
	policy.MaxElapsedTime = 0
	retries := b.MaxRetries
	if retries < 0 {
		retries = 0
	}

	notify := func(err error, wait time.Duration) {
		logger.WithError(err).
			WithFields(logrus.Fields{"action": "retry", "url": rawURL, "wait": wait.String()}).
			Warn("retrying download")
	}
	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx), notify)
}
