package media

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/vidtube/internal/logger"
)

const (
	defaultCleanerWorkers = 2
	defaultCleanerQueue   = 256
	defaultRetryAfter     = 30 * time.Second
	defaultMaxAttempts    = 5
)

type cleanupJob struct {
	url     string
	attempt int
}

// Cleaner deletes replaced and orphaned images in background
// Store failure pauses all workers for a while; the image is retried later
type Cleaner struct {
	countWorkers int
	retryAfter   time.Duration
	maxAttempts  int

	// Workers don't touch the store until this moment (unix nano)
	waitUntil atomic.Int64

	queue  chan cleanupJob
	store  Store
	logger logger.Logger
}

func NewCleaner(store Store, l logger.Logger) *Cleaner {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Cleaner{
		countWorkers: defaultCleanerWorkers,
		retryAfter:   defaultRetryAfter,
		maxAttempts:  defaultMaxAttempts,
		queue:        make(chan cleanupJob, defaultCleanerQueue),
		store:        store,
		logger:       l,
	}
}

// Queue image for deletion. Never blocks: if the queue is full the image stays in storage
func (c *Cleaner) Drop(url string) {
	if url == "" {
		return
	}
	c.enqueue(cleanupJob{url: url})
}

func (c *Cleaner) enqueue(job cleanupJob) {
	select {
	case c.queue <- job:
	default:
		c.logger.Warn("image cleanup queue is full, image left in storage", "url", job.url)
	}
}

// Start workers. Returned channel is closed when all of them stopped
func (c *Cleaner) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("image cleaner stopped")
	}()

	return idleStopped
}

func (c *Cleaner) worker(ctx context.Context) {
	for {
		if wait := time.Until(time.Unix(0, c.waitUntil.Load())); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		select {
		case <-ctx.Done():
			return
		case job := <-c.queue:
			c.process(ctx, job)
		}
	}
}

func (c *Cleaner) process(ctx context.Context, job cleanupJob) {
	err := c.store.Delete(ctx, job.url)
	if err == nil {
		c.logger.Debug("image deleted", "url", job.url)
		return
	}

	job.attempt++
	if job.attempt >= c.maxAttempts {
		c.logger.Error("can't delete image, giving up", "url", job.url, "attempts", job.attempt, "error", err)
		return
	}

	c.logger.Warn("can't delete image, retry later", "url", job.url, "retry_after", c.retryAfter, "error", err)
	c.waitUntil.Store(time.Now().Add(c.retryAfter).UnixNano())
	c.enqueue(job)
}
