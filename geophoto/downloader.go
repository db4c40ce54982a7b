package geophoto

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nakarte/geophotos/internal/config"
)

// pageTask is one unit of work for the page-fetch worker pool: fetch
// page n of job j.
type pageTask struct {
	index int
	page  int
}

type pageResult struct {
	index int
	page  SearchPage
	err   error
}

// searcher is the subset of *Client the coordinator and worker pool
// depend on. Depending on the interface rather than the concrete type
// lets tests supply a fake upstream, the same reason the teacher's
// DownloadParts takes a fakeGet closure instead of a live fetcher.
type searcher interface {
	Search(ctx context.Context, j Job, page int) (SearchPage, error)
	ProbeTotal(ctx context.Context, j Job) (int, error)
}

// fetchPagesOrdered fans a job's remaining pages out across a bounded
// worker pool and reassembles the results in page order, the same
// shape as the teacher's DownloadParts: a task channel feeding workers,
// an intermediate results channel, and a buffering goroutine that holds
// out-of-order completions until their turn (spec.md §5, "Parallel
// fetch"). Unlike the teacher's version, a WaitGroup closes the
// intermediate channel only once every worker has finished, which
// avoids closing it while a worker is still trying to send.
func fetchPagesOrdered(ctx context.Context, client searcher, j Job, pages []int, workers int) <-chan pageResult {
	tasks := make(chan pageTask, len(pages))
	intermediate := make(chan pageResult, len(pages))
	ordered := make(chan pageResult, len(pages))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for t := range tasks {
				select {
				case <-ctx.Done():
					intermediate <- pageResult{index: t.index, err: ctx.Err()}
					continue
				default:
				}
				sp, err := client.Search(ctx, j, t.page)
				intermediate <- pageResult{index: t.index, page: sp, err: err}
			}
		}()
	}

	go func() {
		for i, p := range pages {
			tasks <- pageTask{index: i, page: p}
		}
		close(tasks)
	}()

	go func() {
		wg.Wait()
		close(intermediate)
	}()

	go func() {
		defer close(ordered)
		buffer := make(map[int]pageResult)
		next := 0
		for r := range intermediate {
			buffer[r.index] = r
			for {
				res, ok := buffer[next]
				if !ok {
					break
				}
				ordered <- res
				delete(buffer, next)
				next++
			}
		}
	}()

	return ordered
}

// Coordinator runs the main downloader loop (spec.md §4.2): pop a job,
// fetch its first page, detect overflow and re-split if needed,
// otherwise fan the remaining pages out across the worker pool, store
// every photo, and repeat until the queue is empty, a sentinel job ends
// the run, or ctx is canceled.
type Coordinator struct {
	cfg    config.Config
	client searcher
	queue  *Queue
	store  *PhotoStore
	stats  *Stats
	logger *log.Logger
}

// NewCoordinator builds a Coordinator wired to the given queue/store.
func NewCoordinator(cfg config.Config, queue *Queue, store *PhotoStore, logger *log.Logger) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		client: NewClient(cfg),
		queue:  queue,
		store:  store,
		stats:  NewStats(),
		logger: logger,
	}
}

// Run drains the queue until it is empty, until a sentinel job is popped
// while stopAtSentinel is set (otherwise sentinels are dropped and the
// loop goes on), or until ctx is canceled. It returns the number of jobs
// processed.
func (c *Coordinator) Run(ctx context.Context, stopAtSentinel bool) (int, error) {
	processed := 0
	lastReport := time.Now()

	for {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		job, ok, err := c.queue.PopNext()
		if err != nil {
			return processed, err
		}
		if !ok {
			return processed, nil
		}
		if job.IsSentinel() {
			if stopAtSentinel {
				return processed, nil
			}
			continue
		}

		if err := c.processJob(ctx, job); err != nil {
			c.logger.Printf("geophoto: job %d failed: %v", job.ID, err)
		}
		c.stats.AddJob()
		processed++

		if time.Since(lastReport) >= c.cfg.StatsInterval {
			c.stats.Report(c.logger, c.queueDepth())
			lastReport = time.Now()
		}
	}
}

func (c *Coordinator) queueDepth() int {
	n, err := c.queue.Len()
	if err != nil {
		return -1
	}
	return n
}

// processJob computes whether job is too small to ever split further,
// fetches page 1 (preceded by a cheap single-photo probe when overflow
// is already expected and the job isn't too small to tolerate it),
// decides whether the job must be re-split for overflow or should
// instead cap its page count and keep going, and otherwise fetches the
// remaining pages in parallel, persisting every photo it receives
// (spec.md §4.2, fetch semantics steps 2-4).
func (c *Coordinator) processJob(ctx context.Context, job Job) error {
	isSmall := tooSmallToSplit(job, c.cfg)
	ignoreOverflow := isSmall

	if job.OverflowExpected && !ignoreOverflow {
		total, err := c.client.ProbeTotal(ctx, job)
		if err != nil {
			return err
		}
		c.stats.AddRequest()
		if total > c.cfg.UpstreamHardCap {
			return c.handleOverflow(job, &OverflowDetected{Job: job, Total: total})
		}
	}

	first, err := c.client.Search(ctx, job, 1)
	if err != nil {
		return err
	}
	c.stats.AddRequest()

	pages := first.Pages
	if first.Total > c.cfg.UpstreamHardCap {
		if !ignoreOverflow {
			return c.handleOverflow(job, &OverflowDetected{Job: job, Total: first.Total})
		}
		if pages > c.cfg.HardPageCeiling {
			pages = c.cfg.HardPageCeiling
		}
	}

	photos, skipped, err := first.ToPhotos()
	if err != nil {
		return err
	}
	for _, e := range skipped {
		c.logger.Printf("geophoto: %v", e)
	}
	if err := c.store.PutBatch(photos); err != nil {
		return err
	}
	c.stats.AddPhotos(len(photos))

	if pages <= 1 {
		return nil
	}

	rest := make([]int, 0, pages-1)
	for p := 2; p <= pages; p++ {
		rest = append(rest, p)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var firstErr error
	for res := range fetchPagesOrdered(jobCtx, c.client, job, rest, c.cfg.DownloaderWorkers) {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		c.stats.AddRequest()
		photos, skipped, err := res.page.ToPhotos()
		if err != nil {
			if firstErr == nil {
				firstErr = err
				cancel()
			}
			continue
		}
		for _, e := range skipped {
			c.logger.Printf("geophoto: %v", e)
		}
		if err := c.store.PutBatch(photos); err != nil {
			if firstErr == nil {
				firstErr = err
				cancel()
			}
			continue
		}
		c.stats.AddPhotos(len(photos))
	}
	return firstErr
}

// handleOverflow re-splits an overflowing job along its widest axis and
// requeues both halves at the original priority, exactly the scheduler's
// own split rule (spec.md §4.2, "Overflow detection & dynamic
// re-splitting").
func (c *Coordinator) handleOverflow(job Job, overflow *OverflowDetected) error {
	c.logger.Printf("geophoto: %v, splitting job %d", overflow, job.ID)
	halves := splitJob(job, c.cfg)
	for _, h := range halves {
		h.OverflowExpected = true
		if err := c.queue.InsertSpatial(h); err != nil {
			return err
		}
	}
	return nil
}
