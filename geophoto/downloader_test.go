package geophoto

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nakarte/geophotos/internal/config"
)

// fakeSearcher is a scripted searcher double, grounded the same way
// the teacher's DownloadParts tests stub a fakeGet closure instead of
// hitting a live fetcher: it records every call and returns canned
// pages/errors/delays keyed by page number.
type fakeSearcher struct {
	mu sync.Mutex

	searchCalls []int
	probeCalls  int

	probeTotal int
	probeErr   error

	pages     map[int]SearchPage
	pageErrs  map[int]error
	pageDelay map[int]time.Duration
}

func (f *fakeSearcher) Search(ctx context.Context, j Job, page int) (SearchPage, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, page)
	delay := f.pageDelay[page]
	err, hasErr := f.pageErrs[page]
	sp := f.pages[page]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if hasErr {
		return SearchPage{}, err
	}
	return sp, nil
}

func (f *fakeSearcher) ProbeTotal(ctx context.Context, j Job) (int, error) {
	f.mu.Lock()
	f.probeCalls++
	f.mu.Unlock()
	return f.probeTotal, f.probeErr
}

func testCoordinator(cfg config.Config, client searcher, q *Queue, s *PhotoStore) *Coordinator {
	var buf bytes.Buffer
	return &Coordinator{
		cfg:    cfg,
		client: client,
		queue:  q,
		store:  s,
		stats:  NewStats(),
		logger: log.New(&buf, "", 0),
	}
}

func tinyJob() Job {
	return Job{
		MinLat: 0, MaxLat: 0.00001,
		MinLon: 0, MaxLon: 0.00001,
		MinDate: 0, MaxDate: 50,
	}
}

func wholeWorldJob() Job {
	return Job{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180, MinDate: 0, MaxDate: 1_000_000}
}

func photoEntry(id string, lat, lon string) rawPhoto {
	return rawPhoto{ID: id, Latitude: lat, Longitude: lon, Accuracy: "5", DateUpload: "10"}
}

func TestProcessJobTooSmallCapsPagesInsteadOfSplitting(t *testing.T) {
	cfg := config.Default()
	cfg.UpstreamHardCap = 10
	cfg.HardPageCeiling = 2
	cfg.DownloaderWorkers = 2

	job := tinyJob()
	job.OverflowExpected = true // must be ignored: job is too small to split

	client := &fakeSearcher{
		pages: map[int]SearchPage{
			1: {Total: 20, Pages: 5, Photos: []rawPhoto{photoEntry("1", "10", "10")}},
			2: {Total: 20, Pages: 5, Photos: []rawPhoto{photoEntry("2", "20", "20")}},
		},
	}
	q := openTestQueue(t)
	s := openTestPhotoStore(t)
	c := testCoordinator(cfg, client, q, s)

	assert.NoError(t, c.processJob(context.Background(), job))

	assert.Equal(t, 0, client.probeCalls, "a too-small job must never issue the preflight probe")
	assert.Equal(t, []int{1, 2}, client.searchCalls, "pages must be capped at HardPageCeiling, not split")

	n, err := s.Count()
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	qlen, err := q.Len()
	assert.NoError(t, err)
	assert.Equal(t, 0, qlen, "an ignored overflow must not requeue any split halves")
}

func TestProcessJobPreflightProbeShortCircuitsOverflow(t *testing.T) {
	cfg := config.Default()
	cfg.UpstreamHardCap = 4000

	job := wholeWorldJob()
	job.Priority = 3
	job.OverflowExpected = true

	client := &fakeSearcher{probeTotal: cfg.UpstreamHardCap + 1}
	q := openTestQueue(t)
	s := openTestPhotoStore(t)
	c := testCoordinator(cfg, client, q, s)

	assert.NoError(t, c.processJob(context.Background(), job))

	assert.Equal(t, 1, client.probeCalls)
	assert.Empty(t, client.searchCalls, "the probe must short-circuit before any page is fetched")

	qlen, err := q.Len()
	assert.NoError(t, err)
	assert.Equal(t, 2, qlen, "overflow must re-split the job into two halves")

	first, ok, err := q.PopNext()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, first.OverflowExpected)
	assert.Equal(t, 3, first.Priority)
}

func TestProcessJobSkipsProbeWhenOverflowNotExpected(t *testing.T) {
	cfg := config.Default()
	cfg.UpstreamHardCap = 4000

	job := wholeWorldJob()
	job.OverflowExpected = false

	client := &fakeSearcher{
		pages: map[int]SearchPage{
			1: {Total: 1, Pages: 1, Photos: []rawPhoto{photoEntry("1", "1", "1")}},
		},
	}
	q := openTestQueue(t)
	s := openTestPhotoStore(t)
	c := testCoordinator(cfg, client, q, s)

	assert.NoError(t, c.processJob(context.Background(), job))
	assert.Equal(t, 0, client.probeCalls)
	assert.Equal(t, []int{1}, client.searchCalls)

	n, err := s.Count()
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProcessJobOverflowWithoutIgnoreSplitsJob(t *testing.T) {
	cfg := config.Default()
	cfg.UpstreamHardCap = 10

	job := wholeWorldJob() // not too-small: ignoreOverflow is false
	job.OverflowExpected = false

	client := &fakeSearcher{
		pages: map[int]SearchPage{
			1: {Total: 20, Pages: 5, Photos: []rawPhoto{photoEntry("1", "1", "1")}},
		},
	}
	q := openTestQueue(t)
	s := openTestPhotoStore(t)
	c := testCoordinator(cfg, client, q, s)

	assert.NoError(t, c.processJob(context.Background(), job))

	n, err := s.Count()
	assert.NoError(t, err)
	assert.Zero(t, n, "an overflowing job that isn't too-small must be split, not stored")

	qlen, err := q.Len()
	assert.NoError(t, err)
	assert.Equal(t, 2, qlen)
}

func TestFetchPagesOrderedReassemblesOutOfOrderCompletions(t *testing.T) {
	client := &fakeSearcher{
		pages: map[int]SearchPage{
			2: {Page: 2},
			3: {Page: 3},
			4: {Page: 4},
		},
		pageDelay: map[int]time.Duration{
			2: 30 * time.Millisecond,
			3: 5 * time.Millisecond,
			4: 0,
		},
	}

	results := fetchPagesOrdered(context.Background(), client, Job{}, []int{2, 3, 4}, 3)

	var got []int
	for r := range results {
		assert.NoError(t, r.err)
		got = append(got, r.page.Page)
	}
	assert.Equal(t, []int{2, 3, 4}, got, "results must come out in request order despite the fastest page finishing first")
}

func TestFetchPagesOrderedClosesAfterAllWorkersFinish(t *testing.T) {
	client := &fakeSearcher{
		pages: map[int]SearchPage{1: {}, 2: {}, 3: {}, 4: {}, 5: {}},
	}

	done := make(chan struct{})
	var count int
	go func() {
		for range fetchPagesOrdered(context.Background(), client, Job{}, []int{1, 2, 3, 4, 5}, 2) {
			count++
		}
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, 5, count)
	case <-time.After(2 * time.Second):
		t.Fatal("fetchPagesOrdered never closed its output channel")
	}
}
