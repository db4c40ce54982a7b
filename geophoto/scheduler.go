package geophoto

import (
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/nakarte/geophotos/internal/config"
)

// whole0 is the entire archive's box at the moment a full rebuild
// starts: the whole globe, from the epoch to a few minutes past now to
// absorb clock skew in freshly-uploaded photos.
func whole0(now time.Time) Job {
	return Job{
		MinLat:   -90,
		MaxLat:   90,
		MinLon:   -180,
		MaxLon:   180,
		MinDate:  0,
		MaxDate:  now.Unix() + 600,
		Priority: 1,
	}
}

// BuildQueue is the adaptive partition scheduler (spec.md §4.1): it
// recursively halves the whole-world box against density, pushing each
// box too small to split or sparse enough to page directly onto q.
// When addFlag is set, the first job written is preceded by a sentinel
// at priority 1; having the lowest id at that priority, it is the last
// of this run's jobs a downloader pops, marking the backlog as drained.
// It never sets OverflowExpected on the jobs it writes (spec.md §9:
// that flag is only ever set by QueueRecent and by the downloader's
// own re-split, never refreshed here).
func BuildQueue(cfg config.Config, density *DensityIndex, q *Queue, addFlag bool, now time.Time) (written int, err error) {
	stack := []Job{whole0(now)}
	firstResult := true
	bar := progressbar.Default(-1, "building queue")
	defer bar.Close()

	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		exceeds := density.CountInBoxWithLimit(j, cfg, cfg.MaxResultsInRequest) > cfg.MaxResultsInRequest
		if exceeds && !tooSmallToSplit(j, cfg) {
			halves := splitJob(j, cfg)
			stack = append(stack, halves[0], halves[1])
			continue
		}

		if firstResult && addFlag {
			if err := q.InsertSentinel(1); err != nil {
				return written, err
			}
		}
		if err := q.InsertSpatial(j); err != nil {
			return written, err
		}
		firstResult = false
		written++
		_ = bar.Add(1)
	}
	return written, nil
}

// QueueRecent seeds a single high-priority job covering the last `days`
// days without consulting the density index at all (spec.md §4.1,
// "Recent-only scheduling mode"): freshly uploaded photos are sparse
// enough across that narrow a window that splitting is never worth the
// density scan's cost.
func QueueRecent(q *Queue, days int, addFlag bool, now time.Time) error {
	const recentPriority = 10
	if addFlag {
		if err := q.InsertSentinel(recentPriority); err != nil {
			return err
		}
	}
	j := Job{
		Priority:         recentPriority,
		OverflowExpected: true,
		MinLat:           -90,
		MaxLat:           90,
		MinLon:           -180,
		MaxLon:           180,
		MinDate:          now.Unix() - int64(days)*24*3600,
		MaxDate:          now.Unix() + 24*3600,
	}
	return q.InsertSpatial(j)
}
