package geophoto

import (
	"math"

	"github.com/nakarte/geophotos/internal/config"
)

// Axis names a dimension of a Job's bounding box, used to pick which
// edge a split divides.
type Axis int

const (
	AxisLat Axis = iota
	AxisLon
	AxisUploadDate
)

// Job is one unit of scheduler/downloader work: a 3D axis-aligned box
// over latitude, longitude and upload time. A Job with Flag set carries
// no box at all — it is a barrier marker the downloader uses to know
// the initial backlog has drained (spec.md §4.2, "sentinel job").
type Job struct {
	ID       int64
	Priority int

	MinLat, MaxLat float64
	MinLon, MaxLon float64
	MinDate        int64
	MaxDate        int64

	// OverflowExpected marks a job already suspected to return more
	// results than the upstream hard cap (set by QueueRecent and on the
	// halves of a downloader re-split); the downloader probes its total
	// before fetching pages and re-splits it rather than treat an
	// overflow response as an error.
	OverflowExpected bool

	// Flag marks a sentinel/barrier job: it carries Priority only, no
	// spatial extent, and signals queue-drain completion to a waiting
	// consumer (spec.md §4.2).
	Flag bool
}

// IsSentinel reports whether j is a barrier job rather than spatial
// work.
func (j Job) IsSentinel() bool { return j.Flag }

// padJobWithMargin symmetrically widens a job's box on every axis whose
// extent already exceeds that axis's margin, clamping lat/lon to valid
// ranges. The padding exists to absorb coordinate and clock noise in
// the upstream index, never to be persisted: only the query/count uses
// the padded box (spec.md §4.1).
func padJobWithMargin(j Job, cfg config.Config) Job {
	p := j
	marginLat := cfg.MarginLatDeg
	marginLon := cfg.MarginLonDeg
	marginTime := int64(cfg.MarginTime.Seconds())

	if j.MaxLat-j.MinLat > marginLat {
		p.MinLat = math.Max(-90, j.MinLat-marginLat)
		p.MaxLat = math.Min(90, j.MaxLat+marginLat)
	}
	if j.MaxLon-j.MinLon > marginLon {
		p.MinLon = math.Max(-180, j.MinLon-marginLon)
		p.MaxLon = math.Min(180, j.MaxLon+marginLon)
	}
	if j.MaxDate-j.MinDate > marginTime {
		p.MinDate = maxInt64(0, j.MinDate-marginTime)
		p.MaxDate = j.MaxDate + marginTime
	}
	return p
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// selectAxisForSplit picks the axis whose extent-to-margin ratio is
// largest, breaking ties in lat, lon, upload-date order (Go map
// iteration order is undefined, so the original's dict-max approach is
// replaced with an explicit ordered comparison rather than relying on
// incidental ordering).
func selectAxisForSplit(j Job, cfg config.Config) Axis {
	latRatio := (j.MaxLat - j.MinLat) / cfg.MarginLatDeg
	lonRatio := (j.MaxLon - j.MinLon) / cfg.MarginLonDeg
	dateRatio := float64(j.MaxDate-j.MinDate) / cfg.MarginTime.Seconds()

	axis := AxisLat
	best := latRatio
	if lonRatio > best {
		axis, best = AxisLon, lonRatio
	}
	if dateRatio > best {
		axis = AxisUploadDate
	}
	return axis
}

func middle(j Job, axis Axis) float64 {
	switch axis {
	case AxisLat:
		return (j.MinLat + j.MaxLat) / 2
	case AxisLon:
		return (j.MinLon + j.MaxLon) / 2
	default:
		return float64(j.MinDate+j.MaxDate) / 2
	}
}

// splitJob divides j in two along its widest (relative to margin) axis.
// Both halves inherit j's other fields and start unflagged: a sentinel
// job is never split (spec.md §4.1).
func splitJob(j Job, cfg config.Config) [2]Job {
	axis := selectAxisForSplit(j, cfg)
	mid := middle(j, axis)

	a, b := j, j
	switch axis {
	case AxisLat:
		a.MaxLat, b.MinLat = mid, mid
	case AxisLon:
		a.MaxLon, b.MinLon = mid, mid
	default:
		midDate := int64(mid)
		a.MaxDate, b.MinDate = midDate, midDate
	}
	a.Flag, b.Flag = false, false
	return [2]Job{a, b}
}

// tooSmallToSplit reports whether j has shrunk below a quarter-margin
// on every axis simultaneously. The original pipeline's AND-across-axes
// form means a job that is extremely narrow in latitude but still wide
// in longitude is not considered too small to split further — a
// deliberately preserved quirk (spec.md §9, Open Questions) rather than
// a bug fix, since changing it would change which jobs the scheduler
// accepts as an irreducible "too dense to page" terminal box.
func tooSmallToSplit(j Job, cfg config.Config) bool {
	return (j.MaxLat-j.MinLat) < cfg.MarginLatDeg*0.25 &&
		(j.MaxLon-j.MinLon) < cfg.MarginLonDeg*0.25 &&
		float64(j.MaxDate-j.MinDate) < cfg.MarginTime.Seconds()*0.25
}
