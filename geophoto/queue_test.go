package geophoto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := OpenQueue(path)
	assert.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQueuePopOrdersByPriorityThenID(t *testing.T) {
	q := openTestQueue(t)

	assert.NoError(t, q.InsertSpatial(Job{Priority: 1, MinLat: 1}))
	assert.NoError(t, q.InsertSpatial(Job{Priority: 5, MinLat: 2}))
	assert.NoError(t, q.InsertSpatial(Job{Priority: 5, MinLat: 3}))

	first, ok, err := q.PopNext()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, first.Priority)
	assert.Equal(t, 3.0, first.MinLat)

	second, ok, err := q.PopNext()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, second.Priority)
	assert.Equal(t, 2.0, second.MinLat)

	third, ok, err := q.PopNext()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, third.Priority)

	_, ok, err = q.PopNext()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueSentinelRoundTrip(t *testing.T) {
	q := openTestQueue(t)
	assert.NoError(t, q.InsertSentinel(3))

	j, ok, err := q.PopNext()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, j.IsSentinel())
	assert.Equal(t, 3, j.Priority)
}

func TestQueueLenTracksInsertsAndDeletes(t *testing.T) {
	q := openTestQueue(t)
	n, err := q.Len()
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.NoError(t, q.InsertSpatial(Job{Priority: 1}))
	assert.NoError(t, q.InsertSpatial(Job{Priority: 2}))
	n, err = q.Len()
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	_, _, err = q.PopNext()
	assert.NoError(t, err)
	n, err = q.Len()
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueuePreservesOverflowExpected(t *testing.T) {
	q := openTestQueue(t)
	assert.NoError(t, q.InsertSpatial(Job{Priority: 1, OverflowExpected: true}))

	j, ok, err := q.PopNext()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, j.OverflowExpected)
}

func TestQueuePreservesSpatialExtent(t *testing.T) {
	q := openTestQueue(t)
	want := Job{Priority: 7, MinLat: 1.5, MaxLat: 2.5, MinLon: -10, MaxLon: 10, MinDate: 100, MaxDate: 200}
	assert.NoError(t, q.InsertSpatial(want))

	got, ok, err := q.PopNext()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want.MinLat, got.MinLat)
	assert.Equal(t, want.MaxLat, got.MaxLat)
	assert.Equal(t, want.MinLon, got.MinLon)
	assert.Equal(t, want.MaxLon, got.MaxLon)
	assert.Equal(t, want.MinDate, got.MinDate)
	assert.Equal(t, want.MaxDate, got.MaxDate)
}
