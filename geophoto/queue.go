package geophoto

import (
	"zombiezen.com/go/sqlite"
)

// Queue is the durable, crash-resumable job queue: a single-table
// SQLite database ordered by (priority DESC, id DESC), exactly the
// schema and ordering the original scheduler wrote
// (idx_queue_order_id), now accessed through
// zombiezen.com/go/sqlite instead of Python's sqlite3 module (spec.md
// §4.2).
type Queue struct {
	conn *sqlite.Conn
}

const queueSchema = `
PRAGMA journal_mode = off;
PRAGMA synchronous = off;
CREATE TABLE IF NOT EXISTS queue (
  id INTEGER PRIMARY KEY,
  priority INTEGER NOT NULL,
  overflow_expected BOOLEAN,
  flag BOOLEAN,
  min_lat REAL,
  max_lat REAL,
  min_lon REAL,
  max_lon REAL,
  min_date INTEGER,
  max_date INTEGER
);
CREATE INDEX IF NOT EXISTS idx_queue_order_id ON queue(priority DESC, id DESC);
`

// OpenQueue opens (creating if absent) the job queue at path.
func OpenQueue(path string) (*Queue, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, &StorageError{Store: "queue", Op: "open", Err: err}
	}
	q := &Queue{conn: conn}
	if err := q.exec(queueSchema); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// Close releases the queue's connection.
func (q *Queue) Close() error {
	if err := q.conn.Close(); err != nil {
		return &StorageError{Store: "queue", Op: "close", Err: err}
	}
	return nil
}

func (q *Queue) exec(sql string) error {
	stmt, _, err := q.conn.PrepareTransient(sql)
	if err != nil {
		return &StorageError{Store: "queue", Op: "prepare", Err: err}
	}
	defer stmt.Finalize()
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return &StorageError{Store: "queue", Op: "step", Err: err}
		}
		if !hasRow {
			return nil
		}
	}
}

// InsertSpatial writes one spatial job, transactionally, so a reader
// never observes a partially-written row (spec.md §4.2, "transactional
// with immediate durability").
func (q *Queue) InsertSpatial(j Job) error {
	return q.withTx(func() error {
		stmt := q.conn.Prep(`INSERT INTO queue
			(priority, overflow_expected, flag, min_lat, max_lat, min_lon, max_lon, min_date, max_date)
			VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?)`)
		defer stmt.Reset()
		stmt.BindInt64(1, int64(j.Priority))
		stmt.BindBool(2, j.OverflowExpected)
		stmt.BindFloat(3, j.MinLat)
		stmt.BindFloat(4, j.MaxLat)
		stmt.BindFloat(5, j.MinLon)
		stmt.BindFloat(6, j.MaxLon)
		stmt.BindInt64(7, j.MinDate)
		stmt.BindInt64(8, j.MaxDate)
		if _, err := stmt.Step(); err != nil {
			return &StorageError{Store: "queue", Op: "insert", Err: err}
		}
		return nil
	})
}

// InsertSentinel appends a barrier job carrying only a priority,
// signalling a waiting consumer that the jobs ahead of it in priority
// order were the last ones the scheduler produced this run.
func (q *Queue) InsertSentinel(priority int) error {
	return q.withTx(func() error {
		stmt := q.conn.Prep(`INSERT INTO queue (priority, flag) VALUES (?, 1)`)
		defer stmt.Reset()
		stmt.BindInt64(1, int64(priority))
		if _, err := stmt.Step(); err != nil {
			return &StorageError{Store: "queue", Op: "insert sentinel", Err: err}
		}
		return nil
	})
}

// PeekNext returns the highest-priority, highest-id job without
// removing it, or ok=false if the queue is empty.
func (q *Queue) PeekNext() (j Job, ok bool, err error) {
	stmt := q.conn.Prep(`SELECT id, priority, overflow_expected, flag,
		min_lat, max_lat, min_lon, max_lon, min_date, max_date
		FROM queue ORDER BY priority DESC, id DESC LIMIT 1`)
	defer stmt.Reset()
	hasRow, stepErr := stmt.Step()
	if stepErr != nil {
		return Job{}, false, &StorageError{Store: "queue", Op: "peek", Err: stepErr}
	}
	if !hasRow {
		return Job{}, false, nil
	}
	j = Job{
		ID:               stmt.ColumnInt64(0),
		Priority:         int(stmt.ColumnInt64(1)),
		OverflowExpected: stmt.ColumnInt64(2) != 0,
		Flag:             stmt.ColumnInt64(3) != 0,
		MinLat:           stmt.ColumnFloat(4),
		MaxLat:           stmt.ColumnFloat(5),
		MinLon:           stmt.ColumnFloat(6),
		MaxLon:           stmt.ColumnFloat(7),
		MinDate:          stmt.ColumnInt64(8),
		MaxDate:          stmt.ColumnInt64(9),
	}
	return j, true, nil
}

// Delete removes the row with the given id.
func (q *Queue) Delete(id int64) error {
	stmt := q.conn.Prep(`DELETE FROM queue WHERE id = ?`)
	defer stmt.Reset()
	stmt.BindInt64(1, id)
	if _, err := stmt.Step(); err != nil {
		return &StorageError{Store: "queue", Op: "delete", Err: err}
	}
	return nil
}

// PopNext atomically peeks and removes the next job, the unit the
// downloader coordinator actually consumes: a crash between peek and
// delete must never lose or duplicate a job (spec.md §4.2).
func (q *Queue) PopNext() (j Job, ok bool, err error) {
	err = q.withTx(func() error {
		var innerErr error
		j, ok, innerErr = q.PeekNext()
		if innerErr != nil || !ok {
			return innerErr
		}
		return q.Delete(j.ID)
	})
	return j, ok, err
}

// Len returns the number of rows currently queued.
func (q *Queue) Len() (int, error) {
	stmt := q.conn.Prep(`SELECT count(1) FROM queue`)
	defer stmt.Reset()
	hasRow, err := stmt.Step()
	if err != nil || !hasRow {
		return 0, &StorageError{Store: "queue", Op: "len", Err: err}
	}
	return int(stmt.ColumnInt64(0)), nil
}

func (q *Queue) withTx(fn func() error) (err error) {
	if execErr := q.exec("BEGIN IMMEDIATE"); execErr != nil {
		return execErr
	}
	defer func() {
		if err != nil {
			_ = q.exec("ROLLBACK")
			return
		}
		if commitErr := q.exec("COMMIT"); commitErr != nil {
			err = commitErr
		}
	}()
	err = fn()
	return err
}
