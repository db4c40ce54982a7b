package geophoto

import (
	"sync"

	"zombiezen.com/go/sqlite"
)

// mbtilesSchema matches lib/image_store.py's MBTilesWriter.SCHEME: a
// tiles table keyed by (zoom, column, row) with REPLACE-on-conflict so
// a rerun of the pyramid builder can overwrite stale tiles, plus a
// free-form metadata table.
const mbtilesSchema = `
CREATE TABLE IF NOT EXISTS tiles(
    zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB,
    UNIQUE(zoom_level, tile_column, tile_row) ON CONFLICT REPLACE);
CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT, UNIQUE(name) ON CONFLICT REPLACE);
`

const mbtilesPragmas = `
PRAGMA journal_mode = off;
PRAGMA synchronous = 0;
PRAGMA busy_timeout = 10000;
`

// MBTilesWriter is the durable tile pyramid output store. A single
// mutex serializes writes the way the original guarded its sqlite3
// connection with a multiprocessing.Lock, since this connection is not
// safe for concurrent use (spec.md §4.3, §6).
type MBTilesWriter struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// OpenMBTilesWriter creates (or reuses) the MBTiles archive at path.
func OpenMBTilesWriter(path string) (*MBTilesWriter, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, &StorageError{Store: "mbtiles", Op: "open", Err: err}
	}
	w := &MBTilesWriter{conn: conn}
	if err := w.exec(mbtilesPragmas); err != nil {
		conn.Close()
		return nil, err
	}
	if err := w.exec(mbtilesSchema); err != nil {
		conn.Close()
		return nil, err
	}
	return w, nil
}

func (w *MBTilesWriter) exec(sql string) error {
	stmt, _, err := w.conn.PrepareTransient(sql)
	if err != nil {
		return &StorageError{Store: "mbtiles", Op: "prepare", Err: err}
	}
	defer stmt.Finalize()
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return &StorageError{Store: "mbtiles", Op: "step", Err: err}
		}
		if !hasRow {
			return nil
		}
	}
}

// WriteTile inserts (or replaces) the tile at (tmsZ, tmsX, tmsY). The
// caller is responsible for converting from XYZ to TMS row order
// (spec.md §4.3, geophoto.tileIndexFromTMS) before calling this.
func (w *MBTilesWriter) WriteTile(tmsZ uint8, tmsX, tmsY uint32, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	stmt := w.conn.Prep(`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`)
	defer stmt.Reset()
	stmt.BindInt64(1, int64(tmsZ))
	stmt.BindInt64(2, int64(tmsX))
	stmt.BindInt64(3, int64(tmsY))
	stmt.BindBytes(4, data)
	if _, err := stmt.Step(); err != nil {
		return &StorageError{Store: "mbtiles", Op: "insert tile", Err: err}
	}
	return nil
}

// SetMetadata writes one name/value pair into the metadata table, used
// for the standard MBTiles keys (name, format, bounds, minzoom,
// maxzoom).
func (w *MBTilesWriter) SetMetadata(name, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	stmt := w.conn.Prep(`INSERT INTO metadata (name, value) VALUES (?, ?)`)
	defer stmt.Reset()
	stmt.BindText(1, name)
	stmt.BindText(2, value)
	if _, err := stmt.Step(); err != nil {
		return &StorageError{Store: "mbtiles", Op: "insert metadata", Err: err}
	}
	return nil
}

// Close releases the writer's connection.
func (w *MBTilesWriter) Close() error {
	if err := w.conn.Close(); err != nil {
		return &StorageError{Store: "mbtiles", Op: "close", Err: err}
	}
	return nil
}
