package sqlrouter

import (
	"database/sql"
	"sync"
)

// Rows is the result of QueryContext. It behaves like *sql.Rows and gives
// the connection estimate of its replica back once it is closed or Next
// reports no more rows.
type Rows struct {
	*sql.Rows

	release func()
	once    sync.Once
}

func newRows(rows *sql.Rows, release func()) *Rows {
	return &Rows{Rows: rows, release: release}
}

// Next prepares the next row for Scan.
func (r *Rows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.done()
	return false
}

func (r *Rows) Close() error {
	defer r.done()
	return r.Rows.Close()
}

func (r *Rows) done() {
	r.once.Do(func() {
		if r.release != nil {
			r.release()
		}
	})
}
