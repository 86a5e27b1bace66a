package sqlrouter

import "database/sql"

// Row is the result of QueryRowContext. It behaves like *sql.Row.
type Row struct {
	rows *Rows
	err  error
}

// Err returns the error, if any, that was encountered while running the
// query.
func (r *Row) Err() error {
	return r.err
}

// Scan copies the columns of the first row into dest. It returns
// sql.ErrNoRows if there is no row.
func (r *Row) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := r.rows.Scan(dest...); err != nil {
		return err
	}
	return r.rows.Close()
}
