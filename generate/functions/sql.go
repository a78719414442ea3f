package functions

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/registry"
)

// sqlRows streams a result set; Close releases the connection
type sqlRows struct {
	db       *sql.DB
	rows     *sql.Rows
	selected []int // result column per output position; nil selects all
	row      []generate.Term
	err      error
}

// SQL iterates over the rows of a query against a SQLite database:
// (iter:SQL dsn query column...). Without column names every result
// column is produced. NULL values are unbound.
func SQL(ctx context.Context, args []generate.Term) (registry.Rows, error) {
	if err := checkArgs("SQL", args, 2, -1); err != nil {
		return nil, err
	}
	dsn := generate.LexicalForm(args[0])
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("SQL: failed to open %s: %w", dsn, err)
	}

	rows, err := db.QueryContext(ctx, generate.LexicalForm(args[1]))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("SQL: query failed: %w", err)
	}

	result := &sqlRows{db: db, rows: rows}
	if len(args) > 2 {
		if err := result.project(args[2:]); err != nil {
			result.Close()
			return nil, err
		}
	}
	return result, nil
}

func (r *sqlRows) project(names []generate.Term) error {
	cols, err := r.rows.Columns()
	if err != nil {
		return fmt.Errorf("SQL: %w", err)
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	selected := make([]int, len(names))
	for i, n := range names {
		c, ok := index[generate.LexicalForm(n)]
		if !ok {
			return fmt.Errorf("SQL: no column %q", generate.LexicalForm(n))
		}
		selected[i] = c
	}
	r.selected = selected
	return nil
}

func (r *sqlRows) Next() bool {
	if r.rows == nil || !r.rows.Next() {
		if r.rows != nil {
			r.err = r.rows.Err()
		}
		return false
	}
	cols, err := r.rows.Columns()
	if err != nil {
		r.err = err
		return false
	}
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = fmt.Errorf("SQL: %w", err)
		return false
	}

	if r.selected == nil {
		r.row = make([]generate.Term, len(values))
		for i, v := range values {
			r.row[i] = sqlTerm(v)
		}
		return true
	}
	r.row = make([]generate.Term, len(r.selected))
	for i, c := range r.selected {
		r.row[i] = sqlTerm(values[c])
	}
	return true
}

func sqlTerm(v interface{}) generate.Term {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return generate.NewInteger(x)
	case float64:
		return generate.NewTypedLiteral(strconv.FormatFloat(x, 'f', -1, 64), generate.XSDDouble)
	case bool:
		return generate.NewBoolean(x)
	case []byte:
		return generate.NewLiteral(string(x))
	case string:
		return generate.NewLiteral(x)
	default:
		return generate.NewLiteral(fmt.Sprint(x))
	}
}

func (r *sqlRows) Row() []generate.Term { return r.row }
func (r *sqlRows) Err() error           { return r.err }

func (r *sqlRows) Close() error {
	var err error
	if r.rows != nil {
		err = r.rows.Close()
		r.rows = nil
	}
	if r.db != nil {
		if cerr := r.db.Close(); err == nil {
			err = cerr
		}
		r.db = nil
	}
	return err
}
