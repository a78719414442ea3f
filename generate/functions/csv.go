package functions

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/registry"
)

// csvRows reads records lazily, projecting the selected columns
type csvRows struct {
	ctx     context.Context
	reader  *csv.Reader
	columns []int
	row     []generate.Term
	err     error
}

// CSV iterates over the records of a CSV document with a header row:
// (iter:CSV doc column...). Without column names every column is
// produced, in header order. Empty and missing cells are unbound.
func CSV(ctx context.Context, args []generate.Term) (registry.Rows, error) {
	if err := checkArgs("CSV", args, 1, -1); err != nil {
		return nil, err
	}
	reader := csv.NewReader(strings.NewReader(generate.LexicalForm(args[0])))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return registry.SliceRows(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("CSV: invalid header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	var columns []int
	if len(args) == 1 {
		for i := range header {
			columns = append(columns, i)
		}
	} else {
		for _, a := range args[1:] {
			name := generate.LexicalForm(a)
			i, ok := index[name]
			if !ok {
				return nil, fmt.Errorf("CSV: no column %q", name)
			}
			columns = append(columns, i)
		}
	}
	return &csvRows{ctx: ctx, reader: reader, columns: columns}, nil
}

func (r *csvRows) Next() bool {
	if r.reader == nil {
		return false
	}
	if err := r.ctx.Err(); err != nil {
		r.err = err
		r.reader = nil
		return false
	}
	record, err := r.reader.Read()
	if err != nil {
		if err != io.EOF {
			r.err = fmt.Errorf("CSV: %w", err)
		}
		r.reader = nil
		return false
	}
	r.row = make([]generate.Term, len(r.columns))
	for i, c := range r.columns {
		if c < len(record) {
			r.row[i] = cell(record[c])
		}
	}
	return true
}

func (r *csvRows) Row() []generate.Term { return r.row }
func (r *csvRows) Err() error           { return r.err }
func (r *csvRows) Close() error         { r.reader = nil; return nil }
