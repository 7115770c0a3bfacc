// Package typedcsv reads CSV with typing information in the column names.
//
// Columns named with the convention <name>__<type> are coerced to Go values:
// integer, float, boolean (yes/no and friends), json, and datetime are
// supported. Values that fail to coerce become nil, so a single bad cell
// never aborts a large export.
package typedcsv

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
)

// Row is one CSV record keyed by (bare) column name.
type Row map[string]any

type caster func(string) (any, error)

var booleanLookup = map[string]bool{
	"yes": true, "y": true, "t": true, "true": true,
	"no": false, "n": false, "f": false, "false": false,
}

// ParseBool converts the server's boolean spellings.
func ParseBool(value string) (bool, error) {
	b, ok := booleanLookup[strings.ToLower(value)]
	if !ok {
		return false, fmt.Errorf("cannot convert %q to boolean", value)
	}
	return b, nil
}

var casters = map[string]caster{
	"integer": func(s string) (any, error) {
		return strconv.Atoi(s)
	},
	"float": func(s string) (any, error) {
		return strconv.ParseFloat(s, 64)
	},
	"boolean": func(s string) (any, error) {
		return ParseBool(s)
	},
	"json": func(s string) (any, error) {
		var v any
		err := json.Unmarshal([]byte(s), &v)
		return v, err
	},
	"datetime": func(s string) (any, error) {
		return dateparse.ParseAny(s)
	},
}

// Reader streams typed rows from CSV data. Rows are decoded one at a time,
// so arbitrarily large exports never sit in memory wholesale.
type Reader struct {
	csv     *csv.Reader
	source  io.Reader
	headers []string
	casters map[string]caster
	started bool
}

// NewReader wraps r, which must start with a header record.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return &Reader{csv: cr, source: r}
}

func (r *Reader) init() error {
	if r.started {
		return nil
	}
	r.started = true

	raw, err := r.csv.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	r.headers = make([]string, 0, len(raw))
	r.casters = make(map[string]caster)
	for _, header := range raw {
		name, asType, hasType := strings.Cut(header, "__")
		r.headers = append(r.headers, name)
		if hasType {
			if cast, ok := casters[asType]; ok {
				r.casters[name] = cast
			}
		}
	}
	return nil
}

// Headers returns the bare column names (typing suffixes stripped).
func (r *Reader) Headers() ([]string, error) {
	if err := r.init(); err != nil {
		return nil, err
	}
	return r.headers, nil
}

// Read returns the next row, or io.EOF when the data is exhausted.
func (r *Reader) Read() (Row, error) {
	if err := r.init(); err != nil {
		return nil, err
	}

	record, err := r.csv.Read()
	if err != nil {
		return nil, err
	}

	row := make(Row, len(r.headers))
	for i, name := range r.headers {
		if i >= len(record) {
			break
		}
		value := record[i]
		if cast, ok := r.casters[name]; ok {
			typed, err := cast(value)
			if err != nil {
				row[name] = nil
				continue
			}
			row[name] = typed
		} else {
			row[name] = value
		}
	}
	return row, nil
}

// ReadAll drains the remaining rows.
func (r *Reader) ReadAll() ([]Row, error) {
	var rows []Row
	for {
		row, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

// Close closes the underlying reader when it is closable, e.g. a streaming
// HTTP response body.
func (r *Reader) Close() error {
	if closer, ok := r.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
