package tabular

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/tensor"
)

// Frame is a table of a SQLite database. Instance i is the row with the
// i-th smallest rowid.
type Frame struct {
	path    string
	table   string
	db      *sql.DB
	rowids  []int64
	featSQL *sql.Stmt
	labSQL  *sql.Stmt
	logger  *acton.Logger

	mu sync.RWMutex
	proxy
}

// OpenFrame opens the SQLite file at path read-only. The label dtype follows
// the storage class of the first row's label: integer becomes int64, real
// becomes float64 and text becomes a byte string as wide as the longest
// label.
func OpenFrame(ctx context.Context, path string, opts Options) (*Frame, error) {
	logger := opts.logger("frame")

	// The driver would create a missing file.
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	f := &Frame{path: path, db: db, logger: logger}
	if err := f.init(ctx, opts); err != nil {
		return nil, errors.Join(fmt.Errorf("%s: %w", path, err), f.release())
	}

	logger.DebugContext(ctx, "opened frame", "path", path, "table", f.table,
		"rows", len(f.rowids), "features", f.nFeatures)
	return f, nil
}

func (f *Frame) init(ctx context.Context, opts Options) error {
	table := opts.Table
	if table == "" {
		var err error
		if table, err = f.onlyTable(ctx); err != nil {
			return err
		}
	}
	f.table = table

	header, err := f.columns(ctx)
	if err != nil {
		return err
	}
	labelIdx, featureIdx, err := opts.resolveColumns(header)
	if err != nil {
		return err
	}

	q := quoteIdent(table)
	cols := make([]string, len(featureIdx))
	for i, idx := range featureIdx {
		cols[i] = quoteIdent(header[idx])
	}
	if len(cols) > 0 {
		f.featSQL, err = f.db.PrepareContext(ctx, "SELECT "+strings.Join(cols, ", ")+" FROM "+q+" WHERE rowid = ?")
		if err != nil {
			return err
		}
	}

	if err := f.loadRowIDs(ctx); err != nil {
		return err
	}

	f.proxy = proxy{src: f, nFeatures: len(featureIdx), hasLabels: labelIdx >= 0}
	if labelIdx < 0 {
		return nil
	}
	label := quoteIdent(header[labelIdx])
	f.labSQL, err = f.db.PrepareContext(ctx, "SELECT "+label+" FROM "+q+" WHERE rowid = ?")
	if err != nil {
		return err
	}
	f.labelDType, err = f.resolveLabelDType(ctx, label)
	return err
}

func (f *Frame) onlyTable(ctx context.Context) (string, error) {
	rows, err := f.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(names) != 1 {
		return "", acton.Configurationf("table option required: file has %d tables %v", len(names), names)
	}
	return names[0], nil
}

func (f *Frame) columns(ctx context.Context) ([]string, error) {
	rows, err := f.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", f.table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, acton.Configurationf("table %q not found", f.table)
	}
	return names, nil
}

func (f *Frame) loadRowIDs(ctx context.Context) error {
	rows, err := f.db.QueryContext(ctx, "SELECT rowid FROM "+quoteIdent(f.table)+" ORDER BY rowid")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		f.rowids = append(f.rowids, id)
	}
	return rows.Err()
}

func (f *Frame) resolveLabelDType(ctx context.Context, label string) (tensor.DType, error) {
	if len(f.rowids) == 0 {
		return tensor.Float64, nil
	}
	var class string
	err := f.db.QueryRowContext(ctx,
		"SELECT typeof("+label+") FROM "+quoteIdent(f.table)+" WHERE rowid = ?", f.rowids[0]).Scan(&class)
	if err != nil {
		return tensor.DType{}, err
	}
	switch class {
	case "integer":
		return tensor.Int64, nil
	case "real", "null":
		return tensor.Float64, nil
	default:
		var width int
		err := f.db.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(LENGTH(CAST("+label+" AS BLOB))), 1) FROM "+quoteIdent(f.table)).Scan(&width)
		if err != nil {
			return tensor.DType{}, err
		}
		return tensor.Bytes(width), nil
	}
}

// Path returns the database file.
func (f *Frame) Path() string { return f.path }

// Table returns the table being read.
func (f *Frame) Table() string { return f.table }

func (f *Frame) numRows() int { return len(f.rowids) }

func (f *Frame) rowFeatures(ctx context.Context, row int, dst []float64) error {
	if len(dst) == 0 {
		return nil
	}
	vals := make([]sql.NullFloat64, len(dst))
	ptrs := make([]any, len(dst))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := f.featSQL.QueryRowContext(ctx, f.rowids[row]).Scan(ptrs...); err != nil {
		return fmt.Errorf("read features of instance %d: %w", row, err)
	}
	for i, v := range vals {
		dst[i] = 0
		if v.Valid && !math.IsNaN(v.Float64) {
			dst[i] = v.Float64
		}
	}
	return nil
}

func (f *Frame) rowLabel(ctx context.Context, row int) (tensor.Value, error) {
	var v any
	if err := f.labSQL.QueryRowContext(ctx, f.rowids[row]).Scan(&v); err != nil {
		return tensor.Value{}, fmt.Errorf("read label of instance %d: %w", row, err)
	}
	switch x := v.(type) {
	case int64:
		return tensor.Number(float64(x)), nil
	case float64:
		return tensor.Number(x), nil
	case string:
		return tensor.Text(x), nil
	case []byte:
		return tensor.Text(string(x)), nil
	case nil:
		if f.labelDType.IsNumeric() {
			return tensor.Number(0), nil
		}
		return tensor.Text(""), nil
	default:
		return tensor.Text(fmt.Sprint(x)), nil
	}
}

// ReadFeatures returns the feature rows of ids as float64. NULLs and NaNs
// read as zero.
func (f *Frame) ReadFeatures(ctx context.Context, ids []uint64) (*tensor.Array, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.proxy.readFeatures(ctx, ids)
}

// ReadLabels returns the labels of labeller 0.
func (f *Frame) ReadLabels(ctx context.Context, labellerIDs, instanceIDs []uint64) (*tensor.Array, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.proxy.readLabels(ctx, labellerIDs, instanceIDs)
}

// WriteFeatures always fails: frame sources are read-only.
func (f *Frame) WriteFeatures(_ context.Context, _ []uint64, _ *tensor.Array) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return readOnly(f.closed)
}

// WriteLabels always fails: frame sources are read-only.
func (f *Frame) WriteLabels(_ context.Context, _, _ []uint64, _ *tensor.Array) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return readOnly(f.closed)
}

// KnownInstanceIDs returns 0..N-1.
func (f *Frame) KnownInstanceIDs(_ context.Context) ([]uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.proxy.knownInstanceIDs()
}

// KnownLabellerIDs returns [0], or nothing without a label column.
func (f *Frame) KnownLabellerIDs(_ context.Context) ([]uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return knownLabellers(f.closed, f.hasLabels)
}

// Close closes the database connection.
func (f *Frame) Close(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.release()
}

func (f *Frame) release() error {
	var errs []error
	for _, st := range []*sql.Stmt{f.featSQL, f.labSQL} {
		if st != nil {
			errs = append(errs, st.Close())
		}
	}
	errs = append(errs, f.db.Close())
	return errors.Join(errs...)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
