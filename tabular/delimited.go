package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/internal/compress"
	"github.com/hupe1980/acton/store"
	"github.com/hupe1980/acton/tensor"
)

// Delimited is a CSV or TSV file imported into a private managed store.
type Delimited struct {
	path      string
	dir       string
	store     *store.Store
	logger    *acton.Logger
	rows      int
	nFeatures int
	hasLabels bool

	mu     sync.RWMutex
	closed bool
}

// OpenDelimited reads the delimited file at path. The first record is the
// header. Features are parsed as float64 and labels are kept as byte strings
// as wide as the longest label.
func OpenDelimited(ctx context.Context, path string, opts Options) (*Delimited, error) {
	logger := opts.logger("delimited")

	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = opts.Delimiter
	if r.Comma == 0 {
		r.Comma = delimiterFor(path)
	}
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, acton.Configurationf("%s: missing header row", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	header = trimAll(header)

	labelIdx, featureIdx, err := opts.resolveColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var (
		features [][]float64
		labels   []string
		width    = 1
	)
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		row := make([]float64, len(featureIdx))
		for j, i := range featureIdx {
			if row[j], err = parseFloat(rec[i]); err != nil {
				return nil, fmt.Errorf("%s line %d column %q: %w", path, line, header[i], err)
			}
		}
		features = append(features, row)
		if labelIdx >= 0 {
			l := strings.TrimSpace(rec[labelIdx])
			width = max(width, len(l))
			labels = append(labels, l)
		}
	}

	d := &Delimited{
		path:      path,
		logger:    logger,
		rows:      len(features),
		nFeatures: len(featureIdx),
		hasLabels: labelIdx >= 0,
	}
	if d.dir, err = os.MkdirTemp("", "acton-delimited-*"); err != nil {
		return nil, err
	}
	if err := d.load(ctx, features, labels, width); err != nil {
		return nil, errors.Join(err, d.release(ctx))
	}

	logger.DebugContext(ctx, "imported delimited file", "path", path,
		"rows", d.rows, "features", d.nFeatures, "label_width", width)
	return d, nil
}

// load writes the parsed rows into the private store. Label-only files
// store no features.
func (d *Delimited) load(ctx context.Context, features [][]float64, labels []string, width int) error {
	s, err := store.Open(ctx, filepath.Join(d.dir, "import.acton"),
		store.WithFeatureDType(tensor.Float64),
		store.WithLabelDType(tensor.Bytes(width)),
		store.WithCompression(compress.None),
		store.WithLogger(d.logger),
	)
	if err != nil {
		return err
	}
	d.store = s

	n := d.rows
	if n == 0 {
		return nil
	}
	ids := rowIDs(n)
	if d.nFeatures > 0 {
		fm, err := tensor.FromFloat64(features)
		if err != nil {
			return err
		}
		if err := s.WriteFeatures(ctx, ids, fm); err != nil {
			return err
		}
	}
	if !d.hasLabels {
		return nil
	}
	lt := tensor.New(tensor.Bytes(width), 1, n, 1)
	for i, l := range labels {
		_, _ = lt.SetValue(i, tensor.Text(l))
	}
	return s.WriteLabels(ctx, []uint64{0}, ids, lt)
}

// Path returns the imported file.
func (d *Delimited) Path() string { return d.path }

// Schema returns the schema of the imported data.
func (d *Delimited) Schema() store.Schema { return d.store.Schema() }

// ReadFeatures returns the feature rows of ids as float64.
func (d *Delimited) ReadFeatures(ctx context.Context, ids []uint64) (*tensor.Array, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, acton.ErrClosed
	}
	if d.nFeatures == 0 {
		for _, id := range ids {
			if id >= uint64(d.rows) {
				return nil, fmt.Errorf("%w: instance %d (%d rows)", acton.ErrOutOfRange, id, d.rows)
			}
		}
		return tensor.New(tensor.Float64, len(ids), 0), nil
	}
	return d.store.ReadFeatures(ctx, ids)
}

// ReadLabels returns the labels of labeller 0.
func (d *Delimited) ReadLabels(ctx context.Context, labellerIDs, instanceIDs []uint64) (*tensor.Array, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, acton.ErrClosed
	}
	return d.store.ReadLabels(ctx, labellerIDs, instanceIDs)
}

// WriteFeatures always fails: delimited sources are read-only.
func (d *Delimited) WriteFeatures(_ context.Context, _ []uint64, _ *tensor.Array) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return readOnly(d.closed)
}

// WriteLabels always fails: delimited sources are read-only.
func (d *Delimited) WriteLabels(_ context.Context, _, _ []uint64, _ *tensor.Array) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return readOnly(d.closed)
}

// KnownInstanceIDs returns 0..N-1.
func (d *Delimited) KnownInstanceIDs(ctx context.Context) ([]uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, acton.ErrClosed
	}
	return d.store.KnownInstanceIDs(ctx)
}

// KnownLabellerIDs returns [0], or nothing without a label column.
func (d *Delimited) KnownLabellerIDs(_ context.Context) ([]uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return knownLabellers(d.closed, d.hasLabels)
}

// Close releases the private store and removes its directory.
func (d *Delimited) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.release(ctx)
}

func (d *Delimited) release(ctx context.Context) error {
	var err error
	if d.store != nil {
		err = d.store.Close(ctx)
	}
	return errors.Join(err, os.RemoveAll(d.dir))
}

func delimiterFor(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return '\t'
	default:
		return ','
	}
}

// parseFloat treats an empty field as NaN.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

