package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/blobstore"
	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/internal/compress"
	"github.com/hupe1980/acton/lock"
	"github.com/hupe1980/acton/tensor"
)

// maxRows bounds the extent of every array axis.
const maxRows = math.MaxInt32

// Store is an open managed store. It is safe for concurrent use, but is
// owned by a single handle: a second Open of the same store fails with
// lock.ErrLocked until this one is closed.
type Store struct {
	path        string
	name        string
	blobs       blobstore.Store
	locker      lock.Locker
	compression compress.Type
	codec       codec.Codec
	logger      *acton.Logger

	mu        sync.RWMutex
	schema    Schema
	features  *tensor.Array // [rows, D]
	labels    *tensor.Array // [T, cols, F]
	instances *registry
	labellers *registry
	dirty     bool
	closed    bool
}

// Open opens the store at path, creating it when it does not exist.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{
		compression: compress.ZSTD,
		codec:       codec.Default,
		logger:      acton.NoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.compression.Valid() {
		return nil, acton.Configurationf("invalid compression %d", o.compression)
	}

	if o.blobs == nil {
		o.blobs = blobstore.NewLocalStore(filepath.Dir(path))
		o.blobName = filepath.Base(path)
		if o.locker == nil {
			o.locker = lock.NewFileLock(path + ".lock")
		}
	}
	if o.locker == nil {
		o.locker = lock.Nop{}
	}

	s := &Store{
		path:        path,
		name:        o.blobName,
		blobs:       o.blobs,
		locker:      o.locker,
		compression: o.compression,
		codec:       o.codec,
		logger:      o.logger.WithComponent("store"),
		instances:   newRegistry(),
		labellers:   newRegistry(),
	}

	if err := s.locker.Lock(ctx); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := s.load(ctx, o.featureDType, o.labelDType); err != nil {
		return nil, errors.Join(err, s.locker.Unlock(ctx))
	}
	return s, nil
}

// load reads the persisted store or initialises a new one.
func (s *Store) load(ctx context.Context, featureDT, labelDT tensor.DType) error {
	data, err := s.blobs.Get(ctx, s.name)
	if errors.Is(err, blobstore.ErrNotFound) {
		if !featureDT.Valid() {
			featureDT = DefaultDType
		}
		if !labelDT.Valid() {
			labelDT = DefaultDType
		}
		s.schema = Schema{
			FeatureDType: featureDT,
			LabelDType:   labelDT,
			NFeatures:    Unset,
			LabelDim:     Unset,
		}
		s.features = tensor.New(featureDT, 0, 0)
		s.labels = tensor.New(labelDT, 0, 0, 0)
		s.dirty = true
		s.logger.DebugContext(ctx, "created store", "path", s.path,
			"feature_dtype", featureDT.String(), "label_dtype", labelDT.String())
		// Persist the schema right away so a reopen validates against it.
		return s.flushLocked(ctx)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	if err := s.decode(data); err != nil {
		return err
	}

	if featureDT.Valid() && featureDT != s.schema.FeatureDType {
		return &acton.SchemaMismatchError{Field: "feature_dtype", Expected: featureDT.String(), Actual: s.schema.FeatureDType.String()}
	}
	if labelDT.Valid() && labelDT != s.schema.LabelDType {
		return &acton.SchemaMismatchError{Field: "label_dtype", Expected: labelDT.String(), Actual: s.schema.LabelDType.String()}
	}

	s.logger.DebugContext(ctx, "opened store", "path", s.path,
		"instances", s.instances.len(), "labellers", s.labellers.len())
	return nil
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// Schema returns the current schema.
func (s *Store) Schema() Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

// WriteFeatures stores one feature row per id. features must be [len(ids), D].
func (s *Store) WriteFeatures(ctx context.Context, ids []uint64, features *tensor.Array) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return acton.ErrClosed
	}
	if features == nil || features.Rank() != 2 {
		rank := 0
		if features != nil {
			rank = features.Rank()
		}
		return &acton.DimensionMismatchError{Axis: "features rank", Expected: 2, Actual: rank}
	}
	if features.Dim(0) != len(ids) {
		return &acton.DimensionMismatchError{Axis: "features rows", Expected: len(ids), Actual: features.Dim(0)}
	}

	d := features.Dim(1)
	if s.schema.NFeatures != Unset && s.schema.NFeatures != d {
		return &acton.SchemaMismatchError{Field: "n_features", Expected: fmt.Sprint(s.schema.NFeatures), Actual: fmt.Sprint(d)}
	}
	if len(ids) == 0 {
		return nil
	}
	if s.schema.NFeatures == Unset && d == 0 {
		return &acton.SchemaMismatchError{Field: "n_features", Expected: "> 0", Actual: "0"}
	}
	maxID, err := checkIDs(ids)
	if err != nil {
		return err
	}

	features, err = s.cast(ctx, "features", features, s.schema.FeatureDType)
	if err != nil {
		return err
	}

	if s.schema.NFeatures == Unset {
		s.schema.NFeatures = d
		s.features = tensor.New(s.schema.FeatureDType, 0, d)
	}
	if rows := int(maxID) + 1; rows > s.features.Dim(0) {
		s.features = growRows(s.features, rows)
	}

	rowSize := d * s.schema.FeatureDType.ItemSize()
	dst, src := s.features.Bytes(), features.Bytes()
	for i, id := range ids {
		copy(dst[int(id)*rowSize:(int(id)+1)*rowSize], src[i*rowSize:(i+1)*rowSize])
	}

	added := s.instances.add(ids)
	s.dirty = true
	s.logger.Log(ctx, acton.LevelTrace, "wrote features", "ids", len(ids), "new_ids", added)
	return nil
}

// ReadFeatures returns the rows for ids, in the order given.
func (s *Store) ReadFeatures(ctx context.Context, ids []uint64) (*tensor.Array, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, acton.ErrClosed
	}
	if s.schema.NFeatures == Unset {
		if len(ids) > 0 {
			return nil, fmt.Errorf("%w: no features stored", acton.ErrMissingSchema)
		}
		return tensor.New(s.schema.FeatureDType, 0, 0), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := s.schema.NFeatures
	rows := s.features.Dim(0)
	rowSize := d * s.schema.FeatureDType.ItemSize()
	out := tensor.New(s.schema.FeatureDType, len(ids), d)
	dst, src := out.Bytes(), s.features.Bytes()
	for i, id := range ids {
		if id >= uint64(rows) {
			return nil, fmt.Errorf("%w: instance %d (%d rows stored)", acton.ErrOutOfRange, id, rows)
		}
		copy(dst[i*rowSize:(i+1)*rowSize], src[int(id)*rowSize:(int(id)+1)*rowSize])
	}
	return out, nil
}

// WriteLabels stores labels[t, n, :] at (labellerIDs[t], instanceIDs[n]) for
// every pair of the cross product. labels must be [len(labellerIDs),
// len(instanceIDs), F].
func (s *Store) WriteLabels(ctx context.Context, labellerIDs, instanceIDs []uint64, labels *tensor.Array) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return acton.ErrClosed
	}
	if labels == nil || labels.Rank() != 3 {
		rank := 0
		if labels != nil {
			rank = labels.Rank()
		}
		return &acton.DimensionMismatchError{Axis: "labels rank", Expected: 3, Actual: rank}
	}
	if labels.Dim(0) != len(labellerIDs) {
		return &acton.DimensionMismatchError{Axis: "labellers", Expected: len(labellerIDs), Actual: labels.Dim(0)}
	}
	if labels.Dim(1) != len(instanceIDs) {
		return &acton.DimensionMismatchError{Axis: "instances", Expected: len(instanceIDs), Actual: labels.Dim(1)}
	}

	f := labels.Dim(2)
	if s.schema.LabelDim != Unset && s.schema.LabelDim != f {
		return &acton.SchemaMismatchError{Field: "label_dim", Expected: fmt.Sprint(s.schema.LabelDim), Actual: fmt.Sprint(f)}
	}
	if len(labellerIDs) == 0 || len(instanceIDs) == 0 {
		return nil
	}
	if s.schema.LabelDim == Unset && f == 0 {
		return &acton.SchemaMismatchError{Field: "label_dim", Expected: "> 0", Actual: "0"}
	}
	maxLabeller, err := checkIDs(labellerIDs)
	if err != nil {
		return err
	}
	maxInstance, err := checkIDs(instanceIDs)
	if err != nil {
		return err
	}

	labels, err = s.cast(ctx, "labels", labels, s.schema.LabelDType)
	if err != nil {
		return err
	}

	if s.schema.LabelDim == Unset {
		s.schema.LabelDim = f
		s.labels = tensor.New(s.schema.LabelDType, 0, 0, f)
	}
	t, n := int(maxLabeller)+1, int(maxInstance)+1
	if t > s.labels.Dim(0) || n > s.labels.Dim(1) {
		s.labels = growLabels(s.labels, max(t, s.labels.Dim(0)), max(n, s.labels.Dim(1)))
	}

	cellSize := f * s.schema.LabelDType.ItemSize()
	cols := s.labels.Dim(1)
	dst, src := s.labels.Bytes(), labels.Bytes()
	for ti, lid := range labellerIDs {
		for ni, iid := range instanceIDs {
			at := (int(lid)*cols + int(iid)) * cellSize
			from := (ti*len(instanceIDs) + ni) * cellSize
			copy(dst[at:at+cellSize], src[from:from+cellSize])
		}
	}

	s.instances.add(instanceIDs)
	s.labellers.add(labellerIDs)
	s.dirty = true
	s.logger.Log(ctx, acton.LevelTrace, "wrote labels",
		"labellers", len(labellerIDs), "instances", len(instanceIDs), "cells", len(labellerIDs)*len(instanceIDs))
	return nil
}

// ReadLabels returns a [len(labellerIDs), len(instanceIDs), F] tensor in the
// order given. Only a single labeller can be read per call.
func (s *Store) ReadLabels(ctx context.Context, labellerIDs, instanceIDs []uint64) (*tensor.Array, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, acton.ErrClosed
	}
	if len(labellerIDs) > 1 {
		return nil, fmt.Errorf("%w: reading labels of %d labellers, only one is supported", acton.ErrUnsupported, len(labellerIDs))
	}
	if s.schema.LabelDim == Unset {
		if len(labellerIDs) > 0 || len(instanceIDs) > 0 {
			return nil, fmt.Errorf("%w: no labels stored", acton.ErrMissingSchema)
		}
		return tensor.New(s.schema.LabelDType, 0, 0, 0), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := s.schema.LabelDim
	out := tensor.New(s.schema.LabelDType, len(labellerIDs), len(instanceIDs), f)
	if len(labellerIDs) == 0 || len(instanceIDs) == 0 {
		return out, nil
	}

	lid := labellerIDs[0]
	if lid >= uint64(s.labels.Dim(0)) {
		return nil, fmt.Errorf("%w: labeller %d (%d stored)", acton.ErrOutOfRange, lid, s.labels.Dim(0))
	}

	// Fetch each distinct instance once, then expand to the requested order.
	unique, index := dedup(instanceIDs)
	cols := s.labels.Dim(1)
	cellSize := f * s.schema.LabelDType.ItemSize()
	fetched := make([]byte, len(unique)*cellSize)
	src := s.labels.Bytes()
	for i, iid := range unique {
		if iid >= uint64(cols) {
			return nil, fmt.Errorf("%w: instance %d (%d stored)", acton.ErrOutOfRange, iid, cols)
		}
		at := (int(lid)*cols + int(iid)) * cellSize
		copy(fetched[i*cellSize:(i+1)*cellSize], src[at:at+cellSize])
	}

	dst := out.Bytes()
	for i, u := range index {
		copy(dst[i*cellSize:(i+1)*cellSize], fetched[u*cellSize:(u+1)*cellSize])
	}
	return out, nil
}

// KnownInstanceIDs returns every instance id ever written, in first-seen order.
func (s *Store) KnownInstanceIDs(_ context.Context) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, acton.ErrClosed
	}
	return s.instances.ids(), nil
}

// KnownLabellerIDs returns every labeller id ever written, in first-seen order.
func (s *Store) KnownLabellerIDs(_ context.Context) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, acton.ErrClosed
	}
	return s.labellers.ids(), nil
}

// Flush persists pending changes.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return acton.ErrClosed
	}
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	data, err := s.encode()
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, s.name, data); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.dirty = false
	s.logger.DebugContext(ctx, "flushed store", "path", s.path, "bytes", len(data))
	return nil
}

// Close flushes pending changes and releases the store. Closing twice is a
// no-op; every other operation on a closed store fails with acton.ErrClosed.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.flushLocked(ctx)
	unlockErr := s.locker.Unlock(ctx)
	s.features, s.labels = nil, nil
	return errors.Join(flushErr, unlockErr)
}

func (s *Store) cast(ctx context.Context, what string, a *tensor.Array, dt tensor.DType) (*tensor.Array, error) {
	if a.DType() == dt {
		return a, nil
	}
	out, lossy, err := a.Cast(dt)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot cast %s from %s to %s: %w", acton.ErrSchemaMismatch, what, a.DType(), dt, err)
	}
	s.logger.LogCast(ctx, what, a.DType().String(), dt.String(), lossy)
	return out, nil
}

func checkIDs(ids []uint64) (uint64, error) {
	var maxID uint64
	for _, id := range ids {
		if id >= maxRows {
			return 0, fmt.Errorf("%w: id %d exceeds %d", acton.ErrOutOfRange, id, uint64(maxRows-1))
		}
		maxID = max(maxID, id)
	}
	return maxID, nil
}

// dedup returns the distinct ids in first-seen order and, for every input
// position, the index of its id in the distinct list.
func dedup(ids []uint64) ([]uint64, []int) {
	seen := make(map[uint64]int, len(ids))
	unique := make([]uint64, 0, len(ids))
	index := make([]int, len(ids))
	for i, id := range ids {
		u, ok := seen[id]
		if !ok {
			u = len(unique)
			seen[id] = u
			unique = append(unique, id)
		}
		index[i] = u
	}
	return unique, index
}

// growRows extends a [rows, D] array to rows rows, zero filling.
func growRows(a *tensor.Array, rows int) *tensor.Array {
	d := a.Dim(1)
	data := make([]byte, rows*d*a.DType().ItemSize())
	copy(data, a.Bytes())
	out, _ := tensor.FromBytes(a.DType(), []int{rows, d}, data)
	return out
}

// growLabels re-lays a [T, N, F] tensor into [t, n, F], zero filling.
func growLabels(a *tensor.Array, t, n int) *tensor.Array {
	oldT, oldN, f := a.Dim(0), a.Dim(1), a.Dim(2)
	out := tensor.New(a.DType(), t, n, f)
	rowSize := oldN * f * a.DType().ItemSize()
	newRowSize := n * f * a.DType().ItemSize()
	src, dst := a.Bytes(), out.Bytes()
	for ti := 0; ti < oldT; ti++ {
		copy(dst[ti*newRowSize:ti*newRowSize+rowSize], src[ti*rowSize:(ti+1)*rowSize])
	}
	return out
}
