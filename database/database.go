package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/blobstore"
	"github.com/hupe1980/acton/lock"
	"github.com/hupe1980/acton/store"
	"github.com/hupe1980/acton/tabular"
	"github.com/hupe1980/acton/tensor"
)

// Database is the storage capability shared by every variant.
//
// Instance and labeller ids are row positions. Features are [N, D] and
// labels [T, N, F]. Read-only variants fail every write with
// acton.ErrReadOnly, and every operation after Close fails with
// acton.ErrClosed.
type Database interface {
	Kind() Kind
	Descriptor() Descriptor

	ReadFeatures(ctx context.Context, ids []uint64) (*tensor.Array, error)
	WriteFeatures(ctx context.Context, ids []uint64, features *tensor.Array) error
	ReadLabels(ctx context.Context, labellerIDs, instanceIDs []uint64) (*tensor.Array, error)
	WriteLabels(ctx context.Context, labellerIDs, instanceIDs []uint64, labels *tensor.Array) error
	KnownInstanceIDs(ctx context.Context) ([]uint64, error)
	KnownLabellerIDs(ctx context.Context) ([]uint64, error)
	Close(ctx context.Context) error
}

// backend is what the variants implement themselves.
type backend interface {
	ReadFeatures(ctx context.Context, ids []uint64) (*tensor.Array, error)
	WriteFeatures(ctx context.Context, ids []uint64, features *tensor.Array) error
	ReadLabels(ctx context.Context, labellerIDs, instanceIDs []uint64) (*tensor.Array, error)
	WriteLabels(ctx context.Context, labellerIDs, instanceIDs []uint64, labels *tensor.Array) error
	KnownInstanceIDs(ctx context.Context) ([]uint64, error)
	KnownLabellerIDs(ctx context.Context) ([]uint64, error)
	Close(ctx context.Context) error
}

var (
	_ backend = (*store.Store)(nil)
	_ backend = (*tabular.Delimited)(nil)
	_ backend = (*tabular.Columnar)(nil)
	_ backend = (*tabular.Frame)(nil)
)

type handle struct {
	backend
	desc Descriptor
}

func (h *handle) Kind() Kind             { return h.desc.Kind }
func (h *handle) Descriptor() Descriptor { return h.desc.Clone() }

// BlobResolver maps a remote location to the blob store holding it and an
// optional lock guarding it.
type BlobResolver func(ctx context.Context, loc blobstore.Location) (blobstore.Store, lock.Locker, error)

type options struct {
	logger    *acton.Logger
	storeOpts []store.Option
	resolver  BlobResolver
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger passed to the variant.
func WithLogger(l *acton.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStoreOptions appends options for managed stores. They are applied
// after the options derived from the descriptor.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithBlobResolver enables managed stores at remote locations
// ("s3://bucket/key", "minio://bucket/key").
func WithBlobResolver(r BlobResolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// Open opens the database described by desc. An unknown kind is an
// acton.ErrConfiguration and nothing is opened.
func Open(ctx context.Context, desc Descriptor, opts ...Option) (Database, error) {
	o := options{logger: acton.NoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if desc.Path == "" {
		return nil, acton.Configurationf("database path is empty")
	}

	var (
		b   backend
		err error
	)
	switch desc.Kind {
	case KindManaged:
		b, err = openManaged(ctx, desc, o)
	case KindDelimited, KindColumnar, KindFrame:
		b, err = openTabular(ctx, desc, o)
	default:
		return nil, acton.Configurationf("unknown database kind %q", desc.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database %s: %w", desc.Kind, desc.Path, err)
	}

	o.logger.DebugContext(ctx, "opened database", "kind", desc.Kind.String(), "path", desc.Path)
	return &handle{backend: b, desc: desc.Clone()}, nil
}

func openManaged(ctx context.Context, desc Descriptor, o options) (backend, error) {
	storeOpts, err := desc.storeOptions()
	if err != nil {
		return nil, err
	}
	storeOpts = append(storeOpts, store.WithLogger(o.logger))

	loc, err := blobstore.ParseLocation(desc.Path)
	if err != nil {
		return nil, acton.Configurationf("%v", err)
	}
	if loc.IsRemote() {
		if o.resolver == nil {
			return nil, acton.Configurationf("no blob store configured for %s locations", loc.Scheme)
		}
		bs, locker, err := o.resolver(ctx, loc)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, store.WithBlobStore(bs, loc.Name()))
		if locker != nil {
			storeOpts = append(storeOpts, store.WithLocker(locker))
		}
	}
	storeOpts = append(storeOpts, o.storeOpts...)

	s, err := store.Open(ctx, desc.Path, storeOpts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openTabular(ctx context.Context, desc Descriptor, o options) (backend, error) {
	topts, err := desc.tabularOptions(o.logger)
	if err != nil {
		return nil, err
	}
	switch desc.Kind {
	case KindDelimited:
		d, err := tabular.OpenDelimited(ctx, desc.Path, topts)
		if err != nil {
			return nil, err
		}
		return d, nil
	case KindColumnar:
		c, err := tabular.OpenColumnar(ctx, desc.Path, topts)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		f, err := tabular.OpenFrame(ctx, desc.Path, topts)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// Use opens the database described by desc, passes it to fn and closes it
// on every exit path. A close error is joined with the error of fn.
func Use(ctx context.Context, desc Descriptor, fn func(Database) error, opts ...Option) (err error) {
	db, err := Open(ctx, desc, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(ctx); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w", desc, cerr))
		}
	}()
	return fn(db)
}
