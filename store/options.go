package store

import (
	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/blobstore"
	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/internal/compress"
	"github.com/hupe1980/acton/lock"
	"github.com/hupe1980/acton/tensor"
)

type options struct {
	featureDType tensor.DType
	labelDType   tensor.DType
	blobs        blobstore.Store
	blobName     string
	locker       lock.Locker
	compression  compress.Type
	codec        codec.Codec
	logger       *acton.Logger
}

// Option configures Open.
type Option func(*options)

// WithFeatureDType requests a feature dtype. A new store is created with it;
// an existing store must already use it.
func WithFeatureDType(dt tensor.DType) Option {
	return func(o *options) {
		o.featureDType = dt
	}
}

// WithLabelDType requests a label dtype. A new store is created with it;
// an existing store must already use it.
func WithLabelDType(dt tensor.DType) Option {
	return func(o *options) {
		o.labelDType = dt
	}
}

// WithBlobStore persists the store as blob name in bs instead of the local
// file at the path passed to Open. No file lock is taken unless WithLocker
// is also given.
func WithBlobStore(bs blobstore.Store, name string) Option {
	return func(o *options) {
		o.blobs = bs
		o.blobName = name
	}
}

// WithLocker sets the lock that guards exclusive ownership.
func WithLocker(l lock.Locker) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithCompression sets the payload compression used when the store is
// written. Default: ZSTD.
func WithCompression(t compress.Type) Option {
	return func(o *options) {
		o.compression = t
	}
}

// WithCodec sets the codec for the persisted attributes.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger sets the logger. Casts on write are logged as warnings.
func WithLogger(l *acton.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
