package store

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/acton/tensor"
)

// Unset marks a dimension that has not been fixed by a write yet.
const Unset = -1

// Schema describes the persisted layout of a store.
type Schema struct {
	FeatureDType tensor.DType
	LabelDType   tensor.DType
	NFeatures    int // D, Unset until the first feature write
	LabelDim     int // F, Unset until the first label write
}

// DefaultDType is used for dtypes that were not requested on creation.
var DefaultDType = tensor.Float32

// registry is an append-only, deduplicated, insertion-ordered id list.
type registry struct {
	order []uint64
	set   *roaring64.Bitmap
}

func newRegistry() *registry {
	return &registry{set: roaring64.New()}
}

// add appends the ids not seen before, in first-seen order.
func (r *registry) add(ids []uint64) int {
	added := 0
	for _, id := range ids {
		if r.set.CheckedAdd(id) {
			r.order = append(r.order, id)
			added++
		}
	}
	return added
}

func (r *registry) contains(id uint64) bool { return r.set.Contains(id) }

func (r *registry) ids() []uint64 {
	return append([]uint64(nil), r.order...)
}

func (r *registry) len() int { return len(r.order) }
