// Package oracle reveals ground-truth labels stored in a database.
//
// The oracle stands in for a human labeller: it reads the label of
// labeller 0 and never mutates the database. An optional rate limit
// simulates human throughput.
package oracle

import (
	"context"
	"fmt"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/resource"
	"github.com/hupe1980/acton/tensor"
)

// LabellerID is the labeller whose labels the oracle reveals.
const LabellerID uint64 = 0

// Oracle answers label queries from a database.
type Oracle struct {
	db     database.Database
	rc     *resource.Controller
	logger *acton.Logger
}

// Option configures New.
type Option func(*Oracle)

// WithController sets the resource controller whose label rate limits the
// oracle. Oracles sharing a controller draw on the same labelling budget.
func WithController(rc *resource.Controller) Option {
	return func(o *Oracle) {
		o.rc = rc
	}
}

// WithLogger sets the logger.
func WithLogger(l *acton.Logger) Option {
	return func(o *Oracle) {
		if l != nil {
			o.logger = l
		}
	}
}

// New returns an oracle over db.
func New(db database.Database, opts ...Option) *Oracle {
	o := &Oracle{db: db, logger: acton.NoopLogger()}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithComponent("oracle")
	return o
}

// Query returns the label of id: the first label dimension of labeller 0.
func (o *Oracle) Query(ctx context.Context, id uint64) (tensor.Value, error) {
	labels, err := o.QueryAll(ctx, []uint64{id})
	if err != nil {
		return tensor.Value{}, err
	}
	return labels[0], nil
}

// QueryAll returns the labels of ids, in order.
func (o *Oracle) QueryAll(ctx context.Context, ids []uint64) ([]tensor.Value, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := o.rc.AcquireLabels(ctx, len(ids)); err != nil {
		return nil, fmt.Errorf("wait for labelling budget: %w", err)
	}

	labels, err := o.db.ReadLabels(ctx, []uint64{LabellerID}, ids)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	f := labels.Dim(2)
	if f == 0 {
		return nil, fmt.Errorf("%w: labels have no dimensions", acton.ErrMissingSchema)
	}
	out := make([]tensor.Value, len(ids))
	for i := range ids {
		out[i] = labels.At(0, i, 0)
	}
	o.logger.Log(ctx, acton.LevelTrace, "answered label queries", "count", len(ids))
	return out, nil
}
