package tabular

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/tensor"
)

// Options selects the columns of a tabular source.
type Options struct {
	// LabelCol names the label column. Empty means the source has no labels.
	LabelCol string

	// FeatureCols names the feature columns. Empty means every column except
	// LabelCol.
	FeatureCols []string

	// Delimiter separates fields of delimited text. Zero selects a tab for
	// .tsv and .tab files and a comma otherwise.
	Delimiter rune

	// Table names the SQLite table of a frame source. Empty selects the only
	// table in the file.
	Table string

	// Logger receives import and read diagnostics. Nil means no logging.
	Logger *acton.Logger
}

func (o Options) logger(component string) *acton.Logger {
	l := o.Logger
	if l == nil {
		l = acton.NoopLogger()
	}
	return l.WithComponent(component)
}

// resolveColumns maps the configured label and feature columns onto the
// header. It returns the label index (-1 without labels) and the feature
// indices in the configured order. A label column alone is enough.
func (o Options) resolveColumns(header []string) (int, []int, error) {
	labelIdx := -1
	if o.LabelCol != "" {
		labelIdx = slices.Index(header, o.LabelCol)
		if labelIdx < 0 {
			return 0, nil, acton.Configurationf("label column %q not found", o.LabelCol)
		}
	}

	var featureIdx []int
	if len(o.FeatureCols) == 0 {
		for i := range header {
			if i != labelIdx {
				featureIdx = append(featureIdx, i)
			}
		}
	} else {
		for _, name := range o.FeatureCols {
			i := slices.Index(header, name)
			if i < 0 {
				return 0, nil, acton.Configurationf("feature column %q not found", name)
			}
			if i == labelIdx {
				return 0, nil, acton.Configurationf("column %q is both label and feature", name)
			}
			featureIdx = append(featureIdx, i)
		}
	}
	if len(featureIdx) == 0 && labelIdx < 0 {
		return 0, nil, acton.Configurationf("no feature or label columns")
	}
	return labelIdx, featureIdx, nil
}

// rowSource is the per-row access a proxied source provides.
type rowSource interface {
	numRows() int
	rowFeatures(ctx context.Context, row int, dst []float64) error
	rowLabel(ctx context.Context, row int) (tensor.Value, error)
}

// proxy implements the database read path over a rowSource.
type proxy struct {
	src        rowSource
	nFeatures  int
	labelDType tensor.DType
	hasLabels  bool
	closed     bool
}

func (p *proxy) checkRows(ids []uint64) error {
	n := uint64(p.src.numRows())
	for _, id := range ids {
		if id >= n {
			return fmt.Errorf("%w: instance %d (%d rows)", acton.ErrOutOfRange, id, n)
		}
	}
	return nil
}

func (p *proxy) readFeatures(ctx context.Context, ids []uint64) (*tensor.Array, error) {
	if p.closed {
		return nil, acton.ErrClosed
	}
	if err := p.checkRows(ids); err != nil {
		return nil, err
	}
	out := tensor.New(tensor.Float64, len(ids), p.nFeatures)
	row := make([]float64, p.nFeatures)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.src.rowFeatures(ctx, int(id), row); err != nil {
			return nil, err
		}
		for j, v := range row {
			out.SetFloat(i*p.nFeatures+j, v)
		}
	}
	return out, nil
}

func (p *proxy) readLabels(ctx context.Context, labellerIDs, instanceIDs []uint64) (*tensor.Array, error) {
	if p.closed {
		return nil, acton.ErrClosed
	}
	if len(labellerIDs) > 1 {
		return nil, fmt.Errorf("%w: reading labels of %d labellers, only one is supported", acton.ErrUnsupported, len(labellerIDs))
	}
	if !p.hasLabels {
		return nil, fmt.Errorf("%w: source has no label column", acton.ErrMissingSchema)
	}
	out := tensor.New(p.labelDType, len(labellerIDs), len(instanceIDs), 1)
	if len(labellerIDs) == 0 || len(instanceIDs) == 0 {
		return out, nil
	}
	if labellerIDs[0] != 0 {
		return nil, fmt.Errorf("%w: labeller %d (only labeller 0 exists)", acton.ErrOutOfRange, labellerIDs[0])
	}
	if err := p.checkRows(instanceIDs); err != nil {
		return nil, err
	}
	for i, id := range instanceIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := p.src.rowLabel(ctx, int(id))
		if err != nil {
			return nil, err
		}
		if _, err := out.SetValue(i, v); err != nil {
			return nil, fmt.Errorf("label of instance %d: %w", id, err)
		}
	}
	return out, nil
}

func (p *proxy) knownInstanceIDs() ([]uint64, error) {
	if p.closed {
		return nil, acton.ErrClosed
	}
	return rowIDs(p.src.numRows()), nil
}

func knownLabellers(closed, hasLabels bool) ([]uint64, error) {
	if closed {
		return nil, acton.ErrClosed
	}
	if !hasLabels {
		return []uint64{}, nil
	}
	return []uint64{0}, nil
}

func readOnly(closed bool) error {
	if closed {
		return acton.ErrClosed
	}
	return acton.ErrReadOnly
}

func rowIDs(n int) []uint64 {
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = uint64(i)
	}
	return ids
}
