package database

import (
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/internal/compress"
	"github.com/hupe1980/acton/store"
	"github.com/hupe1980/acton/tabular"
	"github.com/hupe1980/acton/tensor"
)

// Descriptor option keys.
const (
	OptLabelCol     = "label_col"
	OptFeatureCols  = "feature_cols" // comma separated
	OptTable        = "table"
	OptDelimiter    = "delimiter"
	OptFeatureDType = "feature_dtype"
	OptLabelDType   = "label_dtype"
	OptCompression  = "compression"
)

// Descriptor is the serialisable address of a database: enough to reopen it.
// Descriptors are recorded in every prediction snapshot.
type Descriptor struct {
	Kind    Kind              `json:"kind" yaml:"kind"`
	Path    string            `json:"path" yaml:"path"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	d.Options = maps.Clone(d.Options)
	return d
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s", d.Kind, d.Path)
}

// tabularOptions translates descriptor options for the read-only adapters.
func (d Descriptor) tabularOptions(logger *acton.Logger) (tabular.Options, error) {
	o := tabular.Options{
		LabelCol: d.Options[OptLabelCol],
		Table:    d.Options[OptTable],
		Logger:   logger,
	}
	if cols := d.Options[OptFeatureCols]; cols != "" {
		for _, c := range strings.Split(cols, ",") {
			if c = strings.TrimSpace(c); c != "" {
				o.FeatureCols = append(o.FeatureCols, c)
			}
		}
	}
	if delim := d.Options[OptDelimiter]; delim != "" {
		r, err := parseDelimiter(delim)
		if err != nil {
			return tabular.Options{}, err
		}
		o.Delimiter = r
	}
	return o, nil
}

// storeOptions translates descriptor options for the managed store.
func (d Descriptor) storeOptions() ([]store.Option, error) {
	var opts []store.Option
	if s := d.Options[OptFeatureDType]; s != "" {
		dt, err := tensor.ParseDType(s)
		if err != nil {
			return nil, acton.Configurationf("%s: %v", OptFeatureDType, err)
		}
		opts = append(opts, store.WithFeatureDType(dt))
	}
	if s := d.Options[OptLabelDType]; s != "" {
		dt, err := tensor.ParseDType(s)
		if err != nil {
			return nil, acton.Configurationf("%s: %v", OptLabelDType, err)
		}
		opts = append(opts, store.WithLabelDType(dt))
	}
	if s := d.Options[OptCompression]; s != "" {
		ct, err := compress.Parse(s)
		if err != nil {
			return nil, acton.Configurationf("%s: %v", OptCompression, err)
		}
		opts = append(opts, store.WithCompression(ct))
	}
	return opts, nil
}

func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case `\t`, "tab":
		return '\t', nil
	case "comma":
		return ',', nil
	case "space":
		return ' ', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, acton.Configurationf("%s must be a single character, got %q", OptDelimiter, s)
	}
	return r, nil
}
