package active

import (
	"math"
	"slices"

	"github.com/hupe1980/acton/tensor"
)

// LabelEncoder maps raw labels to dense integer classes. Codes never change
// once assigned: labels first seen after fitting are appended. All NaN
// labels share one class, ordered after every other number.
type LabelEncoder struct {
	classes []tensor.Value
	index   map[tensor.Value]int
}

// FitEncoder fits an encoder on labels. Classes are numbered in sorted
// order (numbers before text).
func FitEncoder(labels []tensor.Value) *LabelEncoder {
	e := &LabelEncoder{index: make(map[tensor.Value]int)}
	e.add(labels)
	return e
}

func (e *LabelEncoder) add(labels []tensor.Value) {
	var fresh []tensor.Value
	for _, v := range labels {
		v = canonical(v)
		if _, ok := e.index[v]; ok || slices.Contains(fresh, v) {
			continue
		}
		fresh = append(fresh, v)
	}
	slices.SortFunc(fresh, func(a, b tensor.Value) int {
		a, b = label(a), label(b)
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	for _, v := range fresh {
		e.index[v] = len(e.classes)
		e.classes = append(e.classes, v)
	}
}

// Encode returns the classes of labels, assigning codes to unseen labels.
func (e *LabelEncoder) Encode(labels []tensor.Value) []int {
	e.add(labels)
	out := make([]int, len(labels))
	for i, v := range labels {
		out[i] = e.index[canonical(v)]
	}
	return out
}

// nanKey stands in for every NaN label, which cannot be a map key. Real
// numbers never carry a string, so it collides with no label.
var nanKey = tensor.Value{Str: "NaN"}

// canonical maps NaN to nanKey.
func canonical(v tensor.Value) tensor.Value {
	if !v.Text && math.IsNaN(v.Num) {
		return nanKey
	}
	return v
}

// Decode returns the label of class c.
func (e *LabelEncoder) Decode(c int) (tensor.Value, bool) {
	if c < 0 || c >= len(e.classes) {
		return tensor.Value{}, false
	}
	return label(e.classes[c]), true
}

// Classes returns the labels in class order.
func (e *LabelEncoder) Classes() []tensor.Value {
	out := make([]tensor.Value, len(e.classes))
	for i, v := range e.classes {
		out[i] = label(v)
	}
	return out
}

func label(v tensor.Value) tensor.Value {
	if v == nanKey {
		return tensor.Number(math.NaN())
	}
	return v
}

// Len returns the number of classes.
func (e *LabelEncoder) Len() int { return len(e.classes) }
