package tensor

import (
	"math"
	"strconv"
)

// Value is a single element read from an Array. It is comparable and can be
// used as a map key.
type Value struct {
	Num  float64
	Str  string
	Text bool
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{Num: f} }

// Text returns a text Value.
func Text(s string) Value { return Value{Str: s, Text: true} }

// String formats the value. Integral numbers are printed without a fraction.
func (v Value) String() string {
	if v.Text {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// Float returns the numeric value. Text is parsed; ok is false when it is
// not a number.
func (v Value) Float() (float64, bool) {
	if !v.Text {
		return v.Num, true
	}
	f, err := strconv.ParseFloat(v.Str, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Less orders numbers before text, numbers numerically and text lexically.
// NaN sorts after every other number.
func (v Value) Less(o Value) bool {
	if v.Text != o.Text {
		return !v.Text
	}
	if v.Text {
		return v.Str < o.Str
	}
	if math.IsNaN(v.Num) || math.IsNaN(o.Num) {
		return !math.IsNaN(v.Num)
	}
	return v.Num < o.Num
}
