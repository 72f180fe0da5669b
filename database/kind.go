package database

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/hupe1980/acton"
)

// Kind identifies a database variant. The set is closed.
type Kind string

const (
	// KindManaged is the read-write managed store (package store).
	KindManaged Kind = "managed"
	// KindDelimited is CSV or TSV text.
	KindDelimited Kind = "delimited"
	// KindColumnar is an Apache Arrow IPC file.
	KindColumnar Kind = "columnar"
	// KindFrame is a SQLite table.
	KindFrame Kind = "frame"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindManaged, KindDelimited, KindColumnar, KindFrame}
}

func (k Kind) String() string { return string(k) }

func kindList() string {
	names := make([]string, 0, 4)
	for _, k := range Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool { return slices.Contains(Kinds(), k) }

// ReadOnly reports whether databases of kind k reject writes.
func (k Kind) ReadOnly() bool { return k != KindManaged }

// ParseKind parses a kind name. A few aliases are accepted ("csv", "tsv",
// "ascii", "arrow", "feather", "sqlite", "pandas"). Unknown names are
// configuration errors.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "managed", "store", "acton":
		return KindManaged, nil
	case "delimited", "csv", "tsv", "ascii", "text":
		return KindDelimited, nil
	case "columnar", "arrow", "feather", "ipc":
		return KindColumnar, nil
	case "frame", "sqlite", "pandas":
		return KindFrame, nil
	default:
		return "", acton.Configurationf("unknown database kind %q (valid: %s)", s, kindList())
	}
}

// Detect infers the kind from the file extension of path. Anything that is
// not recognised is treated as delimited text.
func Detect(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".acton":
		return KindManaged
	case ".arrow", ".feather", ".ipc":
		return KindColumnar
	case ".sqlite", ".sqlite3", ".db":
		return KindFrame
	default:
		return KindDelimited
	}
}
