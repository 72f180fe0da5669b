package persistence

import (
	"errors"
)

const (
	// MagicNumber identifies acton store files (ASCII: "ACTN").
	MagicNumber uint32 = 0x4e544341
	// Version is the current file format version.
	Version uint16 = 1

	// HeaderSize is the size of the fixed file header in bytes.
	HeaderSize = 24

	// maxRank bounds the rank of a persisted array.
	maxRank = 8
)

// Section names written by the managed store.
const (
	SectionAttrs       = "attrs"
	SectionFeatures    = "features"
	SectionLabels      = "labels"
	SectionInstanceIDs = "instance_ids"
	SectionLabellerIDs = "labeller_ids"
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrTruncated      = errors.New("truncated store file")
	ErrMalformed      = errors.New("malformed section")
)

// FileHeader is the fixed header at the start of every store file.
type FileHeader struct {
	Magic       uint32
	Version     uint16
	Compression uint8
	Reserved1   uint8
	PayloadLen  uint64
	Checksum    uint32
	Reserved2   uint32
}

// Attrs are the persisted schema attributes. Unset dimensions are -1.
type Attrs struct {
	FeatureDType string `json:"feature_dtype"`
	LabelDType   string `json:"label_dtype"`
	NFeatures    int    `json:"n_features"`
	LabelDim     int    `json:"label_dim"`
}

// Section is one named array of a store file.
type Section struct {
	Name  string
	DType string
	Shape []int
	Data  []byte
}

// File is the decoded content of a store file.
type File struct {
	Attrs    Attrs
	Sections []Section
}

// Section returns the section with the given name.
func (f *File) Section(name string) (Section, bool) {
	for _, s := range f.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}
