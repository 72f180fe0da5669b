package store

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/persistence"
	"github.com/hupe1980/acton/tensor"
)

const idDType = "int64"

func (s *Store) encode() ([]byte, error) {
	f := &persistence.File{
		Attrs: persistence.Attrs{
			FeatureDType: s.schema.FeatureDType.String(),
			LabelDType:   s.schema.LabelDType.String(),
			NFeatures:    s.schema.NFeatures,
			LabelDim:     s.schema.LabelDim,
		},
		Sections: []persistence.Section{
			arraySection(persistence.SectionFeatures, s.features),
			arraySection(persistence.SectionLabels, s.labels),
			idSection(persistence.SectionInstanceIDs, s.instances.order),
			idSection(persistence.SectionLabellerIDs, s.labellers.order),
		},
	}
	data, err := persistence.Marshal(f, s.compression, s.codec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.path, err)
	}
	return data, nil
}

// decode loads a persisted store and validates its structure. Every
// violation is reported as a *acton.CorruptStoreError.
func (s *Store) decode(data []byte) error {
	corrupt := func(reason string, cause error) error {
		return acton.NewCorruptStoreError(s.path, reason, cause)
	}

	f, err := persistence.Unmarshal(data, s.codec)
	if persistence.IsChecksumMismatch(err) {
		return corrupt("checksum mismatch", err)
	}
	if err != nil {
		return corrupt("unreadable file", err)
	}

	featureDT, err := tensor.ParseDType(f.Attrs.FeatureDType)
	if err != nil {
		return corrupt("invalid feature_dtype", err)
	}
	labelDT, err := tensor.ParseDType(f.Attrs.LabelDType)
	if err != nil {
		return corrupt("invalid label_dtype", err)
	}
	if f.Attrs.NFeatures < Unset || f.Attrs.LabelDim < Unset {
		return corrupt(fmt.Sprintf("invalid dimensions n_features=%d label_dim=%d", f.Attrs.NFeatures, f.Attrs.LabelDim), nil)
	}

	features, err := loadArray(f, persistence.SectionFeatures, featureDT, 2)
	if err != nil {
		return corrupt("features", err)
	}
	labels, err := loadArray(f, persistence.SectionLabels, labelDT, 3)
	if err != nil {
		return corrupt("labels", err)
	}
	instances, err := loadIDs(f, persistence.SectionInstanceIDs)
	if err != nil {
		return corrupt("instance_ids", err)
	}
	labellers, err := loadIDs(f, persistence.SectionLabellerIDs)
	if err != nil {
		return corrupt("labeller_ids", err)
	}

	if err := checkDim(features, 1, f.Attrs.NFeatures); err != nil {
		return corrupt("features", err)
	}
	if err := checkDim(labels, 2, f.Attrs.LabelDim); err != nil {
		return corrupt("labels", err)
	}

	s.schema = Schema{
		FeatureDType: featureDT,
		LabelDType:   labelDT,
		NFeatures:    f.Attrs.NFeatures,
		LabelDim:     f.Attrs.LabelDim,
	}
	s.features = features
	s.labels = labels
	s.instances = instances
	s.labellers = labellers
	return nil
}

func arraySection(name string, a *tensor.Array) persistence.Section {
	return persistence.Section{
		Name:  name,
		DType: a.DType().String(),
		Shape: a.Shape(),
		Data:  a.Bytes(),
	}
}

func idSection(name string, ids []uint64) persistence.Section {
	data := make([]byte, 0, len(ids)*8)
	for _, id := range ids {
		data = binary.LittleEndian.AppendUint64(data, id)
	}
	return persistence.Section{
		Name:  name,
		DType: idDType,
		Shape: []int{len(ids)},
		Data:  data,
	}
}

func loadArray(f *persistence.File, name string, dt tensor.DType, rank int) (*tensor.Array, error) {
	sec, ok := f.Section(name)
	if !ok {
		return nil, fmt.Errorf("missing section")
	}
	if len(sec.Shape) != rank {
		return nil, fmt.Errorf("rank %d, expected %d", len(sec.Shape), rank)
	}
	got, err := tensor.ParseDType(sec.DType)
	if err != nil {
		return nil, err
	}
	if got != dt {
		return nil, fmt.Errorf("dtype %s does not match schema dtype %s", got, dt)
	}
	for _, d := range sec.Shape {
		if d > maxRows {
			return nil, fmt.Errorf("dimension %d too large", d)
		}
	}
	return tensor.FromBytes(dt, sec.Shape, sec.Data)
}

func loadIDs(f *persistence.File, name string) (*registry, error) {
	sec, ok := f.Section(name)
	if !ok {
		return nil, fmt.Errorf("missing section")
	}
	if len(sec.Shape) != 1 {
		return nil, fmt.Errorf("rank %d, expected 1", len(sec.Shape))
	}
	if sec.DType != idDType {
		return nil, fmt.Errorf("dtype %q, expected %s", sec.DType, idDType)
	}
	if len(sec.Data) != sec.Shape[0]*8 {
		return nil, fmt.Errorf("%d ids need %d bytes, got %d", sec.Shape[0], sec.Shape[0]*8, len(sec.Data))
	}
	r := newRegistry()
	for i := 0; i < sec.Shape[0]; i++ {
		id := binary.LittleEndian.Uint64(sec.Data[i*8:])
		if r.add([]uint64{id}) == 0 {
			return nil, fmt.Errorf("duplicate id %d", id)
		}
	}
	return r, nil
}

// checkDim verifies axis against the schema. An unset dimension allows no
// stored elements.
func checkDim(a *tensor.Array, axis, want int) error {
	if want == Unset {
		if a.Len() != 0 {
			return fmt.Errorf("%d elements stored without a fixed dimension", a.Len())
		}
		return nil
	}
	if a.Dim(axis) != want {
		return fmt.Errorf("axis %d has extent %d, schema says %d", axis, a.Dim(axis), want)
	}
	return nil
}
