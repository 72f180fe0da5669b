package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/internal/compress"
)

func sampleFile() *File {
	return &File{
		Attrs: Attrs{FeatureDType: "float32", LabelDType: "S3", NFeatures: 2, LabelDim: -1},
		Sections: []Section{
			{Name: SectionFeatures, DType: "float32", Shape: []int{1, 2}, Data: []byte{0, 0, 128, 63, 0, 0, 0, 64}},
			{Name: SectionInstanceIDs, DType: "int64", Shape: []int{0}, Data: []byte{}},
		},
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, ct := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		t.Run(ct.String(), func(t *testing.T) {
			data, err := Marshal(sampleFile(), ct, nil)
			require.NoError(t, err)

			got, err := Unmarshal(data, codec.JSON{})
			require.NoError(t, err)
			assert.Equal(t, sampleFile().Attrs, got.Attrs)

			s, ok := got.Section(SectionFeatures)
			require.True(t, ok)
			assert.Equal(t, []int{1, 2}, s.Shape)
			assert.Equal(t, "float32", s.DType)
			assert.Len(t, s.Data, 8)

			_, ok = got.Section(SectionLabels)
			assert.False(t, ok)
		})
	}
}

func TestUnmarshalRejectsDamage(t *testing.T) {
	data, err := Marshal(sampleFile(), compress.None, nil)
	require.NoError(t, err)

	t.Run("magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] ^= 0xFF
		_, err := Unmarshal(bad, nil)
		require.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[4] = 99
		_, err := Unmarshal(bad, nil)
		require.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Unmarshal(data[:len(data)-3], nil)
		require.ErrorIs(t, err, ErrTruncated)
		_, err = Unmarshal(data[:10], nil)
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("checksum", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[len(bad)-1] ^= 0x01
		_, err := Unmarshal(bad, nil)
		require.Error(t, err)
		assert.True(t, IsChecksumMismatch(err))
	})
}

func TestMarshalValidation(t *testing.T) {
	_, err := Marshal(sampleFile(), compress.Type(9), nil)
	require.Error(t, err)

	f := sampleFile()
	f.Sections = append(f.Sections, Section{Name: "deep", Shape: make([]int, maxRank+1)})
	_, err = Marshal(f, compress.None, nil)
	require.Error(t, err)
}
