package persistence

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/internal/compress"
)

// Marshal encodes f as a complete store file. Attrs are encoded with c
// (codec.Default when nil) and the section payload is compressed with ct.
func Marshal(f *File, ct compress.Type, c codec.Codec) ([]byte, error) {
	if !ct.Valid() {
		return nil, fmt.Errorf("invalid compression type %d", ct)
	}
	if c == nil {
		c = codec.Default
	}

	attrs, err := c.Marshal(f.Attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attrs: %w", err)
	}

	sections := make([]Section, 0, len(f.Sections)+1)
	sections = append(sections, Section{Name: SectionAttrs, Data: attrs})
	sections = append(sections, f.Sections...)
	if len(sections) > 0xFFFF {
		return nil, fmt.Errorf("too many sections: %d", len(sections))
	}

	raw := binary.LittleEndian.AppendUint16(nil, uint16(len(sections))) //nolint:gosec // bounded above
	for _, s := range sections {
		if raw, err = appendSection(raw, s); err != nil {
			return nil, err
		}
	}

	payload, err := compress.Encode(raw, ct)
	if err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}

	h := FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Compression: uint8(ct),
		PayloadLen:  uint64(len(payload)),
		Checksum:    CalculateChecksum(payload),
	}
	out := make([]byte, 0, HeaderSize+len(payload))
	out = appendHeader(out, h)
	return append(out, payload...), nil
}

// Unmarshal decodes a complete store file. Structural problems are reported
// as ErrInvalidMagic, ErrInvalidVersion, ErrTruncated, ErrMalformed or a
// *ChecksumMismatchError.
func Unmarshal(data []byte, c codec.Codec) (*File, error) {
	if c == nil {
		c = codec.Default
	}

	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	payload := data[HeaderSize:]
	if uint64(len(payload)) != h.PayloadLen {
		return nil, fmt.Errorf("%w: payload has %d bytes, header says %d", ErrTruncated, len(payload), h.PayloadLen)
	}
	if err := VerifyChecksum(payload, h.Checksum); err != nil {
		return nil, err
	}

	raw, err := compress.Decode(payload, compress.Type(h.Compression))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	r := &sectionReader{buf: raw}
	count, err := r.readU16()
	if err != nil {
		return nil, err
	}

	f := &File{}
	seenAttrs := false
	for i := 0; i < int(count); i++ {
		s, err := r.section()
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		if s.Name == SectionAttrs {
			if err := c.Unmarshal(s.Data, &f.Attrs); err != nil {
				return nil, fmt.Errorf("%w: attrs: %w", ErrMalformed, err)
			}
			seenAttrs = true
			continue
		}
		if _, dup := f.Section(s.Name); dup {
			return nil, fmt.Errorf("%w: duplicate section %q", ErrMalformed, s.Name)
		}
		f.Sections = append(f.Sections, s)
	}
	if !seenAttrs {
		return nil, fmt.Errorf("%w: missing %q section", ErrMalformed, SectionAttrs)
	}
	if r.off != len(r.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.buf)-r.off)
	}
	return f, nil
}

// ReadHeader parses and validates the fixed header at the start of data.
func ReadHeader(data []byte) (FileHeader, error) {
	if len(data) < HeaderSize {
		return FileHeader{}, fmt.Errorf("%w: %d header bytes", ErrTruncated, len(data))
	}
	le := binary.LittleEndian
	h := FileHeader{
		Magic:       le.Uint32(data[0:]),
		Version:     le.Uint16(data[4:]),
		Compression: data[6],
		Reserved1:   data[7],
		PayloadLen:  le.Uint64(data[8:]),
		Checksum:    le.Uint32(data[16:]),
		Reserved2:   le.Uint32(data[20:]),
	}
	if h.Magic != MagicNumber {
		return h, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: got %d", ErrInvalidVersion, h.Version)
	}
	if !compress.Type(h.Compression).Valid() {
		return h, fmt.Errorf("%w: unknown compression %d", ErrMalformed, h.Compression)
	}
	return h, nil
}

func appendHeader(b []byte, h FileHeader) []byte {
	le := binary.LittleEndian
	b = le.AppendUint32(b, h.Magic)
	b = le.AppendUint16(b, h.Version)
	b = append(b, h.Compression, h.Reserved1)
	b = le.AppendUint64(b, h.PayloadLen)
	b = le.AppendUint32(b, h.Checksum)
	return le.AppendUint32(b, h.Reserved2)
}

func appendSection(b []byte, s Section) ([]byte, error) {
	if len(s.Name) == 0 || len(s.Name) > 0xFFFF {
		return nil, fmt.Errorf("invalid section name %q", s.Name)
	}
	if len(s.DType) > 0xFF {
		return nil, fmt.Errorf("section %s: dtype too long", s.Name)
	}
	if len(s.Shape) > maxRank {
		return nil, fmt.Errorf("section %s: rank %d exceeds %d", s.Name, len(s.Shape), maxRank)
	}

	le := binary.LittleEndian
	b = le.AppendUint16(b, uint16(len(s.Name))) //nolint:gosec // bounded above
	b = append(b, s.Name...)
	b = append(b, uint8(len(s.DType))) //nolint:gosec // bounded above
	b = append(b, s.DType...)
	b = append(b, uint8(len(s.Shape))) //nolint:gosec // bounded above
	for _, d := range s.Shape {
		if d < 0 {
			return nil, fmt.Errorf("section %s: negative dimension", s.Name)
		}
		b = le.AppendUint64(b, uint64(d))
	}
	b = le.AppendUint64(b, uint64(len(s.Data)))
	return append(b, s.Data...), nil
}

type sectionReader struct {
	buf []byte
	off int
}

func (r *sectionReader) next(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrMalformed, n, r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *sectionReader) readU8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *sectionReader) readU16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *sectionReader) readU64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *sectionReader) section() (Section, error) {
	var s Section

	nameLen, err := r.readU16()
	if err != nil {
		return s, err
	}
	name, err := r.next(int(nameLen))
	if err != nil {
		return s, err
	}
	s.Name = string(name)

	dtLen, err := r.readU8()
	if err != nil {
		return s, err
	}
	dt, err := r.next(int(dtLen))
	if err != nil {
		return s, err
	}
	s.DType = string(dt)

	rank, err := r.readU8()
	if err != nil {
		return s, err
	}
	if rank > maxRank {
		return s, fmt.Errorf("%w: rank %d exceeds %d", ErrMalformed, rank, maxRank)
	}
	s.Shape = make([]int, rank)
	for i := range s.Shape {
		d, err := r.readU64()
		if err != nil {
			return s, err
		}
		if d > uint64(len(r.buf)) && d > 1<<40 {
			return s, fmt.Errorf("%w: dimension %d too large", ErrMalformed, d)
		}
		s.Shape[i] = int(d) //nolint:gosec // bounded above
	}

	n, err := r.readU64()
	if err != nil {
		return s, err
	}
	if n > uint64(len(r.buf)-r.off) {
		return s, fmt.Errorf("%w: section %s claims %d bytes", ErrMalformed, s.Name, n)
	}
	data, err := r.next(int(n)) //nolint:gosec // bounded above
	if err != nil {
		return s, err
	}
	s.Data = append([]byte(nil), data...)
	return s, nil
}
