// Package compress frames byte blocks with optional LZ4 or ZSTD compression.
//
// Block format: [RawSize uint64][StoredSize uint64][Data...]. StoredSize == 0
// means the data is stored uncompressed (used when compression does not pay).
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores blocks verbatim.
	None Type = 0
	// LZ4 uses LZ4 block compression (fast).
	LZ4 Type = 1
	// ZSTD uses ZSTD compression (better ratio).
	ZSTD Type = 2
)

// HeaderSize is the size of the block header in bytes.
const HeaderSize = 16

var (
	// ErrCorrupt is returned for blocks that cannot be decoded.
	ErrCorrupt = errors.New("corrupt compressed block")

	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(t))
	}
}

// Parse parses "none", "lz4" or "zstd". The empty string means ZSTD.
func Parse(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

// Valid reports whether t is a known algorithm.
func (t Type) Valid() bool { return t <= ZSTD }

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode compresses data into a framed block.
func Encode(data []byte, t Type) ([]byte, error) {
	var packed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		packed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unknown compression %d", t)
	}

	// Incompressible (or disabled): store raw.
	if len(packed) == 0 || len(packed) >= len(data) {
		out := make([]byte, HeaderSize+len(data))
		binary.LittleEndian.PutUint64(out[0:], uint64(len(data)))
		copy(out[HeaderSize:], data)
		return out, nil
	}

	out := make([]byte, HeaderSize+len(packed))
	binary.LittleEndian.PutUint64(out[0:], uint64(len(data)))
	binary.LittleEndian.PutUint64(out[8:], uint64(len(packed)))
	copy(out[HeaderSize:], packed)
	return out, nil
}

// Decode reverses Encode. t must be the algorithm the block was written with.
func Decode(block []byte, t Type) ([]byte, error) {
	if len(block) < HeaderSize {
		return nil, fmt.Errorf("%w: block too small for header", ErrCorrupt)
	}
	rawSize := binary.LittleEndian.Uint64(block[0:])
	storedSize := binary.LittleEndian.Uint64(block[8:])
	body := block[HeaderSize:]

	if storedSize == 0 {
		if uint64(len(body)) != rawSize {
			return nil, fmt.Errorf("%w: raw block has %d bytes, header says %d", ErrCorrupt, len(body), rawSize)
		}
		return body, nil
	}
	if uint64(len(body)) != storedSize {
		return nil, fmt.Errorf("%w: compressed block has %d bytes, header says %d", ErrCorrupt, len(body), storedSize)
	}

	switch t {
	case LZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint64(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint64(len(out)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compressed block with compression %s", ErrCorrupt, t)
	}
}
