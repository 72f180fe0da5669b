package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/internal/compress"
	"github.com/hupe1980/acton/persistence"
)

const (
	// Magic identifies snapshot streams.
	Magic = "ACTS"

	// Version is the current stream format version.
	Version uint16 = 1

	// FlagSingle marks a standalone single-record artefact.
	FlagSingle uint16 = 1 << 0

	headerFixedSize = 4 + 2 + 2 + 1 + 1
	frameHeaderSize = 8

	// MaxFrameSize bounds a single frame payload.
	MaxFrameSize = 1 << 30
)

var (
	// ErrInvalidHeader is returned for files that are not snapshot streams.
	ErrInvalidHeader = errors.New("invalid snapshot header")

	// ErrUnsupportedVersion is returned for streams of a newer format.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")

	// ErrTruncated is returned when the final frame is incomplete.
	ErrTruncated = errors.New("truncated snapshot frame")

	// ErrChecksum is returned when a frame fails CRC verification.
	ErrChecksum = errors.New("snapshot frame checksum mismatch")

	// ErrFrameTooLarge is returned for frames above MaxFrameSize.
	ErrFrameTooLarge = errors.New("snapshot frame too large")

	// ErrNotSingle is returned by ReadSingle for iterative streams.
	ErrNotSingle = errors.New("snapshot is not a single-record artefact")
)

// Metadata is the run-level header shared by every record.
type Metadata struct {
	Recommender string    `json:"recommender,omitempty"`
	Predictor   string    `json:"predictor"`
	Codec       string    `json:"codec"`
	Compression string    `json:"compression"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is the prediction snapshot of one epoch.
type Record struct {
	Epoch           int                 `json:"epoch"`
	Predictor       string              `json:"predictor"`
	Database        database.Descriptor `json:"database"`
	DatabaseOptions map[string]string   `json:"database_options,omitempty"`
	TestIDs         []uint64            `json:"test_ids"`

	// Predictions is laid out [test id][task][class].
	Predictions [][][]float64 `json:"predictions"`
}

// Descriptor returns the database descriptor with the recorded options.
func (r *Record) Descriptor() database.Descriptor {
	d := r.Database.Clone()
	if len(r.DatabaseOptions) > 0 {
		d.Options = make(map[string]string, len(r.DatabaseOptions))
		for k, v := range r.DatabaseOptions {
			d.Options[k] = v
		}
	}
	return d
}

// NewRecord builds a record for desc, splitting the options out of the
// descriptor.
func NewRecord(epoch int, predictor string, desc database.Descriptor, testIDs []uint64, predictions [][][]float64) Record {
	opts := desc.Clone().Options
	desc.Options = nil
	return Record{
		Epoch:           epoch,
		Predictor:       predictor,
		Database:        desc,
		DatabaseOptions: opts,
		TestIDs:         testIDs,
		Predictions:     predictions,
	}
}

type header struct {
	Version     uint16
	Flags       uint16
	Compression compress.Type
	Codec       string
}

func (h header) encode() []byte {
	b := make([]byte, 0, headerFixedSize+len(h.Codec))
	b = append(b, Magic...)
	b = binary.LittleEndian.AppendUint16(b, h.Version)
	b = binary.LittleEndian.AppendUint16(b, h.Flags)
	b = append(b, byte(h.Compression), byte(len(h.Codec)))
	return append(b, h.Codec...)
}

func readHeader(r io.Reader) (header, error) {
	var fixed [headerFixedSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return header{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if string(fixed[0:4]) != Magic {
		return header{}, fmt.Errorf("%w: magic %q", ErrInvalidHeader, fixed[0:4])
	}
	h := header{
		Version:     binary.LittleEndian.Uint16(fixed[4:]),
		Flags:       binary.LittleEndian.Uint16(fixed[6:]),
		Compression: compress.Type(fixed[8]),
	}
	if h.Version != Version {
		return header{}, fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedVersion, h.Version, Version)
	}
	if !h.Compression.Valid() {
		return header{}, fmt.Errorf("%w: compression %d", ErrInvalidHeader, fixed[8])
	}
	name := make([]byte, fixed[9])
	if _, err := io.ReadFull(r, name); err != nil {
		return header{}, fmt.Errorf("%w: codec name: %v", ErrInvalidHeader, err)
	}
	h.Codec = string(name)
	return h, nil
}

// encodeFrame encodes v into a complete frame.
func encodeFrame(v any, c codec.Codec, ct compress.Type) ([]byte, error) {
	payload, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if ct != compress.None {
		if payload, err = compress.Encode(payload, ct); err != nil {
			return nil, fmt.Errorf("compress frame: %w", err)
		}
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)
	binary.LittleEndian.PutUint32(frame[0:], persistence.CalculateChecksum(frame[4:]))
	return frame, nil
}

// readFrame reads one frame and decodes it into v. A clean end of stream is
// io.EOF.
func readFrame(r io.Reader, v any, c codec.Codec, ct compress.Type) error {
	var hdr [frameHeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	switch {
	case err == io.EOF:
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %d of %d header bytes", ErrTruncated, n, frameHeaderSize)
	case err != nil:
		return err
	}

	expected := binary.LittleEndian.Uint32(hdr[0:])
	length := binary.LittleEndian.Uint32(hdr[4:])
	if length > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if n, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %d of %d payload bytes", ErrTruncated, n, length)
		}
		return err
	}

	crc := persistence.UpdateChecksum(0, hdr[4:])
	if crc = persistence.UpdateChecksum(crc, payload); crc != expected {
		return fmt.Errorf("%w: %w", ErrChecksum, &persistence.ChecksumMismatchError{Expected: expected, Actual: crc})
	}

	if ct != compress.None {
		if payload, err = compress.Decode(payload, ct); err != nil {
			return fmt.Errorf("decompress frame: %w", err)
		}
	}
	if err := c.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
