package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/internal/compress"
)

// Reader iterates the records of a snapshot stream.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	hdr    header
	codec  codec.Codec
	meta   Metadata
	err    error
}

// Open opens the stream at path and reads its header and metadata.
func Open(path string, opts ...Option) (*Reader, error) {
	o := buildOptions(opts)
	f, err := o.FileSystem.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header and metadata from r. The caller keeps
// ownership of r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	c, ok := codec.ByName(h.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidHeader, h.Codec)
	}
	rd := &Reader{r: br, hdr: h, codec: c}
	if err := readFrame(br, &rd.meta, c, h.Compression); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: missing metadata", ErrTruncated)
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return rd, nil
}

// Metadata returns the run metadata.
func (r *Reader) Metadata() Metadata { return r.meta }

// Single reports whether the stream is a single-record artefact.
func (r *Reader) Single() bool { return r.hdr.Flags&FlagSingle != 0 }

// Compression returns the frame compression of the stream.
func (r *Reader) Compression() compress.Type { return r.hdr.Compression }

// Next returns the next record, io.EOF at a clean end of stream, or
// ErrTruncated / ErrChecksum for a damaged frame. Errors are sticky.
func (r *Reader) Next() (*Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	var rec Record
	if err := readFrame(r.r, &rec, r.codec, r.hdr.Compression); err != nil {
		r.err = err
		return nil, err
	}
	return &rec, nil
}

// ReadAll reads the remaining records. On a damaged tail it returns the
// complete records read before it together with the error.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, *rec)
	}
}

// Close closes the underlying file when the reader was opened by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

// ReadSingle reads a standalone artefact written by WriteSingle.
func ReadSingle(path string, opts ...Option) (Metadata, Record, error) {
	r, err := Open(path, opts...)
	if err != nil {
		return Metadata{}, Record{}, err
	}
	defer r.Close()

	if !r.Single() {
		return Metadata{}, Record{}, fmt.Errorf("read %s: %w", path, ErrNotSingle)
	}
	rec, err := r.Next()
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: no record", ErrTruncated)
	}
	if err != nil {
		return Metadata{}, Record{}, fmt.Errorf("read %s: %w", path, err)
	}
	return r.Metadata(), *rec, nil
}
