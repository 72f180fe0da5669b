package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/internal/compress"
	"github.com/hupe1980/acton/internal/fs"
)

// Options configures writers and readers.
type Options struct {
	FileSystem  fs.FileSystem
	Codec       codec.Codec
	Compression compress.Type
	Logger      *acton.Logger
	Now         func() time.Time
}

// Option mutates Options.
type Option func(*Options)

// WithFileSystem sets the file system (default fs.Default).
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *Options) { o.FileSystem = fsys }
}

// WithCodec sets the payload codec (default codec.Default).
func WithCodec(c codec.Codec) Option {
	return func(o *Options) { o.Codec = c }
}

// WithCompression sets frame compression (default none).
func WithCompression(t compress.Type) Option {
	return func(o *Options) { o.Compression = t }
}

// WithLogger sets the logger.
func WithLogger(l *acton.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithClock sets the clock used to stamp Metadata.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

func buildOptions(opts []Option) Options {
	o := Options{
		FileSystem:  fs.Default,
		Codec:       codec.Default,
		Compression: compress.None,
		Now:         time.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = acton.NoopLogger()
	}
	o.Logger = o.Logger.WithComponent("snapshot")
	return o
}

// Writer appends records to a snapshot stream. It is safe for concurrent
// use, though the orchestrator appends from a single goroutine.
type Writer struct {
	mu      sync.Mutex
	path    string
	file    fs.File
	bw      *bufio.Writer
	codec   codec.Codec
	comp    compress.Type
	meta    Metadata
	logger  *acton.Logger
	records int
	err     error // sticky: a failed append leaves at most a torn tail
	closed  bool
}

// Create truncates path and writes the stream header and metadata frame.
func Create(path string, meta Metadata, opts ...Option) (*Writer, error) {
	return create(path, meta, 0, buildOptions(opts))
}

func create(path string, meta Metadata, flags uint16, o Options) (*Writer, error) {
	if !o.Compression.Valid() {
		return nil, acton.Configurationf("snapshot compression %d", o.Compression)
	}
	if len(o.Codec.Name()) > 255 {
		return nil, acton.Configurationf("codec name %q too long", o.Codec.Name())
	}

	meta.Codec = o.Codec.Name()
	meta.Compression = o.Compression.String()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = o.Now().UTC()
	}

	f, err := o.FileSystem.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create snapshot %s: %w", path, err)
	}
	w := &Writer{
		path:   path,
		file:   f,
		bw:     bufio.NewWriter(f),
		codec:  o.Codec,
		comp:   o.Compression,
		meta:   meta,
		logger: o.Logger,
	}

	h := header{Version: Version, Flags: flags, Compression: o.Compression, Codec: o.Codec.Name()}
	if err := w.write(h.encode(), &meta); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create snapshot %s: %w", path, err)
	}
	return w, nil
}

// Path returns the file path.
func (w *Writer) Path() string { return w.path }

// Metadata returns the run metadata written to the header frame.
func (w *Writer) Metadata() Metadata { return w.meta }

// Records returns the number of records appended so far.
func (w *Writer) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Append writes rec and makes it durable before returning.
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("append snapshot: %w", acton.ErrClosed)
	}
	if w.err != nil {
		return fmt.Errorf("append snapshot: earlier write failed: %w", w.err)
	}
	if err := w.write(nil, &rec); err != nil {
		w.err = err
		w.logger.Error("append failed", "path", w.path, "record", w.records, "error", err)
		return fmt.Errorf("append snapshot: %w", err)
	}
	w.records++
	w.logger.Debug("record appended", "path", w.path, "epoch", rec.Epoch, "test_ids", len(rec.TestIDs))
	return nil
}

// write encodes v into a frame, writes prefix and the frame, then flushes
// and fsyncs.
func (w *Writer) write(prefix []byte, v any) error {
	frame, err := encodeFrame(v, w.codec, w.comp)
	if err != nil {
		return err
	}
	if _, err := w.bw.Write(prefix); err != nil {
		return err
	}
	if _, err := w.bw.Write(frame); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes and closes the file. It is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if w.err == nil {
		if err = w.bw.Flush(); err == nil {
			err = w.file.Sync()
		}
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close snapshot %s: %w", w.path, err)
	}
	return nil
}

// WriteSingle writes a standalone artefact holding exactly one record.
func WriteSingle(path string, meta Metadata, rec Record, opts ...Option) error {
	w, err := create(path, meta, FlagSingle, buildOptions(opts))
	if err != nil {
		return err
	}
	if err := w.Append(rec); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
