package rdb

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressed-container magic numbers. Snapshots are routinely shipped
// compressed; the decoder accepts them transparently.
var (
	gzipMagic = []byte{0x1F, 0x8B}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

type inputFile struct {
	io.Reader
	closers []io.Closer
}

func (f *inputFile) Close() error {
	var first error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error { z.d.Close(); return nil }

// Open opens an RDB file for decoding, sniffing gzip, zstd and lz4
// frame containers by magic bytes and stacking the matching
// decompressor.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(f)
	head, err := br.Peek(4)
	if err != nil && len(head) < 2 {
		// Too short even for a magic check; let the decoder report it.
		return &inputFile{Reader: br, closers: []io.Closer{f}}, nil
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip input: %w", err)
		}
		return &inputFile{Reader: zr, closers: []io.Closer{zr, f}}, nil

	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd input: %w", err)
		}
		return &inputFile{Reader: zr, closers: []io.Closer{zstdCloser{zr}, f}}, nil

	case bytes.HasPrefix(head, lz4Magic):
		return &inputFile{Reader: lz4.NewReader(br), closers: []io.Closer{f}}, nil
	}

	return &inputFile{Reader: br, closers: []io.Closer{f}}, nil
}

// DecodeFile opens path (transparently decompressing) and runs a full
// decode into cb.
func DecodeFile(path string, cb Callback, filter *Filter) error {
	in, err := Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	return NewDecoder(in, cb, filter).Decode()
}
