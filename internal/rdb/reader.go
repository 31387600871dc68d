package rdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// reader wraps the byte source with typed fixed-width reads and keeps
// a running offset for error reporting and skip-symmetry accounting.
// Reads that cannot be satisfied fail with ErrUnexpectedEOF.
type reader struct {
	br      *bufio.Reader
	off     int64
	capture *bytes.Buffer
}

func newReader(r io.Reader) *reader {
	return &reader{br: bufio.NewReader(r)}
}

// newSliceReader opens a positioned read over an embedded sub-buffer,
// for example a ziplist payload wrapped in an RDB string. Reading past
// the end of the slice fails like any short read.
func newSliceReader(data []byte) *reader {
	return &reader{br: bufio.NewReader(bytes.NewReader(data))}
}

// Offset is the number of bytes consumed so far.
func (r *reader) Offset() int64 { return r.off }

// StartCapture begins copying consumed bytes into a side buffer, used
// to hand module-block payloads to replay sinks.
func (r *reader) StartCapture() {
	r.capture = &bytes.Buffer{}
}

// StopCapture ends capturing and returns the copied bytes.
func (r *reader) StopCapture() []byte {
	if r.capture == nil {
		return nil
	}
	b := r.capture.Bytes()
	r.capture = nil
	return b
}

func (r *reader) eof() error {
	return &ParseError{Kind: ErrUnexpectedEOF, Offset: r.off}
}

// ReadByte reads a single byte.
func (r *reader) ReadByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, r.eof()
	}
	r.off++
	if r.capture != nil {
		r.capture.WriteByte(b)
	}
	return b, nil
}

// ReadBytes reads exactly n bytes.
func (r *reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, r.eof()
	}
	r.off += int64(n)
	if r.capture != nil {
		r.capture.Write(buf)
	}
	return buf, nil
}

// Discard drops exactly n bytes without materializing them.
func (r *reader) Discard(n int64) error {
	if r.capture != nil {
		// Captured bytes must be kept, so route through a real read.
		_, err := r.ReadBytes(int(n))
		return err
	}
	for n > 0 {
		chunk := n
		if chunk > math.MaxInt32 {
			chunk = math.MaxInt32
		}
		d, err := r.br.Discard(int(chunk))
		r.off += int64(d)
		if err != nil {
			return r.eof()
		}
		n -= int64(d)
	}
	return nil
}

func (r *reader) Uint16LE() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) Uint32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) Uint64LE() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) Uint32BE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) Uint64BE() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) Int8() (int8, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	return int8(b), nil
}

func (r *reader) Int16LE() (int16, error) {
	v, err := r.Uint16LE()
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

func (r *reader) Int32LE() (int32, error) {
	v, err := r.Uint32LE()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func (r *reader) Int64LE() (int64, error) {
	v, err := r.Uint64LE()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// Int24LE reads a 24-bit signed little-endian integer with sign
// extension, as used by the ziplist 3-byte entry encoding.
func (r *reader) Int24LE() (int64, error) {
	b, err := r.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	v := int64(b[0]) | int64(b[1])<<8 | int64(b[2])<<16
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v, nil
}

func (r *reader) Float32LE() (float32, error) {
	v, err := r.Uint32LE()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *reader) Float64LE() (float64, error) {
	v, err := r.Uint64LE()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}
