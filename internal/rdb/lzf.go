package rdb

import (
	lzf "github.com/zhuyie/golzf"
)

// lzfDecompress expands an LZF block to exactly dstLen bytes. The
// golzf library handles the common path; the pure-Go loop below takes
// over if it rejects input it should not (and is what the tests pin
// the opcode semantics against).
func lzfDecompress(src []byte, dstLen int) ([]byte, error) {
	dst := make([]byte, dstLen)
	n, err := lzf.Decompress(src, dst)
	if err != nil {
		return lzfDecompressPure(src, dstLen)
	}
	if n != dstLen {
		return nil, parseErr(ErrLzfLengthMismatch, 0, "expect %d bytes, got %d", dstLen, n)
	}
	return dst, nil
}

// lzfDecompressPure is the classical two-opcode loop: a control byte
// below 32 introduces a literal run of ctrl+1 bytes; anything else is
// a back-reference of ((ctrl>>5) + ext + 2) bytes at offset
// (((ctrl&0x1F)<<8) | next) + 1 behind the output cursor, where ext is
// one extra length byte present only when ctrl>>5 == 7.
func lzfDecompressPure(src []byte, dstLen int) ([]byte, error) {
	out := make([]byte, 0, dstLen)
	i := 0
	for i < len(src) {
		ctrl := int(src[i])
		i++
		if ctrl < 32 {
			run := ctrl + 1
			if i+run > len(src) {
				return nil, parseErr(ErrUnexpectedEOF, int64(i), "lzf literal run of %d bytes", run)
			}
			out = append(out, src[i:i+run]...)
			i += run
			continue
		}
		length := ctrl >> 5
		if length == 7 {
			if i >= len(src) {
				return nil, parseErr(ErrUnexpectedEOF, int64(i), "lzf extended length byte")
			}
			length += int(src[i])
			i++
		}
		if i >= len(src) {
			return nil, parseErr(ErrUnexpectedEOF, int64(i), "lzf offset byte")
		}
		ref := len(out) - ((ctrl & 0x1F) << 8) - int(src[i]) - 1
		i++
		if ref < 0 {
			return nil, parseErr(ErrLzfLengthMismatch, int64(i), "lzf back-reference before start of output")
		}
		for j := 0; j < length+2; j++ {
			out = append(out, out[ref])
			ref++
		}
	}
	if len(out) != dstLen {
		return nil, parseErr(ErrLzfLengthMismatch, 0, "expect %d bytes, got %d", dstLen, len(out))
	}
	return out, nil
}
