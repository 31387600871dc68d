package rdb

// Length encoding selectors, from the top two bits of the first byte.
const (
	len6Bit  = 0    // 00|XXXXXX
	len14Bit = 1    // 01|XXXXXX XXXXXXXX
	len32Bit = 0x80 // 10000000 + 32-bit big-endian
	len64Bit = 0x81 // 10000001 + 64-bit big-endian
	lenEncVal = 3   // 11|XXXXXX special encoding tag
)

// readLengthWithEncoding decodes the RDB variable-length integer.
// The second return is true when the first byte carried a special
// encoding tag, in which case the integer is an encoding selector
// rather than a count.
func readLengthWithEncoding(r *reader) (uint64, bool, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, false, err
	}

	switch (first >> 6) & 0x03 {
	case len6Bit:
		return uint64(first & 0x3F), false, nil

	case len14Bit:
		next, err := r.ReadByte()
		if err != nil {
			return 0, false, err
		}
		return (uint64(first&0x3F) << 8) | uint64(next), false, nil

	case 2:
		// The whole byte is a marker here, not a bit pattern.
		switch first {
		case len32Bit:
			v, err := r.Uint32BE()
			return uint64(v), false, err
		case len64Bit:
			v, err := r.Uint64BE()
			return v, false, err
		}
		return 0, false, parseErr(ErrBadLengthEncoding, r.Offset()-1, "marker 0x%02X", first)

	default: // lenEncVal
		return uint64(first & 0x3F), true, nil
	}
}

// readLength decodes a plain length. The special-encoding flag is
// discarded: a tag byte in length position yields its low 6 bits as
// the length, without an error.
func readLength(r *reader) (uint64, error) {
	n, _, err := readLengthWithEncoding(r)
	return n, err
}
