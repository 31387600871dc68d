package rdb

import "strconv"

// zipmap iterates the legacy compact hash encoding used by version <= 3
// files. Layout: [approx_len:1] then (len, key, len, free, value,
// skip(free)) pairs, terminated by a 0xFF length byte. The 1-byte
// entry count is approximate and not trusted; iteration runs to the
// sentinel.
type zipmap struct {
	r *reader
	// ApproxLen is the header's entry-count hint.
	ApproxLen int
}

func newZipmap(data []byte) (*zipmap, error) {
	r := newSliceReader(data)
	approx, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &zipmap{r: r, ApproxLen: int(approx)}, nil
}

// nextLength reads one zipmap length slot. done is true at the 0xFF
// end-of-map sentinel; a 254 slot is invalid here.
func (z *zipmap) nextLength() (n int, done bool, err error) {
	b, err := z.r.ReadByte()
	if err != nil {
		return 0, false, err
	}
	switch {
	case b < 253:
		return int(b), false, nil
	case b == 253:
		v, err := z.r.Uint32LE()
		return int(v), false, err
	case b == 254:
		return 0, false, parseErr(ErrBadZipmapLength, z.r.Offset(), "length slot 254")
	default:
		return 0, true, nil
	}
}

// NextPair reads the next (field, value) pair; done is true once the
// end sentinel has been consumed. A value whose bytes parse as a
// decimal integer is delivered as an integer.
func (z *zipmap) NextPair() (field, value Value, done bool, err error) {
	n, done, err := z.nextLength()
	if err != nil || done {
		return Value{}, Value{}, done, err
	}
	keyBytes, err := z.r.ReadBytes(n)
	if err != nil {
		return Value{}, Value{}, false, err
	}

	n, done, err = z.nextLength()
	if err != nil {
		return Value{}, Value{}, false, err
	}
	if done {
		return Value{}, Value{}, false, parseErr(ErrBadZipmapLength, z.r.Offset(), "map ended before value")
	}
	free, err := z.r.ReadByte()
	if err != nil {
		return Value{}, Value{}, false, err
	}
	valBytes, err := z.r.ReadBytes(n)
	if err != nil {
		return Value{}, Value{}, false, err
	}
	// Trailing free bytes are padding.
	if err := z.r.Discard(int64(free)); err != nil {
		return Value{}, Value{}, false, err
	}

	value = BytesValue(valBytes)
	if num, perr := strconv.ParseInt(string(valBytes), 10, 64); perr == nil && len(valBytes) > 0 {
		value = IntValue(num)
	}
	return BytesValue(keyBytes), value, false, nil
}
