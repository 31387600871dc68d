package rdb

// listpack iterates the entries of a listpack payload. Layout:
// [total_bytes:4LE][num_elements:2LE][entries...][0xFF]. Unlike the
// ziplist there is no prev-length; each entry is followed by a
// variable-width back-length instead.
type listpack struct {
	r     *reader
	count int
}

func newListpack(data []byte) (*listpack, error) {
	if len(data) < 7 {
		return nil, parseErr(ErrBadListpack, 0, "payload too short: %d bytes", len(data))
	}
	r := newSliceReader(data)
	total, err := r.Uint32LE()
	if err != nil {
		return nil, err
	}
	if int(total) != len(data) {
		return nil, parseErr(ErrBadListpack, r.Offset(), "total_bytes %d but payload is %d bytes", total, len(data))
	}
	count, err := r.Uint16LE()
	if err != nil {
		return nil, err
	}
	return &listpack{r: r, count: int(count)}, nil
}

// Len is the element count from the header.
func (lp *listpack) Len() int { return lp.count }

// Next decodes one entry and consumes its back-length.
func (lp *listpack) Next() (Value, error) {
	encoding, err := lp.r.ReadByte()
	if err != nil {
		return Value{}, err
	}
	if encoding == 0xFF {
		return Value{}, parseErr(ErrBadListpack, lp.r.Offset(), "unexpected end marker")
	}

	var val Value
	dataSize := 1 // encoding byte plus payload, excluding the back-length
	switch {
	case encoding&0x80 == 0: // 0xxxxxxx: 7-bit unsigned
		val = IntValue(int64(encoding))

	case encoding&0xC0 == 0x80: // 10xxxxxx: 6-bit string length
		n := int(encoding & 0x3F)
		b, err := lp.r.ReadBytes(n)
		if err != nil {
			return Value{}, err
		}
		val = BytesValue(b)
		dataSize += n

	case encoding&0xE0 == 0xC0: // 110xxxxx: 13-bit signed
		next, err := lp.r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		u := int64(encoding&0x1F)<<8 | int64(next)
		if u >= 1<<12 {
			u -= 1 << 13
		}
		val = IntValue(u)
		dataSize++

	case encoding&0xF0 == 0xE0: // 1110xxxx: 12-bit string length
		next, err := lp.r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		n := int(encoding&0x0F)<<8 | int(next)
		b, err := lp.r.ReadBytes(n)
		if err != nil {
			return Value{}, err
		}
		val = BytesValue(b)
		dataSize += 1 + n

	case encoding == 0xF0: // 32-bit string length
		n, err := lp.r.Uint32LE()
		if err != nil {
			return Value{}, err
		}
		b, err := lp.r.ReadBytes(int(n))
		if err != nil {
			return Value{}, err
		}
		val = BytesValue(b)
		dataSize += 4 + int(n)

	case encoding == 0xF1: // int16
		v, err := lp.r.Int16LE()
		if err != nil {
			return Value{}, err
		}
		val = IntValue(int64(v))
		dataSize += 2

	case encoding == 0xF2: // int24
		v, err := lp.r.Int24LE()
		if err != nil {
			return Value{}, err
		}
		val = IntValue(v)
		dataSize += 3

	case encoding == 0xF3: // int32
		v, err := lp.r.Int32LE()
		if err != nil {
			return Value{}, err
		}
		val = IntValue(int64(v))
		dataSize += 4

	case encoding == 0xF4: // int64
		v, err := lp.r.Int64LE()
		if err != nil {
			return Value{}, err
		}
		val = IntValue(v)
		dataSize += 8

	default:
		return Value{}, parseErr(ErrBadListpack, lp.r.Offset(), "entry encoding 0x%02X", encoding)
	}

	if err := lp.r.Discard(int64(backlenSize(dataSize))); err != nil {
		return Value{}, err
	}
	return val, nil
}

// Close verifies the trailing 0xFF marker.
func (lp *listpack) Close() error {
	end, err := lp.r.ReadByte()
	if err != nil {
		return err
	}
	if end != 0xFF {
		return parseErr(ErrBadListpack, lp.r.Offset(), "missing end marker, got 0x%02X", end)
	}
	return nil
}

// backlenSize follows listpack.c lpEncodeBacklen.
func backlenSize(l int) int {
	switch {
	case l <= 127:
		return 1
	case l < 16383:
		return 2
	case l < 2097151:
		return 3
	case l < 268435455:
		return 4
	}
	return 5
}

// listpackEntries fully decodes a listpack payload, as used to
// validate stream nodes.
func listpackEntries(data []byte) ([]Value, error) {
	lp, err := newListpack(data)
	if err != nil {
		return nil, err
	}
	entries := make([]Value, 0, lp.Len())
	for i := 0; i < lp.Len(); i++ {
		v, err := lp.Next()
		if err != nil {
			return nil, err
		}
		entries = append(entries, v)
	}
	if err := lp.Close(); err != nil {
		return nil, err
	}
	return entries, nil
}
