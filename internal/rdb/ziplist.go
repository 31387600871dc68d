package rdb

// ziplist iterates the entries of a ziplist payload over a bounded
// sub-reader. Layout: [zlbytes:4LE][zltail:4LE][zllen:2LE][entries...]
// [zlend:0xFF]. The byte-length prefix must match the payload size and
// the terminator must be present; both are verified.
type ziplist struct {
	r     *reader
	count int
}

func newZiplist(data []byte) (*ziplist, error) {
	r := newSliceReader(data)
	zlbytes, err := r.Uint32LE()
	if err != nil {
		return nil, err
	}
	if int(zlbytes) != len(data) {
		return nil, parseErr(ErrBadZiplistHeader, r.Offset(), "zlbytes %d but payload is %d bytes", zlbytes, len(data))
	}
	if _, err := r.Uint32LE(); err != nil { // tail offset, unused
		return nil, err
	}
	count, err := r.Uint16LE()
	if err != nil {
		return nil, err
	}
	return &ziplist{r: r, count: int(count)}, nil
}

// Len is the entry count from the header.
func (z *ziplist) Len() int { return z.count }

// Next decodes the next entry. Callers must not read past Len.
func (z *ziplist) Next() (Value, error) {
	// prev-len: one byte, or 0xFE followed by a 4-byte length.
	prev, err := z.r.ReadByte()
	if err != nil {
		return Value{}, err
	}
	if prev == 0xFE {
		if _, err := z.r.Uint32LE(); err != nil {
			return Value{}, err
		}
	}

	header, err := z.r.ReadByte()
	if err != nil {
		return Value{}, err
	}
	switch {
	case header>>6 == 0: // 00pppppp: 6-bit length raw bytes
		b, err := z.r.ReadBytes(int(header & 0x3F))
		if err != nil {
			return Value{}, err
		}
		return BytesValue(b), nil

	case header>>6 == 1: // 01pppppp qqqqqqqq: 14-bit length raw bytes
		next, err := z.r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		b, err := z.r.ReadBytes(int(header&0x3F)<<8 | int(next))
		if err != nil {
			return Value{}, err
		}
		return BytesValue(b), nil

	case header>>6 == 2: // 10______ + 4-byte big-endian length raw bytes
		n, err := z.r.Uint32BE()
		if err != nil {
			return Value{}, err
		}
		b, err := z.r.ReadBytes(int(n))
		if err != nil {
			return Value{}, err
		}
		return BytesValue(b), nil

	case header>>4 == 0xC: // 1100____: int16
		v, err := z.r.Int16LE()
		if err != nil {
			return Value{}, err
		}
		return IntValue(int64(v)), nil

	case header>>4 == 0xD: // 1101____: int32
		v, err := z.r.Int32LE()
		if err != nil {
			return Value{}, err
		}
		return IntValue(int64(v)), nil

	case header>>4 == 0xE: // 1110____: int64
		v, err := z.r.Int64LE()
		if err != nil {
			return Value{}, err
		}
		return IntValue(v), nil

	case header == 0xF0: // 24-bit signed
		v, err := z.r.Int24LE()
		if err != nil {
			return Value{}, err
		}
		return IntValue(v), nil

	case header == 0xFE: // 8-bit signed
		v, err := z.r.Int8()
		if err != nil {
			return Value{}, err
		}
		return IntValue(int64(v)), nil

	case header >= 0xF1 && header <= 0xFD: // immediate 0..12
		return IntValue(int64(header&0x0F) - 1), nil
	}

	return Value{}, parseErr(ErrBadZiplistEntry, z.r.Offset(), "entry header 0x%02X", header)
}

// Close verifies the 0xFF terminator after the last entry.
func (z *ziplist) Close() error {
	end, err := z.r.ReadByte()
	if err != nil {
		return err
	}
	if end != 0xFF {
		return parseErr(ErrBadZiplistTerminator, z.r.Offset(), "terminator 0x%02X", end)
	}
	return nil
}
