package rdb

// readString decodes an RDB string: plain bytes, one of the three
// integer encodings, or an LZF-compressed run. Integers are preserved
// as integers; emitters decide how to render them.
func readString(r *reader) (Value, error) {
	length, special, err := readLengthWithEncoding(r)
	if err != nil {
		return Value{}, err
	}

	if special {
		return readEncodedString(r, length)
	}

	if length == 0 {
		return BytesValue([]byte{}), nil
	}
	buf, err := r.ReadBytes(int(length))
	if err != nil {
		return Value{}, err
	}
	return BytesValue(buf), nil
}

// readEncodedString handles the integer and LZF special encodings.
func readEncodedString(r *reader, encoding uint64) (Value, error) {
	switch encoding {
	case encInt8:
		v, err := r.Int8()
		if err != nil {
			return Value{}, err
		}
		return IntValue(int64(v)), nil

	case encInt16:
		v, err := r.Int16LE()
		if err != nil {
			return Value{}, err
		}
		return IntValue(int64(v)), nil

	case encInt32:
		v, err := r.Int32LE()
		if err != nil {
			return Value{}, err
		}
		return IntValue(int64(v)), nil

	case encLZF:
		clen, err := readLength(r)
		if err != nil {
			return Value{}, err
		}
		ulen, err := readLength(r)
		if err != nil {
			return Value{}, err
		}
		compressed, err := r.ReadBytes(int(clen))
		if err != nil {
			return Value{}, err
		}
		raw, err := lzfDecompress(compressed, int(ulen))
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Offset = r.Offset()
			}
			return Value{}, err
		}
		return BytesValue(raw), nil

	default:
		return Value{}, parseErr(ErrBadStringEncoding, r.Offset(), "encoding tag %d", encoding)
	}
}

// skipString advances past one RDB string without materializing it.
// Byte-for-byte symmetric with readString.
func skipString(r *reader) error {
	length, special, err := readLengthWithEncoding(r)
	if err != nil {
		return err
	}

	var toSkip uint64
	if special {
		switch length {
		case encInt8:
			toSkip = 1
		case encInt16:
			toSkip = 2
		case encInt32:
			toSkip = 4
		case encLZF:
			clen, err := readLength(r)
			if err != nil {
				return err
			}
			if _, err := readLength(r); err != nil {
				return err
			}
			toSkip = clen
		default:
			return parseErr(ErrBadStringEncoding, r.Offset(), "encoding tag %d", length)
		}
	} else {
		toSkip = length
	}

	return r.Discard(int64(toSkip))
}
