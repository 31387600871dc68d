package rdb

// skipObject advances the cursor past the value for the given type tag
// without materializing it. Each branch consumes byte-for-byte the
// same input as the corresponding readObject branch, which keeps
// filtered runs cheap over large files.
func (d *Decoder) skipObject(typeTag byte) error {
	switch typeTag {
	case TypeString, TypeHashZipmap, TypeListZiplist, TypeSetIntset,
		TypeZSetZiplist, TypeHashZiplist:
		return skipString(d.r)

	case TypeList, TypeSet:
		n, err := readLength(d.r)
		if err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			if err := skipString(d.r); err != nil {
				return err
			}
		}
		return nil

	case TypeHash:
		n, err := readLength(d.r)
		if err != nil {
			return err
		}
		for i := uint64(0); i < 2*n; i++ {
			if err := skipString(d.r); err != nil {
				return err
			}
		}
		return nil

	case TypeZSet:
		n, err := readLength(d.r)
		if err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			if err := skipString(d.r); err != nil {
				return err
			}
			// ASCII double: 1-byte length, 253/254/255 carry no bytes.
			l, err := d.r.ReadByte()
			if err != nil {
				return err
			}
			if l < 253 {
				if err := d.r.Discard(int64(l)); err != nil {
					return err
				}
			}
		}
		return nil

	case TypeZSet2:
		n, err := readLength(d.r)
		if err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			if err := skipString(d.r); err != nil {
				return err
			}
			if err := d.r.Discard(8); err != nil {
				return err
			}
		}
		return nil

	case TypeListQuicklist:
		n, err := readLength(d.r)
		if err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			if err := skipString(d.r); err != nil {
				return err
			}
		}
		return nil

	case TypeStreamListpacks:
		return d.skipStream()

	case TypeModule2:
		return d.skipModule()

	case TypeModule:
		return parseErr(ErrModuleV1Unsupported, d.r.Offset(), "type tag 6")
	}

	return parseErr(ErrBadLengthEncoding, d.r.Offset(), "unknown value type tag %d", typeTag)
}
