package rdb

// intset iterates a sorted array of fixed-width signed integers.
// Layout: [encoding:4LE][length:4LE][contents...], where encoding is
// the element width in bytes (2, 4 or 8).
type intset struct {
	r     *reader
	width uint32
	count int
}

func newIntset(data []byte) (*intset, error) {
	r := newSliceReader(data)
	width, err := r.Uint32LE()
	if err != nil {
		return nil, err
	}
	count, err := r.Uint32LE()
	if err != nil {
		return nil, err
	}
	if width != 2 && width != 4 && width != 8 {
		return nil, parseErr(ErrBadIntsetEncoding, r.Offset(), "width %d", width)
	}
	return &intset{r: r, width: width, count: int(count)}, nil
}

// Len is the element count from the header.
func (s *intset) Len() int { return s.count }

// Next reads one element at the set's width.
func (s *intset) Next() (int64, error) {
	switch s.width {
	case 2:
		v, err := s.r.Int16LE()
		return int64(v), err
	case 4:
		v, err := s.r.Int32LE()
		return int64(v), err
	default:
		return s.r.Int64LE()
	}
}
