package rdb

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// maxExpiryMillis clamps hostile expiry timestamps so they cannot
// overflow time.Time's nanosecond representation (year 9999).
const maxExpiryMillis = 253402300799999

// Decoder walks an RDB byte stream and drives a Callback. It is a
// one-pass forward reader: no random access, no buffering beyond the
// largest single value.
type Decoder struct {
	r      *reader
	cb     Callback
	filter *Filter

	version int
	db      int
	key     Value

	expiry  *time.Time
	idle    uint64
	hasIdle bool
	freq    byte
	hasFreq bool

	firstDB bool
	stopped bool
}

// NewDecoder builds a decoder over r driving cb. filter may be nil to
// admit every key.
func NewDecoder(r io.Reader, cb Callback, filter *Filter) *Decoder {
	return &Decoder{r: newReader(r), cb: cb, filter: filter, firstDB: true}
}

// BytesRead is the number of input bytes consumed so far.
func (d *Decoder) BytesRead() int64 { return d.r.Offset() }

// deliver folds a callback result into decoder state: a stop request
// flips the stopped flag and is not an error.
func (d *Decoder) deliver(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStopParsing) {
		d.stopped = true
		return nil
	}
	return err
}

// fail stamps the current key onto decoder errors that lack one.
func (d *Decoder) fail(err error) error {
	var pe *ParseError
	if errors.As(err, &pe) && pe.Key == "" {
		pe.Key = d.key.String()
	}
	return err
}

// Decode runs the parse to completion of input, until the callback
// requests a stop, or until an error.
func (d *Decoder) Decode() error {
	if err := d.readHeader(); err != nil {
		return err
	}
	if err := d.deliver(d.cb.StartRDB(d.version)); err != nil {
		return err
	}
	if d.stopped {
		return nil
	}

	for {
		op, err := d.r.ReadByte()
		if err != nil {
			return d.fail(err)
		}

		switch op {
		case opExpireTimeMS:
			ms, err := d.r.Uint64LE()
			if err != nil {
				return d.fail(err)
			}
			d.expiry = expiryFromMillis(int64(ms))

		case opExpireTime:
			secs, err := d.r.Uint32LE()
			if err != nil {
				return d.fail(err)
			}
			d.expiry = expiryFromMillis(int64(secs) * 1000)

		case opFreq:
			b, err := d.r.ReadByte()
			if err != nil {
				return d.fail(err)
			}
			d.freq, d.hasFreq = b, true

		case opIdle:
			idle, err := readLength(d.r)
			if err != nil {
				return d.fail(err)
			}
			d.idle, d.hasIdle = idle, true

		case opAux:
			key, err := readString(d.r)
			if err != nil {
				return d.fail(err)
			}
			val, err := readString(d.r)
			if err != nil {
				return d.fail(err)
			}
			if err := d.deliver(d.cb.AuxField(key, val)); err != nil {
				return err
			}
			if d.stopped {
				return nil
			}

		case opResizeDB:
			keys, err := readLength(d.r)
			if err != nil {
				return d.fail(err)
			}
			expires, err := readLength(d.r)
			if err != nil {
				return d.fail(err)
			}
			if err := d.deliver(d.cb.DBSize(keys, expires)); err != nil {
				return err
			}

		case opSelectDB:
			if !d.firstDB {
				if err := d.deliver(d.cb.EndDatabase(d.db)); err != nil {
					return err
				}
			}
			d.firstDB = false
			db, err := readLength(d.r)
			if err != nil {
				return d.fail(err)
			}
			d.db = int(db)
			d.clearHints()
			if err := d.deliver(d.cb.StartDatabase(d.db)); err != nil {
				return err
			}

		case opModuleAux:
			d.key = Value{}
			if err := d.readModule(Value{}); err != nil {
				return d.fail(err)
			}
			d.clearHints()

		case opEOF:
			if err := d.deliver(d.cb.EndDatabase(d.db)); err != nil {
				return err
			}
			if err := d.deliver(d.cb.EndRDB()); err != nil {
				return err
			}
			if d.version >= 5 {
				// CRC64 trailer; consumed, not verified.
				if _, err := d.r.ReadBytes(8); err != nil {
					return d.fail(err)
				}
			}
			return nil

		default:
			if err := d.dispatchKey(op); err != nil {
				return err
			}
		}

		if d.stopped {
			return nil
		}
	}
}

// dispatchKey handles one value-type opcode: read the key, consult the
// filter, then decode or skip.
func (d *Decoder) dispatchKey(typeTag byte) error {
	if LogicalType(typeTag) == "" {
		return parseErr(ErrBadLengthEncoding, d.r.Offset()-1, "unknown value type tag %d", typeTag)
	}

	if !d.filter.MatchDB(d.db) {
		if err := skipString(d.r); err != nil {
			return d.fail(err)
		}
		err := d.skipObject(typeTag)
		d.clearHints()
		d.key = Value{}
		return d.fail(err)
	}

	key, err := readString(d.r)
	if err != nil {
		return d.fail(err)
	}
	d.key = key

	if d.filter.Match(d.db, key.Bytes(), typeTag) {
		err = d.readObject(typeTag)
	} else {
		err = d.skipObject(typeTag)
	}
	d.clearHints()
	d.key = Value{}
	return d.fail(err)
}

func (d *Decoder) clearHints() {
	d.expiry = nil
	d.hasIdle, d.idle = false, 0
	d.hasFreq, d.freq = false, 0
}

// info builds the per-object Info with the pending LRU/LFU hints.
func (d *Decoder) info(encoding string, sizeofValue int, zips int64) *Info {
	return &Info{
		Encoding:    encoding,
		SizeofValue: sizeofValue,
		Zips:        zips,
		Idle:        d.idle,
		HasIdle:     d.hasIdle,
		Freq:        d.freq,
		HasFreq:     d.hasFreq,
	}
}

func (d *Decoder) readHeader() error {
	magic, err := d.r.ReadBytes(5)
	if err != nil {
		return err
	}
	if string(magic) != "REDIS" {
		return parseErr(ErrBadMagic, 0, "got %q", magic)
	}
	verBytes, err := d.r.ReadBytes(4)
	if err != nil {
		return err
	}
	version, err := strconv.Atoi(string(verBytes))
	if err != nil || version < 1 || version > 9 {
		return parseErr(ErrBadVersion, 5, "got %q", verBytes)
	}
	d.version = version
	return nil
}

// element delivers a per-element event; once a stop has been requested
// only the end_* events of the in-flight key are still delivered.
func (d *Decoder) element(err error) error {
	if d.stopped {
		return nil
	}
	return d.deliver(err)
}

// readObject decodes the value for the current key and emits events.
func (d *Decoder) readObject(typeTag byte) error {
	key, expiry := d.key, d.expiry

	switch typeTag {
	case TypeString:
		val, err := readString(d.r)
		if err != nil {
			return err
		}
		return d.deliver(d.cb.Set(key, val, expiry, d.info("string", 0, 0)))

	case TypeList:
		n, err := readLength(d.r)
		if err != nil {
			return err
		}
		if err := d.deliver(d.cb.StartList(key, expiry, d.info("linkedlist", 0, 0))); err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			val, err := readString(d.r)
			if err != nil {
				return err
			}
			if err := d.element(d.cb.RPush(key, val)); err != nil {
				return err
			}
		}
		return d.deliver(d.cb.EndList(key, d.info("linkedlist", 0, 0)))

	case TypeSet:
		n, err := readLength(d.r)
		if err != nil {
			return err
		}
		if err := d.deliver(d.cb.StartSet(key, int64(n), expiry, d.info("hashtable", 0, 0))); err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			member, err := readString(d.r)
			if err != nil {
				return err
			}
			if err := d.element(d.cb.SAdd(key, member)); err != nil {
				return err
			}
		}
		return d.deliver(d.cb.EndSet(key))

	case TypeZSet, TypeZSet2:
		n, err := readLength(d.r)
		if err != nil {
			return err
		}
		if err := d.deliver(d.cb.StartSortedSet(key, int64(n), expiry, d.info("skiplist", 0, 0))); err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			member, err := readString(d.r)
			if err != nil {
				return err
			}
			score, err := d.readScore(typeTag)
			if err != nil {
				return err
			}
			if err := d.element(d.cb.ZAdd(key, score, member)); err != nil {
				return err
			}
		}
		return d.deliver(d.cb.EndSortedSet(key))

	case TypeHash:
		n, err := readLength(d.r)
		if err != nil {
			return err
		}
		if err := d.deliver(d.cb.StartHash(key, int64(n), expiry, d.info("hashtable", 0, 0))); err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			field, err := readString(d.r)
			if err != nil {
				return err
			}
			val, err := readString(d.r)
			if err != nil {
				return err
			}
			if err := d.element(d.cb.HSet(key, field, val)); err != nil {
				return err
			}
		}
		return d.deliver(d.cb.EndHash(key))

	case TypeHashZipmap:
		return d.readHashZipmap(key, expiry)

	case TypeListZiplist:
		return d.readListZiplist(key, expiry)

	case TypeSetIntset:
		return d.readSetIntset(key, expiry)

	case TypeZSetZiplist:
		return d.readZSetZiplist(key, expiry)

	case TypeHashZiplist:
		return d.readHashZiplist(key, expiry)

	case TypeListQuicklist:
		return d.readQuicklist(key, expiry)

	case TypeStreamListpacks:
		return d.readStream(key)

	case TypeModule2:
		return d.readModule(key)

	case TypeModule:
		return parseErr(ErrModuleV1Unsupported, d.r.Offset(), "type tag 6")
	}

	return parseErr(ErrBadLengthEncoding, d.r.Offset(), "unhandled type tag %d", typeTag)
}

// readScore reads a sorted-set score. Tag 3 stores an ASCII double
// behind a 1-byte length with 253/254/255 meaning NaN/+Inf/-Inf; tag 5
// stores a raw little-endian IEEE-754 double. Dispatch is on the type
// tag, never on the file version.
func (d *Decoder) readScore(typeTag byte) (Score, error) {
	if typeTag == TypeZSet2 {
		f, err := d.r.Float64LE()
		if err != nil {
			return Score{}, err
		}
		return FloatScore(f), nil
	}

	n, err := d.r.ReadByte()
	if err != nil {
		return Score{}, err
	}
	switch n {
	case 253:
		return FloatScore(math.NaN()), nil
	case 254:
		return FloatScore(math.Inf(1)), nil
	case 255:
		return FloatScore(math.Inf(-1)), nil
	}
	raw, err := d.r.ReadBytes(int(n))
	if err != nil {
		return Score{}, err
	}
	f, perr := strconv.ParseFloat(string(raw), 64)
	if perr != nil {
		return RawScore(raw), nil
	}
	return FloatScore(f), nil
}

func (d *Decoder) readHashZipmap(key Value, expiry *time.Time) error {
	wrapped, err := readString(d.r)
	if err != nil {
		return err
	}
	raw := wrapped.Bytes()
	zm, err := newZipmap(raw)
	if err != nil {
		return err
	}
	if err := d.deliver(d.cb.StartHash(key, int64(zm.ApproxLen), expiry, d.info("zipmap", len(raw), 0))); err != nil {
		return err
	}
	for {
		field, val, done, err := zm.NextPair()
		if err != nil {
			return err
		}
		if done {
			break
		}
		if err := d.element(d.cb.HSet(key, field, val)); err != nil {
			return err
		}
	}
	return d.deliver(d.cb.EndHash(key))
}

func (d *Decoder) readListZiplist(key Value, expiry *time.Time) error {
	wrapped, err := readString(d.r)
	if err != nil {
		return err
	}
	raw := wrapped.Bytes()
	zl, err := newZiplist(raw)
	if err != nil {
		return err
	}
	if err := d.deliver(d.cb.StartList(key, expiry, d.info("ziplist", len(raw), 0))); err != nil {
		return err
	}
	for i := 0; i < zl.Len(); i++ {
		val, err := zl.Next()
		if err != nil {
			return err
		}
		if err := d.element(d.cb.RPush(key, val)); err != nil {
			return err
		}
	}
	if err := zl.Close(); err != nil {
		return err
	}
	return d.deliver(d.cb.EndList(key, d.info("ziplist", len(raw), 0)))
}

func (d *Decoder) readSetIntset(key Value, expiry *time.Time) error {
	wrapped, err := readString(d.r)
	if err != nil {
		return err
	}
	raw := wrapped.Bytes()
	is, err := newIntset(raw)
	if err != nil {
		return err
	}
	if err := d.deliver(d.cb.StartSet(key, int64(is.Len()), expiry, d.info("intset", len(raw), 0))); err != nil {
		return err
	}
	for i := 0; i < is.Len(); i++ {
		n, err := is.Next()
		if err != nil {
			return err
		}
		if err := d.element(d.cb.SAdd(key, IntValue(n))); err != nil {
			return err
		}
	}
	return d.deliver(d.cb.EndSet(key))
}

func (d *Decoder) readZSetZiplist(key Value, expiry *time.Time) error {
	wrapped, err := readString(d.r)
	if err != nil {
		return err
	}
	raw := wrapped.Bytes()
	zl, err := newZiplist(raw)
	if err != nil {
		return err
	}
	if zl.Len()%2 != 0 {
		return parseErr(ErrOddZiplistPairCount, d.r.Offset(), "%d entries", zl.Len())
	}
	pairs := zl.Len() / 2
	if err := d.deliver(d.cb.StartSortedSet(key, int64(pairs), expiry, d.info("ziplist", len(raw), 0))); err != nil {
		return err
	}
	for i := 0; i < pairs; i++ {
		member, err := zl.Next()
		if err != nil {
			return err
		}
		scoreEntry, err := zl.Next()
		if err != nil {
			return err
		}
		if err := d.element(d.cb.ZAdd(key, ziplistScore(scoreEntry), member)); err != nil {
			return err
		}
	}
	if err := zl.Close(); err != nil {
		return err
	}
	return d.deliver(d.cb.EndSortedSet(key))
}

// ziplistScore converts a ziplist entry to a score: integer entries
// are exact; byte entries that parse as floats are floats; anything
// else stays raw (behavior inherited from real-world corpora).
func ziplistScore(entry Value) Score {
	if entry.IsInt() {
		return FloatScore(float64(entry.Int()))
	}
	f, err := strconv.ParseFloat(string(entry.Raw()), 64)
	if err != nil {
		return RawScore(entry.Raw())
	}
	return FloatScore(f)
}

func (d *Decoder) readHashZiplist(key Value, expiry *time.Time) error {
	wrapped, err := readString(d.r)
	if err != nil {
		return err
	}
	raw := wrapped.Bytes()
	zl, err := newZiplist(raw)
	if err != nil {
		return err
	}
	if zl.Len()%2 != 0 {
		return parseErr(ErrOddZiplistPairCount, d.r.Offset(), "%d entries", zl.Len())
	}
	pairs := zl.Len() / 2
	if err := d.deliver(d.cb.StartHash(key, int64(pairs), expiry, d.info("ziplist", len(raw), 0))); err != nil {
		return err
	}
	for i := 0; i < pairs; i++ {
		field, err := zl.Next()
		if err != nil {
			return err
		}
		val, err := zl.Next()
		if err != nil {
			return err
		}
		if err := d.element(d.cb.HSet(key, field, val)); err != nil {
			return err
		}
	}
	if err := zl.Close(); err != nil {
		return err
	}
	return d.deliver(d.cb.EndHash(key))
}

func (d *Decoder) readQuicklist(key Value, expiry *time.Time) error {
	zips, err := readLength(d.r)
	if err != nil {
		return err
	}
	if err := d.deliver(d.cb.StartList(key, expiry, d.info("quicklist", 0, int64(zips)))); err != nil {
		return err
	}
	totalSize := 0
	for i := uint64(0); i < zips; i++ {
		wrapped, err := readString(d.r)
		if err != nil {
			return err
		}
		raw := wrapped.Bytes()
		totalSize += len(raw)
		zl, err := newZiplist(raw)
		if err != nil {
			return err
		}
		for j := 0; j < zl.Len(); j++ {
			val, err := zl.Next()
			if err != nil {
				return err
			}
			if err := d.element(d.cb.RPush(key, val)); err != nil {
				return err
			}
		}
		if err := zl.Close(); err != nil {
			return err
		}
	}
	return d.deliver(d.cb.EndList(key, d.info("quicklist", totalSize, int64(zips))))
}

// expiryFromMillis converts an absolute millisecond timestamp to a UTC
// instant, clamping out-of-range values.
func expiryFromMillis(ms int64) *time.Time {
	if ms < 0 {
		ms = 0
	}
	if ms > maxExpiryMillis {
		ms = maxExpiryMillis
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// DecodeError renders the single diagnostic line shown to users.
func DecodeError(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return fmt.Sprintf("rdb: %v", err)
}
