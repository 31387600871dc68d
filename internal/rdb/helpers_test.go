package rdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// rdbBuilder assembles RDB byte streams for tests.
type rdbBuilder struct {
	buf     bytes.Buffer
	version int
}

func newRDB(version int) *rdbBuilder {
	b := &rdbBuilder{version: version}
	fmt.Fprintf(&b.buf, "REDIS%04d", version)
	return b
}

func (b *rdbBuilder) raw(p ...byte) *rdbBuilder {
	b.buf.Write(p)
	return b
}

// length writes an RDB length using the smallest encoding.
func (b *rdbBuilder) length(n uint64) *rdbBuilder {
	switch {
	case n < 1<<6:
		b.buf.WriteByte(byte(n))
	case n < 1<<14:
		b.buf.WriteByte(0x40 | byte(n>>8))
		b.buf.WriteByte(byte(n))
	case n <= 0xFFFFFFFF:
		b.buf.WriteByte(0x80)
		var be [4]byte
		binary.BigEndian.PutUint32(be[:], uint32(n))
		b.buf.Write(be[:])
	default:
		b.buf.WriteByte(0x81)
		var be [8]byte
		binary.BigEndian.PutUint64(be[:], n)
		b.buf.Write(be[:])
	}
	return b
}

// str writes a plain RDB string.
func (b *rdbBuilder) str(s string) *rdbBuilder {
	b.length(uint64(len(s)))
	b.buf.WriteString(s)
	return b
}

func (b *rdbBuilder) int8Str(v int8) *rdbBuilder {
	return b.raw(0xC0, byte(v))
}

func (b *rdbBuilder) int16Str(v int16) *rdbBuilder {
	b.buf.WriteByte(0xC1)
	var le [2]byte
	binary.LittleEndian.PutUint16(le[:], uint16(v))
	b.buf.Write(le[:])
	return b
}

func (b *rdbBuilder) int32Str(v int32) *rdbBuilder {
	b.buf.WriteByte(0xC2)
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], uint32(v))
	b.buf.Write(le[:])
	return b
}

// lzfStr writes an LZF-encoded string from pre-compressed bytes.
func (b *rdbBuilder) lzfStr(compressed []byte, uncompressedLen int) *rdbBuilder {
	b.buf.WriteByte(0xC3)
	b.length(uint64(len(compressed)))
	b.length(uint64(uncompressedLen))
	b.buf.Write(compressed)
	return b
}

func (b *rdbBuilder) selectDB(db uint64) *rdbBuilder {
	b.buf.WriteByte(opSelectDB)
	return b.length(db)
}

func (b *rdbBuilder) aux(key, value string) *rdbBuilder {
	b.buf.WriteByte(opAux)
	return b.str(key).str(value)
}

func (b *rdbBuilder) resizeDB(keys, expires uint64) *rdbBuilder {
	b.buf.WriteByte(opResizeDB)
	return b.length(keys).length(expires)
}

func (b *rdbBuilder) expireMS(ms uint64) *rdbBuilder {
	b.buf.WriteByte(opExpireTimeMS)
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], ms)
	b.buf.Write(le[:])
	return b
}

func (b *rdbBuilder) expireSec(secs uint32) *rdbBuilder {
	b.buf.WriteByte(opExpireTime)
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], secs)
	b.buf.Write(le[:])
	return b
}

func (b *rdbBuilder) idle(n uint64) *rdbBuilder {
	b.buf.WriteByte(opIdle)
	return b.length(n)
}

func (b *rdbBuilder) freq(f byte) *rdbBuilder {
	return b.raw(opFreq, f)
}

func (b *rdbBuilder) typeTag(tag byte) *rdbBuilder {
	b.buf.WriteByte(tag)
	return b
}

// wrapped writes a pre-built zip structure payload as an RDB string.
func (b *rdbBuilder) wrapped(payload []byte) *rdbBuilder {
	b.length(uint64(len(payload)))
	b.buf.Write(payload)
	return b
}

func (b *rdbBuilder) eof() []byte {
	b.buf.WriteByte(opEOF)
	if b.version >= 5 {
		b.buf.Write(make([]byte, 8)) // checksum, not verified
	}
	return b.buf.Bytes()
}

// --- ziplist builder ---

type zlEntry struct {
	kind string // "str", "int8", "int16", "int24", "int32", "int64", "imm"
	s    string
	n    int64
}

func zlStr(s string) zlEntry   { return zlEntry{kind: "str", s: s} }
func zlInt8(n int64) zlEntry   { return zlEntry{kind: "int8", n: n} }
func zlInt16(n int64) zlEntry  { return zlEntry{kind: "int16", n: n} }
func zlInt24(n int64) zlEntry  { return zlEntry{kind: "int24", n: n} }
func zlInt32(n int64) zlEntry  { return zlEntry{kind: "int32", n: n} }
func zlInt64(n int64) zlEntry  { return zlEntry{kind: "int64", n: n} }
func zlImm(n int64) zlEntry    { return zlEntry{kind: "imm", n: n} } // 0..12

func buildZiplist(entries ...zlEntry) []byte {
	var body bytes.Buffer
	prevLen := 0
	tailOffset := 10
	for i, e := range entries {
		if i == len(entries)-1 {
			tailOffset = 10 + body.Len()
		}
		var enc bytes.Buffer
		if prevLen < 254 {
			enc.WriteByte(byte(prevLen))
		} else {
			enc.WriteByte(0xFE)
			var le [4]byte
			binary.LittleEndian.PutUint32(le[:], uint32(prevLen))
			enc.Write(le[:])
		}
		switch e.kind {
		case "str":
			n := len(e.s)
			if n < 64 {
				enc.WriteByte(byte(n))
			} else if n < 16384 {
				enc.WriteByte(0x40 | byte(n>>8))
				enc.WriteByte(byte(n))
			} else {
				enc.WriteByte(0x80)
				var be [4]byte
				binary.BigEndian.PutUint32(be[:], uint32(n))
				enc.Write(be[:])
			}
			enc.WriteString(e.s)
		case "int8":
			enc.WriteByte(0xFE)
			enc.WriteByte(byte(int8(e.n)))
		case "int16":
			enc.WriteByte(0xC0)
			var le [2]byte
			binary.LittleEndian.PutUint16(le[:], uint16(int16(e.n)))
			enc.Write(le[:])
		case "int24":
			enc.WriteByte(0xF0)
			u := uint32(e.n) & 0xFFFFFF
			enc.Write([]byte{byte(u), byte(u >> 8), byte(u >> 16)})
		case "int32":
			enc.WriteByte(0xD0)
			var le [4]byte
			binary.LittleEndian.PutUint32(le[:], uint32(int32(e.n)))
			enc.Write(le[:])
		case "int64":
			enc.WriteByte(0xE0)
			var le [8]byte
			binary.LittleEndian.PutUint64(le[:], uint64(e.n))
			enc.Write(le[:])
		case "imm":
			enc.WriteByte(0xF1 + byte(e.n))
		}
		prevLen = enc.Len()
		body.Write(enc.Bytes())
	}

	total := 10 + body.Len() + 1
	out := make([]byte, 0, total)
	var hdr [10]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(total))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(tailOffset))
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(len(entries)))
	out = append(out, hdr[:]...)
	out = append(out, body.Bytes()...)
	out = append(out, 0xFF)
	return out
}

// --- listpack builder ---

type lpEntry struct {
	kind string // "uint7", "str6", "int16", "int64"
	s    string
	n    int64
}

func lpUint7(n int64) lpEntry { return lpEntry{kind: "uint7", n: n} }
func lpStr(s string) lpEntry  { return lpEntry{kind: "str6", s: s} }
func lpInt16(n int64) lpEntry { return lpEntry{kind: "int16", n: n} }
func lpInt64(n int64) lpEntry { return lpEntry{kind: "int64", n: n} }

func buildListpack(entries ...lpEntry) []byte {
	var body bytes.Buffer
	for _, e := range entries {
		var enc bytes.Buffer
		switch e.kind {
		case "uint7":
			enc.WriteByte(byte(e.n))
		case "str6":
			enc.WriteByte(0x80 | byte(len(e.s)))
			enc.WriteString(e.s)
		case "int16":
			enc.WriteByte(0xF1)
			var le [2]byte
			binary.LittleEndian.PutUint16(le[:], uint16(int16(e.n)))
			enc.Write(le[:])
		case "int64":
			enc.WriteByte(0xF4)
			var le [8]byte
			binary.LittleEndian.PutUint64(le[:], uint64(e.n))
			enc.Write(le[:])
		}
		// back-length (value unread by the decoder, width matters)
		dataSize := enc.Len()
		for i := 0; i < backlenSize(dataSize); i++ {
			enc.WriteByte(byte(dataSize))
		}
		body.Write(enc.Bytes())
	}

	total := 6 + body.Len() + 1
	out := make([]byte, 0, total)
	var hdr [6]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(total))
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(len(entries)))
	out = append(out, hdr[:]...)
	out = append(out, body.Bytes()...)
	out = append(out, 0xFF)
	return out
}

// --- intset builder ---

func buildIntset(width uint32, values ...int64) []byte {
	var buf bytes.Buffer
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], width)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(values)))
	buf.Write(hdr[:])
	for _, v := range values {
		switch width {
		case 2:
			var le [2]byte
			binary.LittleEndian.PutUint16(le[:], uint16(int16(v)))
			buf.Write(le[:])
		case 4:
			var le [4]byte
			binary.LittleEndian.PutUint32(le[:], uint32(int32(v)))
			buf.Write(le[:])
		default:
			var le [8]byte
			binary.LittleEndian.PutUint64(le[:], uint64(v))
			buf.Write(le[:])
		}
	}
	return buf.Bytes()
}

// --- zipmap builder ---

func buildZipmap(free byte, pairs ...[2]string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(len(pairs)))
	writeLen := func(n int) {
		if n < 253 {
			buf.WriteByte(byte(n))
		} else {
			buf.WriteByte(253)
			var le [4]byte
			binary.LittleEndian.PutUint32(le[:], uint32(n))
			buf.Write(le[:])
		}
	}
	for _, p := range pairs {
		writeLen(len(p[0]))
		buf.WriteString(p[0])
		writeLen(len(p[1]))
		buf.WriteByte(free)
		buf.WriteString(p[1])
		buf.Write(make([]byte, free))
	}
	buf.WriteByte(0xFF)
	return buf.Bytes()
}

// --- recorder callback ---

type streamRec struct {
	listpacks int64
	nodes     [][]byte
	items     uint64
	lastID    string
	groups    []StreamGroup
}

type moduleRec struct {
	name       string
	data       []any
	bufferSize int64
	buffer     []byte
}

// recorder captures decoder events for assertions.
type recorder struct {
	NopCallback

	version   int
	aux       map[string]string
	started   []int
	ended     []int
	dbSizes   [][2]uint64
	endedRDB  bool

	// keyed per database, then key rendering
	strings map[int]map[string]string
	hashes  map[int]map[string]map[string]string
	lists   map[int]map[string][]string
	sets    map[int]map[string][]string
	zsets   map[int]map[string]map[string]Score
	lengths map[int]map[string]int64
	expiry  map[int]map[string]time.Time
	encs    map[int]map[string]string
	streams map[string]*streamRec
	modules map[string]*moduleRec

	db int
}

func newRecorder() *recorder {
	return &recorder{
		aux:     map[string]string{},
		strings: map[int]map[string]string{},
		hashes:  map[int]map[string]map[string]string{},
		lists:   map[int]map[string][]string{},
		sets:    map[int]map[string][]string{},
		zsets:   map[int]map[string]map[string]Score{},
		lengths: map[int]map[string]int64{},
		expiry:  map[int]map[string]time.Time{},
		encs:    map[int]map[string]string{},
		streams: map[string]*streamRec{},
		modules: map[string]*moduleRec{},
	}
}

func (r *recorder) note(key Value, length int64, expiry *time.Time, info *Info) {
	k := key.String()
	if r.lengths[r.db] == nil {
		r.lengths[r.db] = map[string]int64{}
		r.expiry[r.db] = map[string]time.Time{}
		r.encs[r.db] = map[string]string{}
	}
	r.lengths[r.db][k] = length
	if expiry != nil {
		r.expiry[r.db][k] = *expiry
	}
	if info != nil {
		r.encs[r.db][k] = info.Encoding
	}
}

func (r *recorder) StartRDB(version int) error { r.version = version; return nil }

func (r *recorder) AuxField(key, value Value) error {
	r.aux[key.String()] = value.String()
	return nil
}

func (r *recorder) StartDatabase(db int) error {
	r.db = db
	r.started = append(r.started, db)
	return nil
}

func (r *recorder) DBSize(keys, expires uint64) error {
	r.dbSizes = append(r.dbSizes, [2]uint64{keys, expires})
	return nil
}

func (r *recorder) EndDatabase(db int) error { r.ended = append(r.ended, db); return nil }
func (r *recorder) EndRDB() error            { r.endedRDB = true; return nil }

func (r *recorder) Set(key, value Value, expiry *time.Time, info *Info) error {
	if r.strings[r.db] == nil {
		r.strings[r.db] = map[string]string{}
	}
	r.strings[r.db][key.String()] = value.String()
	r.note(key, 0, expiry, info)
	return nil
}

func (r *recorder) StartHash(key Value, length int64, expiry *time.Time, info *Info) error {
	if r.hashes[r.db] == nil {
		r.hashes[r.db] = map[string]map[string]string{}
	}
	r.hashes[r.db][key.String()] = map[string]string{}
	r.note(key, length, expiry, info)
	return nil
}

func (r *recorder) HSet(key, field, value Value) error {
	r.hashes[r.db][key.String()][field.String()] = value.String()
	return nil
}

func (r *recorder) StartSet(key Value, cardinality int64, expiry *time.Time, info *Info) error {
	if r.sets[r.db] == nil {
		r.sets[r.db] = map[string][]string{}
	}
	r.sets[r.db][key.String()] = nil
	r.note(key, cardinality, expiry, info)
	return nil
}

func (r *recorder) SAdd(key, member Value) error {
	k := key.String()
	r.sets[r.db][k] = append(r.sets[r.db][k], member.String())
	return nil
}

func (r *recorder) StartList(key Value, expiry *time.Time, info *Info) error {
	if r.lists[r.db] == nil {
		r.lists[r.db] = map[string][]string{}
	}
	r.lists[r.db][key.String()] = nil
	r.note(key, 0, expiry, info)
	return nil
}

func (r *recorder) RPush(key, value Value) error {
	k := key.String()
	r.lists[r.db][k] = append(r.lists[r.db][k], value.String())
	return nil
}

func (r *recorder) EndList(key Value, info *Info) error {
	r.lengths[r.db][key.String()] = int64(len(r.lists[r.db][key.String()]))
	return nil
}

func (r *recorder) StartSortedSet(key Value, length int64, expiry *time.Time, info *Info) error {
	if r.zsets[r.db] == nil {
		r.zsets[r.db] = map[string]map[string]Score{}
	}
	r.zsets[r.db][key.String()] = map[string]Score{}
	r.note(key, length, expiry, info)
	return nil
}

func (r *recorder) ZAdd(key Value, score Score, member Value) error {
	r.zsets[r.db][key.String()][member.String()] = score
	return nil
}

func (r *recorder) StartStream(key Value, listpacks int64, expiry *time.Time, info *Info) error {
	r.streams[key.String()] = &streamRec{listpacks: listpacks}
	r.note(key, listpacks, expiry, info)
	return nil
}

func (r *recorder) StreamListpack(key Value, entryID, data []byte) error {
	s := r.streams[key.String()]
	s.nodes = append(s.nodes, entryID)
	return nil
}

func (r *recorder) EndStream(key Value, items uint64, lastEntryID string, cgroups []StreamGroup) error {
	s := r.streams[key.String()]
	s.items = items
	s.lastID = lastEntryID
	s.groups = cgroups
	return nil
}

func (r *recorder) StartModule(key Value, moduleName string, expiry *time.Time, info *Info) (bool, error) {
	r.modules[key.String()] = &moduleRec{name: moduleName}
	return true, nil
}

func (r *recorder) HandleModuleData(key Value, opcode uint64, data any) error {
	m := r.modules[key.String()]
	m.data = append(m.data, data)
	return nil
}

func (r *recorder) EndModule(key Value, bufferSize int64, buffer []byte) error {
	m := r.modules[key.String()]
	m.bufferSize = bufferSize
	m.buffer = buffer
	return nil
}

// decode runs a full parse over data into a fresh recorder.
func decode(data []byte, filter *Filter) (*recorder, *Decoder, error) {
	rec := newRecorder()
	dec := NewDecoder(bytes.NewReader(data), rec, filter)
	err := dec.Decode()
	return rec, dec, err
}
