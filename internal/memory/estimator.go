package memory

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"rdbdump/internal/rdb"
)

const (
	zskiplistMaxLevel   = 32
	zskiplistP          = 0.25
	redisSharedIntegers = 10000
)

// Options configure the estimator.
type Options struct {
	// Architecture is the pointer width of the target Redis, 32 or 64.
	Architecture int
	// RedisVersion the overhead formulas target, e.g. "4.0".
	RedisVersion string
	// Seed for the skiplist level sampler. The estimate is
	// deterministic for a fixed seed; tests rely on that.
	Seed int64
	// KeyEscape renders key bytes for the report; defaults to a plain
	// string conversion.
	KeyEscape func([]byte) string
}

// ParseVersion parses "X.Y" or "X.Y.Z" version strings.
func ParseVersion(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("invalid redis version %q", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("invalid redis version %q", s)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("invalid redis version %q", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

// Estimator is an event sink that emits one Record per admitted key,
// plus two synthetic dict records per database. The totals reproduce
// Redis's allocation math: per-encoding overheads, sds headers and
// jemalloc size-class rounding.
type Estimator struct {
	rdb.NopCallback

	sink        RecordSink
	pointerSize int64
	longSize    int64
	version     Version
	rng         *rand.Rand
	keyEscape   func([]byte) string

	dbnum           int
	currentSize     int64
	currentEncoding string
	currentLength   int64
	lenLargest      int64
	keyExpiry       *time.Time
	dbKeys          int64
	dbExpires       int64

	// list encoding prediction state
	listItemsSize      int64
	listItemsZipped    int64
	listMaxZiplistSize int64
	curZips            int64
	curZipSize         int64
	listMaxEntries     int64
	listMaxValue       int64

	// stream state
	listpacksCount int64

	auxUsedMem   *int64
	auxRedisVer  string
	auxRedisBits *int64
	totalFrag    int64
}

// New builds an estimator writing records to sink.
func New(sink RecordSink, opts Options) (*Estimator, error) {
	e := &Estimator{sink: sink, rng: rand.New(rand.NewSource(opts.Seed))}
	switch opts.Architecture {
	case 64:
		e.pointerSize, e.longSize = 8, 8
	case 32:
		e.pointerSize, e.longSize = 4, 4
	default:
		return nil, fmt.Errorf("invalid architecture %d: want 32 or 64", opts.Architecture)
	}
	ver := opts.RedisVersion
	if ver == "" {
		ver = "5.0"
	}
	v, err := ParseVersion(ver)
	if err != nil {
		return nil, err
	}
	e.version = v
	e.keyEscape = opts.KeyEscape
	if e.keyEscape == nil {
		e.keyEscape = func(b []byte) string { return string(b) }
	}
	return e, nil
}

// TotalInternalFragmentation is the accumulated jemalloc rounding loss.
func (e *Estimator) TotalInternalFragmentation() int64 { return e.totalFrag }

func (e *Estimator) emitRecord(recordType string, key *rdb.Value, byteCount int64, encoding string, size, largest int64, expiry *time.Time) error {
	rec := Record{
		Database:          e.dbnum,
		Type:              recordType,
		Bytes:             byteCount,
		Encoding:          encoding,
		Size:              size,
		LenLargestElement: largest,
		Expiry:            expiry,
	}
	if key != nil {
		rec.HasKey = true
		if key.IsInt() {
			rec.Key = key.String()
		} else {
			rec.Key = e.keyEscape(key.Raw())
		}
	}
	return e.sink.NextRecord(rec)
}

func (e *Estimator) AuxField(key, value rdb.Value) error {
	switch string(key.Bytes()) {
	case "used-mem":
		if n, ok := value.AsInt(); ok {
			e.auxUsedMem = &n
		}
	case "redis-ver":
		e.auxRedisVer = value.String()
	case "redis-bits":
		if n, ok := value.AsInt(); ok {
			e.auxRedisBits = &n
		}
	}
	return nil
}

func (e *Estimator) StartDatabase(db int) error {
	e.dbnum = db
	e.dbKeys = 0
	e.dbExpires = 0
	return nil
}

func (e *Estimator) EndDatabase(db int) error {
	if err := e.emitRecord("dict", nil, e.hashtableOverhead(e.dbKeys), "", 0, 0, nil); err != nil {
		return err
	}
	if err := e.emitRecord("dict", nil, e.hashtableOverhead(e.dbExpires), "", 0, 0, nil); err != nil {
		return err
	}
	if s, ok := e.sink.(interface{ EndDatabase(int) error }); ok {
		return s.EndDatabase(db)
	}
	return nil
}

func (e *Estimator) EndRDB() error {
	if s, ok := e.sink.(interface{ EndRDB() error }); ok {
		if err := s.EndRDB(); err != nil {
			return err
		}
	}
	if s, ok := e.sink.(interface{ SetMetadata(string, any) }); ok {
		if e.auxUsedMem != nil {
			s.SetMetadata("used_mem", *e.auxUsedMem)
		}
		if e.auxRedisVer != "" {
			s.SetMetadata("redis_ver", e.auxRedisVer)
		}
		if e.auxRedisBits != nil {
			s.SetMetadata("redis_bits", *e.auxRedisBits)
		}
		s.SetMetadata("internal_frag", e.totalFrag)
	}
	return nil
}

func (e *Estimator) Set(key, value rdb.Value, expiry *time.Time, info *rdb.Info) error {
	size := e.topLevelObjectOverhead(key, expiry) + e.sizeofValue(value)
	length := e.elementLength(value)
	if err := e.emitRecord("string", &key, size, info.Encoding, length, length, expiry); err != nil {
		return err
	}
	e.endKey()
	return nil
}

func (e *Estimator) StartHash(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	e.currentEncoding = info.Encoding
	e.currentLength = length
	e.keyExpiry = expiry
	size := e.topLevelObjectOverhead(key, expiry)
	if info.SizeofValue > 0 {
		size += int64(info.SizeofValue)
	} else {
		size += e.hashtableOverhead(length)
	}
	e.currentSize = size
	return nil
}

func (e *Estimator) HSet(key, field, value rdb.Value) error {
	e.trackLargest(field)
	e.trackLargest(value)
	if e.currentEncoding == "hashtable" {
		e.currentSize += e.sizeofValue(field)
		e.currentSize += e.sizeofValue(value)
		e.currentSize += e.hashtableEntryOverhead()
		if !e.version.AtLeast(4, 0) {
			e.currentSize += 2 * e.robjOverhead()
		}
	}
	return nil
}

func (e *Estimator) EndHash(key rdb.Value) error {
	err := e.emitRecord("hash", &key, e.currentSize, e.currentEncoding, e.currentLength, e.lenLargest, e.keyExpiry)
	e.endKey()
	return err
}

// A set costs exactly like a hash at the container level.
func (e *Estimator) StartSet(key rdb.Value, cardinality int64, expiry *time.Time, info *rdb.Info) error {
	return e.StartHash(key, cardinality, expiry, info)
}

func (e *Estimator) SAdd(key, member rdb.Value) error {
	e.trackLargest(member)
	if e.currentEncoding == "hashtable" {
		e.currentSize += e.sizeofValue(member)
		e.currentSize += e.hashtableEntryOverhead()
		if !e.version.AtLeast(4, 0) {
			e.currentSize += e.robjOverhead()
		}
	}
	return nil
}

func (e *Estimator) EndSet(key rdb.Value) error {
	err := e.emitRecord("set", &key, e.currentSize, e.currentEncoding, e.currentLength, e.lenLargest, e.keyExpiry)
	e.endKey()
	return err
}

func (e *Estimator) StartList(key rdb.Value, expiry *time.Time, info *rdb.Info) error {
	e.currentLength = 0
	e.listItemsSize = 0
	e.listItemsZipped = 0
	e.keyExpiry = expiry
	e.currentSize = e.topLevelObjectOverhead(key, expiry)

	// The on-disk encoding is ignored; predict the encoding the target
	// Redis version would pick with its default configuration.
	if e.version.AtLeast(3, 2) {
		e.currentEncoding = "quicklist"
		e.listMaxZiplistSize = 8192 // list-max-ziplist-size -2
		e.curZips = 1
		e.curZipSize = 0
	} else {
		e.currentEncoding = "ziplist"
		e.listMaxEntries = 512
		e.listMaxValue = 64
	}
	return nil
}

func (e *Estimator) RPush(key, value rdb.Value) error {
	e.currentLength++
	// In a linked list an integer-encoded robj carries no extra bytes.
	var sizeInList int64
	if _, ok := value.AsInt(); !ok {
		sizeInList = e.sizeofValue(value)
	}
	sizeInZip := e.ziplistEntryOverhead(value)
	e.trackLargest(value)

	switch e.currentEncoding {
	case "ziplist":
		e.listItemsZipped += sizeInZip
		if e.currentLength > e.listMaxEntries || sizeInZip > e.listMaxValue {
			e.currentEncoding = "linkedlist"
		}
	case "quicklist":
		if e.curZipSize+sizeInZip > e.listMaxZiplistSize {
			e.curZipSize = sizeInZip
			e.curZips++
		} else {
			e.curZipSize += sizeInZip
		}
		e.listItemsZipped += sizeInZip
	}
	e.listItemsSize += sizeInList
	return nil
}

func (e *Estimator) EndList(key rdb.Value, info *rdb.Info) error {
	switch e.currentEncoding {
	case "quicklist":
		e.currentSize += e.quicklistOverhead(e.curZips)
		e.currentSize += e.ziplistHeaderOverhead() * e.curZips
		e.currentSize += e.listItemsZipped
	case "ziplist":
		e.currentSize += e.ziplistHeaderOverhead()
		e.currentSize += e.listItemsZipped
	default: // linkedlist
		e.currentSize += e.linkedlistEntryOverhead() * e.currentLength
		e.currentSize += e.linkedlistOverhead()
		if !e.version.AtLeast(4, 0) {
			e.currentSize += e.robjOverhead() * e.currentLength
		}
		e.currentSize += e.listItemsSize
	}
	err := e.emitRecord("list", &key, e.currentSize, e.currentEncoding, e.currentLength, e.lenLargest, e.keyExpiry)
	e.endKey()
	return err
}

func (e *Estimator) StartSortedSet(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	e.currentLength = length
	e.currentEncoding = info.Encoding
	e.keyExpiry = expiry
	size := e.topLevelObjectOverhead(key, expiry)
	if info.SizeofValue > 0 {
		size += int64(info.SizeofValue)
	} else {
		size += e.skiplistOverhead(length)
	}
	e.currentSize = size
	return nil
}

func (e *Estimator) ZAdd(key rdb.Value, score rdb.Score, member rdb.Value) error {
	e.trackLargest(member)
	if e.currentEncoding == "skiplist" {
		e.currentSize += 8 // the double score
		e.currentSize += e.sizeofValue(member)
		if !e.version.AtLeast(4, 0) {
			e.currentSize += e.robjOverhead()
		}
		e.currentSize += e.skiplistEntryOverhead()
	}
	return nil
}

func (e *Estimator) EndSortedSet(key rdb.Value) error {
	err := e.emitRecord("sortedset", &key, e.currentSize, e.currentEncoding, e.currentLength, e.lenLargest, e.keyExpiry)
	e.endKey()
	return err
}

func (e *Estimator) StartStream(key rdb.Value, listpacks int64, expiry *time.Time, info *rdb.Info) error {
	e.keyExpiry = expiry
	e.currentEncoding = info.Encoding
	e.currentSize = e.topLevelObjectOverhead(key, expiry)
	e.currentSize += e.pointerSize*2 + 8 + 16 // stream struct
	e.currentSize += e.pointerSize + 8*2      // rax struct
	e.listpacksCount = listpacks
	return nil
}

func (e *Estimator) StreamListpack(key rdb.Value, entryID, data []byte) error {
	e.currentSize += e.mallocOverhead(int64(len(data)))
	if int64(len(data)) > e.lenLargest {
		e.lenLargest = int64(len(data))
	}
	return nil
}

func (e *Estimator) EndStream(key rdb.Value, items uint64, lastEntryID string, cgroups []rdb.StreamGroup) error {
	// On top of the key/value overheads and listpack bytes, estimate
	// the radix tree and consumer-group bookkeeping, following Redis's
	// MEMORY USAGE math.
	size := e.currentSize + e.streamRadixTreeOverhead(e.listpacksCount)
	for _, cg := range cgroups {
		size += e.pointerSize*2 + 16 // streamCG
		pending := int64(len(cg.Pending))
		size += e.streamRadixTreeOverhead(pending)
		size += pending * (e.pointerSize + 8 + 8) // streamNACK
		for _, c := range cg.Consumers {
			size += e.pointerSize*2 + 8 // streamConsumer
			size += e.sizeofValue(c.Name)
			size += e.streamRadixTreeOverhead(int64(len(c.Pending)))
		}
	}
	err := e.emitRecord("stream", &key, size, e.currentEncoding, int64(items), e.lenLargest, e.keyExpiry)
	e.endKey()
	return err
}

func (e *Estimator) StartModule(key rdb.Value, moduleName string, expiry *time.Time, info *rdb.Info) (bool, error) {
	e.keyExpiry = expiry
	e.currentEncoding = moduleName
	e.currentSize = 0
	if key.Raw() != nil || key.IsInt() {
		e.currentSize += e.topLevelObjectOverhead(key, expiry)
	}
	e.currentSize += 8 + 1 // module id and EOF opcode
	return false, nil      // no need for the raw buffer
}

func (e *Estimator) EndModule(key rdb.Value, bufferSize int64, buffer []byte) error {
	size := e.currentSize + bufferSize
	var kp *rdb.Value
	if key.IsInt() || key.Raw() != nil { // MODULE-AUX blocks carry no key
		kp = &key
	}
	err := e.emitRecord("module", kp, size, e.currentEncoding, 1, size, e.keyExpiry)
	e.endKey()
	return err
}

func (e *Estimator) endKey() {
	e.dbKeys++
	e.currentEncoding = ""
	e.currentSize = 0
	e.lenLargest = 0
	e.keyExpiry = nil
}

func (e *Estimator) trackLargest(v rdb.Value) {
	if l := e.elementLength(v); l > e.lenLargest {
		e.lenLargest = l
	}
}

// elementLength: integers count as one machine long, bytes count as
// their length.
func (e *Estimator) elementLength(v rdb.Value) int64 {
	if v.IsInt() {
		return e.longSize
	}
	return int64(len(v.Raw()))
}

// sizeofValue is the sds cost of storing a value. Integers cost
// nothing extra: small ones come from the shared pool, the rest embed
// in the robj.
func (e *Estimator) sizeofValue(v rdb.Value) int64 {
	if _, ok := v.AsInt(); ok {
		return 0
	}
	return e.sizeofStringBytes(int64(len(v.Raw())))
}

// sizeofStringBytes is the sds header + payload cost, malloc-rounded.
// From 3.2 on the header width tiers with the length; before that it
// is a flat 8+1 bytes.
func (e *Estimator) sizeofStringBytes(l int64) int64 {
	if !e.version.AtLeast(3, 2) {
		return e.mallocOverhead(l + 8 + 1)
	}
	switch {
	case l < 1<<5:
		return e.mallocOverhead(l + 1 + 1)
	case l < 1<<8:
		return e.mallocOverhead(l + 1 + 2 + 1)
	case l < 1<<16:
		return e.mallocOverhead(l + 1 + 4 + 1)
	case l < 1<<32:
		return e.mallocOverhead(l + 1 + 8 + 1)
	}
	return e.mallocOverhead(l + 1 + 16 + 1)
}

// topLevelObjectOverhead: every top-level key is an entry in the main
// dictionary plus its sds key, a robj, and the expires-table entry
// when an expiry is set.
func (e *Estimator) topLevelObjectOverhead(key rdb.Value, expiry *time.Time) int64 {
	return e.hashtableEntryOverhead() + e.sizeofValue(key) + e.robjOverhead() + e.keyExpiryOverhead(expiry)
}

func (e *Estimator) keyExpiryOverhead(expiry *time.Time) int64 {
	if expiry == nil {
		return 0
	}
	e.dbExpires++
	// The expiry lives in its own hashtable; the timestamp is an int64.
	return e.hashtableEntryOverhead() + 8
}

// hashtableOverhead: dict + 2 dictht + the bucket array at the next
// power of two, times 1.5 for the rehash-overlap worst case.
func (e *Estimator) hashtableOverhead(size int64) int64 {
	return 4 + 7*e.longSize + 4*e.pointerSize + nextPower(size)*e.pointerSize*3/2
}

func (e *Estimator) hashtableEntryOverhead() int64 {
	// A dictEntry is two pointers plus the int64 value.
	return 2*e.pointerSize + 8
}

func (e *Estimator) linkedlistOverhead() int64 {
	// An adlist list has five pointers and an unsigned long.
	return e.longSize + 5*e.pointerSize
}

func (e *Estimator) linkedlistEntryOverhead() int64 {
	// An adlist node is three pointers.
	return 3 * e.pointerSize
}

func (e *Estimator) quicklistOverhead(zips int64) int64 {
	quicklist := 2*e.pointerSize + e.longSize + 2*4
	quickitem := 4*e.pointerSize + e.longSize + 2*4
	return quicklist + zips*quickitem
}

func (e *Estimator) ziplistHeaderOverhead() int64 {
	// <zlbytes><zltail><zllen> ... <zlend>
	return 4 + 4 + 2 + 1
}

// ziplistEntryOverhead is the serialized entry width: prev-len byte(s),
// header, payload.
func (e *Estimator) ziplistEntryOverhead(v rdb.Value) int64 {
	var header, size int64
	if n, ok := v.AsInt(); ok {
		header = 1
		switch {
		case n < 12:
			size = 0
		case n < 1<<8:
			size = 1
		case n < 1<<16:
			size = 2
		case n < 1<<24:
			size = 3
		case n < 1<<32:
			size = 4
		default:
			size = 8
		}
	} else {
		size = int64(len(v.Raw()))
		switch {
		case size <= 63:
			header = 1
		case size <= 16383:
			header = 2
		default:
			header = 5
		}
	}
	prevLen := int64(1)
	if size >= 254 {
		prevLen = 5
	}
	return prevLen + header + size
}

func (e *Estimator) skiplistOverhead(size int64) int64 {
	return 2*e.pointerSize + e.hashtableOverhead(size) + 2*e.pointerSize + 16
}

func (e *Estimator) skiplistEntryOverhead() int64 {
	return e.hashtableEntryOverhead() + 2*e.pointerSize + 8 + (e.pointerSize+8)*e.zsetRandomLevel()
}

func (e *Estimator) robjOverhead() int64 {
	return e.pointerSize + 8
}

func (e *Estimator) mallocOverhead(size int64) int64 {
	alloc := jemallocAllocation(size)
	e.totalFrag += alloc - size
	return alloc
}

// streamRadixTreeOverhead is a rough estimate; a rax has at least one
// node per element, possibly up to ~3x.
func (e *Estimator) streamRadixTreeOverhead(numElements int64) int64 {
	numNodes := int64(float64(numElements) * 2.5)
	return 16*numElements + numNodes*4 + numNodes*30*e.longSize
}

// zsetRandomLevel samples a skiplist level by repeated coin flips with
// p = 0.25, capped at the max level.
func (e *Estimator) zsetRandomLevel() int64 {
	level := int64(1)
	for float64(e.rng.Intn(0x10000)) < zskiplistP*0xFFFF {
		level++
	}
	if level < zskiplistMaxLevel {
		return level
	}
	return zskiplistMaxLevel
}

func nextPower(size int64) int64 {
	power := int64(1)
	for power <= size {
		power <<= 1
	}
	return power
}
