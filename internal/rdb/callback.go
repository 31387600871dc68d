package rdb

import "time"

// Info carries per-object metadata alongside start events.
type Info struct {
	// Encoding is the on-disk encoding name: string, linkedlist,
	// hashtable, skiplist, ziplist, intset, zipmap, quicklist,
	// listpacks.
	Encoding string
	// SizeofValue is the serialized byte size of zip-encoded values
	// (ziplist/intset/zipmap payload length); zero when not known.
	SizeofValue int
	// Zips is the quicklist node count; zero otherwise.
	Zips int64
	// Idle is the LRU idle hint preceding the key, when present.
	Idle uint64
	HasIdle bool
	// Freq is the LFU frequency hint preceding the key, when present.
	Freq    byte
	HasFreq bool
}

// StreamPending is one pending-entries-list record of a consumer group.
type StreamPending struct {
	ID            []byte // 16 raw bytes, big-endian ms/seq pair
	DeliveryTime  int64
	DeliveryCount uint64
}

// StreamConsumer is one consumer of a consumer group.
type StreamConsumer struct {
	Name     Value
	SeenTime int64
	Pending  [][]byte // entry ids only
}

// StreamGroup is one consumer group attached to a stream key.
type StreamGroup struct {
	Name             Value
	LastDeliveredMs  uint64
	LastDeliveredSeq uint64
	Pending          []StreamPending
	Consumers        []StreamConsumer
}

// Callback receives parse events in file order. The decoder calls it
// synchronously from a single goroutine; a slow callback naturally
// backpressures the parse. Any method may return ErrStopParsing to
// request early termination, or any other error to abort.
type Callback interface {
	// StartRDB is called once the header has validated; version is the
	// file format version, 1 through 9.
	StartRDB(version int) error
	// AuxField delivers one 0xFA metadata pair (redis-ver, used-mem, ...).
	AuxField(key, value Value) error
	// StartDatabase is called on each SELECTDB.
	StartDatabase(db int) error
	// DBSize delivers the RESIZEDB hints for the current database.
	DBSize(keys, expires uint64) error

	Set(key, value Value, expiry *time.Time, info *Info) error

	StartHash(key Value, length int64, expiry *time.Time, info *Info) error
	HSet(key, field, value Value) error
	EndHash(key Value) error

	StartSet(key Value, cardinality int64, expiry *time.Time, info *Info) error
	SAdd(key, member Value) error
	EndSet(key Value) error

	StartList(key Value, expiry *time.Time, info *Info) error
	RPush(key, value Value) error
	EndList(key Value, info *Info) error

	StartSortedSet(key Value, length int64, expiry *time.Time, info *Info) error
	ZAdd(key Value, score Score, member Value) error
	EndSortedSet(key Value) error

	StartStream(key Value, listpacks int64, expiry *time.Time, info *Info) error
	StreamListpack(key Value, entryID, data []byte) error
	EndStream(key Value, items uint64, lastEntryID string, cgroups []StreamGroup) error

	// StartModule begins a module-v2 block. key is the zero Value for
	// MODULE-AUX blocks. Returning record=true asks the decoder to
	// capture the block's raw payload and hand it to EndModule.
	StartModule(key Value, moduleName string, expiry *time.Time, info *Info) (record bool, err error)
	// HandleModuleData delivers one (opcode, payload) item; data is an
	// int64 (SINT/UINT), float32 (FLOAT), float64 (DOUBLE) or Value
	// (STRING) depending on the opcode.
	HandleModuleData(key Value, opcode uint64, data any) error
	EndModule(key Value, bufferSize int64, buffer []byte) error

	EndDatabase(db int) error
	EndRDB() error
}

// NopCallback implements Callback with no-ops; embed it to implement
// only the events a sink cares about.
type NopCallback struct{}

func (NopCallback) StartRDB(int) error                                     { return nil }
func (NopCallback) AuxField(Value, Value) error                            { return nil }
func (NopCallback) StartDatabase(int) error                                { return nil }
func (NopCallback) DBSize(uint64, uint64) error                            { return nil }
func (NopCallback) Set(Value, Value, *time.Time, *Info) error              { return nil }
func (NopCallback) StartHash(Value, int64, *time.Time, *Info) error        { return nil }
func (NopCallback) HSet(Value, Value, Value) error                         { return nil }
func (NopCallback) EndHash(Value) error                                    { return nil }
func (NopCallback) StartSet(Value, int64, *time.Time, *Info) error         { return nil }
func (NopCallback) SAdd(Value, Value) error                                { return nil }
func (NopCallback) EndSet(Value) error                                     { return nil }
func (NopCallback) StartList(Value, *time.Time, *Info) error               { return nil }
func (NopCallback) RPush(Value, Value) error                               { return nil }
func (NopCallback) EndList(Value, *Info) error                             { return nil }
func (NopCallback) StartSortedSet(Value, int64, *time.Time, *Info) error   { return nil }
func (NopCallback) ZAdd(Value, Score, Value) error                         { return nil }
func (NopCallback) EndSortedSet(Value) error                               { return nil }
func (NopCallback) StartStream(Value, int64, *time.Time, *Info) error      { return nil }
func (NopCallback) StreamListpack(Value, []byte, []byte) error             { return nil }
func (NopCallback) EndStream(Value, uint64, string, []StreamGroup) error   { return nil }
func (NopCallback) StartModule(Value, string, *time.Time, *Info) (bool, error) {
	return false, nil
}
func (NopCallback) HandleModuleData(Value, uint64, any) error { return nil }
func (NopCallback) EndModule(Value, int64, []byte) error        { return nil }
func (NopCallback) EndDatabase(int) error                       { return nil }
func (NopCallback) EndRDB() error                               { return nil }
