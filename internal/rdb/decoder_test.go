package rdb

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestHeaderValidation(t *testing.T) {
	if _, _, err := decode([]byte("RESIS0003\xFF"), nil); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	if _, _, err := decode([]byte("REDIS0042\xFF"), nil); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
	if _, _, err := decode([]byte("REDIS000x\xFF"), nil); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestEmptyDatabase(t *testing.T) {
	data := newRDB(3).eof()
	rec, dec, err := decode(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.version != 3 {
		t.Errorf("version = %d, want 3", rec.version)
	}
	if len(rec.started) != 0 {
		t.Errorf("unexpected databases: %v", rec.started)
	}
	if !rec.endedRDB {
		t.Error("missing end of rdb")
	}
	if dec.BytesRead() != int64(len(data)) {
		t.Errorf("consumed %d of %d bytes", dec.BytesRead(), len(data))
	}
}

func TestChecksumConsumed(t *testing.T) {
	// Version >= 5 carries an 8-byte trailer after the EOF opcode.
	data := newRDB(7).aux("redis-ver", "4.0.0").selectDB(0).typeTag(TypeString).str("k").str("v").eof()
	_, dec, err := decode(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if dec.BytesRead() != int64(len(data)) {
		t.Errorf("consumed %d of %d bytes, trailer not consumed", dec.BytesRead(), len(data))
	}
}

func TestIntegerKeys(t *testing.T) {
	b := newRDB(3).selectDB(0)
	b.typeTag(TypeString).int8Str(-123).str("Negative 8 bit integer")
	b.typeTag(TypeString).int8Str(125).str("Positive 8 bit integer")
	b.typeTag(TypeString).int32Str(0xABAB).str("Positive 16 bit integer")
	b.typeTag(TypeString).int16Str(-0x7325).str("Negative 16 bit integer")
	b.typeTag(TypeString).int32Str(0x0AEDD325).str("Positive 32 bit integer")
	b.typeTag(TypeString).int32Str(-0x0AEDD325).str("Negative 32 bit integer")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"-123":       "Negative 8 bit integer",
		"125":        "Positive 8 bit integer",
		"43947":      "Positive 16 bit integer",
		"-29477":     "Negative 16 bit integer",
		"183309093":  "Positive 32 bit integer",
		"-183309093": "Negative 32 bit integer",
	}
	for k, v := range want {
		if got := rec.strings[0][k]; got != v {
			t.Errorf("key %s = %q, want %q", k, got, v)
		}
	}
}

// lzfCompressed200a is 200 'a' bytes as LZF: a one-byte literal then a
// maximal overlapping back-reference.
var lzfCompressed200a = []byte{0x00, 'a', 0xE0, 190, 0x00}

func TestCompressedStringKey(t *testing.T) {
	b := newRDB(3).selectDB(0)
	b.typeTag(TypeString).lzfStr(lzfCompressed200a, 200).str("Key that redis should compress easily")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	key := strings.Repeat("a", 200)
	if got := rec.strings[0][key]; got != "Key that redis should compress easily" {
		t.Errorf("compressed key value = %q", got)
	}
}

func TestKeysWithExpiry(t *testing.T) {
	b := newRDB(3).selectDB(0)
	b.expireMS(1671963072573)
	b.typeTag(TypeString).str("expires_ms_precision").str("2022-12-25 10:11:12.573 UTC")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	expiry, ok := rec.expiry[0]["expires_ms_precision"]
	if !ok {
		t.Fatal("expiry missing")
	}
	if expiry.Year() != 2022 || expiry.Month() != time.December || expiry.Day() != 25 {
		t.Errorf("bad expiry date: %v", expiry)
	}
	if expiry.Hour() != 10 || expiry.Minute() != 11 || expiry.Second() != 12 {
		t.Errorf("bad expiry time: %v", expiry)
	}
	if expiry.Nanosecond() != 573000000 {
		t.Errorf("bad expiry sub-second: %d", expiry.Nanosecond())
	}
}

func TestSecondsExpiry(t *testing.T) {
	b := newRDB(3).selectDB(0)
	b.expireSec(1671963072)
	b.typeTag(TypeString).str("expires_s").str("x")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.expiry[0]["expires_s"]; got.Unix() != 1671963072 {
		t.Errorf("expiry = %v", got)
	}
}

func TestExpiryClamped(t *testing.T) {
	b := newRDB(3).selectDB(0)
	b.expireMS(math.MaxUint64 / 2) // far beyond year 9999
	b.typeTag(TypeString).str("clamped").str("x")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.expiry[0]["clamped"]; got.UnixMilli() != maxExpiryMillis {
		t.Errorf("expiry not clamped: %v", got)
	}
}

func TestMultipleDatabases(t *testing.T) {
	b := newRDB(3)
	b.selectDB(0).typeTag(TypeString).str("key_in_zeroth_database").str("zero")
	b.selectDB(2).typeTag(TypeString).str("key_in_second_database").str("second")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.strings[0]["key_in_zeroth_database"]; got != "zero" {
		t.Errorf("db0 value = %q", got)
	}
	if got := rec.strings[2]["key_in_second_database"]; got != "second" {
		t.Errorf("db2 value = %q", got)
	}
	if len(rec.started) != 2 || len(rec.ended) != 2 {
		t.Errorf("db bracketing: started %v ended %v", rec.started, rec.ended)
	}
}

func TestAuxAndResizeDB(t *testing.T) {
	b := newRDB(7)
	b.aux("redis-ver", "4.0.0").aux("redis-bits", "64")
	b.selectDB(0).resizeDB(10, 2)
	b.typeTag(TypeString).str("k").str("v")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.aux["redis-ver"] != "4.0.0" || rec.aux["redis-bits"] != "64" {
		t.Errorf("aux fields = %v", rec.aux)
	}
	if len(rec.dbSizes) != 1 || rec.dbSizes[0] != [2]uint64{10, 2} {
		t.Errorf("db sizes = %v", rec.dbSizes)
	}
}

func TestPlainCollections(t *testing.T) {
	b := newRDB(3).selectDB(0)
	b.typeTag(TypeList).str("mylist").length(2).str("head").str("tail")
	b.typeTag(TypeSet).str("myset").length(3).str("alpha").str("beta").str("gamma")
	b.typeTag(TypeHash).str("myhash").length(2).str("f1").str("v1").str("f2").str("v2")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(rec.lists[0]["mylist"], ","); got != "head,tail" {
		t.Errorf("list = %q", got)
	}
	if got := strings.Join(rec.sets[0]["myset"], ","); got != "alpha,beta,gamma" {
		t.Errorf("set = %q", got)
	}
	if got := rec.hashes[0]["myhash"]["f1"]; got != "v1" {
		t.Errorf("hash f1 = %q", got)
	}
	if got := rec.hashes[0]["myhash"]["f2"]; got != "v2" {
		t.Errorf("hash f2 = %q", got)
	}
	if rec.lengths[0]["myset"] != 3 {
		t.Errorf("set cardinality = %d", rec.lengths[0]["myset"])
	}
	if rec.encs[0]["myhash"] != "hashtable" {
		t.Errorf("hash encoding = %q", rec.encs[0]["myhash"])
	}
}

func TestSortedSetAscii(t *testing.T) {
	b := newRDB(3).selectDB(0)
	b.typeTag(TypeZSet).str("ascii_scores").length(4)
	b.str("pi")
	b.raw(4).raw([]byte("3.14")...)
	b.str("nan")
	b.raw(253)
	b.str("posinf")
	b.raw(254)
	b.str("neginf")
	b.raw(255)
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	z := rec.zsets[0]["ascii_scores"]
	if s := z["pi"]; !s.IsFloat() || math.Abs(s.Float()-3.14) > 1e-9 {
		t.Errorf("pi score = %v", s)
	}
	if s := z["nan"]; !math.IsNaN(s.Float()) {
		t.Errorf("nan score = %v", s)
	}
	if s := z["posinf"]; !math.IsInf(s.Float(), 1) {
		t.Errorf("posinf score = %v", s)
	}
	if s := z["neginf"]; !math.IsInf(s.Float(), -1) {
		t.Errorf("neginf score = %v", s)
	}
}

func TestSortedSetBinary(t *testing.T) {
	b := newRDB(7).selectDB(0)
	b.typeTag(TypeZSet2).str("binary_scores").length(1)
	b.str("member")
	var le [8]byte
	bits := math.Float64bits(2.37)
	for i := 0; i < 8; i++ {
		le[i] = byte(bits >> (8 * i))
	}
	b.raw(le[:]...)
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	z := rec.zsets[0]["binary_scores"]
	if s := z["member"]; math.Abs(s.Float()-2.37) > 1e-9 {
		t.Errorf("score = %v", s)
	}
}

func TestZiplistWithIntegers(t *testing.T) {
	entries := []zlEntry{}
	want := []string{}
	for x := int64(0); x <= 12; x++ {
		entries = append(entries, zlImm(x))
		want = append(want, IntValue(x).String())
	}
	for _, x := range []int64{-2, 13, 25, -61, 63} {
		entries = append(entries, zlInt8(x))
		want = append(want, IntValue(x).String())
	}
	for _, x := range []int64{16380, -16000} {
		entries = append(entries, zlInt16(x))
		want = append(want, IntValue(x).String())
	}
	for _, x := range []int64{65535, -65523} {
		entries = append(entries, zlInt24(x))
		want = append(want, IntValue(x).String())
	}
	entries = append(entries, zlInt32(4194304))
	want = append(want, "4194304")
	entries = append(entries, zlInt64(0x7FFFFFFFFFFFFFFF))
	want = append(want, "9223372036854775807")

	b := newRDB(6).selectDB(0)
	b.typeTag(TypeListZiplist).str("ziplist_with_integers").wrapped(buildZiplist(entries...))
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := rec.lists[0]["ziplist_with_integers"]
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
	if rec.encs[0]["ziplist_with_integers"] != "ziplist" {
		t.Errorf("encoding = %q", rec.encs[0]["ziplist_with_integers"])
	}
}

func TestIntsets(t *testing.T) {
	b := newRDB(6).selectDB(0)
	b.typeTag(TypeSetIntset).str("intset_16").wrapped(buildIntset(2, 0x7FFC, 0x7FFD, 0x7FFE))
	b.typeTag(TypeSetIntset).str("intset_32").wrapped(buildIntset(4, 0x7FFEFFFC, 0x7FFEFFFD, 0x7FFEFFFE))
	b.typeTag(TypeSetIntset).str("intset_64").wrapped(buildIntset(8, 0x7FFEFFFEFFFEFFFC, 0x7FFEFFFEFFFEFFFD, 0x7FFEFFFEFFFEFFFE))
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	checks := map[string][]string{
		"intset_16": {"32764", "32765", "32766"},
		"intset_32": {"2147418108", "2147418109", "2147418110"},
		"intset_64": {"9223090557583032316", "9223090557583032317", "9223090557583032318"},
	}
	for key, want := range checks {
		got := rec.sets[0][key]
		if len(got) != len(want) {
			t.Fatalf("%s: got %v", key, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s[%d] = %s, want %s", key, i, got[i], want[i])
			}
		}
		if rec.encs[0][key] != "intset" {
			t.Errorf("%s encoding = %q", key, rec.encs[0][key])
		}
	}
}

func TestBadIntsetWidth(t *testing.T) {
	b := newRDB(6).selectDB(0)
	b.typeTag(TypeSetIntset).str("bad").wrapped(buildIntset(3))
	if _, _, err := decode(b.eof(), nil); !errors.Is(err, ErrBadIntsetEncoding) {
		t.Fatalf("expected ErrBadIntsetEncoding, got %v", err)
	}
}

func TestSortedSetAsZiplist(t *testing.T) {
	zl := buildZiplist(
		zlStr("8b6ba6718a786daefa69438148361901"), zlImm(1),
		zlStr("cb7a24bb7528f934b841b34c3a73e0c7"), zlStr("2.37"),
		zlStr("523af537946b79c4f8369ed39ba78605"), zlStr("3.423"),
	)
	b := newRDB(6).selectDB(0)
	b.typeTag(TypeZSetZiplist).str("sorted_set_as_ziplist").wrapped(zl)
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	z := rec.zsets[0]["sorted_set_as_ziplist"]
	want := map[string]float64{
		"8b6ba6718a786daefa69438148361901": 1.0,
		"cb7a24bb7528f934b841b34c3a73e0c7": 2.37,
		"523af537946b79c4f8369ed39ba78605": 3.423,
	}
	for member, score := range want {
		got, ok := z[member]
		if !ok {
			t.Fatalf("member %s missing", member)
		}
		if math.Abs(got.Float()-score) > 1e-5 {
			t.Errorf("score for %s = %v, want %v", member, got.Float(), score)
		}
	}
	if rec.lengths[0]["sorted_set_as_ziplist"] != 3 {
		t.Errorf("length = %d", rec.lengths[0]["sorted_set_as_ziplist"])
	}
}

func TestHashAsZiplistAndZipmap(t *testing.T) {
	b := newRDB(4).selectDB(0)
	b.typeTag(TypeHashZiplist).str("hash_zl").wrapped(buildZiplist(
		zlStr("a"), zlStr("aa"), zlStr("aaaaa"), zlStr("aaaaaaaaaaaaaa"),
	))
	b.typeTag(TypeHashZipmap).str("hash_zm").wrapped(buildZipmap(2,
		[2]string{"MKD1G6", "2"},
		[2]string{"YNNXK", "F7TI"},
	))
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.hashes[0]["hash_zl"]["a"]; got != "aa" {
		t.Errorf("hash_zl[a] = %q", got)
	}
	if got := rec.hashes[0]["hash_zl"]["aaaaa"]; got != "aaaaaaaaaaaaaa" {
		t.Errorf("hash_zl[aaaaa] = %q", got)
	}
	if got := rec.hashes[0]["hash_zm"]["MKD1G6"]; got != "2" {
		t.Errorf("hash_zm[MKD1G6] = %q", got)
	}
	if got := rec.hashes[0]["hash_zm"]["YNNXK"]; got != "F7TI" {
		t.Errorf("hash_zm[YNNXK] = %q", got)
	}
}

func TestOddZiplistPairCount(t *testing.T) {
	b := newRDB(6).selectDB(0)
	b.typeTag(TypeHashZiplist).str("odd").wrapped(buildZiplist(zlStr("only")))
	if _, _, err := decode(b.eof(), nil); !errors.Is(err, ErrOddZiplistPairCount) {
		t.Fatalf("expected ErrOddZiplistPairCount, got %v", err)
	}
}

func TestQuicklist(t *testing.T) {
	b := newRDB(7).selectDB(0)
	b.typeTag(TypeListQuicklist).str("ql").length(2)
	b.wrapped(buildZiplist(zlStr("one"), zlStr("two")))
	b.wrapped(buildZiplist(zlInt16(300), zlStr("four")))
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := rec.lists[0]["ql"]
	want := []string{"one", "two", "300", "four"}
	if len(got) != len(want) {
		t.Fatalf("entries = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
	if rec.encs[0]["ql"] != "quicklist" {
		t.Errorf("encoding = %q", rec.encs[0]["ql"])
	}
}

func TestLRUAndLFUHints(t *testing.T) {
	b := newRDB(9).selectDB(0)
	b.idle(7)
	b.typeTag(TypeString).str("idle_key").str("x")
	b.freq(3)
	b.typeTag(TypeString).str("freq_key").str("y")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.strings[0]["idle_key"] != "x" || rec.strings[0]["freq_key"] != "y" {
		t.Errorf("hinted keys missing: %v", rec.strings[0])
	}
}

func TestModuleV1Rejected(t *testing.T) {
	b := newRDB(8).selectDB(0)
	b.typeTag(TypeModule).str("mod_key")
	if _, _, err := decode(b.eof(), nil); !errors.Is(err, ErrModuleV1Unsupported) {
		t.Fatalf("expected ErrModuleV1Unsupported, got %v", err)
	}
}

func moduleID(name string, version uint64) uint64 {
	var id uint64
	for i := 0; i < 9; i++ {
		idx := strings.IndexByte(moduleNameCharset, name[i])
		id = id<<6 | uint64(idx)
	}
	return id<<10 | version
}

func TestModuleV2(t *testing.T) {
	b := newRDB(9).selectDB(0)
	b.typeTag(TypeModule2).str("mod_key")
	b.length(moduleID("ReJSON-RL", 2))
	b.length(ModuleOpcodeUInt).length(42)
	b.length(ModuleOpcodeString).str("hello")
	b.length(ModuleOpcodeEOF)
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	m := rec.modules["mod_key"]
	if m == nil {
		t.Fatal("module event missing")
	}
	if m.name != "ReJSON-RL" {
		t.Errorf("module name = %q", m.name)
	}
	if len(m.data) != 2 {
		t.Fatalf("module data = %v", m.data)
	}
	if n, ok := m.data[0].(int64); !ok || n != 42 {
		t.Errorf("uint item = %v", m.data[0])
	}
	if v, ok := m.data[1].(Value); !ok || v.String() != "hello" {
		t.Errorf("string item = %v", m.data[1])
	}
	// id (0x81 + 8) + uint (1+1) + string (1+1+5) + eof (1)
	if m.bufferSize != 19 {
		t.Errorf("buffer size = %d, want 19", m.bufferSize)
	}
	if len(m.buffer) != 19 {
		t.Errorf("buffer length = %d, want 19", len(m.buffer))
	}
}

func TestModuleAuxBlock(t *testing.T) {
	b := newRDB(9)
	b.raw(opModuleAux)
	b.length(moduleID("graphdata", 1))
	b.length(ModuleOpcodeUInt).length(7)
	b.length(ModuleOpcodeEOF)
	b.selectDB(0)
	b.typeTag(TypeString).str("k").str("v")
	rec, _, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	m := rec.modules[""]
	if m == nil {
		t.Fatal("module aux event missing")
	}
	if m.name != "graphdata" {
		t.Errorf("module name = %q", m.name)
	}
	if rec.strings[0]["k"] != "v" {
		t.Error("key after module aux missing")
	}
}

func TestStream(t *testing.T) {
	nodeID := make([]byte, 16)
	nodeID[7] = 5 // ms = 5, seq = 0, big-endian
	payload := buildListpack(lpUint7(1), lpStr("field"), lpInt16(300), lpInt64(1<<40))

	b := newRDB(9).selectDB(0)
	b.typeTag(TypeStreamListpacks).str("events")
	b.length(1) // one listpack
	b.wrapped(nodeID).wrapped(payload)
	b.length(3).length(5).length(2) // items, last ms, last seq
	b.length(1)                     // one consumer group
	b.str("grp")
	b.length(5).length(1) // last delivered
	b.length(1)           // one pending entry
	b.raw(nodeID...)
	b.raw(make([]byte, 8)...) // delivery time
	b.length(2)               // delivery count
	b.length(1)               // one consumer
	b.str("consumer-1")
	b.raw(make([]byte, 8)...) // seen time
	b.length(1)               // consumer pending
	b.raw(nodeID...)

	rec, dec, err := decode(b.eof(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s := rec.streams["events"]
	if s == nil {
		t.Fatal("stream events missing")
	}
	if s.listpacks != 1 || len(s.nodes) != 1 {
		t.Errorf("listpacks = %d, nodes = %d", s.listpacks, len(s.nodes))
	}
	if !bytes.Equal(s.nodes[0], nodeID) {
		t.Errorf("node id = %x", s.nodes[0])
	}
	if s.items != 3 || s.lastID != "5-2" {
		t.Errorf("items = %d, last id = %s", s.items, s.lastID)
	}
	if len(s.groups) != 1 {
		t.Fatalf("groups = %v", s.groups)
	}
	g := s.groups[0]
	if g.Name.String() != "grp" || g.LastDeliveredMs != 5 || g.LastDeliveredSeq != 1 {
		t.Errorf("group = %+v", g)
	}
	if len(g.Pending) != 1 || g.Pending[0].DeliveryCount != 2 {
		t.Errorf("pending = %+v", g.Pending)
	}
	if len(g.Consumers) != 1 || g.Consumers[0].Name.String() != "consumer-1" || len(g.Consumers[0].Pending) != 1 {
		t.Errorf("consumers = %+v", g.Consumers)
	}
	if dec.BytesRead() == 0 {
		t.Error("no bytes consumed")
	}
}

func TestStopParsing(t *testing.T) {
	b := newRDB(3).selectDB(0)
	b.typeTag(TypeString).str("first").str("1")
	b.typeTag(TypeString).str("second").str("2")
	rec := newRecorder()
	stopper := &stopAfterFirstSet{recorder: rec}
	dec := NewDecoder(bytes.NewReader(b.eof()), stopper, nil)
	if err := dec.Decode(); err != nil {
		t.Fatal(err)
	}
	if rec.strings[0]["first"] != "1" {
		t.Error("first key missing")
	}
	if _, ok := rec.strings[0]["second"]; ok {
		t.Error("decoder did not stop")
	}
	if rec.endedRDB {
		t.Error("end of rdb should not fire after a stop")
	}
}

type stopAfterFirstSet struct {
	*recorder
	sets int
}

func (s *stopAfterFirstSet) Set(key, value Value, expiry *time.Time, info *Info) error {
	if err := s.recorder.Set(key, value, expiry, info); err != nil {
		return err
	}
	s.sets++
	if s.sets == 1 {
		return ErrStopParsing
	}
	return nil
}

// buildMixedRDB covers every decodable type plus hints, for the skip
// symmetry checks.
func buildMixedRDB() []byte {
	b := newRDB(9)
	b.aux("redis-ver", "5.0.0")
	b.selectDB(0).resizeDB(12, 1)
	b.typeTag(TypeString).str("plain").str("value")
	b.typeTag(TypeString).int16Str(-12345).str("int keyed")
	b.typeTag(TypeString).str("compressed").lzfStr(lzfCompressed200a, 200)
	b.expireMS(1671963072573)
	b.typeTag(TypeString).str("expiring").str("soon")
	b.typeTag(TypeList).str("mixedlist").length(2).str("a").str("b")
	b.typeTag(TypeSet).str("mixedset").length(2).str("x").str("y")
	b.typeTag(TypeHash).str("mixedhash").length(1).str("f").str("v")
	b.typeTag(TypeZSet).str("mixedzset").length(2).str("m").raw(3).raw([]byte("1.5")...).str("n").raw(253)
	b.typeTag(TypeZSet2).str("mixedzset2").length(1).str("m2").raw(0, 0, 0, 0, 0, 0, 0xF0, 0x3F) // 1.0
	b.typeTag(TypeHashZipmap).str("zm").wrapped(buildZipmap(1, [2]string{"k", "v"}))
	b.typeTag(TypeListZiplist).str("zl").wrapped(buildZiplist(zlStr("e1"), zlInt8(42)))
	b.typeTag(TypeSetIntset).str("is").wrapped(buildIntset(2, 1, 2, 3))
	b.typeTag(TypeZSetZiplist).str("zzl").wrapped(buildZiplist(zlStr("m"), zlImm(4)))
	b.typeTag(TypeHashZiplist).str("hzl").wrapped(buildZiplist(zlStr("f"), zlStr("v")))
	b.typeTag(TypeListQuicklist).str("ql").length(1).wrapped(buildZiplist(zlStr("q1")))
	b.idle(9)
	b.typeTag(TypeString).str("idled").str("z")

	// stream
	nodeID := make([]byte, 16)
	nodeID[7] = 1
	b.typeTag(TypeStreamListpacks).str("st")
	b.length(1).wrapped(nodeID).wrapped(buildListpack(lpUint7(1)))
	b.length(1).length(1).length(0)
	b.length(0) // no consumer groups

	// module
	b.typeTag(TypeModule2).str("mod")
	b.length(moduleID("tstmodule", 0))
	b.length(ModuleOpcodeString).str("payload")
	b.length(ModuleOpcodeDouble).raw(0, 0, 0, 0, 0, 0, 0xF0, 0x3F)
	b.length(ModuleOpcodeEOF)

	return b.eof()
}

func TestSkipSymmetry(t *testing.T) {
	data := buildMixedRDB()

	_, full, err := decode(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if full.BytesRead() != int64(len(data)) {
		t.Fatalf("full decode consumed %d of %d bytes", full.BytesRead(), len(data))
	}

	rejectKeys, err := NewFilter(FilterConfig{NotKeys: "."})
	if err != nil {
		t.Fatal(err)
	}
	rec, skipped, err := decode(data, rejectKeys)
	if err != nil {
		t.Fatal(err)
	}
	if skipped.BytesRead() != full.BytesRead() {
		t.Errorf("skip path consumed %d bytes, decode path %d", skipped.BytesRead(), full.BytesRead())
	}
	if len(rec.strings[0]) != 0 {
		t.Errorf("skip path emitted values: %v", rec.strings[0])
	}

	rejectDBs, err := NewFilter(FilterConfig{DBs: []int{9}})
	if err != nil {
		t.Fatal(err)
	}
	_, skippedDB, err := decode(data, rejectDBs)
	if err != nil {
		t.Fatal(err)
	}
	if skippedDB.BytesRead() != full.BytesRead() {
		t.Errorf("db-skip path consumed %d bytes, decode path %d", skippedDB.BytesRead(), full.BytesRead())
	}
}

func TestTypeFilter(t *testing.T) {
	data := buildMixedRDB()
	onlyHashes, err := NewFilter(FilterConfig{Types: []string{"hash"}})
	if err != nil {
		t.Fatal(err)
	}
	rec, _, err := decode(data, onlyHashes)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.strings[0]) != 0 {
		t.Errorf("strings leaked through type filter: %v", rec.strings[0])
	}
	if len(rec.hashes[0]) != 3 { // plain hash, zipmap, hash-ziplist
		t.Errorf("hashes = %v", rec.hashes[0])
	}
}

func TestKeyFilter(t *testing.T) {
	b := newRDB(3).selectDB(0)
	b.typeTag(TypeString).str("user:1").str("a")
	b.typeTag(TypeString).str("user:2").str("b")
	b.typeTag(TypeString).str("session:1").str("c")
	data := b.eof()

	f, err := NewFilter(FilterConfig{Keys: "^user:", NotKeys: ":2$"})
	if err != nil {
		t.Fatal(err)
	}
	rec, _, err := decode(data, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.strings[0]) != 1 || rec.strings[0]["user:1"] != "a" {
		t.Errorf("filtered keys = %v", rec.strings[0])
	}
}
