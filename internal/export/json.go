package export

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"rdbdump/internal/rdb"
)

// JSONEmitter renders the dump as one JSON array with an object per
// non-empty database. Keys are always quoted; numeric values are not.
// Streams and module blocks have no JSON rendering and are ignored.
type JSONEmitter struct {
	rdb.NopCallback

	out    io.Writer
	escape Escape

	firstDB       bool
	hasDatabases  bool
	firstKeyInDB  bool
	elementsInKey int64
	elementIndex  int64
}

func NewJSONEmitter(out io.Writer, escape Escape) *JSONEmitter {
	return &JSONEmitter{out: out, escape: escape, firstDB: true}
}

func (j *JSONEmitter) write(s string) error {
	_, err := io.WriteString(j.out, s)
	return err
}

func (j *JSONEmitter) StartRDB(version int) error {
	return j.write("[")
}

func (j *JSONEmitter) StartDatabase(db int) error {
	if !j.firstDB {
		if err := j.write("},"); err != nil {
			return err
		}
	}
	j.firstDB = false
	j.hasDatabases = true
	j.firstKeyInDB = true
	return j.write("{")
}

func (j *JSONEmitter) EndRDB() error {
	if j.hasDatabases {
		if err := j.write("}"); err != nil {
			return err
		}
	}
	return j.write("]")
}

func (j *JSONEmitter) startKey(length int64) error {
	var err error
	if !j.firstKeyInDB {
		err = j.write(",")
	}
	if err == nil {
		err = j.write("\r\n")
	}
	j.firstKeyInDB = false
	j.elementsInKey = length
	j.elementIndex = 0
	return err
}

func (j *JSONEmitter) comma() error {
	var err error
	if j.elementIndex > 0 && j.elementIndex < j.elementsInKey {
		err = j.write(",")
	}
	j.elementIndex++
	return err
}

func (j *JSONEmitter) Set(key, value rdb.Value, expiry *time.Time, info *rdb.Info) error {
	if err := j.startKey(0); err != nil {
		return err
	}
	return j.write(j.encodeKey(key) + ":" + j.encodeValue(value))
}

func (j *JSONEmitter) StartHash(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	if err := j.startKey(length); err != nil {
		return err
	}
	return j.write(j.encodeKey(key) + ":{")
}

func (j *JSONEmitter) HSet(key, field, value rdb.Value) error {
	if err := j.comma(); err != nil {
		return err
	}
	return j.write(j.encodeKey(field) + ":" + j.encodeValue(value))
}

func (j *JSONEmitter) EndHash(key rdb.Value) error {
	return j.write("}")
}

func (j *JSONEmitter) StartSet(key rdb.Value, cardinality int64, expiry *time.Time, info *rdb.Info) error {
	if err := j.startKey(cardinality); err != nil {
		return err
	}
	return j.write(j.encodeKey(key) + ":[")
}

func (j *JSONEmitter) SAdd(key, member rdb.Value) error {
	if err := j.comma(); err != nil {
		return err
	}
	return j.write(j.encodeValue(member))
}

func (j *JSONEmitter) EndSet(key rdb.Value) error {
	return j.write("]")
}

func (j *JSONEmitter) StartList(key rdb.Value, expiry *time.Time, info *rdb.Info) error {
	if err := j.startKey(-1); err != nil {
		return err
	}
	return j.write(j.encodeKey(key) + ":[")
}

func (j *JSONEmitter) RPush(key, value rdb.Value) error {
	// List lengths are not always known up front; separate every
	// element after the first.
	if j.elementIndex > 0 {
		if err := j.write(","); err != nil {
			return err
		}
	}
	j.elementIndex++
	return j.write(j.encodeValue(value))
}

func (j *JSONEmitter) EndList(key rdb.Value, info *rdb.Info) error {
	return j.write("]")
}

func (j *JSONEmitter) StartSortedSet(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	if err := j.startKey(length); err != nil {
		return err
	}
	return j.write(j.encodeKey(key) + ":{")
}

func (j *JSONEmitter) ZAdd(key rdb.Value, score rdb.Score, member rdb.Value) error {
	if err := j.comma(); err != nil {
		return err
	}
	return j.write(j.encodeKey(member) + ":" + j.encodeScore(score))
}

func (j *JSONEmitter) EndSortedSet(key rdb.Value) error {
	return j.write("}")
}

// encodeKey quotes everything, numbers included.
func (j *JSONEmitter) encodeKey(v rdb.Value) string {
	if v.IsInt() {
		return `"` + v.String() + `"`
	}
	return jsonQuote(v.Raw(), j.escape)
}

// encodeValue leaves numbers unquoted.
func (j *JSONEmitter) encodeValue(v rdb.Value) string {
	if v.IsInt() {
		return v.String()
	}
	return jsonQuote(v.Raw(), j.escape)
}

// encodeScore renders NaN and the infinities as bare literals.
func (j *JSONEmitter) encodeScore(s rdb.Score) string {
	if s.IsFloat() {
		return s.String()
	}
	return jsonQuote(s.Raw(), j.escape)
}

// jsonQuote escapes per policy inside JSON quotes. The \xHH sequences
// produced by the print and utf8 policies are kept verbatim, so the
// output is diffable even when it is not strict JSON.
func jsonQuote(b []byte, policy Escape) string {
	if policy == EscapeBase64 && !allPrintable(b) {
		return `"` + Apply(b, policy, true) + `"`
	}
	out := make([]byte, 0, len(b)+2)
	out = append(out, '"')
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == '"':
			out = append(out, '\\', '"')
			i++
		case c == '\\':
			out = append(out, '\\', '\\')
			i++
		case c >= 0x20 && c <= 0x7E:
			out = append(out, c)
			i++
		default:
			if policy == EscapeUTF8 {
				r, size := utf8.DecodeRune(b[i:])
				if r != utf8.RuneError || size > 1 {
					out = append(out, b[i:i+size]...)
					i += size
					continue
				}
			}
			if policy == EscapeRaw {
				out = append(out, c)
			} else {
				out = append(out, fmt.Sprintf(`\x%02X`, c)...)
			}
			i++
		}
	}
	out = append(out, '"')
	return string(out)
}
