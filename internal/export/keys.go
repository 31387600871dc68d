package export

import (
	"fmt"
	"io"
	"time"

	"rdbdump/internal/rdb"
)

// KeysEmitter prints one line per key.
type KeysEmitter struct {
	rdb.NopCallback

	out    io.Writer
	escape Escape
}

func NewKeysEmitter(out io.Writer, escape Escape) *KeysEmitter {
	return &KeysEmitter{out: out, escape: escape}
}

func (k *KeysEmitter) emit(key rdb.Value) error {
	var rendered string
	if key.IsInt() {
		rendered = key.String()
	} else {
		rendered = Apply(key.Raw(), k.escape, true)
	}
	_, err := fmt.Fprintf(k.out, "%s\n", rendered)
	return err
}

func (k *KeysEmitter) Set(key, value rdb.Value, expiry *time.Time, info *rdb.Info) error {
	return k.emit(key)
}
func (k *KeysEmitter) StartHash(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	return k.emit(key)
}
func (k *KeysEmitter) StartSet(key rdb.Value, cardinality int64, expiry *time.Time, info *rdb.Info) error {
	return k.emit(key)
}
func (k *KeysEmitter) StartList(key rdb.Value, expiry *time.Time, info *rdb.Info) error {
	return k.emit(key)
}
func (k *KeysEmitter) StartSortedSet(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	return k.emit(key)
}
func (k *KeysEmitter) StartStream(key rdb.Value, listpacks int64, expiry *time.Time, info *rdb.Info) error {
	return k.emit(key)
}
func (k *KeysEmitter) StartModule(key rdb.Value, moduleName string, expiry *time.Time, info *rdb.Info) (bool, error) {
	if key.IsInt() || key.Raw() != nil {
		return false, k.emit(key)
	}
	return false, nil
}

// KeyValsEmitter prints one line per scalar observation, without the
// db prefix the diff emitter carries.
type KeyValsEmitter struct {
	rdb.NopCallback

	out    io.Writer
	escape Escape
	index  int64
}

func NewKeyValsEmitter(out io.Writer, escape Escape) *KeyValsEmitter {
	return &KeyValsEmitter{out: out, escape: escape}
}

func (k *KeyValsEmitter) render(v rdb.Value) string {
	if v.IsInt() {
		return v.String()
	}
	return Apply(v.Raw(), k.escape, true)
}

func (k *KeyValsEmitter) line(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(k.out, format+"\n", args...)
	return err
}

func (k *KeyValsEmitter) Set(key, value rdb.Value, expiry *time.Time, info *rdb.Info) error {
	return k.line("%s -> %s", k.render(key), k.render(value))
}

func (k *KeyValsEmitter) HSet(key, field, value rdb.Value) error {
	return k.line("%s . %s -> %s", k.render(key), k.render(field), k.render(value))
}

func (k *KeyValsEmitter) SAdd(key, member rdb.Value) error {
	return k.line("%s { %s }", k.render(key), k.render(member))
}

func (k *KeyValsEmitter) StartList(key rdb.Value, expiry *time.Time, info *rdb.Info) error {
	k.index = 0
	return nil
}

func (k *KeyValsEmitter) RPush(key, value rdb.Value) error {
	err := k.line("%s[%d] -> %s", k.render(key), k.index, k.render(value))
	k.index++
	return err
}

func (k *KeyValsEmitter) StartSortedSet(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	k.index = 0
	return nil
}

func (k *KeyValsEmitter) ZAdd(key rdb.Value, score rdb.Score, member rdb.Value) error {
	err := k.line("%s[%d] -> {%s, score=%s}", k.render(key), k.index, k.render(member), score.String())
	k.index++
	return err
}
