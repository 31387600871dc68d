package export

import (
	"fmt"
	"io"
	"time"

	"rdbdump/internal/rdb"
)

// DiffEmitter prints one line per scalar observation in a
// unix-sort-friendly shape, so two dumps can be compared with diff.
type DiffEmitter struct {
	rdb.NopCallback

	out    io.Writer
	escape Escape
	db     int
	index  int64
}

func NewDiffEmitter(out io.Writer, escape Escape) *DiffEmitter {
	return &DiffEmitter{out: out, escape: escape}
}

func (d *DiffEmitter) render(v rdb.Value) string {
	if v.IsInt() {
		return v.String()
	}
	return Apply(v.Raw(), d.escape, true)
}

func (d *DiffEmitter) line(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(d.out, format+"\r\n", args...)
	return err
}

func (d *DiffEmitter) StartDatabase(db int) error {
	d.db = db
	return nil
}

func (d *DiffEmitter) Set(key, value rdb.Value, expiry *time.Time, info *rdb.Info) error {
	return d.line("db=%d %s -> %s", d.db, d.render(key), d.render(value))
}

func (d *DiffEmitter) HSet(key, field, value rdb.Value) error {
	return d.line("db=%d %s . %s -> %s", d.db, d.render(key), d.render(field), d.render(value))
}

func (d *DiffEmitter) SAdd(key, member rdb.Value) error {
	return d.line("db=%d %s { %s }", d.db, d.render(key), d.render(member))
}

func (d *DiffEmitter) StartList(key rdb.Value, expiry *time.Time, info *rdb.Info) error {
	d.index = 0
	return nil
}

func (d *DiffEmitter) RPush(key, value rdb.Value) error {
	err := d.line("db=%d %s[%d] -> %s", d.db, d.render(key), d.index, d.render(value))
	d.index++
	return err
}

func (d *DiffEmitter) StartSortedSet(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	d.index = 0
	return nil
}

func (d *DiffEmitter) ZAdd(key rdb.Value, score rdb.Score, member rdb.Value) error {
	err := d.line("db=%d %s[%d] -> {%s, score=%s}", d.db, d.render(key), d.index, d.render(member), score.String())
	d.index++
	return err
}
