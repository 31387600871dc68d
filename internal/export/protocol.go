package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"rdbdump/internal/rdb"
)

// ProtocolEmitter reconstructs a replayable RESP command stream:
// SELECT per database, then SET/HSET/SADD/RPUSH/ZADD per observation,
// with optional EXPIREAT commands after each expiring key.
type ProtocolEmitter struct {
	rdb.NopCallback

	out io.Writer
	// EmitExpire gates EXPIREAT emission entirely.
	EmitExpire bool
	// AmendExpire shifts every emitted expiry by this many seconds.
	AmendExpire int64

	keyExpiry *time.Time
}

func NewProtocolEmitter(out io.Writer) *ProtocolEmitter {
	return &ProtocolEmitter{out: out, EmitExpire: true}
}

// command writes one RESP array.
func (p *ProtocolEmitter) command(args ...[]byte) error {
	if _, err := fmt.Fprintf(p.out, "*%d\r\n", len(args)); err != nil {
		return err
	}
	for _, arg := range args {
		if _, err := fmt.Fprintf(p.out, "$%d\r\n", len(arg)); err != nil {
			return err
		}
		if _, err := p.out.Write(arg); err != nil {
			return err
		}
		if _, err := io.WriteString(p.out, "\r\n"); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProtocolEmitter) expireAt(key rdb.Value) error {
	if !p.EmitExpire || p.keyExpiry == nil {
		return nil
	}
	secs := p.keyExpiry.UnixMilli()/1000 + p.AmendExpire
	err := p.command([]byte("EXPIREAT"), key.Bytes(), strconv.AppendInt(nil, secs, 10))
	p.keyExpiry = nil
	return err
}

func (p *ProtocolEmitter) StartDatabase(db int) error {
	return p.command([]byte("SELECT"), strconv.AppendInt(nil, int64(db), 10))
}

func (p *ProtocolEmitter) Set(key, value rdb.Value, expiry *time.Time, info *rdb.Info) error {
	if err := p.command([]byte("SET"), key.Bytes(), value.Bytes()); err != nil {
		return err
	}
	p.keyExpiry = expiry
	return p.expireAt(key)
}

func (p *ProtocolEmitter) StartHash(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	p.keyExpiry = expiry
	return nil
}

func (p *ProtocolEmitter) HSet(key, field, value rdb.Value) error {
	return p.command([]byte("HSET"), key.Bytes(), field.Bytes(), value.Bytes())
}

func (p *ProtocolEmitter) EndHash(key rdb.Value) error {
	return p.expireAt(key)
}

func (p *ProtocolEmitter) StartSet(key rdb.Value, cardinality int64, expiry *time.Time, info *rdb.Info) error {
	p.keyExpiry = expiry
	return nil
}

func (p *ProtocolEmitter) SAdd(key, member rdb.Value) error {
	return p.command([]byte("SADD"), key.Bytes(), member.Bytes())
}

func (p *ProtocolEmitter) EndSet(key rdb.Value) error {
	return p.expireAt(key)
}

func (p *ProtocolEmitter) StartList(key rdb.Value, expiry *time.Time, info *rdb.Info) error {
	p.keyExpiry = expiry
	return nil
}

func (p *ProtocolEmitter) RPush(key, value rdb.Value) error {
	return p.command([]byte("RPUSH"), key.Bytes(), value.Bytes())
}

func (p *ProtocolEmitter) EndList(key rdb.Value, info *rdb.Info) error {
	return p.expireAt(key)
}

func (p *ProtocolEmitter) StartSortedSet(key rdb.Value, length int64, expiry *time.Time, info *rdb.Info) error {
	p.keyExpiry = expiry
	return nil
}

func (p *ProtocolEmitter) ZAdd(key rdb.Value, score rdb.Score, member rdb.Value) error {
	return p.command([]byte("ZADD"), key.Bytes(), []byte(score.String()), member.Bytes())
}

func (p *ProtocolEmitter) EndSortedSet(key rdb.Value) error {
	return p.expireAt(key)
}
