package rdb

import (
	"errors"
	"fmt"
)

// ErrStopParsing can be returned from any Callback method to request
// early termination. The decoder delivers the end_* events for the key
// currently being decoded and then returns nil.
var ErrStopParsing = errors.New("rdb: stop parsing")

// Error kinds. None is recoverable; every one aborts the parse.
var (
	ErrBadMagic             = errors.New("bad magic")
	ErrBadVersion           = errors.New("bad version")
	ErrUnexpectedEOF        = errors.New("unexpected end of input")
	ErrBadLengthEncoding    = errors.New("bad length encoding")
	ErrBadStringEncoding    = errors.New("bad string encoding")
	ErrLzfLengthMismatch    = errors.New("lzf length mismatch")
	ErrBadZiplistHeader     = errors.New("bad ziplist header")
	ErrBadZiplistTerminator = errors.New("bad ziplist terminator")
	ErrBadZiplistEntry      = errors.New("bad ziplist entry header")
	ErrBadListpack          = errors.New("bad listpack")
	ErrBadZipmapLength      = errors.New("bad zipmap length")
	ErrBadIntsetEncoding    = errors.New("bad intset encoding")
	ErrOddZiplistPairCount  = errors.New("odd ziplist pair count")
	ErrBadModuleOpcode      = errors.New("bad module opcode")
	ErrModuleV1Unsupported  = errors.New("module v1 not supported")
	ErrBadStreamBlock       = errors.New("bad stream block")
)

// ParseError is the error type surfaced by the decoder. It wraps one
// of the kind sentinels above and carries the byte offset at which the
// problem was detected plus the key being decoded, when known.
type ParseError struct {
	Kind   error
	Offset int64
	Key    string
	Detail string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("rdb: %v at offset %d", e.Kind, e.Offset)
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Kind }

// parseErr builds a ParseError with a formatted detail message.
func parseErr(kind error, offset int64, format string, args ...interface{}) *ParseError {
	return &ParseError{Kind: kind, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}
