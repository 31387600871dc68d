package rdb

import (
	"fmt"
	"regexp"
)

// FilterConfig selects which keys the decoder materializes. All fields
// are optional and combine with AND. Rejected keys take the skip path:
// the cursor advances without allocating values.
type FilterConfig struct {
	DBs     []int    // database indices to admit
	Keys    string   // regex the key must match
	NotKeys string   // regex the key must not match
	Types   []string // logical type names: string, list, set, sortedset, hash, stream, module
}

// Filter is a compiled FilterConfig. The zero/nil filter admits
// everything.
type Filter struct {
	dbs     map[int]struct{}
	keys    *regexp.Regexp
	notKeys *regexp.Regexp
	types   map[string]struct{}
}

var validTypes = map[string]struct{}{
	"string": {}, "list": {}, "set": {}, "sortedset": {}, "hash": {}, "stream": {}, "module": {},
}

// NewFilter compiles the key regexes once, over the canonical byte
// representation of keys.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	f := &Filter{}
	if len(cfg.DBs) > 0 {
		f.dbs = make(map[int]struct{}, len(cfg.DBs))
		for _, db := range cfg.DBs {
			f.dbs[db] = struct{}{}
		}
	}
	if cfg.Keys != "" {
		re, err := regexp.Compile(cfg.Keys)
		if err != nil {
			return nil, fmt.Errorf("invalid key pattern: %w", err)
		}
		f.keys = re
	}
	if cfg.NotKeys != "" {
		re, err := regexp.Compile(cfg.NotKeys)
		if err != nil {
			return nil, fmt.Errorf("invalid not-key pattern: %w", err)
		}
		f.notKeys = re
	}
	if len(cfg.Types) > 0 {
		f.types = make(map[string]struct{}, len(cfg.Types))
		for _, t := range cfg.Types {
			if _, ok := validTypes[t]; !ok {
				return nil, fmt.Errorf("invalid type %q", t)
			}
			f.types[t] = struct{}{}
		}
	}
	return f, nil
}

// MatchDB is tested before the key is read.
func (f *Filter) MatchDB(db int) bool {
	if f == nil || f.dbs == nil {
		return true
	}
	_, ok := f.dbs[db]
	return ok
}

// Match is tested after the key is read but before its value.
func (f *Filter) Match(db int, key []byte, typeTag byte) bool {
	if f == nil {
		return true
	}
	if !f.MatchDB(db) {
		return false
	}
	if f.keys != nil && !f.keys.Match(key) {
		return false
	}
	if f.notKeys != nil && f.notKeys.Match(key) {
		return false
	}
	if f.types != nil {
		if _, ok := f.types[LogicalType(typeTag)]; !ok {
			return false
		}
	}
	return true
}
