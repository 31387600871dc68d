package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// StatsAggregator rolls memory records up into per-database, per-type
// and per-encoding aggregates plus histograms and scatter series,
// dumpable as one JSON document.
type StatsAggregator struct {
	Aggregates map[string]map[string]int64   `json:"aggregates"`
	Scatters   map[string][][2]int64         `json:"scatters"`
	Histograms map[string]map[string]int64   `json:"histograms"`
	Metadata   map[string]any                `json:"metadata"`
}

func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{
		Aggregates: make(map[string]map[string]int64),
		Scatters:   make(map[string][][2]int64),
		Histograms: make(map[string]map[string]int64),
		Metadata:   make(map[string]any),
	}
}

// NextRecord implements RecordSink.
func (a *StatsAggregator) NextRecord(rec Record) error {
	a.addAggregate("database_memory", strconv.Itoa(rec.Database), rec.Bytes)
	a.addAggregate("database_memory", "all", rec.Bytes)
	a.addAggregate("type_memory", rec.Type, rec.Bytes)
	a.addAggregate("encoding_memory", rec.Encoding, rec.Bytes)
	a.addAggregate("type_count", rec.Type, 1)
	a.addAggregate("encoding_count", rec.Encoding, 1)

	a.addHistogram(rec.Type+"_length", rec.Size)
	a.addHistogram(rec.Type+"_memory", (rec.Bytes/10)*10)

	switch rec.Type {
	case "list", "hash", "set", "sortedset", "string":
		a.addScatter(rec.Type+"_memory_by_length", rec.Bytes, rec.Size)
	case "dict", "module", "stream":
		// no scatter series
	default:
		return fmt.Errorf("invalid data type %s", rec.Type)
	}
	return nil
}

func (a *StatsAggregator) addAggregate(heading, subheading string, metric int64) {
	m := a.Aggregates[heading]
	if m == nil {
		m = make(map[string]int64)
		a.Aggregates[heading] = m
	}
	m[subheading] += metric
}

func (a *StatsAggregator) addHistogram(heading string, metric int64) {
	m := a.Histograms[heading]
	if m == nil {
		m = make(map[string]int64)
		a.Histograms[heading] = m
	}
	m[strconv.FormatInt(metric, 10)]++
}

func (a *StatsAggregator) addScatter(heading string, x, y int64) {
	a.Scatters[heading] = append(a.Scatters[heading], [2]int64{x, y})
}

// SetMetadata records parse-level metadata (used_mem, redis_ver, ...).
func (a *StatsAggregator) SetMetadata(key string, val any) {
	a.Metadata[key] = val
}

// WriteJSON dumps the aggregate document.
func (a *StatsAggregator) WriteJSON(out io.Writer) error {
	enc := json.NewEncoder(out)
	return enc.Encode(a)
}

// Tee fans one record stream out to several sinks.
type Tee []RecordSink

func (t Tee) NextRecord(rec Record) error {
	for _, s := range t {
		if err := s.NextRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

func (t Tee) EndRDB() error {
	for _, s := range t {
		if e, ok := s.(interface{ EndRDB() error }); ok {
			if err := e.EndRDB(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t Tee) SetMetadata(key string, val any) {
	for _, s := range t {
		if m, ok := s.(interface{ SetMetadata(string, any) }); ok {
			m.SetMetadata(key, val)
		}
	}
}
