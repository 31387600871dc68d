package fixtures

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Populator writes the fixture corpus into a live Redis so its BGSAVE
// output can exercise the decoder. Writes are rate-limited so the
// generator can run against shared instances.
type Populator struct {
	client  *redis.Client
	limiter *rate.Limiter
}

// Options configure the populator target.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Rate is the write budget in commands per second; 0 means
	// unlimited.
	Rate float64
}

func New(opts Options) *Populator {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	return &Populator{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		limiter: limiter,
	}
}

func (p *Populator) Close() error { return p.client.Close() }

// Ping verifies the target is reachable.
func (p *Populator) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Populator) wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

type fixture func(ctx context.Context, p *Populator) error

// fixtureSet is the corpus of named datasets; each produces the keys
// one decoder scenario depends on.
var fixtureSet = map[string]fixture{
	"empty_database":                 func(ctx context.Context, p *Populator) error { return nil },
	"keys_with_expiry":               keysWithExpiry,
	"integer_keys":                   integerKeys,
	"easily_compressible_string_key": easilyCompressibleStringKey,
	"ziplist_with_integers":          ziplistWithIntegers,
	"intset_16":                      intset16,
	"intset_32":                      intset32,
	"intset_64":                      intset64,
	"regular_set":                    regularSet,
	"sorted_set_as_ziplist":          sortedSetAsZiplist,
	"regular_sorted_set":             regularSortedSet,
	"dictionary":                     dictionary,
	"multiple_databases":             multipleDatabases,
	"streams":                        streams,
}

// Names lists the available fixtures, sorted.
func Names() []string {
	names := make([]string, 0, len(fixtureSet))
	for name := range fixtureSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run populates the named fixtures; an empty list means all of them.
func (p *Populator) Run(ctx context.Context, names []string) error {
	if len(names) == 0 {
		names = Names()
	}
	for _, name := range names {
		f, ok := fixtureSet[name]
		if !ok {
			return fmt.Errorf("unknown fixture %q (available: %s)", name, strings.Join(Names(), ", "))
		}
		if err := f(ctx, p); err != nil {
			return fmt.Errorf("fixture %s: %w", name, err)
		}
	}
	return nil
}

func (p *Populator) set(ctx context.Context, key string, value interface{}) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.client.Set(ctx, key, value, 0).Err()
}

func keysWithExpiry(ctx context.Context, p *Populator) error {
	if err := p.set(ctx, "expires_ms_precision", "2022-12-25 10:11:12.573 UTC"); err != nil {
		return err
	}
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.client.Do(ctx, "PEXPIREAT", "expires_ms_precision", 1671963072573).Err()
}

func integerKeys(ctx context.Context, p *Populator) error {
	pairs := []struct {
		key   int64
		value string
	}{
		{-123, "Negative 8 bit integer"},
		{125, "Positive 8 bit integer"},
		{0xABAB, "Positive 16 bit integer"},
		{-0x7325, "Negative 16 bit integer"},
		{0x0AEDD325, "Positive 32 bit integer"},
		{-0x0AEDD325, "Negative 32 bit integer"},
	}
	for _, pair := range pairs {
		if err := p.set(ctx, fmt.Sprintf("%d", pair.key), pair.value); err != nil {
			return err
		}
	}
	return nil
}

func easilyCompressibleStringKey(ctx context.Context, p *Populator) error {
	return p.set(ctx, strings.Repeat("a", 200), "Key that redis should compress easily")
}

func ziplistWithIntegers(ctx context.Context, p *Populator) error {
	values := make([]interface{}, 0, 24)
	for x := 0; x <= 12; x++ {
		values = append(values, x)
	}
	values = append(values, -2, 13, 25, -61, 63, 16380, -16000, 65535, -65523, 4194304, int64(0x7FFFFFFFFFFFFFFF))
	for _, v := range values {
		if err := p.wait(ctx); err != nil {
			return err
		}
		if err := p.client.RPush(ctx, "ziplist_with_integers", v).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Populator) sadd(ctx context.Context, key string, members ...interface{}) error {
	for _, m := range members {
		if err := p.wait(ctx); err != nil {
			return err
		}
		if err := p.client.SAdd(ctx, key, m).Err(); err != nil {
			return err
		}
	}
	return nil
}

func intset16(ctx context.Context, p *Populator) error {
	return p.sadd(ctx, "intset_16", 0x7FFE, 0x7FFD, 0x7FFC)
}

func intset32(ctx context.Context, p *Populator) error {
	return p.sadd(ctx, "intset_32", 0x7FFEFFFE, 0x7FFEFFFD, 0x7FFEFFFC)
}

func intset64(ctx context.Context, p *Populator) error {
	return p.sadd(ctx, "intset_64", int64(0x7FFEFFFEFFFEFFFE), int64(0x7FFEFFFEFFFEFFFD), int64(0x7FFEFFFEFFFEFFFC))
}

func regularSet(ctx context.Context, p *Populator) error {
	return p.sadd(ctx, "regular_set", "alpha", "beta", "gamma", "delta", "phi", "kappa")
}

func sortedSetAsZiplist(ctx context.Context, p *Populator) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.client.ZAdd(ctx, "sorted_set_as_ziplist",
		redis.Z{Score: 1, Member: "8b6ba6718a786daefa69438148361901"},
		redis.Z{Score: 2.37, Member: "cb7a24bb7528f934b841b34c3a73e0c7"},
		redis.Z{Score: 3.423, Member: "523af537946b79c4f8369ed39ba78605"},
	).Err()
}

func regularSortedSet(ctx context.Context, p *Populator) error {
	members := make([]redis.Z, 0, 500)
	for x := 0; x < 500; x++ {
		members = append(members, redis.Z{Score: float64(x) / 100, Member: randomString(50, int64(x))})
	}
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.client.ZAdd(ctx, "force_sorted_set", members...).Err()
}

func dictionary(ctx context.Context, p *Populator) error {
	const numEntries = 1000
	for x := 0; x < numEntries; x++ {
		if err := p.wait(ctx); err != nil {
			return err
		}
		field := randomString(50, int64(x))
		value := randomString(50, int64(x+numEntries))
		if err := p.client.HSet(ctx, "force_dictionary", field, value).Err(); err != nil {
			return err
		}
	}
	return nil
}

func multipleDatabases(ctx context.Context, p *Populator) error {
	if err := p.set(ctx, "key_in_zeroth_database", "zero"); err != nil {
		return err
	}
	// A second logical database on the same instance.
	opt := *p.client.Options()
	opt.DB = 2
	second := redis.NewClient(&opt)
	defer second.Close()
	if err := p.wait(ctx); err != nil {
		return err
	}
	return second.Set(ctx, "key_in_second_database", "second", 0).Err()
}

func streams(ctx context.Context, p *Populator) error {
	entries := []map[string]interface{}{
		{"temp_f": 87.2, "pressure": 29.69, "humidity": 46},
		{"temp_f": 83.1, "pressure": 29.21, "humidity": 46.5},
		{"temp_f": 81.9, "pressure": 28.37, "humidity": 43.7},
	}
	for _, values := range entries {
		if err := p.wait(ctx); err != nil {
			return err
		}
		if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: "streams", Values: values}).Err(); err != nil {
			return err
		}
	}
	return nil
}

const randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomString is deterministic per seed so repeated runs produce the
// same dataset.
func randomString(length int, seed int64) string {
	rng := rand.New(rand.NewSource(seed))
	b := make([]byte, length)
	for i := range b {
		b[i] = randomAlphabet[rng.Intn(len(randomAlphabet))]
	}
	return string(b)
}
