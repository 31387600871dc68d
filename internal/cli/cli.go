package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"rdbdump/internal/config"
	"rdbdump/internal/export"
	"rdbdump/internal/fixtures"
	"rdbdump/internal/logger"
	"rdbdump/internal/memory"
	"rdbdump/internal/rdb"
)

// multiFlag collects repeatable string flags (--db 0 --db 1).
type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// Execute dispatches the CLI. Exit codes: 0 success, 1 parse or IO
// failure, 2 invalid arguments.
func Execute(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "populate":
			return runPopulate(args[1:])
		case "help", "-h", "--help":
			printUsage()
			return runDump([]string{"-h"})
		case "version", "--version", "-v":
			fmt.Println("rdbdump 0.1.0-dev")
			return 0
		}
	}
	return runDump(args)
}

func printUsage() {
	fmt.Print(`usage: rdbdump [flags] DUMPFILE
       rdbdump populate [flags] [fixture...]

Decode a Redis RDB snapshot and render it as JSON, a diff-friendly
listing, a RESP protocol stream, or a per-key memory report. Gzip,
zstd and lz4 compressed dumps are accepted transparently.

Run "rdbdump -h" or "rdbdump populate -h" for flag details.
`)
}

func runDump(args []string) int {
	fs := flag.NewFlagSet("rdbdump", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var (
		command     = fs.String("command", "", "command to execute: json, diff, justkeys, justkeyvals, memory or protocol")
		outPath     = fs.String("file", "", "output file (default stdout)")
		dbs         multiFlag
		keyPattern  = fs.String("key", "", "regex keys must match")
		notKey      = fs.String("not-key", "", "regex keys must not match")
		types       multiFlag
		minBytes    = fs.Int64("bytes", 0, "memory: only report keys of at least this many bytes")
		largest     = fs.Int("largest", 0, "memory: only report the N largest keys")
		escapeName  = fs.String("escape", "", "string escaping: raw, print, utf8 or base64")
		noExpire    = fs.Bool("no-expire", false, "protocol: do not emit EXPIREAT commands")
		amendExpire = fs.Int64("amend-expire", 0, "protocol: add N seconds to every expiry")
		arch        = fs.Int("arch", 0, "memory: target pointer width, 32 or 64")
		redisVer    = fs.String("redis-version", "", "memory: target redis version for overhead formulas")
		aggregate   = fs.String("aggregate", "", "memory: also write aggregate statistics JSON to this file")
		configPath  = fs.String("config", "", "YAML file with default options")
		logDir      = fs.String("log-dir", "", "directory for the log file (default console only)")
	)
	fs.Var(&dbs, "db", "database number; repeat to include several")
	fs.Var(&types, "type", "logical type to include; repeat to include several")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "rdbdump: exactly one dump file is required")
		fs.Usage()
		return 2
	}
	dumpFile := fs.Arg(0)

	if err := logger.Init(*logDir, logger.INFO, "rdbdump"); err != nil {
		fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
		return 1
	}
	defer logger.Close()

	// Layer file defaults under flags.
	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
			return 2
		}
		cfg = *loaded
	}
	if *command == "" {
		*command = cfg.Command
	}
	if *escapeName == "" {
		*escapeName = cfg.Escape
		if *escapeName == "" {
			*escapeName = "raw"
		}
	}
	if len(dbs) == 0 {
		for _, db := range cfg.DBs {
			dbs = append(dbs, strconv.Itoa(db))
		}
	}
	if *keyPattern == "" {
		*keyPattern = cfg.Key
	}
	if *notKey == "" {
		*notKey = cfg.NotKey
	}
	if len(types) == 0 {
		types = append(types, cfg.Types...)
	}
	if *minBytes == 0 {
		*minBytes = cfg.Bytes
	}
	if *largest == 0 {
		*largest = cfg.Largest
	}
	if *arch == 0 {
		if cfg.Arch != 0 {
			*arch = cfg.Arch
		} else {
			*arch = 64
		}
	}
	if *redisVer == "" {
		*redisVer = cfg.RedisVersion
		if *redisVer == "" {
			*redisVer = "5.0"
		}
	}
	if !*noExpire {
		*noExpire = cfg.NoExpire
	}
	if *amendExpire == 0 {
		*amendExpire = cfg.AmendExpire
	}

	escape, err := export.ParseEscape(*escapeName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
		return 2
	}

	filterCfg := rdb.FilterConfig{Keys: *keyPattern, NotKeys: *notKey, Types: types}
	for _, raw := range dbs {
		db, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rdbdump: invalid database number %q\n", raw)
			return 2
		}
		filterCfg.DBs = append(filterCfg.DBs, db)
	}
	filter, err := rdb.NewFilter(filterCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
		return 2
	}

	out := io.Writer(os.Stdout)
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	var aggregator *memory.StatsAggregator
	cb, err := buildCallback(*command, out, escape, callbackOptions{
		minBytes:    *minBytes,
		largest:     *largest,
		arch:        *arch,
		redisVer:    *redisVer,
		noExpire:    *noExpire,
		amendExpire: *amendExpire,
		aggregator:  &aggregator,
		wantAgg:     *aggregate != "",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
		return 2
	}

	in, err := rdb.Open(dumpFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
		return 1
	}
	dec := rdb.NewDecoder(in, cb, filter)
	if err := dec.Decode(); err != nil {
		in.Close()
		logger.Error("%s", rdb.DecodeError(err))
		return 1
	}
	in.Close()
	logger.Info("decoded %s (%d bytes)", dumpFile, dec.BytesRead())

	if aggregator != nil {
		f, err := os.Create(*aggregate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
			return 1
		}
		defer f.Close()
		if err := aggregator.WriteJSON(f); err != nil {
			fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
			return 1
		}
	}
	return 0
}

type callbackOptions struct {
	minBytes    int64
	largest     int
	arch        int
	redisVer    string
	noExpire    bool
	amendExpire int64
	aggregator  **memory.StatsAggregator
	wantAgg     bool
}

func buildCallback(command string, out io.Writer, escape export.Escape, opts callbackOptions) (rdb.Callback, error) {
	switch command {
	case "json":
		return export.NewJSONEmitter(out, escape), nil
	case "diff":
		return export.NewDiffEmitter(out, escape), nil
	case "justkeys":
		return export.NewKeysEmitter(out, escape), nil
	case "justkeyvals":
		return export.NewKeyValsEmitter(out, escape), nil
	case "protocol":
		p := export.NewProtocolEmitter(out)
		p.EmitExpire = !opts.noExpire
		p.AmendExpire = opts.amendExpire
		return p, nil
	case "memory":
		var sink memory.RecordSink = memory.NewReport(out, opts.minBytes, opts.largest)
		if opts.wantAgg {
			agg := memory.NewStatsAggregator()
			*opts.aggregator = agg
			sink = memory.Tee{sink, agg}
		}
		est, err := memory.New(sink, memory.Options{
			Architecture: opts.arch,
			RedisVersion: opts.redisVer,
			Seed:         time.Now().UnixNano(),
			KeyEscape: func(b []byte) string {
				return export.Apply(b, escape, true)
			},
		})
		if err != nil {
			return nil, err
		}
		return est, nil
	case "":
		return nil, fmt.Errorf("the --command flag is required (json, diff, justkeys, justkeyvals, memory or protocol)")
	}
	return nil, fmt.Errorf("invalid command %q", command)
}

func runPopulate(args []string) int {
	fs := flag.NewFlagSet("rdbdump populate", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	var (
		addr       = fs.String("addr", "127.0.0.1:6379", "redis address to populate")
		password   = fs.String("password", "", "redis password")
		db         = fs.Int("db", 0, "redis database to populate")
		rateLimit  = fs.Float64("rate", 0, "write budget in commands per second (0 = unlimited)")
		configPath = fs.String("config", "", "YAML file with default options")
		list       = fs.Bool("list", false, "list available fixtures and exit")
	)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if *list {
		for _, name := range fixtures.Names() {
			fmt.Println(name)
		}
		return 0
	}

	opts := fixtures.Options{Addr: *addr, Password: *password, DB: *db, Rate: *rateLimit}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
			return 2
		}
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if cfg.Populate.Addr != "" && !set["addr"] {
			opts.Addr = cfg.Populate.Addr
		}
		if cfg.Populate.Password != "" && !set["password"] {
			opts.Password = cfg.Populate.Password
		}
		if cfg.Populate.DB != 0 && !set["db"] {
			opts.DB = cfg.Populate.DB
		}
		if cfg.Populate.Rate != 0 && !set["rate"] {
			opts.Rate = cfg.Populate.Rate
		}
	}

	p := fixtures.New(opts)
	defer p.Close()

	ctx := context.Background()
	if err := p.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rdbdump: redis at %s unreachable: %v\n", opts.Addr, err)
		return 1
	}
	if err := p.Run(ctx, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "rdbdump: %v\n", err)
		return 1
	}
	fmt.Println("fixtures written; run SAVE or BGSAVE on the instance to produce the dump")
	return 0
}
