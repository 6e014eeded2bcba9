package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/isgasho/fantoch/client"
	"github.com/isgasho/fantoch/id"
)

// ParseProcessFlags parses the process binary's CLI surface out of
// args (typically os.Args[1:]) and returns a validated ProcessConfig.
func ParseProcessFlags(fs *flag.FlagSet, args []string, protocolSupportsParallelism bool) (*ProcessConfig, error) {
	var (
		idFlag                = fs.Uint64("id", 0, "process id, required")
		sortedFlag            = fs.String("sorted", "", "csv of process ids overriding ping-based sort")
		ipFlag                = fs.String("ip", "0.0.0.0", "bind ip address")
		portFlag              = fs.Uint("port", 3000, "peer listen port")
		clientPortFlag        = fs.Uint("client-port", 4000, "client listen port")
		addressesFlag         = fs.String("addresses", "", "csv of host:port for the other n-1 peers")
		nFlag                 = fs.Int("n", 3, "replica count")
		fFlag                 = fs.Int("f", 1, "tolerated faults")
		tcpNoDelayFlag        = fs.Bool("tcp-nodelay", true, "disable Nagle's algorithm on peer connections")
		tcpBufferSizeFlag     = fs.Int("tcp-buffer-size", 0, "TCP socket buffer size in bytes, 0 means OS default")
		tcpFlushIntervalFlag  = fs.String("tcp-flush-interval", "", "ms; optional, flush writer batches on this interval")
		channelBufferSizeFlag = fs.Int("channel-buffer-size", 1024, "bounded channel capacity between workers")
		workersFlag           = fs.Int("workers", 1, "protocol worker count")
		executorsFlag         = fs.Int("executors", 1, "executor worker count")
		multiplexingFlag      = fs.Int("multiplexing", 1, "TCP connections per peer")
		gcIntervalFlag        = fs.String("gc-interval", "", "ms; optional, enables GC when set")
		executionLogFlag      = fs.String("execution-log", "", "optional path to an append-only commit log")
		tracerShowIntervalFlag = fs.String("tracer-show-interval", "", "ms; optional")
		pingIntervalFlag      = fs.String("ping-interval", "", "ms; optional")
		shardIDFlag           = fs.Uint64("shard", 0, "shard id this process belongs to")
		leaderlessFlag        = fs.Bool("leaderless", true, "whether the configured protocol has no fixed leader")
	)
	if err := fs.Parse(args); err != nil {
		return nil, configErrorf("config: %v", err)
	}

	cfg := &ProcessConfig{
		ID:                id.ProcessId(*idFlag),
		ShardID:           id.ShardId(*shardIDFlag),
		IP:                *ipFlag,
		Port:              uint16(*portFlag),
		ClientPort:        uint16(*clientPortFlag),
		N:                 *nFlag,
		F:                 *fFlag,
		TCPNoDelay:        *tcpNoDelayFlag,
		TCPBufferSize:     *tcpBufferSizeFlag,
		ChannelBufferSize: *channelBufferSizeFlag,
		Workers:           *workersFlag,
		Executors:         *executorsFlag,
		Multiplexing:      *multiplexingFlag,
		Leaderless:        *leaderlessFlag,
	}

	if *sortedFlag != "" {
		sorted, err := parseProcessIDList(*sortedFlag)
		if err != nil {
			return nil, configErrorf("config: --sorted: %v", err)
		}
		cfg.Sorted = sorted
	}
	if *addressesFlag != "" {
		cfg.Addresses = strings.Split(*addressesFlag, ",")
	}
	if d, ok, err := parseOptionalMillis(*tcpFlushIntervalFlag); err != nil {
		return nil, configErrorf("config: --tcp-flush-interval: %v", err)
	} else if ok {
		cfg.TCPFlushInterval, cfg.HasTCPFlush = d, true
	}
	if d, ok, err := parseOptionalMillis(*gcIntervalFlag); err != nil {
		return nil, configErrorf("config: --gc-interval: %v", err)
	} else if ok {
		cfg.GCInterval, cfg.HasGC = d, true
	}
	if d, ok, err := parseOptionalMillis(*tracerShowIntervalFlag); err != nil {
		return nil, configErrorf("config: --tracer-show-interval: %v", err)
	} else if ok {
		cfg.TracerShowInterval, cfg.HasTracer = d, true
	}
	if d, ok, err := parseOptionalMillis(*pingIntervalFlag); err != nil {
		return nil, configErrorf("config: --ping-interval: %v", err)
	} else if ok {
		cfg.PingInterval, cfg.HasPing = d, true
	}
	if *executionLogFlag != "" {
		cfg.ExecutionLog, cfg.HasExecutionLog = *executionLogFlag, true
	}

	if err := cfg.Validate(protocolSupportsParallelism); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClientConfig is the validated configuration of a load-generating client
// binary run.
type ClientConfig struct {
	IDStart id.ClientId
	IDEnd   id.ClientId
	Address string

	Interval    time.Duration
	HasInterval bool

	ShardsPerCommand  int
	KeysPerShard      int
	KeyGen            client.KeyGen
	CommandsPerClient int
	PayloadSize       int

	MetricsFile    string
	HasMetricsFile bool
}

// ParseClientFlags parses the client binary's CLI surface.
func ParseClientFlags(fs *flag.FlagSet, args []string) (*ClientConfig, error) {
	var (
		idsFlag               = fs.String("ids", "", "required; <start>-<end> inclusive client id range")
		addressFlag           = fs.String("address", "", "required; host:port of the process to submit to")
		intervalFlag          = fs.String("interval", "", "ms; open-loop if set, else closed-loop")
		shardsPerCommandFlag  = fs.Int("shards-per-command", 1, "shards each generated command touches")
		keysPerShardFlag      = fs.Int("keys-per-shard", 1, "keys touched per shard per command")
		keyGenFlag            = fs.String("key-gen", "conflict:100", "conflict:<pct> | zipf:<coef>:<keys-per-shard>")
		commandsPerClientFlag = fs.Int("commands-per-client", 1000, "commands each client issues before stopping")
		payloadSizeFlag       = fs.Int("payload-size", 0, "bytes of random payload per write")
		metricsFileFlag       = fs.String("metrics-file", "", "optional path to write aggregated ClientData")
	)
	if err := fs.Parse(args); err != nil {
		return nil, configErrorf("config: %v", err)
	}

	if *idsFlag == "" {
		return nil, configErrorf("config: --ids is required")
	}
	start, end, err := parseIDRange(*idsFlag)
	if err != nil {
		return nil, configErrorf("config: --ids: %v", err)
	}
	if *addressFlag == "" {
		return nil, configErrorf("config: --address is required")
	}

	keyGen, err := parseKeyGen(*keyGenFlag)
	if err != nil {
		return nil, configErrorf("config: --key-gen: %v", err)
	}

	cfg := &ClientConfig{
		IDStart:           start,
		IDEnd:             end,
		Address:           *addressFlag,
		ShardsPerCommand:  *shardsPerCommandFlag,
		KeysPerShard:      *keysPerShardFlag,
		KeyGen:            keyGen,
		CommandsPerClient: *commandsPerClientFlag,
		PayloadSize:       *payloadSizeFlag,
	}
	if d, ok, err := parseOptionalMillis(*intervalFlag); err != nil {
		return nil, configErrorf("config: --interval: %v", err)
	} else if ok {
		cfg.Interval, cfg.HasInterval = d, true
	}
	if *metricsFileFlag != "" {
		cfg.MetricsFile, cfg.HasMetricsFile = *metricsFileFlag, true
	}
	if cfg.ShardsPerCommand < 1 {
		return nil, configErrorf("config: shards-per-command must be >= 1")
	}
	// the client binary dials a single process and therefore drives a
	// single shard; asking for multi-shard commands would leave the shard
	// generator with no second shard to draw.
	if cfg.ShardsPerCommand > 1 {
		return nil, configErrorf("config: shards-per-command must be 1, the client drives a single shard (got %d)", cfg.ShardsPerCommand)
	}
	if cfg.CommandsPerClient < 0 {
		return nil, configErrorf("config: commands-per-client must be >= 0")
	}
	return cfg, nil
}

func parseProcessIDList(csv string) ([]id.ProcessId, error) {
	parts := strings.Split(csv, ",")
	out := make([]id.ProcessId, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid process id %q: %w", p, err)
		}
		out = append(out, id.ProcessId(v))
	}
	return out, nil
}

func parseOptionalMillis(s string) (time.Duration, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(v) * time.Millisecond, true, nil
}

func parseIDRange(s string) (id.ClientId, id.ClientId, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("expected <start>-<end>, got %q", s)
	}
	startV, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start id %q: %w", start, err)
	}
	endV, err := strconv.ParseUint(end, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end id %q: %w", end, err)
	}
	if endV < startV {
		return 0, 0, fmt.Errorf("end id %d before start id %d", endV, startV)
	}
	return id.ClientId(startV), id.ClientId(endV), nil
}

func parseKeyGen(s string) (client.KeyGen, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return client.KeyGen{}, fmt.Errorf("expected conflict:<pct> or zipf:<coef>:<keys-per-shard>, got %q", s)
	}
	switch kind {
	case "conflict":
		pct, err := strconv.Atoi(rest)
		if err != nil {
			return client.KeyGen{}, fmt.Errorf("invalid conflict percentage %q: %w", rest, err)
		}
		return client.KeyGen{Kind: client.KeyGenConflictRate, ConflictRate: pct}, nil
	case "zipf":
		coefStr, keysStr, ok := strings.Cut(rest, ":")
		if !ok {
			return client.KeyGen{}, fmt.Errorf("expected zipf:<coef>:<keys-per-shard>, got %q", s)
		}
		coef, err := strconv.ParseFloat(coefStr, 64)
		if err != nil {
			return client.KeyGen{}, fmt.Errorf("invalid zipf coefficient %q: %w", coefStr, err)
		}
		keys, err := strconv.Atoi(keysStr)
		if err != nil {
			return client.KeyGen{}, fmt.Errorf("invalid keys-per-shard %q: %w", keysStr, err)
		}
		return client.KeyGen{Kind: client.KeyGenZipf, Coefficient: coef, KeysPerShard: keys}, nil
	default:
		return client.KeyGen{}, fmt.Errorf("unknown key generator %q", kind)
	}
}
