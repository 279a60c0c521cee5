package main

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/go-mizu/strobe/internal/walpack"
)

// config holds the flag+env-resolved boot configuration (spec.md §6.6).
// Flags win over environment variables, which win over defaults, mirroring
// the original prototype's env::var(...).unwrap_or_else(...) ladder.
type config struct {
	Bind          string
	Shards        int
	ShardID       int
	DataDir       string
	Mode          string
	FlushDocs     int
	FlushInterval time.Duration
	ReplaySegDocs int
	WalSync       walpack.SyncMode
	WalCoalesce   int
	Cert          string
	Key           string
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseWalSync(s string) (walpack.SyncMode, int) {
	switch {
	case s == "always":
		return walpack.SyncAlways, 0
	case s == "never":
		return walpack.SyncNever, 0
	case len(s) > len("coalesce:") && s[:len("coalesce:")] == "coalesce:":
		n, err := strconv.Atoi(s[len("coalesce:"):])
		if err != nil || n <= 0 {
			n = 1 << 20
		}
		return walpack.SyncCoalesceBytes, n
	default:
		return walpack.SyncCoalesceBytes, 1 << 20
	}
}

// loadConfig resolves configuration from flags, falling back to
// environment variables, falling back to defaults (spec.md §6.6).
func loadConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("strobed", flag.ContinueOnError)

	bind := fs.String("bind", envOr("BIND", "0.0.0.0:7700"), "TCP listen address")
	shards := fs.Int("shards", envInt("SHARDS", 1), "total number of shards (informational, no inter-shard communication)")
	shardID := fs.Int("shard-id", envInt("SHARD_ID", 0), "this process's shard identity")
	dataDir := fs.String("data-dir", envOr("DATA_DIR", "./data"), "WAL directory")
	mode := fs.String("mode", envOr("MODE", "h1"), "transport: h1, h2c, or h2")
	flushDocs := fs.Int("flush-docs", envInt("FLUSH_DOCS", 4096), "seal threshold by document count")
	flushMs := fs.Int("flush-ms", envInt("FLUSH_MS", 5), "seal threshold by time, in milliseconds")
	replaySegDocs := fs.Int("replay-seg-docs", envInt("REPLAY_SEG_DOCS", 200_000), "boot-time replay seal granularity")
	walSync := fs.String("wal-sync", envOr("WAL_SYNC", "coalesce:1048576"), "always, never, or coalesce:<bytes>")
	cert := fs.String("cert", envOr("CERT", "cert.pem"), "TLS certificate path (mode=h2)")
	key := fs.String("key", envOr("KEY", "key.pem"), "TLS private key path (mode=h2)")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	syncMode, coalesce := parseWalSync(*walSync)

	return config{
		Bind:          *bind,
		Shards:        *shards,
		ShardID:       *shardID,
		DataDir:       *dataDir,
		Mode:          *mode,
		FlushDocs:     *flushDocs,
		FlushInterval: time.Duration(*flushMs) * time.Millisecond,
		ReplaySegDocs: *replaySegDocs,
		WalSync:       syncMode,
		WalCoalesce:   coalesce,
		Cert:          *cert,
		Key:           *key,
	}, nil
}
