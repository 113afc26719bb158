package config

import (
	"strings"
	"time"

	"claude-relay/common/env"
)

var (
	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)

	// ServerPort overrides the --port flag when running inside container or PaaS environments.
	ServerPort = strings.TrimSpace(env.String("PORT", "3000"))
	// GinMode allows forcing Gin into release mode (or other modes) without recompiling.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))

	// GatewayAPIKeys lists the bearer tokens accepted on the client-facing API,
	// comma separated. Empty disables gateway auth entirely (local use).
	GatewayAPIKeys = func() []string {
		raw := strings.TrimSpace(env.String("GATEWAY_API_KEYS", ""))
		if raw == "" {
			return nil
		}
		var keys []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return keys
	}()

	// SQLDSN provides the primary database DSN; empty indicates that SQLite should be used.
	SQLDSN = strings.TrimSpace(env.String("SQL_DSN", ""))
	// SQLitePath specifies the SQLite database file path when SQL_DSN is absent.
	SQLitePath = env.String("SQLITE_PATH", "claude-relay.db")
	// SQLiteBusyTimeout configures SQLite busy timeout in milliseconds to mitigate locking errors.
	SQLiteBusyTimeout = env.Int("SQLITE_BUSY_TIMEOUT", 3000)
	// SQLMaxIdleConns controls the database pool's idle connection count.
	SQLMaxIdleConns = env.Int("SQL_MAX_IDLE_CONNS", 100)
	// SQLMaxOpenConns controls the database pool's maximum open connections.
	SQLMaxOpenConns = env.Int("SQL_MAX_OPEN_CONNS", 1000)
	// SQLMaxLifetimeSeconds sets how long database connections live before being recycled (seconds).
	SQLMaxLifetimeSeconds = env.Int("SQL_MAX_LIFETIME", 300)

	// AccountCacheTTL bounds how long the pool serves accounts from its in-memory
	// snapshot before re-reading the storage collaborator.
	AccountCacheTTL = time.Second * time.Duration(env.Int("ACCOUNT_CACHE_TTL_SECONDS", 30))
	// AccountLockTimeout is the backstop that force-releases an account lock when
	// a caller crashed without releasing it.
	AccountLockTimeout = time.Second * time.Duration(env.Int("ACCOUNT_LOCK_TIMEOUT_SECONDS", 120))
	// CounterFlushInterval is the cadence at which in-memory usage counters are
	// batch-written to the storage collaborator.
	CounterFlushInterval = time.Second * time.Duration(env.Int("COUNTER_FLUSH_INTERVAL_SECONDS", 10))

	// ToolResultCacheSize caps the LRU cache used for session recovery.
	ToolResultCacheSize = env.Int("TOOL_RESULT_CACHE_SIZE", 500)

	// RetryTimes caps attempts for retryable upstream failures (429/5xx).
	RetryTimes = env.Int("RETRY_TIMES", 3)
	// RetryBaseDelay is the first backoff delay; it doubles each attempt.
	RetryBaseDelay = time.Millisecond * time.Duration(env.Int("RETRY_BASE_DELAY_MS", 500))
	// MaxCompressionLevel bounds progressive history compression on oversized requests.
	MaxCompressionLevel = env.Int("MAX_COMPRESSION_LEVEL", 3)

	// RelayTimeout bounds upstream HTTP requests (seconds) before aborting them; 0 disables.
	RelayTimeout = env.Int("RELAY_TIMEOUT", 0)
	// IdleTimeout controls how long to keep streaming connections alive without traffic (seconds).
	IdleTimeout = env.Int("IDLE_TIMEOUT", 300)

	// DefaultMaxTokens is applied when the client omits max_tokens.
	DefaultMaxTokens = env.Int("DEFAULT_MAX_TOKENS", 4096)

	// TextBufferThreshold is the byte count after which buffered text is flushed
	// even without a sentence terminator (first flush only, see normalizer).
	TextBufferThreshold = env.Int("TEXT_BUFFER_THRESHOLD", 100)
	// IdentityFrom/IdentityTo optionally rewrite an identity string inside
	// streamed text; both empty disables the rewrite.
	IdentityFrom = env.String("IDENTITY_REPLACE_FROM", "")
	IdentityTo   = env.String("IDENTITY_REPLACE_TO", "")

	// KiroRawStreamMode switches the Kiro backend from binary event-stream
	// framing to the raw embedded-JSON stream parsing mode.
	KiroRawStreamMode = env.Bool("KIRO_RAW_STREAM_MODE", false)

	// EnablePrometheusMetrics exposes the /metrics endpoint for Prometheus scrapers when true.
	EnablePrometheusMetrics = env.Bool("ENABLE_PROMETHEUS_METRICS", true)

	// ShutdownTimeout specifies the graceful shutdown timeout for the HTTP
	// server and the pool's final counter flush.
	ShutdownTimeout = time.Second * time.Duration(env.Int("SHUTDOWN_TIMEOUT", 30))
)
