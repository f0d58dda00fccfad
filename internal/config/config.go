// Package config groups the compile-time constants that size the server:
// the RESP listen port and the engine's ring/buffer dimensions. None of
// these are exposed as CLI flags — the core takes none, per the spec —
// grouping them here follows the same pattern go-ublk uses for its
// internal/constants package.
package config

const (
	// RespPort is the TCP port the RESP listener binds, dual-stack IPv6
	// with SO_REUSEPORT set.
	RespPort = 6379

	// DefaultAdminAddr is the bind address for the metrics/pprof admin
	// HTTP surface when KVCACHE_ADMIN_ADDR is not set.
	DefaultAdminAddr = "127.0.0.1:6380"
)
