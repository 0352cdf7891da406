// Package config loads snipy's process-wide configuration from SNIPY__-
// prefixed environment variables, validates it, and hands back an immutable
// value. Nothing else in this module reads os.Getenv directly: config.Load
// is called exactly once at startup and the returned *Config is threaded
// through constructors from there on (see DESIGN NOTES, "Global mutable
// configuration → immutable root").
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to every recognized environment variable name.
const EnvPrefix = "SNIPY__"

// DialPolicy is the shared, immutable upstream dialing configuration. It is
// read-only from the moment Load returns and is safe to share across both
// listeners and every connection they spawn.
type DialPolicy struct {
	// UseProxy selects SOCKS5 dialing over direct dialing.
	UseProxy bool
	// ProxyHost and ProxyPort name the SOCKS5 proxy. Required when UseProxy.
	ProxyHost string
	ProxyPort int
	// ProxyAuthUsername/ProxyAuthPassword enable SOCKS5 username/password
	// auth (RFC 1929) when ProxyAuthUsername is non-empty.
	ProxyAuthUsername string
	ProxyAuthPassword string
	// ProxyResolve, when true, has the proxy resolve the destination
	// hostname; when false, snipy resolves locally and dials the IP.
	ProxyResolve bool
	// DialTimeout bounds how long dialing the upstream may take.
	DialTimeout time.Duration
}

// Metrics configures the optional prometheus metrics endpoint.
type Metrics struct {
	Enabled bool
	Addr    string
}

// Config is the fully validated, immutable snipy configuration.
type Config struct {
	LocalIP   net.IP
	Workers   int
	PipeChunk int

	DialPolicy DialPolicy

	ForwardRules []string
	BlockRules   []string

	BandwidthRate float64
	SniffTimeout  time.Duration

	Metrics Metrics
}

// String implements fmt.Stringer for Config, used for the startup log line.
func (c *Config) String() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "local_ip=%s workers=%d pipe_chunk=%d proxy=%v",
		c.LocalIP, c.Workers, c.PipeChunk, c.DialPolicy.UseProxy)
	if c.DialPolicy.UseProxy {
		_, _ = fmt.Fprintf(&b, " proxy_host=%s proxy_port=%d proxy_resolve=%v",
			c.DialPolicy.ProxyHost, c.DialPolicy.ProxyPort, c.DialPolicy.ProxyResolve)
	}
	if len(c.ForwardRules) > 0 {
		_, _ = fmt.Fprintf(&b, " forward_rules=%v", c.ForwardRules)
	}
	if len(c.BlockRules) > 0 {
		_, _ = fmt.Fprintf(&b, " block_rules=%v", c.BlockRules)
	}
	if c.BandwidthRate > 0 {
		_, _ = fmt.Fprintf(&b, " bandwidth_rate=%.0f", c.BandwidthRate)
	}
	if c.Metrics.Enabled {
		_, _ = fmt.Fprintf(&b, " metrics_addr=%s", c.Metrics.Addr)
	}

	return b.String()
}

// Load reads and validates the configuration from the environment. It
// returns an error naming the first invalid or missing field, rather than
// panicking, so that callers control how startup failures are reported.
func Load() (cfg *Config, err error) {
	cfg = &Config{}

	ipStr := getEnvOrDefault("LOCAL_IP", "127.0.0.1")
	ip := net.ParseIP(ipStr)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("config: local_ip is not a valid IPv4 address: %q", ipStr)
	}
	cfg.LocalIP = ip

	cfg.Workers, err = getIntOrDefault("WORKERS", 1)
	if err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("config: workers must be >= 1, got %d", cfg.Workers)
	}

	cfg.PipeChunk, err = getIntOrDefault("PIPE_CHUNK", 16384)
	if err != nil {
		return nil, err
	}
	if cfg.PipeChunk <= 0 {
		return nil, fmt.Errorf("config: pipe_chunk must be > 0, got %d", cfg.PipeChunk)
	}

	cfg.DialPolicy.UseProxy, err = getBoolOrDefault("PROXY", false)
	if err != nil {
		return nil, err
	}

	proxyHost, hasHost := lookupEnv("PROXY_HOST")
	cfg.DialPolicy.ProxyHost = proxyHost

	proxyPort, hasPort, err := getIntOptional("PROXY_PORT")
	if err != nil {
		return nil, err
	}

	if cfg.DialPolicy.UseProxy {
		if !hasHost || proxyHost == "" {
			return nil, fmt.Errorf("config: proxy_host should be defined")
		}
		if !hasPort {
			return nil, fmt.Errorf("config: proxy_port should be defined")
		}
	}

	if hasPort {
		// The original source restricted this to 0-65353, almost certainly a
		// typo for the full port range; we accept 0-65535 (see DESIGN.md).
		if proxyPort < 0 || proxyPort > 65535 {
			return nil, fmt.Errorf("config: proxy_port out of range 0-65535: %d", proxyPort)
		}
		cfg.DialPolicy.ProxyPort = proxyPort
	}

	cfg.DialPolicy.ProxyAuthUsername = getEnvOrDefault("PROXY_AUTH_USERNAME", "")
	cfg.DialPolicy.ProxyAuthPassword = getEnvOrDefault("PROXY_AUTH_PASSWORD", "")

	cfg.DialPolicy.ProxyResolve, err = getBoolOrDefault("PROXY_RESOLVE", false)
	if err != nil {
		return nil, err
	}

	cfg.ForwardRules = getListOrDefault("FORWARD_RULES")
	cfg.BlockRules = getListOrDefault("BLOCK_RULES")

	cfg.BandwidthRate, err = getFloatOrDefault("BANDWIDTH_RATE", 0)
	if err != nil {
		return nil, err
	}

	sniffTimeoutSec, err := getIntOrDefault("SNIFF_TIMEOUT", 10)
	if err != nil {
		return nil, err
	}
	cfg.SniffTimeout = time.Duration(sniffTimeoutSec) * time.Second

	dialTimeoutSec, err := getIntOrDefault("DIAL_TIMEOUT", 10)
	if err != nil {
		return nil, err
	}
	cfg.DialPolicy.DialTimeout = time.Duration(dialTimeoutSec) * time.Second

	cfg.Metrics.Enabled, err = getBoolOrDefault("METRICS_ENABLED", false)
	if err != nil {
		return nil, err
	}
	cfg.Metrics.Addr = getEnvOrDefault("METRICS_ADDR", "127.0.0.1:9090")

	return cfg, nil
}

// getEnvOrDefault returns the value of the SNIPY__-prefixed variable name, or
// def if it is unset or empty.
func getEnvOrDefault(name string, def string) string {
	if v, ok := lookupEnv(name); ok && v != "" {
		return v
	}

	return def
}

// getBoolOrDefault parses a boolean SNIPY__ variable. Accepted true/false
// spellings mirror strconv.ParseBool, which covers "true"/"false" along with
// the usual aliases.
func getBoolOrDefault(name string, def bool) (bool, error) {
	v, ok := lookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s%s is not a valid bool: %q", EnvPrefix, name, v)
	}

	return b, nil
}

// getIntOrDefault parses an integer SNIPY__ variable.
func getIntOrDefault(name string, def int) (int, error) {
	v, ok, err := getIntOptional(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}

	return v, nil
}

// getIntOptional parses an integer SNIPY__ variable, reporting whether it was
// set at all (distinct from being absent vs. zero, used by proxy_port).
func getIntOptional(name string) (value int, present bool, err error) {
	v, ok := lookupEnv(name)
	if !ok || v == "" {
		return 0, false, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("config: %s%s is not a valid int: %q", EnvPrefix, name, v)
	}

	return n, true, nil
}

// getFloatOrDefault parses a float64 SNIPY__ variable.
func getFloatOrDefault(name string, def float64) (float64, error) {
	v, ok := lookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s%s is not a valid float: %q", EnvPrefix, name, v)
	}

	return f, nil
}

// getListOrDefault parses a comma-separated list SNIPY__ variable, trimming
// whitespace around each element and dropping empty elements.
func getListOrDefault(name string) []string {
	v, ok := lookupEnv(name)
	if !ok || v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
