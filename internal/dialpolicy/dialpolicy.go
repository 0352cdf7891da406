// Package dialpolicy implements the shared, immutable upstream dialing
// strategy described in spec.md §4.3: either a direct TCP connection via the
// OS resolver, or a connection tunneled through a SOCKS5 proxy, optionally
// with username/password authentication and optionally with remote DNS
// resolution at the proxy.
package dialpolicy

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"

	"github.com/ameshkov/snipy/internal/config"
)

// Policy is constructed once at startup from config.DialPolicy and shared
// read-only across both listeners and every connection they spawn.
type Policy struct {
	direct *net.Dialer

	proxyDialer  proxy.Dialer
	proxyResolve bool
}

// New creates a *Policy from the validated dial policy configuration. It
// performs no I/O; the proxy dialer is constructed lazily by the underlying
// library but no connection is attempted until Dial is called.
func New(cfg config.DialPolicy) (p *Policy, err error) {
	direct := &net.Dialer{
		Timeout:  cfg.DialTimeout,
		Resolver: &net.Resolver{},
	}

	if !cfg.UseProxy {
		return &Policy{direct: direct}, nil
	}

	var auth *proxy.Auth
	if cfg.ProxyAuthUsername != "" {
		auth = &proxy.Auth{
			User:     cfg.ProxyAuthUsername,
			Password: cfg.ProxyAuthPassword,
		}
	}

	proxyAddr := net.JoinHostPort(cfg.ProxyHost, fmt.Sprintf("%d", cfg.ProxyPort))

	proxyDialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, direct)
	if err != nil {
		return nil, fmt.Errorf("dialpolicy: failed to init socks5 dialer for %s: %w", proxyAddr, err)
	}

	return &Policy{
		direct:       direct,
		proxyDialer:  proxyDialer,
		proxyResolve: cfg.ProxyResolve,
	}, nil
}

// HasProxy reports whether this policy was configured with a SOCKS5 proxy.
// Callers use it together with their own forward/block rules to decide,
// per connection, whether DialDirect or DialProxy applies (spec.md's
// "Dial policy" is a single on/off switch; the forward-rule selection of
// which connections actually use it lives with the caller, mirroring the
// teacher's SNIProxy.shouldForward).
func (p *Policy) HasProxy() bool {
	return p.proxyDialer != nil
}

// DialDirect opens a TCP connection to host:port using the OS resolver,
// without ever touching the proxy dialer.
func (p *Policy) DialDirect(ctx context.Context, host string, port int) (conn net.Conn, err error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	return dialContext(ctx, p.direct, addr)
}

// DialProxy opens a TCP connection to host:port tunneled through the
// configured SOCKS5 proxy. When remote resolution is disabled, the hostname
// is resolved locally first and the proxy is given the resulting IP address,
// so that the CONNECT target it forwards is never the original hostname.
func (p *Policy) DialProxy(ctx context.Context, host string, port int) (conn net.Conn, err error) {
	target := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	if !p.proxyResolve {
		resolved, resolveErr := resolveHost(ctx, host)
		if resolveErr != nil {
			return nil, fmt.Errorf("dialpolicy: failed to resolve %s: %w", host, resolveErr)
		}
		target = net.JoinHostPort(resolved, fmt.Sprintf("%d", port))
	}

	conn, err = dialContext(ctx, p.proxyDialer, target)
	if err != nil {
		return nil, fmt.Errorf("dialpolicy: socks5 dial to %s failed: %w", target, err)
	}

	return conn, nil
}

// resolveHost resolves host to a single IP address string using the OS
// resolver, preferring an IPv4 result the way net.Dialer.Dial's own address
// selection would.
func resolveHost(ctx context.Context, host string) (ip string, err error) {
	if parsed := net.ParseIP(host); parsed != nil {
		return host, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses found for %s", host)
	}

	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}

	return addrs[0].IP.String(), nil
}

// dialContext dials through d, using its native DialContext if it implements
// proxy.ContextDialer, or a goroutine-based timeout/cancellation wrapper
// otherwise. This mirrors the wrappedDialer technique the teacher's
// internal/httpupstream package used to add context support to plain
// proxy.Dialer implementations.
func dialContext(ctx context.Context, d proxy.Dialer, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}

	var (
		conn net.Conn
		err  error
		done = make(chan struct{})
	)

	go func() {
		conn, err = d.Dial("tcp", addr)
		close(done)
	}()

	select {
	case <-ctx.Done():
		go func() {
			<-done
			if conn != nil {
				_ = conn.Close()
			}
		}()

		return nil, ctx.Err()
	case <-done:
		return conn, err
	}
}
