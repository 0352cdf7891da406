// Package relay implements the per-connection state machine described in
// spec.md §4.2: sniff the destination server name from the client's first
// chunk, dial it through the shared dial policy, then pump bytes
// bidirectionally until both directions reach natural EOF.
package relay

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/fujiwara/shapeio"

	"github.com/ameshkov/snipy/internal/dialpolicy"
	"github.com/ameshkov/snipy/internal/filter"
	"github.com/ameshkov/snipy/internal/metrics"
	"github.com/ameshkov/snipy/internal/sniff"
)

// Relay drives connections for a single listener protocol. One Relay is
// shared (read-only) across every connection that listener accepts; it owns
// no per-connection state itself.
type Relay struct {
	// Protocol selects the Sniffer and labels log lines/metrics.
	Protocol sniff.Protocol
	// Sniffer extracts the server name from the first chunk.
	Sniffer sniff.Sniffer
	// DefaultPort is used when the sniffed server name carries no explicit
	// port (the common case): 80 for HTTP, 443 for TLS.
	DefaultPort int

	// DialPolicy is the shared upstream dialing strategy.
	DialPolicy *dialpolicy.Policy
	// DialTimeout bounds the dial step; zero disables the bound.
	DialTimeout time.Duration

	// ChunkSize is the read buffer size for the first chunk and both pumps.
	ChunkSize int
	// SniffTimeout bounds how long the first client read may block; zero
	// disables the deadline.
	SniffTimeout time.Duration
	// BandwidthRate, if positive, caps both pumps at this many bytes/sec.
	BandwidthRate float64

	// ForwardRules and BlockRules are the optional wildcard lists from
	// SPEC_FULL.md §12: BlockRules refuse the dial outright; ForwardRules,
	// when non-empty, restrict which hostnames use the proxy (an empty list
	// forwards everything once a proxy is configured, spec.md's baseline).
	ForwardRules []string
	BlockRules   []string

	// Metrics is optional; a nil Metrics disables recording.
	Metrics *metrics.Recorder
}

// Serve drives one connection from accept to teardown. It implements
// spec.md §4.2's algorithm. clientConn is used as both the client_in and
// client_out halves from the Data Model (a plain net.Conn serves both roles
// for TCP); peerAddr is the client's remote address captured at accept.
//
// Serve returns only after all sockets it opened have been closed.
func (r *Relay) Serve(clientConn net.Conn, peerAddr net.Addr) {
	defer log.OnCloserError(clientConn, log.DEBUG)

	proto := r.Protocol.String()
	if r.Metrics != nil {
		r.Metrics.Accepted(proto)
	}

	firstChunk, err := r.readFirstChunk(clientConn)
	if err != nil {
		if err != io.EOF {
			log.Debug("relay: [%s] error reading first chunk from %s: %v", proto, peerAddr, err)
		}

		return
	}
	if len(firstChunk) == 0 {
		// Idle client closed before sending anything: graceful close, no
		// dial, nothing above debug.
		return
	}

	serverName, err := r.Sniffer.Sniff(firstChunk)
	if err != nil {
		log.Debug("relay: [%s] failed to sniff server name from %s: %v", proto, peerAddr, err)
		if r.Metrics != nil {
			r.Metrics.SniffFailed(proto)
		}

		return
	}

	serverName = strings.TrimSpace(serverName)
	if serverName == "" {
		log.Debug("relay: [%s] empty server name from %s", proto, peerAddr)
		if r.Metrics != nil {
			r.Metrics.SniffFailed(proto)
		}

		return
	}

	host, port := r.splitServerName(serverName)

	if filter.MatchWildcards(host, r.BlockRules) {
		log.Info("relay: [%s] blocked connection from %s to %s", proto, peerAddr, host)

		return
	}

	upstreamConn, err := r.dial(host, port)
	if err != nil {
		log.Debug("relay: [%s] failed to dial %s:%d for %s: %v", proto, host, port, peerAddr, err)
		if r.Metrics != nil {
			r.Metrics.DialFailed(proto)
		}

		return
	}
	defer log.OnCloserError(upstreamConn, log.DEBUG)

	// Steps 3-4 of spec.md §4.2 are sequential in this implementation: the
	// dial above has already completed by the time either pump starts, so
	// the upstream_ready latch is signalled before any waiter can observe
	// it. It is still a real one-shot latch (see latch.go and latch_test.go)
	// and the reading pump still waits on it, satisfying the Data Model's
	// invariant even though the wait always returns immediately here.
	ready := newLatch()
	ready.signal()

	if _, err = upstreamConn.Write(firstChunk); err != nil {
		log.Debug("relay: [%s] failed to write first chunk upstream for %s: %v", proto, peerAddr, err)

		return
	}

	log.Info("relay: [%s] %s -> %s:%d", proto, peerAddr, host, port)

	var wg sync.WaitGroup
	wg.Add(2)

	var sent, received int64

	go func() {
		defer wg.Done()

		sent = r.pump(clientConn, upstreamConn, nil)
	}()
	go func() {
		defer wg.Done()

		received = r.pump(upstreamConn, clientConn, ready)
	}()

	wg.Wait()

	if r.Metrics != nil {
		r.Metrics.BytesRelayed(proto, "client_to_upstream", sent)
		r.Metrics.BytesRelayed(proto, "upstream_to_client", received)
	}

	log.Debug("relay: [%s] finished tunneling %s <-> %s:%d, sent %d received %d",
		proto, peerAddr, host, port, sent, received)
}

// readFirstChunk reads up to ChunkSize bytes from clientConn, applying
// SniffTimeout as a read deadline for the duration of the read only.
func (r *Relay) readFirstChunk(clientConn net.Conn) (chunk []byte, err error) {
	if r.SniffTimeout > 0 {
		if err = clientConn.SetReadDeadline(time.Now().Add(r.SniffTimeout)); err != nil {
			return nil, err
		}
		defer func() {
			_ = clientConn.SetReadDeadline(time.Time{})
		}()
	}

	buf := make([]byte, r.ChunkSize)
	n, readErr := clientConn.Read(buf)
	if n == 0 {
		if readErr != nil && readErr != io.EOF {
			return nil, readErr
		}

		return nil, nil
	}

	return buf[:n], nil
}

// splitServerName separates an optional ":port" suffix from the sniffed
// server name, falling back to the listener's default port. Uses the same
// netutil helpers the teacher uses for this exact purpose.
func (r *Relay) splitServerName(serverName string) (host string, port int) {
	if h, p, splitErr := netutil.SplitHostPort(serverName); splitErr == nil {
		return h, int(p)
	}

	return serverName, r.DefaultPort
}

// dial chooses between the direct and proxied dial strategies for host,
// applying ForwardRules, and opens the upstream connection.
func (r *Relay) dial(host string, port int) (net.Conn, error) {
	ctx := context.Background()
	if r.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.DialTimeout)
		defer cancel()
	}

	viaProxy := r.DialPolicy.HasProxy() &&
		(len(r.ForwardRules) == 0 || filter.MatchWildcards(host, r.ForwardRules))

	if viaProxy {
		return r.DialPolicy.DialProxy(ctx, host, port)
	}

	return r.DialPolicy.DialDirect(ctx, host, port)
}

// closeWriter is implemented by connections that support half-close; pumps
// use it to signal EOF to their peer without severing the other direction,
// matching the teacher's tunnel() method.
type closeWriter interface {
	CloseWrite() error
}

// pump copies bytes from src to dst until EOF or error, then half-closes
// dst's write side (or fully closes it, if it doesn't support half-close).
// If wait is non-nil, the pump blocks on it before reading anything, per
// spec.md's upstream_ready latch.
func (r *Relay) pump(src, dst net.Conn, wait *latch) (written int64) {
	if wait != nil {
		wait.wait()
	}

	defer func() {
		switch c := dst.(type) {
		case closeWriter:
			_ = c.CloseWrite()
		default:
			_ = c.Close()
		}
	}()

	reader := io.Reader(src)
	writer := io.Writer(dst)

	if r.BandwidthRate > 0 {
		sr := shapeio.NewReader(reader)
		sr.SetRateLimit(r.BandwidthRate)
		reader = sr

		sw := shapeio.NewWriter(writer)
		sw.SetRateLimit(r.BandwidthRate)
		writer = sw
	}

	written, err := io.Copy(writer, reader)
	if err != nil {
		log.Debug("relay: pump exiting: %v", err)
	}

	return written
}
