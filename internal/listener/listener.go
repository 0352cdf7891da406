// Package listener implements the per-protocol accept loop described in
// spec.md §4.3: bind (bind_ip, port), accept indefinitely, and hand each
// accepted socket to a fresh Relay.
package listener

import (
	"fmt"
	"net"
	"strings"

	"github.com/AdguardTeam/golibs/log"

	"github.com/ameshkov/snipy/internal/relay"
)

// Listener accepts connections for one protocol/port and spawns a Relay per
// connection. Accept errors are logged and the loop continues; there is no
// backpressure, matching spec.md §4.3.
type Listener struct {
	addr  *net.TCPAddr
	relay *relay.Relay

	ln net.Listener
}

// type check
var _ interface {
	Start() error
	Close() error
} = (*Listener)(nil)

// New creates a *Listener bound to addr that serves connections with r.
func New(addr *net.TCPAddr, r *relay.Relay) *Listener {
	return &Listener{addr: addr, relay: r}
}

// Start binds the listen socket and begins accepting in the background. It
// returns once the bind has succeeded (or failed); accepting happens on a
// separate goroutine, matching the teacher's Start/acceptLoop split.
func (l *Listener) Start() (err error) {
	l.ln, err = net.ListenTCP("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listener: failed to bind %s: %w", l.addr, err)
	}

	log.Info("listener: listening for %s connections on %s", l.relay.Protocol, l.ln.Addr())

	go l.acceptLoop()

	return nil
}

// Close stops accepting new connections. In-flight connections are not
// aborted; their pumps keep running until they reach natural EOF or error.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// acceptLoop accepts incoming connections and spawns a goroutine running a
// fresh Relay for each, forever, until the listener is closed.
func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "closed network connection") {
				log.Info("listener: %s accept loop exiting, listener closed", l.relay.Protocol)

				return
			}

			log.Debug("listener: %s accept error: %v", l.relay.Protocol, err)

			continue
		}

		peerAddr := conn.RemoteAddr()
		go l.relay.Serve(conn, peerAddr)
	}
}
