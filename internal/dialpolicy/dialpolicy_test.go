package dialpolicy

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/ameshkov/snipy/internal/config"
)

// TestDirectDial exercises the Direct dial policy against a local listener,
// confirming it connects without involving a proxy dialer at all.
func TestDirectDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		c, aErr := ln.Accept()
		if aErr == nil {
			close(accepted)
			_ = c.Close()
		}
	}()

	p, err := New(config.DialPolicy{DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := p.DialDirect(ctx, host, port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted the direct-dialed connection")
	}
}

func TestResolveHostPassthroughIP(t *testing.T) {
	ip, err := resolveHost(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("resolveHost: %v", err)
	}
	if ip != "127.0.0.1" {
		t.Errorf("resolveHost(127.0.0.1) = %s", ip)
	}
}
