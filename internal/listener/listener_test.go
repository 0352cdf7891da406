package listener

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/ameshkov/snipy/internal/config"
	"github.com/ameshkov/snipy/internal/dialpolicy"
	"github.com/ameshkov/snipy/internal/relay"
	"github.com/ameshkov/snipy/internal/sniff"
)

func TestListenerAcceptsAndRelays(t *testing.T) {
	upstreamLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen upstream: %v", err)
	}
	defer upstreamLn.Close()

	go func() {
		c, acceptErr := upstreamLn.Accept()
		if acceptErr != nil {
			return
		}
		defer c.Close()

		buf := make([]byte, 4096)
		n, _ := c.Read(buf)
		_, _ = c.Write(buf[:n])
	}()

	_, upstreamPortStr, _ := net.SplitHostPort(upstreamLn.Addr().String())
	upstreamPort, _ := strconv.Atoi(upstreamPortStr)

	policy, err := dialpolicy.New(config.DialPolicy{DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("dialpolicy.New: %v", err)
	}

	r := &relay.Relay{
		Protocol:     sniff.HTTP,
		Sniffer:      sniff.For(sniff.HTTP),
		DefaultPort:  80,
		DialPolicy:   policy,
		DialTimeout:  2 * time.Second,
		ChunkSize:    16384,
		SniffTimeout: 2 * time.Second,
	}

	l := New(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}, r)
	if err = l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Close()

	bound := l.ln.Addr().(*net.TCPAddr)

	conn, err := net.Dial("tcp", bound.String())
	if err != nil {
		t.Fatalf("dial listener: %v", err)
	}
	defer conn.Close()

	req := "GET / HTTP/1.1\r\nHost: 127.0.0.1:" + strconv.Itoa(upstreamPort) + "\r\nUser-Agent: x\r\n\r\n"
	if _, err = conn.Write([]byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != req {
		t.Errorf("echoed = %q, want %q", buf[:n], req)
	}
}
