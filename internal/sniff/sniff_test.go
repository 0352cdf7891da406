package sniff

import (
	"encoding/binary"
	"strings"
	"testing"
)

// constructClientHello builds a minimal, well-formed TLS 1.2-shaped
// ClientHello carrying the given hostname in its SNI extension, mirroring
// the byte layout spec.md §4.1.1 describes.
func constructClientHello(hostname string) []byte {
	var buf []byte

	// Fixed prefix: record header, handshake header, legacy version, random.
	// Content doesn't matter to the sniffer, only its length.
	buf = append(buf, 0x16, 0x03)
	for len(buf) < clientHelloPrefixLen {
		buf = append(buf, 0x00)
	}

	// No session ID.
	buf = append(buf, 0x00)

	// No cipher suites.
	buf = append(buf, 0x00, 0x00)

	// One compression method (null).
	buf = append(buf, 0x01, 0x00)

	sniNameData := append([]byte{}, []byte(hostname)...)
	sniExtData := make([]byte, 0, sniNameEntryPrefixLen+len(sniNameData))
	nameListLen := uint16(1 + 2 + len(sniNameData))
	sniExtData = appendUint16(sniExtData, nameListLen)
	sniExtData = append(sniExtData, 0x00) // name type: host_name
	sniExtData = appendUint16(sniExtData, uint16(len(sniNameData)))
	sniExtData = append(sniExtData, sniNameData...)

	var extensions []byte
	extensions = appendUint16(extensions, 0x0000) // extension type: server_name
	extensions = appendUint16(extensions, uint16(len(sniExtData)))
	extensions = append(extensions, sniExtData...)

	buf = appendUint16(buf, uint16(len(extensions)))
	buf = append(buf, extensions...)

	return buf
}

func appendUint16(b []byte, v uint16) []byte {
	tmp := make([]byte, 2)
	binary.BigEndian.PutUint16(tmp, v)

	return append(b, tmp...)
}

func constructHTTPRequest(hostname, path string) []byte {
	req := "GET " + path + " HTTP/1.1\r\nHost: " + hostname + "\r\nUser-Agent: x\r\n\r\n"

	return []byte(req)
}

func TestTLSSniffRoundTrip(t *testing.T) {
	hostnames := []string{
		"a",
		"example.com",
		"www.example.com",
		strings.Repeat("a", 253),
	}

	for _, h := range hostnames {
		buf := constructClientHello(h)
		got, err := For(TLS).Sniff(buf)
		if err != nil {
			t.Fatalf("Sniff(%q): %v", h, err)
		}
		if got != h {
			t.Errorf("Sniff(%q) = %q", h, got)
		}
	}
}

func TestHTTPSniffRoundTrip(t *testing.T) {
	hostnames := []string{"example.com", "a.b.example.org"}
	paths := []string{"/", "/foo/bar?x=1"}

	for _, h := range hostnames {
		for _, p := range paths {
			buf := constructHTTPRequest(h, p)
			got, err := For(HTTP).Sniff(buf)
			if err != nil {
				t.Fatalf("Sniff(%q,%q): %v", h, p, err)
			}
			if got != h {
				t.Errorf("Sniff(%q,%q) = %q", h, p, got)
			}
		}
	}
}

func TestHTTPSniffHostLastHeader(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\nUser-Agent: x\r\nHost: example.com\r\n\r\n")
	got, err := For(HTTP).Sniff(buf)
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if got != "example.com" {
		t.Errorf("got %q", got)
	}
}

func TestHTTPSniffNoHost(t *testing.T) {
	buf := []byte("GET / HTTP/1.0\r\nUser-Agent: x\r\n\r\n")
	if _, err := For(HTTP).Sniff(buf); err == nil {
		t.Fatal("expected an error for a request with no Host header")
	}
}

func TestTLSSniffMalformed(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00}
	if _, err := For(TLS).Sniff(buf); err == nil {
		t.Fatal("expected an error for a non-TLS buffer")
	}
}

func TestTLSSniffTooShort(t *testing.T) {
	buf := []byte{0x16, 0x03, 0x01, 0x00}
	if _, err := For(TLS).Sniff(buf); err == nil {
		t.Fatal("expected an error for a truncated client hello")
	}
}

func TestTLSSniffExtensionAtBufferBoundary(t *testing.T) {
	buf := constructClientHello("example.com")
	// The buffer ends exactly where the SNI extension data ends; there is no
	// trailing data after it, exercising the "stop at end-of-buffer" rule.
	got, err := For(TLS).Sniff(buf)
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if got != "example.com" {
		t.Errorf("got %q", got)
	}
}
