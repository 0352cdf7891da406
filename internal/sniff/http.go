package sniff

import (
	"bufio"
	"bytes"
	"net/http"
	"strings"
)

// httpSniffer implements Sniffer for plain HTTP/1.x connections by parsing
// the buffered bytes as an HTTP request and reading its Host header. Using
// net/http's own request reader, rather than a hand-rolled regex keyed on a
// trailing User-Agent header, is deliberate: spec.md's Open Questions flags
// the regex-based original as buggy for clients that omit User-Agent, and
// requires proper CRLF-delimited header scanning instead. net/http.ReadRequest
// already does exactly that.
type httpSniffer struct{}

// type check
var _ Sniffer = httpSniffer{}

// Sniff implements Sniffer for httpSniffer.
func (s httpSniffer) Sniff(buf []byte) (serverName string, err error) {
	r, readErr := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf)))
	if readErr != nil {
		return "", errProtocol("http", "malformed request: %v", readErr)
	}

	host := strings.TrimSpace(r.Host)
	if host == "" {
		return "", errProtocol("http", "no Host header present")
	}

	return host, nil
}
