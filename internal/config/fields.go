package config

import (
	"fmt"
	"io"
)

// fieldDesc describes a single SNIPY__ environment variable for the purposes
// of the --list-env help table. It mirrors the schema dump the original
// Python configuration produced (name, title, default, type), but is a plain
// hand-written table of values here rather than a reflected pydantic schema.
type fieldDesc struct {
	// name is the variable name without the SNIPY__ prefix.
	name string
	// title is a short human description.
	title string
	// def is the default value as displayed to the user.
	def string
	// typ is the field's type as displayed to the user.
	typ string
}

// fields lists every recognized environment variable in declaration order.
var fields = []fieldDesc{
	{"LOCAL_IP", "local ip to bind", "127.0.0.1", "IPv4Address"},
	{"WORKERS", "number of workers", "1", "int"},
	{"PIPE_CHUNK", "chunk size for socket packet relay", "16384", "int"},
	{"PROXY", "use socks5 to connect to the remote host", "false", "bool"},
	{"PROXY_HOST", "ip address of the socks5 proxy server", "", "str"},
	{"PROXY_PORT", "port of the socks5 proxy server", "", "int(0..65535)"},
	{"PROXY_AUTH_USERNAME", "proxy authentication username", "", "str"},
	{"PROXY_AUTH_PASSWORD", "proxy authentication password", "", "str"},
	{"PROXY_RESOLVE", "resolve hostname over proxy", "false", "bool"},
	{"FORWARD_RULES", "comma-separated wildcards of hosts to forward via proxy (empty = all, when PROXY is set)", "", "[]str"},
	{"BLOCK_RULES", "comma-separated wildcards of hosts to refuse to dial", "", "[]str"},
	{"BANDWIDTH_RATE", "bytes per second each tunnel's pumps are throttled to, 0 disables throttling", "0", "float"},
	{"SNIFF_TIMEOUT", "read deadline while waiting for the first client chunk, in seconds", "10", "int"},
	{"DIAL_TIMEOUT", "upstream dial timeout, in seconds", "10", "int"},
	{"METRICS_ENABLED", "expose prometheus metrics over HTTP", "false", "bool"},
	{"METRICS_ADDR", "listen address for the metrics HTTP endpoint", "127.0.0.1:9090", "str"},
}

// PrintFieldTable writes the --list-env help table to w, in the format the
// original configuration's --list-env flag produced: one block per variable,
// title/default/type lines indented beneath it.
func PrintFieldTable(w io.Writer) {
	sep1 := ""
	for i := 0; i < 70; i++ {
		sep1 += "="
	}

	_, _ = fmt.Fprintln(w, sep1)
	_, _ = fmt.Fprintln(w, "server config options:")

	sep2 := ""
	for i := 0; i < 30; i++ {
		sep2 += "-"
	}
	_, _ = fmt.Fprintln(w, sep2)

	for _, f := range fields {
		_, _ = fmt.Fprintf(w, "%s%s\n", EnvPrefix, f.name)
		_, _ = fmt.Fprintf(w, "\t title : %s\n", f.title)
		if f.def != "" {
			_, _ = fmt.Fprintf(w, "\t default : %s\n", f.def)
		}
		_, _ = fmt.Fprintf(w, "\t type : %s\n", f.typ)
		_, _ = fmt.Fprintln(w)
	}
}
