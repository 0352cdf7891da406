package config

import (
	"os"
	"strings"
	"testing"
)

// withEnv sets the given SNIPY__-prefixed variables for the duration of the
// test and restores the previous environment afterwards.
func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()

	for k, v := range kv {
		name := EnvPrefix + k
		old, had := os.LookupEnv(name)
		if err := os.Setenv(name, v); err != nil {
			t.Fatalf("setenv %s: %v", name, err)
		}

		t.Cleanup(func() {
			if had {
				_ = os.Setenv(name, old)
			} else {
				_ = os.Unsetenv(name)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LocalIP.String() != "127.0.0.1" {
		t.Errorf("local_ip = %s, want 127.0.0.1", cfg.LocalIP)
	}
	if cfg.PipeChunk != 16384 {
		t.Errorf("pipe_chunk = %d, want 16384", cfg.PipeChunk)
	}
	if cfg.Workers != 1 {
		t.Errorf("workers = %d, want 1", cfg.Workers)
	}
	if cfg.DialPolicy.UseProxy {
		t.Errorf("proxy = true, want false by default")
	}
}

func TestLoadProxyRequiresHostAndPort(t *testing.T) {
	withEnv(t, map[string]string{"PROXY": "true"})

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error when PROXY=true without host/port")
	}
}

func TestLoadProxyMissingHostNamesField(t *testing.T) {
	withEnv(t, map[string]string{
		"PROXY":      "true",
		"PROXY_PORT": "1080",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error when proxy_host is missing")
	}
	if !strings.Contains(err.Error(), "proxy_host") {
		t.Errorf("error %q does not name proxy_host", err)
	}
}

func TestLoadProxyComplete(t *testing.T) {
	withEnv(t, map[string]string{
		"PROXY":               "true",
		"PROXY_HOST":          "10.0.0.2",
		"PROXY_PORT":          "1080",
		"PROXY_AUTH_USERNAME": "u",
		"PROXY_AUTH_PASSWORD": "p",
		"PROXY_RESOLVE":       "true",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DialPolicy.ProxyHost != "10.0.0.2" || cfg.DialPolicy.ProxyPort != 1080 {
		t.Errorf("unexpected proxy address: %+v", cfg.DialPolicy)
	}
	if !cfg.DialPolicy.ProxyResolve {
		t.Errorf("proxy_resolve = false, want true")
	}
}

func TestLoadForwardAndBlockRules(t *testing.T) {
	withEnv(t, map[string]string{
		"FORWARD_RULES": "*.example.com, other.com",
		"BLOCK_RULES":   "blocked.example.com",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []string{"*.example.com", "other.com"}
	if len(cfg.ForwardRules) != len(want) {
		t.Fatalf("forward_rules = %v, want %v", cfg.ForwardRules, want)
	}
	for i, r := range want {
		if cfg.ForwardRules[i] != r {
			t.Errorf("forward_rules[%d] = %q, want %q", i, cfg.ForwardRules[i], r)
		}
	}
	if len(cfg.BlockRules) != 1 || cfg.BlockRules[0] != "blocked.example.com" {
		t.Errorf("block_rules = %v", cfg.BlockRules)
	}
}

func TestLoadInvalidPortRange(t *testing.T) {
	withEnv(t, map[string]string{
		"PROXY":      "true",
		"PROXY_HOST": "10.0.0.2",
		"PROXY_PORT": "70000",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error for an out-of-range proxy_port")
	}
}
