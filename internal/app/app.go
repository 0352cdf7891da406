// Package app wires together config, dialpolicy, sniff, relay, listener and
// metrics into the running process, and owns the command-line interface and
// the OS signal-driven shutdown sequence. It is the direct counterpart of
// the teacher's internal/cmd package.
package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/AdguardTeam/golibs/log"
	"github.com/joho/godotenv"

	goFlags "github.com/jessevdk/go-flags"

	"github.com/ameshkov/snipy/internal/config"
	"github.com/ameshkov/snipy/internal/dialpolicy"
	"github.com/ameshkov/snipy/internal/listener"
	"github.com/ameshkov/snipy/internal/metrics"
	"github.com/ameshkov/snipy/internal/relay"
	"github.com/ameshkov/snipy/internal/sniff"
)

// tlsPort and httpPort are fixed per spec.md §2.2: one variant per port, not
// tunable through configuration.
const (
	tlsPort  = 443
	httpPort = 80
)

// Main is the entry point of the program.
func Main() {
	options := &Options{}
	parser := goFlags.NewParser(options, goFlags.Default)
	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*goFlags.Error); ok && flagsErr.Type == goFlags.ErrHelp {
			os.Exit(0)
		} else {
			os.Exit(1)
		}
	}

	if options.Verbose {
		log.SetLevel(log.DEBUG)
	}
	if options.LogOutput != "" {
		var file *os.File
		file, err = os.OpenFile(options.LogOutput, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			log.Fatalf("app: cannot create a log file: %s", err)
		}
		defer log.OnCloserError(file, log.INFO)
		log.SetOutput(file)
	}

	if options.ListEnv {
		config.PrintFieldTable(os.Stdout)
		os.Exit(0)
	}

	if options.EnvFile != "" {
		if err = godotenv.Load(options.EnvFile); err != nil {
			log.Fatalf("app: failed to load env file %s: %s", options.EnvFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("app: invalid configuration: %s", err)
	}

	run(cfg)
}

// run constructs every component from cfg and blocks until a termination
// signal arrives, then closes the TLS listener, the HTTP listener and the
// metrics server, in that order.
func run(cfg *config.Config) {
	log.Info("app: starting snipy with the following configuration:\n%s", cfg)

	runtime.GOMAXPROCS(cfg.Workers)

	policy, err := dialpolicy.New(cfg.DialPolicy)
	check(err)

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.New()
		go func() {
			if serveErr := recorder.Serve(cfg.Metrics.Addr); serveErr != nil {
				log.Error("app: metrics server stopped: %s", serveErr)
			}
		}()
	}

	tlsListener := newListener(cfg, policy, recorder, sniff.TLS, tlsPort)
	check(tlsListener.Start())

	httpListener := newListener(cfg, policy, recorder, sniff.HTTP, httpPort)
	check(httpListener.Start())

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	<-signalChannel

	log.Info("app: stopping snipy")
	log.OnCloserError(tlsListener, log.INFO)
	log.OnCloserError(httpListener, log.INFO)

	if recorder != nil {
		if shutdownErr := recorder.Shutdown(context.Background()); shutdownErr != nil {
			log.Error("app: metrics server shutdown: %s", shutdownErr)
		}
	}
}

// newListener builds the Relay and Listener for one protocol/port pair from
// the shared configuration.
func newListener(
	cfg *config.Config,
	policy *dialpolicy.Policy,
	recorder *metrics.Recorder,
	proto sniff.Protocol,
	port int,
) *listener.Listener {
	r := &relay.Relay{
		Protocol:      proto,
		Sniffer:       sniff.For(proto),
		DefaultPort:   port,
		DialPolicy:    policy,
		DialTimeout:   cfg.DialPolicy.DialTimeout,
		ChunkSize:     cfg.PipeChunk,
		SniffTimeout:  cfg.SniffTimeout,
		BandwidthRate: cfg.BandwidthRate,
		ForwardRules:  cfg.ForwardRules,
		BlockRules:    cfg.BlockRules,
		Metrics:       recorder,
	}

	addr := &net.TCPAddr{IP: cfg.LocalIP, Port: port}

	return listener.New(addr, r)
}

// check panics if err is not nil.
func check(err error) {
	if err != nil {
		panic(err)
	}
}
