// Command rtsprelay runs the RTSP relay server: a publish listener for
// encoders, a client listener for players, and an optional read-only
// admin status surface.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	relay "github.com/bluenviron/rtsprelay"
	"github.com/bluenviron/rtsprelay/internal/statusapi"
	"github.com/bluenviron/rtsprelay/pkg/auth"
	"github.com/bluenviron/rtsprelay/pkg/config"
)

func main() {
	fs := flag.NewFlagSet("rtsprelay", flag.ExitOnError)

	configPath := fs.String("config", "", "path to a YAML configuration file (optional)")
	publishAddr := fs.String("publish-addr", "", "override the publish listen address")
	clientAddr := fs.String("client-addr", "", "override the client listen address")
	adminAddr := fs.String("admin-addr", "", "override the admin status listen address")
	multicastBase := fs.String("multicast-base", "", "override the multicast base address (ip:port); enables per-mount multicast replication if set")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	}))
	slog.SetDefault(log)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load configuration", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *publishAddr != "" {
		cfg.PublishAddress = *publishAddr
	}
	if *clientAddr != "" {
		cfg.ClientAddress = *clientAddr
	}
	if *adminAddr != "" {
		cfg.AdminAddress = *adminAddr
	}
	if *multicastBase != "" {
		if cfg.Multicast == nil {
			cfg.Multicast = &config.MulticastConfig{}
		}
		cfg.Multicast.BaseAddress = *multicastBase
	}

	if err := run(cfg, log); err != nil {
		log.Error("relay exited with error", "error", err)
		os.Exit(1)
	}
}

// enableMulticast parses cfg and turns on per-mount multicast
// replication on registry.
func enableMulticast(registry *relay.Registry, cfg config.MulticastConfig) error {
	host, portStr, err := net.SplitHostPort(cfg.BaseAddress)
	if err != nil {
		return fmt.Errorf("parsing base address: %w", err)
	}

	baseIP := net.ParseIP(host)
	if baseIP == nil {
		return fmt.Errorf("invalid base address host: %s", host)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid base address port: %w", err)
	}

	var sourceIP net.IP
	if cfg.SourceIP != "" {
		sourceIP = net.ParseIP(cfg.SourceIP)
		if sourceIP == nil {
			return fmt.Errorf("invalid source IP: %s", cfg.SourceIP)
		}
	}

	registry.EnableMulticast(baseIP, port, sourceIP)
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	pool, err := relay.NewPortPool(cfg.RTPPortStart, cfg.RTPPortCount)
	if err != nil {
		return fmt.Errorf("building port pool: %w", err)
	}

	registry := relay.NewRegistry(pool, log.With("component", "registry"))

	if cfg.Multicast != nil && cfg.Multicast.BaseAddress != "" {
		if err := enableMulticast(registry, *cfg.Multicast); err != nil {
			return fmt.Errorf("configuring multicast: %w", err)
		}
	}

	var validator *auth.Validator
	if cfg.Auth != nil {
		realm := cfg.Auth.Realm
		if realm == "" {
			realm = "rtsp"
		}
		validator = auth.NewValidator(cfg.Auth.User, cfg.Auth.Pass, realm)
	}

	limiter := rate.Limit(cfg.RequestsPerSecond)

	publishServer := relay.NewPublishServer(relay.PublishServerConfig{
		Registry:       registry,
		Validator:      validator,
		RequestLimiter: limiter,
		RequestBurst:   cfg.RequestBurst,
		Log:            log.With("component", "publish"),
	})

	clientServer := relay.NewClientServer(relay.ClientServerConfig{
		Registry:          registry,
		Validator:         validator,
		KeepaliveInterval: cfg.KeepaliveInterval,
		RequestLimiter:    limiter,
		RequestBurst:      cfg.RequestBurst,
		Log:               log.With("component", "client"),
	})

	publishLn, err := net.Listen("tcp", cfg.PublishAddress)
	if err != nil {
		return fmt.Errorf("listening on publish address: %w", err)
	}
	defer publishLn.Close()

	var clientLn net.Listener
	if cfg.ClientAddress == cfg.PublishAddress {
		clientLn = publishLn
	} else {
		clientLn, err = net.Listen("tcp", cfg.ClientAddress)
		if err != nil {
			return fmt.Errorf("listening on client address: %w", err)
		}
		defer clientLn.Close()
	}

	go func() {
		if err := publishServer.Serve(publishLn); err != nil {
			log.Warn("publish server stopped", "error", err)
		}
	}()
	go func() {
		if err := clientServer.Serve(clientLn); err != nil {
			log.Warn("client server stopped", "error", err)
		}
	}()

	sweep := time.NewTicker(cfg.MountSweepInterval)
	defer sweep.Stop()
	go func() {
		for range sweep.C {
			clientServer.SweepStalledWrappers()
		}
	}()

	if cfg.AdminAddress != "" {
		admin := statusapi.New(func() any {
			return registry.Snapshot()
		}, log.With("component", "admin"))

		srv := &http.Server{Addr: cfg.AdminAddress, Handler: admin.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("admin server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	log.Info("relay started",
		"publish_address", cfg.PublishAddress,
		"client_address", cfg.ClientAddress,
		"admin_address", cfg.AdminAddress)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	return nil
}
