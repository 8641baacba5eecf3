package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/milad/metermon/internal/config"
	"github.com/milad/metermon/internal/hw"
	"github.com/milad/metermon/internal/logging"
	"github.com/milad/metermon/internal/repo"
	"github.com/milad/metermon/internal/repo/filerepo"
	"github.com/milad/metermon/internal/repo/redisrepo"
	"github.com/milad/metermon/internal/service"
	grpcserver "github.com/milad/metermon/internal/transport/grpc"
	httpserver "github.com/milad/metermon/internal/transport/http"
	"github.com/milad/metermon/internal/transport/mqtt"
	"github.com/milad/metermon/internal/transport/natspub"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		configPath = flag.String("config", os.Getenv("METERMON_CONFIG"), "path to YAML config")
		httpAddr   = flag.String("http", "", "HTTP listen address (overrides config, \"-\" disables)")
		grpcAddr   = flag.String("grpc", "", "gRPC listen address (overrides config, \"-\" disables)")
		simulate   = flag.Duration("simulate", 0, "emit synthetic pulses at this interval instead of reading the pin")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTP.Addr = listenFlag(*httpAddr)
		case "grpc":
			cfg.GRPC.Addr = listenFlag(*grpcAddr)
		case "simulate":
			cfg.Hardware.Simulate = *simulate
		}
	})
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.Fatalf("logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("metermon stopped")
	}
}

func listenFlag(v string) string {
	if v == "-" {
		return ""
	}
	return v
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	store, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	pub, closePub := openPublisher(cfg.Publish, log)
	defer closePub()

	if cfg.Hardware.Simulate == 0 || cfg.Hardware.LEDPin != "" {
		if err := hw.Init(); err != nil {
			return err
		}
	}

	var led service.Indicator = service.NopIndicator{}
	if cfg.Hardware.LEDPin != "" {
		l, err := hw.OpenLED(cfg.Hardware.LEDPin)
		if err != nil {
			return err
		}
		led = l
	}

	mon := service.NewMonitor(cfg.MonitorConfig(), store, pub, led, log)

	edges, err := edgeSource(cfg.Hardware, mon, log.WithField("component", "hw"))
	if err != nil {
		return err
	}

	// Listeners are bound before anything starts so a bad address fails
	// fast without leaving the monitor half running.
	httpLn, err := listen(cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	grpcLn, err := listen(cfg.GRPC.Addr)
	if err != nil {
		if httpLn != nil {
			_ = httpLn.Close()
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return edges.Run(gctx) })
	if httpLn != nil {
		serveHTTP(gctx, g, httpLn, mon, log.WithField("component", "http"))
	}
	if grpcLn != nil {
		serveGRPC(gctx, g, grpcLn, mon, log.WithField("component", "grpc"))
	}

	return g.Wait()
}

func listen(addr string) (net.Listener, error) {
	if addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", addr, err)
	}
	return ln, nil
}

func openStore(cfg config.Storage) (repo.CountStore, func(), error) {
	switch cfg.Backend {
	case config.StorageRedis:
		r, err := redisrepo.NewFromURL(cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return filerepo.New(cfg.Path), func() {}, nil
	}
}

func openPublisher(cfg config.Publish, log logrus.FieldLogger) (service.Publisher, func()) {
	switch cfg.Backend {
	case config.PublishNATS:
		p := natspub.New(cfg.NATS, log.WithField("component", "nats"))
		return p, p.Close
	default:
		p := mqtt.New(cfg.MQTT, log.WithField("component", "mqtt"))
		return p, p.Close
	}
}

type runner interface {
	Run(ctx context.Context) error
}

func edgeSource(cfg config.Hardware, mon *service.Monitor, log logrus.FieldLogger) (runner, error) {
	if cfg.Simulate > 0 {
		return hw.NewSimulator(cfg.Simulate, mon.Capture(), log), nil
	}
	pull, err := hw.ParsePull(cfg.Pull)
	if err != nil {
		return nil, err
	}
	return hw.OpenEdgeWatcher(cfg.PulsePin, pull, mon.Capture(), log)
}

func serveHTTP(ctx context.Context, g *errgroup.Group, ln net.Listener, src httpserver.StateReader, log logrus.FieldLogger) {
	h := &http.Server{
		Handler:           httpserver.New(src, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.WithField("addr", ln.Addr().String()).Info("HTTP listening")

	g.Go(func() error {
		if err := h.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down HTTP")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = h.Shutdown(shutdownCtx)
		return nil
	})
}

func serveGRPC(ctx context.Context, g *errgroup.Group, lis net.Listener, src grpcserver.StateReader, log logrus.FieldLogger) {
	log.WithField("addr", lis.Addr().String()).Info("gRPC listening")

	s := grpc.NewServer()
	grpcserver.Register(s, grpcserver.New(src))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	g.Go(func() error {
		if err := s.Serve(lis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down gRPC")
		hs.Shutdown()
		ch := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(ch)
		}()
		select {
		case <-ch:
		case <-time.After(shutdownTimeout):
			s.Stop()
		}
		return nil
	})
}
