package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcserver "github.com/milad/metermon/internal/transport/grpc"
	httpserver "github.com/milad/metermon/internal/transport/http"
)

func main() {
	var (
		target = flag.String("grpc", envOr("METERMON_GRPC_TARGET", "127.0.0.1:9090"), "gRPC target host:port")
		wait   = flag.Duration("wait", 10*time.Second, "how long to wait for the daemon to report healthy")
		serve  = flag.String("serve", "", "run an HTTP gateway on this address instead of printing once")
	)
	flag.Parse()

	log := logrus.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(*target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial gRPC %q: %v", *target, err)
	}
	defer conn.Close()

	waitForGRPC(ctx, conn, *wait, log)
	client := grpcserver.NewClient(conn)

	if *serve != "" {
		if err := gateway(ctx, *serve, client, log); err != nil {
			log.Fatalf("serve: %v", err)
		}
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap, err := client.State(reqCtx)
	if err != nil {
		log.Fatalf("get state: %v", err)
	}
	if err := httpserver.EncodeState(os.Stdout, snap); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

// gateway fronts a remote daemon with the same HTTP API it serves locally.
func gateway(ctx context.Context, addr string, src httpserver.StateReader, log *logrus.Logger) error {
	h := &http.Server{
		Handler:           httpserver.New(src, log.WithField("component", "http")),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Infof("HTTP gateway listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		log.Info("shutting down HTTP")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(shutdownCtx)
	}()

	if err := h.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func envOr(k, fallback string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fallback
}

func waitForGRPC(ctx context.Context, conn *grpc.ClientConn, maxWait time.Duration, log logrus.FieldLogger) {
	if maxWait <= 0 {
		return
	}

	hc := healthpb.NewHealthClient(conn)
	deadline := time.Now().Add(maxWait)

	backoff := 100 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		_, err := hc.Check(reqCtx, &healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
		cancel()
		if err == nil {
			log.Debug("gRPC is ready")
			return
		}

		if time.Now().After(deadline) {
			log.WithError(err).Warnf("gRPC not ready after %s; continuing anyway", maxWait)
			return
		}

		time.Sleep(backoff)
		if backoff < 1*time.Second {
			backoff *= 2
			if backoff > 1*time.Second {
				backoff = 1 * time.Second
			}
		}
	}
}
