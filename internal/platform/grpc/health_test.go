package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const testService = "engagement.inference.v1.InferenceService"

func TestWaitForHealthServing(t *testing.T) {
	dial, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	defer stop()

	conn := dialBufconn(t, dial)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, conn, testService, nil); err != nil {
		t.Fatalf("wait for health: %v", err)
	}
}

func TestWaitForHealthTransitionsToServing(t *testing.T) {
	dial, healthServer, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	defer stop()

	conn := dialBufconn(t, dial)
	defer conn.Close()

	go func() {
		time.Sleep(150 * time.Millisecond)
		healthServer.SetServingStatus(testService, grpc_health_v1.HealthCheckResponse_SERVING)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var lines int
	logf := func(string, ...any) { lines++ }
	if err := WaitForHealth(ctx, conn, testService, logf); err != nil {
		t.Fatalf("wait for health after transition: %v", err)
	}
	if lines < 2 {
		t.Fatalf("expected waiting and serving log lines, got %d", lines)
	}
}

func TestWaitForHealthRespectsContext(t *testing.T) {
	dial, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	defer stop()

	conn := dialBufconn(t, dial)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	if err := WaitForHealth(ctx, conn, testService, nil); err == nil {
		t.Fatal("expected context error, got nil")
	}
}

func TestWaitForHealthRequiresConn(t *testing.T) {
	if err := WaitForHealth(context.Background(), nil, testService, nil); err == nil {
		t.Fatal("expected error for nil connection")
	}
}

func TestRegisterHealthMarksServicesServing(t *testing.T) {
	listener := bufconn.Listen(1 << 20)
	server := gogrpc.NewServer()
	RegisterHealth(server, testService)
	go func() { _ = server.Serve(listener) }()
	defer server.Stop()

	conn := dialBufconn(t, listener.DialContext)
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	for _, service := range []string{"", testService} {
		resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("check %q: %v", service, err)
		}
		if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Fatalf("status for %q = %s", service, resp.GetStatus())
		}
	}
}

type contextDialer func(context.Context) (net.Conn, error)

func startHealthServer(t *testing.T, status grpc_health_v1.HealthCheckResponse_ServingStatus) (contextDialer, *health.Server, func()) {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	grpcServer := gogrpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(testService, status)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	stop := func() {
		grpcServer.Stop()
		_ = listener.Close()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	}

	return listener.DialContext, healthServer, stop
}

func dialBufconn(t *testing.T, dial contextDialer) *gogrpc.ClientConn {
	t.Helper()

	conn, err := gogrpc.NewClient("passthrough:///bufnet", bufconnOptions(dial)...)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	return conn
}

func bufconnOptions(dial contextDialer) []gogrpc.DialOption {
	return ClientOptions(gogrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return dial(ctx)
	}))
}
