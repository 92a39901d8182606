// Package grpc holds the gRPC client and server plumbing shared by the
// engagement relay and its inference sidecar.
package grpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Endpoint names a gRPC dependency and the health service that gates it.
type Endpoint struct {
	Addr          string
	HealthService string
	DialTimeout   time.Duration
}

// DialStage describes where a connect attempt failed.
type DialStage string

const (
	// DialStageConnect indicates the client could not be created.
	DialStageConnect DialStage = "connect"
	// DialStageHealth indicates the health check never reported SERVING.
	DialStageHealth DialStage = "health"
)

// DialError wraps connect and health check failures with a stage indicator.
type DialError struct {
	Addr  string
	Stage DialStage
	Err   error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e == nil {
		return "gRPC dial error"
	}
	return fmt.Sprintf("gRPC %s error for %s: %v", e.Stage, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientOptions returns plaintext dial options with OTel client
// instrumentation, followed by extra.
func ClientOptions(extra ...gogrpc.DialOption) []gogrpc.DialOption {
	opts := []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	return append(opts, extra...)
}

// Connect creates a client for ep and blocks until its health service
// reports SERVING. The connection is closed when the health check fails.
func Connect(ctx context.Context, ep Endpoint, logf func(string, ...any), opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	addr := strings.TrimSpace(ep.Addr)
	if addr == "" {
		return nil, &DialError{Stage: DialStageConnect, Err: fmt.Errorf("address is required")}
	}
	if len(opts) == 0 {
		opts = ClientOptions()
	}

	conn, err := gogrpc.NewClient(addr, opts...)
	if err != nil {
		return nil, &DialError{Addr: addr, Stage: DialStageConnect, Err: err}
	}

	healthCtx := ctx
	if ep.DialTimeout > 0 {
		var cancel context.CancelFunc
		healthCtx, cancel = context.WithTimeout(ctx, ep.DialTimeout)
		defer cancel()
	}
	if err := WaitForHealth(healthCtx, conn, ep.HealthService, logf); err != nil {
		_ = conn.Close()
		return nil, &DialError{Addr: addr, Stage: DialStageHealth, Err: err}
	}
	return conn, nil
}
