package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"

	platformgrpc "github.com/Yureshka02/multimodal-student-engagement/internal/platform/grpc"
	"github.com/Yureshka02/multimodal-student-engagement/internal/platform/timeouts"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/api/grpc/sessions"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/inference"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/session"
)

// Config defines the inputs for the engagement relay.
//
// Classifiers run out of process behind InferenceAddr. Without it every
// decodable frame and every full pose window degrades to "no update".
type Config struct {
	HTTPAddr             string
	GRPCAddr             string
	InferenceAddr        string
	InferenceTimeout     time.Duration
	InferenceConcurrency int64
	PoseThreshold        float64
	EngagedLabels        []string
	SessionIdleTTL       time.Duration
	AllowedOrigins       []string
	MaxEventsPerSecond   int
	GRPCDialTimeout      time.Duration
	ReadHeaderTimeout    time.Duration
	ShutdownTimeout      time.Duration
	PeerWriteTimeout     time.Duration
}

// Server hosts the engagement HTTP/WebSocket process and the optional
// session admin gRPC listener.
type Server struct {
	httpAddr        string
	grpcAddr        string
	sessionIdleTTL  time.Duration
	shutdownTimeout time.Duration
	registry        *session.Registry
	httpServer      *http.Server
	grpcServer      *gogrpc.Server
	inferenceConn   *gogrpc.ClientConn
	closeOnce       sync.Once
}

// NewServer builds a configured relay and connects the inference sidecar if
// one is configured.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if config.GRPCDialTimeout <= 0 {
		config.GRPCDialTimeout = timeouts.GRPCDial
	}
	if config.PeerWriteTimeout <= 0 {
		config.PeerWriteTimeout = timeouts.PeerWrite
	}
	if config.InferenceConcurrency <= 0 {
		return nil, fmt.Errorf("inference concurrency must be positive, got %d", config.InferenceConcurrency)
	}

	fusion, err := newFusion(config)
	if err != nil {
		return nil, err
	}
	registry := session.NewRegistry(fusion)
	log.Printf("engagement: fusion %s", fusion)

	var face inference.FaceClassifier = inference.Unavailable{}
	var pose inference.PoseClassifier = inference.Unavailable{}
	var inferenceConn *gogrpc.ClientConn
	if addr := strings.TrimSpace(config.InferenceAddr); addr != "" {
		conn, err := dialInference(ctx, addr, config.GRPCDialTimeout)
		if err != nil {
			log.Printf("inference gRPC dial failed, classifiers unavailable: %v", err)
		} else {
			inferenceConn = conn
			remote := inference.NewRemote(conn)
			face, pose = remote, remote
		}
	} else {
		log.Printf("inference address not configured, classifiers unavailable")
	}
	engine := inference.NewEngine(face, pose, inference.Options{
		Timeout:     config.InferenceTimeout,
		Concurrency: config.InferenceConcurrency,
	})

	handler := newHandler(newRelay(registry, engine), handlerOptions{
		allowedOrigins:     config.AllowedOrigins,
		maxEventsPerSecond: config.MaxEventsPerSecond,
		writeTimeout:       config.PeerWriteTimeout,
	})

	var grpcServer *gogrpc.Server
	grpcAddr := strings.TrimSpace(config.GRPCAddr)
	if grpcAddr != "" {
		grpcServer = gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
		sessions.NewService(registry).Register(grpcServer)
	}

	return &Server{
		httpAddr:        httpAddr,
		grpcAddr:        grpcAddr,
		sessionIdleTTL:  config.SessionIdleTTL,
		shutdownTimeout: config.ShutdownTimeout,
		registry:        registry,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		grpcServer:    grpcServer,
		inferenceConn: inferenceConn,
	}, nil
}

// Run creates and serves an engagement relay until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(ctx, config)
	if err != nil {
		return fmt.Errorf("init engagement server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve engagement: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, the admin gRPC server when
// configured, and the idle-session sweep until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("engagement server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.registry.RunRetention(sweepCtx, s.sessionIdleTTL, log.Printf)

	serveErr := make(chan error, 2)
	log.Printf("engagement server listening on %s", s.httpAddr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("serve http: %w", err)
		}
	}()

	if s.grpcServer != nil {
		listener, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			_ = s.shutdownHTTP()
			return fmt.Errorf("listen grpc %s: %w", s.grpcAddr, err)
		}
		log.Printf("engagement admin gRPC listening on %s", listener.Addr())
		go func() {
			if err := s.grpcServer.Serve(listener); err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
				serveErr <- fmt.Errorf("serve grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		if s.grpcServer != nil {
			s.grpcServer.GracefulStop()
		}
		if err := s.shutdownHTTP(); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if s.grpcServer != nil {
			s.grpcServer.Stop()
		}
		_ = s.shutdownHTTP()
		return err
	}
}

func (s *Server) shutdownHTTP() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.inferenceConn != nil {
			if err := s.inferenceConn.Close(); err != nil {
				log.Printf("close inference gRPC connection: %v", err)
			}
		}
	})
}

func newFusion(config Config) (domain.Fusion, error) {
	engaged := domain.DefaultEngagedLabels()
	if len(config.EngagedLabels) > 0 {
		labels, err := domain.NewLabelSet(config.EngagedLabels...)
		if err != nil {
			return domain.Fusion{}, fmt.Errorf("engaged labels: %w", err)
		}
		engaged = labels
	}
	fusion, err := domain.NewFusion(config.PoseThreshold, engaged)
	if err != nil {
		return domain.Fusion{}, fmt.Errorf("pose threshold: %w", err)
	}
	return fusion, nil
}

func dialInference(ctx context.Context, addr string, dialTimeout time.Duration) (*gogrpc.ClientConn, error) {
	logf := func(format string, args ...any) {
		log.Printf("inference %s", fmt.Sprintf(format, args...))
	}
	conn, err := platformgrpc.Connect(ctx, platformgrpc.Endpoint{
		Addr:          addr,
		HealthService: inference.ServiceName,
		DialTimeout:   dialTimeout,
	}, logf)
	if err != nil {
		return nil, fmt.Errorf("dial inference gRPC %s: %w", addr, err)
	}
	return conn, nil
}
