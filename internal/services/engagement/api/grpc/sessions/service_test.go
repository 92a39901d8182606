package sessions

import (
	"context"
	"net"
	"strings"
	"testing"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	platformgrpc "github.com/Yureshka02/multimodal-student-engagement/internal/platform/grpc"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/session"
)

func startService(t *testing.T, registry *session.Registry) *gogrpc.ClientConn {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := gogrpc.NewServer()
	NewService(registry).Register(server)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := gogrpc.NewClient("passthrough:///sessions", platformgrpc.ClientOptions(
		gogrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
	)...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func call(t *testing.T, conn *gogrpc.ClientConn, method string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return platformgrpc.InvokeStruct(context.Background(), conn, platformgrpc.FullMethod(ServiceName, method), req)
}

func TestSessionLifecycle(t *testing.T) {
	registry := session.NewRegistry(domain.DefaultFusion())
	conn := startService(t, registry)

	created, err := call(t, conn, MethodCreateSession, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	code := created.GetFields()["code"].GetStringValue()
	if len(code) != session.CodeLength {
		t.Fatalf("code = %q", code)
	}

	s, _ := registry.Lookup(code)
	registry.Join(code, domain.RoleStudent, "student-1")
	s.AppendPose("student-1", domain.FeatureVector{})

	got, err := call(t, conn, MethodGetSession, map[string]any{"code": " " + code + " "})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	fields := got.GetFields()
	if fields["studentConnected"].GetBoolValue() != true || fields["tutorConnected"].GetBoolValue() != false {
		t.Fatalf("bindings = %v", fields)
	}
	if fields["bufferedSamples"].GetNumberValue() != 1 {
		t.Fatalf("bufferedSamples = %v", fields["bufferedSamples"])
	}
	pose := fields["telemetry"].GetStructValue().GetFields()["pose"].GetStructValue().GetFields()
	if pose["status"].GetStringValue() != string(domain.StatusForcedNotEngaged) || pose["color"].GetStringValue() != "RED" {
		t.Fatalf("pose = %v", pose)
	}
	if _, ok := pose["prob"].GetKind().(*structpb.Value_NullValue); !ok {
		t.Fatalf("expected null prob, got %v", pose["prob"])
	}
	fusion := fields["fusion"].GetStructValue().GetFields()
	if fusion["threshold"].GetNumberValue() != 0.5 {
		t.Fatalf("threshold = %v", fusion["threshold"])
	}
	var engaged []string
	for _, v := range fusion["engagedLabels"].GetListValue().GetValues() {
		engaged = append(engaged, v.GetStringValue())
	}
	if strings.Join(engaged, ",") != "angry,happy,neutral" {
		t.Fatalf("engagedLabels = %v", engaged)
	}

	if _, err := call(t, conn, MethodRemoveSession, map[string]any{"code": code}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := call(t, conn, MethodRemoveSession, map[string]any{"code": code}); err != nil {
		t.Fatalf("remove again: %v", err)
	}
	if _, err := call(t, conn, MethodGetSession, map[string]any{"code": code}); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound after remove, got %v", err)
	}
}

func TestGetSessionRequiresCode(t *testing.T) {
	conn := startService(t, session.NewRegistry(domain.DefaultFusion()))
	if _, err := call(t, conn, MethodGetSession, nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestCreateSessionNilRegistry(t *testing.T) {
	var svc *Service
	if _, err := svc.CreateSession(context.Background(), nil); status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestHealthServing(t *testing.T) {
	conn := startService(t, session.NewRegistry(domain.DefaultFusion()))
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("status = %s", resp.GetStatus())
	}
}
