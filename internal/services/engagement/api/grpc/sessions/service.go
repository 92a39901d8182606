// Package sessions exposes session lifecycle over gRPC for back-office
// tooling: create a code, inspect a live session, and remove it.
package sessions

import (
	"context"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
	platformgrpc "github.com/Yureshka02/multimodal-student-engagement/internal/platform/grpc"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/session"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "engagement.sessions.v1.SessionService"

// Method names served by the service.
const (
	MethodCreateSession = "CreateSession"
	MethodGetSession    = "GetSession"
	MethodRemoveSession = "RemoveSession"
)

// Service exposes session lifecycle operations backed by a registry.
type Service struct {
	registry *session.Registry
}

// NewService creates a session service over registry.
func NewService(registry *session.Registry) *Service {
	return &Service{registry: registry}
}

// Register installs the service and its health status on server.
func (s *Service) Register(server *gogrpc.Server) {
	platformgrpc.RegisterStructService(server, ServiceName, map[string]platformgrpc.StructHandler{
		MethodCreateSession: s.CreateSession,
		MethodGetSession:    s.GetSession,
		MethodRemoveSession: s.RemoveSession,
	})
	platformgrpc.RegisterHealth(server, ServiceName)
}

// CreateSession allocates a new session code.
func (s *Service) CreateSession(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	created, err := s.registry.Create()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeResourceExhausted, "create session", err).ToGRPCStatus()
	}
	return structpb.NewStruct(map[string]any{"code": created.Code()})
}

// GetSession returns bindings, buffer fill, and the current telemetry for
// one session.
func (s *Service) GetSession(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	code, err := codeFromRequest(in)
	if err != nil {
		return nil, err
	}
	found, ok := s.registry.Lookup(code)
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound, "session not found", map[string]string{"code": code}).ToGRPCStatus()
	}
	info := found.Info()
	return structpb.NewStruct(map[string]any{
		"code":             info.Code,
		"tutorConnected":   info.TutorConnected,
		"studentConnected": info.StudentConnected,
		"bufferedSamples":  info.BufferedSamples,
		"telemetry":        telemetryFields(info.Telemetry),
		"fusion":           fusionFields(s.registry.Fusion()),
	})
}

// RemoveSession deletes a session. Unknown codes succeed.
func (s *Service) RemoveSession(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	code, err := codeFromRequest(in)
	if err != nil {
		return nil, err
	}
	s.registry.Remove(code)
	return &structpb.Struct{}, nil
}

func (s *Service) ready() error {
	if s == nil || s.registry == nil {
		return apperrors.New(apperrors.CodeUnknown, "session registry is not configured").ToGRPCStatus()
	}
	return nil
}

func codeFromRequest(in *structpb.Struct) (string, error) {
	code := session.NormalizeCode(in.GetFields()["code"].GetStringValue())
	if code == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "code is required").ToGRPCStatus()
	}
	return code, nil
}

func fusionFields(f domain.Fusion) map[string]any {
	labels := f.EngagedLabels().Labels()
	engaged := make([]any, len(labels))
	for i, label := range labels {
		engaged[i] = string(label)
	}
	return map[string]any{
		"threshold":     f.Threshold(),
		"engagedLabels": engaged,
	}
}

func telemetryFields(t domain.Telemetry) map[string]any {
	var label any
	if t.FER.Label != "" {
		label = string(t.FER.Label)
	}
	var prob any
	if t.Pose.Probability != nil {
		prob = *t.Pose.Probability
	}
	return map[string]any{
		"ts": float64(t.At.UnixNano()) / 1e9,
		"fer": map[string]any{
			"faceDetected": t.FER.FaceDetected,
			"label":        label,
			"conf":         t.FER.Confidence,
			"color":        string(t.FER.Color),
		},
		"pose": map[string]any{
			"prob":   prob,
			"status": string(t.Pose.Status),
			"color":  string(t.Pose.Color),
		},
		"mouse": map[string]any{
			"active":    t.Mouse.Active,
			"idleMs":    t.Mouse.IdleMs,
			"updatedAt": t.Mouse.UpdatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}
