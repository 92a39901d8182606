package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
	platformgrpc "github.com/Yureshka02/multimodal-student-engagement/internal/platform/grpc"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
)

// ServiceName is the gRPC service exposed by the inference sidecar. Its
// health status gates the sidecar connection.
const ServiceName = "engagement.inference.v1.InferenceService"

const (
	methodClassifyFace = "ClassifyFace"
	methodScorePose    = "ScorePose"
)

// Remote calls the inference sidecar over gRPC.
type Remote struct {
	conn gogrpc.ClientConnInterface
}

// NewRemote wraps an established sidecar connection.
func NewRemote(conn gogrpc.ClientConnInterface) *Remote {
	return &Remote{conn: conn}
}

// ClassifyFace sends the encoded image to the sidecar.
func (r *Remote) ClassifyFace(ctx context.Context, img Image) (domain.FaceReading, error) {
	req, err := structpb.NewStruct(map[string]any{
		"image":  base64.StdEncoding.EncodeToString(img.Data),
		"format": img.Format,
	})
	if err != nil {
		return domain.FaceReading{}, fmt.Errorf("build face request: %w", err)
	}
	resp, err := platformgrpc.InvokeStruct(ctx, r.conn, platformgrpc.FullMethod(ServiceName, methodClassifyFace), req)
	if err != nil {
		return domain.FaceReading{}, err
	}
	return faceReadingFromStruct(resp)
}

// ScorePose sends the pose window to the sidecar.
func (r *Remote) ScorePose(ctx context.Context, window []domain.FeatureVector) (float64, error) {
	rows := make([]any, len(window))
	for i, sample := range window {
		row := make([]any, len(sample))
		for j, v := range sample {
			row[j] = v
		}
		rows[i] = row
	}
	req, err := structpb.NewStruct(map[string]any{"window": rows})
	if err != nil {
		return 0, fmt.Errorf("build pose request: %w", err)
	}
	resp, err := platformgrpc.InvokeStruct(ctx, r.conn, platformgrpc.FullMethod(ServiceName, methodScorePose), req)
	if err != nil {
		return 0, err
	}
	probability, ok := numberField(resp, "probability")
	if !ok {
		return 0, protocolError("pose response has no numeric probability")
	}
	return probability, nil
}

// Server is implemented by inference sidecars.
type Server interface {
	PoseClassifier
	FaceClassifier
}

// RegisterServer exposes classifiers as the sidecar service on registrar.
// It lets a Go sidecar, or a test double, speak the relay's wire format.
func RegisterServer(registrar gogrpc.ServiceRegistrar, impl Server) {
	platformgrpc.RegisterStructService(registrar, ServiceName, map[string]platformgrpc.StructHandler{
		methodClassifyFace: func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			data, err := base64.StdEncoding.DecodeString(req.GetFields()["image"].GetStringValue())
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "decode image field", err).ToGRPCStatus()
			}
			reading, err := impl.ClassifyFace(ctx, Image{Data: data, Format: req.GetFields()["format"].GetStringValue()})
			if err != nil {
				return nil, statusError(err)
			}
			return structpb.NewStruct(map[string]any{
				"faceDetected": reading.FaceDetected,
				"label":        string(reading.Label),
				"confidence":   reading.Confidence,
			})
		},
		methodScorePose: func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			window, err := windowFromStruct(req)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "decode window field", err).ToGRPCStatus()
			}
			probability, err := impl.ScorePose(ctx, window)
			if err != nil {
				return nil, statusError(err)
			}
			return structpb.NewStruct(map[string]any{"probability": probability})
		},
	})
}

func faceReadingFromStruct(resp *structpb.Struct) (domain.FaceReading, error) {
	detected, ok := resp.GetFields()["faceDetected"].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return domain.FaceReading{}, protocolError("face response has no faceDetected flag")
	}
	if !detected.BoolValue {
		return domain.NoFace, nil
	}
	label, err := domain.ParseLabel(resp.GetFields()["label"].GetStringValue())
	if err != nil {
		return domain.FaceReading{}, err
	}
	confidence, ok := numberField(resp, "confidence")
	if !ok {
		return domain.FaceReading{}, protocolError("face response has no numeric confidence")
	}
	return domain.FaceReading{FaceDetected: true, Label: label, Confidence: confidence}, nil
}

func windowFromStruct(req *structpb.Struct) ([]domain.FeatureVector, error) {
	rows := req.GetFields()["window"].GetListValue().GetValues()
	window := make([]domain.FeatureVector, len(rows))
	for i, row := range rows {
		values := row.GetListValue().GetValues()
		if len(values) != domain.FeatureLen {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(values), domain.FeatureLen)
		}
		for j, v := range values {
			window[i][j] = v.GetNumberValue()
		}
	}
	return window, nil
}

func numberField(s *structpb.Struct, name string) (float64, bool) {
	v, ok := s.GetFields()[name].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return v.NumberValue, true
}

func statusError(err error) error {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.ToGRPCStatus()
	}
	return err
}

func protocolError(message string) error {
	return apperrors.New(apperrors.CodeClassifierProtocol, message)
}
