package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
	"github.com/Yureshka02/multimodal-student-engagement/internal/platform/timeouts"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
)

const tracerName = "github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/inference"

// Options bounds classifier calls.
type Options struct {
	// Timeout is the per-call deadline, including time spent waiting for a
	// concurrency slot. Zero uses timeouts.Inference.
	Timeout time.Duration
	// Concurrency caps in-flight classifier calls across all sessions.
	// Zero or less means one.
	Concurrency int64
}

// Engine runs classifier calls under a deadline and a shared concurrency
// cap, and validates what comes back.
type Engine struct {
	face    FaceClassifier
	pose    PoseClassifier
	slots   *semaphore.Weighted
	timeout time.Duration
	tracer  trace.Tracer
}

// NewEngine wraps face and pose. Nil classifiers are Unavailable.
func NewEngine(face FaceClassifier, pose PoseClassifier, opts Options) *Engine {
	if face == nil {
		face = Unavailable{}
	}
	if pose == nil {
		pose = Unavailable{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = timeouts.Inference
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Engine{
		face:    face,
		pose:    pose,
		slots:   semaphore.NewWeighted(opts.Concurrency),
		timeout: opts.Timeout,
		tracer:  otel.Tracer(tracerName),
	}
}

// ReadFace decodes an image payload and classifies it. A payload that does
// not decode is a no-face reading, not an error.
func (e *Engine) ReadFace(ctx context.Context, payload string) (domain.FaceReading, error) {
	ctx, span := e.tracer.Start(ctx, "inference.face")
	defer span.End()

	img, err := DecodeDataURL(payload)
	if err != nil {
		span.SetAttributes(attribute.Bool("image.decoded", false))
		return domain.NoFace, nil
	}
	span.SetAttributes(
		attribute.Bool("image.decoded", true),
		attribute.String("image.format", img.Format),
	)

	var reading domain.FaceReading
	err = e.call(ctx, func(ctx context.Context) error {
		var callErr error
		reading, callErr = e.face.ClassifyFace(ctx, img)
		return callErr
	})
	if err == nil {
		err = validateReading(reading)
	}
	if err != nil {
		recordError(span, err)
		return domain.FaceReading{}, err
	}
	span.SetAttributes(attribute.Bool("face.detected", reading.FaceDetected))
	if !reading.FaceDetected {
		return domain.NoFace, nil
	}
	return reading, nil
}

// ScoreWindow scores a full pose window.
func (e *Engine) ScoreWindow(ctx context.Context, window []domain.FeatureVector) (float64, error) {
	ctx, span := e.tracer.Start(ctx, "inference.pose", trace.WithAttributes(attribute.Int("window.size", len(window))))
	defer span.End()

	if len(window) != domain.WindowSize {
		err := apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("window has %d samples, want %d", len(window), domain.WindowSize))
		recordError(span, err)
		return 0, err
	}

	var probability float64
	err := e.call(ctx, func(ctx context.Context) error {
		var callErr error
		probability, callErr = e.pose.ScorePose(ctx, window)
		return callErr
	})
	if err == nil && (math.IsNaN(probability) || probability < 0 || probability > 1) {
		err = protocolError(fmt.Sprintf("pose probability %v outside [0,1]", probability))
	}
	if err != nil {
		recordError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Float64("pose.probability", probability))
	return probability, nil
}

// call runs fn under the per-call deadline and a slot from the shared pool.
// Each session's student is served by one read loop, so a session holds at
// most one slot; a saturated pool delays other sessions by at most timeout.
func (e *Engine) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return classifierError(err)
	}
	defer e.slots.Release(1)
	return classifierError(fn(ctx))
}

func validateReading(reading domain.FaceReading) error {
	if !reading.FaceDetected {
		return nil
	}
	if math.IsNaN(reading.Confidence) || reading.Confidence < 0 || reading.Confidence > 1 {
		return protocolError(fmt.Sprintf("face confidence %v outside [0,1]", reading.Confidence))
	}
	if _, err := domain.ParseLabel(string(reading.Label)); err != nil {
		return err
	}
	return nil
}

// classifierError maps transport and context failures onto domain codes.
func classifierError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.CodeClassifierTimeout, "classifier deadline exceeded", err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case grpccodes.DeadlineExceeded:
			return apperrors.Wrap(apperrors.CodeClassifierTimeout, "classifier deadline exceeded", err)
		case grpccodes.InvalidArgument, grpccodes.Internal, grpccodes.Unimplemented, grpccodes.DataLoss:
			return apperrors.Wrap(apperrors.CodeClassifierProtocol, "classifier rejected call", err)
		}
	}
	return apperrors.Wrap(apperrors.CodeClassifierUnavailable, "classifier call failed", err)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
}
