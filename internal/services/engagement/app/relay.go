package server

import (
	"context"
	"encoding/json"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/session"
)

const tracerName = "github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/app"

// Inference runs the external classifiers for the relay.
type Inference interface {
	ReadFace(ctx context.Context, payload string) (domain.FaceReading, error)
	ScoreWindow(ctx context.Context, window []domain.FeatureVector) (float64, error)
}

// relay applies student signals to sessions and pushes the resulting
// telemetry to the bound tutor.
type relay struct {
	registry  *session.Registry
	inference Inference
	peers     *peerDirectory
	tracer    trace.Tracer
}

func newRelay(registry *session.Registry, inference Inference) *relay {
	return &relay{
		registry:  registry,
		inference: inference,
		peers:     &peerDirectory{},
		tracer:    otel.Tracer(tracerName),
	}
}

func (r *relay) join(peer *wsPeer, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		// An unreadable payload carries no usable code.
		r.ack(peer, frame.RequestID, apperrors.CodeInvalidCode)
		return
	}
	code := session.NormalizeCode(payload.Code)

	if _, ok := r.registry.Lookup(code); !ok {
		r.ack(peer, frame.RequestID, apperrors.CodeInvalidCode)
		return
	}
	role, err := domain.ParseRole(payload.Role)
	if err != nil {
		r.ack(peer, frame.RequestID, apperrors.CodeOf(err))
		return
	}

	result, err := r.registry.Join(code, role, peer.id)
	if err != nil {
		log.Printf("engagement: join rejected code=%q role=%s conn=%s err=%v", code, role, peer.id, err)
		r.ack(peer, frame.RequestID, apperrors.CodeOf(err))
		return
	}
	r.ack(peer, frame.RequestID, "")

	switch role {
	case domain.RoleTutor:
		r.sendStatus(peer.id, result.StudentConnected)
	case domain.RoleStudent:
		if result.Tutor != "" {
			r.sendStatus(result.Tutor, true)
		}
	}
}

func (r *relay) frame(ctx context.Context, conn session.ConnID, raw json.RawMessage) {
	var payload imagePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Image == "" {
		return
	}
	s, ok := r.studentSession(conn, payload.Code)
	if !ok {
		return
	}

	ctx, span := r.tracer.Start(ctx, "engagement.frame", trace.WithAttributes(attribute.String("session.code", s.Code())))
	defer span.End()

	reading, err := r.inference.ReadFace(ctx, payload.Image)
	if err != nil {
		log.Printf("engagement: face classifier failed code=%s err=%v", s.Code(), err)
		return
	}
	if delivery, ok := s.ApplyFace(conn, reading); ok {
		r.deliver(delivery)
	}
}

func (r *relay) poseFeatures(ctx context.Context, conn session.ConnID, raw json.RawMessage) {
	var payload poseFeaturesPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	sample, ok := parseFeatures(payload.Features)
	if !ok {
		return
	}
	s, ok := r.studentSession(conn, payload.Code)
	if !ok {
		return
	}

	ctx, span := r.tracer.Start(ctx, "engagement.pose_features", trace.WithAttributes(attribute.String("session.code", s.Code())))
	defer span.End()

	step, ok := s.AppendPose(conn, sample)
	if !ok {
		return
	}
	if !step.Score {
		r.deliver(step.Delivery)
		return
	}

	probability, err := r.inference.ScoreWindow(ctx, step.Window)
	if err != nil {
		log.Printf("engagement: pose classifier failed code=%s err=%v", s.Code(), err)
		return
	}
	if delivery, ok := s.ApplyPoseScore(conn, step.Seq, probability); ok {
		r.deliver(delivery)
	}
}

func (r *relay) mouse(ctx context.Context, conn session.ConnID, raw json.RawMessage) {
	var payload mouseEventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	s, ok := r.studentSession(conn, payload.Code)
	if !ok {
		return
	}

	_, span := r.tracer.Start(ctx, "engagement.mouse", trace.WithAttributes(attribute.String("session.code", s.Code())))
	defer span.End()

	if delivery, ok := s.ApplyMouse(conn, truthy(payload.Active), coerceIdleMs(payload.IdleMs)); ok {
		r.deliver(delivery)
	}
}

// disconnect clears every role conn holds and tells affected tutors the
// student left.
func (r *relay) disconnect(conn session.ConnID) {
	r.peers.remove(conn)
	for _, departure := range r.registry.UnbindAll(conn) {
		if departure.Tutor != "" {
			r.sendStatus(departure.Tutor, false)
		}
	}
}

// studentSession resolves code and checks that conn is its student. Signal
// events from anyone else are dropped without a reply.
func (r *relay) studentSession(conn session.ConnID, rawCode string) (*session.Session, bool) {
	s, ok := r.registry.Lookup(session.NormalizeCode(rawCode))
	if !ok || !s.IsStudent(conn) {
		return nil, false
	}
	return s, true
}

func (r *relay) deliver(delivery session.Delivery) {
	if delivery.Tutor == "" {
		return
	}
	r.send(delivery.Tutor, wsFrame{
		Type:    frameTypeTelemetry,
		Payload: mustJSON(newTelemetryPayload(delivery.Telemetry)),
	})
}

func (r *relay) sendStatus(to session.ConnID, studentConnected bool) {
	r.send(to, wsFrame{
		Type:    frameTypeStatus,
		Payload: mustJSON(statusPayload{StudentConnected: studentConnected}),
	})
}

func (r *relay) ack(peer *wsPeer, requestID string, code apperrors.Code) {
	payload := ackPayload{OK: code == ""}
	if code != "" {
		payload.Error = string(code)
	}
	if err := peer.writeFrame(wsFrame{
		Type:      frameTypeAck,
		RequestID: requestID,
		Payload:   mustJSON(payload),
	}); err != nil {
		log.Printf("engagement: ack delivery failed conn=%s err=%v", peer.id, err)
	}
}

func (r *relay) send(to session.ConnID, frame wsFrame) {
	peer, ok := r.peers.get(to)
	if !ok {
		return
	}
	if err := peer.writeFrame(frame); err != nil {
		log.Printf("engagement: %s delivery failed conn=%s err=%v", frame.Type, to, err)
	}
}

func writeWSError(peer *wsPeer, requestID string, code apperrors.Code, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      frameTypeError,
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      string(code),
				Message:   message,
				Retryable: code == apperrors.CodeResourceExhausted,
			},
		}),
	})
}
