package server

import (
	"encoding/json"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
)

const (
	frameTypeJoin      = "join_session"
	frameTypeFrame     = "frame"
	frameTypePose      = "pose_features"
	frameTypeMouse     = "mouse"
	frameTypeAck       = "ack"
	frameTypeStatus    = "status"
	frameTypeTelemetry = "telemetry"
	frameTypeError     = "error"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type joinPayload struct {
	Code string `json:"code"`
	Role string `json:"role"`
}

type ackPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type statusPayload struct {
	StudentConnected bool `json:"studentConnected"`
}

type imagePayload struct {
	Code  string `json:"code"`
	Image string `json:"image"`
}

type poseFeaturesPayload struct {
	Code     string          `json:"code"`
	Features json.RawMessage `json:"features"`
}

type mouseEventPayload struct {
	Code   string          `json:"code"`
	Active json.RawMessage `json:"active"`
	IdleMs json.RawMessage `json:"idleMs"`
}

type telemetryPayload struct {
	TS    float64        `json:"ts"`
	FER   ferTelemetry   `json:"fer"`
	Pose  poseTelemetry  `json:"pose"`
	Mouse mouseTelemetry `json:"mouse"`
}

type ferTelemetry struct {
	FaceDetected bool    `json:"faceDetected"`
	Label        *string `json:"label"`
	Conf         float64 `json:"conf"`
	Color        string  `json:"color"`
}

type poseTelemetry struct {
	Prob   *float64 `json:"prob"`
	Status string   `json:"status"`
	Color  string   `json:"color"`
}

type mouseTelemetry struct {
	Active bool  `json:"active"`
	IdleMs int64 `json:"idleMs"`
}

func newTelemetryPayload(t domain.Telemetry) telemetryPayload {
	payload := telemetryPayload{
		TS: float64(t.At.UnixNano()) / 1e9,
		FER: ferTelemetry{
			FaceDetected: t.FER.FaceDetected,
			Conf:         t.FER.Confidence,
			Color:        string(t.FER.Color),
		},
		Pose: poseTelemetry{
			Status: string(t.Pose.Status),
			Color:  string(t.Pose.Color),
		},
		Mouse: mouseTelemetry{
			Active: t.Mouse.Active,
			IdleMs: t.Mouse.IdleMs,
		},
	}
	if t.FER.Label != "" {
		label := string(t.FER.Label)
		payload.FER.Label = &label
	}
	if t.Pose.Probability != nil {
		prob := *t.Pose.Probability
		payload.Pose.Prob = &prob
	}
	return payload
}

// parseFeatures accepts exactly FeatureLen numbers.
func parseFeatures(raw json.RawMessage) (domain.FeatureVector, bool) {
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil || len(values) != domain.FeatureLen {
		return domain.FeatureVector{}, false
	}
	var vec domain.FeatureVector
	copy(vec[:], values)
	return vec, true
}

// truthy follows JSON truthiness: null, false, 0, "", [] and {} are false.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch value := v.(type) {
	case bool:
		return value
	case float64:
		return value != 0
	case string:
		return value != ""
	case []any:
		return len(value) > 0
	case map[string]any:
		return len(value) > 0
	default:
		return false
	}
}

// coerceIdleMs reads a millisecond count. Missing or non-numeric values
// are 0, fractions truncate, and negatives clamp to 0.
func coerceIdleMs(raw json.RawMessage) int64 {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	var f float64
	switch value := v.(type) {
	case float64:
		f = value
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0
		}
		return max(n, 0)
	default:
		return 0
	}
	switch {
	case f <= 0:
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(f)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("engagement: marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
