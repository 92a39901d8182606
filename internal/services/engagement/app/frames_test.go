package server

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
)

func TestTruthy(t *testing.T) {
	tests := map[string]bool{
		`true`:    true,
		`false`:   false,
		`null`:    false,
		`0`:       false,
		`1`:       true,
		`""`:      false,
		`"no"`:    true,
		`[]`:      false,
		`[0]`:     true,
		`{}`:      false,
		`{"a":1}`: true,
	}
	for raw, want := range tests {
		if got := truthy(json.RawMessage(raw)); got != want {
			t.Fatalf("truthy(%s) = %v, want %v", raw, got, want)
		}
	}
	if truthy(nil) {
		t.Fatal("expected missing value to be false")
	}
}

func TestCoerceIdleMs(t *testing.T) {
	tests := map[string]int64{
		`1500`:   1500,
		`12.9`:   12,
		`-40`:    0,
		`"2500"`: 2500,
		`"abc"`:  0,
		`null`:   0,
		`true`:   0,
		`1e300`:  math.MaxInt64,
	}
	for raw, want := range tests {
		if got := coerceIdleMs(json.RawMessage(raw)); got != want {
			t.Fatalf("coerceIdleMs(%s) = %d, want %d", raw, got, want)
		}
	}
}

func TestParseFeatures(t *testing.T) {
	values := make([]float64, domain.FeatureLen)
	values[51] = 0.25
	raw, _ := json.Marshal(values)
	vec, ok := parseFeatures(raw)
	if !ok || vec[51] != 0.25 {
		t.Fatalf("parseFeatures = %v, %v", vec[51], ok)
	}
	for _, bad := range []string{`[1,2,3]`, `"x"`, `null`, `[` + string(raw[1:len(raw)-1]) + `,1]`} {
		if _, ok := parseFeatures(json.RawMessage(bad)); ok {
			t.Fatalf("expected %s to be rejected", bad)
		}
	}
}

func TestTelemetryPayloadNulls(t *testing.T) {
	fusion := domain.DefaultFusion()
	raw := mustJSON(newTelemetryPayload(domain.Telemetry{
		At:   time.Unix(1700000000, 500_000_000),
		FER:  fusion.InitialFER(),
		Pose: fusion.WarmingUp(3),
	}))

	var decoded struct {
		TS   json.RawMessage `json:"ts"`
		FER  map[string]any  `json:"fer"`
		Pose map[string]any  `json:"pose"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode telemetry: %v", err)
	}
	if v, ok := decoded.FER["label"]; !ok || v != nil {
		t.Fatalf("fer.label = %v (present %v), want null", v, ok)
	}
	if v, ok := decoded.Pose["prob"]; !ok || v != nil {
		t.Fatalf("pose.prob = %v (present %v), want null", v, ok)
	}
	if decoded.Pose["status"] != "WARMING_UP (3/60)" || decoded.Pose["color"] != "GRAY" {
		t.Fatalf("pose = %v", decoded.Pose)
	}
	if string(decoded.TS) != "1700000000.5" {
		t.Fatalf("ts = %s", decoded.TS)
	}
}
