package domain

import (
	"testing"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
)

func TestFusionFaceColors(t *testing.T) {
	fusion := DefaultFusion()

	tests := []struct {
		name    string
		reading FaceReading
		want    Color
	}{
		{name: "no face", reading: NoFace, want: ColorRed},
		{name: "neutral", reading: FaceReading{FaceDetected: true, Label: LabelNeutral, Confidence: 0.9}, want: ColorGreen},
		{name: "happy", reading: FaceReading{FaceDetected: true, Label: LabelHappy, Confidence: 0.6}, want: ColorGreen},
		{name: "angry", reading: FaceReading{FaceDetected: true, Label: LabelAngry, Confidence: 0.4}, want: ColorGreen},
		{name: "sad", reading: FaceReading{FaceDetected: true, Label: LabelSad, Confidence: 0.7}, want: ColorYellow},
		{name: "surprise", reading: FaceReading{FaceDetected: true, Label: LabelSurprise, Confidence: 0.7}, want: ColorYellow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := fusion.Face(tt.reading)
			if snap.Color != tt.want {
				t.Fatalf("color = %s, want %s", snap.Color, tt.want)
			}
			if snap.FaceDetected != tt.reading.FaceDetected {
				t.Fatalf("faceDetected = %v", snap.FaceDetected)
			}
		})
	}
}

func TestFusionNoFaceClearsLabel(t *testing.T) {
	snap := DefaultFusion().Face(FaceReading{FaceDetected: false, Label: LabelHappy, Confidence: 0.8})
	if snap.Label != "" || snap.Confidence != 0 {
		t.Fatalf("expected empty label and zero confidence, got %+v", snap)
	}
}

func TestFusionPoseDerivation(t *testing.T) {
	fusion := DefaultFusion()

	snap, ok := fusion.Pose(WindowSize, false)
	if !ok || !snap.Forced() || snap.Color != ColorRed || snap.Probability != nil {
		t.Fatalf("expected forced override without face, got %+v ok=%v", snap, ok)
	}

	snap, ok = fusion.Pose(59, true)
	if !ok {
		t.Fatal("expected warming up snapshot")
	}
	if snap.Status != "WARMING_UP (59/60)" || snap.Color != ColorGray || snap.Probability != nil {
		t.Fatalf("unexpected warming up snapshot %+v", snap)
	}

	if _, ok := fusion.Pose(WindowSize, true); ok {
		t.Fatal("expected full window with face to require scoring")
	}
}

func TestFusionScoreThreshold(t *testing.T) {
	fusion := DefaultFusion()

	engaged := fusion.Score(0.5)
	if engaged.Status != StatusEngaged || engaged.Color != ColorGreen {
		t.Fatalf("expected ENGAGED at threshold, got %+v", engaged)
	}
	if engaged.Probability == nil || *engaged.Probability != 0.5 {
		t.Fatalf("probability = %v", engaged.Probability)
	}

	notEngaged := fusion.Score(0.49)
	if notEngaged.Status != StatusNotEngaged || notEngaged.Color != ColorRed {
		t.Fatalf("expected NOT_ENGAGED below threshold, got %+v", notEngaged)
	}
}

func TestNewFusionCustomConfig(t *testing.T) {
	labels, err := NewLabelSet("Sad", " surprise ")
	if err != nil {
		t.Fatalf("label set: %v", err)
	}
	fusion, err := NewFusion(0.8, labels)
	if err != nil {
		t.Fatalf("new fusion: %v", err)
	}
	if got := fusion.Score(0.7).Status; got != StatusNotEngaged {
		t.Fatalf("status = %s, want %s", got, StatusNotEngaged)
	}
	if got := fusion.Face(FaceReading{FaceDetected: true, Label: LabelSad}).Color; got != ColorGreen {
		t.Fatalf("sad color = %s, want GREEN", got)
	}
	if got := fusion.Face(FaceReading{FaceDetected: true, Label: LabelHappy}).Color; got != ColorYellow {
		t.Fatalf("happy color = %s, want YELLOW", got)
	}
}

func TestNewFusionRejectsThreshold(t *testing.T) {
	for _, threshold := range []float64{-0.1, 1.1} {
		_, err := NewFusion(threshold, DefaultEngagedLabels())
		if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
			t.Fatalf("threshold %v: expected INVALID_ARGUMENT, got %v", threshold, err)
		}
	}
}

func TestFusionString(t *testing.T) {
	if got := DefaultFusion().String(); got != "threshold=0.5 engaged=Angry,Happy,Neutral" {
		t.Fatalf("string = %q", got)
	}
	engaged, err := NewLabelSet("surprise")
	if err != nil {
		t.Fatalf("label set: %v", err)
	}
	fusion, err := NewFusion(0.75, engaged)
	if err != nil {
		t.Fatalf("new fusion: %v", err)
	}
	if got := fusion.String(); got != "threshold=0.75 engaged=Surprise" {
		t.Fatalf("string = %q", got)
	}
	if !fusion.EngagedLabels().Contains(LabelSurprise) || fusion.Threshold() != 0.75 {
		t.Fatalf("unexpected settings %s", fusion)
	}
}
