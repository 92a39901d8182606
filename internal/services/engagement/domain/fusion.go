package domain

import (
	"fmt"
	"math"
	"strings"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
)

// DefaultThreshold is the engaged probability cut-off.
const DefaultThreshold = 0.5

// Fusion derives snapshot colors and pose status from raw signal values.
type Fusion struct {
	threshold float64
	engaged   LabelSet
}

// NewFusion validates threshold and returns a Fusion that colors labels in
// engaged GREEN.
func NewFusion(threshold float64, engaged LabelSet) (Fusion, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return Fusion{}, apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("pose threshold %v outside [0,1]", threshold))
	}
	return Fusion{threshold: threshold, engaged: engaged}, nil
}

// DefaultFusion uses threshold 0.5 and the neutral/happy/angry GREEN set.
func DefaultFusion() Fusion {
	return Fusion{threshold: DefaultThreshold, engaged: DefaultEngagedLabels()}
}

// Threshold returns the engaged probability cut-off.
func (f Fusion) Threshold() float64 {
	return f.threshold
}

// EngagedLabels returns the expressions that read as GREEN.
func (f Fusion) EngagedLabels() LabelSet {
	return f.engaged
}

// String renders the fusion settings for startup logs.
func (f Fusion) String() string {
	labels := f.engaged.Labels()
	titles := make([]string, len(labels))
	for i, label := range labels {
		titles[i] = label.Title()
	}
	return fmt.Sprintf("threshold=%g engaged=%s", f.threshold, strings.Join(titles, ","))
}

// InitialFER is the snapshot of a session that has seen no frame.
func (f Fusion) InitialFER() FERSnapshot {
	return f.Face(NoFace)
}

// Face turns a classifier reading into a snapshot.
func (f Fusion) Face(reading FaceReading) FERSnapshot {
	if !reading.FaceDetected {
		return FERSnapshot{Color: ColorRed}
	}
	color := ColorYellow
	if f.engaged.Contains(reading.Label) {
		color = ColorGreen
	}
	return FERSnapshot{
		FaceDetected: true,
		Label:        reading.Label,
		Confidence:   reading.Confidence,
		Color:        color,
	}
}

// Forced is the pose snapshot while no face is detected.
func (f Fusion) Forced() PoseSnapshot {
	return PoseSnapshot{Status: StatusForcedNotEngaged, Color: ColorRed}
}

// WarmingUp is the pose snapshot for a window holding n < WindowSize samples.
func (f Fusion) WarmingUp(n int) PoseSnapshot {
	return PoseSnapshot{Status: WarmingUpStatus(n), Color: ColorGray}
}

// Score classifies a pose probability against the threshold.
func (f Fusion) Score(probability float64) PoseSnapshot {
	p := probability
	if p >= f.threshold {
		return PoseSnapshot{Probability: &p, Status: StatusEngaged, Color: ColorGreen}
	}
	return PoseSnapshot{Probability: &p, Status: StatusNotEngaged, Color: ColorRed}
}

// Pose derives the pose snapshot that needs no classifier call. ok is false
// when the window is full and a face is present, meaning the window must be
// scored.
func (f Fusion) Pose(buffered int, faceDetected bool) (snapshot PoseSnapshot, ok bool) {
	if !faceDetected {
		return f.Forced(), true
	}
	if buffered < WindowSize {
		return f.WarmingUp(buffered), true
	}
	return PoseSnapshot{}, false
}
