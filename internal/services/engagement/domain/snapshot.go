package domain

import (
	"fmt"
	"time"
)

const (
	// WindowSize is the number of pose samples the pose classifier scores.
	WindowSize = 60
	// FeatureLen is the length of one pose feature vector.
	FeatureLen = 52
)

// FeatureVector is one pose sample.
type FeatureVector [FeatureLen]float64

// Color summarizes a signal's engagement implication.
type Color string

const (
	ColorRed    Color = "RED"
	ColorGreen  Color = "GREEN"
	ColorYellow Color = "YELLOW"
	// ColorGray means not enough data yet.
	ColorGray Color = "GRAY"
)

// PoseStatus tags the pose snapshot.
type PoseStatus string

const (
	StatusEngaged          PoseStatus = "ENGAGED"
	StatusNotEngaged       PoseStatus = "NOT_ENGAGED"
	StatusForcedNotEngaged PoseStatus = "FORCED_NOT_ENGAGED"
)

// WarmingUpStatus reports a partially filled window of n samples.
func WarmingUpStatus(n int) PoseStatus {
	return PoseStatus(fmt.Sprintf("WARMING_UP (%d/%d)", n, WindowSize))
}

// FaceReading is what a FER classifier observed in one frame.
type FaceReading struct {
	FaceDetected bool
	Label        Label
	Confidence   float64
}

// NoFace is the reading for an undecodable image or an empty frame.
var NoFace = FaceReading{}

// FERSnapshot is the last facial expression state of a session.
// Label is empty when no face was detected.
type FERSnapshot struct {
	FaceDetected bool
	Label        Label
	Confidence   float64
	Color        Color
}

// PoseSnapshot is the last pose-derived state of a session.
// Probability is nil unless the full window was scored.
type PoseSnapshot struct {
	Probability *float64
	Status      PoseStatus
	Color       Color
}

// Forced reports whether the snapshot is the no-face override.
func (p PoseSnapshot) Forced() bool {
	return p.Status == StatusForcedNotEngaged
}

// MouseSnapshot is the last mouse activity report of a session.
type MouseSnapshot struct {
	Active    bool
	IdleMs    int64
	UpdatedAt time.Time
}

// Telemetry is the composite state pushed to a tutor.
type Telemetry struct {
	At    time.Time
	FER   FERSnapshot
	Pose  PoseSnapshot
	Mouse MouseSnapshot
}
