package session

import (
	"sync"
	"time"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
)

// ConnID identifies one live client connection.
type ConnID string

// Delivery is a telemetry snapshot addressed to the tutor bound when it was
// taken. Tutor is empty when no tutor was bound.
type Delivery struct {
	Code      string
	Tutor     ConnID
	Telemetry domain.Telemetry
}

// PoseStep is the outcome of appending a pose sample. When Score is false
// the step carries the delivery to emit. Otherwise Window must be scored and
// the result passed to ApplyPoseScore with Seq.
type PoseStep struct {
	Delivery Delivery
	Score    bool
	Window   []domain.FeatureVector
	Seq      uint64
}

// Info is a point-in-time view of a session for inspection.
type Info struct {
	Code             string
	TutorConnected   bool
	StudentConnected bool
	BufferedSamples  int
	Telemetry        domain.Telemetry
}

// Session is the mutable record behind one session code. All access goes
// through its methods, which hold the session lock.
type Session struct {
	code   string
	fusion domain.Fusion
	now    func() time.Time

	mu           sync.Mutex
	tutor        ConnID
	student      ConnID
	window       Window
	fer          domain.FERSnapshot
	pose         domain.PoseSnapshot
	mouse        domain.MouseSnapshot
	poseSeq      uint64
	poseScored   uint64
	lastActivity time.Time
	removed      bool
}

func newSession(code string, fusion domain.Fusion, now func() time.Time) *Session {
	created := now()
	return &Session{
		code:         code,
		fusion:       fusion,
		now:          now,
		fer:          fusion.InitialFER(),
		pose:         fusion.Forced(),
		mouse:        domain.MouseSnapshot{UpdatedAt: created},
		lastActivity: created,
	}
}

// Code returns the immutable session code.
func (s *Session) Code() string {
	return s.code
}

func (s *Session) bindTutor(conn ConnID) (studentConnected bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return false, s.removedError()
	}
	s.tutor = conn
	s.lastActivity = s.now()
	return s.student != "", nil
}

func (s *Session) bindStudent(conn ConnID) (ConnID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return "", s.removedError()
	}
	if s.student != "" && s.student != conn {
		return "", apperrors.WithMetadata(
			apperrors.CodeStudentAlreadyConnected,
			"student slot is held by another connection",
			map[string]string{"code": s.code},
		)
	}
	s.student = conn
	s.lastActivity = s.now()
	return s.tutor, nil
}

// unbind clears every slot conn holds. When the student slot was cleared
// it returns the tutor to notify.
func (s *Session) unbind(conn ConnID) (studentLeft bool, tutor ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tutor == conn {
		s.tutor = ""
	}
	if s.student == conn {
		s.student = ""
		studentLeft = true
	}
	s.lastActivity = s.now()
	return studentLeft, s.tutor
}

// IsStudent reports whether conn holds the student slot.
func (s *Session) IsStudent(conn ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn != "" && s.student == conn
}

func (s *Session) holds(conn ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tutor == conn || s.student == conn
}

// ApplyFace stores a FER reading from conn. A reading without a face forces
// the pose override. ok is false when conn is not the bound student.
func (s *Session) ApplyFace(conn ConnID, reading domain.FaceReading) (Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorizedLocked(conn) {
		return Delivery{}, false
	}
	s.fer = s.fusion.Face(reading)
	if !s.fer.FaceDetected {
		s.pose = s.fusion.Forced()
	}
	return s.deliveryLocked(), true
}

// AppendPose buffers one pose sample from conn and derives the pose state
// that needs no classifier call. ok is false when conn is not the bound
// student.
func (s *Session) AppendPose(conn ConnID, sample domain.FeatureVector) (PoseStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorizedLocked(conn) {
		return PoseStep{}, false
	}
	s.window.Append(sample)
	s.poseSeq++

	if snapshot, ok := s.fusion.Pose(s.window.Len(), s.fer.FaceDetected); ok {
		s.pose = snapshot
		return PoseStep{Delivery: s.deliveryLocked()}, true
	}
	return PoseStep{Score: true, Window: s.window.Samples(), Seq: s.poseSeq}, true
}

// ApplyPoseScore stores a classifier probability for the window taken at
// seq. The result is discarded when conn lost the student slot, the face
// disappeared, or a newer window was already scored.
func (s *Session) ApplyPoseScore(conn ConnID, seq uint64, probability float64) (Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorizedLocked(conn) || !s.fer.FaceDetected || seq <= s.poseScored {
		return Delivery{}, false
	}
	s.poseScored = seq
	s.pose = s.fusion.Score(probability)
	return s.deliveryLocked(), true
}

// ApplyMouse records a mouse activity report from conn.
func (s *Session) ApplyMouse(conn ConnID, active bool, idleMs int64) (Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorizedLocked(conn) {
		return Delivery{}, false
	}
	if idleMs < 0 {
		idleMs = 0
	}
	s.mouse = domain.MouseSnapshot{Active: active, IdleMs: idleMs, UpdatedAt: s.now()}
	return s.deliveryLocked(), true
}

// Info returns a consistent view of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Code:             s.code,
		TutorConnected:   s.tutor != "",
		StudentConnected: s.student != "",
		BufferedSamples:  s.window.Len(),
		Telemetry:        s.telemetryLocked(),
	}
}

// expireIfIdle marks the session removed when no role is bound and it has
// been inactive since cutoff. A removed session accepts no further binds.
func (s *Session) expireIfIdle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed || s.tutor != "" || s.student != "" || !s.lastActivity.Before(cutoff) {
		return false
	}
	s.removed = true
	return true
}

func (s *Session) markRemoved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = true
}

func (s *Session) removedError() error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidCode,
		"session was removed",
		map[string]string{"code": s.code},
	)
}

func (s *Session) authorizedLocked(conn ConnID) bool {
	if conn == "" || s.student != conn {
		return false
	}
	s.lastActivity = s.now()
	return true
}

func (s *Session) deliveryLocked() Delivery {
	return Delivery{Code: s.code, Tutor: s.tutor, Telemetry: s.telemetryLocked()}
}

func (s *Session) telemetryLocked() domain.Telemetry {
	return domain.Telemetry{
		At:    s.now(),
		FER:   s.fer,
		Pose:  s.pose,
		Mouse: s.mouse,
	}
}
