// Package session holds live engagement sessions: the per-code record, its
// pose window, and the registry that binds connections to roles.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"
)

const maxCodeAttempts = 64

// ErrCodeSpaceExhausted is returned when no free code was found.
var ErrCodeSpaceExhausted = errors.New("no free session code")

// Option configures a Registry.
type Option func(*Registry)

// WithCodeSource replaces the random code generator.
func WithCodeSource(next func() (string, error)) Option {
	return func(r *Registry) {
		if next != nil {
			r.nextCode = next
		}
	}
}

// WithClock replaces the wall clock used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// JoinResult describes a successful role binding.
type JoinResult struct {
	Session *Session
	// StudentConnected is set for tutor joins.
	StudentConnected bool
	// Tutor is set for student joins when a tutor is bound.
	Tutor ConnID
}

// Departure reports a session in which a connection held the student slot.
type Departure struct {
	Code  string
	Tutor ConnID
}

// Registry stores live sessions by code. Sessions are independent: no
// registry-wide lock is taken outside of code allocation.
type Registry struct {
	fusion   domain.Fusion
	nextCode func() (string, error)
	now      func() time.Time

	sessions sync.Map // code -> *Session
	bindings sync.Map // ConnID -> *connBindings
}

type connBindings struct {
	mu    sync.Mutex
	codes map[string]struct{}
}

// NewRegistry returns an empty registry whose sessions derive state with
// fusion.
func NewRegistry(fusion domain.Fusion, opts ...Option) *Registry {
	r := &Registry{
		fusion:   fusion,
		nextCode: NewCode,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a fresh session under a code no live session uses.
func (r *Registry) Create() (*Session, error) {
	for range maxCodeAttempts {
		code, err := r.nextCode()
		if err != nil {
			return nil, fmt.Errorf("generate session code: %w", err)
		}
		candidate := newSession(code, r.fusion, r.now)
		if _, loaded := r.sessions.LoadOrStore(code, candidate); !loaded {
			return candidate, nil
		}
	}
	return nil, ErrCodeSpaceExhausted
}

// Lookup returns the session for code.
func (r *Registry) Lookup(code string) (*Session, bool) {
	value, ok := r.sessions.Load(code)
	if !ok {
		return nil, false
	}
	return value.(*Session), true
}

// Remove deletes the session for code. Unknown codes are ignored.
func (r *Registry) Remove(code string) {
	if value, ok := r.sessions.LoadAndDelete(code); ok {
		value.(*Session).markRemoved()
	}
}

// Fusion returns the settings sessions derive their state with.
func (r *Registry) Fusion() domain.Fusion {
	return r.fusion
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Join binds conn to role in the session for code.
func (r *Registry) Join(code string, role domain.Role, conn ConnID) (JoinResult, error) {
	s, ok := r.Lookup(code)
	if !ok {
		return JoinResult{}, apperrors.WithMetadata(
			apperrors.CodeInvalidCode,
			"unknown session code",
			map[string]string{"code": code},
		)
	}
	if role != domain.RoleTutor && role != domain.RoleStudent {
		return JoinResult{}, apperrors.New(apperrors.CodeInvalidRole, "role must be tutor or student")
	}

	// Index first so a concurrent UnbindAll always finds the binding.
	r.track(conn, code)
	switch role {
	case domain.RoleTutor:
		studentConnected, err := s.bindTutor(conn)
		if err != nil {
			r.untrackUnlessHeld(s, conn, code)
			return JoinResult{}, err
		}
		return JoinResult{Session: s, StudentConnected: studentConnected}, nil
	default:
		tutor, err := s.bindStudent(conn)
		if err != nil {
			r.untrackUnlessHeld(s, conn, code)
			return JoinResult{}, err
		}
		return JoinResult{Session: s, Tutor: tutor}, nil
	}
}

// UnbindAll clears every role conn holds across all sessions and reports the
// sessions whose student slot it vacated.
func (r *Registry) UnbindAll(conn ConnID) []Departure {
	value, ok := r.bindings.LoadAndDelete(conn)
	if !ok {
		return nil
	}
	entry := value.(*connBindings)
	entry.mu.Lock()
	codes := make([]string, 0, len(entry.codes))
	for code := range entry.codes {
		codes = append(codes, code)
	}
	entry.mu.Unlock()

	var departures []Departure
	for _, code := range codes {
		s, ok := r.Lookup(code)
		if !ok {
			continue
		}
		if studentLeft, tutor := s.unbind(conn); studentLeft {
			departures = append(departures, Departure{Code: code, Tutor: tutor})
		}
	}
	return departures
}

// Sweep removes sessions with no bound role whose last activity is older
// than ttl. It returns the number removed.
func (r *Registry) Sweep(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-ttl)
	removed := 0
	r.sessions.Range(func(key, value any) bool {
		s := value.(*Session)
		// A session marked removed rejects binds, so a racing Join fails.
		if s.expireIfIdle(cutoff) {
			r.sessions.CompareAndDelete(key, s)
			removed++
		}
		return true
	})
	return removed
}

// RunRetention sweeps idle sessions until ctx ends. A non-positive ttl
// disables expiry and returns immediately.
func (r *Registry) RunRetention(ctx context.Context, ttl time.Duration, logf func(string, ...any)) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(SweepInterval(ttl))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.Sweep(ttl); removed > 0 && logf != nil {
				logf("engagement: expired idle sessions count=%d live=%d", removed, r.Len())
			}
		}
	}
}

// SweepInterval is min(ttl/4, 1m).
func SweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval <= 0 {
		interval = ttl
	}
	return min(interval, time.Minute)
}

func (r *Registry) track(conn ConnID, code string) {
	value, _ := r.bindings.LoadOrStore(conn, &connBindings{codes: make(map[string]struct{})})
	entry := value.(*connBindings)
	entry.mu.Lock()
	entry.codes[code] = struct{}{}
	entry.mu.Unlock()
}

func (r *Registry) untrackUnlessHeld(s *Session, conn ConnID, code string) {
	if !s.holds(conn) {
		r.untrack(conn, code)
	}
}

func (r *Registry) untrack(conn ConnID, code string) {
	value, ok := r.bindings.Load(conn)
	if !ok {
		return
	}
	entry := value.(*connBindings)
	entry.mu.Lock()
	delete(entry.codes, code)
	entry.mu.Unlock()
}
