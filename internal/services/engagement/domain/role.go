package domain

import (
	"fmt"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
)

// Role is the participant slot a connection occupies in a session.
type Role uint8

const (
	// RoleUnspecified is the zero value and never bound.
	RoleUnspecified Role = iota
	// RoleTutor receives status notices and telemetry.
	RoleTutor
	// RoleStudent submits frame, pose, and mouse signals.
	RoleStudent
)

// ParseRole maps a wire role name onto a Role.
func ParseRole(raw string) (Role, error) {
	switch raw {
	case "tutor":
		return RoleTutor, nil
	case "student":
		return RoleStudent, nil
	default:
		return RoleUnspecified, apperrors.WithMetadata(
			apperrors.CodeInvalidRole,
			fmt.Sprintf("unknown role %q", raw),
			map[string]string{"role": raw},
		)
	}
}

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleTutor:
		return "tutor"
	case RoleStudent:
		return "student"
	default:
		return "unspecified"
	}
}
