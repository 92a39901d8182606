// Package errors provides the relay's structured error type and its mapping
// onto gRPC status codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Join errors, returned verbatim in join_session acks.
	CodeInvalidCode             Code = "INVALID_CODE"
	CodeInvalidRole             Code = "INVALID_ROLE"
	CodeStudentAlreadyConnected Code = "STUDENT_ALREADY_CONNECTED"

	// Envelope and request errors
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
	CodeNotFound          Code = "NOT_FOUND"

	// Classifier errors
	CodeClassifierUnavailable Code = "CLASSIFIER_UNAVAILABLE"
	CodeClassifierTimeout     Code = "CLASSIFIER_TIMEOUT"
	CodeClassifierProtocol    Code = "CLASSIFIER_PROTOCOL"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidRole,
		CodeInvalidArgument:
		return codes.InvalidArgument

	case CodeInvalidCode,
		CodeNotFound:
		return codes.NotFound

	case CodeStudentAlreadyConnected:
		return codes.AlreadyExists

	case CodeResourceExhausted:
		return codes.ResourceExhausted

	case CodeClassifierUnavailable:
		return codes.Unavailable

	case CodeClassifierTimeout:
		return codes.DeadlineExceeded

	default:
		return codes.Internal
	}
}
