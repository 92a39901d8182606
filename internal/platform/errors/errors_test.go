package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("join: %w", New(CodeStudentAlreadyConnected, "student slot taken"))

	if !stderrors.Is(err, New(CodeStudentAlreadyConnected, "")) {
		t.Fatal("expected code match through wrapping")
	}
	if stderrors.Is(err, New(CodeInvalidCode, "")) {
		t.Fatal("expected different codes not to match")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("wrap: %w", New(CodeInvalidRole, "bad role"))); got != CodeInvalidRole {
		t.Fatalf("code = %q, want %q", got, CodeInvalidRole)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := stderrors.New("deadline")
	err := Wrap(CodeClassifierTimeout, "pose classifier", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "pose classifier: deadline" {
		t.Fatalf("error = %q", err.Error())
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	cases := map[Code]codes.Code{
		CodeInvalidCode:             codes.NotFound,
		CodeNotFound:                codes.NotFound,
		CodeInvalidRole:             codes.InvalidArgument,
		CodeInvalidArgument:         codes.InvalidArgument,
		CodeStudentAlreadyConnected: codes.AlreadyExists,
		CodeResourceExhausted:       codes.ResourceExhausted,
		CodeClassifierUnavailable:   codes.Unavailable,
		CodeClassifierTimeout:       codes.DeadlineExceeded,
		CodeClassifierProtocol:      codes.Internal,
		CodeUnknown:                 codes.Internal,
	}
	for code, want := range cases {
		if got := code.GRPCCode(); got != want {
			t.Fatalf("%s maps to %s, want %s", code, got, want)
		}
	}
}

func TestToGRPCStatusAttachesErrorInfo(t *testing.T) {
	err := WithMetadata(CodeNotFound, "session not found", map[string]string{"code": "AB12CD"}).ToGRPCStatus()

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status, got %T", err)
	}
	if st.Code() != codes.NotFound {
		t.Fatalf("status code = %s, want %s", st.Code(), codes.NotFound)
	}
	var info *errdetails.ErrorInfo
	for _, detail := range st.Details() {
		if d, ok := detail.(*errdetails.ErrorInfo); ok {
			info = d
		}
	}
	if info == nil {
		t.Fatal("expected ErrorInfo detail")
	}
	if info.GetReason() != string(CodeNotFound) {
		t.Fatalf("reason = %q", info.GetReason())
	}
	if info.GetMetadata()["code"] != "AB12CD" {
		t.Fatalf("metadata = %v", info.GetMetadata())
	}
}
