package grpcadapter

import (
	"errors"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestSplitServiceMethod(t *testing.T) {
	service, method, err := SplitServiceMethod("UserService.CreateUser")
	if err != nil {
		t.Fatalf("SplitServiceMethod: %v", err)
	}
	if service != "UserService" || method != "CreateUser" {
		t.Errorf("got service=%q method=%q, want UserService/CreateUser", service, method)
	}
}

func TestSplitServiceMethod_RejectsMalformed(t *testing.T) {
	cases := []string{"NoMethod", "Trailing.", ".Leading"}
	for _, c := range cases {
		if _, _, err := SplitServiceMethod(c); err == nil {
			t.Errorf("SplitServiceMethod(%q) expected error", c)
		}
	}
}

func TestDefaultPackage_DerivesFromNameAndVersion(t *testing.T) {
	got := DefaultPackage("user-api", "v1")
	want := "user_api_v1_pb2"
	if got != want {
		t.Errorf("DefaultPackage() = %q, want %q", got, want)
	}
}

func TestResolvePackage_ExplicitConfigWins(t *testing.T) {
	pkg, err := ResolvePackage("configured_pkg", "requested_pkg", "api", "v1", nil)
	if err != nil {
		t.Fatalf("ResolvePackage: %v", err)
	}
	if pkg != "configured_pkg" {
		t.Errorf("pkg = %q, want configured_pkg", pkg)
	}
}

func TestResolvePackage_RequestPackageSubjectToAllowList(t *testing.T) {
	_, err := ResolvePackage("", "not_allowed", "api", "v1", []string{"only_this"})
	if err == nil {
		t.Fatal("expected forbidden error for disallowed requested package")
	}
	var forbidden *ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Fatalf("error type = %T, want *ErrForbidden", err)
	}
}

func TestResolvePackage_FallsBackToDerivedDefault(t *testing.T) {
	pkg, err := ResolvePackage("", "", "billing-api", "v2", nil)
	if err != nil {
		t.Fatalf("ResolvePackage: %v", err)
	}
	if pkg != "billing_api_v2_pb2" {
		t.Errorf("pkg = %q, want billing_api_v2_pb2", pkg)
	}
}

func TestAllowLists_RejectsDisallowedMethod(t *testing.T) {
	allow := AllowLists{Methods: []string{"UserService.Get"}}
	if err := allow.allows("pkg", "UserService", "UserService.Create"); err == nil {
		t.Fatal("expected forbidden error")
	}
}

func TestAllowLists_EmptyListsAllowEverything(t *testing.T) {
	var allow AllowLists
	if err := allow.allows("anything", "AnyService", "AnyService.AnyMethod"); err != nil {
		t.Fatalf("allows() = %v, want nil", err)
	}
}

func TestStatusToHTTP_MapsKnownCodes(t *testing.T) {
	cases := map[codes.Code]int{
		codes.OK:               http.StatusOK,
		codes.PermissionDenied: http.StatusForbidden,
		codes.NotFound:         http.StatusNotFound,
		codes.InvalidArgument:  http.StatusBadRequest,
		codes.Unavailable:      http.StatusServiceUnavailable,
		codes.Internal:         http.StatusBadGateway,
	}
	for code, want := range cases {
		err := status.Error(code, "boom")
		if code == codes.OK {
			err = nil
		}
		if got := StatusToHTTP(err); got != want {
			t.Errorf("StatusToHTTP(%v) = %d, want %d", code, got, want)
		}
	}
}

func TestStatusToHTTP_NonGRPCErrorMapsToBadGateway(t *testing.T) {
	if got := StatusToHTTP(errors.New("plain error")); got != http.StatusBadGateway {
		t.Errorf("StatusToHTTP() = %d, want 502", got)
	}
}

func TestIsRetryable_OnlyUnavailable(t *testing.T) {
	if !IsRetryable(status.Error(codes.Unavailable, "down")) {
		t.Error("expected UNAVAILABLE to be retryable")
	}
	if IsRetryable(status.Error(codes.Internal, "broken")) {
		t.Error("expected INTERNAL to not be retryable")
	}
}

func TestWebFrame_RoundtripBinary(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	framed := EncodeWebFrame(payload, 0, "", false)

	decoded, err := DecodeWebFrame(framed, false)
	if err != nil {
		t.Fatalf("DecodeWebFrame: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Errorf("decoded = %q, want %q", decoded, payload)
	}
}

func TestWebFrame_RoundtripTextEncoded(t *testing.T) {
	payload := []byte(`{"a":1}`)
	framed := EncodeWebFrame(payload, 0, "", true)

	decoded, err := DecodeWebFrame(framed, true)
	if err != nil {
		t.Fatalf("DecodeWebFrame: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Errorf("decoded = %q, want %q", decoded, payload)
	}
}

func TestDecodeWebFrame_RejectsTrailerFrame(t *testing.T) {
	trailerOnly := EncodeWebFrame(nil, 0, "", false)
	// The data frame comes first; strip it to leave only the trailer frame.
	dataFrameLen := frameHeaderSize
	trailerFrame := trailerOnly[dataFrameLen:]

	if _, err := DecodeWebFrame(trailerFrame, false); err == nil {
		t.Fatal("expected error decoding a trailer frame as data")
	}
}

func TestDecodeWebFrame_RejectsTooShortBody(t *testing.T) {
	if _, err := DecodeWebFrame([]byte{0x00, 0x01}, false); err == nil {
		t.Fatal("expected error for undersized frame")
	}
}
