package grpcadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/grpc/status"
)

// ContentType constants for the two grpc-web wire encodings the ingress
// accepts.
const (
	ContentTypeGRPCWeb     = "application/grpc-web"
	ContentTypeGRPCWebText = "application/grpc-web-text"
)

// WebIngress bridges a gRPC-Web request at /grpc-web/{api_name}/{service}/{method}
// into the same dynamic-descriptor dispatch path used by the JSON adapter.
// Only unary calls are bridged; the frame encoder always synthesizes a
// single trailer frame immediately after the response frame.
type WebIngress struct {
	adapter *Adapter
}

// NewWebIngress builds a WebIngress over adapter.
func NewWebIngress(adapter *Adapter) *WebIngress {
	return &WebIngress{adapter: adapter}
}

// Handle decodes r's grpc-web framed body, invokes service.method against
// server within pkg, and writes the grpc-web framed reply to w.
func (w *WebIngress) Handle(ctx context.Context, rw http.ResponseWriter, r *http.Request, server, pkg, service, method string, allow AllowLists) {
	contentType := r.Header.Get("Content-Type")
	textEncoded := strings.HasPrefix(contentType, ContentTypeGRPCWebText)
	if !textEncoded && !strings.HasPrefix(contentType, ContentTypeGRPCWeb) {
		http.Error(rw, "unsupported content type for grpc-web ingress", http.StatusUnsupportedMediaType)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(rw, "failed to read request body", http.StatusBadRequest)
		return
	}

	messageJSON, err := w.decodeRequest(raw, textEncoded)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	req := Request{Method: fmt.Sprintf("%s.%s", service, method), Message: messageJSON}
	reply, callErr := w.adapter.Invoke(ctx, server, pkg, req, allow)

	grpcStatus := 0
	grpcMessage := ""
	var payload []byte
	if callErr != nil {
		grpcStatus = int(statusCodeOf(callErr))
		grpcMessage = ErrorMessage(callErr)
	} else {
		payload = reply
	}

	rw.Header().Set("Content-Type", contentType)
	rw.WriteHeader(http.StatusOK)
	rw.Write(EncodeWebFrame(payload, grpcStatus, grpcMessage, textEncoded))
}

// decodeRequest unwraps the grpc-web frame and converts its protobuf-JSON
// payload into the {"message": ...} shape Invoke expects. The gateway's
// grpc-web bridge carries JSON-encoded messages in the frame body rather than
// binary protobuf, since the dynamic dispatch path already transcodes
// through protojson.
func (w *WebIngress) decodeRequest(raw []byte, textEncoded bool) (json.RawMessage, error) {
	payload, err := DecodeWebFrame(raw, textEncoded)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

// statusCodeOf extracts the raw gRPC status code (not its HTTP mapping) for
// the grpc-status trailer, which must carry the original gRPC semantics.
func statusCodeOf(err error) int32 {
	if st, ok := status.FromError(err); ok {
		return int32(st.Code())
	}
	return int32(2) // codes.Unknown
}
