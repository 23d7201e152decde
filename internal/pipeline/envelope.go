package pipeline

import (
	"encoding/json"
	"net/http"

	gwerrors "github.com/cedros-gateway/gateway/internal/errors"
)

// envelope is the normalized response object of §6, produced at pipeline
// step 15 whenever STRICT_RESPONSE_ENVELOPE is on.
type envelope struct {
	StatusCode      int               `json:"status_code"`
	ResponseHeaders map[string]string `json:"response_headers"`
	Response        json.RawMessage   `json:"response,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
}

// writeUpstreamResponse renders a successful upstream result, either wrapped
// in the normalized envelope or passed through transparently depending on
// strict.
func writeUpstreamResponse(w http.ResponseWriter, strict bool, requestID string, status int, headers http.Header, body []byte) {
	if !strict {
		for k, vs := range headers {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set("X-Request-ID", requestID)
		w.WriteHeader(status)
		w.Write(body)
		return
	}

	respHeaders := map[string]string{"request_id": requestID}
	for k := range headers {
		respHeaders[k] = headers.Get(k)
	}

	var rawBody json.RawMessage
	if len(body) > 0 {
		if json.Valid(body) {
			rawBody = json.RawMessage(body)
		} else {
			encoded, _ := json.Marshal(string(body))
			rawBody = encoded
		}
	}

	env := envelope{StatusCode: status, ResponseHeaders: respHeaders, Response: rawBody}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// writeStepError renders a pipeline short-circuit error, either as the
// platform's standard ErrorResponse (non-strict) or folded into the
// envelope's error_code/error_message pair (strict), per §7's
// "error responses always include the correlation id" rule.
func writeStepError(w http.ResponseWriter, strict bool, requestID string, code gwerrors.ErrorCode, message string, details map[string]interface{}) {
	status := code.HTTPStatus()
	w.Header().Set("X-Request-ID", requestID)

	if !strict {
		gwerrors.WriteError(w, code, message, details)
		return
	}

	env := envelope{
		StatusCode:      status,
		ResponseHeaders: map[string]string{"request_id": requestID},
		ErrorCode:        string(code),
		ErrorMessage:     message,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}
