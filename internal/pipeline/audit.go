package pipeline

import (
	"context"
	"net/http"

	"github.com/cedros-gateway/gateway/internal/logger"
)

// auditIfModification emits a structured audit log entry for any proxied
// call whose HTTP method mutates upstream state, per §4.10 step 17 ("emit
// audit event for modification-class platform paths") and §7's "every catch
// emits a structured audit log with correlation id" propagation policy.
func (p *Pipeline) auditIfModification(ctx context.Context, r *http.Request, st *requestState, status int) {
	if !isModification(r.Method) {
		return
	}
	log := logger.FromContext(ctx)
	event := log.Info()
	if status >= 400 {
		event = log.Warn()
	}
	event.
		Str("request_id", st.requestID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("api", st.shape.APIName+"/"+st.shape.APIVersion).
		Str("username", usernameOf(st.claims)).
		Int("status", status).
		Msg("pipeline.modification_audit")
}

func isModification(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
