package limiter

import (
	"context"
	"errors"

	"github.com/cedros-gateway/gateway/internal/store"
)

// errInsufficientCredits is returned by the MutateOne callback in
// enforceCredits to abort the update when the balance is already exhausted;
// it never escapes enforceCredits itself.
var errInsufficientCredits = errors.New("limiter: insufficient credits")

// enforceCredits locates the user's credit entry for the API's configured
// api_credit_group and atomically decrements available_credits by one; a
// missing entry or a non-positive balance fails the request. The read and
// the decrement happen inside a single store.MutateOne call so two
// concurrent requests against the same balance can never both observe a
// positive balance and both succeed. Public APIs never reach this enforcer
// (checked by the caller before invoking it).
func (l *Limiter) enforceCredits(ctx context.Context, req Request) error {
	enabled, _ := req.API["api_credits_enabled"].(bool)
	group, _ := req.API["api_credit_group"].(string)
	if !enabled || group == "" {
		return nil
	}

	filter := store.Filter{"username": req.Username, "credit_group": group}
	_, err := l.store.MutateOne(ctx, store.CollectionUserCredits, filter, func(doc store.Doc) (store.Doc, error) {
		available, _ := doc["available_credits"].(float64)
		if available <= 0 {
			return nil, errInsufficientCredits
		}
		doc["available_credits"] = available - 1
		return doc, nil
	})
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, errInsufficientCredits) {
		l.observeReject("credits", req.Username)
		return ErrCreditsExhausted
	}
	if err != nil {
		return err
	}
	return nil
}
