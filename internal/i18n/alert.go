package i18n

import (
	"context"
	"errors"

	"github.com/impulse-study/impulse/internal/backend"
)

var opMessageIDs = map[backend.Op]string{
	backend.OpStartSession:    "FailedStartSession",
	backend.OpGetQuestion:     "FailedFetchQuestion",
	backend.OpSubmitAnswer:    "FailedSubmitAnswer",
	backend.OpGetMotivation:   "FailedFetchMotivation",
	backend.OpGetSessionStats: "FailedFetchStats",
	backend.OpHealth:          "BackendUnavailable",
}

// AlertText renders a user-facing alert for err, e.g.
// "Failed to submit answer. Please try again."
func AlertText(ctx context.Context, err error) string {
	id := "RequestFailed"
	var be *backend.Error
	if errors.As(err, &be) {
		if mid, ok := opMessageIDs[be.Op]; ok {
			id = mid
		}
	}
	return T(ctx, id) + " " + T(ctx, "TryAgain")
}
