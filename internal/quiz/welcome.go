package quiz

import (
	"context"

	"github.com/impulse-study/impulse/internal/model"
	"github.com/impulse-study/impulse/internal/state"
)

// Starter opens backend sessions.
type Starter interface {
	StartSession(ctx context.Context) (*model.SessionStart, error)
}

// StartSession opens a backend session and moves the store to the quiz
// page. A question from an earlier session is cleared. On failure the page is left as is and the error is returned for
// the caller to alert.
func StartSession(ctx context.Context, api Starter, store *state.Store) error {
	store.Dispatch(state.SetLoading{Loading: true})
	res, err := api.StartSession(ctx)
	if err != nil {
		store.Dispatch(state.SetLoading{Loading: false}, state.SetError{Error: err.Error()})
		return err
	}
	store.Dispatch(
		state.SetSession{SessionID: res.SessionID},
		state.SetQuestion{Question: nil},
		state.SetPage{Page: model.PageQuiz},
		state.SetLoading{Loading: false},
		state.SetError{Error: ""},
	)
	return nil
}
