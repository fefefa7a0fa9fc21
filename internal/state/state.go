// Package state holds the client's UI state and the reducer that drives it.
//
// State changes only through Actions. Each action replaces exactly one field
// of the previous State; nothing is merged.
package state

import "github.com/impulse-study/impulse/internal/model"

// State is the single source of truth for what the client shows.
type State struct {
	CurrentPage       model.Page
	SessionID         string
	CurrentQuestion   *model.Question // nil until the first successful fetch
	UserStats         model.SessionStats
	MotivationMessage string
	IsLoading         bool
	Error             string
}

// Initial returns the state the client starts in.
func Initial() State {
	return State{CurrentPage: model.PageWelcome}
}

// Action is a state transition. The set is closed: only the types in this
// package implement it.
type Action interface {
	apply(State) State
}

// SetPage switches the visible page.
type SetPage struct{ Page model.Page }

// SetSession records the backend session token.
type SetSession struct{ SessionID string }

// SetQuestion replaces the current question.
type SetQuestion struct{ Question *model.Question }

// SetStats replaces the stats snapshot wholesale.
type SetStats struct{ Stats model.SessionStats }

// SetMotivation replaces the motivation text.
type SetMotivation struct{ Message string }

// SetLoading toggles the loading flag.
type SetLoading struct{ Loading bool }

// SetError replaces the error text; empty clears it.
type SetError struct{ Error string }

func (a SetPage) apply(s State) State       { s.CurrentPage = a.Page; return s }
func (a SetSession) apply(s State) State    { s.SessionID = a.SessionID; return s }
func (a SetQuestion) apply(s State) State   { s.CurrentQuestion = a.Question.Clone(); return s }
func (a SetStats) apply(s State) State      { s.UserStats = a.Stats; return s }
func (a SetMotivation) apply(s State) State { s.MotivationMessage = a.Message; return s }
func (a SetLoading) apply(s State) State    { s.IsLoading = a.Loading; return s }
func (a SetError) apply(s State) State      { s.Error = a.Error; return s }

// Reduce applies a to s and returns the new state. A nil action leaves s
// unchanged.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}
