// Package quiz drives a quiz run: question fetch, answer selection,
// submission, feedback and the next-question loop.
package quiz

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/impulse-study/impulse/internal/model"
	"github.com/impulse-study/impulse/internal/notify"
	"github.com/impulse-study/impulse/internal/state"
)

// DefaultNudgeDelay separates a successful submission from the follow-up
// motivation fetch.
const DefaultNudgeDelay = 2 * time.Second

// RequestedDifficulty is sent with every question request. The backend
// adapts the real level on its own.
const RequestedDifficulty = model.DifficultyMedium

var (
	ErrNoSelection     = errors.New("no answer selected")
	ErrAlreadyAnswered = errors.New("question already answered")
	ErrNotAnswered     = errors.New("question not answered yet")
	ErrBusy            = errors.New("a request is already in progress")
	ErrNoQuestion      = errors.New("no question loaded")
	ErrUnknownOption   = errors.New("option is not part of the current question")
	ErrClosed          = errors.New("quiz closed")
)

// Phase is where the quiz is in its question loop.
type Phase string

const (
	PhaseLoading           Phase = "loading"
	PhaseAwaitingSelection Phase = "awaiting_selection"
	PhaseAnswerSelected    Phase = "answer_selected"
	PhaseAnswered          Phase = "answered"
	PhaseFailed            Phase = "failed" // question fetch failed and nothing to show
	PhaseExited            Phase = "exited"
)

// API is the subset of the backend the quiz uses.
type API interface {
	GetQuestion(ctx context.Context, difficulty model.Difficulty, sessionID string) (*model.Question, error)
	SubmitAnswer(ctx context.Context, sub model.AnswerSubmission, sessionID string) (*model.SubmitResult, error)
	GetMotivationNudge(ctx context.Context, sessionID string) (*model.Motivation, error)
}

// Alerter shows a blocking, user-facing error.
type Alerter interface {
	Alert(err error)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(error)

func (f AlertFunc) Alert(err error) { f(err) }

// Config holds optional collaborators. Zero values get defaults.
type Config struct {
	NudgeDelay time.Duration
	Clock      notify.Clock
	Logger     *slog.Logger
	Alerter    Alerter
}

// View is a snapshot of everything the quiz screen renders.
type View struct {
	Phase       Phase
	SessionID   string
	Question    *model.Question
	Selected    string
	Answered    bool
	Correct     bool
	Explanation string
	Loading     bool
	Stats       model.SessionStats
	Progress    model.Progress
	Notice      notify.Notice
}

// Quiz owns the view-local state of one quiz screen and writes shared
// state through the store. All network calls are tied to the quiz
// lifetime; after Close late responses are dropped.
type Quiz struct {
	api        API
	store      *state.Store
	notifier   *notify.Notifier
	alerts     Alerter
	logger     *slog.Logger
	clock      notify.Clock
	nudgeDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	phase       Phase
	mounted     bool
	closed      bool
	loading     bool
	loaded      bool // this quiz has fetched at least one question
	selected    string
	answered    bool
	correct     bool
	explanation string
	nudges      map[uint64]notify.Timer // pending follow-up nudges
	nudgeSeq    uint64
}

// New creates a quiz bound to store and notifier.
func New(api API, store *state.Store, notifier *notify.Notifier, cfg Config) *Quiz {
	if cfg.NudgeDelay <= 0 {
		cfg.NudgeDelay = DefaultNudgeDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = notify.RealClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Alerter == nil {
		logger := cfg.Logger
		cfg.Alerter = AlertFunc(func(err error) { logger.Warn("alert", "error", err) })
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Quiz{
		api:        api,
		store:      store,
		notifier:   notifier,
		alerts:     cfg.Alerter,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
		nudgeDelay: cfg.NudgeDelay,
		ctx:        ctx,
		cancel:     cancel,
		phase:      PhaseLoading,
		nudges:     make(map[uint64]notify.Timer),
	}
}

// Mount loads the first question and a motivation nudge concurrently. It
// runs once; later calls return nil. The returned error is the question
// fetch error, which has already been alerted.
func (q *Quiz) Mount(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.mounted {
		q.mu.Unlock()
		return nil
	}
	q.mounted = true
	q.mu.Unlock()

	return q.reload(ctx, true)
}

// Mounted reports whether Mount has run.
func (q *Quiz) Mounted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mounted
}

// Select picks an answer. It reports whether the selection changed; once
// the question is answered, or while a request is in flight, it is a no-op.
func (q *Quiz) Select(option string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if q.answered || q.loading {
		return false, nil
	}
	question := q.store.State().CurrentQuestion
	if !q.loaded || question == nil {
		return false, ErrNoQuestion
	}
	if !question.HasOption(option) {
		return false, ErrUnknownOption
	}
	q.selected = option
	q.phase = PhaseAnswerSelected
	return true, nil
}

// Submit sends the selected answer. Correctness is computed locally before
// the call. On success the shared stats are replaced by the server's
// snapshot and a follow-up nudge is scheduled. On failure the user is
// alerted and the selection stays in place for a retry.
func (q *Quiz) Submit(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.answered {
		q.mu.Unlock()
		return ErrAlreadyAnswered
	}
	if q.loading {
		q.mu.Unlock()
		return ErrBusy
	}
	if q.selected == "" {
		q.mu.Unlock()
		return ErrNoSelection
	}
	snap := q.store.State()
	if !q.loaded || snap.CurrentQuestion == nil {
		q.mu.Unlock()
		return ErrNoQuestion
	}
	localCorrect := q.selected == snap.CurrentQuestion.CorrectAnswer
	sub := model.AnswerSubmission{
		QuestionID: snap.CurrentQuestion.ID,
		UserAnswer: q.selected,
		IsCorrect:  localCorrect,
		TimeTaken:  0,
	}
	q.loading = true
	q.store.Dispatch(state.SetLoading{Loading: true})
	q.mu.Unlock()

	callCtx, done := q.scope(ctx)
	res, err := q.api.SubmitAnswer(callCtx, sub, snap.SessionID)
	done()

	q.mu.Lock()
	q.loading = false
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		q.store.Dispatch(state.SetLoading{Loading: false}, state.SetError{Error: err.Error()})
		q.mu.Unlock()
		q.alerts.Alert(err)
		return err
	}

	verdict := localCorrect
	if res.IsCorrect != nil {
		if *res.IsCorrect != localCorrect {
			q.logger.Warn("backend verdict differs from local check",
				"question_id", sub.QuestionID,
				"local", localCorrect,
				"backend", *res.IsCorrect,
			)
		}
		verdict = *res.IsCorrect
	}
	q.answered = true
	q.correct = verdict
	q.explanation = res.Explanation
	q.phase = PhaseAnswered
	q.store.Dispatch(
		state.SetStats{Stats: res.SessionStats},
		state.SetLoading{Loading: false},
		state.SetError{Error: ""},
	)
	q.scheduleNudgeLocked()
	q.mu.Unlock()
	return nil
}

// Next dismisses the notice and loads another question. It is allowed after
// an answer, or to retry after a failed first load.
func (q *Quiz) Next(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if !q.answered && q.phase != PhaseFailed {
		q.mu.Unlock()
		return ErrNotAnswered
	}
	q.mu.Unlock()

	q.notifier.Close()
	return q.reload(ctx, false)
}

// ReturnToWelcome switches the page back to welcome and ends the quiz.
// Session and stats stay in the store.
func (q *Quiz) ReturnToWelcome() {
	q.store.Dispatch(state.SetPage{Page: model.PageWelcome})
	q.Close()
}

// CloseNotice hides the motivation notice.
func (q *Quiz) CloseNotice() {
	q.notifier.Close()
}

// Close cancels in-flight requests and pending nudges. It is idempotent.
func (q *Quiz) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.phase = PhaseExited
	for id, t := range q.nudges {
		t.Stop()
		delete(q.nudges, id)
	}
	q.mu.Unlock()

	q.cancel()
	q.notifier.Close()
}

// Phase returns the current phase.
func (q *Quiz) Phase() Phase {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.phase
}

// View returns a render snapshot.
func (q *Quiz) View() View {
	q.mu.Lock()
	defer q.mu.Unlock()
	snap := q.store.State()
	question := snap.CurrentQuestion
	if !q.loaded {
		// Left over from an earlier quiz; never shown or answerable here.
		question = nil
	}
	return View{
		Phase:       q.phase,
		SessionID:   snap.SessionID,
		Question:    question,
		Selected:    q.selected,
		Answered:    q.answered,
		Correct:     q.correct,
		Explanation: q.explanation,
		Loading:     q.loading,
		Stats:       snap.UserStats,
		Progress:    model.ProgressFor(snap.UserStats),
		Notice:      q.notifier.Current(),
	}
}

// reload fetches a question, optionally alongside a motivation nudge.
func (q *Quiz) reload(ctx context.Context, withMotivation bool) error {
	q.mu.Lock()
	if q.loading {
		q.mu.Unlock()
		return ErrBusy
	}
	prev := q.phase
	q.phase = PhaseLoading
	q.loading = true
	q.store.Dispatch(state.SetLoading{Loading: true})
	sessionID := q.store.State().SessionID
	q.mu.Unlock()

	callCtx, done := q.scope(ctx)
	defer done()

	var (
		wg      sync.WaitGroup
		fetched *model.Question
		qErr    error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		fetched, qErr = q.api.GetQuestion(callCtx, RequestedDifficulty, sessionID)
	}()
	if withMotivation {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.loadMotivation(callCtx, sessionID)
		}()
	}
	wg.Wait()

	q.mu.Lock()
	q.loading = false
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if qErr != nil {
		if !q.loaded {
			q.phase = PhaseFailed
		} else {
			q.phase = prev
		}
		q.store.Dispatch(state.SetLoading{Loading: false}, state.SetError{Error: qErr.Error()})
		q.mu.Unlock()
		q.alerts.Alert(qErr)
		return qErr
	}

	q.store.Dispatch(
		state.SetQuestion{Question: fetched},
		state.SetLoading{Loading: false},
		state.SetError{Error: ""},
	)
	q.loaded = true
	q.selected = ""
	q.answered = false
	q.correct = false
	q.explanation = ""
	q.phase = PhaseAwaitingSelection
	q.mu.Unlock()
	return nil
}

// loadMotivation fetches a nudge and shows it. Failures are logged only.
func (q *Quiz) loadMotivation(ctx context.Context, sessionID string) {
	m, err := q.api.GetMotivationNudge(ctx, sessionID)
	if err != nil {
		q.logger.Warn("motivation fetch failed", "error", err)
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.store.Dispatch(state.SetMotivation{Message: m.Message})
	q.mu.Unlock()

	q.notifier.Show(m.Message)
}

// scheduleNudgeLocked arms a follow-up nudge. A fired timer removes itself
// from q.nudges. Callers hold q.mu.
func (q *Quiz) scheduleNudgeLocked() {
	q.nudgeSeq++
	id := q.nudgeSeq
	q.nudges[id] = q.clock.AfterFunc(q.nudgeDelay, func() {
		q.mu.Lock()
		_, pending := q.nudges[id]
		delete(q.nudges, id)
		q.mu.Unlock()
		if pending {
			q.followUpNudge()
		}
	})
}

// pendingNudges reports how many follow-up nudges are scheduled.
func (q *Quiz) pendingNudges() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.nudges)
}

// followUpNudge runs from the post-submit timer, whatever the phase.
func (q *Quiz) followUpNudge() {
	if q.ctx.Err() != nil {
		return
	}
	q.loadMotivation(q.ctx, q.store.State().SessionID)
}

// scope derives a context that ends with either parent or the quiz.
func (q *Quiz) scope(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(q.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
