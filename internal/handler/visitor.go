package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/impulse-study/impulse/internal/notify"
	"github.com/impulse-study/impulse/internal/quiz"
	"github.com/impulse-study/impulse/internal/state"
)

const visitorCookieName = "impulse_visitor"

// visitor is one browser. It owns its own store, notifier and quiz.
type visitor struct {
	id       string
	store    *state.Store
	notifier *notify.Notifier

	mu       sync.Mutex
	quiz     *quiz.Quiz
	alerts   []error
	lastSeen time.Time
}

func (v *visitor) currentQuiz() *quiz.Quiz {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.quiz
}

// ensureQuiz returns the running quiz, creating one with build if needed.
func (v *visitor) ensureQuiz(build func(*visitor) *quiz.Quiz) *quiz.Quiz {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.quiz == nil {
		v.quiz = build(v)
	}
	return v.quiz
}

// endQuiz closes and forgets the running quiz.
func (v *visitor) endQuiz() {
	v.mu.Lock()
	q := v.quiz
	v.quiz = nil
	v.mu.Unlock()
	if q != nil {
		q.Close()
	}
}

func (v *visitor) pushAlert(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, err)
}

// takeAlerts returns queued alerts and clears the queue.
func (v *visitor) takeAlerts() []error {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.alerts
	v.alerts = nil
	return out
}

func (v *visitor) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *visitor) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

// registry tracks live visitors by cookie ID.
type registry struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	noticeTTL time.Duration
	now       func() time.Time
}

func newRegistry(noticeTTL time.Duration) *registry {
	return &registry{
		visitors:  make(map[string]*visitor),
		noticeTTL: noticeTTL,
		now:       time.Now,
	}
}

// lookup returns the visitor for id, creating a new one when id is unknown.
// The second result reports whether a new visitor was created.
func (r *registry) lookup(id string) (*visitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if v, ok := r.visitors[id]; ok {
		v.touch(now)
		return v, false
	}
	v := &visitor{
		id:       uuid.NewString(),
		store:    state.NewStore(),
		notifier: notify.New(notify.WithTTL(r.noticeTTL)),
		lastSeen: now,
	}
	r.visitors[v.id] = v
	slog.Debug("new visitor", "visitor", v.id)
	return v, true
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// sweep drops visitors idle for longer than maxIdle and returns how many
// were removed. A non-positive maxIdle disables sweeping.
func (r *registry) sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*visitor
	for id, v := range r.visitors {
		if v.idleSince().Before(cutoff) {
			stale = append(stale, v)
			delete(r.visitors, id)
		}
	}
	r.mu.Unlock()

	for _, v := range stale {
		v.endQuiz()
		v.notifier.Close()
	}
	if len(stale) > 0 {
		slog.Info("swept idle visitors", "count", len(stale))
	}
	return len(stale)
}

func (r *registry) closeAll() {
	r.mu.Lock()
	all := make([]*visitor, 0, len(r.visitors))
	for _, v := range r.visitors {
		all = append(all, v)
	}
	r.visitors = make(map[string]*visitor)
	r.mu.Unlock()

	for _, v := range all {
		v.endQuiz()
		v.notifier.Close()
	}
}

type visitorCtxKey struct{}

func visitorFromContext(ctx context.Context) *visitor {
	v, ok := ctx.Value(visitorCtxKey{}).(*visitor)
	if !ok {
		panic("handler: no visitor in context; route is missing visitorMiddleware")
	}
	return v
}

// visitorMiddleware resolves the visitor cookie and injects the visitor and
// its store into the request context.
func (h *Handler) visitorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(visitorCookieName); err == nil {
			id = c.Value
		}
		v, created := h.visitors.lookup(id)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     visitorCookieName,
				Value:    v.id,
				Path:     h.cookiePath(),
				HttpOnly: true,
				Secure:   h.config.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), visitorCtxKey{}, v)
		ctx = state.WithStore(ctx, v.store)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}
