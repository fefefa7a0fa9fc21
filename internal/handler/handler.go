package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/impulse-study/impulse/internal/model"
	"github.com/impulse-study/impulse/internal/notify"
	"github.com/impulse-study/impulse/internal/quiz"
	"github.com/impulse-study/impulse/internal/state"
)

// Backend is the part of the API client the web front end needs.
type Backend interface {
	quiz.API
	quiz.Starter
	Health(ctx context.Context) (*model.Health, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	backend  Backend
	config   model.ClientConfig
	pages    *pages
	visitors *registry
}

// New creates a new Handler.
func New(b Backend, cfg model.ClientConfig) (*Handler, error) {
	p, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Handler{
		backend:  b,
		config:   cfg,
		pages:    p,
		visitors: newRegistry(cfg.NoticeTTL),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.visitorMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   h.config.CORSOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Content-Type"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
			r.Get("/state", h.handleState)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.csrfMiddleware)
			r.Get("/", h.handleIndex)
			r.Post("/session/start", h.handleStartSession)
			r.Post("/quiz/select", h.handleSelect)
			r.Post("/quiz/submit", h.handleSubmit)
			r.Post("/quiz/next", h.handleNext)
			r.Post("/quiz/welcome", h.handleWelcome)
			r.Post("/quiz/notice/close", h.handleCloseNotice)
		})
	})
}

// BasePathMiddleware injects the configured base path into the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Sweep drops visitors idle for longer than the configured visitor TTL.
func (h *Handler) Sweep() int {
	return h.visitors.sweep(h.config.VisitorTTL)
}

// Close ends every visitor's quiz.
func (h *Handler) Close() {
	h.visitors.closeAll()
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	v := visitorFromContext(r.Context())
	st := state.FromContext(r.Context()).State()

	switch st.CurrentPage {
	case model.PageQuiz:
		q := v.ensureQuiz(h.newQuiz)
		if !q.Mounted() {
			// Errors are queued as alerts by the quiz itself.
			_ = q.Mount(r.Context())
		}
		h.pages.render(w, r, "quiz", h.pageData(r, v, q))
	default:
		h.pages.render(w, r, "welcome", h.pageData(r, v, nil))
	}
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	v := visitorFromContext(r.Context())
	store := state.FromContext(r.Context())

	// A fresh session starts a fresh quiz.
	v.endQuiz()
	if err := quiz.StartSession(r.Context(), h.backend, store); err != nil {
		v.pushAlert(err)
	}
	h.redirectHome(w, r)
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	option := r.FormValue("option")
	h.quizAction(w, r, func(q *quiz.Quiz) error {
		_, err := q.Select(option)
		return err
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.quizAction(w, r, func(q *quiz.Quiz) error {
		return q.Submit(r.Context())
	})
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	h.quizAction(w, r, func(q *quiz.Quiz) error {
		return q.Next(r.Context())
	})
}

func (h *Handler) handleWelcome(w http.ResponseWriter, r *http.Request) {
	v := visitorFromContext(r.Context())
	if q := v.currentQuiz(); q != nil {
		q.ReturnToWelcome()
		v.endQuiz()
	} else {
		state.FromContext(r.Context()).Dispatch(state.SetPage{Page: model.PageWelcome})
	}
	h.redirectHome(w, r)
}

func (h *Handler) handleCloseNotice(w http.ResponseWriter, r *http.Request) {
	visitorFromContext(r.Context()).notifier.Close()
	h.redirectHome(w, r)
}

// quizAction runs fn against the visitor's quiz and redirects home. Backend
// failures are already queued as alerts; state guards are no-ops for the UI.
func (h *Handler) quizAction(w http.ResponseWriter, r *http.Request, fn func(*quiz.Quiz) error) {
	v := visitorFromContext(r.Context())
	q := v.currentQuiz()
	if q == nil {
		h.redirectHome(w, r)
		return
	}

	err := fn(q)
	switch {
	case err == nil:
	case errors.Is(err, quiz.ErrUnknownOption):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		slog.Debug("quiz action rejected", "visitor", v.id, "path", r.URL.Path, "error", err)
	}
	h.redirectHome(w, r)
}

// stateResponse is the JSON view of a visitor.
type stateResponse struct {
	CurrentPage       model.Page         `json:"current_page"`
	SessionID         string             `json:"session_id"`
	CurrentQuestion   *model.Question    `json:"current_question"`
	UserStats         model.SessionStats `json:"user_stats"`
	MotivationMessage string             `json:"motivation_message"`
	IsLoading         bool               `json:"is_loading"`
	Error             string             `json:"error"`
	Phase             quiz.Phase         `json:"phase,omitempty"`
	Selected          string             `json:"selected_answer,omitempty"`
	Answered          bool               `json:"answered"`
	Notice            notify.Notice      `json:"notice"`
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	v := visitorFromContext(r.Context())
	st := state.FromContext(r.Context()).State()

	resp := stateResponse{
		CurrentPage:       st.CurrentPage,
		SessionID:         st.SessionID,
		CurrentQuestion:   st.CurrentQuestion,
		UserStats:         st.UserStats,
		MotivationMessage: st.MotivationMessage,
		IsLoading:         st.IsLoading,
		Error:             st.Error,
		Notice:            v.notifier.Current(),
	}
	if q := v.currentQuiz(); q != nil {
		view := q.View()
		resp.Phase = view.Phase
		resp.Selected = view.Selected
		resp.Answered = view.Answered
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.backend.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (h *Handler) newQuiz(v *visitor) *quiz.Quiz {
	return quiz.New(h.backend, v.store, v.notifier, quiz.Config{
		NudgeDelay: h.config.NudgeDelay,
		Logger:     slog.Default().With("visitor", v.id),
		Alerter:    quiz.AlertFunc(v.pushAlert),
	})
}

func (h *Handler) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.config.BasePath+"/", http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
