package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/impulse-study/impulse/internal/backend"
	appI18n "github.com/impulse-study/impulse/internal/i18n"
	"github.com/impulse-study/impulse/internal/model"
	"github.com/impulse-study/impulse/internal/state"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeBackend struct {
	mu        sync.Mutex
	startErr  error
	submitErr error
	healthErr error
	questions []*model.Question
	served    int
	submitted []model.AnswerSubmission
}

func (f *fakeBackend) StartSession(ctx context.Context) (*model.SessionStart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &model.SessionStart{SessionID: "sess-1"}, nil
}

func (f *fakeBackend) GetQuestion(ctx context.Context, difficulty model.Difficulty, sessionID string) (*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.questions[f.served%len(f.questions)]
	f.served++
	return q.Clone(), nil
}

func (f *fakeBackend) SubmitAnswer(ctx context.Context, sub model.AnswerSubmission, sessionID string) (*model.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, sub)
	correct := 0
	for _, s := range f.submitted {
		if s.IsCorrect {
			correct++
		}
	}
	total := len(f.submitted)
	return &model.SubmitResult{
		Explanation: "Force equals mass times acceleration.",
		SessionStats: model.SessionStats{
			TotalQuestions: total,
			CorrectAnswers: correct,
			Accuracy:       float64(correct) / float64(total) * 100,
		},
	}, nil
}

func (f *fakeBackend) GetMotivationNudge(ctx context.Context, sessionID string) (*model.Motivation, error) {
	return &model.Motivation{Message: "Keep pushing!"}, nil
}

func (f *fakeBackend) Health(ctx context.Context) (*model.Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &model.Health{Message: "Impulse API", Version: "1.0.0"}, nil
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{questions: []*model.Question{
		{ID: 1, Text: "What is Newton's second law?", Options: []string{"F=ma", "E=mc2", "p=mv"}, CorrectAnswer: "F=ma", Difficulty: model.DifficultyMedium},
		{ID: 2, Text: "Unit of force?", Options: []string{"Joule", "Newton"}, CorrectAnswer: "Newton", Difficulty: model.DifficultyEasy},
	}}
}

type testServer struct {
	t       *testing.T
	h       *Handler
	srv     *httptest.Server
	client  *http.Client
	backend *fakeBackend
}

func newTestServer(t *testing.T, fb *fakeBackend) *testServer {
	t.Helper()
	h, err := New(fb, model.ClientConfig{
		NudgeDelay:  time.Hour,
		NoticeTTL:   time.Hour,
		VisitorTTL:  time.Hour,
		CORSOrigins: []string{"http://app.example"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	r.Use(h.BasePathMiddleware)
	h.Routes(r)

	srv := httptest.NewServer(r)
	jar, _ := cookiejar.New(nil)
	ts := &testServer{t: t, h: h, srv: srv, client: &http.Client{Jar: jar}, backend: fb}
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return ts
}

func (ts *testServer) get(path string) (int, string) {
	ts.t.Helper()
	resp, err := ts.client.Get(ts.srv.URL + path)
	if err != nil {
		ts.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (ts *testServer) csrf() string {
	u, _ := url.Parse(ts.srv.URL)
	for _, c := range ts.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	return ""
}

// post submits a form with the current CSRF token and follows the redirect.
func (ts *testServer) post(path string, form url.Values) (int, string) {
	ts.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if form.Get("csrf_token") == "" {
		form.Set("csrf_token", ts.csrf())
	}
	resp, err := ts.client.PostForm(ts.srv.URL+path, form)
	if err != nil {
		ts.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (ts *testServer) state() stateResponse {
	ts.t.Helper()
	resp, err := ts.client.Get(ts.srv.URL + "/api/state")
	if err != nil {
		ts.t.Fatalf("GET /api/state: %v", err)
	}
	defer resp.Body.Close()
	var st stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		ts.t.Fatalf("decode state: %v", err)
	}
	return st
}

func TestWelcomeByDefault(t *testing.T) {
	ts := newTestServer(t, newFakeBackend())

	code, body := ts.get("/")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if !strings.Contains(body, "Start Learning") {
		t.Error("welcome page missing start button")
	}
	if ts.h.visitors.count() != 1 {
		t.Errorf("visitors = %d, want 1", ts.h.visitors.count())
	}

	// Same cookie, same visitor.
	ts.get("/")
	if ts.h.visitors.count() != 1 {
		t.Errorf("visitors after second request = %d, want 1", ts.h.visitors.count())
	}
}

func TestQuizFlow(t *testing.T) {
	ts := newTestServer(t, newFakeBackend())
	ts.get("/")

	code, body := ts.post("/session/start", nil)
	if code != http.StatusOK {
		t.Fatalf("start status = %d", code)
	}
	if !strings.Contains(body, "Newton&#39;s second law") {
		t.Fatalf("quiz page missing question:\n%s", body)
	}
	if !strings.Contains(body, "Question 1") {
		t.Error("missing question number")
	}
	if !strings.Contains(body, "Progress: 0/1 questions") {
		t.Error("missing progress line")
	}

	st := ts.state()
	if st.CurrentPage != model.PageQuiz || st.SessionID != "sess-1" {
		t.Errorf("state = %+v", st)
	}
	if !st.Notice.Visible || st.Notice.Message != "Keep pushing!" {
		t.Errorf("notice = %+v, want mount nudge", st.Notice)
	}

	ts.post("/quiz/select", url.Values{"option": {"F=ma"}})
	if got := ts.state().Selected; got != "F=ma" {
		t.Errorf("selected = %q, want F=ma", got)
	}

	_, body = ts.post("/quiz/submit", nil)
	if !strings.Contains(body, "Correct!") {
		t.Error("missing correct feedback")
	}
	if !strings.Contains(body, "Force equals mass times acceleration.") {
		t.Error("missing explanation")
	}
	if !strings.Contains(body, "Progress: 1/2 questions") {
		t.Error("progress not updated from server stats")
	}
	ts.backend.mu.Lock()
	submitted := append([]model.AnswerSubmission(nil), ts.backend.submitted...)
	ts.backend.mu.Unlock()
	if len(submitted) != 1 || !submitted[0].IsCorrect {
		t.Errorf("submitted = %+v", submitted)
	}

	_, body = ts.post("/quiz/next", nil)
	if !strings.Contains(body, "Unit of force?") {
		t.Error("next question not shown")
	}
	st = ts.state()
	if st.Answered || st.Selected != "" {
		t.Errorf("answer state not reset: %+v", st)
	}
	if st.Notice.Visible {
		t.Error("notice should close on next")
	}
}

func TestUnknownOptionRejected(t *testing.T) {
	ts := newTestServer(t, newFakeBackend())
	ts.get("/")
	ts.post("/session/start", nil)

	code, _ := ts.post("/quiz/select", url.Values{"option": {"bogus"}})
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestStartFailureAlertsOnce(t *testing.T) {
	fb := newFakeBackend()
	fb.startErr = &backend.Error{Op: backend.OpStartSession, Wrapped: errors.New("refused")}
	ts := newTestServer(t, fb)
	ts.get("/")

	_, body := ts.post("/session/start", nil)
	if !strings.Contains(body, "Failed to start session. Please try again.") {
		t.Errorf("alert missing:\n%s", body)
	}
	if !strings.Contains(body, "Start Learning") {
		t.Error("should stay on welcome page")
	}

	_, body = ts.get("/")
	if strings.Contains(body, "Failed to start session") {
		t.Error("alert rendered twice")
	}
}

func TestSubmitFailureKeepsSelection(t *testing.T) {
	fb := newFakeBackend()
	fb.submitErr = &backend.Error{Op: backend.OpSubmitAnswer, Status: 500, Wrapped: errors.New("boom")}
	ts := newTestServer(t, fb)
	ts.get("/")
	ts.post("/session/start", nil)
	ts.post("/quiz/select", url.Values{"option": {"p=mv"}})

	_, body := ts.post("/quiz/submit", nil)
	if !strings.Contains(body, "Failed to submit answer. Please try again.") {
		t.Error("submit alert missing")
	}
	st := ts.state()
	if st.Answered || st.Selected != "p=mv" {
		t.Errorf("state after failed submit = %+v", st)
	}
}

func TestReturnToWelcomeKeepsSession(t *testing.T) {
	ts := newTestServer(t, newFakeBackend())
	ts.get("/")
	ts.post("/session/start", nil)

	_, body := ts.post("/quiz/welcome", nil)
	if !strings.Contains(body, "Start Learning") {
		t.Error("welcome page not shown")
	}
	st := ts.state()
	if st.CurrentPage != model.PageWelcome || st.SessionID != "sess-1" {
		t.Errorf("state = %+v", st)
	}
	if st.Notice.Visible {
		t.Error("notice should be closed after leaving the quiz")
	}
}

func TestCSRFRejectsPostWithoutToken(t *testing.T) {
	ts := newTestServer(t, newFakeBackend())
	ts.get("/")

	resp, err := ts.client.PostForm(ts.srv.URL+"/session/start", url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}

	code, _ := ts.post("/session/start", url.Values{"csrf_token": {"forged"}})
	if code != http.StatusForbidden {
		t.Errorf("forged token status = %d, want 403", code)
	}
}

func TestStateCORS(t *testing.T) {
	ts := newTestServer(t, newFakeBackend())

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/state", nil)
	req.Header.Set("Origin", "http://app.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	var st stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.CurrentPage != model.PageWelcome {
		t.Errorf("page = %q, want welcome", st.CurrentPage)
	}
}

func TestHealthz(t *testing.T) {
	fb := newFakeBackend()
	ts := newTestServer(t, fb)

	code, body := ts.get("/healthz")
	if code != http.StatusOK || !strings.Contains(body, "1.0.0") {
		t.Errorf("healthz = %d %s", code, body)
	}

	fb.mu.Lock()
	fb.healthErr = &backend.Error{Op: backend.OpHealth, Wrapped: errors.New("down")}
	fb.mu.Unlock()
	code, body = ts.get("/healthz")
	if code != http.StatusServiceUnavailable || !strings.Contains(body, "Backend is not available") {
		t.Errorf("healthz down = %d %s", code, body)
	}
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	reg := newRegistry(time.Second)
	now := time.Unix(1000, 0)
	reg.now = func() time.Time { return now }

	old, _ := reg.lookup("")
	now = now.Add(10 * time.Minute)
	fresh, _ := reg.lookup("")

	if n := reg.sweep(5 * time.Minute); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, created := reg.lookup(old.id); !created {
		t.Error("old visitor should be gone")
	}
	if _, created := reg.lookup(fresh.id); created {
		t.Error("fresh visitor should survive")
	}
	if n := reg.sweep(0); n != 0 {
		t.Errorf("sweep(0) = %d, want 0", n)
	}
}

func TestUnknownPageRendersWelcome(t *testing.T) {
	ts := newTestServer(t, newFakeBackend())
	ts.get("/")

	ts.h.visitors.mu.Lock()
	for _, v := range ts.h.visitors.visitors {
		v.store.Dispatch(state.SetPage{Page: model.Page("settings")})
	}
	ts.h.visitors.mu.Unlock()

	code, body := ts.get("/")
	if code != http.StatusOK || !strings.Contains(body, "Start Learning") {
		t.Errorf("unknown page = %d, want welcome view", code)
	}
}
