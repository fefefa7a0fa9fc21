package handler

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	appI18n "github.com/impulse-study/impulse/internal/i18n"
	"github.com/impulse-study/impulse/internal/model"
	"github.com/impulse-study/impulse/internal/quiz"
	"github.com/impulse-study/impulse/internal/state"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageData is what every page template receives.
type pageData struct {
	Ctx      context.Context
	Lang     string
	BasePath string
	CSRF     string
	Alerts   []string
	State    state.State
	Quiz     quiz.View
	Progress model.Progress
}

type pages struct {
	byName map[string]*template.Template
}

func parsePages() (*pages, error) {
	funcs := template.FuncMap{
		"t":      appI18n.T,
		"td":     translateWith,
		"tp":     appI18n.Tp,
		"letter": optionLetter,
		"tier":   appI18n.TierMessageID,
		"diff":   appI18n.DifficultyMessageID,
		"add":    func(a, b int) int { return a + b },
	}

	p := &pages{byName: make(map[string]*template.Template)}
	for _, name := range []string{"welcome", "quiz"} {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		p.byName[name] = tmpl
	}
	return p, nil
}

func (p *pages) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	tmpl, ok := p.byName[name]
	if !ok {
		http.Error(w, "unknown page "+name, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		slog.Error("render error", "page", name, "error", err)
	}
}

func (h *Handler) pageData(r *http.Request, v *visitor, q *quiz.Quiz) pageData {
	ctx := r.Context()
	st := v.store.State()
	data := pageData{
		Ctx:      ctx,
		Lang:     appI18n.Lang(ctx),
		BasePath: model.BasePathFromContext(ctx),
		CSRF:     model.CSRFTokenFromContext(ctx),
		State:    st,
		Progress: model.ProgressFor(st.UserStats),
	}
	if q != nil {
		data.Quiz = q.View()
		data.Progress = data.Quiz.Progress
	}
	for _, err := range v.takeAlerts() {
		data.Alerts = append(data.Alerts, appI18n.AlertText(ctx, err))
	}
	return data
}

// translateWith takes alternating key/value pairs as template data.
func translateWith(ctx context.Context, msgID string, kv ...any) string {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			data[k] = kv[i+1]
		}
	}
	return appI18n.Td(ctx, msgID, data)
}

func optionLetter(i int) string {
	if i < 0 || i >= 26 {
		return "?"
	}
	return string(rune('A' + i))
}
