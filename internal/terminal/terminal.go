// Package terminal is a line-oriented front end for the quiz. It reads
// single-letter commands and prints the same screens the web client shows.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	appI18n "github.com/impulse-study/impulse/internal/i18n"
	"github.com/impulse-study/impulse/internal/model"
	"github.com/impulse-study/impulse/internal/notify"
	"github.com/impulse-study/impulse/internal/quiz"
	"github.com/impulse-study/impulse/internal/state"
)

// Backend is what a play session talks to.
type Backend interface {
	quiz.API
	quiz.Starter
}

// Config tunes a play session. Zero values get defaults.
type Config struct {
	NudgeDelay time.Duration
	NoticeTTL  time.Duration
	Clock      notify.Clock
	Logger     *slog.Logger
}

// Player runs the interactive loop.
type Player struct {
	api Backend
	in  *bufio.Scanner
	out *syncWriter
	cfg Config

	store    *state.Store
	notifier *notify.Notifier
	quiz     *quiz.Quiz
}

// New creates a player reading commands from in and printing to out.
func New(api Backend, in io.Reader, out io.Writer, cfg Config) *Player {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = notify.RealClock
	}
	p := &Player{
		api:   api,
		in:    bufio.NewScanner(in),
		out:   &syncWriter{w: out},
		cfg:   cfg,
		store: state.NewStore(),
	}
	return p
}

// Run shows the welcome screen and loops until q, end of input or ctx ends.
func (p *Player) Run(ctx context.Context) error {
	p.notifier = notify.New(
		notify.WithClock(p.cfg.Clock),
		notify.WithTTL(p.cfg.NoticeTTL),
		notify.WithOnChange(func(n notify.Notice) {
			if n.Visible {
				p.out.printf("\n>> %s: %s\n", appI18n.T(ctx, "Motivation"), n.Message)
			}
		}),
	)
	defer p.endQuiz()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.store.State().CurrentPage == model.PageQuiz && p.quiz != nil {
			done, err := p.quizLoop(ctx)
			if err != nil || done {
				return err
			}
			continue
		}

		p.renderWelcome(ctx)
		line, ok := p.readLine()
		if !ok {
			return nil
		}
		if strings.EqualFold(line, "q") {
			p.out.println(appI18n.T(ctx, "Goodbye"))
			return nil
		}
		if err := quiz.StartSession(ctx, p.api, p.store); err != nil {
			p.alert(ctx, err)
			continue
		}
		p.startQuiz(ctx)
	}
}

func (p *Player) startQuiz(ctx context.Context) {
	p.endQuiz()
	p.quiz = quiz.New(p.api, p.store, p.notifier, quiz.Config{
		NudgeDelay: p.cfg.NudgeDelay,
		Clock:      p.cfg.Clock,
		Logger:     p.cfg.Logger,
		Alerter:    quiz.AlertFunc(func(err error) { p.alert(ctx, err) }),
	})
	// Mount failures are alerted; the quiz screen offers a retry.
	_ = p.quiz.Mount(ctx)
}

func (p *Player) endQuiz() {
	if p.quiz != nil {
		p.quiz.Close()
		p.quiz = nil
	}
}

// quizLoop handles one command. It reports done when the user quit.
func (p *Player) quizLoop(ctx context.Context) (bool, error) {
	p.renderQuiz(ctx)
	line, ok := p.readLine()
	if !ok {
		return true, nil
	}
	cmd := strings.ToLower(line)

	switch cmd {
	case "":
		return false, nil
	case "q":
		p.out.println(appI18n.T(ctx, "Goodbye"))
		return true, nil
	case "w":
		p.quiz.ReturnToWelcome()
		p.quiz = nil
		return false, nil
	case "x":
		p.quiz.CloseNotice()
		return false, nil
	case "s":
		p.report(ctx, p.quiz.Submit(ctx))
		return false, nil
	case "n":
		p.report(ctx, p.quiz.Next(ctx))
		return false, nil
	}

	option, ok := p.optionFor(cmd)
	if !ok {
		p.out.println(appI18n.Td(ctx, "UnknownCommand", map[string]any{"Cmd": line}))
		return false, nil
	}
	_, err := p.quiz.Select(option)
	p.report(ctx, err)
	return false, nil
}

// optionFor maps "a".."z" or "1".."26" to the current question's option.
func (p *Player) optionFor(cmd string) (string, bool) {
	q := p.quiz.View().Question
	if q == nil || cmd == "" {
		return "", false
	}
	idx := -1
	if n, err := strconv.Atoi(cmd); err == nil {
		idx = n - 1
	} else if len(cmd) == 1 && cmd[0] >= 'a' && cmd[0] <= 'z' {
		idx = int(cmd[0] - 'a')
	}
	if idx < 0 || idx >= len(q.Options) {
		return "", false
	}
	return q.Options[idx], true
}

// report prints guard errors. Backend failures were already alerted.
func (p *Player) report(ctx context.Context, err error) {
	switch {
	case err == nil:
	case errors.Is(err, quiz.ErrNoSelection):
		p.out.println(appI18n.T(ctx, "SelectFirst"))
	case errors.Is(err, quiz.ErrNotAnswered):
		p.out.println(appI18n.T(ctx, "AnswerFirst"))
	case errors.Is(err, quiz.ErrAlreadyAnswered), errors.Is(err, quiz.ErrBusy):
		p.cfg.Logger.Debug("command ignored", "error", err)
	}
}

func (p *Player) alert(ctx context.Context, err error) {
	p.out.printf("! %s\n", appI18n.AlertText(ctx, err))
}

func (p *Player) readLine() (string, bool) {
	p.out.printf("> ")
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}

func (p *Player) renderWelcome(ctx context.Context) {
	st := p.store.State()
	p.out.printf("\n%s\n%s\n%s\n\n", appI18n.T(ctx, "AppTitle"), appI18n.T(ctx, "Tagline"), appI18n.T(ctx, "Subtitle"))
	for _, f := range []string{"Adaptive", "Feedback", "Motivation"} {
		p.out.printf("  * %s: %s\n", appI18n.T(ctx, "Feature"+f+"Title"), appI18n.T(ctx, "Feature"+f+"Text"))
	}
	if st.UserStats.TotalQuestions > 0 {
		p.out.printf("\n%s\n", appI18n.Tp(ctx, "QuestionsAnswered", st.UserStats.TotalQuestions))
	}
	p.out.printf("\n%s\n", appI18n.T(ctx, "PlayWelcomeHelp"))
}

func (p *Player) renderQuiz(ctx context.Context) {
	v := p.quiz.View()
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s | %s\n", appI18n.T(ctx, "AppTitle"),
		appI18n.Td(ctx, "QuestionN", map[string]any{"N": v.Progress.Current + 1}))
	fmt.Fprintf(&b, "%s | %s | %s\n",
		appI18n.Td(ctx, "ProgressLine", map[string]any{"Current": v.Progress.Current, "Total": v.Progress.Total}),
		appI18n.Td(ctx, "AccuracyLine", map[string]any{"Accuracy": fmt.Sprintf("%.1f", v.Progress.Accuracy)}),
		appI18n.T(ctx, appI18n.TierMessageID(v.Progress.Tier)),
	)

	if v.Question == nil {
		if v.Loading {
			b.WriteString(appI18n.T(ctx, "LoadingFirstQuestion") + "\n")
		} else {
			b.WriteString(appI18n.T(ctx, "NoQuestion") + "\n")
		}
		p.out.printf("%s", b.String())
		return
	}

	fmt.Fprintf(&b, "\n[%s] %s\n", appI18n.T(ctx, appI18n.DifficultyMessageID(v.Question.Difficulty)), v.Question.Text)
	for i, opt := range v.Question.Options {
		mark := " "
		switch {
		case v.Answered && opt == v.Question.CorrectAnswer:
			mark = "+"
		case v.Answered && opt == v.Selected:
			mark = "x"
		case opt == v.Selected:
			mark = "*"
		}
		fmt.Fprintf(&b, " %s %c) %s\n", mark, 'A'+i, opt)
	}

	if v.Answered {
		verdict := appI18n.T(ctx, "Incorrect")
		if v.Correct {
			verdict = appI18n.T(ctx, "Correct")
		}
		fmt.Fprintf(&b, "\n%s\n", verdict)
		if v.Explanation != "" {
			fmt.Fprintf(&b, "%s\n", v.Explanation)
		}
	}
	fmt.Fprintf(&b, "\n%s\n", appI18n.T(ctx, "PlayQuizHelp"))
	p.out.printf("%s", b.String())
}

// syncWriter serializes writes from the input loop and notifier timers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func (s *syncWriter) println(msg string) {
	s.printf("%s\n", msg)
}
