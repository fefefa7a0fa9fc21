package model

import "time"

// Page identifies which top-level view is shown.
type Page string

const (
	PageWelcome Page = "welcome"
	PageQuiz    Page = "quiz"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// SessionStart is the backend's reply to a session start request.
type SessionStart struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
}

// Question is a multiple-choice question as served by the backend.
type Question struct {
	ID            int64      `json:"question_id"`
	Text          string     `json:"question_text"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Difficulty    Difficulty `json:"difficulty"`
	Topic         string     `json:"topic,omitempty"`
	Explanation   string     `json:"explanation,omitempty"`
}

// Clone returns a deep copy of q.
func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	c := *q
	c.Options = append([]string(nil), q.Options...)
	return &c
}

// HasOption reports whether option is one of the question's choices.
func (q *Question) HasOption(option string) bool {
	if q == nil {
		return false
	}
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// AnswerSubmission is the body posted to /questions/submit.
type AnswerSubmission struct {
	QuestionID int64   `json:"question_id"`
	UserAnswer string  `json:"user_answer"`
	IsCorrect  bool    `json:"is_correct"`
	TimeTaken  float64 `json:"time_taken"`
}

// SessionStats is the server-computed aggregate for a session.
type SessionStats struct {
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	Accuracy       float64 `json:"accuracy"`
}

// SubmitResult is the backend's reply to an answer submission.
type SubmitResult struct {
	Explanation  string       `json:"explanation"`
	SessionStats SessionStats `json:"session_stats"`
	// IsCorrect is set when the backend echoes its own verdict.
	IsCorrect *bool `json:"is_correct,omitempty"`
}

// Motivation is a single nudge message.
type Motivation struct {
	Message string `json:"message"`
}

// SessionReport is the payload of /session/stats/{session_id}.
type SessionReport struct {
	SessionID            string     `json:"session_id"`
	TotalQuestions       int        `json:"total_questions"`
	CorrectAnswers       int        `json:"correct_answers"`
	Accuracy             float64    `json:"accuracy"`
	CurrentDifficulty    Difficulty `json:"current_difficulty,omitempty"`
	ConsecutiveCorrect   int        `json:"consecutive_correct"`
	ConsecutiveIncorrect int        `json:"consecutive_incorrect"`
}

// Health is the payload of the backend root endpoint.
type Health struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// ClientConfig holds runtime client parameters set via CLI flags.
type ClientConfig struct {
	APIURL        string
	Lang          string
	NudgeDelay    time.Duration // delay between a submission and the follow-up nudge
	NoticeTTL     time.Duration // how long a nudge stays visible
	VisitorTTL    time.Duration // idle time before a web visitor is dropped
	SecureCookies bool          // Set Secure flag on cookies (disable for local dev)
	CORSOrigins   []string
	BasePath      string // URL prefix for sub-path deployments, e.g. "/ru"
}
