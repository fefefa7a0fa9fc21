package model

import "math"

// AccuracyTier buckets an accuracy percentage for display.
type AccuracyTier string

const (
	TierExcellent AccuracyTier = "excellent"
	TierGood      AccuracyTier = "good"
	TierLearning  AccuracyTier = "learning"
	TierKeepGoing AccuracyTier = "keep_going"
)

// TierFor returns the tier for an accuracy percentage.
func TierFor(accuracy float64) AccuracyTier {
	switch {
	case accuracy >= 80:
		return TierExcellent
	case accuracy >= 60:
		return TierGood
	case accuracy >= 40:
		return TierLearning
	default:
		return TierKeepGoing
	}
}

// Progress is the header summary derived from session stats.
type Progress struct {
	Current  int
	Total    int
	Percent  int
	Accuracy float64
	Tier     AccuracyTier
}

// ProgressFor derives the progress summary. The question currently on screen
// counts toward the total, so Total is always one ahead of Current.
func ProgressFor(s SessionStats) Progress {
	p := Progress{
		Current:  s.TotalQuestions,
		Total:    s.TotalQuestions + 1,
		Accuracy: s.Accuracy,
		Tier:     TierFor(s.Accuracy),
	}
	if p.Total > 0 {
		p.Percent = int(math.Round(float64(p.Current) / float64(p.Total) * 100))
	}
	return p
}

// QuestionNumber is the 1-based number of the question on screen.
func (s SessionStats) QuestionNumber() int {
	return s.TotalQuestions + 1
}
