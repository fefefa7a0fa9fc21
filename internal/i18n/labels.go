package i18n

import "github.com/impulse-study/impulse/internal/model"

// TierMessageID returns the message ID naming an accuracy tier.
func TierMessageID(t model.AccuracyTier) string {
	switch t {
	case model.TierExcellent:
		return "TierExcellent"
	case model.TierGood:
		return "TierGood"
	case model.TierLearning:
		return "TierLearning"
	default:
		return "TierKeepGoing"
	}
}

// DifficultyMessageID returns the message ID naming a difficulty badge.
func DifficultyMessageID(d model.Difficulty) string {
	switch d {
	case model.DifficultyEasy:
		return "DifficultyEasy"
	case model.DifficultyHard:
		return "DifficultyHard"
	default:
		return "DifficultyMedium"
	}
}
