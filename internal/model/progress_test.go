package model

import "testing"

func TestTierFor(t *testing.T) {
	tests := []struct {
		accuracy float64
		want     AccuracyTier
	}{
		{100, TierExcellent},
		{80, TierExcellent},
		{79.9, TierGood},
		{60, TierGood},
		{40, TierLearning},
		{39.9, TierKeepGoing},
		{0, TierKeepGoing},
	}
	for _, tt := range tests {
		if got := TierFor(tt.accuracy); got != tt.want {
			t.Errorf("TierFor(%v) = %q, want %q", tt.accuracy, got, tt.want)
		}
	}
}

func TestProgressFor(t *testing.T) {
	p := ProgressFor(SessionStats{})
	if p.Current != 0 || p.Total != 1 || p.Percent != 0 {
		t.Errorf("empty stats: got %+v", p)
	}

	p = ProgressFor(SessionStats{TotalQuestions: 3, CorrectAnswers: 2, Accuracy: 66.7})
	if p.Current != 3 || p.Total != 4 {
		t.Errorf("expected 3/4, got %d/%d", p.Current, p.Total)
	}
	if p.Percent != 75 {
		t.Errorf("expected 75%%, got %d", p.Percent)
	}
	if p.Tier != TierGood {
		t.Errorf("expected tier good, got %q", p.Tier)
	}
}

func TestQuestionClone(t *testing.T) {
	q := &Question{ID: 1, Options: []string{"A", "B"}}
	c := q.Clone()
	c.Options[0] = "Z"
	if q.Options[0] != "A" {
		t.Error("Clone should not share the options slice")
	}
	if (*Question)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestHasOption(t *testing.T) {
	q := &Question{Options: []string{"Newton", "Joule"}}
	if !q.HasOption("Joule") {
		t.Error("expected Joule to be an option")
	}
	if q.HasOption("Watt") {
		t.Error("Watt is not an option")
	}
	var nilQ *Question
	if nilQ.HasOption("Newton") {
		t.Error("nil question has no options")
	}
}
