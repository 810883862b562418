// Package priority computes the ordering score of a task from its urgency,
// difficulty and due date.
package priority

import (
	"time"

	"priorityforge/backend"
	"priorityforge/internal/utils"
)

// Weights of the base score.
const (
	UrgencyWeight    = 0.6
	DifficultyWeight = 0.4
)

// Due-date bonuses.
const (
	OverdueBonus  = 2.0
	TodayBonus    = 1.5
	TomorrowBonus = 1.0
	SoonBonus     = 0.5
	soonDays      = 3
)

// Base returns urgency*0.6 + difficulty*0.4.
func Base(urgency, difficulty int) float64 {
	return float64(urgency)*UrgencyWeight + float64(difficulty)*DifficultyWeight
}

// DaysUntil returns calendar days from the local date of now to the local
// date of due. Negative means overdue.
func DaysUntil(due, now time.Time) int {
	return utils.DaysBetween(now, due)
}

// Bonus maps days-until-due to the score bonus.
func Bonus(days int) float64 {
	switch {
	case days < 0:
		return OverdueBonus
	case days == 0:
		return TodayBonus
	case days == 1:
		return TomorrowBonus
	case days <= soonDays:
		return SoonBonus
	}
	return 0
}

// Score returns the priority for the given inputs. due may be nil.
func Score(urgency, difficulty int, due *time.Time, now time.Time) float64 {
	score := Base(urgency, difficulty)
	if due != nil {
		score += Bonus(DaysUntil(*due, now))
	}
	return score
}

// Of returns the priority t should carry at now.
func Of(t backend.Task, now time.Time) float64 {
	return Score(t.Urgency, t.Difficulty, t.DueDate, now)
}
