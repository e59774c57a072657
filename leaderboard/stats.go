/*
stats.go - Deriving a stat line from raw habit data

PURPOSE:
  Callers that track habits can build an ingestion payload from them
  instead of hand-computing rates. Completion rate is completions over
  the trailing 30 days divided by the maximum possible (habits x 30),
  as a rounded percentage. A participant with no habits has a max
  streak of 0, not an undefined one.
*/
package leaderboard

import (
	"math"
	"time"
)

// Habit is the minimal habit shape needed to derive leaderboard stats.
type Habit struct {
	StreakDays     int
	CompletedDates []time.Time
}

// ComputeStats derives the numeric stat fields from habits as of now.
// DisplayName, PhotoRef, IsGuest and Points are left for the caller.
func ComputeStats(habits []Habit, now time.Time) Stats {
	totalHabits := len(habits)
	cutoff := now.AddDate(0, 0, -30)

	totalCompletions := 0
	recentCompletions := 0
	maxStreak := 0
	for _, h := range habits {
		totalCompletions += len(h.CompletedDates)
		for _, d := range h.CompletedDates {
			if !d.Before(cutoff) {
				recentCompletions++
			}
		}
		if h.StreakDays > maxStreak {
			maxStreak = h.StreakDays
		}
	}

	rate := 0
	if totalHabits > 0 {
		max := float64(totalHabits * 30)
		rate = int(math.Round(float64(recentCompletions) / max * 100))
	}

	return Stats{
		StreakDays:            maxStreak,
		CompletionRatePercent: rate,
		TotalHabits:           totalHabits,
		TotalCompletions:      totalCompletions,
	}
}
