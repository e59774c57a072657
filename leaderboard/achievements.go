/*
achievements.go - Badge derivation

PURPOSE:
  Achievements are a pure, deterministic function of a snapshot's numeric
  fields, recomputed fresh on every ingestion. No accumulation, no side
  effects: re-ingesting the same stats always yields the same badges.

THRESHOLDS:
  habits >= 1         Habit Starter
  habits >= 5         Habit Hunter
  habits >= 10        Habit Master
  streak >= 7 days    Week Warrior
  streak >= 30 days   Monthly Master
  completion >= 90%   Perfectionist

  A participant with no habits has a max streak of 0 and earns nothing.
*/
package leaderboard

// Badge identifiers.
const (
	BadgeHabitStarter  = "Habit Starter"
	BadgeHabitHunter   = "Habit Hunter"
	BadgeHabitMaster   = "Habit Master"
	BadgeWeekWarrior   = "Week Warrior"
	BadgeMonthlyMaster = "Monthly Master"
	BadgePerfectionist = "Perfectionist"
)

// deriveAchievements computes the badge set for the given stats.
func deriveAchievements(s Stats) []string {
	var badges []string
	if s.TotalHabits >= 1 {
		badges = append(badges, BadgeHabitStarter)
	}
	if s.TotalHabits >= 5 {
		badges = append(badges, BadgeHabitHunter)
	}
	if s.TotalHabits >= 10 {
		badges = append(badges, BadgeHabitMaster)
	}
	if s.StreakDays >= 7 {
		badges = append(badges, BadgeWeekWarrior)
	}
	if s.StreakDays >= 30 {
		badges = append(badges, BadgeMonthlyMaster)
	}
	if s.CompletionRatePercent >= 90 {
		badges = append(badges, BadgePerfectionist)
	}
	return badges
}
