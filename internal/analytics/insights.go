package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/benvon/habit-tracker/internal/models"
)

// InsightType identifies the kind of insight
type InsightType string

const (
	InsightStreak           InsightType = "streak"
	InsightBestDay          InsightType = "best_day"
	InsightNeedsImprovement InsightType = "needs_improvement"
	InsightPositiveTrend    InsightType = "positive_trend"
	InsightTrendToWatch     InsightType = "trend_to_watch"
	InsightSuggestion       InsightType = "suggestion"
)

const (
	// LowCompletionThreshold below which fewer habits are suggested
	LowCompletionThreshold = 0.5
	// HighCompletionThreshold above which another habit is suggested
	HighCompletionThreshold = 0.8
	// TrendWindowEntries is the size of each side of the week-over-week comparison
	TrendWindowEntries = 7
)

// Insight is a typed, human-readable observation about a user's history.
// Value carries the raw metric: days for streaks, whole percent for weekday
// and suggestion insights, an entry-count delta for trends.
type Insight struct {
	Type    InsightType `json:"type"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
	Value   int         `json:"value"`
}

// InsightOptions bounds the history considered
type InsightOptions struct {
	// LookbackDays limits history to the days ending on the reference date; 0 means all history
	LookbackDays int
}

// WeekdayStat is the completion rate for one weekday bucket
type WeekdayStat struct {
	Weekday   time.Weekday `json:"weekday"`
	Name      string       `json:"name"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Rate      float64      `json:"rate"`
}

// WeekdayStats buckets entries by weekday and ranks the non-empty buckets by
// completion rate, highest first. Equal rates keep Sunday-to-Saturday order.
func WeekdayStats(entries []models.HabitEntry) []WeekdayStat {
	var buckets [7]WeekdayStat
	for i := range buckets {
		buckets[i].Weekday = time.Weekday(i)
		buckets[i].Name = time.Weekday(i).String()
	}
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		b := &buckets[Day(e.Date).Weekday()]
		b.Total++
		if e.Completed {
			b.Completed++
		}
	}

	ranked := make([]WeekdayStat, 0, 7)
	for _, b := range buckets {
		if b.Total == 0 {
			continue
		}
		b.Rate = rate(b.Completed, b.Total)
		ranked = append(ranked, b)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Rate > ranked[j].Rate })
	return ranked
}

// GenerateInsights derives the insight list for one user's or one habit's
// entries as of ref. A streak insight leads when the streak is positive; the
// rest follow in a fixed order: best day, weakest day, trend, suggestion.
func GenerateInsights(entries []models.HabitEntry, ref time.Time, opts InsightOptions) []Insight {
	history := make([]models.HabitEntry, 0, len(entries))
	lookback := LastNDays(ref, opts.LookbackDays)
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		if opts.LookbackDays > 0 && !lookback.Contains(e.Date) {
			continue
		}
		history = append(history, e)
	}

	insights := make([]Insight, 0, 5)
	if streak := ComputeUnionStreak(history, ref, 0); streak > 0 {
		insights = append(insights, Insight{
			Type:    InsightStreak,
			Title:   "Current streak",
			Message: fmt.Sprintf("You're on a %d-day streak. Keep it going!", streak),
			Value:   streak,
		})
	}
	if len(history) == 0 {
		return insights
	}

	ranked := WeekdayStats(history)
	best := ranked[0]
	insights = append(insights, Insight{
		Type:    InsightBestDay,
		Title:   "Best day",
		Message: fmt.Sprintf("%s is your strongest day with %d%% completion.", best.Name, RoundPercent(best.Rate)),
		Value:   RoundPercent(best.Rate),
	})
	if worst := ranked[len(ranked)-1]; len(ranked) > 1 && worst.Rate < 1 {
		insights = append(insights, Insight{
			Type:    InsightNeedsImprovement,
			Title:   "Needs improvement",
			Message: fmt.Sprintf("%s has the lowest completion at %d%%.", worst.Name, RoundPercent(worst.Rate)),
			Value:   RoundPercent(worst.Rate),
		})
	}

	if trend, ok := weekOverWeekTrend(history); ok {
		insights = append(insights, trend)
	}

	sum := 0.0
	for _, s := range ranked {
		sum += s.Rate
	}
	avg := sum / float64(len(ranked))
	switch {
	case avg < LowCompletionThreshold:
		insights = append(insights, Insight{
			Type:    InsightSuggestion,
			Title:   "Focus on fewer habits",
			Message: fmt.Sprintf("Your average completion is %d%%. Consider reducing the number of habits you track.", RoundPercent(avg)),
			Value:   RoundPercent(avg),
		})
	case avg > HighCompletionThreshold:
		insights = append(insights, Insight{
			Type:    InsightSuggestion,
			Title:   "Ready for more",
			Message: fmt.Sprintf("Your average completion is %d%%. You might be ready to add a new habit.", RoundPercent(avg)),
			Value:   RoundPercent(avg),
		})
	}

	return insights
}

// weekOverWeekTrend compares the completed count of the newest seven entries
// with the seven before them. It needs two full sides to report anything.
func weekOverWeekTrend(history []models.HabitEntry) (Insight, bool) {
	if len(history) < 2*TrendWindowEntries {
		return Insight{}, false
	}
	sorted := make([]models.HabitEntry, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool { return Day(sorted[i].Date).After(Day(sorted[j].Date)) })

	recent := countCompleted(sorted[:TrendWindowEntries])
	prior := countCompleted(sorted[TrendWindowEntries : 2*TrendWindowEntries])
	delta := recent - prior
	switch {
	case delta > 0:
		return Insight{
			Type:    InsightPositiveTrend,
			Title:   "Positive trend",
			Message: fmt.Sprintf("You completed %d more than in the previous period.", delta),
			Value:   delta,
		}, true
	case delta < 0:
		return Insight{
			Type:    InsightTrendToWatch,
			Title:   "Trend to watch",
			Message: fmt.Sprintf("You completed %d fewer than in the previous period.", -delta),
			Value:   -delta,
		}, true
	}
	return Insight{}, false
}

func countCompleted(entries []models.HabitEntry) int {
	n := 0
	for _, e := range entries {
		if e.Completed {
			n++
		}
	}
	return n
}
