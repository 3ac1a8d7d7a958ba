// Package analytics folds graded exam reports into per-question and
// class-level statistics and derives teacher-facing insights from them.
// The whole fold is a pure batch computation over immutable inputs:
// given the same reports it produces byte-identical output.
package analytics

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pavelanni/papergrader/internal/i18n"
	"github.com/pavelanni/papergrader/internal/model"
)

// Difficulty thresholds on the class-wide average score percentage.
const (
	easyPctFloor   = 80.0
	mediumPctFloor = 50.0
)

// missRateFloor is the miss rate at and above which a question gets a
// reteach insight.
const missRateFloor = 50.0

// Compute runs the full analytics fold over a set of exam reports.
// The context carries the localizer used to render insight strings.
func Compute(ctx context.Context, reports []model.ExamReport) model.AnalyticsReport {
	class := ComputeClassStats(reports)
	questions := ComputeQuestionStats(reports)
	return model.AnalyticsReport{
		ClassSummary:  class,
		QuestionStats: questions,
		Insights:      GenerateInsights(ctx, class, questions),
	}
}

// questionAccum collects raw per-question observations across exams
// before deriving statistics.
type questionAccum struct {
	scores      []float64
	confidences []float64
	maxPoints   float64
	breakdown   model.VerdictBreakdown
}

// ComputeQuestionStats groups all graded items across exams by question
// ID and derives statistics per group. Keys iterate lexicographically
// so downstream output and insight ordering is reproducible.
//
// MaxPoints is assumed constant for a question ID across exams; when
// reports disagree, the last-seen value wins and a warning is logged.
func ComputeQuestionStats(reports []model.ExamReport) map[string]model.QuestionStats {
	accums := make(map[string]*questionAccum)

	for _, report := range reports {
		for _, item := range report.GradedItems {
			acc, ok := accums[item.QuestionID]
			if !ok {
				acc = &questionAccum{}
				accums[item.QuestionID] = acc
			}
			if len(acc.scores) > 0 && acc.maxPoints != item.MaxPoints {
				slog.Warn("max_points differs between exams, keeping last seen",
					"question_id", item.QuestionID,
					"previous", acc.maxPoints,
					"seen", item.MaxPoints)
			}
			acc.scores = append(acc.scores, item.AwardedPoints)
			acc.maxPoints = item.MaxPoints
			// Absent confidence values are normalized to
			// model.DefaultConfidence by the report loader.
			acc.confidences = append(acc.confidences, item.Confidence)
			switch item.Verdict {
			case model.VerdictCorrect:
				acc.breakdown.Correct++
			case model.VerdictPartial:
				acc.breakdown.Partial++
			case model.VerdictIncorrect:
				acc.breakdown.Incorrect++
			default:
				// Model drift: tolerated, counted toward no bucket.
			}
		}
	}

	stats := make(map[string]model.QuestionStats, len(accums))
	for qid, acc := range accums {
		stats[qid] = deriveQuestionStats(acc)
	}
	return stats
}

func deriveQuestionStats(acc *questionAccum) model.QuestionStats {
	n := len(acc.scores)
	if n == 0 {
		return model.QuestionStats{}
	}

	avgScore := stat.Mean(acc.scores, nil)
	scorePct := 0.0
	if acc.maxPoints > 0 {
		scorePct = avgScore / acc.maxPoints * 100.0
	}

	fullMarks, zeros, passes := 0, 0, 0
	for _, s := range acc.scores {
		if s >= acc.maxPoints {
			fullMarks++
		}
		if s <= 0 {
			zeros++
		}
		if s >= acc.maxPoints*0.5 {
			passes++
		}
	}

	return model.QuestionStats{
		TotalStudents:    n,
		MaxPoints:        acc.maxPoints,
		AvgScore:         round2(avgScore),
		AvgScorePct:      round1(scorePct),
		FullMarksCount:   fullMarks,
		ZeroCount:        zeros,
		PassRate:         round1(float64(passes) / float64(n) * 100.0),
		AvgConfidence:    round1(stat.Mean(acc.confidences, nil)),
		Difficulty:       classifyDifficulty(scorePct),
		VerdictBreakdown: acc.breakdown,
	}
}

// classifyDifficulty rates a question from the class-wide average score
// percentage. The boundaries are inclusive: exactly 80 is Easy and
// exactly 50 is Medium.
func classifyDifficulty(scorePct float64) model.Difficulty {
	switch {
	case scorePct >= easyPctFloor:
		return model.DifficultyEasy
	case scorePct >= mediumPctFloor:
		return model.DifficultyMedium
	default:
		return model.DifficultyHard
	}
}

// ComputeClassStats derives class-level statistics over the per-exam
// percentages and totals. Zero reports yield the sentinel empty result
// rather than dividing by zero.
//
// TotalPossible is taken from the first exam on the assumption that all
// exams share the same maximum; mismatches are logged, not averaged.
func ComputeClassStats(reports []model.ExamReport) model.ClassStats {
	if len(reports) == 0 {
		return model.ClassStats{TotalStudents: 0}
	}

	percentages := make([]float64, len(reports))
	awarded := make([]float64, len(reports))
	for i, r := range reports {
		percentages[i] = r.Percentage
		awarded[i] = r.TotalAwarded
		if r.TotalMax != reports[0].TotalMax {
			slog.Warn("exam total_max differs from first exam",
				"exam_id", r.ExamID,
				"total_max", r.TotalMax,
				"expected", reports[0].TotalMax)
		}
	}

	return model.ClassStats{
		TotalStudents:   len(reports),
		ClassAveragePct: round1(stat.Mean(percentages, nil)),
		HighestScore:    round1(floats.Max(percentages)),
		LowestScore:     round1(floats.Min(percentages)),
		TotalPossible:   reports[0].TotalMax,
		AvgTotalAwarded: round2(stat.Mean(awarded, nil)),
	}
}

// GenerateInsights derives teacher recommendations from the two
// statistics sets. Order is fixed: one class-tier insight, then
// per-question insights in lexicographic question order, then an
// overall calibration insight when warranted.
func GenerateInsights(ctx context.Context, class model.ClassStats, questions map[string]model.QuestionStats) []string {
	if class.TotalStudents == 0 {
		return nil
	}

	insights := []string{classTierInsight(ctx, class.ClassAveragePct)}

	qids := make([]string, 0, len(questions))
	for qid := range questions {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	hardCount := 0
	for _, qid := range qids {
		qs := questions[qid]
		if qs.Difficulty == model.DifficultyHard {
			hardCount++
		}

		missRate := 0.0
		if qs.TotalStudents > 0 {
			missed := qs.VerdictBreakdown.Incorrect + qs.VerdictBreakdown.Partial
			missRate = float64(missed) / float64(qs.TotalStudents) * 100.0
		}

		switch {
		case missRate >= missRateFloor:
			insights = append(insights, i18n.Td(ctx, "InsightReteach", map[string]any{
				"QID":        qid,
				"MissRate":   strconv.FormatFloat(math.Round(missRate), 'f', -1, 64),
				"Avg":        formatNumber(qs.AvgScore),
				"Max":        formatNumber(qs.MaxPoints),
				"Difficulty": string(qs.Difficulty),
			}))
		case qs.Difficulty == model.DifficultyEasy && qs.FullMarksCount == qs.TotalStudents:
			insights = append(insights, i18n.Td(ctx, "InsightTooEasy", map[string]any{
				"QID": qid,
			}))
		}
	}

	if len(qids) > 0 && float64(hardCount) > float64(len(qids))/2 {
		insights = append(insights, i18n.Td(ctx, "InsightExamTooHard", map[string]any{
			"Hard":  hardCount,
			"Total": len(qids),
		}))
	}

	return insights
}

func classTierInsight(ctx context.Context, avg float64) string {
	data := map[string]any{"Avg": formatNumber(avg)}
	switch {
	case avg < 50:
		return i18n.Td(ctx, "InsightClassAvgLow", data)
	case avg < 70:
		return i18n.Td(ctx, "InsightClassAvgMid", data)
	default:
		return i18n.Td(ctx, "InsightClassAvgHigh", data)
	}
}

// formatNumber renders a float without a trailing ".0" (10, 7.25, 72.5).
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
