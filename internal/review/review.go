// Package review implements the confidence gate that decides which
// model judgments are trustworthy enough to auto-accept and which must
// be routed to a human reviewer.
package review

import "github.com/pavelanni/papergrader/internal/model"

// DefaultThreshold is the run-level confidence threshold below which
// judgments are flagged for human review.
const DefaultThreshold = 80.0

// Flag reports whether a judgment must be routed for human review.
// Low-confidence judgments are inherently unreliable, and partial-credit
// judgments are where graders most often disagree with the model, so
// those are always flagged regardless of stated confidence.
func Flag(verdict model.Verdict, confidence, threshold float64) bool {
	return confidence < threshold || verdict == model.VerdictPartial
}

// Apply converts a judgment into a GradedItem, stamping the review-gate
// decision once at ingestion time. The flag is never recomputed.
func Apply(j model.QuestionJudgment, threshold float64) model.GradedItem {
	return model.GradedItem{
		QuestionID:       j.QuestionID,
		AwardedPoints:    j.AwardedPoints,
		MaxPoints:        j.MaxPoints,
		Verdict:          j.Verdict,
		Feedback:         j.Feedback,
		Confidence:       j.Confidence,
		FlaggedForReview: Flag(j.Verdict, j.Confidence, threshold),
	}
}

// ApplyAll gates a full set of judgments for one exam, preserving order.
func ApplyAll(judgments []model.QuestionJudgment, threshold float64) []model.GradedItem {
	items := make([]model.GradedItem, 0, len(judgments))
	for _, j := range judgments {
		items = append(items, Apply(j, threshold))
	}
	return items
}
