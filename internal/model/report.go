package model

// ExamReport is the per-exam JSON written by the grading pipeline and
// read back by the analytics run.
type ExamReport struct {
	ExamID         string            `json:"exam_id"`
	TotalAwarded   float64           `json:"total_awarded"`
	TotalMax       float64           `json:"total_max"`
	Percentage     float64           `json:"percentage"`
	ExtractedItems []ExtractedAnswer `json:"extracted_items,omitempty"`
	GradedItems    []GradedItem      `json:"graded_items"`
}

// NewExamReport freezes an ExamResult's derived totals into a report.
func NewExamReport(r ExamResult) ExamReport {
	return ExamReport{
		ExamID:         r.ExamID,
		TotalAwarded:   r.TotalAwarded(),
		TotalMax:       r.TotalMax(),
		Percentage:     r.Percentage(),
		ExtractedItems: r.Extracted,
		GradedItems:    r.Items,
	}
}

// ReviewItem is one flagged judgment in the cross-exam review queue.
type ReviewItem struct {
	ExamID        string  `json:"exam_id"`
	QuestionID    string  `json:"question_id"`
	AwardedPoints float64 `json:"awarded_points"`
	MaxPoints     float64 `json:"max_points"`
	Verdict       Verdict `json:"verdict"`
	Confidence    float64 `json:"confidence"`
	Feedback      string  `json:"feedback"`
}

// ReviewQueue collects every flagged item across a run for human review.
type ReviewQueue struct {
	TotalFlagged int          `json:"total_flagged"`
	Items        []ReviewItem `json:"items"`
}

// SummaryRow is one line of the per-exam grades summary table.
type SummaryRow struct {
	ExamID        string
	TotalAwarded  float64
	TotalMax      float64
	Percentage    float64
	FlaggedCount  int
	ItemBreakdown string
}

// VerdictBreakdown counts the three recognized verdicts for a question.
// Unrecognized verdict strings land in none of the buckets.
type VerdictBreakdown struct {
	Correct   int `json:"correct"`
	Partial   int `json:"partially_correct"`
	Incorrect int `json:"incorrect"`
}

// QuestionStats holds class-wide statistics for a single question.
type QuestionStats struct {
	TotalStudents    int              `json:"total_students"`
	MaxPoints        float64          `json:"max_points"`
	AvgScore         float64          `json:"avg_score"`
	AvgScorePct      float64          `json:"avg_score_pct"`
	FullMarksCount   int              `json:"full_marks_count"`
	ZeroCount        int              `json:"zero_count"`
	PassRate         float64          `json:"pass_rate"`
	AvgConfidence    float64          `json:"avg_confidence"`
	Difficulty       Difficulty       `json:"difficulty"`
	VerdictBreakdown VerdictBreakdown `json:"verdict_breakdown"`
}

// ClassStats holds class-level statistics over all exams in a run.
// A run with zero exams yields the zero value with TotalStudents == 0.
// All fields always serialize: a legitimate zero (a student scored 0,
// an all-zero class) is data, not absence.
type ClassStats struct {
	TotalStudents   int     `json:"total_students"`
	ClassAveragePct float64 `json:"class_average_pct"`
	HighestScore    float64 `json:"highest_score"`
	LowestScore     float64 `json:"lowest_score"`
	TotalPossible   float64 `json:"total_possible"`
	AvgTotalAwarded float64 `json:"avg_total_awarded"`
}

// AnalyticsReport is the top-level JSON structure for an analytics run.
type AnalyticsReport struct {
	ClassSummary  ClassStats               `json:"class_summary"`
	QuestionStats map[string]QuestionStats `json:"question_stats"`
	Insights      []string                 `json:"insights"`
}

// AnswerKeyEntry describes the expected answer for one question,
// supplied to the grading stage in two-stage mode.
type AnswerKeyEntry struct {
	Answer    string   `json:"answer"`
	MaxPoints float64  `json:"max_points,omitempty"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// AnswerKey maps question IDs to expected answers.
type AnswerKey map[string]AnswerKeyEntry
