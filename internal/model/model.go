package model

// Verdict is the categorical judgment of an answer's correctness.
type Verdict string

const (
	// VerdictCorrect means the answer fully matches the expected answer.
	VerdictCorrect Verdict = "correct"
	// VerdictPartial means the answer earns partial credit.
	VerdictPartial Verdict = "partially_correct"
	// VerdictIncorrect means the answer earns no credit.
	VerdictIncorrect Verdict = "incorrect"
)

// Known reports whether v is one of the three recognized verdicts.
// The grading model occasionally drifts and emits other strings; those
// are tolerated but excluded from verdict breakdowns.
func (v Verdict) Known() bool {
	return v == VerdictCorrect || v == VerdictPartial || v == VerdictIncorrect
}

// Difficulty is the class-wide difficulty rating derived for a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// DefaultConfidence is assumed when a judgment carries no confidence
// value (e.g. two-stage grading, which does not ask the model for one).
const DefaultConfidence = 100.0

// QuestionJudgment is the grading model's assessment of one answer.
// Produced once per question per exam; immutable afterwards.
type QuestionJudgment struct {
	QuestionID    string  `json:"question_id"`
	StudentAnswer string  `json:"student_answer"`
	AwardedPoints float64 `json:"awarded_points"`
	MaxPoints     float64 `json:"max_points"`
	Verdict       Verdict `json:"verdict"`
	Confidence    float64 `json:"confidence"`
	Feedback      string  `json:"feedback"`
}

// GradedItem is a judgment plus the review-gate decision, stamped once
// at ingestion time.
type GradedItem struct {
	QuestionID       string  `json:"question_id"`
	AwardedPoints    float64 `json:"awarded_points"`
	MaxPoints        float64 `json:"max_points"`
	Verdict          Verdict `json:"verdict"`
	Feedback         string  `json:"feedback"`
	Confidence       float64 `json:"confidence"`
	FlaggedForReview bool    `json:"flagged_for_review"`
}

// ExtractedAnswer is one cleaned question/answer pair from the
// extraction pass over raw OCR text.
type ExtractedAnswer struct {
	QuestionID         string   `json:"question_id"`
	QuestionText       string   `json:"question_text,omitempty"`
	StudentAnswer      string   `json:"student_answer"`
	TranscriptionNotes []string `json:"transcription_notes,omitempty"`
}

// ExamResult holds all graded items for one exam. Totals and the
// flagged subset are derived from Items on demand so they can never
// drift from the underlying collection.
type ExamResult struct {
	ExamID    string            `json:"exam_id"`
	Items     []GradedItem      `json:"items"`
	Extracted []ExtractedAnswer `json:"extracted,omitempty"`
}

// TotalAwarded is the sum of awarded points across all items.
func (r ExamResult) TotalAwarded() float64 {
	var sum float64
	for _, it := range r.Items {
		sum += it.AwardedPoints
	}
	return sum
}

// TotalMax is the sum of maximum points across all items.
func (r ExamResult) TotalMax() float64 {
	var sum float64
	for _, it := range r.Items {
		sum += it.MaxPoints
	}
	return sum
}

// Percentage is the exam score as a percentage of the maximum.
// Returns 0 for an exam with no items or a zero maximum.
func (r ExamResult) Percentage() float64 {
	max := r.TotalMax()
	if max <= 0 {
		return 0.0
	}
	return r.TotalAwarded() / max * 100.0
}

// FlaggedItems returns the items routed for human review, in exam order.
func (r ExamResult) FlaggedItems() []GradedItem {
	var flagged []GradedItem
	for _, it := range r.Items {
		if it.FlaggedForReview {
			flagged = append(flagged, it)
		}
	}
	return flagged
}

// FlaggedCount is the number of items routed for human review.
func (r ExamResult) FlaggedCount() int {
	count := 0
	for _, it := range r.Items {
		if it.FlaggedForReview {
			count++
		}
	}
	return count
}

// RunConfig holds runtime pipeline parameters set via CLI flags.
type RunConfig struct {
	InputDir            string  // directory with OCR text files
	Glob                string  // filename pattern within InputDir
	OutputDir           string  // where reports are written
	RubricPath          string  // rubric text file
	AnswerKeyPath       string  // answer key JSON (two-stage mode)
	Mode                string  // "single-shot" or "two-stage"
	ConfidenceThreshold float64 // judgments below this are flagged
	WriteXLSX           bool    // also write grades_summary.xlsx
}
